// Package auth provides the optional API-key middleware for the nfury
// server. With no key configured the server is open, which is the default
// for local use; setting NFURY_API_KEY locks every /api/v1 route behind a
// static bearer key. Health endpoints are mounted outside the guarded
// group so probes keep working.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Noop returns a middleware that passes every request through unchanged.
func Noop() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return next
	}
}

// APIKey returns a middleware that validates requests against a static API
// key read from the "Authorization: Bearer <key>" header. An empty key
// behaves like Noop. Comparison uses crypto/subtle.ConstantTimeCompare to
// prevent timing attacks.
func APIKey(key string) func(http.Handler) http.Handler {
	if key == "" {
		return Noop()
	}

	keyBytes := []byte(key)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := extractBearerToken(r)
			if provided == "" {
				http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
				return
			}

			if subtle.ConstantTimeCompare([]byte(provided), keyBytes) != 1 {
				http.Error(w, "invalid API key", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// extractBearerToken extracts the token from "Authorization: Bearer <token>".
func extractBearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(h, "Bearer ")
}
