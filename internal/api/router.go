// Package api provides the HTTP API handlers for the nfury server.
// All resource endpoints are mounted under /api/v1; health endpoints live
// at the root so probes work without the prefix.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/unhackeddev/nfury/internal/cache"
	"github.com/unhackeddev/nfury/internal/domain"
	"github.com/unhackeddev/nfury/internal/stream"
)

// maxJSONBodySize is the maximum size for JSON request bodies (1MB).
const maxJSONBodySize = 1 << 20

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// parsePagination reads limit and offset from query params with defaults and bounds.
func parsePagination(r *http.Request) (limit, offset int) {
	limit = defaultPageLimit
	offset = 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

// Structured error type codes for machine-readable error categorization.
// These classify errors into broad categories independent of the HTTP status code.
const (
	ErrorTypeValidation = "VALIDATION"  // request data failed validation
	ErrorTypeNotFound   = "NOT_FOUND"   // requested resource does not exist
	ErrorTypeConflict   = "CONFLICT"    // request conflicts with current resource state
	ErrorTypeRateLimit  = "RATE_LIMIT"  // too many requests
	ErrorTypeInternal   = "INTERNAL"    // unexpected server error
	ErrorTypeUpstream   = "UPSTREAM"    // target or auth endpoint misbehaved
)

// APIError is the structured JSON error envelope returned by all API error responses.
// Format: {"error": {"code": "ERROR_CODE", "type": "ERROR_TYPE", "message": "human-readable message"}}
type APIError struct {
	Error APIErrorDetail `json:"error"`
}

// APIErrorDetail holds the code, type, and message inside the error envelope.
type APIErrorDetail struct {
	Code    string `json:"code"`
	Type    string `json:"type,omitempty"`
	Message string `json:"message"`
}

// errorTypeFromStatus maps HTTP status codes to broad error type categories.
func errorTypeFromStatus(status int) string {
	switch {
	case status == http.StatusBadRequest:
		return ErrorTypeValidation
	case status == http.StatusNotFound:
		return ErrorTypeNotFound
	case status == http.StatusConflict:
		return ErrorTypeConflict
	case status == http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case status == http.StatusBadGateway:
		return ErrorTypeUpstream
	case status >= 500:
		return ErrorTypeInternal
	default:
		return ""
	}
}

// errorJSON writes a structured JSON error response.
// All API errors use this format so clients only need to handle one shape.
// The type field is automatically derived from the HTTP status code.
func errorJSON(w http.ResponseWriter, message, code string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(APIError{
		Error: APIErrorDetail{Code: code, Type: errorTypeFromStatus(status), Message: message},
	}); err != nil {
		slog.Error("failed to encode JSON error response", "error", err)
	}
}

// internalError logs the full error server-side and returns a generic JSON error to clients.
func internalError(w http.ResponseWriter, msg string, err error) {
	slog.Error(msg, "error", err)
	errorJSON(w, msg, "INTERNAL", http.StatusInternalServerError)
}

// writeJSON encodes v as JSON and writes it to w with the given status code.
// Logs an error if encoding fails (response may be partial at that point).
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// parseID reads a chi URL param as an int64 resource ID.
func parseID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

// limitJSONBody caps request body size for JSON requests.
func limitJSONBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if r.Body != nil && !strings.HasPrefix(ct, "multipart/") {
			r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
		}
		next.ServeHTTP(w, r)
	})
}

// securityHeaders adds standard HTTP security headers to every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// Server holds dependencies for all API handlers.
type Server struct {
	Projects  ProjectStore
	Endpoints EndpointStore
	Runs      RunStore
	Schedules ScheduleStore
	Transfer  TransferStore
	Load      LoadRunner
	Cron      CronValidator
	Hub       *stream.Hub
	Auth      func(http.Handler) http.Handler // Optional API-key middleware. Nil = open.

	CORSOrigins []string    // Allowed CORS origins. Defaults to ["*"].
	SSELimiter  *SSELimiter // Concurrent SSE connection limiter. Nil = default limiter.
	DBHealth    HealthChecker

	// ProjectCache reduces catalog reads for the project list, which the
	// portal-style clients poll. Nil disables caching.
	ProjectCache *cache.Cache[string, []domain.Project]
}

// NewRouter creates a configured chi router with all API routes mounted.
func NewRouter(srv *Server) chi.Router {
	if srv.SSELimiter == nil {
		srv.SSELimiter = NewSSELimiter()
	}

	r := chi.NewRouter()

	corsOrigins := srv.CORSOrigins
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(securityHeaders)
	r.Use(RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)

	// Health (unauthenticated, outside /api/v1)
	r.Get("/health", srv.HandleHealth)
	r.Get("/health/live", srv.HandleHealthLive)
	r.Get("/health/ready", srv.HandleHealthReady)
	r.Get("/metrics", srv.HandleMetrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(limitJSONBody)
		if srv.Auth != nil {
			r.Use(srv.Auth)
		}

		MountProjectRoutes(r, srv)
		MountEndpointRoutes(r, srv)
		MountRunRoutes(r, srv)
		MountLoadRoutes(r, srv)
		if srv.Schedules != nil {
			MountScheduleRoutes(r, srv)
		}
		r.Get("/events", srv.HandleEvents)
	})

	return r
}
