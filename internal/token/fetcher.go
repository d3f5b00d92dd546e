// Package token acquires bearer tokens for authenticated load runs.
// A fetch is a single HTTP call against the auth spec's URL; the token is
// extracted from the JSON response body via the spec's dotted path.
package token

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/unhackeddev/nfury/internal/domain"
)

const (
	defaultTimeout      = 30 * time.Second
	maxAuthResponseSize = 1 << 20 // 1 MiB
)

// RejectedError indicates the auth endpoint answered with a non-2xx status.
type RejectedError struct {
	StatusCode int
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("auth request rejected with status %d", e.StatusCode)
}

// BadResponseError indicates the auth response body was not valid JSON.
type BadResponseError struct {
	Reason string
}

func (e *BadResponseError) Error() string {
	return fmt.Sprintf("auth response is not valid JSON: %s", e.Reason)
}

// MissingTokenError indicates the configured path resolved to nothing, or
// to an empty string, in an otherwise valid JSON response.
type MissingTokenError struct {
	Path string
}

func (e *MissingTokenError) Error() string {
	return fmt.Sprintf("no token found at path %q in auth response", e.Path)
}

// TransportError indicates the auth request never produced a response
// (connection refused, DNS failure, timeout, TLS handshake).
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("auth request failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Credential is a fetched token plus the header it should be sent in.
type Credential struct {
	HeaderName  string
	HeaderValue string
	Token       string
}

// Fetcher performs token acquisition. The zero value is not usable; use
// NewFetcher.
type Fetcher struct {
	timeout time.Duration
}

// NewFetcher creates a fetcher with the default request timeout.
func NewFetcher() *Fetcher {
	return &Fetcher{timeout: defaultTimeout}
}

// Fetch executes the auth spec and returns the credential to attach to load
// requests. Exactly one HTTP request is made per call. The insecure flag
// mirrors the run's TLS stance: a run that skips certificate verification
// skips it for the auth call too.
func (f *Fetcher) Fetch(ctx context.Context, spec *domain.AuthSpec, insecure bool) (*Credential, error) {
	if spec == nil {
		return nil, errors.New("token: nil auth spec")
	}

	method, err := domain.ParseMethod(spec.Method)
	if err != nil {
		return nil, fmt.Errorf("token: %w", err)
	}

	var body io.Reader
	if spec.Body != "" {
		body = strings.NewReader(spec.Body)
	}
	req, err := http.NewRequestWithContext(ctx, string(method), spec.URL, body)
	if err != nil {
		return nil, fmt.Errorf("token: build auth request: %w", err)
	}
	if spec.ContentType != "" {
		req.Header.Set("Content-Type", spec.ContentType)
	}
	for name, value := range spec.Headers {
		req.Header.Set(name, value)
	}

	client := f.client(insecure)
	resp, err := client.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RejectedError{StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAuthResponseSize))
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	if !gjson.ValidBytes(data) {
		return nil, &BadResponseError{Reason: "body failed to parse"}
	}

	result := gjson.GetBytes(data, spec.TokenPath)
	if !result.Exists() || result.String() == "" {
		return nil, &MissingTokenError{Path: spec.TokenPath}
	}

	headerName := spec.HeaderName
	if headerName == "" {
		headerName = "Authorization"
	}
	// The prefix is concatenated as-is: a spec wanting "Bearer abc" carries
	// the trailing space in the prefix itself ("Bearer ").
	value := spec.HeaderPrefix + result.String()

	return &Credential{
		HeaderName:  headerName,
		HeaderValue: value,
		Token:       result.String(),
	}, nil
}

// client builds a one-shot HTTP client honoring the TLS policy.
func (f *Fetcher) client(insecure bool) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &http.Client{
		Timeout:   f.timeout,
		Transport: transport,
	}
}
