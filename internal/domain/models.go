// Package domain defines the core business types shared across nfury.
// These types represent the load-testing data model — not HTTP or storage
// specifics.
//
// Domain types carry json tags because they are directly serialized in API
// responses. When the API shape diverges from the domain type (computed
// fields, import/export envelopes), the api package defines a response
// struct instead.
package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrRunInProgress indicates a run start was refused because the single
// active run slot is occupied. Starts are refused, never queued.
var ErrRunInProgress = errors.New("a run is already in progress")

// ErrNotFound indicates a project, endpoint, or run lookup miss.
var ErrNotFound = errors.New("resource not found")

// RunStatus represents the state of a load test run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// IsTerminal returns true if the status is a final state.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	}
	return false
}

// HTTPMethod is the closed set of request methods the engine issues.
type HTTPMethod string

const (
	MethodGet     HTTPMethod = "GET"
	MethodPost    HTTPMethod = "POST"
	MethodPut     HTTPMethod = "PUT"
	MethodDelete  HTTPMethod = "DELETE"
	MethodPatch   HTTPMethod = "PATCH"
	MethodHead    HTTPMethod = "HEAD"
	MethodOptions HTTPMethod = "OPTIONS"
)

// ParseMethod validates a method string. Empty defaults to GET; anything
// outside the closed set is an explicit error rather than a silent GET.
func ParseMethod(s string) (HTTPMethod, error) {
	if s == "" {
		return MethodGet, nil
	}
	switch HTTPMethod(s) {
	case MethodGet, MethodPost, MethodPut, MethodDelete, MethodPatch, MethodHead, MethodOptions:
		return HTTPMethod(s), nil
	}
	return "", fmt.Errorf("unsupported HTTP method %q", s)
}

// AuthSpec describes how to acquire a bearer token before a run.
// Owned by a project (or overridden per endpoint); embedded, not a row.
type AuthSpec struct {
	URL          string            `json:"url"`
	Method       string            `json:"method"`
	ContentType  string            `json:"content_type,omitempty"`
	Body         string            `json:"body,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	TokenPath    string            `json:"token_path"`
	HeaderName   string            `json:"header_name"`
	HeaderPrefix string            `json:"header_prefix,omitempty"`
}

// Project groups endpoints and optionally carries a shared auth spec.
type Project struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Auth        *AuthSpec `json:"auth,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Endpoint is a saved load target. At most one of Requests and
// DurationSeconds holds a value; if neither is set the engine defaults to
// a 100-request budget.
type Endpoint struct {
	ID              int64             `json:"id"`
	ProjectID       int64             `json:"project_id"`
	Name            string            `json:"name"`
	Description     string            `json:"description,omitempty"`
	URL             string            `json:"url"`
	Method          HTTPMethod        `json:"method"`
	Users           int               `json:"users"`
	Requests        *int              `json:"requests,omitempty"`
	DurationSeconds *int              `json:"duration_seconds,omitempty"`
	ContentType     string            `json:"content_type,omitempty"`
	Body            *string           `json:"body,omitempty"`
	Insecure        bool              `json:"insecure"`
	RequiresAuth    bool              `json:"requires_auth"`
	Headers         map[string]string `json:"headers,omitempty"`
	Auth            *AuthSpec         `json:"auth,omitempty"` // overrides the project's auth spec
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// DefaultRequestBudget is applied when an endpoint or run request sets
// neither a request budget nor a duration.
const DefaultRequestBudget = 100

// RunRequest is an ad-hoc load run definition (CLI flags or POST body).
type RunRequest struct {
	URL             string            `json:"url"`
	Method          string            `json:"method,omitempty"`
	Users           int               `json:"users,omitempty"`
	Requests        *int              `json:"requests,omitempty"`
	DurationSeconds *int              `json:"duration_seconds,omitempty"`
	Body            string            `json:"body,omitempty"`
	ContentType     string            `json:"content_type,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`
	Insecure        bool              `json:"insecure"`
	Auth            *AuthSpec         `json:"auth,omitempty"`
}

// Validate checks the run request and fills defaults (method GET, 10 users,
// 100-request budget when neither stop criterion is set).
func (r *RunRequest) Validate() error {
	if r.URL == "" {
		return errors.New("url is required")
	}
	if _, err := ParseMethod(r.Method); err != nil {
		return err
	}
	if r.Method == "" {
		r.Method = string(MethodGet)
	}
	if r.Users < 0 {
		return errors.New("users must be positive")
	}
	if r.Users == 0 {
		r.Users = 10
	}
	if r.Requests != nil && r.DurationSeconds != nil {
		return errors.New("requests and duration_seconds are mutually exclusive")
	}
	if r.Requests != nil && *r.Requests < 1 {
		return errors.New("requests must be at least 1")
	}
	if r.DurationSeconds != nil && *r.DurationSeconds < 1 {
		return errors.New("duration_seconds must be at least 1")
	}
	if r.Requests == nil && r.DurationSeconds == nil {
		budget := DefaultRequestBudget
		r.Requests = &budget
	}
	if r.ContentType == "" {
		r.ContentType = "application/json"
	}
	return nil
}

// StatusAggregate is the per-status-code slice of a run's aggregate.
type StatusAggregate struct {
	Count int64   `json:"count"`
	Min   float64 `json:"min"`
	Avg   float64 `json:"avg"`
	Max   float64 `json:"max"`
	P50   float64 `json:"p50"`
	P75   float64 `json:"p75"`
	P90   float64 `json:"p90"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
}

// RunAggregate is the final wire aggregate for a run.
// RequestsPerSecond is the PEAK of the 1-second windowed rate observed
// during the run, not an average.
type RunAggregate struct {
	RunToken            string                  `json:"runToken"`
	TotalRequests       int64                   `json:"totalRequests"`
	SuccessfulRequests  int64                   `json:"successfulRequests"`
	FailedRequests      int64                   `json:"failedRequests"`
	RequestsPerSecond   float64                 `json:"requestsPerSecond"`
	AverageResponseTime float64                 `json:"averageResponseTime"`
	MinResponseTime     float64                 `json:"minResponseTime"`
	MaxResponseTime     float64                 `json:"maxResponseTime"`
	Percentile50        float64                 `json:"percentile50"`
	Percentile75        float64                 `json:"percentile75"`
	Percentile90        float64                 `json:"percentile90"`
	Percentile95        float64                 `json:"percentile95"`
	Percentile99        float64                 `json:"percentile99"`
	TotalElapsedTime    int64                   `json:"totalElapsedTime"` // milliseconds
	StatusCodes         map[int]StatusAggregate `json:"statusCodes"`
}

// MetricSample is the live per-response wire sample streamed to observers.
type MetricSample struct {
	RunToken            string    `json:"runToken"`
	Timestamp           time.Time `json:"timestamp"`
	ResponseTimeMs      float64   `json:"responseTimeMs"`
	StatusCode          int       `json:"statusCode"`
	IsSuccess           bool      `json:"isSuccess"`
	TotalRequests       int64     `json:"totalRequests"`
	SuccessfulRequests  int64     `json:"successfulRequests"`
	FailedRequests      int64     `json:"failedRequests"`
	CurrentRps          float64   `json:"currentRps"`
	AverageResponseTime float64   `json:"averageResponseTime"`
}

// Run is a recorded load test execution. URL, method, user count, and stop
// criterion are captured at run creation so later endpoint edits do not
// rewrite history. EndpointID is a weak back-reference cleared when the
// endpoint is deleted.
type Run struct {
	ID             int64      `json:"id"`
	Token          string     `json:"token"`
	EndpointID     *int64     `json:"endpoint_id,omitempty"`
	URL            string     `json:"url"`
	Method         HTTPMethod `json:"method"`
	Users          int        `json:"users"`
	TargetRequests *int       `json:"target_requests,omitempty"`
	TargetDuration *int       `json:"target_duration_seconds,omitempty"`
	Status         RunStatus  `json:"status"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	ErrorMessage   *string    `json:"error_message,omitempty"`

	TotalRequests       int64                   `json:"total_requests"`
	SuccessfulRequests  int64                   `json:"successful_requests"`
	FailedRequests      int64                   `json:"failed_requests"`
	RequestsPerSecond   float64                 `json:"requests_per_second"`
	AverageResponseTime float64                 `json:"average_response_time"`
	MinResponseTime     float64                 `json:"min_response_time"`
	MaxResponseTime     float64                 `json:"max_response_time"`
	Percentile50        float64                 `json:"percentile_50"`
	Percentile75        float64                 `json:"percentile_75"`
	Percentile90        float64                 `json:"percentile_90"`
	Percentile95        float64                 `json:"percentile_95"`
	Percentile99        float64                 `json:"percentile_99"`
	ElapsedMs           int64                   `json:"elapsed_ms"`
	StatusCodes         map[int]StatusAggregate `json:"status_codes,omitempty"`
}

// Aggregate assembles the wire aggregate from the run's stored fields.
func (r *Run) Aggregate() RunAggregate {
	return RunAggregate{
		RunToken:            r.Token,
		TotalRequests:       r.TotalRequests,
		SuccessfulRequests:  r.SuccessfulRequests,
		FailedRequests:      r.FailedRequests,
		RequestsPerSecond:   r.RequestsPerSecond,
		AverageResponseTime: r.AverageResponseTime,
		MinResponseTime:     r.MinResponseTime,
		MaxResponseTime:     r.MaxResponseTime,
		Percentile50:        r.Percentile50,
		Percentile75:        r.Percentile75,
		Percentile90:        r.Percentile90,
		Percentile95:        r.Percentile95,
		Percentile99:        r.Percentile99,
		TotalElapsedTime:    r.ElapsedMs,
		StatusCodes:         r.StatusCodes,
	}
}

// ApplyAggregate copies a computed aggregate onto the run record.
func (r *Run) ApplyAggregate(agg RunAggregate) {
	r.TotalRequests = agg.TotalRequests
	r.SuccessfulRequests = agg.SuccessfulRequests
	r.FailedRequests = agg.FailedRequests
	r.RequestsPerSecond = agg.RequestsPerSecond
	r.AverageResponseTime = agg.AverageResponseTime
	r.MinResponseTime = agg.MinResponseTime
	r.MaxResponseTime = agg.MaxResponseTime
	r.Percentile50 = agg.Percentile50
	r.Percentile75 = agg.Percentile75
	r.Percentile90 = agg.Percentile90
	r.Percentile95 = agg.Percentile95
	r.Percentile99 = agg.Percentile99
	r.ElapsedMs = agg.TotalElapsedTime
	r.StatusCodes = agg.StatusCodes
}

// Snapshot is a time-stamped running-totals record persisted at a 1-in-10
// sampling rate during a run.
type Snapshot struct {
	ID                  int64     `json:"id"`
	RunID               int64     `json:"run_id"`
	Timestamp           time.Time `json:"timestamp"`
	TotalRequests       int64     `json:"total_requests"`
	SuccessfulRequests  int64     `json:"successful_requests"`
	FailedRequests      int64     `json:"failed_requests"`
	ResponseTimeMs      float64   `json:"response_time_ms"`
	AverageResponseTime float64   `json:"average_response_time"`
	CurrentRps          float64   `json:"current_rps"`
	StatusCode          int       `json:"status_code"`
}

// Schedule fires an endpoint run on a cron expression. A due schedule is
// skipped (not queued) while another run holds the active slot.
type Schedule struct {
	ID         int64      `json:"id"`
	EndpointID int64      `json:"endpoint_id"`
	CronExpr   string     `json:"cron"`
	Enabled    bool       `json:"enabled"`
	LastRunAt  *time.Time `json:"last_run_at,omitempty"`
	NextRunAt  *time.Time `json:"next_run_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
