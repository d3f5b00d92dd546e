// Package runner owns the run lifecycle: the single active run slot, token
// preflight, engine execution, snapshot fan-out, and terminal persistence.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/unhackeddev/nfury/internal/domain"
	"github.com/unhackeddev/nfury/internal/engine"
	"github.com/unhackeddev/nfury/internal/stream"
	"github.com/unhackeddev/nfury/internal/token"
)

// snapshotEvery is the persistence sampling rate: every Nth live sample is
// written to the store. The stream receives every sample.
const snapshotEvery = 10

// snapshotQueueSize bounds the async snapshot writer. A full queue drops
// the snapshot rather than stalling a worker.
const snapshotQueueSize = 64

// RunStore is the slice of the run store the runner writes through.
type RunStore interface {
	CreateRun(ctx context.Context, run *domain.Run) error
	CompleteRun(ctx context.Context, token string, agg domain.RunAggregate) error
	FailRun(ctx context.Context, token, message string, agg *domain.RunAggregate) error
	CancelRun(ctx context.Context, token string, agg domain.RunAggregate) error
}

// SnapshotStore persists the sparse metric timeline.
type SnapshotStore interface {
	AppendSnapshot(ctx context.Context, runToken string, sample domain.MetricSample) error
}

// EndpointStore resolves saved endpoints for endpoint runs.
type EndpointStore interface {
	GetEndpoint(ctx context.Context, id int64) (*domain.Endpoint, error)
}

// ProjectStore resolves a project's shared auth spec.
type ProjectStore interface {
	GetProject(ctx context.Context, id int64) (*domain.Project, error)
}

// TokenFetcher acquires a bearer credential from an auth spec.
type TokenFetcher interface {
	Fetch(ctx context.Context, spec *domain.AuthSpec, insecure bool) (*token.Credential, error)
}

// AuthError wraps a token preflight failure so the façade can map it to a
// distinct result.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return fmt.Sprintf("authentication failed: %v", e.Err) }

func (e *AuthError) Unwrap() error { return e.Err }

// Runner coordinates load runs. At most one run is active at a time; a
// second start is refused with domain.ErrRunInProgress, never queued.
type Runner struct {
	runs      RunStore
	snapshots SnapshotStore
	endpoints EndpointStore
	projects  ProjectStore
	hub       *stream.Hub
	tokens    TokenFetcher

	mu     sync.Mutex
	active *activeRun
}

type activeRun struct {
	token  string
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Runner wired to its stores, stream hub, and token fetcher.
func New(runs RunStore, snapshots SnapshotStore, endpoints EndpointStore, projects ProjectStore, hub *stream.Hub, tokens TokenFetcher) *Runner {
	return &Runner{
		runs:      runs,
		snapshots: snapshots,
		endpoints: endpoints,
		projects:  projects,
		hub:       hub,
		tokens:    tokens,
	}
}

// StartEndpointRun starts a run from a saved endpoint, optionally
// overriding its user count. The endpoint's configuration is captured onto
// the run record, so later endpoint edits do not rewrite history.
func (r *Runner) StartEndpointRun(ctx context.Context, endpointID int64, usersOverride *int) (string, error) {
	endpoint, err := r.endpoints.GetEndpoint(ctx, endpointID)
	if err != nil {
		return "", fmt.Errorf("start endpoint run: %w", err)
	}
	if endpoint == nil {
		return "", domain.ErrNotFound
	}

	users := endpoint.Users
	if usersOverride != nil && *usersOverride > 0 {
		users = *usersOverride
	}

	var body string
	if endpoint.Body != nil {
		body = *endpoint.Body
	}
	cfg := engine.Config{
		URL:             endpoint.URL,
		Method:          endpoint.Method,
		Users:           users,
		Requests:        endpoint.Requests,
		DurationSeconds: endpoint.DurationSeconds,
		Body:            body,
		ContentType:     endpoint.ContentType,
		Headers:         endpoint.Headers,
		Insecure:        endpoint.Insecure,
	}
	if cfg.Requests == nil && cfg.DurationSeconds == nil {
		budget := domain.DefaultRequestBudget
		cfg.Requests = &budget
	}

	auth, err := r.effectiveAuth(ctx, endpoint)
	if err != nil {
		return "", err
	}

	return r.start(ctx, cfg, auth, &endpoint.ID)
}

// StartAdHocRun starts a run from an inline request.
func (r *Runner) StartAdHocRun(ctx context.Context, req domain.RunRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", fmt.Errorf("invalid run request: %w", err)
	}

	cfg := engine.Config{
		URL:             req.URL,
		Method:          domain.HTTPMethod(req.Method),
		Users:           req.Users,
		Requests:        req.Requests,
		DurationSeconds: req.DurationSeconds,
		Body:            req.Body,
		ContentType:     req.ContentType,
		Headers:         req.Headers,
		Insecure:        req.Insecure,
	}
	return r.start(ctx, cfg, req.Auth, nil)
}

// effectiveAuth resolves the auth spec for an endpoint: its own override
// first, otherwise the owning project's spec when the endpoint requires
// auth.
func (r *Runner) effectiveAuth(ctx context.Context, endpoint *domain.Endpoint) (*domain.AuthSpec, error) {
	if endpoint.Auth != nil {
		return endpoint.Auth, nil
	}
	if !endpoint.RequiresAuth {
		return nil, nil
	}
	project, err := r.projects.GetProject(ctx, endpoint.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("resolve project auth: %w", err)
	}
	if project == nil || project.Auth == nil {
		return nil, &AuthError{Err: errors.New("endpoint requires auth but no auth spec is configured")}
	}
	return project.Auth, nil
}

// start acquires the run slot, persists the run row, performs the token
// preflight, and launches the engine in the background. It returns the run
// token as soon as the run is underway.
func (r *Runner) start(ctx context.Context, cfg engine.Config, auth *domain.AuthSpec, endpointID *int64) (string, error) {
	runToken := uuid.NewString()
	runCtx, cancel := context.WithCancel(context.Background())
	active := &activeRun{token: runToken, cancel: cancel, done: make(chan struct{})}

	r.mu.Lock()
	if r.active != nil {
		r.mu.Unlock()
		cancel()
		return "", domain.ErrRunInProgress
	}
	r.active = active
	r.mu.Unlock()

	release := func() {
		cancel()
		close(active.done)
		r.mu.Lock()
		if r.active == active {
			r.active = nil
		}
		r.mu.Unlock()
	}

	run := &domain.Run{
		Token:          runToken,
		EndpointID:     endpointID,
		URL:            cfg.URL,
		Method:         cfg.Method,
		Users:          cfg.Users,
		TargetRequests: cfg.Requests,
		TargetDuration: cfg.DurationSeconds,
		Status:         domain.RunStatusRunning,
		StartedAt:      time.Now().UTC(),
	}
	if err := r.runs.CreateRun(ctx, run); err != nil {
		release()
		return "", fmt.Errorf("persist run: %w", err)
	}

	if auth != nil {
		cred, err := r.preflightAuth(ctx, runToken, auth, cfg.Insecure)
		if err != nil {
			message := err.Error()
			if storeErr := r.runs.FailRun(ctx, runToken, message, nil); storeErr != nil {
				slog.Error("persist auth failure", "run_token", runToken, "error", storeErr)
			}
			_ = r.hub.PublishReliable(stream.EventTestError, map[string]string{
				"runToken": runToken,
				"message":  message,
			})
			release()
			return "", &AuthError{Err: err}
		}
		cfg.AuthHeaderName = cred.HeaderName
		cfg.AuthHeaderValue = cred.HeaderValue
	}

	writer := newSnapshotWriter(r.snapshots, runToken)
	eng := engine.New(runToken, cfg, func(sample domain.MetricSample) {
		if err := r.hub.Publish(stream.EventMetricReceived, sample); err != nil {
			slog.Warn("publish metric", "run_token", runToken, "error", err)
		}
		writer.offer(sample)
	})

	slog.Info("run started", "run_token", runToken, "url", cfg.URL, "users", cfg.Users)

	go func() {
		defer release()
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("run panicked", "run_token", runToken, "panic", rec)
				r.failAfterPanic(runToken, rec)
			}
		}()
		agg := eng.Run(runCtx)
		writer.close()
		r.finish(runCtx, runToken, agg)
	}()

	return runToken, nil
}

// preflightAuth fetches the bearer token, emitting the authentication
// events around the attempt.
func (r *Runner) preflightAuth(ctx context.Context, runToken string, auth *domain.AuthSpec, insecure bool) (*token.Credential, error) {
	_ = r.hub.PublishReliable(stream.EventAuthStarted, map[string]string{"runToken": runToken})

	cred, err := r.tokens.Fetch(ctx, auth, insecure)
	if err != nil {
		_ = r.hub.PublishReliable(stream.EventAuthFailed, map[string]string{
			"runToken": runToken,
			"message":  err.Error(),
		})
		return nil, err
	}

	_ = r.hub.PublishReliable(stream.EventAuthSuccess, map[string]string{"runToken": runToken})
	return cred, nil
}

// finish persists the terminal state and only then emits the terminal
// event, so a subscriber reacting to the event always observes the stored
// result.
func (r *Runner) finish(runCtx context.Context, runToken string, agg domain.RunAggregate) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cancelled := runCtx.Err() != nil
	if cancelled {
		// No terminal stream event on cancellation: the caller asked for the
		// stop, so only the persisted Cancelled status (with the partial
		// aggregate) records it.
		if err := r.runs.CancelRun(ctx, runToken, agg); err != nil {
			slog.Error("persist cancelled run", "run_token", runToken, "error", err)
		}
		slog.Info("run cancelled", "run_token", runToken, "total_requests", agg.TotalRequests)
		return
	}

	if err := r.runs.CompleteRun(ctx, runToken, agg); err != nil {
		slog.Error("persist completed run", "run_token", runToken, "error", err)
		message := fmt.Sprintf("persist results: %v", err)
		if failErr := r.runs.FailRun(ctx, runToken, message, &agg); failErr != nil {
			slog.Error("persist run failure", "run_token", runToken, "error", failErr)
		}
		_ = r.hub.PublishReliable(stream.EventTestError, map[string]string{
			"runToken": runToken,
			"message":  message,
		})
		return
	}

	_ = r.hub.PublishReliable(stream.EventTestCompleted, agg)
	slog.Info("run completed", "run_token", runToken,
		"total_requests", agg.TotalRequests, "peak_rps", agg.RequestsPerSecond)
}

// failAfterPanic transitions a run that blew up mid-flight to Failed and
// notifies observers, so a panic anywhere in the run path never takes the
// process down or wedges the run in Running.
func (r *Runner) failAfterPanic(runToken string, rec any) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	message := fmt.Sprintf("internal error: %v", rec)
	if err := r.runs.FailRun(ctx, runToken, message, nil); err != nil {
		slog.Error("persist panicked run", "run_token", runToken, "error", err)
	}
	_ = r.hub.PublishReliable(stream.EventTestError, map[string]string{
		"runToken": runToken,
		"message":  message,
	})
}

// Stop cancels the active run. Stopping when idle is a successful no-op.
func (r *Runner) Stop() {
	r.mu.Lock()
	active := r.active
	r.mu.Unlock()

	if active == nil {
		return
	}
	slog.Info("run stop requested", "run_token", active.token)
	active.cancel()
}

// IsRunning reports whether a run currently holds the slot.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil
}

// ActiveToken returns the active run's token, or "" when idle.
func (r *Runner) ActiveToken() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return ""
	}
	return r.active.token
}

// TestAuth performs a one-off token fetch without starting a run.
func (r *Runner) TestAuth(ctx context.Context, spec *domain.AuthSpec, insecure bool) (*token.Credential, error) {
	return r.tokens.Fetch(ctx, spec, insecure)
}

// Shutdown stops the active run and waits for it to finish persisting, or
// returns early when ctx expires.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	active := r.active
	r.mu.Unlock()

	if active == nil {
		return nil
	}
	active.cancel()

	select {
	case <-active.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown: %w", ctx.Err())
	}
}
