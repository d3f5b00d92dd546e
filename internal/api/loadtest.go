package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/unhackeddev/nfury/internal/domain"
	"github.com/unhackeddev/nfury/internal/runner"
	"github.com/unhackeddev/nfury/internal/token"
)

// LoadRunner is the load test lifecycle facade. Implemented by the runner.
type LoadRunner interface {
	StartAdHocRun(ctx context.Context, req domain.RunRequest) (string, error)
	StartEndpointRun(ctx context.Context, endpointID int64, usersOverride *int) (string, error)
	Stop()
	IsRunning() bool
	ActiveToken() string
	TestAuth(ctx context.Context, spec *domain.AuthSpec, insecure bool) (*token.Credential, error)
}

// StartEndpointRunRequest is the JSON body for POST /api/v1/load/endpoints/{id}/start.
// Users optionally overrides the endpoint's saved concurrency for this run.
type StartEndpointRunRequest struct {
	Users *int `json:"users"`
}

// AuthTestRequest is the JSON body for POST /api/v1/load/auth-test.
type AuthTestRequest struct {
	Auth     *domain.AuthSpec `json:"auth"`
	Insecure bool             `json:"insecure"`
}

// MountLoadRoutes registers live load-control endpoints on the router.
func MountLoadRoutes(r chi.Router, srv *Server) {
	r.Post("/load/start", srv.HandleStartRun)
	r.Post("/load/endpoints/{endpointID}/start", srv.HandleStartEndpointRun)
	r.Post("/load/stop", srv.HandleStopRun)
	r.Get("/load/status", srv.HandleLoadStatus)
	r.Post("/load/auth-test", srv.HandleAuthTest)
}

// startErrorJSON maps run start failures to HTTP responses. The single run
// slot makes a busy slot a 409; auth preflight failures surface as 502
// because the fault is the upstream auth endpoint, not this server.
func startErrorJSON(w http.ResponseWriter, err error) {
	var authErr *runner.AuthError
	switch {
	case errors.Is(err, domain.ErrRunInProgress):
		errorJSON(w, "a load test is already running", "RUN_IN_PROGRESS", http.StatusConflict)
	case errors.Is(err, domain.ErrNotFound):
		errorJSON(w, "endpoint not found", "NOT_FOUND", http.StatusNotFound)
	case errors.As(err, &authErr):
		errorJSON(w, authErr.Error(), "AUTH_FAILED", http.StatusBadGateway)
	default:
		internalError(w, "failed to start run", err)
	}
}

// HandleStartRun starts an ad-hoc load run from an inline definition.
func (s *Server) HandleStartRun(w http.ResponseWriter, r *http.Request) {
	var req domain.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, "invalid request body", "INVALID_ARGUMENT", http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		errorJSON(w, err.Error(), "INVALID_ARGUMENT", http.StatusBadRequest)
		return
	}

	runToken, err := s.Load.StartAdHocRun(r.Context(), req)
	if err != nil {
		startErrorJSON(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"run_token": runToken,
		"status":    string(domain.RunStatusRunning),
	})
}

// HandleStartEndpointRun starts a run from a saved endpoint's configuration.
func (s *Server) HandleStartEndpointRun(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "endpointID")
	if !ok {
		errorJSON(w, "invalid endpoint id", "INVALID_ARGUMENT", http.StatusBadRequest)
		return
	}

	// The body is optional; an empty body means no overrides.
	var req StartEndpointRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		errorJSON(w, "invalid request body", "INVALID_ARGUMENT", http.StatusBadRequest)
		return
	}
	if req.Users != nil && *req.Users < 1 {
		errorJSON(w, "users must be at least 1", "INVALID_ARGUMENT", http.StatusBadRequest)
		return
	}

	runToken, err := s.Load.StartEndpointRun(r.Context(), id, req.Users)
	if err != nil {
		startErrorJSON(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"run_token": runToken,
		"status":    string(domain.RunStatusRunning),
	})
}

// HandleStopRun cancels the active run. Stopping when nothing is running is
// a successful no-op.
func (s *Server) HandleStopRun(w http.ResponseWriter, r *http.Request) {
	runToken := s.Load.ActiveToken()
	s.Load.Stop()

	writeJSON(w, http.StatusOK, map[string]any{
		"stopped":   runToken != "",
		"run_token": runToken,
	})
}

// HandleLoadStatus reports whether a run is active and, if so, its token
// and stored record.
func (s *Server) HandleLoadStatus(w http.ResponseWriter, r *http.Request) {
	runToken := s.Load.ActiveToken()
	if runToken == "" {
		writeJSON(w, http.StatusOK, map[string]any{"running": false})
		return
	}

	resp := map[string]any{
		"running":   true,
		"run_token": runToken,
	}
	if run, err := s.Runs.GetRunByToken(r.Context(), runToken); err == nil && run != nil {
		resp["run"] = run
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleAuthTest performs a one-off token fetch so users can verify an auth
// spec before attaching it to a project or endpoint.
func (s *Server) HandleAuthTest(w http.ResponseWriter, r *http.Request) {
	var req AuthTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, "invalid request body", "INVALID_ARGUMENT", http.StatusBadRequest)
		return
	}
	if req.Auth == nil || req.Auth.URL == "" || req.Auth.TokenPath == "" {
		errorJSON(w, "auth with url and token_path is required", "INVALID_ARGUMENT", http.StatusBadRequest)
		return
	}

	cred, err := s.Load.TestAuth(r.Context(), req.Auth, req.Insecure)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"header_name": cred.HeaderName,
		"token":       cred.Token,
	})
}
