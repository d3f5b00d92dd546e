package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/unhackeddev/nfury/internal/domain"
)

// EndpointStore defines the persistence interface for saved load targets.
type EndpointStore interface {
	CreateEndpoint(ctx context.Context, e *domain.Endpoint) error
	ListEndpoints(ctx context.Context, projectID int64) ([]domain.Endpoint, error)
	GetEndpoint(ctx context.Context, id int64) (*domain.Endpoint, error)
	UpdateEndpoint(ctx context.Context, e *domain.Endpoint) error
	DeleteEndpoint(ctx context.Context, id int64) error
}

// EndpointRequest is the JSON body for creating or updating an endpoint.
type EndpointRequest struct {
	Name            string            `json:"name"`
	Description     string            `json:"description"`
	URL             string            `json:"url"`
	Method          string            `json:"method"`
	Users           int               `json:"users"`
	Requests        *int              `json:"requests"`
	DurationSeconds *int              `json:"duration_seconds"`
	ContentType     string            `json:"content_type"`
	Body            *string           `json:"body"`
	Insecure        bool              `json:"insecure"`
	RequiresAuth    bool              `json:"requires_auth"`
	Headers         map[string]string `json:"headers"`
	Auth            *domain.AuthSpec  `json:"auth"`
}

// toEndpoint validates the request and builds the domain endpoint.
// Defaults mirror ad-hoc runs: GET, 10 users, 100-request budget when
// neither stop criterion is set.
func (req *EndpointRequest) toEndpoint(projectID int64) (*domain.Endpoint, error) {
	if req.Name == "" {
		return nil, errors.New("name is required")
	}
	if req.URL == "" {
		return nil, errors.New("url is required")
	}
	method, err := domain.ParseMethod(req.Method)
	if err != nil {
		return nil, err
	}
	if req.Users < 0 {
		return nil, errors.New("users must be positive")
	}
	if req.Requests != nil && req.DurationSeconds != nil {
		return nil, errors.New("requests and duration_seconds are mutually exclusive")
	}
	if req.Requests != nil && *req.Requests < 1 {
		return nil, errors.New("requests must be at least 1")
	}
	if req.DurationSeconds != nil && *req.DurationSeconds < 1 {
		return nil, errors.New("duration_seconds must be at least 1")
	}

	users := req.Users
	if users == 0 {
		users = 10
	}

	return &domain.Endpoint{
		ProjectID:       projectID,
		Name:            req.Name,
		Description:     req.Description,
		URL:             req.URL,
		Method:          method,
		Users:           users,
		Requests:        req.Requests,
		DurationSeconds: req.DurationSeconds,
		ContentType:     req.ContentType,
		Body:            req.Body,
		Insecure:        req.Insecure,
		RequiresAuth:    req.RequiresAuth,
		Headers:         req.Headers,
		Auth:            req.Auth,
	}, nil
}

// MountEndpointRoutes registers endpoint CRUD routes on the router.
// Creation and listing are nested under the owning project; reads, updates,
// and deletes address endpoints by their own ID.
func MountEndpointRoutes(r chi.Router, srv *Server) {
	r.Get("/projects/{projectID}/endpoints", srv.HandleListEndpoints)
	r.Post("/projects/{projectID}/endpoints", srv.HandleCreateEndpoint)
	r.Get("/endpoints/{endpointID}", srv.HandleGetEndpoint)
	r.Put("/endpoints/{endpointID}", srv.HandleUpdateEndpoint)
	r.Delete("/endpoints/{endpointID}", srv.HandleDeleteEndpoint)
}

// HandleListEndpoints returns all endpoints of a project.
func (s *Server) HandleListEndpoints(w http.ResponseWriter, r *http.Request) {
	projectID, ok := parseID(r, "projectID")
	if !ok {
		errorJSON(w, "invalid project id", "INVALID_ARGUMENT", http.StatusBadRequest)
		return
	}

	project, err := s.Projects.GetProject(r.Context(), projectID)
	if err != nil {
		internalError(w, "internal error", err)
		return
	}
	if project == nil {
		errorJSON(w, "project not found", "NOT_FOUND", http.StatusNotFound)
		return
	}

	endpoints, err := s.Endpoints.ListEndpoints(r.Context(), projectID)
	if err != nil {
		internalError(w, "internal error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"endpoints": endpoints,
		"total":     len(endpoints),
	})
}

// HandleCreateEndpoint saves a new load target under a project.
func (s *Server) HandleCreateEndpoint(w http.ResponseWriter, r *http.Request) {
	projectID, ok := parseID(r, "projectID")
	if !ok {
		errorJSON(w, "invalid project id", "INVALID_ARGUMENT", http.StatusBadRequest)
		return
	}

	project, err := s.Projects.GetProject(r.Context(), projectID)
	if err != nil {
		internalError(w, "internal error", err)
		return
	}
	if project == nil {
		errorJSON(w, "project not found", "NOT_FOUND", http.StatusNotFound)
		return
	}

	var req EndpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, "invalid request body", "INVALID_ARGUMENT", http.StatusBadRequest)
		return
	}

	endpoint, err := req.toEndpoint(projectID)
	if err != nil {
		errorJSON(w, err.Error(), "INVALID_ARGUMENT", http.StatusBadRequest)
		return
	}

	if err := s.Endpoints.CreateEndpoint(r.Context(), endpoint); err != nil {
		internalError(w, "internal error", err)
		return
	}

	s.invalidateProjectCache()

	writeJSON(w, http.StatusCreated, endpoint)
}

// HandleGetEndpoint returns a single endpoint by ID.
func (s *Server) HandleGetEndpoint(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "endpointID")
	if !ok {
		errorJSON(w, "invalid endpoint id", "INVALID_ARGUMENT", http.StatusBadRequest)
		return
	}

	endpoint, err := s.Endpoints.GetEndpoint(r.Context(), id)
	if err != nil {
		internalError(w, "internal error", err)
		return
	}
	if endpoint == nil {
		errorJSON(w, "endpoint not found", "NOT_FOUND", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, endpoint)
}

// HandleUpdateEndpoint replaces an endpoint's configuration. Past runs keep
// the configuration captured when they started.
func (s *Server) HandleUpdateEndpoint(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "endpointID")
	if !ok {
		errorJSON(w, "invalid endpoint id", "INVALID_ARGUMENT", http.StatusBadRequest)
		return
	}

	existing, err := s.Endpoints.GetEndpoint(r.Context(), id)
	if err != nil {
		internalError(w, "internal error", err)
		return
	}
	if existing == nil {
		errorJSON(w, "endpoint not found", "NOT_FOUND", http.StatusNotFound)
		return
	}

	var req EndpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, "invalid request body", "INVALID_ARGUMENT", http.StatusBadRequest)
		return
	}

	endpoint, err := req.toEndpoint(existing.ProjectID)
	if err != nil {
		errorJSON(w, err.Error(), "INVALID_ARGUMENT", http.StatusBadRequest)
		return
	}
	endpoint.ID = id
	endpoint.CreatedAt = existing.CreatedAt

	if err := s.Endpoints.UpdateEndpoint(r.Context(), endpoint); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			errorJSON(w, "endpoint not found", "NOT_FOUND", http.StatusNotFound)
			return
		}
		internalError(w, "internal error", err)
		return
	}

	s.invalidateProjectCache()

	writeJSON(w, http.StatusOK, endpoint)
}

// HandleDeleteEndpoint deletes an endpoint. Runs recorded against it are
// kept with their endpoint reference cleared.
func (s *Server) HandleDeleteEndpoint(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "endpointID")
	if !ok {
		errorJSON(w, "invalid endpoint id", "INVALID_ARGUMENT", http.StatusBadRequest)
		return
	}

	if err := s.Endpoints.DeleteEndpoint(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			errorJSON(w, "endpoint not found", "NOT_FOUND", http.StatusNotFound)
			return
		}
		internalError(w, "internal error", err)
		return
	}

	s.invalidateProjectCache()

	w.WriteHeader(http.StatusNoContent)
}
