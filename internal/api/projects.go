package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/unhackeddev/nfury/internal/domain"
)

// ProjectStore defines the persistence interface for projects.
// Implemented by the sqlite store (production) and memory stores (tests).
type ProjectStore interface {
	CreateProject(ctx context.Context, p *domain.Project) error
	ListProjects(ctx context.Context) ([]domain.Project, error)
	GetProject(ctx context.Context, id int64) (*domain.Project, error)
	UpdateProject(ctx context.Context, id int64, name, description string) error
	SetProjectAuth(ctx context.Context, id int64, spec *domain.AuthSpec) error
	ClearProjectAuth(ctx context.Context, id int64) error
	DeleteProject(ctx context.Context, id int64) error
}

// projectListCacheKey is the single cache key for the full project list.
const projectListCacheKey = "all"

// CreateProjectRequest is the JSON body for POST /api/v1/projects.
type CreateProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// MountProjectRoutes registers project endpoints on the router.
func MountProjectRoutes(r chi.Router, srv *Server) {
	r.Get("/projects", srv.HandleListProjects)
	r.Post("/projects", srv.HandleCreateProject)
	r.Get("/projects/{projectID}", srv.HandleGetProject)
	r.Put("/projects/{projectID}", srv.HandleUpdateProject)
	r.Delete("/projects/{projectID}", srv.HandleDeleteProject)
	r.Put("/projects/{projectID}/auth", srv.HandleSetProjectAuth)
	r.Delete("/projects/{projectID}/auth", srv.HandleClearProjectAuth)
	r.Get("/projects/{projectID}/export", srv.HandleExportProject)
	r.Post("/projects/import", srv.HandleImportProject)
}

// HandleListProjects returns all projects, most recently updated first.
// Results are cached briefly because clients poll this list.
func (s *Server) HandleListProjects(w http.ResponseWriter, r *http.Request) {
	var projects []domain.Project

	if s.ProjectCache != nil {
		if cached, ok := s.ProjectCache.Get(projectListCacheKey); ok {
			projects = cached
		}
	}

	if projects == nil {
		var err error
		projects, err = s.Projects.ListProjects(r.Context())
		if err != nil {
			internalError(w, "internal error", err)
			return
		}
		if s.ProjectCache != nil {
			s.ProjectCache.Set(projectListCacheKey, projects)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"projects": projects,
		"total":    len(projects),
	})
}

// HandleGetProject returns a single project by ID.
func (s *Server) HandleGetProject(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "projectID")
	if !ok {
		errorJSON(w, "invalid project id", "INVALID_ARGUMENT", http.StatusBadRequest)
		return
	}

	project, err := s.Projects.GetProject(r.Context(), id)
	if err != nil {
		internalError(w, "internal error", err)
		return
	}
	if project == nil {
		errorJSON(w, "project not found", "NOT_FOUND", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, project)
}

// HandleCreateProject creates a new project.
func (s *Server) HandleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, "invalid request body", "INVALID_ARGUMENT", http.StatusBadRequest)
		return
	}

	if req.Name == "" {
		errorJSON(w, "name is required", "INVALID_ARGUMENT", http.StatusBadRequest)
		return
	}

	project := &domain.Project{
		Name:        req.Name,
		Description: req.Description,
	}
	if err := s.Projects.CreateProject(r.Context(), project); err != nil {
		internalError(w, "internal error", err)
		return
	}

	s.invalidateProjectCache()

	writeJSON(w, http.StatusCreated, project)
}

// HandleUpdateProject updates a project's name and description.
func (s *Server) HandleUpdateProject(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "projectID")
	if !ok {
		errorJSON(w, "invalid project id", "INVALID_ARGUMENT", http.StatusBadRequest)
		return
	}

	var req CreateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, "invalid request body", "INVALID_ARGUMENT", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		errorJSON(w, "name is required", "INVALID_ARGUMENT", http.StatusBadRequest)
		return
	}

	if err := s.Projects.UpdateProject(r.Context(), id, req.Name, req.Description); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			errorJSON(w, "project not found", "NOT_FOUND", http.StatusNotFound)
			return
		}
		internalError(w, "internal error", err)
		return
	}

	s.invalidateProjectCache()

	project, err := s.Projects.GetProject(r.Context(), id)
	if err != nil {
		internalError(w, "internal error", err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

// HandleDeleteProject deletes a project and, via cascade, its endpoints and
// schedules. Historical runs survive with a detached endpoint reference.
func (s *Server) HandleDeleteProject(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "projectID")
	if !ok {
		errorJSON(w, "invalid project id", "INVALID_ARGUMENT", http.StatusBadRequest)
		return
	}

	if err := s.Projects.DeleteProject(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			errorJSON(w, "project not found", "NOT_FOUND", http.StatusNotFound)
			return
		}
		internalError(w, "internal error", err)
		return
	}

	s.invalidateProjectCache()

	w.WriteHeader(http.StatusNoContent)
}

// HandleSetProjectAuth attaches or replaces the project's shared auth spec.
func (s *Server) HandleSetProjectAuth(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "projectID")
	if !ok {
		errorJSON(w, "invalid project id", "INVALID_ARGUMENT", http.StatusBadRequest)
		return
	}

	var spec domain.AuthSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		errorJSON(w, "invalid request body", "INVALID_ARGUMENT", http.StatusBadRequest)
		return
	}
	if spec.URL == "" || spec.TokenPath == "" {
		errorJSON(w, "url and token_path are required", "INVALID_ARGUMENT", http.StatusBadRequest)
		return
	}
	if _, err := domain.ParseMethod(spec.Method); err != nil {
		errorJSON(w, err.Error(), "INVALID_ARGUMENT", http.StatusBadRequest)
		return
	}

	if err := s.Projects.SetProjectAuth(r.Context(), id, &spec); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			errorJSON(w, "project not found", "NOT_FOUND", http.StatusNotFound)
			return
		}
		internalError(w, "internal error", err)
		return
	}

	s.invalidateProjectCache()

	w.WriteHeader(http.StatusNoContent)
}

// HandleClearProjectAuth removes the project's shared auth spec.
func (s *Server) HandleClearProjectAuth(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "projectID")
	if !ok {
		errorJSON(w, "invalid project id", "INVALID_ARGUMENT", http.StatusBadRequest)
		return
	}

	if err := s.Projects.ClearProjectAuth(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			errorJSON(w, "project not found", "NOT_FOUND", http.StatusNotFound)
			return
		}
		internalError(w, "internal error", err)
		return
	}

	s.invalidateProjectCache()

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) invalidateProjectCache() {
	if s.ProjectCache != nil {
		s.ProjectCache.Clear()
	}
}
