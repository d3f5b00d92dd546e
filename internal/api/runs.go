package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/unhackeddev/nfury/internal/domain"
)

// RunStore defines the persistence interface for recorded runs.
type RunStore interface {
	GetRun(ctx context.Context, id int64) (*domain.Run, error)
	GetRunByToken(ctx context.Context, token string) (*domain.Run, error)
	GetRunWithSnapshots(ctx context.Context, id int64) (*domain.Run, []domain.Snapshot, error)
	GetRunWithContext(ctx context.Context, id int64) (*domain.Run, *domain.Endpoint, *domain.Project, error)
	SearchRuns(ctx context.Context, filter domain.RunFilter) ([]domain.Run, int, error)
	ListRecentRuns(ctx context.Context, limit int) ([]domain.Run, error)
	DeleteRun(ctx context.Context, id int64) error
	Statistics(ctx context.Context, filter domain.StatisticsFilter) (*domain.RunStatistics, error)
}

// MountRunRoutes registers run history endpoints on the router.
func MountRunRoutes(r chi.Router, srv *Server) {
	r.Get("/runs", srv.HandleListRuns)
	r.Get("/runs/recent", srv.HandleRecentRuns)
	r.Get("/runs/statistics", srv.HandleRunStatistics)
	r.Get("/runs/{runID}", srv.HandleGetRun)
	r.Get("/runs/{runID}/timeline", srv.HandleRunTimeline)
	r.Delete("/runs/{runID}", srv.HandleDeleteRun)
}

// parseRunFilter reads run search filters from query parameters.
// Filters: ?endpoint_id, ?project_id, ?status, ?from=RFC3339, ?to=RFC3339.
func parseRunFilter(r *http.Request) (domain.RunFilter, error) {
	limit, offset := parsePagination(r)
	filter := domain.RunFilter{Limit: limit, Offset: offset}

	if v := r.URL.Query().Get("endpoint_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return filter, errors.New("endpoint_id must be an integer")
		}
		filter.EndpointID = &id
	}
	if v := r.URL.Query().Get("project_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return filter, errors.New("project_id must be an integer")
		}
		filter.ProjectID = &id
	}
	if v := r.URL.Query().Get("status"); v != "" {
		filter.Status = domain.RunStatus(v)
	}
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errors.New("from must be RFC3339 format")
		}
		filter.From = &t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errors.New("to must be RFC3339 format")
		}
		filter.To = &t
	}
	return filter, nil
}

// HandleListRuns searches run history with filters and SQL-level pagination.
func (s *Server) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	filter, err := parseRunFilter(r)
	if err != nil {
		errorJSON(w, err.Error(), "INVALID_ARGUMENT", http.StatusBadRequest)
		return
	}

	runs, total, err := s.Runs.SearchRuns(r.Context(), filter)
	if err != nil {
		internalError(w, "internal error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"runs":  runs,
		"total": total,
	})
}

// HandleRecentRuns returns the most recently started runs.
func (s *Server) HandleRecentRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := parsePagination(r)

	runs, err := s.Runs.ListRecentRuns(r.Context(), limit)
	if err != nil {
		internalError(w, "internal error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"runs":  runs,
		"total": len(runs),
	})
}

// HandleGetRun returns a single run by ID together with the endpoint and
// project it ran against. Both are null for ad-hoc runs and for runs whose
// endpoint was deleted.
func (s *Server) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "runID")
	if !ok {
		errorJSON(w, "invalid run id", "INVALID_ARGUMENT", http.StatusBadRequest)
		return
	}

	run, endpoint, project, err := s.Runs.GetRunWithContext(r.Context(), id)
	if err != nil {
		internalError(w, "internal error", err)
		return
	}
	if run == nil {
		errorJSON(w, "run not found", "NOT_FOUND", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"run":      run,
		"endpoint": endpoint,
		"project":  project,
	})
}

// HandleRunTimeline returns a run with its persisted snapshot timeline in
// capture order.
func (s *Server) HandleRunTimeline(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "runID")
	if !ok {
		errorJSON(w, "invalid run id", "INVALID_ARGUMENT", http.StatusBadRequest)
		return
	}

	run, snapshots, err := s.Runs.GetRunWithSnapshots(r.Context(), id)
	if err != nil {
		internalError(w, "internal error", err)
		return
	}
	if run == nil {
		errorJSON(w, "run not found", "NOT_FOUND", http.StatusNotFound)
		return
	}
	if snapshots == nil {
		snapshots = []domain.Snapshot{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"run":       run,
		"snapshots": snapshots,
	})
}

// HandleDeleteRun deletes a run and its snapshots.
func (s *Server) HandleDeleteRun(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "runID")
	if !ok {
		errorJSON(w, "invalid run id", "INVALID_ARGUMENT", http.StatusBadRequest)
		return
	}

	if err := s.Runs.DeleteRun(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			errorJSON(w, "run not found", "NOT_FOUND", http.StatusNotFound)
			return
		}
		internalError(w, "internal error", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleRunStatistics summarizes run history, optionally narrowed to a
// project or endpoint via ?project_id / ?endpoint_id.
func (s *Server) HandleRunStatistics(w http.ResponseWriter, r *http.Request) {
	var filter domain.StatisticsFilter

	if v := r.URL.Query().Get("project_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errorJSON(w, "project_id must be an integer", "INVALID_ARGUMENT", http.StatusBadRequest)
			return
		}
		filter.ProjectID = &id
	}
	if v := r.URL.Query().Get("endpoint_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errorJSON(w, "endpoint_id must be an integer", "INVALID_ARGUMENT", http.StatusBadRequest)
			return
		}
		filter.EndpointID = &id
	}

	stats, err := s.Runs.Statistics(r.Context(), filter)
	if err != nil {
		internalError(w, "internal error", err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
