package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/unhackeddev/nfury/internal/domain"
)

// ScheduleStore defines the persistence interface for schedules.
type ScheduleStore interface {
	CreateSchedule(ctx context.Context, sched *domain.Schedule) error
	ListSchedules(ctx context.Context) ([]domain.Schedule, error)
	GetSchedule(ctx context.Context, id int64) (*domain.Schedule, error)
	UpdateSchedule(ctx context.Context, sched *domain.Schedule) error
	DeleteSchedule(ctx context.Context, id int64) error
}

// CronValidator checks cron expressions against the scheduler's parser so
// the API rejects expressions the scheduler could never fire.
type CronValidator interface {
	Validate(cronExpr string) error
}

// CreateScheduleRequest is the JSON body for POST /api/v1/schedules.
type CreateScheduleRequest struct {
	EndpointID int64  `json:"endpoint_id"`
	Cron       string `json:"cron"`
	Enabled    *bool  `json:"enabled"`
}

// UpdateScheduleRequest is the JSON body for PUT /api/v1/schedules/{id}.
type UpdateScheduleRequest struct {
	Cron    *string `json:"cron"`
	Enabled *bool   `json:"enabled"`
}

// MountScheduleRoutes registers schedule endpoints on the router.
func MountScheduleRoutes(r chi.Router, srv *Server) {
	r.Get("/schedules", srv.HandleListSchedules)
	r.Post("/schedules", srv.HandleCreateSchedule)
	r.Get("/schedules/{scheduleID}", srv.HandleGetSchedule)
	r.Put("/schedules/{scheduleID}", srv.HandleUpdateSchedule)
	r.Delete("/schedules/{scheduleID}", srv.HandleDeleteSchedule)
}

// HandleListSchedules returns all schedules.
func (s *Server) HandleListSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := s.Schedules.ListSchedules(r.Context())
	if err != nil {
		internalError(w, "internal error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"schedules": schedules,
		"total":     len(schedules),
	})
}

// HandleGetSchedule returns a single schedule by ID.
func (s *Server) HandleGetSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "scheduleID")
	if !ok {
		errorJSON(w, "invalid schedule id", "INVALID_ARGUMENT", http.StatusBadRequest)
		return
	}

	schedule, err := s.Schedules.GetSchedule(r.Context(), id)
	if err != nil {
		internalError(w, "internal error", err)
		return
	}
	if schedule == nil {
		errorJSON(w, "schedule not found", "NOT_FOUND", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, schedule)
}

// HandleCreateSchedule creates a cron schedule for an endpoint.
func (s *Server) HandleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req CreateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, "invalid request body", "INVALID_ARGUMENT", http.StatusBadRequest)
		return
	}

	if req.EndpointID < 1 || req.Cron == "" {
		errorJSON(w, "endpoint_id and cron are required", "INVALID_ARGUMENT", http.StatusBadRequest)
		return
	}
	if s.Cron != nil {
		if err := s.Cron.Validate(req.Cron); err != nil {
			errorJSON(w, "invalid cron expression: "+err.Error(), "INVALID_ARGUMENT", http.StatusBadRequest)
			return
		}
	}

	endpoint, err := s.Endpoints.GetEndpoint(r.Context(), req.EndpointID)
	if err != nil {
		internalError(w, "internal error", err)
		return
	}
	if endpoint == nil {
		errorJSON(w, "endpoint not found", "NOT_FOUND", http.StatusNotFound)
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	schedule := &domain.Schedule{
		EndpointID: req.EndpointID,
		CronExpr:   req.Cron,
		Enabled:    enabled,
	}
	if err := s.Schedules.CreateSchedule(r.Context(), schedule); err != nil {
		internalError(w, "internal error", err)
		return
	}

	writeJSON(w, http.StatusCreated, schedule)
}

// HandleUpdateSchedule updates a schedule's cron expression or enabled flag.
// Changing the cron resets next_run_at so the scheduler recomputes it.
func (s *Server) HandleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "scheduleID")
	if !ok {
		errorJSON(w, "invalid schedule id", "INVALID_ARGUMENT", http.StatusBadRequest)
		return
	}

	var req UpdateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, "invalid request body", "INVALID_ARGUMENT", http.StatusBadRequest)
		return
	}

	schedule, err := s.Schedules.GetSchedule(r.Context(), id)
	if err != nil {
		internalError(w, "internal error", err)
		return
	}
	if schedule == nil {
		errorJSON(w, "schedule not found", "NOT_FOUND", http.StatusNotFound)
		return
	}

	if req.Cron != nil {
		if s.Cron != nil {
			if err := s.Cron.Validate(*req.Cron); err != nil {
				errorJSON(w, "invalid cron expression: "+err.Error(), "INVALID_ARGUMENT", http.StatusBadRequest)
				return
			}
		}
		schedule.CronExpr = *req.Cron
		schedule.NextRunAt = nil
	}
	if req.Enabled != nil {
		schedule.Enabled = *req.Enabled
	}

	if err := s.Schedules.UpdateSchedule(r.Context(), schedule); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			errorJSON(w, "schedule not found", "NOT_FOUND", http.StatusNotFound)
			return
		}
		internalError(w, "internal error", err)
		return
	}

	writeJSON(w, http.StatusOK, schedule)
}

// HandleDeleteSchedule deletes a schedule.
func (s *Server) HandleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "scheduleID")
	if !ok {
		errorJSON(w, "invalid schedule id", "INVALID_ARGUMENT", http.StatusBadRequest)
		return
	}

	if err := s.Schedules.DeleteSchedule(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			errorJSON(w, "schedule not found", "NOT_FOUND", http.StatusNotFound)
			return
		}
		internalError(w, "internal error", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
