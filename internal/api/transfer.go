package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/unhackeddev/nfury/internal/domain"
)

// TransferStore defines the export/import interface for project portability.
type TransferStore interface {
	ExportProject(ctx context.Context, projectID int64) (*domain.ProjectExport, error)
	ImportProject(ctx context.Context, payload *domain.ProjectExport) (*domain.Project, error)
}

// HandleExportProject returns a portable JSON envelope with the project,
// its endpoints, and their run history. Snapshots are not exported.
func (s *Server) HandleExportProject(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "projectID")
	if !ok {
		errorJSON(w, "invalid project id", "INVALID_ARGUMENT", http.StatusBadRequest)
		return
	}

	export, err := s.Transfer.ExportProject(r.Context(), id)
	if err != nil {
		internalError(w, "internal error", err)
		return
	}
	if export == nil {
		errorJSON(w, "project not found", "NOT_FOUND", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", export.Project.Name+".json"))
	writeJSON(w, http.StatusOK, export)
}

// HandleImportProject creates a project from an export envelope. The import
// runs in one transaction: a failure part-way leaves nothing behind.
func (s *Server) HandleImportProject(w http.ResponseWriter, r *http.Request) {
	var payload domain.ProjectExport
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		errorJSON(w, "invalid request body", "INVALID_ARGUMENT", http.StatusBadRequest)
		return
	}
	if payload.Version != domain.ExportVersion {
		errorJSON(w, fmt.Sprintf("unsupported export version %q", payload.Version),
			"INVALID_ARGUMENT", http.StatusBadRequest)
		return
	}
	if payload.Project.Name == "" {
		errorJSON(w, "project name is required", "INVALID_ARGUMENT", http.StatusBadRequest)
		return
	}

	project, err := s.Transfer.ImportProject(r.Context(), &payload)
	if err != nil {
		internalError(w, "import failed", err)
		return
	}

	s.invalidateProjectCache()

	writeJSON(w, http.StatusCreated, project)
}
