package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/unhackeddev/nfury/internal/domain"
)

// TransferStore implements project export and import.
type TransferStore struct {
	db        *sqlx.DB
	projects  *ProjectStore
	endpoints *EndpointStore
}

// NewTransferStore creates a TransferStore backed by the given database.
func NewTransferStore(db *sqlx.DB) *TransferStore {
	return &TransferStore{
		db:        db,
		projects:  NewProjectStore(db),
		endpoints: NewEndpointStore(db),
	}
}

// ExportProject serializes a project, its endpoints, and each endpoint's
// full run history. Snapshots are ephemeral telemetry and are left out.
// Returns (nil, nil) when the project does not exist.
func (s *TransferStore) ExportProject(ctx context.Context, projectID int64) (*domain.ProjectExport, error) {
	project, err := s.projects.GetProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("export project: %w", err)
	}
	if project == nil {
		return nil, nil
	}

	endpoints, err := s.endpoints.ListEndpoints(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("export project: %w", err)
	}

	runStore := NewRunStore(s.db)
	exports := make([]domain.ExportedEndpoint, 0, len(endpoints))
	for _, e := range endpoints {
		endpointID := e.ID
		runs, _, err := runStore.SearchRuns(ctx, domain.RunFilter{EndpointID: &endpointID})
		if err != nil {
			return nil, fmt.Errorf("export project runs: %w", err)
		}
		exports = append(exports, domain.ExportedEndpoint{Endpoint: e, Executions: runs})
	}

	return &domain.ProjectExport{
		Version:    domain.ExportVersion,
		ExportedAt: time.Now().UTC(),
		Project:    domain.ExportedProject{Project: *project, Endpoints: exports},
	}, nil
}

// ImportProject recreates an exported project in a single transaction. The
// project name gets " (Imported)" appended and every run receives a fresh
// token prefixed "imported-" so provenance stays visible. Any failure rolls
// the whole import back.
func (s *TransferStore) ImportProject(ctx context.Context, payload *domain.ProjectExport) (*domain.Project, error) {
	if payload.Version != domain.ExportVersion {
		return nil, fmt.Errorf("import project: unsupported export version %q", payload.Version)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("import project: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()

	authJSON, err := marshalJSONColumn(payload.Project.Auth)
	if err != nil {
		return nil, fmt.Errorf("import project: %w", err)
	}
	name := payload.Project.Name + " (Imported)"
	res, err := tx.ExecContext(ctx,
		`INSERT INTO projects (name, description, auth_json, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		name, payload.Project.Description, authJSON, now, now)
	if err != nil {
		return nil, fmt.Errorf("import project: %w", err)
	}
	projectID, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("import project id: %w", err)
	}

	for _, ee := range payload.Project.Endpoints {
		endpointID, err := importEndpoint(ctx, tx, projectID, ee.Endpoint, now)
		if err != nil {
			return nil, err
		}
		for _, run := range ee.Executions {
			if err := importRun(ctx, tx, endpointID, run); err != nil {
				return nil, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("import project: commit: %w", err)
	}

	return &domain.Project{
		ID:          projectID,
		Name:        name,
		Description: payload.Project.Description,
		Auth:        payload.Project.Auth,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func importEndpoint(ctx context.Context, tx *sqlx.Tx, projectID int64, e domain.Endpoint, now time.Time) (int64, error) {
	headersJSON, err := marshalJSONColumn(e.Headers)
	if err != nil {
		return 0, fmt.Errorf("import endpoint: %w", err)
	}
	authJSON, err := marshalJSONColumn(e.Auth)
	if err != nil {
		return 0, fmt.Errorf("import endpoint: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO endpoints (project_id, name, description, url, method, users,
		        requests, duration_seconds, content_type, body, insecure,
		        requires_auth, headers_json, auth_json, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		projectID, e.Name, e.Description, e.URL, string(e.Method), e.Users,
		nullInt(e.Requests), nullInt(e.DurationSeconds), e.ContentType,
		nullString(e.Body), e.Insecure, e.RequiresAuth, headersJSON, authJSON,
		now, now)
	if err != nil {
		return 0, fmt.Errorf("import endpoint %q: %w", e.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("import endpoint id: %w", err)
	}
	return id, nil
}

func importRun(ctx context.Context, tx *sqlx.Tx, endpointID int64, run domain.Run) error {
	codesJSON, err := marshalJSONColumn(run.StatusCodes)
	if err != nil {
		return fmt.Errorf("import run: %w", err)
	}

	token := "imported-" + uuid.NewString()
	var completedAt interface{}
	if run.CompletedAt != nil {
		completedAt = run.CompletedAt.UTC()
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (token, endpoint_id, url, method, users, target_requests,
		        target_duration_seconds, status, started_at, completed_at,
		        error_message, total_requests, successful_requests, failed_requests,
		        requests_per_second, average_response_time, min_response_time,
		        max_response_time, percentile_50, percentile_75, percentile_90,
		        percentile_95, percentile_99, elapsed_ms, status_codes_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		token, endpointID, run.URL, string(run.Method), run.Users,
		nullInt(run.TargetRequests), nullInt(run.TargetDuration),
		string(run.Status), run.StartedAt.UTC(), completedAt,
		nullString(run.ErrorMessage), run.TotalRequests, run.SuccessfulRequests,
		run.FailedRequests, run.RequestsPerSecond, run.AverageResponseTime,
		run.MinResponseTime, run.MaxResponseTime, run.Percentile50,
		run.Percentile75, run.Percentile90, run.Percentile95, run.Percentile99,
		run.ElapsedMs, codesJSON)
	if err != nil {
		return fmt.Errorf("import run %s: %w", run.Token, err)
	}
	return nil
}
