package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/unhackeddev/nfury/internal/domain"
)

// EndpointStore persists saved load targets.
type EndpointStore struct {
	db *sqlx.DB
}

// NewEndpointStore creates an EndpointStore backed by the given database.
func NewEndpointStore(db *sqlx.DB) *EndpointStore {
	return &EndpointStore{db: db}
}

type endpointRow struct {
	ID              int64          `db:"id"`
	ProjectID       int64          `db:"project_id"`
	Name            string         `db:"name"`
	Description     string         `db:"description"`
	URL             string         `db:"url"`
	Method          string         `db:"method"`
	Users           int            `db:"users"`
	Requests        sql.NullInt64  `db:"requests"`
	DurationSeconds sql.NullInt64  `db:"duration_seconds"`
	ContentType     string         `db:"content_type"`
	Body            sql.NullString `db:"body"`
	Insecure        bool           `db:"insecure"`
	RequiresAuth    bool           `db:"requires_auth"`
	HeadersJSON     sql.NullString `db:"headers_json"`
	AuthJSON        sql.NullString `db:"auth_json"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

func (r endpointRow) toDomain() (domain.Endpoint, error) {
	headers, err := unmarshalHeaders(r.HeadersJSON)
	if err != nil {
		return domain.Endpoint{}, err
	}
	auth, err := unmarshalAuth(r.AuthJSON)
	if err != nil {
		return domain.Endpoint{}, err
	}
	return domain.Endpoint{
		ID:              r.ID,
		ProjectID:       r.ProjectID,
		Name:            r.Name,
		Description:     r.Description,
		URL:             r.URL,
		Method:          domain.HTTPMethod(r.Method),
		Users:           r.Users,
		Requests:        intPtr(r.Requests),
		DurationSeconds: intPtr(r.DurationSeconds),
		ContentType:     r.ContentType,
		Body:            stringPtr(r.Body),
		Insecure:        r.Insecure,
		RequiresAuth:    r.RequiresAuth,
		Headers:         headers,
		Auth:            auth,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}, nil
}

const endpointColumns = `id, project_id, name, description, url, method, users,
       requests, duration_seconds, content_type, body, insecure, requires_auth,
       headers_json, auth_json, created_at, updated_at`

// CreateEndpoint inserts the endpoint and refreshes the owning project's
// updated_at so project ordering reflects endpoint activity.
func (s *EndpointStore) CreateEndpoint(ctx context.Context, e *domain.Endpoint) error {
	headersJSON, err := marshalJSONColumn(e.Headers)
	if err != nil {
		return fmt.Errorf("create endpoint: %w", err)
	}
	authJSON, err := marshalJSONColumn(e.Auth)
	if err != nil {
		return fmt.Errorf("create endpoint: %w", err)
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO endpoints (project_id, name, description, url, method, users,
		        requests, duration_seconds, content_type, body, insecure,
		        requires_auth, headers_json, auth_json, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ProjectID, e.Name, e.Description, e.URL, string(e.Method), e.Users,
		nullInt(e.Requests), nullInt(e.DurationSeconds), e.ContentType,
		nullString(e.Body), e.Insecure, e.RequiresAuth, headersJSON, authJSON,
		now, now)
	if err != nil {
		return fmt.Errorf("create endpoint: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create endpoint id: %w", err)
	}
	e.ID = id
	e.CreatedAt = now
	e.UpdatedAt = now

	return s.touchProject(ctx, e.ProjectID, now)
}

// ListEndpoints returns a project's endpoints ordered by name.
func (s *EndpointStore) ListEndpoints(ctx context.Context, projectID int64) ([]domain.Endpoint, error) {
	var rows []endpointRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+endpointColumns+` FROM endpoints WHERE project_id = ? ORDER BY name`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("list endpoints: %w", err)
	}

	result := make([]domain.Endpoint, 0, len(rows))
	for _, r := range rows {
		e, err := r.toDomain()
		if err != nil {
			return nil, fmt.Errorf("list endpoints: %w", err)
		}
		result = append(result, e)
	}
	return result, nil
}

// GetEndpoint returns the endpoint or (nil, nil) when it does not exist.
func (s *EndpointStore) GetEndpoint(ctx context.Context, id int64) (*domain.Endpoint, error) {
	var row endpointRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+endpointColumns+` FROM endpoints WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get endpoint: %w", err)
	}

	e, err := row.toDomain()
	if err != nil {
		return nil, fmt.Errorf("get endpoint: %w", err)
	}
	return &e, nil
}

// UpdateEndpoint rewrites the endpoint's mutable fields and refreshes the
// owning project's updated_at.
func (s *EndpointStore) UpdateEndpoint(ctx context.Context, e *domain.Endpoint) error {
	headersJSON, err := marshalJSONColumn(e.Headers)
	if err != nil {
		return fmt.Errorf("update endpoint: %w", err)
	}
	authJSON, err := marshalJSONColumn(e.Auth)
	if err != nil {
		return fmt.Errorf("update endpoint: %w", err)
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE endpoints SET name = ?, description = ?, url = ?, method = ?,
		        users = ?, requests = ?, duration_seconds = ?, content_type = ?,
		        body = ?, insecure = ?, requires_auth = ?, headers_json = ?,
		        auth_json = ?, updated_at = ?
		 WHERE id = ?`,
		e.Name, e.Description, e.URL, string(e.Method), e.Users,
		nullInt(e.Requests), nullInt(e.DurationSeconds), e.ContentType,
		nullString(e.Body), e.Insecure, e.RequiresAuth, headersJSON, authJSON,
		now, e.ID)
	if err != nil {
		return fmt.Errorf("update endpoint: %w", err)
	}
	if err := requireAffected(res, "update endpoint"); err != nil {
		return err
	}
	e.UpdatedAt = now

	return s.touchProject(ctx, e.ProjectID, now)
}

// DeleteEndpoint removes the endpoint. Runs referencing it keep their
// captured configuration; their endpoint_id is set NULL by the foreign key.
func (s *EndpointStore) DeleteEndpoint(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM endpoints WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete endpoint: %w", err)
	}
	return requireAffected(res, "delete endpoint")
}

func (s *EndpointStore) touchProject(ctx context.Context, projectID int64, now time.Time) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE projects SET updated_at = ? WHERE id = ?`, now, projectID); err != nil {
		return fmt.Errorf("touch project: %w", err)
	}
	return nil
}
