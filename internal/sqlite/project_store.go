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

// ProjectStore persists projects.
type ProjectStore struct {
	db *sqlx.DB
}

// NewProjectStore creates a ProjectStore backed by the given database.
func NewProjectStore(db *sqlx.DB) *ProjectStore {
	return &ProjectStore{db: db}
}

type projectRow struct {
	ID          int64          `db:"id"`
	Name        string         `db:"name"`
	Description string         `db:"description"`
	AuthJSON    sql.NullString `db:"auth_json"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func (r projectRow) toDomain() (domain.Project, error) {
	auth, err := unmarshalAuth(r.AuthJSON)
	if err != nil {
		return domain.Project{}, err
	}
	return domain.Project{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Auth:        auth,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}, nil
}

const projectColumns = `id, name, description, auth_json, created_at, updated_at`

// CreateProject inserts the project and fills its ID and timestamps.
func (s *ProjectStore) CreateProject(ctx context.Context, p *domain.Project) error {
	authJSON, err := marshalJSONColumn(p.Auth)
	if err != nil {
		return fmt.Errorf("create project: %w", err)
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (name, description, auth_json, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		p.Name, p.Description, authJSON, now, now)
	if err != nil {
		return fmt.Errorf("create project: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create project id: %w", err)
	}
	p.ID = id
	p.CreatedAt = now
	p.UpdatedAt = now
	return nil
}

// ListProjects returns all projects ordered by most recent update.
func (s *ProjectStore) ListProjects(ctx context.Context) ([]domain.Project, error) {
	var rows []projectRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+projectColumns+` FROM projects ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}

	result := make([]domain.Project, 0, len(rows))
	for _, r := range rows {
		p, err := r.toDomain()
		if err != nil {
			return nil, fmt.Errorf("list projects: %w", err)
		}
		result = append(result, p)
	}
	return result, nil
}

// GetProject returns the project or (nil, nil) when it does not exist.
func (s *ProjectStore) GetProject(ctx context.Context, id int64) (*domain.Project, error) {
	var row projectRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}

	p, err := row.toDomain()
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return &p, nil
}

// UpdateProject rewrites name and description. Returns domain.ErrNotFound
// when the project does not exist.
func (s *ProjectStore) UpdateProject(ctx context.Context, id int64, name, description string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET name = ?, description = ?, updated_at = ? WHERE id = ?`,
		name, description, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	return requireAffected(res, "update project")
}

// SetProjectAuth attaches or replaces the project's auth spec.
func (s *ProjectStore) SetProjectAuth(ctx context.Context, id int64, spec *domain.AuthSpec) error {
	authJSON, err := marshalJSONColumn(spec)
	if err != nil {
		return fmt.Errorf("set project auth: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET auth_json = ?, updated_at = ? WHERE id = ?`,
		authJSON, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set project auth: %w", err)
	}
	return requireAffected(res, "set project auth")
}

// ClearProjectAuth removes the project's auth spec.
func (s *ProjectStore) ClearProjectAuth(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET auth_json = NULL, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("clear project auth: %w", err)
	}
	return requireAffected(res, "clear project auth")
}

// DeleteProject removes the project; endpoints cascade via foreign key.
func (s *ProjectStore) DeleteProject(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return requireAffected(res, "delete project")
}

// requireAffected maps a zero-row write to domain.ErrNotFound.
func requireAffected(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
