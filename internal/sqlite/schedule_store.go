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

// ScheduleStore persists cron schedules that fire endpoint runs.
type ScheduleStore struct {
	db *sqlx.DB
}

// NewScheduleStore creates a ScheduleStore backed by the given database.
func NewScheduleStore(db *sqlx.DB) *ScheduleStore {
	return &ScheduleStore{db: db}
}

type scheduleRow struct {
	ID         int64        `db:"id"`
	EndpointID int64        `db:"endpoint_id"`
	CronExpr   string       `db:"cron_expr"`
	Enabled    bool         `db:"enabled"`
	LastRunAt  sql.NullTime `db:"last_run_at"`
	NextRunAt  sql.NullTime `db:"next_run_at"`
	CreatedAt  time.Time    `db:"created_at"`
	UpdatedAt  time.Time    `db:"updated_at"`
}

func (r scheduleRow) toDomain() domain.Schedule {
	s := domain.Schedule{
		ID:         r.ID,
		EndpointID: r.EndpointID,
		CronExpr:   r.CronExpr,
		Enabled:    r.Enabled,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
	if r.LastRunAt.Valid {
		t := r.LastRunAt.Time
		s.LastRunAt = &t
	}
	if r.NextRunAt.Valid {
		t := r.NextRunAt.Time
		s.NextRunAt = &t
	}
	return s
}

const scheduleColumns = `id, endpoint_id, cron_expr, enabled, last_run_at,
       next_run_at, created_at, updated_at`

// CreateSchedule inserts the schedule and fills its ID and timestamps.
func (s *ScheduleStore) CreateSchedule(ctx context.Context, sched *domain.Schedule) error {
	now := time.Now().UTC()
	var nextRun sql.NullTime
	if sched.NextRunAt != nil {
		nextRun = sql.NullTime{Time: sched.NextRunAt.UTC(), Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO schedules (endpoint_id, cron_expr, enabled, next_run_at,
		        created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sched.EndpointID, sched.CronExpr, sched.Enabled, nextRun, now, now)
	if err != nil {
		return fmt.Errorf("create schedule: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create schedule id: %w", err)
	}
	sched.ID = id
	sched.CreatedAt = now
	sched.UpdatedAt = now
	return nil
}

// ListSchedules returns all schedules ordered by id.
func (s *ScheduleStore) ListSchedules(ctx context.Context) ([]domain.Schedule, error) {
	var rows []scheduleRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+scheduleColumns+` FROM schedules ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}

	result := make([]domain.Schedule, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain())
	}
	return result, nil
}

// ListEnabledSchedules returns the schedules the scheduler should evaluate.
func (s *ScheduleStore) ListEnabledSchedules(ctx context.Context) ([]domain.Schedule, error) {
	var rows []scheduleRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+scheduleColumns+` FROM schedules WHERE enabled = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list enabled schedules: %w", err)
	}

	result := make([]domain.Schedule, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain())
	}
	return result, nil
}

// GetSchedule returns the schedule or (nil, nil) when it does not exist.
func (s *ScheduleStore) GetSchedule(ctx context.Context, id int64) (*domain.Schedule, error) {
	var row scheduleRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	sched := row.toDomain()
	return &sched, nil
}

// UpdateSchedule rewrites the cron expression and enabled flag.
func (s *ScheduleStore) UpdateSchedule(ctx context.Context, sched *domain.Schedule) error {
	var nextRun sql.NullTime
	if sched.NextRunAt != nil {
		nextRun = sql.NullTime{Time: sched.NextRunAt.UTC(), Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET cron_expr = ?, enabled = ?, next_run_at = ?,
		        updated_at = ?
		 WHERE id = ?`,
		sched.CronExpr, sched.Enabled, nextRun, time.Now().UTC(), sched.ID)
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	return requireAffected(res, "update schedule")
}

// MarkScheduleFired records a firing and the next due time.
func (s *ScheduleStore) MarkScheduleFired(ctx context.Context, id int64, firedAt, nextRun time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET last_run_at = ?, next_run_at = ?, updated_at = ? WHERE id = ?`,
		firedAt.UTC(), nextRun.UTC(), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark schedule fired: %w", err)
	}
	return requireAffected(res, "mark schedule fired")
}

// DeleteSchedule removes the schedule.
func (s *ScheduleStore) DeleteSchedule(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	return requireAffected(res, "delete schedule")
}
