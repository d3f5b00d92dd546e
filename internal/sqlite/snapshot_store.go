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

// SnapshotStore persists the sparse metric timeline written during a run.
type SnapshotStore struct {
	db *sqlx.DB
}

// NewSnapshotStore creates a SnapshotStore backed by the given database.
func NewSnapshotStore(db *sqlx.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

type snapshotRow struct {
	ID              int64     `db:"id"`
	RunID           int64     `db:"run_id"`
	Timestamp       time.Time `db:"timestamp"`
	TotalRequests   int64     `db:"total_requests"`
	SuccessRequests int64     `db:"successful_requests"`
	FailedRequests  int64     `db:"failed_requests"`
	ResponseTimeMs  float64   `db:"response_time_ms"`
	AvgRt           float64   `db:"average_response_time"`
	CurrentRps      float64   `db:"current_rps"`
	StatusCode      int       `db:"status_code"`
}

func (r snapshotRow) toDomain() domain.Snapshot {
	return domain.Snapshot{
		ID:                  r.ID,
		RunID:               r.RunID,
		Timestamp:           r.Timestamp,
		TotalRequests:       r.TotalRequests,
		SuccessfulRequests:  r.SuccessRequests,
		FailedRequests:      r.FailedRequests,
		ResponseTimeMs:      r.ResponseTimeMs,
		AverageResponseTime: r.AvgRt,
		CurrentRps:          r.CurrentRps,
		StatusCode:          r.StatusCode,
	}
}

const snapshotColumns = `id, run_id, timestamp, total_requests, successful_requests,
       failed_requests, response_time_ms, average_response_time, current_rps,
       status_code`

// AppendSnapshot resolves the run by token and inserts the snapshot. When
// the run row is not visible yet the append is a silent no-op: the engine
// can outrun the store's initial insert and losing a sparse telemetry point
// must not fail the run.
func (s *SnapshotStore) AppendSnapshot(ctx context.Context, runToken string, sample domain.MetricSample) error {
	var runID int64
	err := s.db.GetContext(ctx, &runID, `SELECT id FROM runs WHERE token = ?`, runToken)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("append snapshot: resolve run: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots (run_id, timestamp, total_requests,
		        successful_requests, failed_requests, response_time_ms,
		        average_response_time, current_rps, status_code)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, sample.Timestamp.UTC(), sample.TotalRequests,
		sample.SuccessfulRequests, sample.FailedRequests, sample.ResponseTimeMs,
		sample.AverageResponseTime, sample.CurrentRps, sample.StatusCode)
	if err != nil {
		return fmt.Errorf("append snapshot: %w", err)
	}
	return nil
}
