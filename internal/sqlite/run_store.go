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

// RunStore persists load test runs. URL, method, user count, and stop
// criterion are captured on the run row at creation so later endpoint edits
// do not rewrite history.
type RunStore struct {
	db *sqlx.DB
}

// NewRunStore creates a RunStore backed by the given database.
func NewRunStore(db *sqlx.DB) *RunStore {
	return &RunStore{db: db}
}

type runRow struct {
	ID              int64          `db:"id"`
	Token           string         `db:"token"`
	EndpointID      sql.NullInt64  `db:"endpoint_id"`
	URL             string         `db:"url"`
	Method          string         `db:"method"`
	Users           int            `db:"users"`
	TargetRequests  sql.NullInt64  `db:"target_requests"`
	TargetDuration  sql.NullInt64  `db:"target_duration_seconds"`
	Status          string         `db:"status"`
	StartedAt       time.Time      `db:"started_at"`
	CompletedAt     sql.NullTime   `db:"completed_at"`
	ErrorMessage    sql.NullString `db:"error_message"`
	TotalRequests   int64          `db:"total_requests"`
	SuccessRequests int64          `db:"successful_requests"`
	FailedRequests  int64          `db:"failed_requests"`
	Rps             float64        `db:"requests_per_second"`
	AvgRt           float64        `db:"average_response_time"`
	MinRt           float64        `db:"min_response_time"`
	MaxRt           float64        `db:"max_response_time"`
	P50             float64        `db:"percentile_50"`
	P75             float64        `db:"percentile_75"`
	P90             float64        `db:"percentile_90"`
	P95             float64        `db:"percentile_95"`
	P99             float64        `db:"percentile_99"`
	ElapsedMs       int64          `db:"elapsed_ms"`
	StatusCodesJSON sql.NullString `db:"status_codes_json"`
}

func (r runRow) toDomain() (domain.Run, error) {
	codes, err := unmarshalStatusCodes(r.StatusCodesJSON)
	if err != nil {
		return domain.Run{}, err
	}
	run := domain.Run{
		ID:                  r.ID,
		Token:               r.Token,
		EndpointID:          int64Ptr(r.EndpointID),
		URL:                 r.URL,
		Method:              domain.HTTPMethod(r.Method),
		Users:               r.Users,
		TargetRequests:      intPtr(r.TargetRequests),
		TargetDuration:      intPtr(r.TargetDuration),
		Status:              domain.RunStatus(r.Status),
		StartedAt:           r.StartedAt,
		ErrorMessage:        stringPtr(r.ErrorMessage),
		TotalRequests:       r.TotalRequests,
		SuccessfulRequests:  r.SuccessRequests,
		FailedRequests:      r.FailedRequests,
		RequestsPerSecond:   r.Rps,
		AverageResponseTime: r.AvgRt,
		MinResponseTime:     r.MinRt,
		MaxResponseTime:     r.MaxRt,
		Percentile50:        r.P50,
		Percentile75:        r.P75,
		Percentile90:        r.P90,
		Percentile95:        r.P95,
		Percentile99:        r.P99,
		ElapsedMs:           r.ElapsedMs,
		StatusCodes:         codes,
	}
	if r.CompletedAt.Valid {
		t := r.CompletedAt.Time
		run.CompletedAt = &t
	}
	return run, nil
}

const runColumns = `id, token, endpoint_id, url, method, users, target_requests,
       target_duration_seconds, status, started_at, completed_at, error_message,
       total_requests, successful_requests, failed_requests, requests_per_second,
       average_response_time, min_response_time, max_response_time,
       percentile_50, percentile_75, percentile_90, percentile_95, percentile_99,
       elapsed_ms, status_codes_json`

// CreateRun inserts a new run row with captured configuration. The run's
// token, status, and started_at must already be set by the caller.
func (s *RunStore) CreateRun(ctx context.Context, run *domain.Run) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (token, endpoint_id, url, method, users, target_requests,
		        target_duration_seconds, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.Token, nullInt64(run.EndpointID), run.URL, string(run.Method),
		run.Users, nullInt(run.TargetRequests), nullInt(run.TargetDuration),
		string(run.Status), run.StartedAt.UTC())
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create run id: %w", err)
	}
	run.ID = id
	return nil
}

// GetRunByToken returns the run or (nil, nil) when no run has this token.
func (s *RunStore) GetRunByToken(ctx context.Context, token string) (*domain.Run, error) {
	return s.getRunWhere(ctx, "token = ?", token)
}

// GetRun returns the run or (nil, nil) when it does not exist.
func (s *RunStore) GetRun(ctx context.Context, id int64) (*domain.Run, error) {
	return s.getRunWhere(ctx, "id = ?", id)
}

func (s *RunStore) getRunWhere(ctx context.Context, where string, arg interface{}) (*domain.Run, error) {
	var row runRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+runColumns+` FROM runs WHERE `+where, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	run, err := row.toDomain()
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return &run, nil
}

// GetRunWithSnapshots returns the run plus its snapshot timeline in arrival
// order, or (nil, nil, nil) when the run does not exist.
func (s *RunStore) GetRunWithSnapshots(ctx context.Context, id int64) (*domain.Run, []domain.Snapshot, error) {
	run, err := s.GetRun(ctx, id)
	if err != nil || run == nil {
		return run, nil, err
	}

	var rows []snapshotRow
	err = s.db.SelectContext(ctx, &rows,
		`SELECT `+snapshotColumns+` FROM snapshots WHERE run_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, nil, fmt.Errorf("get run snapshots: %w", err)
	}

	snapshots := make([]domain.Snapshot, 0, len(rows))
	for _, r := range rows {
		snapshots = append(snapshots, r.toDomain())
	}
	return run, snapshots, nil
}

// GetRunWithContext returns the run together with the endpoint it ran
// against and that endpoint's project. Endpoint and project are nil for
// ad-hoc runs and for runs whose endpoint link was cleared by a deletion.
// Returns (nil, nil, nil, nil) when the run does not exist.
func (s *RunStore) GetRunWithContext(ctx context.Context, id int64) (*domain.Run, *domain.Endpoint, *domain.Project, error) {
	run, err := s.GetRun(ctx, id)
	if err != nil || run == nil {
		return run, nil, nil, err
	}
	if run.EndpointID == nil {
		return run, nil, nil, nil
	}

	endpoint, err := NewEndpointStore(s.db).GetEndpoint(ctx, *run.EndpointID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("get run endpoint: %w", err)
	}
	if endpoint == nil {
		return run, nil, nil, nil
	}

	project, err := NewProjectStore(s.db).GetProject(ctx, endpoint.ProjectID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("get run project: %w", err)
	}
	return run, endpoint, project, nil
}

// CompleteRun applies the final aggregate and marks the run completed.
func (s *RunStore) CompleteRun(ctx context.Context, token string, agg domain.RunAggregate) error {
	return s.finishRun(ctx, token, domain.RunStatusCompleted, nil, &agg)
}

// FailRun marks the run failed with an error message. A partial aggregate,
// when available, is persisted alongside.
func (s *RunStore) FailRun(ctx context.Context, token, message string, agg *domain.RunAggregate) error {
	return s.finishRun(ctx, token, domain.RunStatusFailed, &message, agg)
}

// CancelRun marks the run cancelled, keeping the partial aggregate.
func (s *RunStore) CancelRun(ctx context.Context, token string, agg domain.RunAggregate) error {
	return s.finishRun(ctx, token, domain.RunStatusCancelled, nil, &agg)
}

func (s *RunStore) finishRun(ctx context.Context, token string, status domain.RunStatus, message *string, agg *domain.RunAggregate) error {
	now := time.Now().UTC()

	if agg == nil {
		res, err := s.db.ExecContext(ctx,
			`UPDATE runs SET status = ?, completed_at = ?, error_message = ? WHERE token = ?`,
			string(status), now, nullString(message), token)
		if err != nil {
			return fmt.Errorf("finish run: %w", err)
		}
		return requireAffected(res, "finish run")
	}

	codesJSON, err := marshalJSONColumn(agg.StatusCodes)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, completed_at = ?, error_message = ?,
		        total_requests = ?, successful_requests = ?, failed_requests = ?,
		        requests_per_second = ?, average_response_time = ?,
		        min_response_time = ?, max_response_time = ?,
		        percentile_50 = ?, percentile_75 = ?, percentile_90 = ?,
		        percentile_95 = ?, percentile_99 = ?, elapsed_ms = ?,
		        status_codes_json = ?
		 WHERE token = ?`,
		string(status), now, nullString(message),
		agg.TotalRequests, agg.SuccessfulRequests, agg.FailedRequests,
		agg.RequestsPerSecond, agg.AverageResponseTime,
		agg.MinResponseTime, agg.MaxResponseTime,
		agg.Percentile50, agg.Percentile75, agg.Percentile90,
		agg.Percentile95, agg.Percentile99, agg.TotalElapsedTime,
		codesJSON, token)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return requireAffected(res, "finish run")
}

// ListRecentRuns returns the most recent runs by start time, newest first.
func (s *RunStore) ListRecentRuns(ctx context.Context, limit int) ([]domain.Run, error) {
	var rows []runRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent runs: %w", err)
	}
	return rowsToRuns(rows)
}

// runWhereClause builds the shared WHERE clause and args for run search and
// count queries. ProjectID filtering goes through the endpoints table.
func runWhereClause(filter domain.RunFilter) (string, []interface{}) {
	where := ` WHERE 1=1`
	args := []interface{}{}

	if filter.EndpointID != nil {
		where += ` AND r.endpoint_id = ?`
		args = append(args, *filter.EndpointID)
	}
	if filter.ProjectID != nil {
		where += ` AND r.endpoint_id IN (SELECT id FROM endpoints WHERE project_id = ?)`
		args = append(args, *filter.ProjectID)
	}
	if filter.Status != "" {
		where += ` AND r.status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.From != nil {
		where += ` AND r.started_at >= ?`
		args = append(args, filter.From.UTC())
	}
	if filter.To != nil {
		where += ` AND r.started_at <= ?`
		args = append(args, filter.To.UTC())
	}
	return where, args
}

// SearchRuns returns matching runs (newest first) and the total match count
// ignoring pagination.
func (s *RunStore) SearchRuns(ctx context.Context, filter domain.RunFilter) ([]domain.Run, int, error) {
	where, args := runWhereClause(filter)

	var total int
	err := s.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM runs r`+where, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("count runs: %w", err)
	}

	query := `SELECT ` + qualifyRunColumns() + ` FROM runs r` + where +
		` ORDER BY r.started_at DESC, r.id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}

	var rows []runRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("search runs: %w", err)
	}

	runs, err := rowsToRuns(rows)
	if err != nil {
		return nil, 0, err
	}
	return runs, total, nil
}

// DeleteRun removes the run; its snapshots cascade via foreign key.
func (s *RunStore) DeleteRun(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	return requireAffected(res, "delete run")
}

// Statistics aggregates run history: counts per status, total requests
// issued, and averages over completed runs.
func (s *RunStore) Statistics(ctx context.Context, filter domain.StatisticsFilter) (*domain.RunStatistics, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	if filter.EndpointID != nil {
		where += ` AND r.endpoint_id = ?`
		args = append(args, *filter.EndpointID)
	}
	if filter.ProjectID != nil {
		where += ` AND r.endpoint_id IN (SELECT id FROM endpoints WHERE project_id = ?)`
		args = append(args, *filter.ProjectID)
	}

	result := &domain.RunStatistics{RunsByStatus: make(map[domain.RunStatus]int64)}

	type statusCount struct {
		Status string `db:"status"`
		N      int64  `db:"n"`
	}
	var counts []statusCount
	err := s.db.SelectContext(ctx, &counts,
		`SELECT r.status AS status, COUNT(*) AS n FROM runs r`+where+` GROUP BY r.status`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("run statistics: %w", err)
	}
	for _, c := range counts {
		result.RunsByStatus[domain.RunStatus(c.Status)] = c.N
		result.TotalRuns += c.N
	}

	var totals struct {
		TotalRequests sql.NullInt64   `db:"total_requests"`
		AvgRt         sql.NullFloat64 `db:"avg_rt"`
		AvgRps        sql.NullFloat64 `db:"avg_rps"`
	}
	err = s.db.GetContext(ctx, &totals,
		`SELECT SUM(r.total_requests) AS total_requests,
		        AVG(CASE WHEN r.status = 'completed' THEN r.average_response_time END) AS avg_rt,
		        AVG(CASE WHEN r.status = 'completed' THEN r.requests_per_second END) AS avg_rps
		 FROM runs r`+where, args...)
	if err != nil {
		return nil, fmt.Errorf("run statistics totals: %w", err)
	}
	if totals.TotalRequests.Valid {
		result.TotalRequests = totals.TotalRequests.Int64
	}
	if totals.AvgRt.Valid {
		result.AverageResponseTime = totals.AvgRt.Float64
	}
	if totals.AvgRps.Valid {
		result.AverageRps = totals.AvgRps.Float64
	}
	return result, nil
}

func rowsToRuns(rows []runRow) ([]domain.Run, error) {
	result := make([]domain.Run, 0, len(rows))
	for _, r := range rows {
		run, err := r.toDomain()
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		result = append(result, run)
	}
	return result, nil
}

// qualifyRunColumns prefixes each run column with the r. alias for joined
// queries.
func qualifyRunColumns() string {
	return `r.id, r.token, r.endpoint_id, r.url, r.method, r.users,
       r.target_requests, r.target_duration_seconds, r.status, r.started_at,
       r.completed_at, r.error_message, r.total_requests, r.successful_requests,
       r.failed_requests, r.requests_per_second, r.average_response_time,
       r.min_response_time, r.max_response_time, r.percentile_50, r.percentile_75,
       r.percentile_90, r.percentile_95, r.percentile_99, r.elapsed_ms,
       r.status_codes_json`
}
