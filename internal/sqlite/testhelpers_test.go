package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/unhackeddev/nfury/internal/domain"
)

// newTestDB opens a migrated temp-file database that is removed with the
// test's temp dir.
func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "nfury-test.db")
	db, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, Migrate(context.Background(), db))
	return db
}

func seedProject(t *testing.T, db *sqlx.DB, name string) *domain.Project {
	t.Helper()
	p := &domain.Project{Name: name, Description: "seeded"}
	require.NoError(t, NewProjectStore(db).CreateProject(context.Background(), p))
	return p
}

func seedEndpoint(t *testing.T, db *sqlx.DB, projectID int64, name string) *domain.Endpoint {
	t.Helper()
	e := &domain.Endpoint{
		ProjectID:   projectID,
		Name:        name,
		URL:         "http://localhost:9999/ping",
		Method:      domain.MethodGet,
		Users:       5,
		ContentType: "application/json",
	}
	require.NoError(t, NewEndpointStore(db).CreateEndpoint(context.Background(), e))
	return e
}

func seedRun(t *testing.T, db *sqlx.DB, endpointID *int64, token string, status domain.RunStatus) *domain.Run {
	t.Helper()
	run := &domain.Run{
		Token:      token,
		EndpointID: endpointID,
		URL:        "http://localhost:9999/ping",
		Method:     domain.MethodGet,
		Users:      5,
		Status:     domain.RunStatusRunning,
		StartedAt:  time.Now().UTC(),
	}
	store := NewRunStore(db)
	require.NoError(t, store.CreateRun(context.Background(), run))

	switch status {
	case domain.RunStatusCompleted:
		require.NoError(t, store.CompleteRun(context.Background(), token, sampleAggregate(token)))
	case domain.RunStatusFailed:
		require.NoError(t, store.FailRun(context.Background(), token, "boom", nil))
	case domain.RunStatusCancelled:
		require.NoError(t, store.CancelRun(context.Background(), token, sampleAggregate(token)))
	}
	run.Status = status
	return run
}

func sampleAggregate(token string) domain.RunAggregate {
	return domain.RunAggregate{
		RunToken:            token,
		TotalRequests:       100,
		SuccessfulRequests:  95,
		FailedRequests:      5,
		RequestsPerSecond:   42.5,
		AverageResponseTime: 51.2,
		MinResponseTime:     12,
		MaxResponseTime:     230,
		Percentile50:        48,
		Percentile75:        70,
		Percentile90:        110,
		Percentile95:        150,
		Percentile99:        210,
		TotalElapsedTime:    2350,
		StatusCodes: map[int]domain.StatusAggregate{
			200: {Count: 95, Min: 12, Avg: 49, Max: 120, P50: 48},
			503: {Count: 5, Min: 80, Avg: 140, Max: 230, P50: 130},
		},
	}
}
