package sqlite

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// Health exposes a database ping for readiness probes.
type Health struct {
	db *sqlx.DB
}

// NewHealth creates a Health check around the given database.
func NewHealth(db *sqlx.DB) *Health {
	return &Health{db: db}
}

// CheckHealth pings the database.
func (h *Health) CheckHealth(ctx context.Context) error {
	return h.db.PingContext(ctx)
}
