// Package sqlite implements the persistent catalog: projects, endpoints,
// runs, snapshots, and schedules in a single on-disk SQLite database.
package sqlite

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Open opens (creating if absent) the database at path and applies the
// connection pragmas the stores rely on. SQLite serializes writers; the
// connection pool is capped at one open connection so the busy handler
// never fights our own pool.
func Open(ctx context.Context, path string) (*sqlx.DB, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_loc=UTC", path)
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database %s: %w", path, err)
	}

	slog.Info("database opened", "path", path)
	return db, nil
}
