package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // postgres driver
)

const snapshotSchema = `
CREATE TABLE IF NOT EXISTS tournament_snapshots (
	tournament_id TEXT PRIMARY KEY,
	status        TEXT NOT NULL,
	payload       JSONB NOT NULL,
	taken_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS tournament_snapshots_status_idx
	ON tournament_snapshots (status, taken_at);
`

// Connect opens the database, verifies it with a ping, and bootstraps the
// snapshot schema.
func Connect(dsn string, timeout time.Duration) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create database handle: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database within %v: %w", timeout, err)
	}

	if _, err := db.ExecContext(ctx, snapshotSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to bootstrap snapshot schema: %w", err)
	}

	return db, nil
}
