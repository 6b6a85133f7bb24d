package store

import (
	"context"
	"database/sql"
)

// schema contains the DDL for all trace tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id         TEXT PRIMARY KEY,
		scenario   TEXT NOT NULL DEFAULT '',
		target_fps INTEGER NOT NULL DEFAULT 0,
		started_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS frames (
		run_id           TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		frame            INTEGER NOT NULL,
		started_at       TEXT NOT NULL,
		delta_ns         INTEGER NOT NULL,
		events_delivered INTEGER NOT NULL DEFAULT 0,
		events_deferred  INTEGER NOT NULL DEFAULT 0,
		drain_complete   INTEGER NOT NULL DEFAULT 1,
		succeeded        INTEGER NOT NULL DEFAULT 0,
		failed           INTEGER NOT NULL DEFAULT 0,
		live             INTEGER NOT NULL DEFAULT 0,
		elapsed_ns       INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (run_id, frame)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_frames_overrun ON frames(run_id, drain_complete)`,
}

// migrate executes all schema DDL statements.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
