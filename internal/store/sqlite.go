package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/DanielMTyler/ellie-sub000/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// Every :memory: connection is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.Run) error {
	s.logger.Debug("sql", "op", "insert", "table", "runs", "id", run.ID)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, scenario, target_fps, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.Scenario, run.TargetFPS, run.StartedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	s.logger.Debug("sql", "op", "select", "table", "runs", "id", id)

	var run model.Run
	var startedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, scenario, target_fps, started_at FROM runs WHERE id = ?`, id,
	).Scan(&run.ID, &run.Scenario, &run.TargetFPS, &startedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if run.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	return &run, nil
}

func (s *SQLiteStore) RecordFrame(ctx context.Context, runID string, fs model.FrameStats) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO frames (run_id, frame, started_at, delta_ns, events_delivered, events_deferred,
		                     drain_complete, succeeded, failed, live, elapsed_ns)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, int64(fs.Frame), fs.StartedAt.UTC().Format(time.RFC3339Nano), int64(fs.Delta),
		fs.EventsDelivered, fs.EventsDeferred, boolToInt(fs.DrainComplete),
		fs.Succeeded, fs.Failed, fs.Live, int64(fs.Elapsed),
	)
	if err != nil {
		return fmt.Errorf("record frame %d: %w", fs.Frame, err)
	}
	return nil
}

// ListFrames returns recorded frames in frame order. limit <= 0 returns all.
func (s *SQLiteStore) ListFrames(ctx context.Context, runID string, limit int) ([]model.FrameStats, error) {
	s.logger.Debug("sql", "op", "select", "table", "frames", "run_id", runID)
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT frame, started_at, delta_ns, events_delivered, events_deferred, drain_complete,
		        succeeded, failed, live, elapsed_ns
		 FROM frames WHERE run_id = ? ORDER BY frame LIMIT ?`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.FrameStats
	for rows.Next() {
		var fs model.FrameStats
		var frame, delta, elapsed, complete int64
		var startedAt string
		if err := rows.Scan(&frame, &startedAt, &delta, &fs.EventsDelivered, &fs.EventsDeferred,
			&complete, &fs.Succeeded, &fs.Failed, &fs.Live, &elapsed); err != nil {
			return nil, err
		}
		fs.DrainComplete = complete != 0
		fs.Frame = uint64(frame)
		fs.Delta = time.Duration(delta)
		fs.Elapsed = time.Duration(elapsed)
		if fs.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		out = append(out, fs)
	}
	return out, rows.Err()
}

// Summarize aggregates the frames of a run. It returns nil for an unknown run.
func (s *SQLiteStore) Summarize(ctx context.Context, runID string) (*model.RunSummary, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil || run == nil {
		return nil, err
	}

	sum := &model.RunSummary{RunID: runID}
	var avgDelta float64
	var maxElapsed int64
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(AVG(delta_ns), 0), COALESCE(MAX(elapsed_ns), 0),
		        COALESCE(SUM(events_delivered), 0), COALESCE(SUM(events_deferred), 0),
		        COALESCE(SUM(CASE WHEN drain_complete = 0 THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(succeeded), 0), COALESCE(SUM(failed), 0)
		 FROM frames WHERE run_id = ?`, runID,
	).Scan(&sum.Frames, &avgDelta, &maxElapsed, &sum.EventsDelivered, &sum.EventsDeferred,
		&sum.Overruns, &sum.Succeeded, &sum.Failed)
	if err != nil {
		return nil, err
	}
	sum.AvgDelta = time.Duration(avgDelta)
	sum.MaxElapsed = time.Duration(maxElapsed)
	return sum, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
