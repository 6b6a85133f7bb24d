// Package store persists frame traces so a run's pacing, event traffic and
// process outcomes can be inspected after the fact.
package store

import (
	"context"

	"github.com/DanielMTyler/ellie-sub000/pkg/model"
)

// Store defines the persistence layer for frame traces.
type Store interface {
	CreateRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	RecordFrame(ctx context.Context, runID string, fs model.FrameStats) error
	ListFrames(ctx context.Context, runID string, limit int) ([]model.FrameStats, error)
	Summarize(ctx context.Context, runID string) (*model.RunSummary, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}

// RunRecorder binds a Store to one run so it can be handed to the frame loop.
type RunRecorder struct {
	Store Store
	RunID string
}

// RecordFrame records fs under the bound run.
func (r RunRecorder) RecordFrame(ctx context.Context, fs model.FrameStats) error {
	return r.Store.RecordFrame(ctx, r.RunID, fs)
}
