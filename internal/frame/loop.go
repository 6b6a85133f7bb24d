// Package frame drives the runtime once per frame: it drains the event bus
// under a time budget, then updates every process manager with the frame's
// delta time, in that order.
package frame

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/DanielMTyler/ellie-sub000/internal/clock"
	"github.com/DanielMTyler/ellie-sub000/internal/config"
	"github.com/DanielMTyler/ellie-sub000/internal/event"
	"github.com/DanielMTyler/ellie-sub000/internal/process"
	"github.com/DanielMTyler/ellie-sub000/pkg/model"
)

// Config holds frame loop configuration.
type Config struct {
	TargetFPS    int           // 0 ticks as fast as possible
	MaxDelta     time.Duration // clamp for dt, 0 = no clamp
	MaxFrames    uint64        // 0 = unlimited
	StopWhenIdle bool
	LimitTime    bool
	MaxDrain     time.Duration
	Managers     []string
	Strict       bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return FromConfig(config.DefaultConfig())
}

// FromConfig extracts the frame loop settings from the runtime configuration.
func FromConfig(c *config.Config) Config {
	return Config{
		TargetFPS:    c.Frame.TargetFPS,
		MaxDelta:     c.Frame.MaxDelta,
		MaxFrames:    c.Frame.MaxFrames,
		StopWhenIdle: c.Frame.StopWhenIdle,
		LimitTime:    c.Events.LimitTime,
		MaxDrain:     c.Events.MaxDrain,
		Managers:     append([]string(nil), c.Frame.Managers...),
		Strict:       c.Strict,
	}
}

// Recorder receives the stats of every frame.
type Recorder interface {
	RecordFrame(ctx context.Context, fs model.FrameStats) error
}

// Option configures a Loop.
type Option func(*Loop)

// WithClock sets the clock for dt and the drain budget. Defaults to clock.System.
func WithClock(c clock.Clock) Option {
	return func(l *Loop) {
		if c != nil {
			l.clock = c
		}
	}
}

// WithRecorder records every frame's stats.
func WithRecorder(r Recorder) Option {
	return func(l *Loop) { l.recorder = r }
}

// Loop owns the clock, the event bus and the process managers of one
// application and advances them frame by frame.
type Loop struct {
	cfg      Config
	clock    clock.Clock
	logger   *slog.Logger
	recorder Recorder

	bus      *event.Bus
	managers []*process.Manager
	byName   map[string]*process.Manager

	frame uint64
	last  clock.TimeStamp
}

// NewLoop creates a Loop with one manager per configured name.
func NewLoop(cfg Config, logger *slog.Logger, opts ...Option) *Loop {
	l := &Loop{
		cfg:    cfg,
		clock:  clock.System{},
		logger: logger.With("component", "frame"),
		byName: make(map[string]*process.Manager),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}

	l.bus = event.NewBus(event.WithClock(l.clock), event.WithLogger(logger))
	for _, name := range cfg.Managers {
		mopts := []process.Option{process.WithName(name), process.WithLogger(logger)}
		if cfg.Strict {
			mopts = append(mopts, process.WithStrict())
		}
		m := process.NewManager(mopts...)
		l.managers = append(l.managers, m)
		l.byName[name] = m
	}
	l.last = l.clock.Now()
	return l
}

// Bus returns the event bus.
func (l *Loop) Bus() *event.Bus { return l.bus }

// Manager returns the manager registered under name, or nil.
func (l *Loop) Manager(name string) *process.Manager { return l.byName[name] }

// Managers returns the managers in update order.
func (l *Loop) Managers() []*process.Manager {
	return append([]*process.Manager(nil), l.managers...)
}

// Frame returns the number of completed ticks.
func (l *Loop) Frame() uint64 { return l.frame }

// Tick runs one frame: the event bus is drained first, then each manager is
// updated with the same dt. The returned error comes from the recorder only;
// the frame itself always completes.
func (l *Loop) Tick(ctx context.Context) (model.FrameStats, error) {
	now := l.clock.Now()
	dt := now.Sub(l.last)
	if l.cfg.MaxDelta > 0 && dt > l.cfg.MaxDelta {
		dt = l.cfg.MaxDelta
	}
	l.last = now
	l.frame++

	fs := model.FrameStats{
		Frame:     l.frame,
		StartedAt: now.Time(),
		Delta:     dt,
	}

	fs.DrainComplete = l.bus.Update(l.cfg.LimitTime, l.cfg.MaxDrain)
	drain := l.bus.LastDrain()
	fs.EventsDelivered = drain.Processed
	fs.EventsDeferred = drain.Deferred

	for _, m := range l.managers {
		m.Update(dt)
		fs.Succeeded += m.NumSucceeded()
		fs.Failed += m.NumFailed()
		fs.Live += m.Len()
	}
	fs.Elapsed = clock.Elapsed(l.clock, now)

	if fs.Failed > 0 {
		l.logger.Debug("processes failed", "frame", fs.Frame, "failed", fs.Failed)
	}
	if l.recorder != nil {
		if err := l.recorder.RecordFrame(ctx, fs); err != nil {
			return fs, fmt.Errorf("record frame %d: %w", fs.Frame, err)
		}
	}
	return fs, nil
}

// Idle reports whether there is nothing left to do: no queued events and no
// process in any manager.
func (l *Loop) Idle() bool {
	if l.bus.Pending() > 0 {
		return false
	}
	for _, m := range l.managers {
		if m.Len() > 0 {
			return false
		}
	}
	return true
}

// Run ticks at the target rate until ctx is cancelled, MaxFrames frames have
// run, or, with StopWhenIdle, the loop goes idle. Recorder errors are logged
// and do not stop the loop.
func (l *Loop) Run(ctx context.Context) error {
	interval := time.Duration(0)
	if l.cfg.TargetFPS > 0 {
		interval = time.Second / time.Duration(l.cfg.TargetFPS)
	}
	l.logger.Info("frame loop started", "target_fps", l.cfg.TargetFPS, "managers", l.cfg.Managers)

	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		if l.cfg.MaxFrames > 0 && l.frame >= l.cfg.MaxFrames {
			l.logger.Info("frame loop stopping (frame limit)", "frames", l.frame)
			return nil
		}
		if l.cfg.StopWhenIdle && l.Idle() {
			l.logger.Info("frame loop stopping (idle)", "frames", l.frame)
			return nil
		}

		if tick != nil {
			select {
			case <-ctx.Done():
				l.logger.Info("frame loop stopping (context cancelled)", "frames", l.frame)
				return ctx.Err()
			case <-tick:
			}
		} else if err := ctx.Err(); err != nil {
			l.logger.Info("frame loop stopping (context cancelled)", "frames", l.frame)
			return err
		}

		if _, err := l.Tick(ctx); err != nil {
			l.logger.Error("tick error", "error", err)
		}
	}
}

// Close aborts every process in every manager.
func (l *Loop) Close() {
	for _, m := range l.managers {
		m.Close()
	}
}
