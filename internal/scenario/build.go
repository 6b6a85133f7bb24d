package scenario

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/DanielMTyler/ellie-sub000/internal/event"
	"github.com/DanielMTyler/ellie-sub000/internal/frame"
	"github.com/DanielMTyler/ellie-sub000/internal/logging"
	"github.com/DanielMTyler/ellie-sub000/internal/process"
	"github.com/DanielMTyler/ellie-sub000/internal/script"
)

// Instance is a scenario attached to a loop. It owns the watch subscriptions
// and counts the events they receive.
type Instance struct {
	Scenario *Scenario
	Heads    []*process.Process

	mu       sync.Mutex
	received map[string]int
	subs     []*event.Subscription
}

// Received returns how many events of typ the watch handlers have seen.
func (in *Instance) Received(typ string) int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.received[typ]
}

// Release expires the watch subscriptions.
func (in *Instance) Release() {
	for _, s := range in.subs {
		s.Release()
	}
	in.subs = nil
}

// Build creates one process chain per scenario chain and attaches each to its
// manager on l. It also subscribes a logging handler to every published and
// watched event type; the returned Instance must be released when done.
// Nothing is left attached if any chain fails to build or attach.
func (sc *Scenario) Build(l *frame.Loop, logger *slog.Logger) (*Instance, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.With("component", "scenario", "scenario", sc.Name)

	type pending struct {
		head *process.Process
		mgr  *process.Manager
	}
	var built []pending
	for ci, c := range sc.Chains {
		mgr := l.Manager(c.ManagerName())
		if mgr == nil {
			return nil, fmt.Errorf("chains[%d]: unknown manager %q", ci, c.ManagerName())
		}
		head, err := buildChain(c, l.Bus(), logger)
		if err != nil {
			return nil, fmt.Errorf("chains[%d]: %w", ci, err)
		}
		built = append(built, pending{head: head, mgr: mgr})
	}

	in := &Instance{Scenario: sc, received: make(map[string]int)}
	for _, typ := range sc.PublishedTypes() {
		in.subs = append(in.subs, l.Bus().Subscribe(event.Type(typ), func(e event.Event) {
			in.mu.Lock()
			in.received[typ]++
			in.mu.Unlock()
			logger.Info("event received", "type", typ, "name", e.EventName())
		}))
	}

	for i, b := range built {
		if err := b.mgr.Attach(b.head); err != nil {
			for _, prev := range built[:i] {
				_ = prev.mgr.Detach(prev.head)
			}
			in.Release()
			return nil, fmt.Errorf("attach %s: %w", b.head.Name(), err)
		}
		in.Heads = append(in.Heads, b.head)
	}
	logger.Debug("scenario built", "chains", len(built), "watched", len(in.subs))
	return in, nil
}

func buildChain(c Chain, bus *event.Bus, logger *slog.Logger) (*process.Process, error) {
	procs := make([]*process.Process, 0, len(c.Steps))
	for si, st := range c.Steps {
		p, err := buildStep(stepName(c, si, st), st, bus, logger)
		if err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", si, err)
		}
		procs = append(procs, p)
	}
	return process.Chain(procs...)
}

func buildStep(name string, st Step, bus *event.Bus, logger *slog.Logger) (*process.Process, error) {
	switch st.Kind() {
	case KindDelay:
		return process.Delay(name, *st.Delay), nil
	case KindPublish:
		typ, payload := event.Type(st.Publish), st.Payload
		return process.Func(name, func() error {
			if !bus.Publish(event.Simple{Kind: typ, Label: name, Payload: payload}) {
				logger.Debug("event dropped, no subscribers", "type", typ)
			}
			return nil
		}), nil
	case KindScript:
		timeout := st.Timeout
		if timeout == 0 {
			timeout = DefaultScriptTimeout
		}
		return script.NewProcess(name, st.Script, script.Options{
			Bus:     bus,
			Logger:  logger,
			Vars:    st.Vars,
			Timeout: timeout,
		})
	case KindFail:
		reason := *st.Fail
		return process.Func(name, func() error {
			logger.Info("step failing", "step", name, "reason", reason)
			return errors.New(reason)
		}), nil
	}
	return nil, fmt.Errorf("step %s has no kind", name)
}
