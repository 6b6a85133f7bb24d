package event

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
	"weak"

	"github.com/DanielMTyler/ellie-sub000/internal/clock"
	"github.com/DanielMTyler/ellie-sub000/internal/logging"
)

// Stats holds cumulative bus counters.
type Stats struct {
	Published  int // events accepted by Publish
	Dropped    int // events Publish rejected for lack of subscribers
	Dispatched int // events dispatched, queued or immediate
	Deliveries int // handler invocations
	Deferred   int // events carried over by a time-boxed drain
	Overruns   int // drains that hit their time budget
}

// Drain describes the most recent Update.
type Drain struct {
	Processed int
	Deferred  int
	Complete  bool
	Elapsed   time.Duration
}

// Bus routes events to subscribers by Type.
//
// Subscribe, Publish and PublishImmediate are safe for concurrent use. Update
// must be called from a single goroutine, normally the frame loop. No lock is
// held while a handler runs, so handlers may publish and subscribe freely.
type Bus struct {
	clock  clock.Clock
	logger *slog.Logger

	mu       sync.Mutex
	subs     map[Type][]entry
	queues   [2][]Event
	active   int
	draining bool
	nextID   uint64
	stats    Stats
	last     Drain
}

// Option configures a Bus.
type Option func(*Bus)

// WithClock sets the clock used for drain budgets. Defaults to clock.System.
func WithClock(c clock.Clock) Option {
	return func(b *Bus) {
		if c != nil {
			b.clock = c
		}
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBus creates an empty Bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		clock:  clock.System{},
		logger: logging.Discard(),
		subs:   make(map[Type][]entry),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	b.logger = b.logger.With("component", "event")
	return b
}

// Subscribe registers h for events of type typ. Delivery order among handlers
// of one type follows subscription order. The returned handle must be kept
// for the registration to stay valid.
func (b *Bus) Subscribe(typ Type, h Handler) *Subscription {
	if h == nil {
		panic("event: Subscribe called with nil Handler")
	}
	b.mu.Lock()
	b.nextID++
	tok := &token{id: b.nextID, typ: typ}
	b.subs[typ] = append(b.subs[typ], entry{ref: weak.Make(tok), handler: h})
	b.mu.Unlock()

	b.logger.Debug("subscribed", "type", typ, "subscription", tok.id)
	return &Subscription{tok: tok}
}

// Subscribers returns the number of live subscribers for typ, pruning expired
// registrations.
func (b *Bus) Subscribers(typ Type) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pruneLocked(typ))
}

// PublishImmediate dispatches e synchronously to every live subscriber of its
// type and returns the number of handlers called.
func (b *Bus) PublishImmediate(e Event) int {
	if e == nil {
		return 0
	}
	b.mu.Lock()
	b.stats.Dispatched++
	b.mu.Unlock()
	return b.dispatch(e)
}

// Publish queues e for the next Update. The event is dropped, and false
// returned, when its type has no live subscriber at this moment; subscribing
// later does not revive it.
func (b *Bus) Publish(e Event) bool {
	if e == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pruneLocked(e.EventType())) == 0 {
		b.stats.Dropped++
		return false
	}
	b.queues[b.active] = append(b.queues[b.active], e)
	b.stats.Published++
	return true
}

// Update swaps the queues and dispatches every event queued before the call,
// in publish order. Events published by handlers during the drain land in the
// other queue and wait for the next Update.
//
// With limitTime set, dispatching stops once maxDuration has elapsed since
// the call started; the undelivered events are put, in order, in front of the
// active queue so they are the first ones delivered next time. Update reports
// whether the drain completed.
func (b *Bus) Update(limitTime bool, maxDuration time.Duration) bool {
	b.mu.Lock()
	if b.draining {
		b.mu.Unlock()
		panic("event: Bus.Update called re-entrantly")
	}
	b.draining = true
	drain := b.active
	b.active ^= 1
	queue := b.queues[drain]
	b.queues[drain] = nil
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.draining = false
		b.mu.Unlock()
	}()

	start := b.clock.Now()
	for i, e := range queue {
		queue[i] = nil
		b.mu.Lock()
		b.stats.Dispatched++
		b.mu.Unlock()
		b.dispatch(e)

		processed := i + 1
		if !limitTime || processed == len(queue) {
			continue
		}
		if elapsed := clock.Elapsed(b.clock, start); elapsed >= maxDuration {
			remaining := queue[processed:]
			b.mu.Lock()
			carried := make([]Event, 0, len(remaining)+len(b.queues[b.active]))
			carried = append(carried, remaining...)
			carried = append(carried, b.queues[b.active]...)
			b.queues[b.active] = carried
			b.stats.Deferred += len(remaining)
			b.stats.Overruns++
			b.last = Drain{Processed: processed, Deferred: len(remaining), Elapsed: elapsed}
			b.mu.Unlock()

			b.logger.Warn("event processing exceeded time budget",
				"budget", maxDuration, "elapsed", elapsed,
				"processed", processed, "deferred", len(remaining))
			return false
		}
	}

	b.mu.Lock()
	b.last = Drain{Processed: len(queue), Complete: true, Elapsed: clock.Elapsed(b.clock, start)}
	b.mu.Unlock()
	return true
}

// Pending returns the number of queued events waiting for Update.
func (b *Bus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[0]) + len(b.queues[1])
}

// Stats returns the cumulative counters.
func (b *Bus) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// LastDrain describes the most recent Update.
func (b *Bus) LastDrain() Drain {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}

// dispatch calls the live handlers for e's type. Liveness is checked again
// right before each call so a handler released earlier in the same dispatch
// is skipped.
func (b *Bus) dispatch(e Event) int {
	b.mu.Lock()
	entries := append([]entry(nil), b.pruneLocked(e.EventType())...)
	b.mu.Unlock()

	delivered := 0
	for _, en := range entries {
		if !en.live() {
			continue
		}
		b.call(e, en.handler)
		delivered++
	}

	b.mu.Lock()
	b.stats.Deliveries += delivered
	b.mu.Unlock()
	return delivered
}

// pruneLocked removes expired registrations for typ and returns the rest.
func (b *Bus) pruneLocked(typ Type) []entry {
	list := b.subs[typ]
	kept := list[:0]
	for _, en := range list {
		if en.live() {
			kept = append(kept, en)
		}
	}
	for i := len(kept); i < len(list); i++ {
		list[i] = entry{}
	}
	if len(kept) == 0 {
		delete(b.subs, typ)
		return nil
	}
	b.subs[typ] = kept
	return kept
}

func (b *Bus) call(e Event, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"type", e.EventType(), "event", e.EventName(),
				"panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
	}()
	h(e)
}
