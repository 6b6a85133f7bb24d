// Package clock provides the monotonic time source consumed by the frame loop,
// the process scheduler and the event bus drain budget.
package clock

import (
	"sync"
	"time"
)

// TimeStamp is a point on a monotonic timeline.
type TimeStamp struct {
	t time.Time
}

// Clock reports monotonic time.
type Clock interface {
	Now() TimeStamp
}

// Sub returns the duration ts-since.
func (ts TimeStamp) Sub(since TimeStamp) time.Duration {
	return ts.t.Sub(since.t)
}

// IsZero reports whether ts was never set.
func (ts TimeStamp) IsZero() bool {
	return ts.t.IsZero()
}

// MillisecondsElapsed returns the whole milliseconds between since and c.Now().
func MillisecondsElapsed(c Clock, since TimeStamp) int64 {
	return MillisecondsBetween(since, c.Now())
}

// MillisecondsBetween returns the whole milliseconds from a to b.
// The result is negative when b is before a.
func MillisecondsBetween(a, b TimeStamp) int64 {
	return b.Sub(a).Milliseconds()
}

// Elapsed returns the duration since the given timestamp.
func Elapsed(c Clock, since TimeStamp) time.Duration {
	return c.Now().Sub(since)
}

// System is a Clock backed by time.Now, which carries a monotonic reading.
type System struct{}

// Now implements Clock.
func (System) Now() TimeStamp {
	return TimeStamp{t: time.Now()}
}

// Manual is a Clock that only moves when told to. It is safe for concurrent use.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual creates a Manual clock starting at start.
// A zero start is replaced with a fixed, non-zero epoch.
func NewManual(start time.Time) *Manual {
	if start.IsZero() {
		start = time.Unix(0, 0).UTC()
	}
	return &Manual{now: start}
}

// Now implements Clock.
func (m *Manual) Now() TimeStamp {
	m.mu.Lock()
	defer m.mu.Unlock()
	return TimeStamp{t: m.now}
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

// Time returns the wall-clock value of ts. Intended for logs and trace rows.
func (ts TimeStamp) Time() time.Time {
	return ts.t
}
