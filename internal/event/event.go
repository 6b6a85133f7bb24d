// Package event implements a publish/subscribe bus with immediate dispatch and
// a double-buffered queue that is drained once per frame under an optional
// time budget.
//
// Subscribers are tracked through weak references: Subscribe returns a
// *Subscription that the caller keeps for as long as it wants to receive
// events. Calling Release, or dropping every reference to the Subscription,
// expires the registration; the bus notices lazily at the next dispatch of
// that type and prunes the entry, so a destroyed subscriber is never called.
//
// A handler that captures its own Subscription keeps it reachable through the
// bus, so such subscribers must call Release.
package event

// Type is the stable discriminant events are routed by.
type Type string

// Event is an immutable value describing something that happened.
type Event interface {
	// EventType returns the routing discriminant.
	EventType() Type
	// EventName returns a human-readable name for diagnostics.
	EventName() string
}

// Handler receives a dispatched event.
type Handler func(e Event)

// Simple is a general-purpose Event carrying an arbitrary payload.
type Simple struct {
	Kind    Type
	Label   string
	Payload any
}

// EventType implements Event.
func (s Simple) EventType() Type { return s.Kind }

// EventName implements Event. It falls back to the type when Label is empty.
func (s Simple) EventName() string {
	if s.Label == "" {
		return string(s.Kind)
	}
	return s.Label
}
