package event

import (
	"sync/atomic"
	"weak"
)

// token is the identity the bus references weakly.
type token struct {
	id       uint64
	typ      Type
	released atomic.Bool
}

// Subscription is the strong handle for one registration. The registration
// stays valid while the handle is reachable and not released.
type Subscription struct {
	tok *token
}

// Release expires the subscription. The handler is not called again, even for
// an event whose dispatch is already in progress. Release is idempotent.
func (s *Subscription) Release() {
	if s == nil || s.tok == nil {
		return
	}
	s.tok.released.Store(true)
}

// Active reports whether the subscription has not been released.
func (s *Subscription) Active() bool {
	return s != nil && s.tok != nil && !s.tok.released.Load()
}

// Type returns the subscribed event type.
func (s *Subscription) Type() Type {
	if s == nil || s.tok == nil {
		return ""
	}
	return s.tok.typ
}

// entry is one registration as the bus sees it.
type entry struct {
	ref     weak.Pointer[token]
	handler Handler
}

// live reports whether the subscriber still holds its handle.
func (e entry) live() bool {
	t := e.ref.Value()
	return t != nil && !t.released.Load()
}
