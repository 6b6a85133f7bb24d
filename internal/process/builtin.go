package process

import (
	"fmt"
	"time"
)

// Delay returns a process that succeeds once the accumulated frame time
// reaches d. A non-positive d succeeds on the first update.
func Delay(name string, d time.Duration) *Process {
	var elapsed time.Duration
	return New(name, Hooks{
		Update: func(p *Process, dt time.Duration) {
			elapsed += dt
			if elapsed >= d {
				_ = p.Succeed()
			}
		},
	})
}

// Func returns a process that runs fn once during initialization and
// succeeds without ever being updated. A non-nil error from fn fails it.
func Func(name string, fn func() error) *Process {
	return New(name, Hooks{
		Init: func(p *Process) bool {
			if fn != nil {
				if err := fn(); err != nil {
					return false
				}
			}
			_ = p.Succeed()
			return true
		},
	})
}

// Chain links ps into a continuation list, each process the child of the one
// before it, and returns the head.
func Chain(ps ...*Process) (*Process, error) {
	if len(ps) == 0 {
		return nil, fmt.Errorf("%w: empty chain", ErrInvalidProcess)
	}
	head := ps[0]
	if head == nil {
		return nil, fmt.Errorf("%w: nil chain head", ErrInvalidProcess)
	}
	for i, p := range ps[1:] {
		if err := head.AttachChild(p); err != nil {
			return nil, fmt.Errorf("chain link %d: %w", i+1, err)
		}
	}
	return head, nil
}
