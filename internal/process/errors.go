package process

import "errors"

var (
	// ErrInvalidProcess is returned when a process cannot be attached: it is
	// nil, already owned by a manager or a parent, or already finished.
	ErrInvalidProcess = errors.New("process: invalid process")

	// ErrClosed is returned by Attach after the manager was closed.
	ErrClosed = errors.New("process: manager closed")

	// ErrNotAttached is returned by Detach for a process the manager does not own.
	ErrNotAttached = errors.New("process: not attached to this manager")
)
