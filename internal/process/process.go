package process

import (
	"fmt"
	"time"

	"github.com/DanielMTyler/ellie-sub000/pkg/model"
	"github.com/google/uuid"
)

// Hooks holds the lifecycle callbacks of a Process. Every field is optional.
//
// A nil Init counts as success. A nil Update makes the process succeed on its
// first update.
type Hooks struct {
	Init    func(p *Process) bool
	Update  func(p *Process, dt time.Duration)
	Success func(p *Process)
	Fail    func(p *Process)
	Abort   func(p *Process)
	Cleanup func(p *Process)
}

// Process is a cooperatively scheduled unit of work.
type Process struct {
	// Data is opaque user data. The scheduler never touches it.
	Data any

	id    string
	name  string
	state model.ProcessState
	hooks Hooks
	child *Process

	parent      *Process
	manager     *Manager
	initialized bool
	cleanedUp   bool
	violation   error
}

// New creates an Uninitialized process.
func New(name string, hooks Hooks) *Process {
	return &Process{
		id:    "proc_" + uuid.New().String(),
		name:  name,
		state: model.ProcessStateUninitialized,
		hooks: hooks,
	}
}

// ID returns the process's unique identifier.
func (p *Process) ID() string { return p.id }

// Name returns the name given to New.
func (p *Process) Name() string { return p.name }

// State returns the current lifecycle state.
func (p *Process) State() model.ProcessState { return p.state }

// IsAlive reports whether the process is Running or Paused.
func (p *Process) IsAlive() bool { return p.state.IsAlive() }

// IsDead reports whether the process reached a terminal state.
func (p *Process) IsDead() bool { return p.state.IsTerminal() }

// IsRemoved reports whether the process is detached but not destroyed.
func (p *Process) IsRemoved() bool { return p.state == model.ProcessStateRemoved }

// IsPaused reports whether the process is Paused.
func (p *Process) IsPaused() bool { return p.state == model.ProcessStatePaused }

func (p *Process) String() string {
	if p.name == "" {
		return p.id
	}
	return fmt.Sprintf("%s(%s)", p.name, p.id)
}

// Succeed marks the process as Succeeded. Valid from Uninitialized (early
// finish inside Init) and Running.
func (p *Process) Succeed() error { return p.transition(model.ProcessStateSucceeded) }

// Fail marks the process as Failed. Valid from Uninitialized and Running.
func (p *Process) Fail() error { return p.transition(model.ProcessStateFailed) }

// Abort marks the process as Aborted. Valid from Running and Paused.
func (p *Process) Abort() error { return p.transition(model.ProcessStateAborted) }

// Pause suspends a Running process. Paused processes get no updates.
func (p *Process) Pause() error { return p.transition(model.ProcessStatePaused) }

// Unpause resumes a Paused process.
func (p *Process) Unpause() error { return p.transition(model.ProcessStateRunning) }

// TogglePause flips between Running and Paused.
func (p *Process) TogglePause() error {
	if p.state == model.ProcessStatePaused {
		return p.Unpause()
	}
	return p.Pause()
}

// transition applies a caller-requested state change. The first rejected
// transition is remembered so a strict Manager can surface it.
func (p *Process) transition(next model.ProcessState) error {
	if next == model.ProcessStateRemoved || !p.state.CanTransitionTo(next) {
		err := model.NewProcessTransitionError(p.id, p.state, next)
		if p.violation == nil {
			p.violation = err
		}
		return err
	}
	p.state = next
	return nil
}

// Child returns the direct child, or nil.
func (p *Process) Child() *Process { return p.child }

// AttachChild appends child to the end of p's continuation chain. If p already
// has a child the new one is attached to that child, recursively.
func (p *Process) AttachChild(child *Process) error {
	if child == nil || child == p {
		return fmt.Errorf("%w: bad child for %s", ErrInvalidProcess, p)
	}
	if child.manager != nil || child.parent != nil || child.state != model.ProcessStateUninitialized {
		return fmt.Errorf("%w: %s is already owned or started", ErrInvalidProcess, child)
	}
	for c := child; c != nil; c = c.child {
		if c == p {
			return fmt.Errorf("%w: attaching %s would form a cycle", ErrInvalidProcess, child)
		}
	}
	tail := p
	for tail.child != nil {
		tail = tail.child
	}
	tail.child = child
	child.parent = tail
	return nil
}

// RemoveChild detaches and returns the direct child, or nil. The rest of the
// chain stays attached to the returned child.
func (p *Process) RemoveChild() *Process {
	c := p.child
	if c == nil {
		return nil
	}
	p.child = nil
	c.parent = nil
	return c
}

// cleanup runs the Cleanup hook at most once.
func (p *Process) cleanup(m *Manager) {
	if p.cleanedUp {
		return
	}
	p.cleanedUp = true
	if p.hooks.Cleanup != nil {
		m.call(p, "cleanup", func() { p.hooks.Cleanup(p) })
	}
}

// releaseChain runs cleanup on every process of the chain below p and drops it.
func (p *Process) releaseChain(m *Manager) {
	c := p.RemoveChild()
	for c != nil {
		next := c.RemoveChild()
		c.cleanup(m)
		c = next
	}
}
