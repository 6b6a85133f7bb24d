package process

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/DanielMTyler/ellie-sub000/internal/logging"
	"github.com/DanielMTyler/ellie-sub000/pkg/model"
)

// Manager owns the live processes of one scheduling domain (logic, view,
// input, ...) and advances them once per Update.
type Manager struct {
	name   string
	logger *slog.Logger
	strict bool

	procs    []*Process
	listed   map[*Process]struct{} // processes held by procs, owned or not
	updating bool
	closed   bool

	succeeded int
	failed    int
	totals    model.Totals
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithName names the manager in logs and snapshots.
func WithName(name string) Option {
	return func(m *Manager) { m.name = name }
}

// WithStrict turns contract violations into panics: attaching an invalid
// process, or a hook requesting an invalid state transition.
func WithStrict() Option {
	return func(m *Manager) { m.strict = true }
}

// NewManager creates an empty Manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		logger: logging.Discard(),
		listed: make(map[*Process]struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	m.logger = m.logger.With("component", "process", "manager", m.name)
	return m
}

// Name returns the manager name.
func (m *Manager) Name() string { return m.name }

// Attach hands ownership of p to the manager. p is initialized on the next
// Update. A Removed process resumes where it left off: Running if it was
// already initialized, Uninitialized otherwise.
func (m *Manager) Attach(p *Process) error {
	if m.closed {
		return ErrClosed
	}
	if err := m.checkAttach(p); err != nil {
		if m.strict {
			panic(err)
		}
		return err
	}
	if p.state == model.ProcessStateRemoved {
		if p.initialized {
			p.state = model.ProcessStateRunning
		} else {
			p.state = model.ProcessStateUninitialized
		}
	}
	p.manager = m
	m.list(p)
	m.logger.Debug("process attached", "id", p.id, "name", p.name, "state", p.state)
	return nil
}

func (m *Manager) checkAttach(p *Process) error {
	switch {
	case p == nil:
		return fmt.Errorf("%w: nil", ErrInvalidProcess)
	case p.manager != nil:
		return fmt.Errorf("%w: %s already attached to manager %q", ErrInvalidProcess, p, p.manager.name)
	case p.parent != nil:
		return fmt.Errorf("%w: %s is the child of %s", ErrInvalidProcess, p, p.parent)
	case p.state.IsTerminal() || p.cleanedUp:
		return fmt.Errorf("%w: %s already finished (%s)", ErrInvalidProcess, p, p.state)
	}
	return nil
}

// Detach removes p from the manager without running any terminal hook and
// leaves it Removed, so it can be attached to another manager. The child
// chain travels with it.
func (m *Manager) Detach(p *Process) error {
	if p == nil || p.manager != m {
		return ErrNotAttached
	}
	if p.state.IsTerminal() {
		return fmt.Errorf("%w: %s is finishing (%s)", ErrInvalidProcess, p, p.state)
	}
	p.state = model.ProcessStateRemoved
	p.manager = nil
	if !m.updating {
		m.compact()
	}
	m.logger.Debug("process detached", "id", p.id, "name", p.name)
	return nil
}

// Update advances every process once by dt.
//
// Only processes present when the pass starts are visited. Processes attached
// during the pass, including children promoted on success, are first visited
// on the next Update. Processes detached or retired during the pass are
// skipped. Update must not be called from inside a hook.
func (m *Manager) Update(dt time.Duration) {
	if m.updating {
		panic("process: Manager.Update called re-entrantly")
	}
	m.updating = true
	defer func() { m.updating = false }()

	m.succeeded = 0
	m.failed = 0

	n := len(m.procs)
	for i := 0; i < n && i < len(m.procs); i++ {
		p := m.procs[i]
		if p.manager != m {
			continue
		}
		m.step(p, dt)
	}
	m.compact()
}

func (m *Manager) step(p *Process, dt time.Duration) {
	if p.state == model.ProcessStateUninitialized {
		ok := true
		if p.hooks.Init != nil {
			// A panicking Init leaves ok false.
			ok = false
			m.call(p, "init", func() { ok = p.hooks.Init(p) })
		}
		p.initialized = true
		if p.manager != m {
			return
		}
		switch {
		case !ok:
			p.state = model.ProcessStateFailed
		case p.state == model.ProcessStateUninitialized:
			p.state = model.ProcessStateRunning
		}
	}

	if p.state == model.ProcessStateRunning {
		if p.hooks.Update == nil {
			p.state = model.ProcessStateSucceeded
		} else if !m.call(p, "update", func() { p.hooks.Update(p, dt) }) && !p.state.IsTerminal() {
			p.state = model.ProcessStateFailed
		}
		if p.manager != m {
			return
		}
	}

	if m.strict && p.violation != nil {
		panic(p.violation)
	}

	if p.state.IsTerminal() {
		m.retire(p)
	}
}

// retire runs the terminal hooks of a dead process and drops it.
func (m *Manager) retire(p *Process) {
	switch p.state {
	case model.ProcessStateSucceeded:
		m.succeeded++
		m.totals.Succeeded++
		if p.hooks.Success != nil {
			m.call(p, "success", func() { p.hooks.Success(p) })
		}
		if child := p.RemoveChild(); child != nil {
			child.manager = m
			m.list(child)
			m.logger.Debug("child promoted", "parent", p.id, "id", child.id, "name", child.name)
		}
	case model.ProcessStateFailed:
		m.failed++
		m.totals.Failed++
		if p.hooks.Fail != nil {
			m.call(p, "fail", func() { p.hooks.Fail(p) })
		}
	case model.ProcessStateAborted:
		m.totals.Aborted++
		if p.hooks.Abort != nil {
			m.call(p, "abort", func() { p.hooks.Abort(p) })
		}
	}
	p.manager = nil
	p.releaseChain(m)
	p.cleanup(m)
	m.logger.Debug("process finished", "id", p.id, "name", p.name, "state", p.state)
}

// AbortAll aborts every alive (Running or Paused) process. With immediate set
// the abort and cleanup hooks run now and the processes are removed; otherwise
// they are only marked Aborted and the next Update retires them, which is the
// safe choice from inside a hook. Other processes are left untouched.
func (m *Manager) AbortAll(immediate bool) {
	live := append([]*Process(nil), m.procs...)
	for _, p := range live {
		if p.manager != m || !p.state.IsAlive() {
			continue
		}
		p.state = model.ProcessStateAborted
		if immediate {
			m.retire(p)
		}
	}
	if immediate && !m.updating {
		m.compact()
	}
}

// Close tears the manager down: alive processes are aborted immediately,
// processes that already finished are retired, and processes that never
// started only get their cleanup. Attach fails with ErrClosed afterwards.
func (m *Manager) Close() {
	if m.closed {
		return
	}
	m.closed = true
	// Outcomes during teardown go to the totals only.
	succeeded, failed := m.succeeded, m.failed
	defer func() { m.succeeded, m.failed = succeeded, failed }()
	m.AbortAll(true)
	// Retiring a succeeded process may promote its child, so drain until empty.
	for len(m.procs) > 0 {
		procs := m.procs
		m.procs = nil
		for _, p := range procs {
			delete(m.listed, p)
			if p.manager != m {
				continue
			}
			if p.state.IsTerminal() {
				m.retire(p)
				continue
			}
			p.manager = nil
			p.releaseChain(m)
			p.cleanup(m)
		}
	}
}

// NumSucceeded returns the number of processes that succeeded during the
// last Update.
func (m *Manager) NumSucceeded() int { return m.succeeded }

// NumFailed returns the number of processes that failed during the last Update.
func (m *Manager) NumFailed() int { return m.failed }

// Totals returns outcome counts over the manager's lifetime.
func (m *Manager) Totals() model.Totals { return m.totals }

// Len returns the number of processes the manager currently owns.
func (m *Manager) Len() int {
	n := 0
	for _, p := range m.procs {
		if p.manager == m {
			n++
		}
	}
	return n
}

// Status is a point-in-time view of one process.
type Status struct {
	ID       string
	Name     string
	State    model.ProcessState
	HasChild bool
}

// Snapshot returns the owned processes in pass order.
func (m *Manager) Snapshot() []Status {
	out := make([]Status, 0, len(m.procs))
	for _, p := range m.procs {
		if p.manager != m {
			continue
		}
		out = append(out, Status{ID: p.id, Name: p.name, State: p.state, HasChild: p.child != nil})
	}
	return out
}

// compact drops processes the manager no longer owns.
func (m *Manager) compact() {
	kept := m.procs[:0]
	for _, p := range m.procs {
		if p.manager == m {
			kept = append(kept, p)
		} else {
			delete(m.listed, p)
		}
	}
	for i := len(kept); i < len(m.procs); i++ {
		m.procs[i] = nil
	}
	m.procs = kept
}

// list appends p to the pass order unless the slice still holds it from an
// earlier attach in the same pass.
func (m *Manager) list(p *Process) {
	if _, ok := m.listed[p]; ok {
		return
	}
	m.listed[p] = struct{}{}
	m.procs = append(m.procs, p)
}

// call runs a hook, containing any panic. It reports whether fn returned
// normally.
func (m *Manager) call(p *Process, hook string, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			m.logger.Error("process hook panicked",
				"id", p.id, "name", p.name, "hook", hook,
				"panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
	}()
	fn()
	return true
}
