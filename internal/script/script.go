// Package script builds processes whose behavior is written in JavaScript
// (goja). A script may define two functions:
//
//	function init() { ... }      // optional; returning false fails the process
//	function update(dt) { ... }  // optional; dt is the frame delta in milliseconds
//
// and may call the globals succeed(), fail(), publish(type, payload) and
// log(msg...). A script without update succeeds right after init. Each process
// gets its own runtime.
package script

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/DanielMTyler/ellie-sub000/internal/event"
	"github.com/DanielMTyler/ellie-sub000/internal/logging"
	"github.com/DanielMTyler/ellie-sub000/internal/process"
	"github.com/dop251/goja"
)

// ErrNoProcess is thrown into the script when a lifecycle global is called
// from top-level code, before the process exists.
var ErrNoProcess = errors.New("script: no running process")

// Options configures a scripted process. The zero value is usable: publish()
// then reports false and log() discards.
type Options struct {
	Bus    *event.Bus
	Logger *slog.Logger
	// Vars are exposed to the script as the global "vars".
	Vars map[string]any
	// Timeout interrupts the top-level run or a single init or update call
	// that runs longer. Zero disables the limit.
	Timeout time.Duration
}

type runner struct {
	name    string
	vm      *goja.Runtime
	proc    *process.Process
	bus     *event.Bus
	logger  *slog.Logger
	timeout time.Duration

	initFn   goja.Callable
	updateFn goja.Callable
}

// Compile checks src for syntax errors without running it.
func Compile(name, src string) error {
	_, err := goja.Compile(name, src, false)
	if err != nil {
		return fmt.Errorf("compile %s: %w", name, err)
	}
	return nil
}

// NewProcess compiles and runs src in a fresh runtime, then returns an
// Uninitialized process whose hooks call the script's init and update.
func NewProcess(name, src string, opts Options) (*process.Process, error) {
	prog, err := goja.Compile(name, src, false)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	r := &runner{
		name:    name,
		vm:      goja.New(),
		bus:     opts.Bus,
		logger:  logger.With("component", "script", "script", name),
		timeout: opts.Timeout,
	}
	if err := r.setupVM(opts.Vars); err != nil {
		return nil, err
	}
	if _, err := r.guard(func() (goja.Value, error) { return r.vm.RunProgram(prog) }); err != nil {
		return nil, fmt.Errorf("run %s: %w", name, err)
	}

	r.initFn, err = r.lookup("init")
	if err != nil {
		return nil, err
	}
	r.updateFn, err = r.lookup("update")
	if err != nil {
		return nil, err
	}

	var hooks process.Hooks
	if r.initFn != nil {
		hooks.Init = r.init
	}
	if r.updateFn != nil {
		hooks.Update = r.update
	}
	r.proc = process.New(name, hooks)
	return r.proc, nil
}

func (r *runner) setupVM(vars map[string]any) error {
	if vars == nil {
		vars = map[string]any{}
	}
	globals := map[string]any{
		"vars":    vars,
		"succeed": r.succeed,
		"fail":    r.fail,
		"publish": r.publish,
		"log":     r.log,
	}
	for k, v := range globals {
		if err := r.vm.Set(k, v); err != nil {
			return fmt.Errorf("set %s: %w", k, err)
		}
	}
	return nil
}

// lookup returns the named global function, nil when it is undefined, and an
// error when it is defined as something other than a function.
func (r *runner) lookup(fn string) (goja.Callable, error) {
	v := r.vm.Get(fn)
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, nil
	}
	call, ok := goja.AssertFunction(v)
	if !ok {
		return nil, fmt.Errorf("%s: %q is not a function", r.name, fn)
	}
	return call, nil
}

func (r *runner) init(p *process.Process) bool {
	v, err := r.invoke(r.initFn)
	if err != nil {
		r.logger.Warn("script init failed", "error", err)
		return false
	}
	// Only an explicit false fails; undefined and other values count as success.
	if v != nil && v.StrictEquals(r.vm.ToValue(false)) {
		return false
	}
	return true
}

func (r *runner) update(p *process.Process, dt time.Duration) {
	ms := float64(dt) / float64(time.Millisecond)
	if _, err := r.invoke(r.updateFn, r.vm.ToValue(ms)); err != nil {
		r.logger.Warn("script update failed", "error", err)
		if p.IsAlive() {
			_ = p.Fail()
		}
	}
}

func (r *runner) invoke(fn goja.Callable, args ...goja.Value) (goja.Value, error) {
	return r.guard(func() (goja.Value, error) { return fn(goja.Undefined(), args...) })
}

// guard runs fn under the configured timeout. A timer that already fired is
// waited for before the interrupt is cleared, so it cannot leak into the next
// call.
func (r *runner) guard(fn func() (goja.Value, error)) (goja.Value, error) {
	if r.timeout <= 0 {
		return fn()
	}
	fired := make(chan struct{})
	t := time.AfterFunc(r.timeout, func() {
		r.vm.Interrupt("script timeout")
		close(fired)
	})
	v, err := fn()
	if !t.Stop() {
		<-fired
	}
	r.vm.ClearInterrupt()
	return v, err
}

func (r *runner) current() *process.Process {
	if r.proc == nil {
		panic(r.vm.NewGoError(ErrNoProcess))
	}
	return r.proc
}

func (r *runner) succeed() bool {
	return r.current().Succeed() == nil
}

func (r *runner) fail() bool {
	return r.current().Fail() == nil
}

func (r *runner) publish(typ string, payload goja.Value) bool {
	if r.bus == nil || typ == "" {
		return false
	}
	var data any
	if payload != nil && !goja.IsUndefined(payload) {
		data = payload.Export()
	}
	return r.bus.Publish(event.Simple{Kind: event.Type(typ), Payload: data})
}

func (r *runner) log(args ...any) {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = fmt.Sprint(a)
	}
	r.logger.Info(strings.Join(parts, " "))
}
