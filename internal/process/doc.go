// Package process implements a cooperative, frame-driven process scheduler.
//
// A Process is a unit of work advanced once per tick by a Manager until it
// reaches a terminal state (Succeeded, Failed or Aborted). Each process may
// carry a single child, its continuation: when the parent succeeds the child
// is attached to the same manager and starts on the following tick. When the
// parent fails or is aborted the child never runs.
//
//	mgr := process.NewManager(process.WithLogger(logger))
//	head, _ := process.Chain(
//		process.Delay("wait", 2*time.Second),
//		process.Func("fade", fadeScreen),
//		process.Func("load", loadLevel),
//	)
//	_ = mgr.Attach(head)
//
//	for running {
//		mgr.Update(dt)
//	}
//
// Lifecycle hooks are plain functions (see Hooks). Init reports success via
// its return value; every other hook communicates its outcome by calling the
// state methods on the process (Succeed, Fail, Pause, ...). Cleanup runs
// exactly once per process, whatever the outcome, including when Init failed
// or never ran.
//
// A Manager is not safe for concurrent use. Drive it from the goroutine that
// owns the frame loop.
package process
