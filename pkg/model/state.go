package model

// ProcessState represents the lifecycle state of a Process.
type ProcessState string

const (
	ProcessStateUninitialized ProcessState = "UNINITIALIZED"
	ProcessStateRemoved       ProcessState = "REMOVED"
	ProcessStateRunning       ProcessState = "RUNNING"
	ProcessStatePaused        ProcessState = "PAUSED"
	ProcessStateSucceeded     ProcessState = "SUCCEEDED"
	ProcessStateFailed        ProcessState = "FAILED"
	ProcessStateAborted       ProcessState = "ABORTED"
)

// String returns the string representation of the process state.
func (s ProcessState) String() string {
	return string(s)
}

// IsTerminal returns true if the process is in a final state.
func (s ProcessState) IsTerminal() bool {
	switch s {
	case ProcessStateSucceeded, ProcessStateFailed, ProcessStateAborted:
		return true
	}
	return false
}

// IsAlive returns true if the process has been initialized and not yet finished.
// Removed and Uninitialized processes are neither alive nor terminal.
func (s ProcessState) IsAlive() bool {
	return s == ProcessStateRunning || s == ProcessStatePaused
}

// ValidProcessTransitions defines the allowed state transitions for Processes.
var ValidProcessTransitions = map[ProcessState][]ProcessState{
	ProcessStateUninitialized: {ProcessStateRunning, ProcessStateSucceeded, ProcessStateFailed, ProcessStateRemoved},
	ProcessStateRunning:       {ProcessStatePaused, ProcessStateSucceeded, ProcessStateFailed, ProcessStateAborted, ProcessStateRemoved},
	ProcessStatePaused:        {ProcessStateRunning, ProcessStateAborted, ProcessStateRemoved},
	ProcessStateRemoved:       {ProcessStateUninitialized, ProcessStateRunning},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s ProcessState) CanTransitionTo(next ProcessState) bool {
	for _, allowed := range ValidProcessTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
