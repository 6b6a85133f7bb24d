package model

import "time"

// FrameStats summarizes one tick of the frame loop.
type FrameStats struct {
	Frame     uint64        `json:"frame" yaml:"frame"`
	StartedAt time.Time     `json:"started_at" yaml:"started_at"`
	Delta     time.Duration `json:"delta_ns" yaml:"delta"`

	// Event bus drain.
	EventsDelivered int  `json:"events_delivered" yaml:"events_delivered"`
	EventsDeferred  int  `json:"events_deferred" yaml:"events_deferred"`
	DrainComplete   bool `json:"drain_complete" yaml:"drain_complete"`

	// Summed over all managers for this tick.
	Succeeded int `json:"succeeded" yaml:"succeeded"`
	Failed    int `json:"failed" yaml:"failed"`
	Live      int `json:"live" yaml:"live"`

	Elapsed time.Duration `json:"elapsed_ns" yaml:"elapsed"`
}

// Totals accumulates process outcomes over a manager's lifetime.
type Totals struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Aborted   int `json:"aborted"`
}

// Add returns the element-wise sum of t and o.
func (t Totals) Add(o Totals) Totals {
	return Totals{
		Succeeded: t.Succeeded + o.Succeeded,
		Failed:    t.Failed + o.Failed,
		Aborted:   t.Aborted + o.Aborted,
	}
}

// Run identifies one execution of the frame loop in the trace store.
type Run struct {
	ID        string    `json:"id"`
	Scenario  string    `json:"scenario"`
	TargetFPS int       `json:"target_fps"`
	StartedAt time.Time `json:"started_at"`
}

// RunSummary aggregates the recorded frames of one Run.
type RunSummary struct {
	RunID           string        `json:"run_id"`
	Frames          int           `json:"frames"`
	AvgDelta        time.Duration `json:"avg_delta_ns"`
	MaxElapsed      time.Duration `json:"max_elapsed_ns"`
	EventsDelivered int           `json:"events_delivered"`
	EventsDeferred  int           `json:"events_deferred"`
	Overruns        int           `json:"overruns"`
	Succeeded       int           `json:"succeeded"`
	Failed          int           `json:"failed"`
}
