// Package job owns the analysis lifecycle: a single-slot state machine
// around the screening pipeline, with cooperative cancellation and
// lock-free status reads.
package job

import "errors"

// State is the lifecycle position of the analysis job.
type State string

const (
	StateIdle      State = "Idle"
	StateRunning   State = "Running"
	StateStopping  State = "Stopping"
	StateCompleted State = "Completed"
	StateFailed    State = "Failed"
	StateStopped   State = "Stopped"
)

var (
	// ErrAlreadyRunning is returned by Start while a job is in flight.
	// The request is rejected synchronously; nothing is queued.
	ErrAlreadyRunning = errors.New("analysis already running")

	// ErrNotRunning is returned by Stop when there is nothing to stop.
	ErrNotRunning = errors.New("no analysis running")
)

// Status is one immutable snapshot of the job. The running pipeline is
// the only writer; readers always see a whole snapshot, never a
// partially updated one.
type Status struct {
	State     State  `json:"state"`
	IsRunning bool   `json:"is_running"`
	Progress  int    `json:"progress"` // 0..100, non-decreasing within a run
	Message   string `json:"message"`
	Error     string `json:"error,omitempty"`
}

// ProgressReporter receives pipeline stage boundaries and per-pair
// progress. Implemented by the controller; a fake suffices in tests.
type ProgressReporter interface {
	Milestone(message string)
	Progress(done, total int)
}
