// Package jobs is the background task engine: queued requests run on a
// worker pool, each reporting through the progress monitor the factory picks
// for its job.
package jobs

import (
	"time"

	"github.com/JakeFAU/workdone-progress/internal/progress"
)

// Status is the outcome of a finished request.
type Status string

// Request outcomes.
const (
	StatusSucceeded Status = "succeeded"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Request describes one unit of engine work. Every step is one work unit and
// runs as a sub-task named after it.
type Request struct {
	ID   string
	Job  progress.Job
	Task string
	// Steps are the sub-task labels, in order.
	Steps []string
	// StepDelay is how long each step takes.
	StepDelay time.Duration
	// Indeterminate begins the task with an unknown total.
	Indeterminate bool
	// OnDone, when set, receives the result after the monitor is done.
	OnDone func(Result)
}

// Result summarizes a finished request.
type Result struct {
	ID       string
	Status   Status
	WorkDone int
	Duration time.Duration
	Err      error
}
