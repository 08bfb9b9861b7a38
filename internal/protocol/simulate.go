package protocol

// MethodSimulate is the server-specific request that queues a background task
// for the client to watch.
const MethodSimulate = "progress/simulate"

// SimulateParams describes the task to queue.
type SimulateParams struct {
	Task  string   `json:"task"`
	Steps []string `json:"steps"`
	// StepDelayMs is the time each step takes.
	StepDelayMs int `json:"stepDelayMs,omitempty"`
	// Indeterminate starts the task without a known total.
	Indeterminate bool `json:"indeterminate,omitempty"`
	// Initialization also reports on the legacy status channels.
	Initialization bool `json:"initialization,omitempty"`
	// System marks the job as internal; it never shows on the legacy channels.
	System bool `json:"system,omitempty"`
}

// SimulateResult identifies the queued task.
type SimulateResult struct {
	ID string `json:"id"`
}
