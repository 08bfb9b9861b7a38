package progress

import (
	"context"
	"slices"
	"time"

	"github.com/JakeFAU/workdone-progress/internal/preferences"
	"github.com/JakeFAU/workdone-progress/internal/protocol"
)

// Monitor is the unit-of-work surface the execution engine reports against.
// None of its methods fail; calls after a task finished are ignored.
type Monitor interface {
	BeginTask(name string, totalWork int)
	SetTaskName(name string)
	SubTask(name string)
	Worked(work int)
	Done()
	IsCancelled() bool
	SetCancelled(cancelled bool)
}

// Client delivers notifications to the remote client. CreateProgress must not
// block; its channel yields the outcome of the create request once.
type Client interface {
	CreateProgress(ctx context.Context, params protocol.WorkDoneProgressCreateParams) <-chan error
	NotifyProgress(ctx context.Context, params protocol.ProgressParams) error
	SendProgressReport(ctx context.Context, report protocol.ProgressReport) error
	SendStatusReport(ctx context.Context, report protocol.StatusReport) error
}

// Preferences exposes the capabilities the client advertised.
type Preferences interface {
	ClientPreferences() *preferences.ClientPreferences
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces progress tokens.
type IDGenerator interface {
	NewID() (string, error)
}

// InitializationGroup is the job group whose tasks also report on the legacy
// status channel.
const InitializationGroup = "initialization"

// Job describes the engine task a monitor reports for.
type Job struct {
	Name   string
	System bool
	Groups []string
}

// BelongsTo reports whether the job is a member of group.
func (j *Job) BelongsTo(group string) bool {
	if j == nil {
		return false
	}
	return slices.Contains(j.Groups, group)
}
