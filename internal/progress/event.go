package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes which outbound action an Event records.
type Stage string

// Supported event stages.
const (
	StageCreate          Stage = "CREATE"
	StageCreateFailed    Stage = "CREATE_FAILED"
	StageBegin           Stage = "BEGIN"
	StageReport          Stage = "REPORT"
	StageEnd             Stage = "END"
	StageProgressReport  Stage = "PROGRESS_REPORT"
	StageStatus          Stage = "STATUS"
	StageCancelRequested Stage = "CANCEL_REQUESTED"
)

// UnknownPercentage marks an indeterminate Event.Percentage.
const UnknownPercentage = -1

// Event captures one notification (or handshake outcome) sent for a task.
type Event struct {
	// Token identifies the progress stream.
	Token string
	// TS is the timestamp recorded by the reporter's clock.
	TS time.Time
	// Stage is the kind of action.
	Stage Stage
	// Task is the task label at the time of the event.
	Task string
	// Message is the sub-task or formatted status text.
	Message string
	// Percentage is 0-100, or UnknownPercentage.
	Percentage int
	// WorkDone and TotalWork mirror the progress record.
	WorkDone  int
	TotalWork int
	// Dur is the task lifetime, set on StageEnd.
	Dur time.Duration
	// Note carries low-volume debug context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.Token == "" {
		return errors.New("token is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageCreate, StageCreateFailed, StageBegin, StageReport, StageEnd,
		StageProgressReport, StageStatus, StageCancelRequested:
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Percentage < UnknownPercentage || e.Percentage > 100 {
		return fmt.Errorf("percentage %d out of range", e.Percentage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

func percentOrUnknown(p *int) int {
	if p == nil {
		return UnknownPercentage
	}
	return *p
}
