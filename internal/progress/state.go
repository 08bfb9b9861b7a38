package progress

import (
	"fmt"
	"strings"
	"time"
)

// Reserved task and sub-task names with special handling.
const (
	// ImportTaskName marks the Maven import task whose empty sub-task updates
	// signal a finished transfer and carry no information.
	ImportTaskName = "Importing Maven project(s)"
	// GenericImportTaskName is the build-tool neutral import task name.
	GenericImportTaskName = "Importing project(s)"
	// BlockedTaskName is the engine's "waiting for background work" task.
	BlockedTaskName = "The user operation is waiting for background work to complete."

	backgroundTaskName = "Background task"
	separator          = " - "
)

// tracker is the progress record of one task. Callers serialize access.
type tracker struct {
	taskName    string
	subTaskName string
	totalWork   int
	workDone    int
	cancelled   bool
	finished    bool
	lastEmit    time.Time
}

func (t *tracker) begin(name string, totalWork int) {
	t.taskName = name
	t.totalWork = max(totalWork, 0)
	t.workDone = 0
}

// subTask records the text and reports whether the update should be emitted.
func (t *tracker) subTask(name string) bool {
	t.subTaskName = name
	return !(isImportTask(t.taskName) && name == "")
}

func isImportTask(name string) bool {
	return name == ImportTaskName || name == GenericImportTaskName
}

func (t *tracker) worked(work int) {
	t.workDone += max(work, 0)
}

func (t *tracker) done() bool {
	return t.finished || (t.totalWork > 0 && t.workDone >= t.totalWork)
}

// percentage is nil when the total is too small to express a fraction.
func (t *tracker) percentage() *int {
	if t.totalWork < 2 {
		return nil
	}
	pct := min(t.workDone*100/t.totalWork, 100)
	return &pct
}

func (t *tracker) allow(now time.Time, interval time.Duration) bool {
	return t.lastEmit.IsZero() || t.done() || now.Sub(t.lastEmit) >= interval
}

func (t *tracker) label(job *Job) string {
	if strings.TrimSpace(t.taskName) != "" {
		return t.taskName
	}
	if job != nil && strings.TrimSpace(job.Name) != "" {
		return job.Name
	}
	return backgroundTaskName
}

type formatKind int

const (
	formatStructured formatKind = iota
	formatProgressReport
	formatStarting
)

// formatter renders the human-readable message for one reporter channel.
type formatter struct {
	kind       formatKind
	serverName string
}

func (f formatter) message(t *tracker, task string) string {
	switch f.kind {
	case formatProgressReport:
		if isImportTask(task) && t.subTaskName != "" {
			return task + separator + t.subTaskName
		}
		if t.totalWork > 0 {
			return fmt.Sprintf("%d%% %s", legacyPercent(t), t.subTaskName)
		}
		return t.subTaskName
	case formatStarting:
		msg := "Starting " + f.serverName
		if t.subTaskName != "" {
			msg += separator + t.subTaskName
		}
		if t.totalWork > 0 {
			msg = fmt.Sprintf("%d%% %s", legacyPercent(t), msg)
		}
		return msg
	default:
		return t.subTaskName
	}
}

// legacyPercent rounds half up, unlike the floored structured percentage.
func legacyPercent(t *tracker) int {
	if t.totalWork <= 0 {
		return 0
	}
	return min((t.workDone*200+t.totalWork)/(2*t.totalWork), 100)
}
