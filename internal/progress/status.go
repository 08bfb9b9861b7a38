package progress

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/workdone-progress/internal/protocol"
)

// StatusReporter reports on the legacy channels: language/progressReport when
// the client advertised support for it, and language/status "Starting"
// messages for initialization jobs. There is no handshake; only the throttle
// applies.
type StatusReporter struct {
	token    string
	job      *Job
	env      Env
	interval func() time.Duration
	report   formatter
	starting formatter
	logger   *zap.Logger

	mu sync.Mutex
	st tracker
}

// NewStatusReporter builds a StatusReporter for job.
func NewStatusReporter(env Env, job *Job) *StatusReporter {
	env = env.withDefaults()
	throttle := env.Throttle
	return newStatusReporter(env, job, func() time.Duration { return throttle })
}

func newStatusReporter(env Env, job *Job, interval func() time.Duration) *StatusReporter {
	token := env.newToken()
	return &StatusReporter{
		token:    token,
		job:      job,
		env:      env,
		interval: interval,
		report:   formatter{kind: formatProgressReport},
		starting: formatter{kind: formatStarting, serverName: env.ServerName},
		logger:   env.Logger.With(zap.String("token", token), zap.String("channel", "status")),
	}
}

// Token returns the id carried by progress reports.
func (s *StatusReporter) Token() string {
	return s.token
}

// BeginTask sets the task name and total and resets the work done.
func (s *StatusReporter) BeginTask(name string, totalWork int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.finished {
		return
	}
	s.st.begin(name, totalWork)
	s.sendLocked()
}

// SetTaskName renames the task without emitting.
func (s *StatusReporter) SetTaskName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.finished {
		return
	}
	s.st.taskName = name
}

// SubTask records the sub-task text and emits when the text is informative.
func (s *StatusReporter) SubTask(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.finished {
		return
	}
	if s.st.subTask(name) {
		s.sendLocked()
	}
}

// Worked adds work units; negative values count as zero.
func (s *StatusReporter) Worked(work int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.finished {
		return
	}
	s.st.worked(work)
	s.sendLocked()
}

// Done marks the task complete and sends the final status once.
func (s *StatusReporter) Done() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.finished {
		return
	}
	s.st.finished = true
	s.sendLocked()
}

// IsDone reports whether the task finished or consumed all its work.
func (s *StatusReporter) IsDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.done()
}

// IsCancelled reports the cancellation flag.
func (s *StatusReporter) IsCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.cancelled
}

// SetCancelled sets the cancellation flag. It never emits.
func (s *StatusReporter) SetCancelled(cancelled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.cancelled = cancelled
}

func (s *StatusReporter) suppressed() bool {
	if s.job != nil && s.job.System {
		return true
	}
	return s.st.taskName == BlockedTaskName
}

func (s *StatusReporter) sendLocked() {
	if s.env.Client == nil || s.suppressed() {
		return
	}
	now := s.env.Clock.Now()
	if !s.st.allow(now, s.interval()) {
		return
	}
	s.st.lastEmit = now
	task := s.st.label(s.job)
	ctx := s.env.BaseContext

	if s.reportSupported() {
		report := protocol.ProgressReport{
			ID:        s.token,
			Task:      task,
			SubTask:   s.st.subTaskName,
			Status:    s.report.message(&s.st, task),
			TotalWork: s.st.totalWork,
			WorkDone:  s.st.workDone,
			Complete:  s.st.done(),
		}
		if err := s.env.Client.SendProgressReport(ctx, report); err != nil {
			s.logger.Debug("progress report failed", zap.Error(err))
		}
		s.emit(now, StageProgressReport, task, report.Status)
	}
	if s.job.BelongsTo(InitializationGroup) {
		status := protocol.StatusReport{Type: protocol.StatusStarting, Message: s.starting.message(&s.st, task)}
		if err := s.env.Client.SendStatusReport(ctx, status); err != nil {
			s.logger.Debug("status report failed", zap.Error(err))
		}
		s.emit(now, StageStatus, task, status.Message)
	}
}

func (s *StatusReporter) reportSupported() bool {
	if s.env.Preferences == nil {
		return false
	}
	prefs := s.env.Preferences.ClientPreferences()
	return prefs != nil && prefs.ProgressReportSupported
}

func (s *StatusReporter) emit(now time.Time, stage Stage, task, message string) {
	s.env.Emitter.Emit(Event{
		Token:      s.token,
		TS:         now,
		Stage:      stage,
		Task:       task,
		Message:    message,
		Percentage: percentOrUnknown(s.st.percentage()),
		WorkDone:   s.st.workDone,
		TotalWork:  s.st.totalWork,
	})
}
