package progress

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/workdone-progress/internal/protocol"
)

// gate tracks whether the client acknowledged the progress stream.
type gate int

const (
	gatePending gate = iota
	gateReady
	gateTerminated
)

func (g gate) String() string {
	switch g {
	case gatePending:
		return "pending"
	case gateReady:
		return "ready"
	default:
		return "terminated"
	}
}

// Reporter is the structured Monitor: it owns one $/progress stream. It is
// driven by a single engine goroutine; the handshake completion runs on its own
// goroutine and is serialized with Done through mu, so a Done that lands first
// turns the stream straight into a lone end notification.
type Reporter struct {
	token       string
	job         *Job
	env         Env
	interval    func() time.Duration
	cancelCheck func() bool
	release     func(token string)
	started     time.Time
	logger      *zap.Logger

	mu    sync.Mutex
	st    tracker
	state gate
}

// NewReporter builds a Reporter for job (nil for work without a job) and
// starts the create handshake in the background.
func NewReporter(env Env, job *Job) *Reporter {
	env = env.withDefaults()
	throttle := env.Throttle
	return newReporter(env, job, func() time.Duration { return throttle }, nil, nil)
}

func newReporter(
	env Env,
	job *Job,
	interval func() time.Duration,
	cancelCheck func() bool,
	release func(string),
) *Reporter {
	token := env.newToken()
	r := &Reporter{
		token:       token,
		job:         job,
		env:         env,
		interval:    interval,
		cancelCheck: cancelCheck,
		release:     release,
		started:     env.Clock.Now(),
		logger:      env.Logger.With(zap.String("token", token)),
	}
	r.handshake()
	return r
}

// Token returns the progress token sent to the client.
func (r *Reporter) Token() string {
	return r.token
}

func (r *Reporter) handshake() {
	if r.env.Client == nil {
		return
	}
	if !r.createAllowed() {
		r.logger.Debug("client lacks workDoneProgress; stream stays pending")
		return
	}
	ctx := r.env.BaseContext
	result := r.env.Client.CreateProgress(ctx, protocol.WorkDoneProgressCreateParams{Token: r.token})
	r.emit(StageCreate, "")
	go func() {
		select {
		case err := <-result:
			r.created(err)
		case <-ctx.Done():
		}
	}()
}

// createAllowed reports whether the client accepts server-initiated progress.
// Without recorded preferences the create is attempted.
func (r *Reporter) createAllowed() bool {
	if r.env.Preferences == nil {
		return true
	}
	prefs := r.env.Preferences.ClientPreferences()
	return prefs == nil || prefs.WorkDoneProgressSupported
}

// created performs the single transition out of pending.
func (r *Reporter) created(err error) {
	if err != nil {
		r.logger.Debug("progress create failed; stream stays pending", zap.Error(err))
		r.emit(StageCreateFailed, err.Error())
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != gatePending {
		return
	}
	if r.st.done() {
		r.terminateLocked()
		if r.release != nil {
			r.release(r.token)
		}
		return
	}
	r.state = gateReady
	r.st.lastEmit = r.env.Clock.Now()
	r.notifyLocked(StageBegin, protocol.Begin(r.st.label(r.job), r.st.subTaskName, r.st.percentage()))
}

// BeginTask sets the task name and total and resets the work done.
func (r *Reporter) BeginTask(name string, totalWork int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closedLocked() {
		return
	}
	r.st.begin(name, totalWork)
	r.throttledLocked()
}

// SetTaskName renames the task without emitting.
func (r *Reporter) SetTaskName(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closedLocked() {
		return
	}
	r.st.taskName = name
}

// SubTask records the sub-task text and emits when the text is informative.
func (r *Reporter) SubTask(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closedLocked() {
		return
	}
	if r.st.subTask(name) {
		r.throttledLocked()
	}
}

// Worked adds work units; negative values count as zero.
func (r *Reporter) Worked(work int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closedLocked() {
		return
	}
	r.st.worked(work)
	r.throttledLocked()
}

// Done finishes the task. The end notification bypasses throttling; when the
// handshake is still pending it is sent once the handshake completes.
func (r *Reporter) Done() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.st.finished {
		return
	}
	r.st.finished = true
	if r.state == gateReady {
		r.terminateLocked()
	}
	if r.release != nil {
		r.release(r.token)
	}
}

// IsDone reports whether the task finished or consumed all its work.
func (r *Reporter) IsDone() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.done()
}

// IsCancelled reports the cancellation flag (or the bound context).
func (r *Reporter) IsCancelled() bool {
	r.mu.Lock()
	cancelled := r.st.cancelled
	r.mu.Unlock()
	return cancelled || (r.cancelCheck != nil && r.cancelCheck())
}

// SetCancelled sets the cancellation flag. It never emits.
func (r *Reporter) SetCancelled(cancelled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.st.cancelled = cancelled
}

// Snapshot is a point-in-time view of a reporter.
type Snapshot struct {
	Token      string    `json:"token"`
	Job        string    `json:"job,omitempty"`
	Task       string    `json:"task"`
	SubTask    string    `json:"sub_task,omitempty"`
	TotalWork  int       `json:"total_work"`
	WorkDone   int       `json:"work_done"`
	Percentage *int      `json:"percentage,omitempty"`
	Cancelled  bool      `json:"cancelled"`
	Done       bool      `json:"done"`
	State      string    `json:"state"`
	Started    time.Time `json:"started"`
}

// Snapshot returns the current state.
func (r *Reporter) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Snapshot{
		Token:      r.token,
		Task:       r.st.label(r.job),
		SubTask:    r.st.subTaskName,
		TotalWork:  r.st.totalWork,
		WorkDone:   r.st.workDone,
		Percentage: r.st.percentage(),
		Cancelled:  r.st.cancelled,
		Done:       r.st.done(),
		State:      r.state.String(),
		Started:    r.started,
	}
	if r.job != nil {
		s.Job = r.job.Name
	}
	return s
}

func (r *Reporter) closedLocked() bool {
	return r.st.finished || r.state == gateTerminated
}

// throttledLocked sends a report when the gate is open and the throttle
// allows; otherwise the update is folded into the next permitted emission.
func (r *Reporter) throttledLocked() {
	if r.state != gateReady {
		return
	}
	now := r.env.Clock.Now()
	if !r.st.allow(now, r.interval()) {
		return
	}
	r.st.lastEmit = now
	r.notifyLocked(StageReport, protocol.Report(r.st.subTaskName, r.st.percentage()))
}

func (r *Reporter) terminateLocked() {
	r.state = gateTerminated
	r.notifyLocked(StageEnd, protocol.End())
}

func (r *Reporter) notifyLocked(stage Stage, value protocol.WorkDoneProgress) {
	params := protocol.ProgressParams{Token: r.token, Value: value}
	if err := r.env.Client.NotifyProgress(r.env.BaseContext, params); err != nil {
		r.logger.Debug("progress notification failed", zap.String("kind", string(value.Kind)), zap.Error(err))
	}
	now := r.env.Clock.Now()
	evt := Event{
		Token:      r.token,
		TS:         now,
		Stage:      stage,
		Task:       r.st.label(r.job),
		Message:    r.st.subTaskName,
		Percentage: percentOrUnknown(r.st.percentage()),
		WorkDone:   r.st.workDone,
		TotalWork:  r.st.totalWork,
	}
	if stage == StageEnd {
		evt.Dur = max(now.Sub(r.started), 0)
	}
	r.env.Emitter.Emit(evt)
}

func (r *Reporter) emit(stage Stage, note string) {
	r.env.Emitter.Emit(Event{
		Token:      r.token,
		TS:         r.env.Clock.Now(),
		Stage:      stage,
		Percentage: UnknownPercentage,
		Note:       note,
	})
}

// contextCancelCheck adapts ctx to a cancellation probe.
func contextCancelCheck(ctx context.Context) func() bool {
	if ctx == nil {
		return nil
	}
	return func() bool { return ctx.Err() != nil }
}
