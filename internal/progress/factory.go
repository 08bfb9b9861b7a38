package progress

import (
	"context"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Factory decides which Monitor each engine task reports through.
type Factory struct {
	env      Env
	throttle atomic.Int64
	logger   *zap.Logger

	mu   sync.Mutex
	live map[string]*Reporter
}

// NewFactory builds a Factory over env.
func NewFactory(env Env) *Factory {
	env = env.withDefaults()
	f := &Factory{
		env:    env,
		logger: env.Logger.Named("factory"),
		live:   make(map[string]*Reporter),
	}
	f.throttle.Store(int64(env.Throttle))
	return f
}

// CreateMonitor returns the monitor for job. Initialization jobs report on
// the legacy status channel as well as the structured one.
func (f *Factory) CreateMonitor(job Job) Monitor {
	j := job
	reporter := f.newReporter(&j, nil)
	if j.BelongsTo(InitializationGroup) {
		return NewMulticast(f.env.Logger.Named("multicast"), newStatusReporter(f.env, &j, f.Throttle), reporter)
	}
	return reporter
}

// DefaultMonitor returns a reporter for work not tied to any job.
func (f *Factory) DefaultMonitor() Monitor {
	return f.newReporter(nil, nil)
}

// ProgressGroup returns a monitor for a progress group; groups are not modeled
// separately.
func (f *Factory) ProgressGroup() Monitor {
	return f.DefaultMonitor()
}

// MonitorForContext returns a reporter that also reads as cancelled once ctx
// is done, for request-scoped work.
func (f *Factory) MonitorForContext(ctx context.Context) Monitor {
	return f.newReporter(nil, contextCancelCheck(ctx))
}

// SetThrottle changes the emission interval for existing and future reporters.
func (f *Factory) SetThrottle(d time.Duration) {
	f.throttle.Store(int64(max(d, 0)))
}

// Throttle returns the current emission interval.
func (f *Factory) Throttle() time.Duration {
	return time.Duration(f.throttle.Load())
}

// Cancel flags the live structured reporter with token as cancelled. It
// returns false when no such reporter is running.
func (f *Factory) Cancel(token string) bool {
	f.mu.Lock()
	r, ok := f.live[token]
	f.mu.Unlock()
	if !ok {
		return false
	}
	r.SetCancelled(true)
	f.env.Emitter.Emit(Event{
		Token:      token,
		TS:         f.env.Clock.Now(),
		Stage:      StageCancelRequested,
		Percentage: UnknownPercentage,
	})
	f.logger.Info("progress cancelled by client", zap.String("token", token))
	return true
}

// Active lists running structured reporters, oldest first.
func (f *Factory) Active() []Snapshot {
	f.mu.Lock()
	reporters := make([]*Reporter, 0, len(f.live))
	for _, r := range f.live {
		reporters = append(reporters, r)
	}
	f.mu.Unlock()

	out := make([]Snapshot, 0, len(reporters))
	for _, r := range reporters {
		out = append(out, r.Snapshot())
	}
	slices.SortFunc(out, func(a, b Snapshot) int {
		if c := a.Started.Compare(b.Started); c != 0 {
			return c
		}
		return strings.Compare(a.Token, b.Token)
	})
	return out
}

func (f *Factory) newReporter(job *Job, cancelCheck func() bool) *Reporter {
	r := newReporter(f.env, job, f.Throttle, cancelCheck, f.forget)
	f.mu.Lock()
	f.live[r.Token()] = r
	f.mu.Unlock()
	return r
}

func (f *Factory) forget(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.live, token)
}
