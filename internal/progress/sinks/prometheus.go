package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/workdone-progress/internal/progress"
)

// Notification channels used as metric labels.
const (
	ChannelWorkDone       = "workDoneProgress"
	ChannelProgressReport = "progressReport"
	ChannelStatus         = "status"
)

// PrometheusSink exports progress delivery metrics: notifications per channel
// and kind, handshake outcomes, open streams, task lifetimes and client
// cancellations.
type PrometheusSink struct {
	notifications *prometheus.CounterVec
	handshakes    *prometheus.CounterVec
	activeTasks   prometheus.Gauge
	taskDuration  prometheus.Histogram
	cancellations prometheus.Counter

	tracker *streamTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "progress_notifications_total",
			Help: "Progress notifications sent to the client partitioned by channel and kind.",
		}, []string{"channel", "kind"}),
		handshakes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "progress_handshakes_total",
			Help: "Progress create requests partitioned by outcome.",
		}, []string{"result"}),
		activeTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "progress_active_tasks",
			Help: "Progress streams created and not yet ended.",
		}),
		taskDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "progress_task_duration_seconds",
			Help:    "Lifetime of progress streams from create to end.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900},
		}),
		cancellations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "progress_cancellations_total",
			Help: "Cancellation requests received from the client.",
		}),
		tracker: newStreamTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.notifications,
		s.handshakes,
		s.activeTasks,
		s.taskDuration,
		s.cancellations,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageCreate:
		s.handshakes.WithLabelValues("requested").Inc()
		if s.tracker.start(evt.Token) {
			s.activeTasks.Inc()
		}
	case progress.StageCreateFailed:
		s.handshakes.WithLabelValues("failed").Inc()
		s.finish(evt.Token)
	case progress.StageBegin:
		s.notifications.WithLabelValues(ChannelWorkDone, "begin").Inc()
	case progress.StageReport:
		s.notifications.WithLabelValues(ChannelWorkDone, "report").Inc()
	case progress.StageEnd:
		s.notifications.WithLabelValues(ChannelWorkDone, "end").Inc()
		if evt.Dur > 0 {
			s.taskDuration.Observe(evt.Dur.Seconds())
		}
		s.finish(evt.Token)
	case progress.StageProgressReport:
		s.notifications.WithLabelValues(ChannelProgressReport, "report").Inc()
	case progress.StageStatus:
		s.notifications.WithLabelValues(ChannelStatus, "starting").Inc()
	case progress.StageCancelRequested:
		s.cancellations.Inc()
	}
}

func (s *PrometheusSink) finish(token string) {
	if s.tracker.complete(token) {
		s.activeTasks.Dec()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type streamTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newStreamTracker() *streamTracker {
	return &streamTracker{running: make(map[string]struct{})}
}

func (t *streamTracker) start(token string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[token]; ok {
		return false
	}
	t.running[token] = struct{}{}
	return true
}

func (t *streamTracker) complete(token string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[token]; !ok {
		return false
	}
	delete(t.running, token)
	return true
}
