package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/workdone-progress/internal/clock/system"
	"github.com/JakeFAU/workdone-progress/internal/metrics"
	"github.com/JakeFAU/workdone-progress/internal/progress"
)

// MonitorSource hands out the monitor a job reports through.
type MonitorSource interface {
	CreateMonitor(job progress.Job) progress.Monitor
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Runner fans queued requests out to a pool of workers.
type Runner struct {
	queue    *Queue
	monitors MonitorSource
	workers  int
	clock    Clock
	logger   *zap.Logger
}

// NewRunner creates a Runner with the given number of workers (minimum one).
func NewRunner(queue *Queue, monitors MonitorSource, workers int, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		queue:    queue,
		monitors: monitors,
		workers:  max(workers, 1),
		clock:    system.New(),
		logger:   logger,
	}
}

// Run starts all workers and blocks until the context finishes or the queue
// is closed and drained.
func (r *Runner) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := range r.workers {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			r.work(ctx, r.logger.With(zap.Int("worker", index)))
		}(i)
	}
	wg.Wait()
}

// Submit proxies to the underlying queue.
func (r *Runner) Submit(ctx context.Context, req Request) error {
	if err := r.queue.Enqueue(ctx, req); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// TrySubmit queues req only when capacity is available right now.
func (r *Runner) TrySubmit(req Request) error {
	if err := r.queue.TryEnqueue(req); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

func (r *Runner) work(ctx context.Context, logger *zap.Logger) {
	for {
		req, err := r.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrQueueClosed) {
				return
			}
			logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		logger.Debug("dequeued job", zap.String("job_id", req.ID), zap.String("task", req.Task))
		res := r.Execute(ctx, req)
		logger.Info("job finished",
			zap.String("job_id", res.ID),
			zap.String("status", string(res.Status)),
			zap.Int("work_done", res.WorkDone),
			zap.Duration("duration", res.Duration),
		)
	}
}

// Execute runs req on the calling goroutine. The monitor is always finished,
// whatever the outcome.
func (r *Runner) Execute(ctx context.Context, req Request) (res Result) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	start := r.clock.Now()
	res = Result{ID: req.ID, Status: StatusSucceeded}
	mon := r.monitors.CreateMonitor(req.Job)
	defer func() {
		if rec := recover(); rec != nil {
			res.Status = StatusFailed
			res.Err = fmt.Errorf("job panicked: %v", rec)
			r.logger.Error("job panicked", zap.String("job_id", req.ID), zap.Any("panic", rec))
		}
		mon.Done()
		res.Duration = r.clock.Now().Sub(start)
		metrics.ObserveJob(string(res.Status), res.Duration)
		if req.OnDone != nil {
			req.OnDone(res)
		}
	}()

	total := len(req.Steps)
	if req.Indeterminate {
		total = 0
	}
	mon.BeginTask(req.Task, total)
	for _, step := range req.Steps {
		if mon.IsCancelled() {
			res.Status = StatusCancelled
			return res
		}
		mon.SubTask(step)
		if err := sleep(ctx, req.StepDelay); err != nil {
			res.Status = StatusCancelled
			res.Err = err
			return res
		}
		mon.Worked(1)
		res.WorkDone++
	}
	return res
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("step interrupted: %w", err)
		}
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("step interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
