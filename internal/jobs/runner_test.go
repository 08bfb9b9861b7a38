package jobs

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/workdone-progress/internal/client/memory"
	"github.com/JakeFAU/workdone-progress/internal/progress"
	"github.com/JakeFAU/workdone-progress/internal/protocol"
)

type fakeMonitor struct {
	mu        sync.Mutex
	calls     []string
	cancelAt  int
	worked    int
	cancelled bool
}

func (m *fakeMonitor) add(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *fakeMonitor) BeginTask(name string, totalWork int) {
	m.add(fmt.Sprintf("begin %s %d", name, totalWork))
}

func (m *fakeMonitor) SetTaskName(name string) { m.add("name " + name) }

func (m *fakeMonitor) SubTask(name string) { m.add("sub " + name) }

func (m *fakeMonitor) Worked(work int) {
	m.mu.Lock()
	m.worked += work
	m.mu.Unlock()
	m.add(fmt.Sprintf("worked %d", work))
}

func (m *fakeMonitor) Done() { m.add("done") }

func (m *fakeMonitor) IsCancelled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancelled || (m.cancelAt > 0 && m.worked >= m.cancelAt)
}

func (m *fakeMonitor) SetCancelled(cancelled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled = cancelled
}

func (m *fakeMonitor) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

type fakeSource struct {
	mu       sync.Mutex
	monitors []*fakeMonitor
	jobs     []progress.Job
	cancelAt int
}

func (s *fakeSource) CreateMonitor(job progress.Job) progress.Monitor {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := &fakeMonitor{cancelAt: s.cancelAt}
	s.monitors = append(s.monitors, m)
	s.jobs = append(s.jobs, job)
	return m
}

func TestRunnerExecuteDrivesLifecycle(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	r := NewRunner(NewQueue(1), src, 1, zap.NewNop())
	var got Result
	res := r.Execute(context.Background(), Request{
		ID:     "j1",
		Job:    progress.Job{Name: "index"},
		Task:   "Indexing",
		Steps:  []string{"a", "b"},
		OnDone: func(res Result) { got = res },
	})

	require.Equal(t, StatusSucceeded, res.Status)
	require.Equal(t, 2, res.WorkDone)
	require.Equal(t, res, got)
	require.Equal(t, []string{
		"begin Indexing 2",
		"sub a", "worked 1",
		"sub b", "worked 1",
		"done",
	}, src.monitors[0].Calls())
	require.Equal(t, "index", src.jobs[0].Name)
}

func TestRunnerExecuteIndeterminate(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	r := NewRunner(NewQueue(1), src, 1, nil)
	r.Execute(context.Background(), Request{Task: "Scan", Steps: []string{"x"}, Indeterminate: true})
	require.Equal(t, "begin Scan 0", src.monitors[0].Calls()[0])
}

func TestRunnerExecuteStopsWhenCancelled(t *testing.T) {
	t.Parallel()

	src := &fakeSource{cancelAt: 1}
	r := NewRunner(NewQueue(1), src, 1, zap.NewNop())
	res := r.Execute(context.Background(), Request{Task: "Long", Steps: []string{"a", "b", "c"}})

	require.Equal(t, StatusCancelled, res.Status)
	require.Equal(t, 1, res.WorkDone)
	require.NoError(t, res.Err)
	calls := src.monitors[0].Calls()
	require.Equal(t, "done", calls[len(calls)-1])
}

func TestRunnerExecuteInterruptedByContext(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	r := NewRunner(NewQueue(1), src, 1, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := r.Execute(ctx, Request{Task: "Slow", Steps: []string{"a"}, StepDelay: time.Minute})

	require.Equal(t, StatusCancelled, res.Status)
	require.ErrorIs(t, res.Err, context.Canceled)
	calls := src.monitors[0].Calls()
	require.Equal(t, "done", calls[len(calls)-1])
}

func TestRunnerExecuteRecoversPanics(t *testing.T) {
	t.Parallel()

	r := NewRunner(NewQueue(1), panickingSource{}, 1, zap.NewNop())
	res := r.Execute(context.Background(), Request{ID: "boom", Steps: []string{"a"}})
	require.Equal(t, StatusFailed, res.Status)
	require.ErrorContains(t, res.Err, "step exploded")
}

type panickingSource struct{}

func (panickingSource) CreateMonitor(progress.Job) progress.Monitor {
	return panickingMonitor{}
}

type panickingMonitor struct{ fakeMonitorNoop }

func (panickingMonitor) SubTask(string) { panic("step exploded") }

type fakeMonitorNoop struct{}

func (fakeMonitorNoop) BeginTask(string, int) {}
func (fakeMonitorNoop) SetTaskName(string) {}
func (fakeMonitorNoop) SubTask(string) {}
func (fakeMonitorNoop) Worked(int) {}
func (fakeMonitorNoop) Done() {}
func (fakeMonitorNoop) IsCancelled() bool { return false }
func (fakeMonitorNoop) SetCancelled(bool) {}

func TestRunnerRunProcessesQueue(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	q := NewQueue(4)
	r := NewRunner(q, src, 2, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	results := make(chan Result, 3)
	for i := range 3 {
		require.NoError(t, r.Submit(context.Background(), Request{
			ID:     fmt.Sprintf("job-%d", i),
			Task:   "Queued",
			Steps:  []string{"only"},
			OnDone: func(res Result) { results <- res },
		}))
	}
	for range 3 {
		select {
		case res := <-results:
			require.Equal(t, StatusSucceeded, res.Status)
		case <-time.After(time.Second):
			t.Fatal("job did not finish")
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runner did not stop after context cancel")
	}
}

func TestRunnerStopsWhenQueueClosed(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	r := NewRunner(q, &fakeSource{}, 3, zap.NewNop())
	done := make(chan struct{})
	go func() {
		r.Run(context.Background())
		close(done)
	}()
	q.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runner did not stop after queue close")
	}
	require.Error(t, r.Submit(context.Background(), Request{}))
}

func TestRunnerWithFactoryHonoursClientCancel(t *testing.T) {
	t.Parallel()

	client := memory.NewAutoAck()
	factory := progress.NewFactory(progress.Env{Client: client})
	factory.SetThrottle(0)
	r := NewRunner(NewQueue(1), factory, 1, zap.NewNop())

	resCh := make(chan Result, 1)
	go func() {
		resCh <- r.Execute(context.Background(), Request{
			Job:       progress.Job{Name: "index"},
			Task:      "Indexing",
			Steps:     []string{"a", "b", "c", "d", "e", "f", "g", "h"},
			StepDelay: 20 * time.Millisecond,
		})
	}()
	require.Eventually(t, func() bool {
		return len(factory.Active()) == 1
	}, time.Second, 5*time.Millisecond)
	require.True(t, factory.Cancel(factory.Active()[0].Token))

	select {
	case res := <-resCh:
		require.Equal(t, StatusCancelled, res.Status)
		require.Less(t, res.WorkDone, 8)
	case <-time.After(2 * time.Second):
		t.Fatal("job ignored cancellation")
	}
	token := client.Creates()[0]
	require.Eventually(t, func() bool {
		values := client.ProgressFor(token)
		return len(values) > 0 && values[len(values)-1].Kind == protocol.KindEnd
	}, time.Second, 5*time.Millisecond)
	require.Empty(t, factory.Active())
}
