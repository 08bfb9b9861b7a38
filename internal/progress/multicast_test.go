package progress

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"go.uber.org/zap/zapcore"
)

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type recordingMonitor struct {
	name      string
	log       *callLog
	cancelled bool
	panicOn   string
}

func (m *recordingMonitor) record(call string) {
	if call == m.panicOn {
		panic(m.name + " exploded")
	}
	m.log.add(m.name + "." + call)
}

func (m *recordingMonitor) BeginTask(name string, totalWork int) {
	m.record(fmt.Sprintf("BeginTask(%s,%d)", name, totalWork))
}
func (m *recordingMonitor) SetTaskName(name string) { m.record("SetTaskName(" + name + ")") }
func (m *recordingMonitor) SubTask(name string) { m.record("SubTask(" + name + ")") }
func (m *recordingMonitor) Worked(work int) { m.record(fmt.Sprintf("Worked(%d)", work)) }
func (m *recordingMonitor) Done() { m.record("Done") }
func (m *recordingMonitor) IsCancelled() bool { return m.cancelled }
func (m *recordingMonitor) SetCancelled(cancelled bool) {
	m.cancelled = cancelled
	m.record(fmt.Sprintf("SetCancelled(%t)", cancelled))
}

func TestMulticastFansOutInOrder(t *testing.T) {
	t.Parallel()

	log := &callLog{}
	a := &recordingMonitor{name: "a", log: log}
	b := &recordingMonitor{name: "b", log: log}
	m := NewMulticast(nil, a, b)

	m.BeginTask("t", 3)
	m.SubTask("s")
	m.Worked(1)
	m.Done()

	require.Equal(t, []string{
		"a.BeginTask(t,3)", "b.BeginTask(t,3)",
		"a.SubTask(s)", "b.SubTask(s)",
		"a.Worked(1)", "b.Worked(1)",
		"a.Done", "b.Done",
	}, log.all())
	require.Len(t, m.Members(), 2)
}

func TestMulticastIsCancelledRequiresAllMembers(t *testing.T) {
	t.Parallel()

	log := &callLog{}
	a := &recordingMonitor{name: "a", log: log}
	b := &recordingMonitor{name: "b", log: log}
	m := NewMulticast(nil, a, b)

	require.False(t, m.IsCancelled())
	a.cancelled = true
	require.False(t, m.IsCancelled())
	b.cancelled = true
	require.True(t, m.IsCancelled())

	m.SetCancelled(false)
	require.False(t, a.cancelled)
	require.False(t, b.cancelled)

	require.False(t, NewMulticast(nil).IsCancelled())
}

func TestMulticastIsolatesPanickingMember(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.ErrorLevel)
	log := &callLog{}
	bad := &recordingMonitor{name: "bad", log: log, panicOn: "Done"}
	good := &recordingMonitor{name: "good", log: log}
	m := NewMulticast(zap.New(core), bad, good)

	require.NotPanics(t, m.Done)
	require.Equal(t, []string{"good.Done"}, log.all())
	entries := logs.FilterMessage("monitor member panicked").All()
	require.Len(t, entries, 1)
	require.Equal(t, "Done", entries[0].ContextMap()["op"])
}
