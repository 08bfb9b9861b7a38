package progress

import (
	"fmt"

	"go.uber.org/zap"
)

// Multicast fans every call out to its members in order. A member that panics
// is logged and skipped; the others still receive the call.
type Multicast struct {
	members []Monitor
	logger  *zap.Logger
}

// NewMulticast combines members into one Monitor.
func NewMulticast(logger *zap.Logger, members ...Monitor) *Multicast {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Multicast{members: append([]Monitor(nil), members...), logger: logger}
}

// BeginTask forwards to every member.
func (m *Multicast) BeginTask(name string, totalWork int) {
	m.each("BeginTask", func(mon Monitor) { mon.BeginTask(name, totalWork) })
}

// SetTaskName forwards to every member.
func (m *Multicast) SetTaskName(name string) {
	m.each("SetTaskName", func(mon Monitor) { mon.SetTaskName(name) })
}

// SubTask forwards to every member.
func (m *Multicast) SubTask(name string) {
	m.each("SubTask", func(mon Monitor) { mon.SubTask(name) })
}

// Worked forwards to every member.
func (m *Multicast) Worked(work int) {
	m.each("Worked", func(mon Monitor) { mon.Worked(work) })
}

// Done forwards to every member.
func (m *Multicast) Done() {
	m.each("Done", func(mon Monitor) { mon.Done() })
}

// SetCancelled forwards to every member.
func (m *Multicast) SetCancelled(cancelled bool) {
	m.each("SetCancelled", func(mon Monitor) { mon.SetCancelled(cancelled) })
}

// IsCancelled is true only when every member reports cancelled. An empty
// Multicast is never cancelled.
func (m *Multicast) IsCancelled() bool {
	if len(m.members) == 0 {
		return false
	}
	for i, mon := range m.members {
		cancelled := false
		m.call(i, "IsCancelled", func() { cancelled = mon.IsCancelled() })
		if !cancelled {
			return false
		}
	}
	return true
}

// Members returns the underlying monitors.
func (m *Multicast) Members() []Monitor {
	return append([]Monitor(nil), m.members...)
}

func (m *Multicast) each(op string, fn func(Monitor)) {
	for i, mon := range m.members {
		m.call(i, op, func() { fn(mon) })
	}
}

func (m *Multicast) call(index int, op string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			m.logger.Error("monitor member panicked",
				zap.String("op", op),
				zap.Int("member", index),
				zap.String("panic", fmt.Sprint(rec)),
			)
		}
	}()
	fn()
}
