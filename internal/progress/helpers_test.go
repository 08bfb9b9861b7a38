package progress

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/workdone-progress/internal/client/memory"
	"github.com/JakeFAU/workdone-progress/internal/preferences"
	"github.com/JakeFAU/workdone-progress/internal/protocol"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type seqIDs struct {
	n atomic.Int64
}

func (s *seqIDs) NewID() (string, error) {
	return fmt.Sprintf("tok-%d", s.n.Add(1)), nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []Event
}

func (e *recordingEmitter) Emit(evt Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
}

func (e *recordingEmitter) Stages(token string) []Stage {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []Stage
	for _, evt := range e.events {
		if evt.Token == token {
			out = append(out, evt.Stage)
		}
	}
	return out
}

func (e *recordingEmitter) Events() []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Event(nil), e.events...)
}

type testEnv struct {
	env     Env
	client  *memory.Client
	clock   *fakeClock
	emitter *recordingEmitter
	prefs   *preferences.Manager
}

func newTestEnv() *testEnv {
	prefs := preferences.ClientPreferences{ProgressReportSupported: true, WorkDoneProgressSupported: true}
	te := &testEnv{
		client:  memory.New(),
		clock:   newFakeClock(),
		emitter: &recordingEmitter{},
		prefs:   preferences.NewManager(prefs),
	}
	te.env = Env{
		Client:      te.client,
		Preferences: te.prefs,
		Clock:       te.clock,
		IDs:         &seqIDs{},
		Emitter:     te.emitter,
		Logger:      zap.NewNop(),
		ServerName:  "Test Server",
	}
	return te
}

// ready acknowledges the create for token and waits for the begin.
func (te *testEnv) ready(t *testing.T, token string) {
	t.Helper()
	require.True(t, te.client.Ack(token, nil))
	require.Eventually(t, func() bool {
		return len(te.client.ProgressFor(token)) == 1
	}, time.Second, 5*time.Millisecond)
}

func kinds(values []protocol.WorkDoneProgress) []protocol.ProgressKind {
	out := make([]protocol.ProgressKind, 0, len(values))
	for _, v := range values {
		out = append(out, v.Kind)
	}
	return out
}

func intPtr(v int) *int {
	return &v
}

func preferencesWithoutReports() preferences.ClientPreferences {
	return preferences.ClientPreferences{ProgressReportSupported: false, WorkDoneProgressSupported: true}
}
