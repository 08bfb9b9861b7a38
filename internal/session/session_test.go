package session

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/workdone-progress/internal/jobs"
	"github.com/JakeFAU/workdone-progress/internal/jsonrpc"
	"github.com/JakeFAU/workdone-progress/internal/preferences"
	"github.com/JakeFAU/workdone-progress/internal/progress"
	"github.com/JakeFAU/workdone-progress/internal/protocol"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Messages(t *testing.T) []protocol.Message {
	t.Helper()
	b.mu.Lock()
	data := append([]byte(nil), b.buf.Bytes()...)
	b.mu.Unlock()
	r := bufio.NewReader(bytes.NewReader(data))
	var out []protocol.Message
	for {
		body, err := jsonrpc.ReadFrame(r)
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		msg, err := protocol.ParseMessage(body)
		require.NoError(t, err)
		out = append(out, msg)
	}
}

type fakeCanceller struct {
	mu     sync.Mutex
	tokens []string
}

func (c *fakeCanceller) Cancel(token string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = append(c.tokens, token)
	return token == "live"
}

type fakeSubmitter struct {
	mu   sync.Mutex
	reqs []jobs.Request
	err  error
}

func (s *fakeSubmitter) TrySubmit(req jobs.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.reqs = append(s.reqs, req)
	return nil
}

type fixedIDs struct{}

func (fixedIDs) NewID() (string, error) { return "job-1", nil }

type fixture struct {
	session   *Session
	conn      *jsonrpc.Conn
	out       *syncBuffer
	prefs     *preferences.Manager
	cancels   *fakeCanceller
	submitter *fakeSubmitter
}

func newFixture() *fixture {
	f := &fixture{
		out:       &syncBuffer{},
		prefs:     preferences.NewManager(preferences.ClientPreferences{}),
		cancels:   &fakeCanceller{},
		submitter: &fakeSubmitter{},
	}
	f.conn = jsonrpc.NewConn(strings.NewReader(""), f.out, nil, zap.NewNop())
	f.session = New(f.prefs, f.cancels, f.submitter, fixedIDs{},
		Options{Name: "progressd", Version: "1.2.3"}, zap.NewNop())
	return f
}

func (f *fixture) request(t *testing.T, method string, params any) {
	t.Helper()
	msg, err := protocol.NewRequest(7, method, params)
	require.NoError(t, err)
	f.session.Handle(context.Background(), f.conn, msg)
}

func (f *fixture) notify(t *testing.T, method string, params any) {
	t.Helper()
	msg, err := protocol.NewNotification(method, params)
	require.NoError(t, err)
	f.session.Handle(context.Background(), f.conn, msg)
}

func TestInitializeStoresPreferences(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.request(t, protocol.MethodInitialize, json.RawMessage(`{
		"capabilities": {"window": {"workDoneProgress": true}},
		"initializationOptions": {"extendedClientCapabilities": {"progressReportProvider": true}}
	}`))

	prefs := f.prefs.ClientPreferences()
	require.True(t, prefs.ProgressReportSupported)
	require.True(t, prefs.WorkDoneProgressSupported)

	replies := f.out.Messages(t)
	require.Len(t, replies, 1)
	require.Nil(t, replies[0].Error)
	var result protocol.InitializeResult
	require.NoError(t, json.Unmarshal(replies[0].Result, &result))
	require.Equal(t, "progressd", result.ServerInfo.Name)
	require.Equal(t, "1.2.3", result.ServerInfo.Version)
}

func TestInitializeRejectsMalformedParams(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.request(t, protocol.MethodInitialize, json.RawMessage(`{"capabilities": 3}`))
	replies := f.out.Messages(t)
	require.Len(t, replies, 1)
	require.Equal(t, protocol.CodeInvalidParams, replies[0].Error.Code)
}

func TestInitializedQueuesInitializationJobOnce(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.notify(t, protocol.MethodInitialized, nil)
	f.notify(t, protocol.MethodInitialized, nil)

	require.Len(t, f.submitter.reqs, 1)
	req := f.submitter.reqs[0]
	require.Equal(t, InitializationTask, req.Task)
	require.True(t, req.Job.BelongsTo(progress.InitializationGroup))
	require.NotEmpty(t, req.Steps)
	require.False(t, f.session.Ready())

	req.OnDone(jobs.Result{Status: jobs.StatusSucceeded})
	require.True(t, f.session.Ready())
	sent := f.out.Messages(t)
	require.Len(t, sent, 1)
	require.Equal(t, protocol.MethodStatus, sent[0].Method)
	require.JSONEq(t, `{"type":"Started","message":"Ready"}`, string(sent[0].Params))
}

func TestInitializationFailureReportsError(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.notify(t, protocol.MethodInitialized, nil)
	f.submitter.reqs[0].OnDone(jobs.Result{Status: jobs.StatusCancelled})
	require.False(t, f.session.Ready())
	sent := f.out.Messages(t)
	require.JSONEq(t, `{"type":"Error","message":"Initialization cancelled"}`, string(sent[0].Params))
}

func TestCancelNotificationReachesFactory(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.notify(t, protocol.MethodWorkDoneProgressCancel, protocol.WorkDoneProgressCancelParams{Token: "live"})
	f.notify(t, protocol.MethodWorkDoneProgressCancel, protocol.WorkDoneProgressCancelParams{Token: "gone"})
	f.notify(t, protocol.MethodWorkDoneProgressCancel, json.RawMessage(`{}`))

	require.Equal(t, []string{"live", "gone"}, f.cancels.tokens)
	require.Empty(t, f.out.Messages(t))
}

func TestSimulateQueuesJob(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.request(t, protocol.MethodSimulate, protocol.SimulateParams{
		Task:           "Build",
		Steps:          []string{"compile", "link"},
		StepDelayMs:    15,
		Initialization: true,
	})

	require.Len(t, f.submitter.reqs, 1)
	req := f.submitter.reqs[0]
	require.Equal(t, "job-1", req.ID)
	require.Equal(t, "Build", req.Job.Name)
	require.True(t, req.Job.BelongsTo(progress.InitializationGroup))
	require.Equal(t, []string{"compile", "link"}, req.Steps)
	require.Equal(t, int64(15), req.StepDelay.Milliseconds())

	replies := f.out.Messages(t)
	require.Len(t, replies, 1)
	require.JSONEq(t, `{"id":"job-1"}`, string(replies[0].Result))
}

func TestSimulateValidation(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.request(t, protocol.MethodSimulate, protocol.SimulateParams{})
	f.submitter.err = errors.New("queue full")
	f.request(t, protocol.MethodSimulate, protocol.SimulateParams{Task: "Build"})

	replies := f.out.Messages(t)
	require.Len(t, replies, 2)
	require.Equal(t, protocol.CodeInvalidParams, replies[0].Error.Code)
	require.Equal(t, protocol.CodeInternalError, replies[1].Error.Code)
	require.Contains(t, replies[1].Error.Message, "queue full")
}

func TestSimulateFailsFastWhenQueueFull(t *testing.T) {
	t.Parallel()

	runner := jobs.NewRunner(jobs.NewQueue(1), progress.NewFactory(progress.Env{}), 1, zap.NewNop())
	require.NoError(t, runner.TrySubmit(jobs.Request{ID: "occupant", Task: "busy"}))
	out := &syncBuffer{}
	conn := jsonrpc.NewConn(strings.NewReader(""), out, nil, zap.NewNop())
	sess := New(preferences.NewManager(preferences.ClientPreferences{}), &fakeCanceller{}, runner,
		fixedIDs{}, Options{}, zap.NewNop())

	msg, err := protocol.NewRequest(9, protocol.MethodSimulate, protocol.SimulateParams{Task: "Build"})
	require.NoError(t, err)
	handled := make(chan struct{})
	go func() {
		sess.Handle(context.Background(), conn, msg)
		close(handled)
	}()
	select {
	case <-handled:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("simulate blocked on a full queue")
	}

	replies := out.Messages(t)
	require.Len(t, replies, 1)
	require.Equal(t, protocol.CodeInternalError, replies[0].Error.Code)
	require.Contains(t, replies[0].Error.Message, jobs.ErrQueueFull.Error())
}

func TestShutdownAndExit(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.request(t, protocol.MethodShutdown, nil)
	f.request(t, protocol.MethodSimulate, protocol.SimulateParams{Task: "late"})
	f.notify(t, protocol.MethodExit, nil)
	f.notify(t, protocol.MethodExit, nil)

	select {
	case <-f.session.Exited():
	default:
		t.Fatal("exit did not close the session")
	}
	replies := f.out.Messages(t)
	require.Len(t, replies, 2)
	require.Nil(t, replies[0].Error)
	require.Equal(t, protocol.CodeInvalidRequest, replies[1].Error.Code)
	require.Empty(t, f.submitter.reqs)
}

func TestUnknownMethod(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.request(t, "textDocument/semanticTokens/full", nil)
	f.notify(t, "$/setTrace", nil)
	replies := f.out.Messages(t)
	require.Len(t, replies, 1)
	require.Equal(t, protocol.CodeMethodNotFound, replies[0].Error.Code)
}
