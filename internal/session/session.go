// Package session answers the client's JSON-RPC traffic: the initialize
// handshake, cancellation of progress streams, simulated background tasks,
// and shutdown.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/workdone-progress/internal/jobs"
	"github.com/JakeFAU/workdone-progress/internal/jsonrpc"
	"github.com/JakeFAU/workdone-progress/internal/preferences"
	"github.com/JakeFAU/workdone-progress/internal/progress"
	"github.com/JakeFAU/workdone-progress/internal/protocol"
)

// InitializationTask is the task name of the workspace initialization job.
const InitializationTask = "Initialize workspace"

// Canceller flags a live progress stream as cancelled.
type Canceller interface {
	Cancel(token string) bool
}

// Submitter queues background work without blocking the caller.
type Submitter interface {
	TrySubmit(req jobs.Request) error
}

// IDGenerator names submitted jobs.
type IDGenerator interface {
	NewID() (string, error)
}

// Options configures a Session.
type Options struct {
	Name    string
	Version string
	// InitSteps are the sub-tasks of the initialization job.
	InitSteps     []string
	InitStepDelay time.Duration
}

// Session is the jsonrpc.Handler of one client connection.
type Session struct {
	prefs   *preferences.Manager
	cancels Canceller
	jobs    Submitter
	ids     IDGenerator
	opts    Options
	logger  *zap.Logger

	initialized  atomic.Bool
	ready        atomic.Bool
	shuttingDown atomic.Bool
	exitOnce     sync.Once
	exited       chan struct{}
}

// New builds a Session.
func New(
	prefs *preferences.Manager,
	cancels Canceller,
	submitter Submitter,
	ids IDGenerator,
	opts Options,
	logger *zap.Logger,
) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(opts.InitSteps) == 0 {
		opts.InitSteps = []string{"Loading configuration", "Resolving dependencies", "Indexing sources"}
	}
	return &Session{
		prefs:   prefs,
		cancels: cancels,
		jobs:    submitter,
		ids:     ids,
		opts:    opts,
		logger:  logger,
		exited:  make(chan struct{}),
	}
}

// Exited is closed once the client sends exit.
func (s *Session) Exited() <-chan struct{} {
	return s.exited
}

// Ready reports whether the initialization job finished.
func (s *Session) Ready() bool {
	return s.ready.Load()
}

// Handle dispatches one inbound request or notification.
func (s *Session) Handle(ctx context.Context, conn *jsonrpc.Conn, msg protocol.Message) {
	logger := s.logger.With(zap.String("method", msg.Method))
	if s.shuttingDown.Load() && msg.IsRequest() {
		s.send(conn, protocol.NewError(msg.ID, protocol.CodeInvalidRequest, "server is shutting down"), logger)
		return
	}
	switch msg.Method {
	case protocol.MethodInitialize:
		s.initialize(conn, msg, logger)
	case protocol.MethodInitialized:
		s.startInitialization(ctx, conn, logger)
	case protocol.MethodWorkDoneProgressCancel:
		s.cancel(msg, logger)
	case protocol.MethodSimulate:
		s.simulate(ctx, conn, msg, logger)
	case protocol.MethodShutdown:
		s.shuttingDown.Store(true)
		s.reply(conn, msg.ID, nil, logger)
	case protocol.MethodExit:
		s.exitOnce.Do(func() { close(s.exited) })
	default:
		if msg.IsRequest() {
			s.send(conn, protocol.NewMethodNotFound(msg.ID, msg.Method), logger)
			return
		}
		logger.Debug("ignoring notification")
	}
}

func (s *Session) initialize(conn *jsonrpc.Conn, msg protocol.Message, logger *zap.Logger) {
	var params protocol.InitializeParams
	if err := decode(msg.Params, &params); err != nil {
		s.send(conn, protocol.NewInvalidParams(msg.ID, err.Error()), logger)
		return
	}
	prefs := preferences.FromInitialize(params)
	s.prefs.Update(prefs)
	logger.Info("client initialized",
		zap.Bool("work_done_progress", prefs.WorkDoneProgressSupported),
		zap.Bool("progress_report", prefs.ProgressReportSupported),
	)
	s.reply(conn, msg.ID, protocol.InitializeResult{
		Capabilities: map[string]any{
			"experimental": map[string]any{"progressSimulate": true},
		},
		ServerInfo: protocol.ServerInfo{Name: s.opts.Name, Version: s.opts.Version},
	}, logger)
}

func (s *Session) startInitialization(ctx context.Context, conn *jsonrpc.Conn, logger *zap.Logger) {
	if !s.initialized.CompareAndSwap(false, true) {
		logger.Debug("duplicate initialized notification")
		return
	}
	req := jobs.Request{
		ID: s.newID(logger),
		Job: progress.Job{
			Name:   InitializationTask,
			Groups: []string{progress.InitializationGroup},
		},
		Task:      InitializationTask,
		Steps:     s.opts.InitSteps,
		StepDelay: s.opts.InitStepDelay,
		OnDone: func(res jobs.Result) {
			status := protocol.StatusReport{Type: protocol.StatusStarted, Message: "Ready"}
			if res.Status != jobs.StatusSucceeded {
				status = protocol.StatusReport{Type: protocol.StatusError, Message: "Initialization " + string(res.Status)}
			} else {
				s.ready.Store(true)
			}
			if err := conn.Notify(context.WithoutCancel(ctx), protocol.MethodStatus, status); err != nil {
				logger.Debug("status notification failed", zap.Error(err))
			}
		},
	}
	if err := s.submit(req); err != nil {
		logger.Error("initialization job not queued", zap.Error(err))
	}
}

func (s *Session) cancel(msg protocol.Message, logger *zap.Logger) {
	var params protocol.WorkDoneProgressCancelParams
	if err := decode(msg.Params, &params); err != nil || params.Token == "" {
		logger.Debug("malformed cancel notification", zap.Error(err))
		return
	}
	if !s.cancels.Cancel(params.Token) {
		logger.Debug("cancel for unknown progress", zap.String("token", params.Token))
	}
}

func (s *Session) simulate(ctx context.Context, conn *jsonrpc.Conn, msg protocol.Message, logger *zap.Logger) {
	var params protocol.SimulateParams
	if err := decode(msg.Params, &params); err != nil {
		s.send(conn, protocol.NewInvalidParams(msg.ID, err.Error()), logger)
		return
	}
	if params.Task == "" || params.StepDelayMs < 0 {
		s.send(conn, protocol.NewInvalidParams(msg.ID, "task is required and stepDelayMs must be >= 0"), logger)
		return
	}
	job := progress.Job{Name: params.Task, System: params.System}
	if params.Initialization {
		job.Groups = []string{progress.InitializationGroup}
	}
	req := jobs.Request{
		ID:            s.newID(logger),
		Job:           job,
		Task:          params.Task,
		Steps:         params.Steps,
		StepDelay:     time.Duration(params.StepDelayMs) * time.Millisecond,
		Indeterminate: params.Indeterminate,
	}
	if err := s.submit(req); err != nil {
		s.send(conn, protocol.NewError(msg.ID, protocol.CodeInternalError, err.Error()), logger)
		return
	}
	s.reply(conn, msg.ID, protocol.SimulateResult{ID: req.ID}, logger)
}

// submit runs on the connection's read loop, so it never waits for capacity.
func (s *Session) submit(req jobs.Request) error {
	if err := s.jobs.TrySubmit(req); err != nil {
		return fmt.Errorf("submit %s: %w", req.Task, err)
	}
	return nil
}

func (s *Session) newID(logger *zap.Logger) string {
	if s.ids == nil {
		return ""
	}
	id, err := s.ids.NewID()
	if err != nil {
		logger.Warn("job id generation failed", zap.Error(err))
	}
	return id
}

func (s *Session) reply(conn *jsonrpc.Conn, id json.RawMessage, result any, logger *zap.Logger) {
	if err := conn.Reply(id, result); err != nil {
		logger.Debug("reply failed", zap.Error(err))
	}
}

func (s *Session) send(conn *jsonrpc.Conn, msg protocol.Message, logger *zap.Logger) {
	if err := conn.Send(msg); err != nil {
		logger.Debug("send failed", zap.Error(err))
	}
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode params: %w", err)
	}
	return nil
}
