package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/workdone-progress/internal/config"
	"github.com/JakeFAU/workdone-progress/internal/jobs"
	"github.com/JakeFAU/workdone-progress/internal/metrics"
	"github.com/JakeFAU/workdone-progress/internal/progress"
)

// TaskRegistry exposes the live progress streams.
type TaskRegistry interface {
	Active() []progress.Snapshot
	Cancel(token string) bool
}

// Submitter queues background work.
type Submitter interface {
	Submit(ctx context.Context, req jobs.Request) error
}

// IDGenerator names queued jobs.
type IDGenerator interface {
	NewID() (string, error)
}

// ReadinessFunc reports whether the service finished initializing.
type ReadinessFunc func() bool

// Server wires HTTP handlers to the progress factory and job runner.
type Server struct {
	router chi.Router
	tasks  TaskRegistry
	jobs   Submitter
	idGen  IDGenerator
	ready  ReadinessFunc
	cfg    config.Config
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	tasks TaskRegistry,
	submitter Submitter,
	idGen IDGenerator,
	ready ReadinessFunc,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		tasks:  tasks,
		jobs:   submitter,
		idGen:  idGen,
		ready:  ready,
		cfg:    cfg,
		logger: logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Get("/metrics", metrics.Handler().ServeHTTP)

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.listTasks)
			r.Post("/{token}/cancel", s.cancelTask)
		})
		r.With(s.rateLimitMiddleware(newCallerLimiter(cfg.Admin.JobRate, cfg.Admin.JobBurst))).
			Post("/jobs", s.submitJob)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.ready != nil && !s.ready() {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "initializing"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) listTasks(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"tasks": s.tasks.Active()})
}

func (s *Server) cancelTask(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if !s.tasks.Cancel(token) {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"token": token, "status": "cancel_requested"})
}

type jobRequest struct {
	Task           string   `json:"task"`
	Steps          []string `json:"steps"`
	StepDelayMs    int      `json:"step_delay_ms"`
	Indeterminate  bool     `json:"indeterminate"`
	Initialization bool     `json:"initialization"`
	System         bool     `json:"system"`
}

func (s *Server) submitJob(w http.ResponseWriter, r *http.Request) {
	var body jobRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if body.Task == "" {
		s.writeError(w, http.StatusBadRequest, "task required")
		return
	}
	if body.StepDelayMs < 0 {
		s.writeError(w, http.StatusBadRequest, "step_delay_ms must be >= 0")
		return
	}
	jobID, err := s.enqueueJob(r.Context(), body)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, jobs.ErrQueueClosed) {
			status = http.StatusServiceUnavailable
		}
		s.writeError(w, status, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

func (s *Server) enqueueJob(ctx context.Context, body jobRequest) (string, error) {
	jobID, err := s.idGen.NewID()
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}
	job := progress.Job{Name: body.Task, System: body.System}
	if body.Initialization {
		job.Groups = []string{progress.InitializationGroup}
	}
	queueCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req := jobs.Request{
		ID:            jobID,
		Job:           job,
		Task:          body.Task,
		Steps:         body.Steps,
		StepDelay:     time.Duration(body.StepDelayMs) * time.Millisecond,
		Indeterminate: body.Indeterminate,
	}
	if err := s.jobs.Submit(queueCtx, req); err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	return jobID, nil
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		reqID, _ := r.Context().Value(requestIDKey{}).(string)
		s.logger.Info("request completed",
			zap.String("request_id", reqID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeJSON(w, http.StatusForbidden, map[string]string{"error": "unauthorized"}, nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	writeJSON(w, status, payload, s.logger)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg}, s.logger)
}

func writeJSON(w http.ResponseWriter, status int, payload any, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil && logger != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}
