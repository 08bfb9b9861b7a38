// Package server provides the core application server and dependency injection.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/workdone-progress/internal/api"
	"github.com/JakeFAU/workdone-progress/internal/client"
	"github.com/JakeFAU/workdone-progress/internal/clock/system"
	"github.com/JakeFAU/workdone-progress/internal/config"
	"github.com/JakeFAU/workdone-progress/internal/id/uuid"
	"github.com/JakeFAU/workdone-progress/internal/jobs"
	"github.com/JakeFAU/workdone-progress/internal/jsonrpc"
	"github.com/JakeFAU/workdone-progress/internal/logging"
	"github.com/JakeFAU/workdone-progress/internal/preferences"
	"github.com/JakeFAU/workdone-progress/internal/progress"
	"github.com/JakeFAU/workdone-progress/internal/progress/sinks"
	"github.com/JakeFAU/workdone-progress/internal/protocol"
	"github.com/JakeFAU/workdone-progress/internal/session"
	"github.com/JakeFAU/workdone-progress/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

// Options carries what Build cannot read from configuration.
type Options struct {
	// In and Out carry the JSON-RPC stream, usually stdin and stdout.
	In  io.Reader
	Out io.Writer
	// Version is reported in serverInfo and on traces.
	Version string
	// Registerer receives the progress sink collectors. Defaults to
	// prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
	// Logger overrides the logger built from configuration.
	Logger *zap.Logger
	// TracerOptions are passed to the tracer provider, e.g. exporters.
	TracerOptions []sdktrace.TracerProviderOption
}

// App contains the application's dependencies.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	conn       *jsonrpc.Conn
	session    *session.Session
	factory    *progress.Factory
	queue      *jobs.Queue
	runner     *jobs.Runner
	hub        *progress.Hub
	adminSrv   *http.Server
	tracer     *sdktrace.TracerProvider
	baseCancel context.CancelFunc
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	if opts.In == nil || opts.Out == nil {
		return nil, errors.New("server: input and output streams are required")
	}
	logger := opts.Logger
	if logger == nil {
		var err error
		logger, err = logging.New(cfg.Logging.Development)
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
	}
	registerer := opts.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.String("server_name", cfg.Progress.ServerName),
		zap.Duration("throttle", cfg.Progress.Throttle),
		zap.Int("workers", cfg.Jobs.Workers),
		zap.Bool("admin_enabled", cfg.Admin.Enabled),
	)

	tp, err := telemetry.InitTracerProvider(ctx, cfg.Telemetry.ServiceName, opts.Version, opts.TracerOptions...)
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}
	app.tracer = tp

	emitter, err := app.setupHub(registerer)
	if err != nil {
		return nil, err
	}

	prefs := preferences.NewManager(preferences.ClientPreferences{
		ProgressReportSupported:   cfg.Client.ProgressReportSupported,
		WorkDoneProgressSupported: cfg.Client.WorkDoneProgressSupported,
	})
	ids := uuid.New()

	// The connection dispatches to the session, which is built after the
	// factory that needs the connection.
	var sess *session.Session
	app.conn = jsonrpc.NewConn(opts.In, opts.Out, jsonrpc.HandlerFunc(
		func(ctx context.Context, conn *jsonrpc.Conn, msg protocol.Message) {
			sess.Handle(ctx, conn, msg)
		},
	), logger.Named("jsonrpc"))

	baseCtx, baseCancel := context.WithCancel(context.WithoutCancel(ctx))
	app.baseCancel = baseCancel
	app.factory = progress.NewFactory(progress.Env{
		Client:      client.NewRPC(app.conn, logger.Named("client")),
		Preferences: prefs,
		Clock:       system.New(),
		IDs:         ids,
		Emitter:     emitter,
		Logger:      logger.Named("progress"),
		BaseContext: baseCtx,
		Throttle:    cfg.Progress.Throttle,
		ServerName:  cfg.Progress.ServerName,
	})
	app.factory.SetThrottle(cfg.Progress.Throttle)

	app.queue = jobs.NewQueue(cfg.Jobs.QueueDepth)
	app.runner = jobs.NewRunner(app.queue, app.factory, cfg.Jobs.Workers, logger.Named("jobs"))

	sess = session.New(prefs, app.factory, app.runner, ids, session.Options{
		Name:          cfg.Progress.ServerName,
		Version:       opts.Version,
		InitStepDelay: cfg.Progress.InitStepDelay,
	}, logger.Named("session"))
	app.session = sess

	if cfg.Admin.Enabled {
		apiServer := api.NewServer(app.factory, app.runner, ids, sess.Ready, cfg, logger.Named("api"))
		app.adminSrv = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Admin.Port),
			Handler:           apiServer.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	return app, nil
}

func (a *App) setupHub(registerer prometheus.Registerer) (progress.Emitter, error) {
	if !a.cfg.Hub.Enabled {
		a.logger.Info("progress event hub disabled")
		return nil, nil
	}
	promSink, err := sinks.NewPrometheusSink(registerer)
	if err != nil {
		return nil, fmt.Errorf("progress metrics init failed: %w", err)
	}
	sinkList := []progress.Sink{promSink}
	if a.cfg.Hub.LogEvents {
		sinkList = append(sinkList, sinks.NewLogSink(a.logger.Named("progress_log")))
	}
	hubCfg := progress.HubConfig{
		BufferSize:     a.cfg.Hub.BufferSize,
		MaxBatchEvents: a.cfg.Hub.MaxBatchEvents,
		MaxBatchWait:   a.cfg.Hub.MaxBatchWait,
		SinkTimeout:    a.cfg.Hub.SinkTimeout,
		Logger:         a.logger.Named("progress_hub"),
	}
	a.hub = progress.NewHub(hubCfg, sinkList...)
	a.logger.Info("progress hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
	)
	return a.hub, nil
}

// Factory exposes the progress factory.
func (a *App) Factory() *progress.Factory {
	return a.factory
}

// Run serves the client until it exits, the stream ends, or a signal arrives.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	serveCtx, cancelServe := context.WithCancel(gctx)
	defer cancelServe()

	g.Go(func() error {
		a.runner.Run(serveCtx)
		return nil
	})
	g.Go(func() error {
		defer cancelServe()
		if err := a.conn.Serve(serveCtx); err != nil {
			return fmt.Errorf("serve connection: %w", err)
		}
		a.logger.Info("client stream closed")
		return nil
	})
	g.Go(func() error {
		select {
		case <-a.session.Exited():
			a.logger.Info("client requested exit")
			cancelServe()
		case <-serveCtx.Done():
		}
		return nil
	})
	if a.adminSrv != nil {
		g.Go(func() error {
			a.logger.Info("admin server started", zap.String("addr", a.adminSrv.Addr))
			if err := a.adminSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("admin server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-serveCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			if err := a.adminSrv.Shutdown(shutdownCtx); err != nil {
				a.logger.Error("admin server shutdown error", zap.Error(err))
			}
			return nil
		})
	}

	runErr := g.Wait()
	a.logger.Info("shutdown initiated")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return errors.Join(runErr, a.Close(shutdownCtx))
}

// Close gracefully shuts down the application. It is safe to call more than
// once.
func (a *App) Close(ctx context.Context) error {
	a.queue.Close()
	a.baseCancel()
	var errs []error
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("progress hub close: %w", err))
		}
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
		}
	}
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}
