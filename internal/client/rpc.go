// Package client delivers progress notifications to the connected editor.
package client

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/workdone-progress/internal/jsonrpc"
	"github.com/JakeFAU/workdone-progress/internal/protocol"
)

const tracerName = "github.com/JakeFAU/workdone-progress/internal/client"

// RPC implements progress.Client over a JSON-RPC connection.
type RPC struct {
	conn   *jsonrpc.Conn
	tracer trace.Tracer
	logger *zap.Logger
}

// NewRPC wraps conn. Spans go to the global tracer provider.
func NewRPC(conn *jsonrpc.Conn, logger *zap.Logger) *RPC {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RPC{
		conn:   conn,
		tracer: otel.Tracer(tracerName),
		logger: logger,
	}
}

// CreateProgress sends window/workDoneProgress/create and resolves the
// returned channel with the client's answer. It never blocks.
func (c *RPC) CreateProgress(ctx context.Context, params protocol.WorkDoneProgressCreateParams) <-chan error {
	out := make(chan error, 1)
	ctx, span := c.tracer.Start(ctx, "progress.create",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("progress.token", params.Token)),
	)
	resp, err := c.conn.Call(ctx, protocol.MethodWorkDoneProgressCreate, params)
	if err != nil {
		fail(span, err)
		span.End()
		out <- err
		return out
	}
	go func() {
		defer span.End()
		select {
		case msg := <-resp:
			if msg.Error != nil {
				fail(span, msg.Error)
				out <- msg.Error
				return
			}
			span.SetStatus(codes.Ok, "")
			out <- nil
		case <-ctx.Done():
			err := fmt.Errorf("await progress create: %w", ctx.Err())
			fail(span, err)
			out <- err
		}
	}()
	return out
}

// NotifyProgress sends a $/progress notification.
func (c *RPC) NotifyProgress(ctx context.Context, params protocol.ProgressParams) error {
	return c.conn.Notify(ctx, protocol.MethodProgress, params)
}

// SendProgressReport sends a language/progressReport notification.
func (c *RPC) SendProgressReport(ctx context.Context, report protocol.ProgressReport) error {
	return c.conn.Notify(ctx, protocol.MethodProgressReport, report)
}

// SendStatusReport sends a language/status notification.
func (c *RPC) SendStatusReport(ctx context.Context, report protocol.StatusReport) error {
	return c.conn.Notify(ctx, protocol.MethodStatus, report)
}

func fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
