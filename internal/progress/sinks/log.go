package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/workdone-progress/internal/progress"
)

// LogSink emits structured debug logs for every outbound progress message.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("token", evt.Token),
			zap.String("stage", string(evt.Stage)),
			zap.String("task", evt.Task),
			zap.String("message", evt.Message),
			zap.Int("percentage", evt.Percentage),
			zap.Int("work_done", evt.WorkDone),
			zap.Int("total_work", evt.TotalWork),
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		s.logger.Debug("progress event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
