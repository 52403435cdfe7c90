// Package sinks provides the built-in progress sink implementations.
package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/lewandolfski/driving-school-scraper/internal/progress"
)

// LogSink emits structured logs for the progress stream. It doubles as the
// operator's live view of a run: unit completions, ETA notes and failures.
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
		s.logger.Info("progress",
			zap.String("run_id", evt.RunUUID().String()),
			zap.String("stage", string(evt.Stage)),
			zap.Int("unit", evt.Unit),
			zap.Int("total_units", evt.TotalUnits),
			zap.String("url", evt.URL),
			zap.Int("schools", evt.Schools),
			zap.String("status_class", string(evt.StatusClass)),
			zap.Int("bytes", evt.Bytes),
			zap.Duration("dur", evt.Dur),
			zap.String("note", evt.Note),
		)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
