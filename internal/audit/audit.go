// Package audit provides the write-only operational log of capability calls.
package audit

import (
	"context"
	"log/slog"

	"toolpilot/internal/domain"
)

// LogSink writes audit entries to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger.With("component", "audit")}
}

func (s *LogSink) Record(ctx context.Context, e domain.AuditEntry) {
	level := slog.LevelInfo
	if e.IsError {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "capability call",
		"query_id", e.QueryID,
		"call_id", e.CallID,
		"capability", e.Capability,
		"args", e.Arguments,
		"outcome", e.Outcome,
		"is_error", e.IsError,
		"duration_ms", e.Duration.Milliseconds(),
	)
}

// Multi fans an entry out to several sinks, in order.
type Multi []domain.AuditSink

func (m Multi) Record(ctx context.Context, e domain.AuditEntry) {
	for _, s := range m {
		if s != nil {
			s.Record(ctx, e)
		}
	}
}

// Discard drops every entry.
type Discard struct{}

func (Discard) Record(context.Context, domain.AuditEntry) {}

var (
	_ domain.AuditSink = (*LogSink)(nil)
	_ domain.AuditSink = Multi(nil)
	_ domain.AuditSink = Discard{}
)
