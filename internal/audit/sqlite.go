package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"toolpilot/internal/database"
	"toolpilot/internal/domain"
)

// SQLiteSink persists audit entries. Write failures are logged, never returned:
// the operational log must not disturb the conversation.
type SQLiteSink struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteSink opens the audit database at path and migrates it.
func NewSQLiteSink(path string, logger *slog.Logger) (*SQLiteSink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := database.Open(path)
	if err != nil {
		return nil, err
	}
	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit database migration failed: %w", err)
	}
	return &SQLiteSink{db: db, logger: logger}, nil
}

func (s *SQLiteSink) Record(ctx context.Context, e domain.AuditEntry) {
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO capability_calls (query_id, call_id, capability, arguments, outcome, is_error, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.QueryID, e.CallID, e.Capability, e.Arguments, e.Outcome, e.IsError, e.Duration.Milliseconds(), at.UTC(),
	)
	if err != nil {
		s.logger.Warn("audit write failed", "capability", e.Capability, "err", err)
	}
}

// Recent returns the newest entries, newest first. Used by operators, not by the core.
func (s *SQLiteSink) Recent(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT query_id, call_id, capability, arguments, outcome, is_error, duration_ms, created_at
		 FROM capability_calls ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AuditEntry
	for rows.Next() {
		var (
			e          domain.AuditEntry
			queryID    sql.NullString
			callID     sql.NullString
			durationMs int64
		)
		if err := rows.Scan(&queryID, &callID, &e.Capability, &e.Arguments, &e.Outcome, &e.IsError, &durationMs, &e.At); err != nil {
			return nil, err
		}
		e.QueryID = queryID.String
		e.CallID = callID.String
		e.Duration = time.Duration(durationMs) * time.Millisecond
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

var _ domain.AuditSink = (*SQLiteSink)(nil)
