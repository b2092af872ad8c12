package domain

import (
	"context"
	"time"
)

// AuditEntry is one record of the operational log: a capability call and its outcome.
type AuditEntry struct {
	QueryID    string
	CallID     string
	Capability string
	Arguments  string // summary, truncated
	Outcome    string // summary, truncated
	IsError    bool
	Duration   time.Duration
	At         time.Time
}

// AuditSink is the write-only operational log. The core never reads it back.
type AuditSink interface {
	Record(ctx context.Context, entry AuditEntry)
}

type ctxKey int

const (
	queryIDKey ctxKey = iota
	callIDKey
)

// WithQueryID tags ctx with the id of the user query being processed.
func WithQueryID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, queryIDKey, id)
}

// QueryIDFrom returns the query id stored by WithQueryID, or "".
func QueryIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(queryIDKey).(string)
	return id
}

// WithCallID tags ctx with the oracle-assigned id of the tool call in flight.
func WithCallID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, callIDKey, id)
}

// CallIDFrom returns the call id stored by WithCallID, or "".
func CallIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(callIDKey).(string)
	return id
}
