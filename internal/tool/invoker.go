package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"toolpilot/internal/domain"
)

// ErrUnknownCapability is the cause reported for calls to names the registry lacks.
var ErrUnknownCapability = errors.New("unknown capability")

// UnknownCapabilityEnvelope is the envelope returned for a name nothing is registered under.
func UnknownCapabilityEnvelope(name string) domain.Envelope {
	return domain.ErrorEnvelope(fmt.Sprintf("%s: %s", ErrUnknownCapability, name))
}

const auditSummaryLen = 300

// Invoker validates, executes and normalizes capability calls. It never returns an
// error and never panics: every failure becomes an isError envelope.
type Invoker struct {
	registry *Registry
	audit    domain.AuditSink
	logger   *slog.Logger
}

// InvokerConfig configures NewInvoker. Audit may be nil.
type InvokerConfig struct {
	Registry *Registry
	Audit    domain.AuditSink
	Logger   *slog.Logger
}

func NewInvoker(cfg InvokerConfig) *Invoker {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry(cfg.Logger)
	}
	return &Invoker{
		registry: cfg.Registry,
		audit:    cfg.Audit,
		logger:   cfg.Logger,
	}
}

// Registry returns the registry the invoker dispatches against.
func (inv *Invoker) Registry() *Registry { return inv.registry }

// Invoke runs the named capability with rawArgs.
func (inv *Invoker) Invoke(ctx context.Context, name string, rawArgs map[string]any) domain.Envelope {
	start := time.Now()
	env := inv.invoke(ctx, name, rawArgs)
	inv.record(ctx, name, rawArgs, env, time.Since(start))
	return env
}

func (inv *Invoker) invoke(ctx context.Context, name string, args map[string]any) domain.Envelope {
	e, ok := inv.registry.lookup(name)
	if !ok {
		inv.logger.Warn("unknown capability requested", "name", name)
		return UnknownCapabilityEnvelope(name)
	}

	if args == nil {
		args = map[string]any{}
	}
	if err := Validate(args, e.desc.InputSchema); err != nil {
		return domain.ErrorEnvelope(err.Error())
	}

	result, err := safeCall(ctx, e.handler, args)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return domain.ErrorEnvelope(fmt.Sprintf("%s timed out: %v", name, err))
		}
		return domain.ErrorEnvelope(err.Error())
	}

	content, err := wrapResult(result)
	if err != nil {
		return domain.ErrorEnvelope(err.Error())
	}
	return domain.Envelope{Content: content}
}

// safeCall turns a handler panic into an ordinary error.
func safeCall(ctx context.Context, h Handler, args map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("capability handler panicked", "panic", r, "stack", string(debug.Stack()))
			result = nil
			err = fmt.Errorf("capability panicked: %v", r)
		}
	}()
	return h(ctx, args)
}

func wrapResult(result any) ([]domain.Content, error) {
	switch v := result.(type) {
	case nil:
		return []domain.Content{domain.TextContent("")}, nil
	case string:
		return []domain.Content{domain.TextContent(v)}, nil
	case domain.Content:
		return []domain.Content{v}, nil
	case []domain.Content:
		return v, nil
	default:
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("cannot encode result: %w", err)
		}
		return []domain.Content{domain.TextContent(string(b))}, nil
	}
}

func (inv *Invoker) record(ctx context.Context, name string, args map[string]any, env domain.Envelope, d time.Duration) {
	argSummary, _ := json.Marshal(args)
	entry := domain.AuditEntry{
		QueryID:    domain.QueryIDFrom(ctx),
		CallID:     domain.CallIDFrom(ctx),
		Capability: name,
		Arguments:  Truncate(string(argSummary), auditSummaryLen),
		Outcome:    Truncate(env.Text(), auditSummaryLen),
		IsError:    env.IsError,
		Duration:   d,
		At:         time.Now(),
	}

	inv.logger.Debug("capability invoked",
		"name", name,
		"is_error", env.IsError,
		"duration_ms", d.Milliseconds(),
	)
	if inv.audit != nil {
		// The call's own context may already be past its deadline.
		inv.audit.Record(context.WithoutCancel(ctx), entry)
	}
}

// Truncate shortens s to at most max bytes, marking the cut.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "... (truncated)"
}
