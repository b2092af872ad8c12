package tool

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"toolpilot/internal/domain"
)

type recordingSink struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (r *recordingSink) Record(ctx context.Context, e domain.AuditEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func newTestInvoker(sink domain.AuditSink, tools ...Capability) *Invoker {
	reg := NewRegistry(testLogger())
	for _, c := range tools {
		reg.Add(c)
	}
	return NewInvoker(InvokerConfig{Registry: reg, Audit: sink, Logger: testLogger()})
}

func TestInvoker_UnknownCapability(t *testing.T) {
	inv := newTestInvoker(nil)

	env := inv.Invoke(context.Background(), "delete_everything", map[string]any{})
	if !env.IsError {
		t.Fatal("expected isError envelope")
	}
	if !strings.Contains(env.Text(), "delete_everything") {
		t.Fatalf("error should name the capability, got %q", env.Text())
	}
}

func TestInvoker_ValidationFailure(t *testing.T) {
	stub := &stubTool{
		name:   "greet",
		result: "hi",
		schema: Schema(map[string]Param{"name": {Type: "string"}}, "name"),
	}
	inv := newTestInvoker(nil, stub)

	env := inv.Invoke(context.Background(), "greet", map[string]any{"name": 12.0})
	if !env.IsError || !strings.Contains(env.Text(), `"name"`) {
		t.Fatalf("expected validation error naming the field, got %+v", env)
	}

	env = inv.Invoke(context.Background(), "greet", nil)
	if !env.IsError || !strings.Contains(env.Text(), "missing required") {
		t.Fatalf("expected missing-field error, got %+v", env)
	}
	if stub.calls != 0 {
		t.Fatal("handler must not run when validation fails")
	}
}

func TestInvoker_HandlerErrorBecomesEnvelope(t *testing.T) {
	inv := newTestInvoker(nil, &stubTool{name: "broken", err: errors.New("backend unavailable")})

	env := inv.Invoke(context.Background(), "broken", nil)
	if !env.IsError {
		t.Fatal("expected isError envelope")
	}
	if env.Text() != "backend unavailable" {
		t.Fatalf("expected the error message, got %q", env.Text())
	}
}

func TestInvoker_PanicBecomesEnvelope(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.Register(domain.CapabilityDescriptor{Name: "explode"}, func(ctx context.Context, args map[string]any) (any, error) {
		var m map[string]int
		m["boom"] = 1
		return nil, nil
	})
	inv := NewInvoker(InvokerConfig{Registry: reg, Logger: testLogger()})

	env := inv.Invoke(context.Background(), "explode", nil)
	if !env.IsError || !strings.Contains(env.Text(), "panicked") {
		t.Fatalf("expected panic envelope, got %+v", env)
	}
}

func TestInvoker_DeadlineReportedAsTimeout(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.Register(domain.CapabilityDescriptor{Name: "slow"}, func(ctx context.Context, args map[string]any) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	inv := NewInvoker(InvokerConfig{Registry: reg, Logger: testLogger()})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	env := inv.Invoke(ctx, "slow", nil)
	if !env.IsError || !strings.Contains(env.Text(), "timed out") {
		t.Fatalf("expected timeout envelope, got %+v", env)
	}
}

func TestInvoker_ResultWrapping(t *testing.T) {
	tests := []struct {
		name   string
		result any
		want   string
	}{
		{"string", "plain text", "plain text"},
		{"content", []domain.Content{domain.TextContent("a"), domain.TextContent("b")}, "a\nb"},
		{"struct", map[string]any{"changed_rows": 1}, "{\n  \"changed_rows\": 1\n}"},
		{"nil", nil, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			inv := newTestInvoker(nil, &stubTool{name: "x", result: tc.result})
			env := inv.Invoke(context.Background(), "x", nil)
			if env.IsError {
				t.Fatalf("unexpected error envelope: %q", env.Text())
			}
			if env.Text() != tc.want {
				t.Fatalf("got %q, want %q", env.Text(), tc.want)
			}
		})
	}
}

func TestInvoker_RecordsEveryCall(t *testing.T) {
	sink := &recordingSink{}
	inv := newTestInvoker(sink,
		&stubTool{name: "ok", result: "fine"},
		&stubTool{name: "bad", err: errors.New("nope")},
	)

	ctx := domain.WithCallID(domain.WithQueryID(context.Background(), "q-1"), "call-1")
	inv.Invoke(ctx, "ok", map[string]any{"k": "v"})
	inv.Invoke(ctx, "bad", nil)
	inv.Invoke(ctx, "missing", nil)

	if len(sink.entries) != 3 {
		t.Fatalf("expected 3 audit entries, got %d", len(sink.entries))
	}
	first := sink.entries[0]
	if first.QueryID != "q-1" || first.CallID != "call-1" || first.Capability != "ok" || first.IsError {
		t.Fatalf("unexpected first entry %+v", first)
	}
	if !strings.Contains(first.Arguments, `"k":"v"`) || first.Outcome != "fine" {
		t.Fatalf("unexpected summaries %+v", first)
	}
	if !sink.entries[1].IsError || !sink.entries[2].IsError {
		t.Fatal("failed calls should be recorded as errors")
	}
}

func TestTruncate(t *testing.T) {
	if Truncate("short", 10) != "short" {
		t.Fatal("short strings are unchanged")
	}
	if got := Truncate("abcdefghij", 4); got != "abcd... (truncated)" {
		t.Fatalf("got %q", got)
	}
}
