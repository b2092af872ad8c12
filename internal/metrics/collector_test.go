package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"toolpilot/internal/domain"
)

func TestRecord_CountsByOutcome(t *testing.T) {
	c := NewCollector()
	ctx := context.Background()
	c.Record(ctx, domain.AuditEntry{Capability: "read_file", Duration: 20 * time.Millisecond})
	c.Record(ctx, domain.AuditEntry{Capability: "read_file", Duration: 2 * time.Second})
	c.Record(ctx, domain.AuditEntry{Capability: "read_file", IsError: true})

	ok := c.Counter(callsTotal, "", `capability="read_file",outcome="ok"`)
	failed := c.Counter(callsTotal, "", `capability="read_file",outcome="error"`)
	if ok.Value() != 2 || failed.Value() != 1 {
		t.Fatalf("ok=%d error=%d", ok.Value(), failed.Value())
	}
	if h := c.Histogram(callLatency, "", `capability="read_file"`, nil); h.Count() != 3 {
		t.Fatalf("histogram count = %d", h.Count())
	}
}

func TestHistogram_Buckets(t *testing.T) {
	c := NewCollector()
	h := c.Histogram("x_seconds", "x", "", []float64{1, 0.1})
	h.Observe(0.05)
	h.Observe(0.5)
	h.Observe(7)

	out := c.Render()
	for _, want := range []string{
		`x_seconds_bucket{le="0.1"} 1`,
		`x_seconds_bucket{le="1"} 2`,
		`x_seconds_bucket{le="+Inf"} 3`,
		"x_seconds_count 3",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestRender_Deterministic(t *testing.T) {
	c := NewCollector()
	for _, name := range []string{"web_search", "get_weather", "list_dir"} {
		c.Record(context.Background(), domain.AuditEntry{Capability: name})
	}
	first := c.Render()
	for i := 0; i < 5; i++ {
		if c.Render() != first {
			t.Fatal("render order must be stable")
		}
	}
	if strings.Index(first, `capability="get_weather"`) > strings.Index(first, `capability="web_search"`) {
		t.Fatal("series should be sorted by labels")
	}
	if strings.Count(first, "# TYPE "+callsTotal) != 1 {
		t.Fatal("TYPE line must appear once per metric")
	}
}

func TestEscapeLabel(t *testing.T) {
	if got := escapeLabel("a\"b\\c\nd"); got != `a\"b\\c\nd` {
		t.Fatalf("escapeLabel = %q", got)
	}
}

func TestHandler(t *testing.T) {
	c := NewCollector()
	c.Record(context.Background(), domain.AuditEntry{Capability: "execute_code"})

	rec := httptest.NewRecorder()
	c.Handler()(rec, httptest.NewRequest("GET", "/metrics", nil))
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("content type %q", ct)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `toolpilot_capability_calls_total{capability="execute_code",outcome="ok"} 1`) {
		t.Fatalf("unexpected body:\n%s", body)
	}
}
