package audit

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"toolpilot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func sampleEntry(name string, isErr bool) domain.AuditEntry {
	return domain.AuditEntry{
		QueryID:    "q-1",
		CallID:     "c-" + name,
		Capability: name,
		Arguments:  `{"path":"a.txt"}`,
		Outcome:    "ok",
		IsError:    isErr,
		Duration:   42 * time.Millisecond,
		At:         time.Now(),
	}
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(slog.New(slog.NewTextHandler(&buf, nil)))

	sink.Record(context.Background(), sampleEntry("read_file", false))
	sink.Record(context.Background(), sampleEntry("write_file", true))

	out := buf.String()
	if !strings.Contains(out, "capability=read_file") || !strings.Contains(out, "duration_ms=42") {
		t.Fatalf("unexpected log output %q", out)
	}
	if !strings.Contains(out, "level=WARN") {
		t.Fatalf("failed calls should log at warn: %q", out)
	}
}

type countingSink struct{ n int }

func (c *countingSink) Record(context.Context, domain.AuditEntry) { c.n++ }

func TestMulti(t *testing.T) {
	a, b := &countingSink{}, &countingSink{}
	m := Multi{a, nil, b, Discard{}}
	m.Record(context.Background(), sampleEntry("x", false))
	if a.n != 1 || b.n != 1 {
		t.Fatalf("expected every sink to receive the entry, got %d and %d", a.n, b.n)
	}
}

func TestSQLiteSink_RecordAndRecent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	sink, err := NewSQLiteSink(path, testLogger())
	if err != nil {
		t.Fatalf("NewSQLiteSink: %v", err)
	}
	defer sink.Close()

	ctx := context.Background()
	sink.Record(ctx, sampleEntry("read_file", false))
	sink.Record(ctx, sampleEntry("query_database", true))

	got, err := sink.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].Capability != "query_database" || !got[0].IsError {
		t.Fatalf("newest entry first, got %+v", got[0])
	}
	if got[1].QueryID != "q-1" || got[1].CallID != "c-read_file" || got[1].Duration != 42*time.Millisecond {
		t.Fatalf("unexpected entry %+v", got[1])
	}

	limited, err := sink.Recent(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 {
		t.Fatalf("limit not applied, got %d", len(limited))
	}
}

func TestRunMigrations_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	sink, err := NewSQLiteSink(path, testLogger())
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := RunMigrations(sink.db, testLogger()); err != nil {
		t.Fatalf("second migration run: %v", err)
	}
	v, err := GetSchemaVersion(sink.db)
	if err != nil {
		t.Fatal(err)
	}
	if v != schemaVersion {
		t.Fatalf("expected schema version %d, got %d", schemaVersion, v)
	}
	sink.Close()
}
