package tool

import (
	"context"
	"strings"
	"testing"

	"toolpilot/internal/database"
)

func testQueryInvoker(t *testing.T) *Invoker {
	t.Helper()
	store, err := database.NewSQLiteStore(database.StoreConfig{Path: database.MemoryPath, Logger: testLogger()})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.RunScript(context.Background(), "CREATE TABLE books (id INTEGER PRIMARY KEY, title TEXT NOT NULL)"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return newTestInvoker(nil, NewQueryTool(store))
}

func TestQueryTool_InsertThenSelect(t *testing.T) {
	inv := testQueryInvoker(t)
	ctx := context.Background()

	env := inv.Invoke(ctx, "query_database", map[string]any{"sql": "INSERT INTO books(title) VALUES ('Dune')"})
	if env.IsError {
		t.Fatalf("insert failed: %s", env.Text())
	}
	if !strings.Contains(env.Text(), `"changed_rows": 1`) || !strings.Contains(env.Text(), `"inserted_id": 1`) {
		t.Fatalf("unexpected insert result %s", env.Text())
	}

	env = inv.Invoke(ctx, "query_database", map[string]any{"sql": "select title from books"})
	if env.IsError || !strings.Contains(env.Text(), `"title": "Dune"`) {
		t.Fatalf("unexpected select result %+v", env)
	}
}

func TestQueryTool_ScriptAndErrors(t *testing.T) {
	inv := testQueryInvoker(t)
	ctx := context.Background()

	env := inv.Invoke(ctx, "query_database", map[string]any{"sql": "INSERT INTO books(title) VALUES('A'); INSERT INTO books(title) VALUES('B');"})
	if env.IsError || !strings.Contains(env.Text(), `"success": true`) {
		t.Fatalf("unexpected script result %+v", env)
	}

	env = inv.Invoke(ctx, "query_database", map[string]any{"sql": "SELECT * FROM nope"})
	if !env.IsError || !strings.Contains(env.Text(), "nope") {
		t.Fatalf("store error should surface as isError, got %+v", env)
	}

	env = inv.Invoke(ctx, "query_database", map[string]any{})
	if !env.IsError {
		t.Fatal("missing sql should fail validation")
	}
}
