package database

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewSQLiteStore(StoreConfig{Path: MemoryPath, Logger: testLogger()})
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	err = s.RunScript(context.Background(), `
		CREATE TABLE books (id INTEGER PRIMARY KEY AUTOINCREMENT, title TEXT NOT NULL UNIQUE);
		INSERT INTO books (title) VALUES ('Hyperion');
	`)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return s
}

func TestStore_ExecuteRead(t *testing.T) {
	s := testStore(t)

	res, err := s.Execute(context.Background(), "  select id, title from books")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Class != ClassRead {
		t.Fatalf("class = %s", res.Class)
	}
	if len(res.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(res.Rows))
	}
	if res.Rows[0]["title"] != "Hyperion" {
		t.Fatalf("unexpected row %v", res.Rows[0])
	}
}

func TestStore_ExecuteReadEmpty(t *testing.T) {
	s := testStore(t)

	res, err := s.Execute(context.Background(), "SELECT * FROM books WHERE id < 0")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	rows, ok := res.Value().([]map[string]any)
	if !ok || len(rows) != 0 {
		t.Fatalf("expected empty row list, got %#v", res.Value())
	}
}

func TestStore_ExecuteInsert(t *testing.T) {
	s := testStore(t)

	res, err := s.Execute(context.Background(), "INSERT INTO books(title) VALUES ('Dune')")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Class != ClassMutate || res.ChangedRows != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.InsertedID == nil || *res.InsertedID != 2 {
		t.Fatalf("expected inserted id 2, got %v", res.InsertedID)
	}

	v := res.Value().(map[string]any)
	if v["changed_rows"] != int64(1) || v["inserted_id"] != int64(2) {
		t.Fatalf("unexpected value %v", v)
	}
}

func TestStore_ExecuteUpdateHasNoInsertedID(t *testing.T) {
	s := testStore(t)

	res, err := s.Execute(context.Background(), "UPDATE books SET title = 'Hyperion Cantos'")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.ChangedRows != 1 {
		t.Fatalf("changed rows = %d", res.ChangedRows)
	}
	if _, ok := res.Value().(map[string]any)["inserted_id"]; ok {
		t.Fatal("UPDATE must not report an inserted id")
	}
}

func TestStore_ExecuteScript(t *testing.T) {
	s := testStore(t)

	res, err := s.Execute(context.Background(), "INSERT INTO books(title) VALUES('A'); INSERT INTO books(title) VALUES('B')")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Class != ClassScript || !res.Success {
		t.Fatalf("unexpected result %+v", res)
	}
	if v := res.Value().(map[string]any); v["success"] != true {
		t.Fatalf("unexpected value %v", v)
	}

	count, err := s.Execute(context.Background(), "SELECT COUNT(*) AS n FROM books")
	if err != nil {
		t.Fatal(err)
	}
	if count.Rows[0]["n"] != int64(3) {
		t.Fatalf("expected 3 books, got %v", count.Rows[0]["n"])
	}
}

func TestStore_ScriptIsNotAtomic(t *testing.T) {
	s := testStore(t)

	_, err := s.Execute(context.Background(), "INSERT INTO books(title) VALUES('C'); INSERT INTO books(title) VALUES('Hyperion')")
	if err == nil {
		t.Fatal("expected a constraint violation")
	}

	res, err := s.Execute(context.Background(), "SELECT title FROM books WHERE title = 'C'")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Rows) != 1 {
		t.Fatal("statements before the failing one should remain applied")
	}
}

func TestStore_ErrorsPropagate(t *testing.T) {
	s := testStore(t)

	tests := []string{
		"SELEC nonsense",
		"SELECT * FROM missing_table",
		"INSERT INTO books(title) VALUES ('Hyperion')",
	}
	for _, q := range tests {
		if _, err := s.Execute(context.Background(), q); err == nil {
			t.Errorf("Execute(%q) expected error", q)
		}
	}
}

func TestNewSQLiteStore_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "data.db")
	s, err := NewSQLiteStore(StoreConfig{Path: path, Logger: testLogger()})
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()

	if _, err := s.Execute(context.Background(), "CREATE TABLE t (x INTEGER)"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("database file not created: %v", err)
	}
}
