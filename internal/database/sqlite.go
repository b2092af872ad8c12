package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Result is the outcome of Store.Execute. Exactly one shape is populated per class.
type Result struct {
	Class StatementClass

	Rows []map[string]any

	ChangedRows int64
	InsertedID  *int64

	Success bool
}

// Value renders the result in the shape handed back to the oracle.
func (r *Result) Value() any {
	switch r.Class {
	case ClassRead:
		if r.Rows == nil {
			return []map[string]any{}
		}
		return r.Rows
	case ClassMutate:
		out := map[string]any{"changed_rows": r.ChangedRows}
		if r.InsertedID != nil {
			out["inserted_id"] = *r.InsertedID
		}
		return out
	default:
		return map[string]any{"success": r.Success}
	}
}

// Store is the single shared relational handle used by the query capability.
type Store struct {
	db         *sql.DB
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// StoreConfig configures NewSQLiteStore.
type StoreConfig struct {
	Path         string
	ReadKeywords []string
	Logger       *slog.Logger
}

// NewSQLiteStore opens (creating if needed) the SQLite database at cfg.Path.
func NewSQLiteStore(cfg StoreConfig) (*Store, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Path == "" {
		cfg.Path = MemoryPath
	}

	db, err := Open(cfg.Path)
	if err != nil {
		return nil, err
	}

	return &Store{
		db:         db,
		dispatcher: NewDispatcher(cfg.ReadKeywords),
		logger:     cfg.Logger,
	}, nil
}

// Open opens a SQLite database with the pool pinned to a single connection,
// which also keeps an in-memory database alive for the life of the handle.
func Open(path string) (*sql.DB, error) {
	dsn := path
	if path != MemoryPath {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
		}
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	return db, nil
}

// Classify exposes the store's dispatcher.
func (s *Store) Classify(sqlText string) StatementClass {
	return s.dispatcher.Classify(sqlText)
}

// Execute classifies sqlText and runs it in the matching mode. Driver errors are
// returned as-is.
func (s *Store) Execute(ctx context.Context, sqlText string) (*Result, error) {
	class := s.dispatcher.Classify(sqlText)
	s.logger.Debug("executing sql", "class", class.String())

	switch class {
	case ClassRead:
		rows, err := s.query(ctx, sqlText)
		if err != nil {
			return nil, err
		}
		return &Result{Class: ClassRead, Rows: rows}, nil

	case ClassMutate:
		res, err := s.db.ExecContext(ctx, sqlText)
		if err != nil {
			return nil, err
		}
		changed, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		out := &Result{Class: ClassMutate, ChangedRows: changed}
		if insertsRows(sqlText) {
			if id, err := res.LastInsertId(); err == nil && id > 0 {
				out.InsertedID = &id
			}
		}
		return out, nil

	default:
		if err := s.RunScript(ctx, sqlText); err != nil {
			return nil, err
		}
		return &Result{Class: ClassScript, Success: true}, nil
	}
}

// RunScript executes a multi-statement script as a whole. It is not wrapped in a
// transaction: statements that ran before a failing one stay applied.
func (s *Store) RunScript(ctx context.Context, script string) error {
	_, err := s.db.ExecContext(ctx, script)
	return err
}

func (s *Store) query(ctx context.Context, sqlText string) ([]map[string]any, error) {
	rows, err := s.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// insertsRows reports whether a last-insert id is meaningful for the statement.
func insertsRows(sqlText string) bool {
	kw := firstKeyword(normalize(sqlText))
	return kw == "INSERT" || kw == "REPLACE"
}

// DB exposes the underlying handle for collaborators that share it.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error {
	return s.db.Close()
}

