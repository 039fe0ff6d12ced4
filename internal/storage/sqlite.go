package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// connPragmas apply to the single pooled connection for its lifetime.
var connPragmas = []string{
	"PRAGMA foreign_keys = ON",
	"PRAGMA busy_timeout = 5000",
}

// OpenSQLite opens the ledger database at path, creating the file, its
// directory and the schema on first use. The pool is capped at one
// connection, which serializes writes from parallel generation workers.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := prepare(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func prepare(ctx context.Context, db *sql.DB) error {
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for _, pragma := range connPragmas {
		if _, err := db.ExecContext(pctx, pragma); err != nil {
			return fmt.Errorf("%s: %w", strings.ToLower(pragma), err)
		}
	}
	return BootstrapSQLite(ctx, db)
}

// BootstrapSQLite creates tables/indexes if missing.
func BootstrapSQLite(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
  id           TEXT PRIMARY KEY,
  output_root  TEXT NOT NULL,
  run_dir      TEXT NOT NULL,
  status       TEXT NOT NULL,
  submitted_by TEXT NOT NULL,
  total        INTEGER NOT NULL DEFAULT 0,
  succeeded    INTEGER NOT NULL DEFAULT 0,
  failed       INTEGER NOT NULL DEFAULT 0,
  elapsed_ms   INTEGER,
  last_error   TEXT,
  created_at   TEXT NOT NULL,
  completed_at TEXT
);`,
		`CREATE TABLE IF NOT EXISTS datasets (
  id           TEXT PRIMARY KEY,
  run_id       TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
  position     INTEGER NOT NULL,
  definition   TEXT NOT NULL,
  command      TEXT NOT NULL,
  status       TEXT NOT NULL,
  output_path  TEXT,
  digest       TEXT,
  relabeled    INTEGER NOT NULL DEFAULT 0,
  last_error   TEXT,
  stderr       TEXT,
  started_at   TEXT,
  completed_at TEXT
);`,
		`CREATE INDEX IF NOT EXISTS runs_created_at_idx ON runs(created_at);`,
		`CREATE INDEX IF NOT EXISTS datasets_run_position_idx ON datasets(run_id, position);`,
		`CREATE INDEX IF NOT EXISTS datasets_definition_idx ON datasets(definition);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}
