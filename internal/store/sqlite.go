// Package store persists the change ledger and the batch journal in a local
// SQLite database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

type Store struct {
	Path string
}

func (s Store) Ensure() error {
	if strings.TrimSpace(s.Path) == "" {
		return errors.New("store: missing path")
	}
	return os.MkdirAll(filepath.Dir(s.Path), 0o755)
}

func (s Store) openSQLite(ctx context.Context) (*sql.DB, error) {
	if err := s.Ensure(); err != nil {
		return nil, err
	}
	// modernc.org/sqlite driver name is "sqlite".
	db, err := sql.Open("sqlite", s.Path)
	if err != nil {
		return nil, err
	}
	// The editor and `visedit commit` may run side by side.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if err := migrateSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func migrateSQLite(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			k TEXT PRIMARY KEY,
			v TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ledger_records (
			stack TEXT NOT NULL,
			pos INTEGER NOT NULL,
			id INTEGER NOT NULL,
			kind TEXT NOT NULL,
			selector TEXT NOT NULL,
			included INTEGER NOT NULL,
			json TEXT NOT NULL,
			PRIMARY KEY(stack, id)
		);`,
		`CREATE TABLE IF NOT EXISTS batches (
			id TEXT PRIMARY KEY,
			number INTEGER NOT NULL,
			total INTEGER NOT NULL,
			record_ids_json TEXT NOT NULL,
			status TEXT NOT NULL,
			error TEXT,
			sent_at_unixms INTEGER,
			settled_at_unixms INTEGER
		);`,
		`CREATE INDEX IF NOT EXISTS idx_batches_sent ON batches(sent_at_unixms);`,
	}
	for _, st := range stmts {
		if _, err := db.ExecContext(ctx, st); err != nil {
			return err
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
