package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteSession keeps sessions in a kv table.
type SQLiteSession struct {
	db *sql.DB
}

func OpenSQLite(ctx context.Context, path string) (*SQLiteSession, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite: create dir: %w", err)
	}
	// modernc.org/sqlite registers as "sqlite"
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	stmts := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
		`CREATE TABLE IF NOT EXISTS session (
			k TEXT PRIMARY KEY,
			v BLOB NOT NULL,
			updated_at_unixms INTEGER NOT NULL
		);`,
	}
	for _, st := range stmts {
		if _, err := db.ExecContext(ctx, st); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: init: %w", err)
		}
	}
	return &SQLiteSession{db: db}, nil
}

func (s *SQLiteSession) Get(ctx context.Context, key string) ([]byte, error) {
	var v []byte
	err := s.db.QueryRowContext(ctx, `SELECT v FROM session WHERE k = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return v, err
}

func (s *SQLiteSession) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session (k, v, updated_at_unixms) VALUES (?, ?, ?)
		 ON CONFLICT(k) DO UPDATE SET v = excluded.v, updated_at_unixms = excluded.updated_at_unixms`,
		key, value, time.Now().UnixMilli())
	return err
}

func (s *SQLiteSession) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM session WHERE k = ?`, key)
	return err
}

func (s *SQLiteSession) Close() error { return s.db.Close() }
