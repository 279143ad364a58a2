package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite" // register the "sqlite" driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	name       TEXT PRIMARY KEY,
	value      INTEGER NOT NULL,
	updated_at TEXT NOT NULL
);`

// SQLiteStore keeps named checkpoints in a local SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	name string
}

// OpenSQLite opens (and creates if needed) the database at path and returns a
// store for the checkpoint called name.
func OpenSQLite(ctx context.Context, path, name string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrapf(err, "checkpoint: open sqlite %s", path)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "checkpoint: create sqlite schema")
	}
	return &SQLiteStore{db: db, name: name}, nil
}

// Read implements Store.
func (s *SQLiteStore) Read(ctx context.Context) (int64, bool, error) {
	var v int64
	err := s.db.QueryRowContext(ctx, `SELECT value FROM checkpoints WHERE name = ?`, s.name).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, eris.Wrapf(err, "checkpoint: read %s", s.name)
	}
	return v, true, nil
}

// Write implements Store.
func (s *SQLiteStore) Write(ctx context.Context, value int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (name, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		s.name, value, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return eris.Wrapf(err, "checkpoint: write %s", s.name)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
