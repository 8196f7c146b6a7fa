// Package docstore is the client-resident document database. Every farm
// collection gets its own namespace inside one SQLite file, with a change
// sequence per namespace that the sync manager replicates from.
package docstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// FileName is the database file created inside the data directory.
const FileName = "farmsync.db"

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	rev        TEXT NOT NULL,
	seq        INTEGER NOT NULL,
	deleted    INTEGER NOT NULL DEFAULT 0,
	updated_at TEXT NOT NULL,
	origin     TEXT NOT NULL,
	body       TEXT NOT NULL,
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_documents_seq ON documents(collection, seq);
CREATE TABLE IF NOT EXISTS sequences (
	collection TEXT PRIMARY KEY,
	seq        INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS checkpoints (
	collection TEXT NOT NULL,
	direction  TEXT NOT NULL,
	seq        INTEGER NOT NULL,
	PRIMARY KEY (collection, direction)
);
CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// DB wraps the SQLite connection backing every local collection.
type DB struct {
	conn   *sql.DB
	logger *zap.Logger
}

// OpenDir opens (creating if needed) the store inside dir.
func OpenDir(ctx context.Context, dir string, logger *zap.Logger) (*DB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return Open(ctx, filepath.Join(dir, FileName), logger)
}

// Open opens the store at path and applies the schema.
func Open(ctx context.Context, path string, logger *zap.Logger) (*DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single connection serializes UI writes and replicated writes.
	conn.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if _, err := conn.ExecContext(ctx, schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	logger.Debug("local store opened", zap.String("path", path))
	return &DB{conn: conn, logger: logger}, nil
}

// Close releases the underlying connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
