// Package index provides a SQLite-backed index of grid nodes with optional
// FTS5 full-text search over cell bodies.
package index

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS nodes (
	path       TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	parent     TEXT NOT NULL DEFAULT '',
	ordinal    INTEGER NOT NULL DEFAULT 0,
	weight     INTEGER,
	title      TEXT NOT NULL DEFAULT '',
	row        INTEGER NOT NULL DEFAULT 0,
	col        INTEGER NOT NULL DEFAULT 0,
	body       TEXT NOT NULL DEFAULT '',
	checksum   TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_nodes_parent ON nodes(parent);
CREATE INDEX IF NOT EXISTS idx_nodes_kind ON nodes(kind);
`

// DB wraps a sql.DB with index-specific operations.
type DB struct {
	conn   *sql.DB
	syncMu sync.Mutex // serialises Sync passes
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
