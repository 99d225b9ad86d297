package index

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/gridedit/internal/apperr"
	"github.com/starford/gridedit/internal/models"
)

// NodeRow represents a row in the nodes table.
type NodeRow struct {
	Path      string
	Kind      models.Kind
	Parent    string
	Ordinal   int
	Weight    *int // nil when the front matter has no usable weight
	Title     string
	Row       int
	Col       int
	Body      string
	Checksum  string
	UpdatedAt time.Time
}

// SearchResult represents one search hit.
type SearchResult struct {
	Path    string      `json:"path"`
	Kind    models.Kind `json:"kind"`
	Title   string      `json:"title"`
	Snippet string      `json:"snippet"`
}

// UpsertNode inserts or replaces a node and its FTS entry within a transaction.
func (db *DB) UpsertNode(n NodeRow) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	var weight sql.NullInt64
	if n.Weight != nil {
		weight = sql.NullInt64{Int64: int64(*n.Weight), Valid: true}
	}
	if n.UpdatedAt.IsZero() {
		n.UpdatedAt = time.Now().UTC()
	}

	_, err = tx.Exec(`
		INSERT INTO nodes (path, kind, parent, ordinal, weight, title, row, col, body, checksum, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			kind       = excluded.kind,
			parent     = excluded.parent,
			ordinal    = excluded.ordinal,
			weight     = excluded.weight,
			title      = excluded.title,
			row        = excluded.row,
			col        = excluded.col,
			body       = excluded.body,
			checksum   = excluded.checksum,
			updated_at = excluded.updated_at
	`, n.Path, string(n.Kind), n.Parent, n.Ordinal, weight, n.Title, n.Row, n.Col, n.Body, n.Checksum, n.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert node: %w", err)
	}

	// FTS upsert (no-op when FTS5 tag is absent).
	if err := ftsUpsert(tx, n.Path, string(n.Kind), n.Title, n.Body); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteNode removes a node and its FTS entry.
func (db *DB) DeleteNode(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, path)
	if _, err := tx.Exec(`DELETE FROM nodes WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: delete node: %w", err)
	}
	return tx.Commit()
}

// GetNode returns the indexed node at path.
func (db *DB) GetNode(path string) (*NodeRow, error) {
	var (
		n      NodeRow
		kind   string
		weight sql.NullInt64
	)
	err := db.conn.QueryRow(`
		SELECT path, kind, parent, ordinal, weight, title, row, col, body, checksum, updated_at
		FROM nodes WHERE path = ?
	`, path).Scan(&n.Path, &kind, &n.Parent, &n.Ordinal, &weight, &n.Title, &n.Row, &n.Col, &n.Body, &n.Checksum, &n.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: node %s: %w", path, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get node: %w", err)
	}
	n.Kind = models.Kind(kind)
	if weight.Valid {
		w := int(weight.Int64)
		n.Weight = &w
	}
	return &n, nil
}

// GetChecksum returns the stored checksum for a node, or empty string if not found.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM nodes WHERE path = ?`, path).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: get checksum: %w", err)
	}
	return cs, nil
}

// AllChecksums returns the checksum of every indexed node keyed by path.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM nodes`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// AllPaths returns every indexed node path.
func (db *DB) AllPaths() (map[string]struct{}, error) {
	checksums, err := db.AllChecksums()
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(checksums))
	for p := range checksums {
		out[p] = struct{}{}
	}
	return out, nil
}

// Counts returns the number of indexed nodes per kind.
func (db *DB) Counts() (map[models.Kind]int, error) {
	rows, err := db.conn.Query(`SELECT kind, count(*) FROM nodes GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("index: counts: %w", err)
	}
	defer rows.Close()
	out := make(map[models.Kind]int)
	for rows.Next() {
		var (
			kind string
			n    int
		)
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		out[models.Kind(kind)] = n
	}
	return out, rows.Err()
}
