//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"

	"github.com/starford/gridedit/internal/models"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS nodes_fts USING fts5(
			path UNINDEXED,
			kind UNINDEXED,
			title,
			body,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, path, kind, title, body string) error {
	_, _ = tx.Exec(`DELETE FROM nodes_fts WHERE path = ?`, path)
	_, err := tx.Exec(`INSERT INTO nodes_fts (path, kind, title, body) VALUES (?, ?, ?, ?)`,
		path, kind, title, body)
	if err != nil {
		return fmt.Errorf("index: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, path string) {
	_, _ = tx.Exec(`DELETE FROM nodes_fts WHERE path = ?`, path)
}

// Search performs an FTS5 full-text search and returns matching results with snippets.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT path,
		       kind,
		       title,
		       snippet(nodes_fts, 3, '<b>', '</b>', '...', 64)
		FROM nodes_fts
		WHERE nodes_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var (
			r    SearchResult
			kind string
		)
		if err := rows.Scan(&r.Path, &kind, &r.Title, &r.Snippet); err != nil {
			return nil, err
		}
		r.Kind = models.Kind(kind)
		out = append(out, r)
	}
	return out, rows.Err()
}
