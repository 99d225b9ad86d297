// Package testutil provides shared test helpers for building content trees and databases.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/gridedit/internal/index"
	"github.com/starford/gridedit/internal/storage"
)

// IndexFile is the node index file name used by the fixtures.
const IndexFile = "_index.md"

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "gridedit-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestContent creates a temporary content root with a storage.FS.
func TestContent(t *testing.T) (string, *storage.FS) {
	t.Helper()
	root := t.TempDir()
	store, err := storage.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	return root, store
}

// WriteNode writes dir/_index.md under root with the given front matter and body.
func WriteNode(t *testing.T, root, dir, title string, weight int, kind, body string) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(dir))
	if err := os.MkdirAll(abs, 0o755); err != nil {
		t.Fatal(err)
	}
	data := fmt.Sprintf("---\ntitle: %s\nweight: %d\ntype: %s\n---\n%s", title, weight, kind, body)
	if err := os.WriteFile(filepath.Join(abs, IndexFile), []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
}

// CellBody returns a cell body with the R<row>C<col> heading and optional text.
func CellBody(row, col int, text string) string {
	content := fmt.Sprintf("## R%dC%d", row, col)
	if text != "" {
		content += "\n\n" + text
	}
	return "\n{{< cell >}}\n\n" + content + "\n\n{{< /cell >}}\n"
}

// SeedRow writes row number row under tab with cells titled A, B, ... whose
// bodies carry "r<row> <title>" so tests can follow them through renames.
func SeedRow(t *testing.T, root, tab string, row, cells int) {
	t.Helper()
	rowDir := fmt.Sprintf("%s/row%d", tab, row)
	WriteNode(t, root, rowDir, fmt.Sprintf("Row %d", row), row, "row", "")
	for c := 1; c <= cells; c++ {
		label := string(rune('A' + c - 1))
		WriteNode(t, root, fmt.Sprintf("%s/cell%d", rowDir, c), label, c, "cell",
			CellBody(row, c, fmt.Sprintf("r%d %s", row, label)))
	}
}

// SeedTab writes a tab with rows × cells consistent nodes.
func SeedTab(t *testing.T, root, tab string, rows, cells int) {
	t.Helper()
	WriteNode(t, root, tab, "Tab", 1, "tab", "")
	for r := 1; r <= rows; r++ {
		SeedRow(t, root, tab, r, cells)
	}
}
