package index

import (
	"log/slog"
	"path"
	"strconv"
	"strings"

	"github.com/starford/gridedit/internal/checksum"
	"github.com/starford/gridedit/internal/frontmatter"
	"github.com/starford/gridedit/internal/models"
	"github.com/starford/gridedit/internal/storage"
)

// Change is one index mutation made by Sync.
// Op is one of "created", "updated", "deleted".
type Change struct {
	Op   string
	Path string
}

// Sync walks the content tree and brings the index up to date:
//   - new/changed nodes are parsed and upserted
//   - nodes removed from disk are deleted from the index
//
// Directories under staging names are skipped.
func Sync(db *DB, store storage.Provider, indexFile string, logger *slog.Logger) ([]Change, error) {
	db.syncMu.Lock()
	defer db.syncMu.Unlock()

	metas, err := store.List("", indexFile)
	if err != nil {
		return nil, err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return nil, err
	}

	var changes []Change
	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		nodePath := path.Dir(m.Path)
		if nodePath == "." || isStaged(nodePath) {
			continue
		}
		disk[nodePath] = struct{}{}

		prev, known := checksums[nodePath]
		if known && prev == m.Checksum {
			continue
		}

		data, err := store.Read(m.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if err := indexNode(db, nodePath, data); err != nil {
			logger.Warn("sync: index failed", slog.String("path", nodePath), slog.String("error", err.Error()))
			continue
		}
		op := "updated"
		if !known {
			op = "created"
		}
		changes = append(changes, Change{Op: op, Path: nodePath})
		logger.Debug("sync: indexed", slog.String("path", nodePath), slog.String("op", op))
	}

	// Remove stale entries.
	for p := range checksums {
		if _, ok := disk[p]; ok {
			continue
		}
		if err := db.DeleteNode(p); err != nil {
			logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		changes = append(changes, Change{Op: "deleted", Path: p})
		logger.Debug("sync: removed stale", slog.String("path", p))
	}

	return changes, nil
}

// indexNode parses an index file and upserts its node. Malformed front
// matter is indexed with an inferred kind and the raw text as body.
func indexNode(db *DB, nodePath string, data []byte) error {
	name := path.Base(nodePath)
	parent := path.Dir(nodePath)
	if parent == "." {
		parent = ""
	}

	row := NodeRow{
		Path:     nodePath,
		Kind:     kindFromName(name),
		Parent:   parent,
		Checksum: checksum.Sum(data),
		Body:     string(data),
	}

	if doc, err := frontmatter.Parse(data); err == nil {
		row.Title = doc.Title()
		row.Body = doc.Body
		if k := models.Kind(doc.Type()); k.Valid() {
			row.Kind = k
		}
		if w, ok := doc.Weight(); ok {
			row.Weight = &w
		}
	}

	switch row.Kind {
	case models.KindCell:
		row.Ordinal, _ = suffix(name, "cell")
		row.Col = row.Ordinal
		row.Row, _ = suffix(path.Base(parent), "row")
	case models.KindRow:
		row.Ordinal, _ = suffix(name, "row")
		row.Row = row.Ordinal
	}
	return db.UpsertNode(row)
}

// kindFromName infers a node kind from its directory name.
func kindFromName(name string) models.Kind {
	if _, ok := suffix(name, "cell"); ok {
		return models.KindCell
	}
	if _, ok := suffix(name, "row"); ok {
		return models.KindRow
	}
	return models.KindTab
}

// suffix returns the positive integer that follows prefix in name.
func suffix(name, prefix string) (int, bool) {
	digits, ok := strings.CutPrefix(name, prefix)
	if !ok || digits == "" {
		return 0, false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

func isStaged(nodePath string) bool {
	for _, part := range strings.Split(nodePath, "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}
