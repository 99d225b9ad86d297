// Package grid implements the positional renumbering engine that keeps the
// cells of a row and the rows of a tab densely numbered.
//
// A node is a directory named <prefix><ordinal> (cell3, row2) holding an index
// file with title, weight and type in its front matter. Within a sibling group
// the ordinals are exactly 1..N, the weight of each node equals its position in
// ascending-weight order, and the title is derived from that position. Cell
// bodies may carry a "## R<row>C<col>" heading that tracks the live position.
//
// Every shift goes through a two-phase rename: all moved siblings are first
// renamed to unique staging names, then each is rewritten and renamed to its
// final name. There is no rollback; a failure midway returns a *PartialError.
package grid

import (
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/starford/gridedit/internal/apperr"
	"github.com/starford/gridedit/internal/storage"
)

const (
	// DefaultIndexFile is the front-matter file inside every node directory.
	DefaultIndexFile = "_index.md"
	// DefaultRowCells is the number of cells a freshly inserted row receives.
	DefaultRowCells = 3
)

// Engine runs grid operations against a content tree.
type Engine struct {
	store     storage.Provider
	indexFile string
	rowCells  int
	logger    *slog.Logger
	locks     *keyedMutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithIndexFile sets the name of the front-matter file in each node directory.
func WithIndexFile(name string) Option {
	return func(e *Engine) {
		if name != "" {
			e.indexFile = name
		}
	}
}

// WithRowCells sets how many default cells InsertRow creates.
func WithRowCells(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.rowCells = n
		}
	}
}

// WithLogger sets the logger used for operation and partial-failure reports.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an engine over store.
func New(store storage.Provider, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		indexFile: DefaultIndexFile,
		rowCells:  DefaultRowCells,
		logger:    slog.Default(),
		locks:     newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IndexFile returns the configured index file name.
func (e *Engine) IndexFile() string {
	return e.indexFile
}

// nodePath normalises a caller-supplied node path. The path may name the node
// directory or its index file.
func (e *Engine) nodePath(p string) (string, error) {
	cleaned := path.Clean(strings.TrimSpace(p))
	if path.Base(cleaned) == e.indexFile {
		cleaned = path.Dir(cleaned)
	}
	if cleaned == "." || cleaned == "/" || strings.HasPrefix(cleaned, "/") ||
		cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("grid: %q: %w", p, apperr.ErrInvalidPath)
	}
	return cleaned, nil
}

func (e *Engine) indexPath(dir string) string {
	return path.Join(dir, e.indexFile)
}
