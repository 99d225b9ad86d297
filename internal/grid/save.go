package grid

import (
	"context"
	"fmt"
	"log/slog"
	"path"

	"github.com/starford/gridedit/internal/apperr"
	"github.com/starford/gridedit/internal/checksum"
	"github.com/starford/gridedit/internal/frontmatter"
	"github.com/starford/gridedit/internal/models"
)

// SaveCell replaces the body of the cell at cellPath with content wrapped in
// the cell shortcode, keeping its front matter. A non-empty ifMatch must equal
// the checksum of the file on disk. A heading in content is set to the cell's
// live row and column.
func (e *Engine) SaveCell(ctx context.Context, cellPath, content, ifMatch string) (*models.Result, error) {
	cellPath, err := e.nodePath(cellPath)
	if err != nil {
		return nil, err
	}
	rowDir := path.Dir(cellPath)
	row, err := position(rowDir, rowLevel)
	if err != nil {
		return nil, err
	}
	col, err := position(cellPath, cellLevel)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.Lock(path.Dir(rowDir))
	defer unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file := e.indexPath(cellPath)
	data, err := e.store.Read(file)
	if err != nil {
		return nil, fmt.Errorf("grid: save %s: %w", cellPath, err)
	}
	if ifMatch != "" && ifMatch != checksum.Sum(data) {
		return nil, fmt.Errorf("grid: save %s: checksum mismatch: %w", cellPath, apperr.ErrConflict)
	}

	doc, err := frontmatter.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("grid: save %s: %w", cellPath, err)
	}
	if !doc.HasFrontMatter {
		return nil, fmt.Errorf("grid: save %s: no front matter: %w", cellPath, apperr.ErrMalformed)
	}

	doc.Body = WrapCell(SetHeading(content, row, col))

	out, err := doc.Render()
	if err != nil {
		return nil, err
	}
	if err := e.store.Write(file, out); err != nil {
		return nil, fmt.Errorf("grid: save %s: %w", cellPath, err)
	}

	e.logger.Info("grid: cell saved", slog.String("path", cellPath), slog.Int("bytes", len(out)))

	return &models.Result{
		DirName:  path.Base(cellPath),
		Path:     cellPath,
		Position: col,
		Checksum: checksum.Sum(out),
		Shifted:  []models.Shift{},
	}, nil
}
