package grid

import (
	"context"
	"fmt"
	"log/slog"
	"path"

	"github.com/starford/gridedit/internal/apperr"
	"github.com/starford/gridedit/internal/frontmatter"
	"github.com/starford/gridedit/internal/models"
)

// InsertCell inserts a cell after the cell with weight afterWeight in the row
// that contains cellPath. The new cell's position is one more than the number
// of cells whose weight is below afterWeight+1; every cell at or after that
// position moves one column right.
func (e *Engine) InsertCell(ctx context.Context, cellPath string, afterWeight int) (*models.Result, error) {
	cellPath, err := e.nodePath(cellPath)
	if err != nil {
		return nil, err
	}
	rowDir := path.Dir(cellPath)
	row, err := position(rowDir, rowLevel)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.Lock(path.Dir(rowDir))
	defer unlock()

	cells, err := e.loadGroup(rowDir, cellLevel, false)
	if err != nil {
		return nil, err
	}

	newWeight := afterWeight + 1
	pos := countBelow(cells, newWeight) + 1
	name := cellLevel.dirName(pos)

	p := &plan{op: "insert-cell", dir: rowDir, level: cellLevel, row: row, reserved: []string{name}}
	var stay []*node
	for i, c := range cells {
		if c.weight >= newWeight {
			p.moves = append(p.moves, move{n: c, pos: i + 2})
		} else {
			stay = append(stay, c)
		}
	}

	if err := e.prepare(p, stay); err != nil {
		return nil, err
	}
	shifts, err := e.apply(ctx, p)
	if err != nil {
		return nil, err
	}

	created := path.Join(rowDir, name)
	if err := e.createNode(created, cellLevel, pos, WrapCell(HeadingLine(row, pos))); err != nil {
		return nil, e.afterShift(p, shifts, err)
	}

	e.logger.Info("grid: cell inserted",
		slog.String("path", created),
		slog.Int("position", pos),
		slog.Int("shifted", len(shifts)))

	return &models.Result{DirName: name, Path: created, Position: pos, Shifted: nonNil(shifts)}, nil
}

// DeleteCell removes the cell at cellPath and closes the gap. Weight is the
// only source of truth: the supplied weight must match the weight stored on
// the cell, the gap is count(weight < supplied) + 1, and every sibling at or
// after the gap in weight order moves one column left. A stale weight is
// refused with apperr.ErrConflict before anything changes.
func (e *Engine) DeleteCell(ctx context.Context, cellPath string, weight int) (*models.Result, error) {
	cellPath, err := e.nodePath(cellPath)
	if err != nil {
		return nil, err
	}
	rowDir, name := path.Split(cellPath)
	rowDir = path.Clean(rowDir)
	row, err := position(rowDir, rowLevel)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.Lock(path.Dir(rowDir))
	defer unlock()

	cells, err := e.loadGroup(rowDir, cellLevel, false)
	if err != nil {
		return nil, err
	}
	_, target := findNode(cells, name)
	if target == nil {
		return nil, fmt.Errorf("grid: cell %s: %w", cellPath, apperr.ErrNotFound)
	}
	if target.weight != weight {
		return nil, fmt.Errorf("grid: cell %s has weight %d, caller sent %d: %w",
			cellPath, target.weight, weight, apperr.ErrConflict)
	}

	others := without(cells, target)
	gap := countBelow(others, weight) + 1

	p := &plan{op: "delete-cell", dir: rowDir, level: cellLevel, row: row}
	var stay []*node
	for i, c := range others {
		if i >= gap-1 {
			p.moves = append(p.moves, move{n: c, pos: i + 1})
		} else {
			stay = append(stay, c)
		}
	}

	if err := e.prepare(p, stay); err != nil {
		return nil, err
	}
	shifts, err := e.removeAndClose(ctx, p, cellPath)
	if err != nil {
		return nil, err
	}

	e.logger.Info("grid: cell deleted",
		slog.String("path", cellPath),
		slog.Int("position", gap),
		slog.Int("shifted", len(shifts)))

	return &models.Result{DirName: name, Path: cellPath, Position: gap, Shifted: nonNil(shifts)}, nil
}

// removeAndClose deletes target and shifts its later siblings into the gap.
// Cancellation is honoured only before the delete; once target is gone the
// shift runs to completion regardless of ctx.
func (e *Engine) removeAndClose(ctx context.Context, p *plan, target string) ([]models.Shift, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := e.store.RemoveAll(target); err != nil {
		return nil, fmt.Errorf("grid: delete %s: %w", target, err)
	}
	return e.apply(context.WithoutCancel(ctx), p)
}

// createNode makes a fresh node directory with its index file.
func (e *Engine) createNode(dir string, l level, pos int, body string) error {
	if err := e.store.Mkdir(dir); err != nil {
		return fmt.Errorf("grid: create %s: %w", dir, err)
	}
	doc := frontmatter.New(body)
	doc.SetString(frontmatter.KeyTitle, l.title(pos))
	doc.SetInt(frontmatter.KeyWeight, pos)
	doc.SetString(frontmatter.KeyType, string(l.kind))
	data, err := doc.Render()
	if err != nil {
		return err
	}
	if err := e.store.Write(e.indexPath(dir), data); err != nil {
		return fmt.Errorf("grid: create %s: %w", dir, err)
	}
	return nil
}

// afterShift turns a failure that follows a committed renumber into a
// *PartialError so callers know siblings already moved.
func (e *Engine) afterShift(p *plan, shifts []models.Shift, err error) error {
	if len(shifts) == 0 || isPartial(err) {
		return err
	}
	return e.partial(p, shifts, nil, nil, err)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
