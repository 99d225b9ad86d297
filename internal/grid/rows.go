package grid

import (
	"context"
	"fmt"
	"log/slog"
	"path"

	"github.com/starford/gridedit/internal/apperr"
	"github.com/starford/gridedit/internal/models"
)

// InsertRow inserts a row directly below the row at rowPath. Later rows move
// down by one and the row component of their cells' headings follows. The new
// row gets the engine's default cells, A, B, C and so on.
func (e *Engine) InsertRow(ctx context.Context, rowPath string, afterWeight int) (*models.Result, error) {
	rowPath, err := e.nodePath(rowPath)
	if err != nil {
		return nil, err
	}
	tabDir, anchorName := path.Split(rowPath)
	tabDir = path.Clean(tabDir)

	unlock := e.locks.Lock(tabDir)
	defer unlock()

	rows, err := e.loadGroup(tabDir, rowLevel, false)
	if err != nil {
		return nil, err
	}
	idx, anchor := findNode(rows, anchorName)
	if anchor == nil {
		return nil, fmt.Errorf("grid: row %s: %w", rowPath, apperr.ErrNotFound)
	}
	if anchor.weight != afterWeight {
		e.logger.Warn("grid: insert weight differs from anchor row weight",
			slog.String("path", rowPath),
			slog.Int("supplied", afterWeight),
			slog.Int("stored", anchor.weight))
	}

	pos := idx + 2
	name := rowLevel.dirName(pos)

	p := &plan{op: "insert-row", dir: tabDir, level: rowLevel, reserved: []string{name}}
	stay := rows[:idx+1]
	for i, r := range rows[idx+1:] {
		p.moves = append(p.moves, move{n: r, pos: pos + 1 + i})
	}

	if err := e.prepare(p, stay); err != nil {
		return nil, err
	}
	shifts, err := e.apply(ctx, p)
	if err != nil {
		return nil, err
	}

	created := path.Join(tabDir, name)
	if err := e.createRow(created, pos); err != nil {
		return nil, e.afterShift(p, shifts, err)
	}

	e.logger.Info("grid: row inserted",
		slog.String("path", created),
		slog.Int("position", pos),
		slog.Int("shifted", len(shifts)))

	return &models.Result{DirName: name, Path: created, Position: pos, Shifted: nonNil(shifts)}, nil
}

// DeleteRow removes the row at rowPath with all its cells and moves every
// later row up by one.
func (e *Engine) DeleteRow(ctx context.Context, rowPath string) (*models.Result, error) {
	rowPath, err := e.nodePath(rowPath)
	if err != nil {
		return nil, err
	}
	tabDir, name := path.Split(rowPath)
	tabDir = path.Clean(tabDir)

	unlock := e.locks.Lock(tabDir)
	defer unlock()

	rows, err := e.loadGroup(tabDir, rowLevel, false)
	if err != nil {
		return nil, err
	}
	idx, target := findNode(rows, name)
	if target == nil {
		return nil, fmt.Errorf("grid: row %s: %w", rowPath, apperr.ErrNotFound)
	}

	p := &plan{op: "delete-row", dir: tabDir, level: rowLevel}
	others := without(rows, target)
	stay := others[:idx]
	for i, r := range others[idx:] {
		p.moves = append(p.moves, move{n: r, pos: idx + 1 + i})
	}

	if err := e.prepare(p, stay); err != nil {
		return nil, err
	}
	shifts, err := e.removeAndClose(ctx, p, rowPath)
	if err != nil {
		return nil, err
	}

	e.logger.Info("grid: row deleted",
		slog.String("path", rowPath),
		slog.Int("position", idx+1),
		slog.Int("shifted", len(shifts)))

	return &models.Result{DirName: name, Path: rowPath, Position: idx + 1, Shifted: nonNil(shifts)}, nil
}

func (e *Engine) createRow(dir string, pos int) error {
	if err := e.createNode(dir, rowLevel, pos, ""); err != nil {
		return err
	}
	for col := 1; col <= e.rowCells; col++ {
		cell := path.Join(dir, cellLevel.dirName(col))
		if err := e.createNode(cell, cellLevel, col, WrapCell(HeadingLine(pos, col))); err != nil {
			return err
		}
	}
	return nil
}
