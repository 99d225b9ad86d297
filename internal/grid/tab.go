package grid

import (
	"context"
	"path"

	"github.com/starford/gridedit/internal/models"
)

// Tab returns the rows of the tab at tabPath and their cells, both in weight order.
func (e *Engine) Tab(ctx context.Context, tabPath string) (*models.Tab, error) {
	tabPath, err := e.nodePath(tabPath)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.Lock(tabPath)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := e.loadGroup(tabPath, rowLevel, false)
	if err != nil {
		return nil, err
	}

	tab := &models.Tab{Path: tabPath, Rows: make([]models.Row, 0, len(rows))}
	for _, r := range rows {
		rowPath := path.Join(tabPath, r.name)
		cells, err := e.loadGroup(rowPath, cellLevel, false)
		if err != nil {
			return nil, err
		}
		row := models.Row{
			Path:    rowPath,
			Ordinal: r.ordinal,
			Weight:  r.weight,
			Title:   r.title(),
			Cells:   make([]models.Cell, 0, len(cells)),
		}
		for _, c := range cells {
			cell := models.Cell{
				Path:    path.Join(rowPath, c.name),
				Ordinal: c.ordinal,
				Weight:  c.weight,
				Title:   c.title(),
			}
			if c.doc != nil {
				cell.Row, cell.Column, _ = Heading(c.doc.Body)
			}
			row.Cells = append(row.Cells, cell)
		}
		tab.Rows = append(tab.Rows, row)
	}
	return tab, nil
}
