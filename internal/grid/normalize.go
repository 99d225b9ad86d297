package grid

import (
	"context"
	"log/slog"
	"path"

	"github.com/starford/gridedit/internal/models"
)

// Normalize renumbers the sibling group at dir from its stored weights. Any
// member whose name, weight, title or headings disagree with its position is
// moved through the two-phase rename. Directories left under staging names by
// an interrupted operation are picked up when their type matches kind.
func (e *Engine) Normalize(ctx context.Context, dir string, kind models.Kind) (*models.Result, error) {
	l, err := levelFor(kind)
	if err != nil {
		return nil, err
	}
	dir, err = e.nodePath(dir)
	if err != nil {
		return nil, err
	}

	lockKey := dir
	if l.kind == models.KindCell {
		lockKey = path.Dir(dir)
	}
	unlock := e.locks.Lock(lockKey)
	defer unlock()

	nodes, err := e.loadGroup(dir, l, true)
	if err != nil {
		return nil, err
	}
	row, _ := rowLevel.ordinal(path.Base(dir))

	p := &plan{op: "normalize", dir: dir, level: l, row: row}
	var stay []*node
	for i, n := range nodes {
		pos := i + 1
		drift, err := e.drifted(dir, l, n, pos, row)
		if err != nil {
			return nil, err
		}
		if drift {
			p.moves = append(p.moves, move{n: n, pos: pos})
		} else {
			stay = append(stay, n)
		}
	}

	if err := e.prepare(p, stay); err != nil {
		return nil, err
	}
	shifts, err := e.apply(ctx, p)
	if err != nil {
		return nil, err
	}

	e.logger.Info("grid: group normalized",
		slog.String("dir", dir),
		slog.String("kind", string(kind)),
		slog.Int("members", len(nodes)),
		slog.Int("shifted", len(shifts)))

	return &models.Result{Path: dir, Shifted: nonNil(shifts)}, nil
}

// drifted reports whether n needs rewriting to sit at pos.
func (e *Engine) drifted(dir string, l level, n *node, pos, row int) (bool, error) {
	if n.parseErr != nil {
		// prepare rejects it with the parse error.
		return true, nil
	}
	if n.name != l.dirName(pos) || !n.hasWeight || n.weight != pos || n.title() != l.title(pos) {
		return true, nil
	}

	switch l.kind {
	case models.KindCell:
		if r, c, ok := Heading(n.doc.Body); ok && (c != pos || (row > 0 && r != row)) {
			return true, nil
		}
	case models.KindRow:
		cells, err := e.loadGroup(path.Join(dir, n.name), cellLevel, false)
		if err != nil {
			return false, err
		}
		for _, c := range cells {
			if c.doc == nil {
				continue
			}
			if r, _, ok := Heading(c.doc.Body); ok && r != pos {
				return true, nil
			}
		}
	}
	return false, nil
}
