package grid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"github.com/google/uuid"

	"github.com/starford/gridedit/internal/apperr"
	"github.com/starford/gridedit/internal/frontmatter"
	"github.com/starford/gridedit/internal/models"
)

// move assigns a sibling its final position.
type move struct {
	n   *node
	pos int
}

// plan is a validated renumbering of one sibling group.
type plan struct {
	op       string
	dir      string
	level    level
	moves    []move
	row      int      // row number written into cell headings; 0 keeps it
	reserved []string // names the caller creates after the commit
}

// prepare checks that p can be committed without touching the disk: every
// moved node has readable front matter and no final name collides with
// another final name, an unmoved sibling or a reserved name.
func (e *Engine) prepare(p *plan, stay []*node) error {
	taken := make(map[string]string, len(p.moves)+len(stay)+len(p.reserved))
	claim := func(name, owner string) error {
		if prev, ok := taken[name]; ok {
			return fmt.Errorf("grid: %s: %s and %s both need %s: %w",
				p.op, prev, owner, path.Join(p.dir, name), apperr.ErrConflict)
		}
		taken[name] = owner
		return nil
	}

	for _, n := range stay {
		if err := claim(n.name, n.name); err != nil {
			return err
		}
	}
	for _, name := range p.reserved {
		if err := claim(name, "new node"); err != nil {
			return err
		}
	}
	for _, mv := range p.moves {
		if mv.n.parseErr != nil {
			return fmt.Errorf("grid: %s: %s: %w", p.op, path.Join(p.dir, mv.n.name), mv.n.parseErr)
		}
		if err := claim(p.level.dirName(mv.pos), mv.n.name); err != nil {
			return err
		}
	}
	return nil
}

type stagedMove struct {
	move
	from  string // name before staging
	stage string // temporary name
}

// apply runs the stage and commit phases of a prepared plan and returns the
// renames it performed.
func (e *Engine) apply(ctx context.Context, p *plan) ([]models.Shift, error) {
	if len(p.moves) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	token := uuid.NewString()[:8]
	staged := make([]stagedMove, 0, len(p.moves))

	// Stage: park every moved sibling under a name outside the real namespace.
	for i, mv := range p.moves {
		s := stagedMove{move: mv, from: mv.n.name, stage: fmt.Sprintf("%s%s-%d", stagePrefix, token, i)}
		if err := e.store.Rename(path.Join(p.dir, s.from), path.Join(p.dir, s.stage)); err != nil {
			return nil, e.partial(p, nil, staged, p.moves[i:], err)
		}
		mv.n.name = s.stage
		staged = append(staged, s)
	}

	// Commit: rewrite front matter, then take the final name.
	shifts := make([]models.Shift, 0, len(staged))
	for i, s := range staged {
		final := p.level.dirName(s.pos)
		if err := e.commit(p, s); err != nil {
			return shifts, e.partial(p, shifts, staged[i:], nil, err)
		}
		if err := e.store.Rename(path.Join(p.dir, s.stage), path.Join(p.dir, final)); err != nil {
			return shifts, e.partial(p, shifts, staged[i:], nil, err)
		}
		s.n.name = final
		s.n.ordinal = s.pos
		s.n.weight, s.n.hasWeight = s.pos, true
		shifts = append(shifts, models.Shift{From: path.Join(p.dir, s.from), To: path.Join(p.dir, final)})
	}
	return shifts, nil
}

// commit rewrites the index file of a staged node for its final position.
func (e *Engine) commit(p *plan, s stagedMove) error {
	doc := s.n.doc
	doc.SetString(frontmatter.KeyTitle, p.level.title(s.pos))
	doc.SetInt(frontmatter.KeyWeight, s.pos)
	if doc.Type() == "" {
		doc.SetString(frontmatter.KeyType, string(p.level.kind))
	}

	dir := path.Join(p.dir, s.stage)
	switch p.level.kind {
	case models.KindCell:
		doc.Body = SetHeading(doc.Body, p.row, s.pos)
	case models.KindRow:
		if err := e.retitleCells(dir, s.pos); err != nil {
			return err
		}
	}

	data, err := doc.Render()
	if err != nil {
		return err
	}
	return e.store.Write(e.indexPath(dir), data)
}

// retitleCells sets the row component of every cell heading under rowDir.
// Columns are left as they are.
func (e *Engine) retitleCells(rowDir string, row int) error {
	cells, err := e.loadGroup(rowDir, cellLevel, false)
	if err != nil {
		return err
	}
	for _, c := range cells {
		if c.parseErr != nil {
			e.logger.Warn("grid: skipping heading of malformed cell",
				slog.String("path", path.Join(rowDir, c.name)),
				slog.String("error", c.parseErr.Error()))
			continue
		}
		body := SetHeading(c.doc.Body, row, 0)
		if body == c.doc.Body {
			continue
		}
		c.doc.Body = body
		data, err := c.doc.Render()
		if err != nil {
			return err
		}
		if err := e.store.Write(e.indexPath(path.Join(rowDir, c.name)), data); err != nil {
			return err
		}
	}
	return nil
}

// PendingMove is a sibling that did not reach its final name.
type PendingMove struct {
	From   string `json:"from"`
	Staged string `json:"staged,omitempty"` // empty when the node was never staged
	To     string `json:"to"`
}

// PartialError reports a renumbering that stopped midway. Committed nodes
// hold their final names; pending ones are under their staging or original
// names. Nothing is rolled back.
type PartialError struct {
	Op        string         `json:"op"`
	Dir       string         `json:"dir"`
	Committed []models.Shift `json:"committed"`
	Pending   []PendingMove  `json:"pending"`
	Err       error          `json:"-"`
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("grid: %s in %s stopped after %d of %d renames: %v",
		e.Op, e.Dir, len(e.Committed), len(e.Committed)+len(e.Pending), e.Err)
}

func (e *PartialError) Unwrap() error { return e.Err }

// Is matches apperr.ErrPartialFailure.
func (e *PartialError) Is(target error) bool {
	return target == apperr.ErrPartialFailure
}

func (e *Engine) partial(p *plan, committed []models.Shift, staged []stagedMove, unstaged []move, err error) error {
	pe := &PartialError{Op: p.op, Dir: p.dir, Committed: committed, Err: err}
	for _, s := range staged {
		pe.Pending = append(pe.Pending, PendingMove{
			From:   path.Join(p.dir, s.from),
			Staged: path.Join(p.dir, s.stage),
			To:     path.Join(p.dir, p.level.dirName(s.pos)),
		})
	}
	for _, mv := range unstaged {
		pe.Pending = append(pe.Pending, PendingMove{
			From: path.Join(p.dir, mv.n.name),
			To:   path.Join(p.dir, p.level.dirName(mv.pos)),
		})
	}
	if pe.Committed == nil {
		pe.Committed = []models.Shift{}
	}

	e.logger.Error("grid: renumber left group partially updated",
		slog.String("op", pe.Op),
		slog.String("dir", pe.Dir),
		slog.Any("committed", pe.Committed),
		slog.Any("pending", pe.Pending),
		slog.String("error", err.Error()))
	return pe
}

// isPartial reports whether err is a *PartialError.
func isPartial(err error) bool {
	var pe *PartialError
	return errors.As(err, &pe)
}
