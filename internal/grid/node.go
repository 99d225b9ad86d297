package grid

import (
	"errors"
	"fmt"
	"math"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/starford/gridedit/internal/apperr"
	"github.com/starford/gridedit/internal/frontmatter"
	"github.com/starford/gridedit/internal/models"
)

// missingWeight sorts nodes without a usable weight after every real one.
const missingWeight = math.MaxInt32

// stagePrefix marks directories parked during the stage phase. The leading
// dot keeps them out of the cell<N> / row<N> namespace.
const stagePrefix = ".stage-"

// level describes one kind of sibling group.
type level struct {
	kind   models.Kind
	prefix string
	title  func(pos int) string
}

var (
	cellLevel = level{kind: models.KindCell, prefix: "cell", title: ColumnLabel}
	rowLevel  = level{kind: models.KindRow, prefix: "row", title: RowTitle}
)

func levelFor(kind models.Kind) (level, error) {
	switch kind {
	case models.KindCell:
		return cellLevel, nil
	case models.KindRow:
		return rowLevel, nil
	}
	return level{}, fmt.Errorf("grid: kind %q has no sibling numbering: %w", kind, apperr.ErrInvalidInput)
}

func (l level) dirName(pos int) string {
	return l.prefix + strconv.Itoa(pos)
}

// ordinal parses the numeric suffix of a node directory name.
func (l level) ordinal(name string) (int, bool) {
	digits, ok := strings.CutPrefix(name, l.prefix)
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

// position returns the ordinal encoded in the name of the directory p, which
// must be a node of level l.
func position(p string, l level) (int, error) {
	n, ok := l.ordinal(path.Base(p))
	if !ok {
		return 0, fmt.Errorf("grid: %s is not a %s directory: %w", p, l.kind, apperr.ErrInvalidInput)
	}
	return n, nil
}

// node is one loaded sibling. The id stays fixed while name changes through
// the stage and commit phases.
type node struct {
	id        string
	name      string
	ordinal   int // 0 for staged directories
	weight    int
	hasWeight bool
	doc       *frontmatter.Document
	parseErr  error
}

func (n *node) title() string {
	if n.doc == nil {
		return ""
	}
	return n.doc.Title()
}

// loadGroup reads every sibling of kind l under dir, sorted by weight.
// When withStaged is set, directories left under staging names whose type
// matches l are included.
func (e *Engine) loadGroup(dir string, l level, withStaged bool) ([]*node, error) {
	names, err := e.store.ListDirs(dir)
	if err != nil {
		return nil, fmt.Errorf("grid: list %s: %w", dir, err)
	}

	var out []*node
	for _, name := range names {
		ord, isNode := l.ordinal(name)
		staged := strings.HasPrefix(name, stagePrefix)
		if !isNode && !(withStaged && staged) {
			continue
		}

		n := &node{id: uuid.NewString(), name: name, ordinal: ord, weight: missingWeight}
		data, err := e.store.Read(e.indexPath(path.Join(dir, name)))
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			n.doc = frontmatter.New("")
		case err != nil:
			return nil, fmt.Errorf("grid: load %s: %w", path.Join(dir, name), err)
		default:
			n.doc, n.parseErr = frontmatter.Parse(data)
		}

		if staged && (n.doc == nil || n.doc.Type() != string(l.kind)) {
			continue
		}
		if n.doc != nil {
			if w, ok := n.doc.Weight(); ok {
				n.weight, n.hasWeight = w, true
			}
		}
		out = append(out, n)
	}

	sortNodes(out)
	return out, nil
}

func sortNodes(nodes []*node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		if a.weight != b.weight {
			return a.weight < b.weight
		}
		if a.ordinal != b.ordinal {
			// Staged directories (ordinal 0) after numbered ones.
			if a.ordinal == 0 || b.ordinal == 0 {
				return b.ordinal == 0
			}
			return a.ordinal < b.ordinal
		}
		return a.name < b.name
	})
}

// countBelow returns how many nodes have a weight strictly less than w.
func countBelow(nodes []*node, w int) int {
	n := 0
	for _, s := range nodes {
		if s.weight < w {
			n++
		}
	}
	return n
}

func findNode(nodes []*node, name string) (int, *node) {
	for i, n := range nodes {
		if n.name == name {
			return i, n
		}
	}
	return -1, nil
}

func without(nodes []*node, target *node) []*node {
	out := make([]*node, 0, len(nodes))
	for _, n := range nodes {
		if n != target {
			out = append(out, n)
		}
	}
	return out
}
