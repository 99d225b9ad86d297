package grid

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/gridedit/internal/apperr"
	"github.com/starford/gridedit/internal/models"
	"github.com/starford/gridedit/internal/storage"
	"github.com/starford/gridedit/internal/testutil"
)

func testEngine(t *testing.T, store storage.Provider, opts ...Option) *Engine {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return New(store, append([]Option{WithLogger(logger)}, opts...)...)
}

// nodeState is the observable state of one sibling.
type nodeState struct {
	Name    string
	Weight  int
	Title   string
	Heading string
}

func groupState(t *testing.T, e *Engine, dir string, l level) []nodeState {
	t.Helper()
	nodes, err := e.loadGroup(dir, l, false)
	if err != nil {
		t.Fatalf("loadGroup(%s): %v", dir, err)
	}
	out := make([]nodeState, 0, len(nodes))
	for _, n := range nodes {
		s := nodeState{Name: n.name, Weight: n.weight, Title: n.title()}
		if n.doc == nil {
			out = append(out, s)
			continue
		}
		if r, c, ok := Heading(n.doc.Body); ok {
			s.Heading = fmt.Sprintf("R%dC%d", r, c)
		}
		out = append(out, s)
	}
	return out
}

// checkCells asserts every invariant of the cell group under rowDir.
func checkCells(t *testing.T, e *Engine, rowDir string, row int) {
	t.Helper()
	for i, s := range groupState(t, e, rowDir, cellLevel) {
		pos := i + 1
		want := nodeState{
			Name:    cellLevel.dirName(pos),
			Weight:  pos,
			Title:   ColumnLabel(pos),
			Heading: fmt.Sprintf("R%dC%d", row, pos),
		}
		if s != want {
			t.Errorf("%s position %d = %+v, want %+v", rowDir, pos, s, want)
		}
	}
	names, err := e.store.ListDirs(rowDir)
	if err != nil {
		t.Fatalf("ListDirs(%s): %v", rowDir, err)
	}
	for _, name := range names {
		if strings.HasPrefix(name, stagePrefix) {
			t.Errorf("staging directory left behind: %s/%s", rowDir, name)
		}
	}
}

func readBody(t *testing.T, root, dir string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(dir), testutil.IndexFile))
	if err != nil {
		t.Fatalf("read %s: %v", dir, err)
	}
	return string(data)
}

func TestInsertCell_Scenario(t *testing.T) {
	root, store := testutil.TestContent(t)
	testutil.SeedTab(t, root, "tab1", 1, 3)
	e := testEngine(t, store)

	res, err := e.InsertCell(context.Background(), "tab1/row1/cell2", 2)
	if err != nil {
		t.Fatalf("InsertCell: %v", err)
	}
	if res.DirName != "cell3" || res.Path != "tab1/row1/cell3" || res.Position != 3 {
		t.Errorf("result = %+v", res)
	}
	wantShift := []models.Shift{{From: "tab1/row1/cell3", To: "tab1/row1/cell4"}}
	if diff := cmp.Diff(wantShift, res.Shifted); diff != "" {
		t.Errorf("shifted (-want +got):\n%s", diff)
	}

	want := []nodeState{
		{Name: "cell1", Weight: 1, Title: "A", Heading: "R1C1"},
		{Name: "cell2", Weight: 2, Title: "B", Heading: "R1C2"},
		{Name: "cell3", Weight: 3, Title: "C", Heading: "R1C3"},
		{Name: "cell4", Weight: 4, Title: "D", Heading: "R1C4"},
	}
	if diff := cmp.Diff(want, groupState(t, e, "tab1/row1", cellLevel)); diff != "" {
		t.Errorf("cells (-want +got):\n%s", diff)
	}

	if body := readBody(t, root, "tab1/row1/cell4"); !strings.Contains(body, "r1 C") {
		t.Errorf("former C did not move to cell4:\n%s", body)
	}
	if body := readBody(t, root, "tab1/row1/cell3"); strings.Contains(body, "r1 ") {
		t.Errorf("new cell should have a fresh body:\n%s", body)
	}
}

func TestInsertCell_ShiftsCRLFHeading(t *testing.T) {
	root, store := testutil.TestContent(t)
	testutil.SeedRow(t, root, "tab1", 1, 1)
	crlf := "---\r\ntitle: B\r\nweight: 2\r\ntype: cell\r\n---\r\n\r\n{{< cell >}}\r\n\r\n## R1C2\r\n\r\n{{< /cell >}}\r\n"
	dir := filepath.Join(root, "tab1", "row1", "cell2")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, testutil.IndexFile), []byte(crlf), 0o644); err != nil {
		t.Fatal(err)
	}
	e := testEngine(t, store)

	if _, err := e.InsertCell(context.Background(), "tab1/row1/cell1", 1); err != nil {
		t.Fatalf("InsertCell: %v", err)
	}
	checkCells(t, e, "tab1/row1", 1)

	want := "---\r\ntitle: C\r\nweight: 3\r\ntype: cell\r\n---\r\n\r\n{{< cell >}}\r\n\r\n## R1C3\r\n\r\n{{< /cell >}}\r\n"
	if got := readBody(t, root, "tab1/row1/cell3"); got != want {
		t.Errorf("moved cell = %q, want %q", got, want)
	}
}

func TestInsertCell_AtFront(t *testing.T) {
	root, store := testutil.TestContent(t)
	testutil.SeedTab(t, root, "tab1", 2, 2)
	e := testEngine(t, store)

	res, err := e.InsertCell(context.Background(), "tab1/row2/cell1", 0)
	if err != nil {
		t.Fatalf("InsertCell: %v", err)
	}
	if res.Position != 1 || len(res.Shifted) != 2 {
		t.Errorf("result = %+v", res)
	}
	checkCells(t, e, "tab1/row2", 2)
	if body := readBody(t, root, "tab1/row2/cell3"); !strings.Contains(body, "r2 B") {
		t.Errorf("former B should be cell3:\n%s", body)
	}
}

func TestInsertCell_AcceptsIndexFilePath(t *testing.T) {
	root, store := testutil.TestContent(t)
	testutil.SeedTab(t, root, "tab1", 1, 1)
	e := testEngine(t, store)

	res, err := e.InsertCell(context.Background(), "tab1/row1/cell1/_index.md", 1)
	if err != nil {
		t.Fatalf("InsertCell: %v", err)
	}
	if res.Path != "tab1/row1/cell2" {
		t.Errorf("path = %q", res.Path)
	}
}

func TestInsertCell_MissingRow(t *testing.T) {
	_, store := testutil.TestContent(t)
	e := testEngine(t, store)

	_, err := e.InsertCell(context.Background(), "tab1/row9/cell1", 1)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestInsertCell_InvalidPath(t *testing.T) {
	_, store := testutil.TestContent(t)
	e := testEngine(t, store)

	for _, p := range []string{"", "../row1/cell1", "/etc/row1/cell1"} {
		if _, err := e.InsertCell(context.Background(), p, 1); !errors.Is(err, apperr.ErrInvalidPath) {
			t.Errorf("InsertCell(%q) err = %v, want ErrInvalidPath", p, err)
		}
	}
}

func TestCellOps_RejectUnnumberedRow(t *testing.T) {
	root, store := testutil.TestContent(t)
	testutil.WriteNode(t, root, "tab1/intro", "Intro", 1, "row", "")
	testutil.WriteNode(t, root, "tab1/intro/cell1", "A", 1, "cell", testutil.CellBody(1, 1, ""))
	e := testEngine(t, store)

	if _, err := e.InsertCell(context.Background(), "tab1/intro/cell1", 1); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("InsertCell err = %v, want ErrInvalidInput", err)
	}
	if _, err := e.DeleteCell(context.Background(), "tab1/intro/cell1", 1); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("DeleteCell err = %v, want ErrInvalidInput", err)
	}
	if names, _ := store.ListDirs("tab1/intro"); len(names) != 1 || names[0] != "cell1" {
		t.Errorf("row contents changed: %v", names)
	}
}

func TestDeleteCell_Scenario(t *testing.T) {
	root, store := testutil.TestContent(t)
	testutil.SeedTab(t, root, "tab1", 1, 3)
	e := testEngine(t, store)

	res, err := e.DeleteCell(context.Background(), "tab1/row1/cell2", 2)
	if err != nil {
		t.Fatalf("DeleteCell: %v", err)
	}
	if res.Position != 2 {
		t.Errorf("position = %d, want 2", res.Position)
	}

	want := []nodeState{
		{Name: "cell1", Weight: 1, Title: "A", Heading: "R1C1"},
		{Name: "cell2", Weight: 2, Title: "B", Heading: "R1C2"},
	}
	if diff := cmp.Diff(want, groupState(t, e, "tab1/row1", cellLevel)); diff != "" {
		t.Errorf("cells (-want +got):\n%s", diff)
	}
	if body := readBody(t, root, "tab1/row1/cell2"); !strings.Contains(body, "r1 C") {
		t.Errorf("former C should now be cell2:\n%s", body)
	}
}

func TestDeleteCell_Last(t *testing.T) {
	root, store := testutil.TestContent(t)
	testutil.SeedTab(t, root, "tab1", 1, 3)
	e := testEngine(t, store)

	res, err := e.DeleteCell(context.Background(), "tab1/row1/cell3", 3)
	if err != nil {
		t.Fatalf("DeleteCell: %v", err)
	}
	if len(res.Shifted) != 0 {
		t.Errorf("shifted = %v, want none", res.Shifted)
	}
	checkCells(t, e, "tab1/row1", 1)
}

func TestDeleteCell_StaleWeightRefused(t *testing.T) {
	root, store := testutil.TestContent(t)
	testutil.SeedTab(t, root, "tab1", 1, 3)
	e := testEngine(t, store)
	before := groupState(t, e, "tab1/row1", cellLevel)

	_, err := e.DeleteCell(context.Background(), "tab1/row1/cell1", 3)
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	if diff := cmp.Diff(before, groupState(t, e, "tab1/row1", cellLevel)); diff != "" {
		t.Errorf("group changed on refused delete:\n%s", diff)
	}
}

func TestDeleteCell_Missing(t *testing.T) {
	root, store := testutil.TestContent(t)
	testutil.SeedTab(t, root, "tab1", 1, 2)
	e := testEngine(t, store)

	if _, err := e.DeleteCell(context.Background(), "tab1/row1/cell7", 7); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestInsertThenDelete_RoundTrip(t *testing.T) {
	root, store := testutil.TestContent(t)
	testutil.SeedTab(t, root, "tab1", 1, 4)
	e := testEngine(t, store)

	files := func() map[string]string {
		out := map[string]string{}
		for i := 1; i <= 4; i++ {
			dir := fmt.Sprintf("tab1/row1/cell%d", i)
			out[dir] = readBody(t, root, dir)
		}
		return out
	}
	before := files()

	res, err := e.InsertCell(context.Background(), "tab1/row1/cell1", 1)
	if err != nil {
		t.Fatalf("InsertCell: %v", err)
	}
	if _, err := e.DeleteCell(context.Background(), res.Path, res.Position); err != nil {
		t.Fatalf("DeleteCell: %v", err)
	}

	if diff := cmp.Diff(before, files()); diff != "" {
		t.Errorf("round trip changed files (-before +after):\n%s", diff)
	}
	checkCells(t, e, "tab1/row1", 1)
}

func TestInsertRow_HeadingSync(t *testing.T) {
	root, store := testutil.TestContent(t)
	testutil.SeedTab(t, root, "tab1", 3, 3)
	e := testEngine(t, store)

	res, err := e.InsertRow(context.Background(), "tab1/row1", 1)
	if err != nil {
		t.Fatalf("InsertRow: %v", err)
	}
	if res.DirName != "row2" || res.Position != 2 || len(res.Shifted) != 2 {
		t.Errorf("result = %+v", res)
	}

	wantRows := []nodeState{
		{Name: "row1", Weight: 1, Title: "Row 1"},
		{Name: "row2", Weight: 2, Title: "Row 2"},
		{Name: "row3", Weight: 3, Title: "Row 3"},
		{Name: "row4", Weight: 4, Title: "Row 4"},
	}
	if diff := cmp.Diff(wantRows, groupState(t, e, "tab1", rowLevel)); diff != "" {
		t.Errorf("rows (-want +got):\n%s", diff)
	}
	for r := 1; r <= 4; r++ {
		checkCells(t, e, fmt.Sprintf("tab1/row%d", r), r)
	}

	// Former rows 2 and 3 carry their content to rows 3 and 4.
	if body := readBody(t, root, "tab1/row3/cell2"); !strings.Contains(body, "r2 B") || !strings.Contains(body, "R3C2") {
		t.Errorf("tab1/row3/cell2:\n%s", body)
	}
	if body := readBody(t, root, "tab1/row4/cell3"); !strings.Contains(body, "r3 C") || !strings.Contains(body, "R4C3") {
		t.Errorf("tab1/row4/cell3:\n%s", body)
	}
}

func TestInsertRow_DefaultCells(t *testing.T) {
	root, store := testutil.TestContent(t)
	testutil.SeedTab(t, root, "tab1", 1, 1)
	e := testEngine(t, store, WithRowCells(2))

	res, err := e.InsertRow(context.Background(), "tab1/row1", 1)
	if err != nil {
		t.Fatalf("InsertRow: %v", err)
	}
	want := []nodeState{
		{Name: "cell1", Weight: 1, Title: "A", Heading: "R2C1"},
		{Name: "cell2", Weight: 2, Title: "B", Heading: "R2C2"},
	}
	if diff := cmp.Diff(want, groupState(t, e, res.Path, cellLevel)); diff != "" {
		t.Errorf("new row cells (-want +got):\n%s", diff)
	}
}

func TestInsertRow_MissingAnchor(t *testing.T) {
	root, store := testutil.TestContent(t)
	testutil.SeedTab(t, root, "tab1", 1, 1)
	e := testEngine(t, store)

	if _, err := e.InsertRow(context.Background(), "tab1/row5", 5); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteRow(t *testing.T) {
	root, store := testutil.TestContent(t)
	testutil.SeedTab(t, root, "tab1", 3, 2)
	e := testEngine(t, store)

	res, err := e.DeleteRow(context.Background(), "tab1/row2")
	if err != nil {
		t.Fatalf("DeleteRow: %v", err)
	}
	if res.Position != 2 || len(res.Shifted) != 1 {
		t.Errorf("result = %+v", res)
	}

	wantRows := []nodeState{
		{Name: "row1", Weight: 1, Title: "Row 1"},
		{Name: "row2", Weight: 2, Title: "Row 2"},
	}
	if diff := cmp.Diff(wantRows, groupState(t, e, "tab1", rowLevel)); diff != "" {
		t.Errorf("rows (-want +got):\n%s", diff)
	}
	checkCells(t, e, "tab1/row2", 2)
	if body := readBody(t, root, "tab1/row2/cell1"); !strings.Contains(body, "r3 A") {
		t.Errorf("former row 3 should be row 2:\n%s", body)
	}
}

func TestRandomSequence_KeepsInvariants(t *testing.T) {
	root, store := testutil.TestContent(t)
	testutil.SeedTab(t, root, "tab1", 2, 3)
	e := testEngine(t, store)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	for step := 0; step < 60; step++ {
		cells := groupState(t, e, "tab1/row2", cellLevel)
		n := len(cells)
		if n == 0 || rng.Intn(3) > 0 {
			after := rng.Intn(n + 1)
			if _, err := e.InsertCell(ctx, "tab1/row2/cell1", after); err != nil {
				t.Fatalf("step %d: InsertCell(after %d): %v", step, after, err)
			}
		} else {
			pos := rng.Intn(n) + 1
			if _, err := e.DeleteCell(ctx, fmt.Sprintf("tab1/row2/cell%d", pos), pos); err != nil {
				t.Fatalf("step %d: DeleteCell(%d): %v", step, pos, err)
			}
		}
		checkCells(t, e, "tab1/row2", 2)
		if t.Failed() {
			t.Fatalf("invariants broken at step %d", step)
		}
	}
	checkCells(t, e, "tab1/row1", 1)
}

func TestPrepare_CollisionAbortsBeforeMutation(t *testing.T) {
	root, store := testutil.TestContent(t)
	// cell2 sorts first by weight, so inserting at position 2 collides with it.
	testutil.WriteNode(t, root, "tab1/row1/cell2", "A", 1, "cell", testutil.CellBody(1, 1, ""))
	testutil.WriteNode(t, root, "tab1/row1/cell1", "B", 5, "cell", testutil.CellBody(1, 2, ""))
	e := testEngine(t, store)
	before := groupState(t, e, "tab1/row1", cellLevel)

	_, err := e.InsertCell(context.Background(), "tab1/row1/cell2", 1)
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	if diff := cmp.Diff(before, groupState(t, e, "tab1/row1", cellLevel)); diff != "" {
		t.Errorf("group changed after refused insert:\n%s", diff)
	}
}

func TestPrepare_MalformedAbortsBeforeMutation(t *testing.T) {
	root, store := testutil.TestContent(t)
	testutil.SeedTab(t, root, "tab1", 1, 3)
	bad := filepath.Join(root, "tab1", "row1", "cell3", testutil.IndexFile)
	if err := os.WriteFile(bad, []byte("---\n: broken: {{{\n---\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	e := testEngine(t, store)

	_, err := e.InsertCell(context.Background(), "tab1/row1/cell1", 1)
	if !errors.Is(err, apperr.ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
	for i := 1; i <= 3; i++ {
		if _, err := os.Stat(filepath.Join(root, "tab1", "row1", fmt.Sprintf("cell%d", i))); err != nil {
			t.Errorf("cell%d should be untouched", i)
		}
	}
}

func TestLoadGroup_MissingWeightSortsLast(t *testing.T) {
	root, store := testutil.TestContent(t)
	testutil.SeedTab(t, root, "tab1", 1, 2)
	// cell3 has no index file, cell9 an unparsable weight.
	if err := os.MkdirAll(filepath.Join(root, "tab1", "row1", "cell3"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "tab1", "row1", "cell9"), 0o755); err != nil {
		t.Fatal(err)
	}
	bad := filepath.Join(root, "tab1", "row1", "cell9", testutil.IndexFile)
	if err := os.WriteFile(bad, []byte("---\ntitle: Q\nweight: soon\n---\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	e := testEngine(t, store)

	nodes, err := e.loadGroup("tab1/row1", cellLevel, false)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, n := range nodes {
		names = append(names, n.name)
	}
	if diff := cmp.Diff([]string{"cell1", "cell2", "cell3", "cell9"}, names); diff != "" {
		t.Errorf("order (-want +got):\n%s", diff)
	}
	if nodes[2].weight != missingWeight || nodes[3].weight != missingWeight {
		t.Errorf("missing weights should use the sentinel: %d, %d", nodes[2].weight, nodes[3].weight)
	}
}

// flakyStore fails the Nth Rename call.
type flakyStore struct {
	*storage.FS
	failAt  int
	renames int
}

func (f *flakyStore) Rename(oldPath, newPath string) error {
	f.renames++
	if f.renames == f.failAt {
		return errors.New("injected rename failure")
	}
	return f.FS.Rename(oldPath, newPath)
}

func TestPartialFailure_ReportedAndRepaired(t *testing.T) {
	root, fs := testutil.TestContent(t)
	testutil.SeedTab(t, root, "tab1", 1, 4)
	// Three moves: renames 1-3 stage, 4-6 commit. Fail the second commit.
	store := &flakyStore{FS: fs, failAt: 5}
	e := testEngine(t, store)

	_, err := e.InsertCell(context.Background(), "tab1/row1/cell1", 1)
	if !errors.Is(err, apperr.ErrPartialFailure) {
		t.Fatalf("err = %v, want ErrPartialFailure", err)
	}
	var pe *PartialError
	if !errors.As(err, &pe) {
		t.Fatalf("err is not a *PartialError: %T", err)
	}
	if len(pe.Committed) != 1 || len(pe.Pending) != 2 {
		t.Fatalf("committed = %v, pending = %v", pe.Committed, pe.Pending)
	}
	for _, p := range pe.Pending {
		if !strings.Contains(path.Base(p.Staged), stagePrefix) {
			t.Errorf("pending move %+v should be under a staging name", p)
		}
	}

	res, err := e.Normalize(context.Background(), "tab1/row1", models.KindCell)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(res.Shifted) != 3 {
		t.Errorf("normalize shifted = %v", res.Shifted)
	}
	checkCells(t, e, "tab1/row1", 1)
	for i, label := range []string{"A", "B", "C", "D"} {
		if body := readBody(t, root, fmt.Sprintf("tab1/row1/cell%d", i+1)); !strings.Contains(body, "r1 "+label) {
			t.Errorf("cell%d should hold original %s:\n%s", i+1, label, body)
		}
	}
}

func TestNormalize_FixesDrift(t *testing.T) {
	root, store := testutil.TestContent(t)
	testutil.WriteNode(t, root, "tab1/row2/cell1", "A", 10, "cell", testutil.CellBody(2, 1, "first"))
	testutil.WriteNode(t, root, "tab1/row2/cell3", "wrong", 20, "cell", testutil.CellBody(7, 9, "second"))
	testutil.WriteNode(t, root, "tab1/row2/cell4", "C", 30, "cell", testutil.CellBody(2, 3, "third"))
	e := testEngine(t, store)

	if _, err := e.Normalize(context.Background(), "tab1/row2", models.KindCell); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	checkCells(t, e, "tab1/row2", 2)
	if body := readBody(t, root, "tab1/row2/cell2"); !strings.Contains(body, "second") {
		t.Errorf("cell2:\n%s", body)
	}

	// A second pass has nothing to do.
	res, err := e.Normalize(context.Background(), "tab1/row2", models.KindCell)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Shifted) != 0 {
		t.Errorf("second normalize shifted %v", res.Shifted)
	}
}

func TestNormalize_Rows(t *testing.T) {
	root, store := testutil.TestContent(t)
	testutil.SeedTab(t, root, "tab1", 3, 2)
	if err := os.RemoveAll(filepath.Join(root, "tab1", "row2")); err != nil {
		t.Fatal(err)
	}
	e := testEngine(t, store)

	if _, err := e.Normalize(context.Background(), "tab1", models.KindRow); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	want := []nodeState{
		{Name: "row1", Weight: 1, Title: "Row 1"},
		{Name: "row2", Weight: 2, Title: "Row 2"},
	}
	if diff := cmp.Diff(want, groupState(t, e, "tab1", rowLevel)); diff != "" {
		t.Errorf("rows (-want +got):\n%s", diff)
	}
	checkCells(t, e, "tab1/row2", 2)
}

func TestNormalize_InvalidKind(t *testing.T) {
	_, store := testutil.TestContent(t)
	e := testEngine(t, store)
	if _, err := e.Normalize(context.Background(), "tab1", models.KindTab); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestCancelledContext_NoMutation(t *testing.T) {
	root, store := testutil.TestContent(t)
	testutil.SeedTab(t, root, "tab1", 1, 3)
	e := testEngine(t, store)
	before := groupState(t, e, "tab1/row1", cellLevel)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.InsertCell(ctx, "tab1/row1/cell1", 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if diff := cmp.Diff(before, groupState(t, e, "tab1/row1", cellLevel)); diff != "" {
		t.Errorf("group changed:\n%s", diff)
	}
}

func TestCancelledContext_DeleteNoMutation(t *testing.T) {
	root, store := testutil.TestContent(t)
	testutil.SeedTab(t, root, "tab1", 3, 3)
	e := testEngine(t, store)
	cellsBefore := groupState(t, e, "tab1/row1", cellLevel)
	rowsBefore := groupState(t, e, "tab1", rowLevel)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.DeleteCell(ctx, "tab1/row1/cell2", 2); !errors.Is(err, context.Canceled) {
		t.Fatalf("DeleteCell err = %v, want context.Canceled", err)
	}
	if _, err := e.DeleteRow(ctx, "tab1/row2"); !errors.Is(err, context.Canceled) {
		t.Fatalf("DeleteRow err = %v, want context.Canceled", err)
	}

	if diff := cmp.Diff(cellsBefore, groupState(t, e, "tab1/row1", cellLevel)); diff != "" {
		t.Errorf("cells changed:\n%s", diff)
	}
	if diff := cmp.Diff(rowsBefore, groupState(t, e, "tab1", rowLevel)); diff != "" {
		t.Errorf("rows changed:\n%s", diff)
	}
}

// cancelOnRemove cancels the caller's context right after a delete lands.
type cancelOnRemove struct {
	*storage.FS
	cancel context.CancelFunc
}

func (c *cancelOnRemove) RemoveAll(p string) error {
	err := c.FS.RemoveAll(p)
	c.cancel()
	return err
}

func TestDelete_CancelAfterRemoveStillCloses(t *testing.T) {
	root, fs := testutil.TestContent(t)
	testutil.SeedTab(t, root, "tab1", 3, 3)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e := testEngine(t, &cancelOnRemove{FS: fs, cancel: cancel})

	res, err := e.DeleteCell(ctx, "tab1/row1/cell2", 2)
	if err != nil {
		t.Fatalf("DeleteCell: %v", err)
	}
	if len(res.Shifted) != 1 {
		t.Errorf("shifted = %v, want one move", res.Shifted)
	}
	checkCells(t, e, "tab1/row1", 1)

	ctx, cancel = context.WithCancel(context.Background())
	defer cancel()
	e = testEngine(t, &cancelOnRemove{FS: fs, cancel: cancel})
	if _, err := e.DeleteRow(ctx, "tab1/row2"); err != nil {
		t.Fatalf("DeleteRow: %v", err)
	}
	wantRows := []nodeState{
		{Name: "row1", Weight: 1, Title: "Row 1"},
		{Name: "row2", Weight: 2, Title: "Row 2"},
	}
	if diff := cmp.Diff(wantRows, groupState(t, e, "tab1", rowLevel)); diff != "" {
		t.Errorf("rows (-want +got):\n%s", diff)
	}
	checkCells(t, e, "tab1/row2", 2)
}

func TestConcurrentInserts_SameRow(t *testing.T) {
	root, store := testutil.TestContent(t)
	testutil.SeedTab(t, root, "tab1", 2, 2)
	e := testEngine(t, store)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, 2*workers)
	for i := 0; i < workers; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := e.InsertCell(context.Background(), "tab1/row1/cell1", 0)
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := e.InsertRow(context.Background(), "tab1/row1", 1)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent op: %v", err)
		}
	}

	rows := groupState(t, e, "tab1", rowLevel)
	if len(rows) != 2+workers {
		t.Fatalf("rows = %d, want %d", len(rows), 2+workers)
	}
	checkCells(t, e, "tab1/row1", 1)
	if n := len(groupState(t, e, "tab1/row1", cellLevel)); n != 2+workers {
		t.Errorf("row1 cells = %d, want %d", n, 2+workers)
	}
	if e.locks.size() != 0 {
		t.Errorf("lock entries left: %d", e.locks.size())
	}
}
