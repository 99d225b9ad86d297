package mcpserver

// GridFormatContract describes the on-disk grid layout that LLM consumers
// should follow when reading or editing cells.
const GridFormatContract = `# Grid Format Contract

A tab is a directory of rows; a row is a directory of cells. Every node
directory holds an ` + "`" + `_index.md` + "`" + ` file with YAML front matter.

## Layout

` + "```" + `
tab1/_index.md
tab1/row1/_index.md
tab1/row1/cell1/_index.md
tab1/row1/cell2/_index.md
tab1/row2/_index.md
tab1/row2/cell1/_index.md
` + "```" + `

## Cell file

` + "```" + `markdown
---
title: B
weight: 2
type: cell
---

{{< cell >}}

## R1C2

Cell content in Markdown.

{{< /cell >}}
` + "```" + `

## Rules

1. **Numbering is dense.** Cells of a row are ` + "`" + `cell1..cellN` + "`" + ` and rows of a tab are
   ` + "`" + `row1..rowN` + "`" + ` with no gaps.
2. **Weight is the position.** ` + "`" + `weight` + "`" + ` equals the node's 1-based position in
   ascending-weight order. Siblings are ordered by weight, not by directory name.
3. **Titles are derived.** Cells are titled by column letter (A, B, ..., Z, AA, AB);
   rows are titled ` + "`" + `Row N` + "`" + `.
4. **Headings track position.** A cell body may contain one ` + "`" + `## R<row>C<col>` + "`" + ` line;
   it is rewritten whenever the cell or its row moves.
5. **Never rename node directories by hand.** Use insert_cell, delete_cell, insert_row and
   delete_row. They renumber, retitle and re-head every shifted sibling.
6. **save_cell writes only the body.** Front matter is kept; the content is wrapped in
   the ` + "`" + `{{< cell >}}` + "`" + ` shortcode for you.
7. **Recovery.** If a tool reports a partial failure, run normalize_group on the affected
   directory. Directories named ` + "`" + `.stage-*` + "`" + ` are picked up and put back in order.
`
