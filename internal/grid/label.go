package grid

import (
	"fmt"
	"regexp"
	"strconv"
)

// ColumnLabel converts a 1-based column position to its bijective base-26
// letter label: 1 → A, 26 → Z, 27 → AA. Positions below 1 yield "A".
func ColumnLabel(pos int) string {
	var buf []byte
	for pos > 0 {
		pos--
		buf = append(buf, byte('A'+pos%26))
		pos /= 26
	}
	if len(buf) == 0 {
		return "A"
	}
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return string(buf)
}

// RowTitle returns the display title of the row at pos.
func RowTitle(pos int) string {
	return fmt.Sprintf("Row %d", pos)
}

// The trailing group also takes the \r of a CRLF line so it survives a rewrite.
var headingRe = regexp.MustCompile(`(?m)^(##[ \t]*)R(\d+)C(\d+)([ \t]*\r?)$`)

// Heading returns the row and column of the first R<row>C<col> heading in body.
func Heading(body string) (row, col int, ok bool) {
	m := headingRe.FindStringSubmatch(body)
	if m == nil {
		return 0, 0, false
	}
	row, _ = strconv.Atoi(m[2])
	col, _ = strconv.Atoi(m[3])
	return row, col, true
}

// SetHeading rewrites every R<row>C<col> heading in body. A component of 0
// or less is left as it is. Bodies without a heading are returned unchanged.
func SetHeading(body string, row, col int) string {
	return headingRe.ReplaceAllStringFunc(body, func(line string) string {
		m := headingRe.FindStringSubmatch(line)
		r, c := m[2], m[3]
		if row > 0 {
			r = strconv.Itoa(row)
		}
		if col > 0 {
			c = strconv.Itoa(col)
		}
		return m[1] + "R" + r + "C" + c + m[4]
	})
}

// HeadingLine formats the heading for a cell at row and col.
func HeadingLine(row, col int) string {
	return fmt.Sprintf("## R%dC%d", row, col)
}

// WrapCell wraps content in the cell shortcode the site templates expect.
func WrapCell(content string) string {
	return "\n{{< cell >}}\n\n" + content + "\n\n{{< /cell >}}\n"
}
