package display

import (
	"fmt"
	"strings"
)

// RowStyle selects how a table row is rendered.
type RowStyle int

const (
	RowPlain RowStyle = iota
	// RowMuted is used for the prayer whose time has passed.
	RowMuted
	// RowHighlight is used for the next prayer or today's date.
	RowHighlight
)

type row struct {
	cells []string
	style RowStyle
	note  string
}

// Table renders an aligned text table. Each row may carry a trailing note
// that is not part of the column layout, e.g. "<- next in 1h 5m".
type Table struct {
	headers []string
	rows    []row
}

// NewTable creates a new table with the given column headers.
func NewTable(headers []string) *Table {
	return &Table{headers: headers}
}

// AddRow appends a plain row. The number of values should match the number
// of headers; missing cells render blank.
func (t *Table) AddRow(values []string) {
	t.rows = append(t.rows, row{cells: values})
}

// AddStyledRow appends a row with a style and an optional note.
func (t *Table) AddStyledRow(style RowStyle, values []string, note string) {
	t.rows = append(t.rows, row{cells: values, style: style, note: note})
}

// SetHighlightRow highlights the row at idx (0-based). Out of range is a no-op.
func (t *Table) SetHighlightRow(idx int) {
	if idx >= 0 && idx < len(t.rows) {
		t.rows[idx].style = RowHighlight
	}
}

// Rows returns the number of data rows.
func (t *Table) Rows() int { return len(t.rows) }

// Render produces the formatted table string with leading indent.
func (t *Table) Render() string {
	if len(t.headers) == 0 {
		return ""
	}

	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = len(h)
	}
	for _, r := range t.rows {
		for i, cell := range r.cells {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var sb strings.Builder
	sb.WriteString("  " + Bold(formatRow(t.headers, widths)) + "\n")

	sep := make([]string, len(widths))
	for i, w := range widths {
		sep[i] = strings.Repeat("─", w)
	}
	sb.WriteString(Dim("  "+strings.Join(sep, "  ")) + "\n")

	for _, r := range t.rows {
		line := formatRow(r.cells, widths)
		if r.note != "" {
			line += "  " + r.note
		}
		switch r.style {
		case RowMuted:
			line = Dim(line)
		case RowHighlight:
			line = Accent(line)
		}
		sb.WriteString("  " + strings.TrimRight(line, " ") + "\n")
	}

	return sb.String()
}

func formatRow(cells []string, widths []int) string {
	parts := make([]string, len(widths))
	for i, w := range widths {
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}
		parts[i] = fmt.Sprintf("%-*s", w, cell)
	}
	return strings.Join(parts, "  ")
}
