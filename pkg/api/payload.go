package api

import (
	"fmt"
	"strconv"
)

// Payload is the output of one step. Extraction-type steps produce a
// single opaque document (Doc); every other step produces a named
// collection of tabular artifacts (Tables). Exactly one of the two forms
// is populated.
type Payload struct {
	// Doc is the opaque document payload, stored as-is.
	Doc []byte

	// Tables maps artifact names to tabular data, each independently
	// persisted and loadable.
	Tables map[string]*Table
}

// DocPayload wraps an opaque document into a Payload.
func DocPayload(doc []byte) Payload {
	return Payload{Doc: doc}
}

// TablePayload wraps named tables into a Payload.
func TablePayload(tables map[string]*Table) Payload {
	return Payload{Tables: tables}
}

// IsZero reports whether the payload carries no data at all.
func (p Payload) IsZero() bool {
	return len(p.Doc) == 0 && len(p.Tables) == 0
}

// Descriptors summarizes the payload's artifacts for metadata records:
// document payloads report their byte size, tables their row counts.
func (p Payload) Descriptors() []ArtifactDescriptor {
	if len(p.Doc) > 0 {
		return []ArtifactDescriptor{{Name: "raw_data", Bytes: int64(len(p.Doc))}}
	}
	descs := make([]ArtifactDescriptor, 0, len(p.Tables))
	for name, t := range p.Tables {
		descs = append(descs, ArtifactDescriptor{Name: name, Rows: t.NumRows()})
	}
	return descs
}

// ArtifactDescriptor names one artifact of a payload together with its
// size, for the audit trail.
type ArtifactDescriptor struct {
	Name  string `json:"name"`
	Rows  int    `json:"rows,omitempty"`
	Bytes int64  `json:"bytes,omitempty"`
}

// Table is a named-column, string-celled tabular artifact. Cells are kept
// as strings so tables round-trip through the CSV state layout without a
// schema; numeric helpers parse on access.
type Table struct {
	Columns []string
	Rows    [][]string
}

// NewTable creates an empty table with the given columns.
func NewTable(columns ...string) *Table {
	return &Table{Columns: columns}
}

// Append adds a row. The row must have exactly one cell per column.
func (t *Table) Append(row ...string) error {
	if len(row) != len(t.Columns) {
		return fmt.Errorf("row has %d cells, table has %d columns", len(row), len(t.Columns))
	}
	t.Rows = append(t.Rows, row)
	return nil
}

// NumRows returns the number of data rows.
func (t *Table) NumRows() int {
	return len(t.Rows)
}

// ColumnIndex returns the position of the named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Value returns the cell at (row, column name). It errors on an unknown
// column or an out-of-range row.
func (t *Table) Value(row int, column string) (string, error) {
	i := t.ColumnIndex(column)
	if i < 0 {
		return "", fmt.Errorf("unknown column: %s", column)
	}
	if row < 0 || row >= len(t.Rows) {
		return "", fmt.Errorf("row %d out of range (%d rows)", row, len(t.Rows))
	}
	return t.Rows[row][i], nil
}

// Float returns the cell at (row, column name) parsed as a float64.
func (t *Table) Float(row int, column string) (float64, error) {
	s, err := t.Value(row, column)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("column %s row %d: %w", column, row, err)
	}
	return f, nil
}

// Select returns a new table holding only the named columns, in the given
// order.
func (t *Table) Select(columns ...string) (*Table, error) {
	idx := make([]int, len(columns))
	for i, c := range columns {
		j := t.ColumnIndex(c)
		if j < 0 {
			return nil, fmt.Errorf("unknown column: %s", c)
		}
		idx[i] = j
	}

	out := NewTable(columns...)
	for _, row := range t.Rows {
		cells := make([]string, len(idx))
		for i, j := range idx {
			cells[i] = row[j]
		}
		out.Rows = append(out.Rows, cells)
	}
	return out, nil
}

// FormatFloat renders a float the way table cells store numbers.
func FormatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
