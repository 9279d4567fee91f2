// Package table holds the in-memory tabular edit model: a header row plus an
// ordered sequence of data rows, and the operations that edit them.
//
// A Model is not safe for concurrent use. Callers serialise access (the
// session store holds one mutex per model) and read through State, which
// always returns a deep copy.
package table

import (
	"errors"
	"fmt"
)

var (
	// ErrRowOutOfRange is returned when a row index does not name an existing row.
	ErrRowOutOfRange = errors.New("row index out of range")

	// ErrColumnOutOfRange is returned when a column index is outside the row.
	ErrColumnOutOfRange = errors.New("column index out of range")
)

// Model owns the current headers and rows.
type Model struct {
	headers []string
	rows    [][]string
}

// New returns an empty model with no headers and no rows.
func New() *Model {
	return &Model{}
}

// Load replaces the current state wholesale. Inputs are copied, so later
// changes to the caller's slices are not observed. Rows whose width differs
// from the header width are kept as they are.
func (m *Model) Load(headers []string, rows [][]string) {
	m.headers = cloneRow(headers)
	m.rows = cloneRows(rows)
}

// SetCell replaces the field at (row, col) with value.
//
// col may address any column of the header or any existing field of the row.
// Writing to a column that a short row lacks pads that row with empty
// strings first; no other row is touched.
func (m *Model) SetCell(row, col int, value string) error {
	if row < 0 || row >= len(m.rows) {
		return fmt.Errorf("set cell (%d,%d): %w", row, col, ErrRowOutOfRange)
	}
	r := m.rows[row]
	if col < 0 || col >= max(len(m.headers), len(r)) {
		return fmt.Errorf("set cell (%d,%d): %w", row, col, ErrColumnOutOfRange)
	}

	if col >= len(r) {
		padded := make([]string, col+1)
		copy(padded, r)
		r = padded
	}
	r[col] = value
	m.rows[row] = r
	return nil
}

// AddRow appends a row of empty strings as wide as the header row. With no
// headers the new row has zero fields.
func (m *Model) AddRow() {
	m.rows = append(m.rows, make([]string, len(m.headers)))
}

// DeleteRow removes the row at index row. Later rows shift up by one.
func (m *Model) DeleteRow(row int) error {
	if row < 0 || row >= len(m.rows) {
		return fmt.Errorf("delete row %d: %w", row, ErrRowOutOfRange)
	}
	m.rows = append(m.rows[:row:row], m.rows[row+1:]...)
	return nil
}

// State returns a deep copy of the current headers and rows.
func (m *Model) State() Snapshot {
	return Snapshot{
		Headers: cloneRow(m.headers),
		Rows:    cloneRows(m.rows),
	}
}

// RowCount returns the number of data rows.
func (m *Model) RowCount() int { return len(m.rows) }

// ColumnCount returns the header width.
func (m *Model) ColumnCount() int { return len(m.headers) }

// Empty reports whether nothing has been loaded (no headers and no rows).
func (m *Model) Empty() bool {
	return len(m.headers) == 0 && len(m.rows) == 0
}

// Cell returns the field at (row, col). ok is false when the position does
// not hold a field, including the missing tail of a short row.
func (m *Model) Cell(row, col int) (value string, ok bool) {
	if row < 0 || row >= len(m.rows) {
		return "", false
	}
	r := m.rows[row]
	if col < 0 || col >= len(r) {
		return "", false
	}
	return r[col], true
}

func cloneRow(row []string) []string {
	out := make([]string, len(row))
	copy(out, row)
	return out
}

func cloneRows(rows [][]string) [][]string {
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = cloneRow(r)
	}
	return out
}
