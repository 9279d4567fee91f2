package table

// Snapshot is a detached copy of a Model's headers and rows.
type Snapshot struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// Matrix returns the header row followed by every data row, the layout
// written to an exported file.
func (s Snapshot) Matrix() [][]string {
	out := make([][]string, 0, len(s.Rows)+1)
	out = append(out, s.Headers)
	return append(out, s.Rows...)
}

// Width returns the number of cells to render for a row: the header width,
// or the row's own width when it is longer.
func (s Snapshot) Width(row int) int {
	if row < 0 || row >= len(s.Rows) {
		return len(s.Headers)
	}
	return max(len(s.Headers), len(s.Rows[row]))
}
