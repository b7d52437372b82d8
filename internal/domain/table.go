package domain

import "fmt"

// Table keeps len(row) == len(Headers) for every row; all mutators preserve it.
type Table struct {
	ID      string     `json:"id"`
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
	Caption string     `json:"caption"`
}

// NewTable mirrors the editor default: two headers and one empty row.
func NewTable(id string) *Table {
	return &Table{
		ID:      id,
		Headers: []string{"Header 1", "Header 2"},
		Rows:    [][]string{{"", ""}},
	}
}

// AddColumn appends a header and an empty cell to every row.
func (t *Table) AddColumn(header string) {
	if header == "" {
		header = fmt.Sprintf("Header %d", len(t.Headers)+1)
	}
	t.Headers = append(t.Headers, header)
	for i := range t.Rows {
		t.Rows[i] = append(t.Rows[i], "")
	}
}

// RemoveColumn drops header idx and the matching cell of every row.
// The last remaining column cannot be removed.
func (t *Table) RemoveColumn(idx int) error {
	if idx < 0 || idx >= len(t.Headers) {
		return fmt.Errorf("table %q: column %d out of range", t.ID, idx)
	}
	if len(t.Headers) <= 1 {
		return fmt.Errorf("table %q: at least one column is required", t.ID)
	}
	t.Headers = append(t.Headers[:idx:idx], t.Headers[idx+1:]...)
	for i, row := range t.Rows {
		if idx < len(row) {
			t.Rows[i] = append(row[:idx:idx], row[idx+1:]...)
		}
	}
	return nil
}

func (t *Table) AddRow() {
	t.Rows = append(t.Rows, make([]string, len(t.Headers)))
}

func (t *Table) RemoveRow(idx int) error {
	if idx < 0 || idx >= len(t.Rows) {
		return fmt.Errorf("table %q: row %d out of range", t.ID, idx)
	}
	t.Rows = append(t.Rows[:idx:idx], t.Rows[idx+1:]...)
	return nil
}

func (t *Table) SetCell(row, col int, value string) error {
	if row < 0 || row >= len(t.Rows) {
		return fmt.Errorf("table %q: row %d out of range", t.ID, row)
	}
	if col < 0 || col >= len(t.Headers) {
		return fmt.Errorf("table %q: column %d out of range", t.ID, col)
	}
	t.Rows[row][col] = value
	return nil
}
