package domain

import "sort"

// Role names a logical column such as a fee amount or a pass-through field.
type Role string

// RoleTransactionType is the role holding the transaction code of a row.
const RoleTransactionType Role = "transaction_type"

// MatchSource records which matcher resolved a role.
type MatchSource string

const (
	MatchNameExact MatchSource = "name_exact"
	MatchNameFuzzy MatchSource = "name_fuzzy"
	MatchContent   MatchSource = "content"
	MatchPosition  MatchSource = "position"
)

// Column is one column of a loaded sheet.
type Column struct {
	Index       int    `json:"index"`
	Letter      string `json:"letter"`
	Name        string `json:"name"`
	Placeholder bool   `json:"placeholder,omitempty"`
}

// Row is one data row. Number is the 1-based row number in the source sheet.
type Row struct {
	Number int
	Cells  []string
	Raw    []string
}

// RawTable is a sheet with its header row promoted to column names.
type RawTable struct {
	Sheet     string
	HeaderRow int
	Columns   []Column
	Rows      []Row
	Warnings  []Warning
}

// Cell returns the formatted value at (row, col), or "" when absent.
func (t *RawTable) Cell(row, col int) string {
	if row < 0 || row >= len(t.Rows) {
		return ""
	}
	cells := t.Rows[row].Cells
	if col < 0 || col >= len(cells) {
		return ""
	}
	return cells[col]
}

// RawCell returns the unformatted value at (row, col), falling back to the
// formatted value when no raw value was captured.
func (t *RawTable) RawCell(row, col int) string {
	if row < 0 || row >= len(t.Rows) {
		return ""
	}
	raw := t.Rows[row].Raw
	if col >= 0 && col < len(raw) {
		return raw[col]
	}
	return t.Cell(row, col)
}

// Width returns the number of columns.
func (t *RawTable) Width() int {
	return len(t.Columns)
}

// ColumnRef identifies the concrete column a role resolved to.
type ColumnRef struct {
	Index  int         `json:"index"`
	Letter string      `json:"letter"`
	Name   string      `json:"name"`
	Source MatchSource `json:"source"`
}

// ColumnMap maps logical roles to concrete columns. A role maps to at most
// one column.
type ColumnMap map[Role]ColumnRef

// Get returns the column for role.
func (m ColumnMap) Get(role Role) (ColumnRef, bool) {
	ref, ok := m[role]
	return ref, ok
}

// Has reports whether role is resolved.
func (m ColumnMap) Has(role Role) bool {
	_, ok := m[role]
	return ok
}

// Roles returns the resolved roles sorted by name.
func (m ColumnMap) Roles() []Role {
	roles := make([]Role, 0, len(m))
	for r := range m {
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

// OutputColumn is one column of an OutputTable.
type OutputColumn struct {
	Role   Role      `json:"role"`
	Header string    `json:"header"`
	Fee    bool      `json:"fee,omitempty"`
	Source ColumnRef `json:"source"`
}

// OutputTable is the projection of one bucket's kept rows. Fee cells hold
// float64 values and descriptive cells hold strings.
type OutputTable struct {
	Bucket  Bucket         `json:"bucket"`
	Sheet   string         `json:"sheet"`
	File    string         `json:"file"`
	Columns []OutputColumn `json:"columns"`
	Rows    [][]any        `json:"-"`
}

// Headers returns the header labels in column order.
func (t *OutputTable) Headers() []string {
	headers := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		headers[i] = c.Header
	}
	return headers
}

// Len returns the number of data rows.
func (t *OutputTable) Len() int {
	return len(t.Rows)
}
