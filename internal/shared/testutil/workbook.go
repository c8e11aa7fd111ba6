package testutil

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
)

// Sheet is one sheet of a fixture workbook.
type Sheet struct {
	Name string
	Rows [][]any
}

// NewWorkbook builds an in-memory workbook with the given sheets in order.
func NewWorkbook(t testing.TB, sheets ...Sheet) *excelize.File {
	t.Helper()

	f := excelize.NewFile()
	t.Cleanup(func() { _ = f.Close() })

	for i, sheet := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet.Name); err != nil {
				t.Fatalf("rename sheet: %v", err)
			}
		} else if _, err := f.NewSheet(sheet.Name); err != nil {
			t.Fatalf("create sheet %q: %v", sheet.Name, err)
		}

		for r, row := range sheet.Rows {
			if len(row) == 0 {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			if err != nil {
				t.Fatalf("cell name: %v", err)
			}
			values := row
			if err := f.SetSheetRow(sheet.Name, cell, &values); err != nil {
				t.Fatalf("write row %d of %q: %v", r+1, sheet.Name, err)
			}
		}
	}
	return f
}

// WriteWorkbook saves a fixture workbook under dir and returns its path.
func WriteWorkbook(t testing.TB, dir, name string, sheets ...Sheet) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := NewWorkbook(t, sheets...).SaveAs(path); err != nil {
		t.Fatalf("save workbook: %v", err)
	}
	return path
}

// WorkbookBytes returns a fixture workbook as xlsx bytes.
func WorkbookBytes(t testing.TB, sheets ...Sheet) []byte {
	t.Helper()

	buf, err := NewWorkbook(t, sheets...).WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf.Bytes()
}

// Record is one transaction row keyed by role name.
type Record map[string]any

// FeeRoles lists the admin fee roles in the order Txn assigns them.
var FeeRoles = []string{"admin_3", "admin_4", "admin_6", "admin_7", "admin_8", "admin_9", "admin_10"}

// Txn builds a record with a transaction code, a contract number and fee
// values assigned to FeeRoles in order.
func Txn(code, contract string, fees ...any) Record {
	rec := Record{
		"transaction_type":   code,
		"contract_number":    contract,
		"insurer_code":       "INS",
		"product_type_code":  "VSC",
		"coverage_code":      "PLAT",
		"dealer_number":      "D100",
		"dealer_name":        "Dealer " + contract,
		"contract_sale_date": "2024-01-15",
		"customer_last_name": "Smith",
	}
	for i, fee := range fees {
		if i < len(FeeRoles) {
			rec[FeeRoles[i]] = fee
		}
	}
	return rec
}

// FixtureColumn places a role at a column position with a header label.
type FixtureColumn struct {
	Role   string
	Pos    int
	Header string
}

// Layout describes how a fixture export lays out its data sheet.
type Layout struct {
	Sheet     string
	HeaderRow int
	Width     int
	Columns   []FixtureColumn
}

// Karen30Layout mirrors the "Data" sheet export with headers on row 13.
var Karen30Layout = Layout{
	Sheet:     "Data",
	HeaderRow: 12,
	Width:     55,
	Columns: []FixtureColumn{
		{"insurer_code", 1, "Insurer Code"},
		{"product_type_code", 2, "Product Type Code"},
		{"coverage_code", 3, "Coverage Code"},
		{"dealer_number", 4, "Dealer Number"},
		{"dealer_name", 5, "Dealer Name"},
		{"contract_number", 7, "Contract Number"},
		{"transaction_type", 9, "Transaction Type"},
		{"contract_sale_date", 11, "Contract Sale Date"},
		{"customer_last_name", 12, "Customer Last Name"},
		{"vehicle_model_year", 20, "Vehicle Model Year"},
		{"term_months", 25, "Term Months"},
		{"cancellation_factor", 26, "Cancellation Factor"},
		{"cancellation_reason", 27, "Cancellation Reason"},
		{"cancellation_date", 30, "Cancellation Date"},
		{"admin_3", 40, "Admin 3 Amount"},
		{"admin_4", 42, "Admin 4 Amount"},
		{"admin_6", 46, "Admin 6 Amount"},
		{"admin_7", 48, "Admin 7 Amount"},
		{"admin_8", 50, "Admin 8 Amount"},
		{"admin_9", 52, "Admin 9 Amount"},
		{"admin_10", 54, "Admin 10 Amount"},
	},
}

// Karen20Layout mirrors the NCB export with headers on the first row.
var Karen20Layout = Layout{
	Sheet:     "Transaction Data",
	HeaderRow: 0,
	Width:     55,
	Columns: []FixtureColumn{
		{"insurer_code", 1, "Insurer Code"},
		{"product_type_code", 2, "Product Type Code"},
		{"coverage_code", 3, "Coverage Code"},
		{"dealer_number", 4, "Dealer Number"},
		{"dealer_name", 5, "Dealer Name"},
		{"contract_number", 7, "Contract Number"},
		{"transaction_date", 9, "Transaction Date"},
		{"contract_sale_date", 11, "Contract Sale Date"},
		{"transaction_type", 12, "Transaction Type"},
		{"customer_last_name", 20, "Customer Last Name"},
		{"contract_term", 25, "Contract Term"},
		{"cancellation_factor", 26, "Cancellation Factor"},
		{"cancellation_reason", 27, "Cancellation Reason"},
		{"cancellation_date", 30, "Cancellation Date"},
		{"admin_3", 40, "Admin 3 Amount (Agent NCB Fee)"},
		{"admin_4", 42, "Admin 4 Amount (Dealer NCB Fee)"},
		{"admin_6", 46, "Admin 6 Amount (Agent NCB Offset)"},
		{"admin_7", 48, "Admin 7 Amount (Agent NCB Offset Bucket)"},
		{"admin_8", 50, "Admin 8 Amount (Dealer NCB Offset Bucket)"},
		{"admin_9", 52, "Admin 9 Amount (Agent NCB Offset)"},
		{"admin_10", 54, "Admin 10 Amount (Dealer NCB Offset Bucket)"},
	},
}

// Headers returns the header row of the layout. Unassigned positions get a
// neutral "Field <letter>" name.
func (l Layout) Headers() []any {
	headers := make([]any, l.Width)
	for i := range headers {
		name, _ := excelize.ColumnNumberToName(i + 1)
		headers[i] = "Field " + name
	}
	for _, c := range l.Columns {
		headers[c.Pos] = c.Header
	}
	return headers
}

// Rows renders the preamble, header and records of the layout. Every
// preamble row carries text so row indices stay stable.
func (l Layout) Rows(records ...Record) [][]any {
	rows := make([][]any, 0, l.HeaderRow+1+len(records))
	for i := 0; i < l.HeaderRow; i++ {
		rows = append(rows, []any{fmt.Sprintf("NCB transaction report line %d", i+1)})
	}
	rows = append(rows, l.Headers())

	for _, rec := range records {
		row := make([]any, l.Width)
		for _, c := range l.Columns {
			if v, ok := rec[c.Role]; ok {
				row[c.Pos] = v
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// Fixture renders the layout as a fixture sheet.
func (l Layout) Fixture(records ...Record) Sheet {
	return Sheet{Name: l.Sheet, Rows: l.Rows(records...)}
}
