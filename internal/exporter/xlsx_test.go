package exporter

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"ncbproc/internal/ruleset"
	"ncbproc/pkg/contracts/domain"
)

func sampleTables() []domain.OutputTable {
	columns := []domain.OutputColumn{
		{Role: "contract_number", Header: "Contract Number"},
		{Role: domain.RoleTransactionType, Header: "Transaction Type"},
		{Role: "admin_3", Header: "Admin 3 Amount", Fee: true},
	}
	return []domain.OutputTable{
		{
			Bucket: domain.BucketNewBusiness, Sheet: "New Business", File: "NB.xlsx", Columns: columns,
			Rows: [][]any{{"K1", "NB", 1200.5}, {"K6", "NB", 25.0}},
		},
		{
			Bucket: domain.BucketReinstatement, Sheet: "Reinstatements", File: "R.xlsx", Columns: columns,
			Rows: [][]any{},
		},
		{
			Bucket: domain.BucketCancellation, Sheet: "Cancellations", File: "C.xlsx", Columns: columns,
			Rows: [][]any{{"K3", "C", -25.0}},
		},
	}
}

func openWorkbook(t *testing.T, path string) *excelize.File {
	t.Helper()
	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestXLSXWriterSeparateLayout(t *testing.T) {
	dir := t.TempDir()
	w := NewXLSXWriter(nil)

	paths, err := w.WriteTables(dir, sampleTables(), ruleset.LayoutSeparate, "")
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "NB.xlsx"),
		filepath.Join(dir, "R.xlsx"),
		filepath.Join(dir, "C.xlsx"),
	}, paths)

	f := openWorkbook(t, paths[0])
	assert.Equal(t, []string{"New Business"}, f.GetSheetList())

	rows, err := f.GetRows("New Business")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Contract Number", "Transaction Type", "Admin 3 Amount"}, rows[0])
	assert.Equal(t, []string{"K1", "NB", "1,200.50"}, rows[1])

	raw, err := f.GetCellValue("New Business", "C2", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, "1200.5", raw)

	styleID, err := f.GetCellStyle("New Business", "A1")
	require.NoError(t, err)
	style, err := f.GetStyle(styleID)
	require.NoError(t, err)
	require.NotNil(t, style.Font)
	assert.True(t, style.Font.Bold)

	empty := openWorkbook(t, paths[1])
	rows, err = empty.GetRows("Reinstatements")
	require.NoError(t, err)
	assert.Len(t, rows, 1, "empty bucket still gets its header")
}

func TestXLSXWriterCombinedLayout(t *testing.T) {
	dir := t.TempDir()
	w := NewXLSXWriter(nil)

	paths, err := w.WriteTables(dir, sampleTables(), ruleset.LayoutCombined, "NCB_Output.xlsx")
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "NCB_Output.xlsx")}, paths)

	f := openWorkbook(t, paths[0])
	assert.Equal(t, []string{"New Business", "Reinstatements", "Cancellations"}, f.GetSheetList())

	v, err := f.GetCellValue("Cancellations", "C2")
	require.NoError(t, err)
	assert.Equal(t, "-25.00", v)
}

func TestXLSXWriterTimestamp(t *testing.T) {
	dir := t.TempDir()
	w := NewXLSXWriter(nil)
	w.Stamp = time.Date(2024, 1, 31, 15, 4, 5, 0, time.UTC)

	paths, err := w.WriteTables(dir, sampleTables()[:1], ruleset.LayoutSeparate, "")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "NB_20240131_150405.xlsx")}, paths)
}

func TestXLSXWriterWriteWorkbook(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewXLSXWriter(nil).WriteWorkbook(&buf, sampleTables()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Len(t, f.GetSheetList(), 3)
	rows, err := f.GetRows("New Business")
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestColumnWidth(t *testing.T) {
	assert.Equal(t, float64(minColWidth), columnWidth("ID"))
	assert.Equal(t, 16.0, columnWidth("Admin 3 Amount"))
	assert.Equal(t, float64(maxColWidth), columnWidth(string(bytes.Repeat([]byte("x"), 100))))
}
