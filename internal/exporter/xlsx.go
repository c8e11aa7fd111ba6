package exporter

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"ncbproc/internal/ruleset"
	"ncbproc/pkg/contracts/domain"
)

const (
	amountFormat = "#,##0.00"
	minColWidth  = 10
	maxColWidth  = 60
)

// XLSXWriter writes output tables as Excel workbooks.
type XLSXWriter struct {
	// Stamp, when set, suffixes every file name with _YYYYMMDD_HHMMSS.
	Stamp  time.Time
	logger *slog.Logger
}

// NewXLSXWriter creates a workbook writer.
func NewXLSXWriter(logger *slog.Logger) *XLSXWriter {
	return &XLSXWriter{logger: withComponent(logger)}
}

// WriteTables writes one workbook per table for the separate layout, or a
// single workbook with one sheet per table for the combined layout.
func (w *XLSXWriter) WriteTables(dir string, tables []domain.OutputTable, layout ruleset.Layout, workbook string) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	if layout == ruleset.LayoutCombined {
		path := filepath.Join(dir, stampName(workbook, w.Stamp))
		if err := w.save(path, tables); err != nil {
			return nil, err
		}
		return []string{path}, nil
	}

	paths := make([]string, 0, len(tables))
	for i := range tables {
		path := filepath.Join(dir, stampName(tables[i].File, w.Stamp))
		if err := w.save(path, tables[i:i+1]); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// WriteWorkbook streams the tables as one workbook to out.
func (w *XLSXWriter) WriteWorkbook(out io.Writer, tables []domain.OutputTable) error {
	f, err := buildWorkbook(tables)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(out); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func (w *XLSXWriter) save(path string, tables []domain.OutputTable) error {
	f, err := buildWorkbook(tables)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save %s: %w", filepath.Base(path), err)
	}

	rows := 0
	for i := range tables {
		rows += tables[i].Len()
	}
	w.logger.Info("workbook written",
		slog.String("path", path),
		slog.Int("sheets", len(tables)),
		slog.Int("rows", rows))
	return nil
}

// buildWorkbook lays out each table on its own sheet, in order.
func buildWorkbook(tables []domain.OutputTable) (*excelize.File, error) {
	f := excelize.NewFile()

	styles, err := newSheetStyles(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	for i := range tables {
		t := &tables[i]
		if i == 0 {
			err = f.SetSheetName("Sheet1", t.Sheet)
		} else {
			_, err = f.NewSheet(t.Sheet)
		}
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to create sheet %q: %w", t.Sheet, err)
		}
		if err := writeSheet(f, t, styles); err != nil {
			f.Close()
			return nil, err
		}
	}
	f.SetActiveSheet(0)
	return f, nil
}

type sheetStyles struct {
	header int
	amount int
}

func newSheetStyles(f *excelize.File) (sheetStyles, error) {
	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"D9E1F2"}, Pattern: 1},
	})
	if err != nil {
		return sheetStyles{}, fmt.Errorf("failed to create header style: %w", err)
	}
	numFmt := amountFormat
	amount, err := f.NewStyle(&excelize.Style{CustomNumFmt: &numFmt})
	if err != nil {
		return sheetStyles{}, fmt.Errorf("failed to create amount style: %w", err)
	}
	return sheetStyles{header: header, amount: amount}, nil
}

func writeSheet(f *excelize.File, t *domain.OutputTable, styles sheetStyles) error {
	sw, err := f.NewStreamWriter(t.Sheet)
	if err != nil {
		return fmt.Errorf("failed to open sheet %q: %w", t.Sheet, err)
	}

	for i, col := range t.Columns {
		if err := sw.SetColWidth(i+1, i+1, columnWidth(col.Header)); err != nil {
			return fmt.Errorf("failed to size column %s: %w", col.Header, err)
		}
	}

	header := make([]any, len(t.Columns))
	for i, col := range t.Columns {
		header[i] = excelize.Cell{StyleID: styles.header, Value: col.Header}
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("failed to write header of %q: %w", t.Sheet, err)
	}

	for r, values := range t.Rows {
		row := make([]any, len(values))
		for i, v := range values {
			if i < len(t.Columns) && t.Columns[i].Fee {
				row[i] = excelize.Cell{StyleID: styles.amount, Value: v}
				continue
			}
			row[i] = v
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("failed to write row %d of %q: %w", r+2, t.Sheet, err)
		}
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("failed to flush sheet %q: %w", t.Sheet, err)
	}
	return nil
}

func columnWidth(header string) float64 {
	width := float64(utf8.RuneCountInString(header) + 2)
	if width < minColWidth {
		return minColWidth
	}
	if width > maxColWidth {
		return maxColWidth
	}
	return width
}
