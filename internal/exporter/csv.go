package exporter

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"ncbproc/internal/ruleset"
	"ncbproc/pkg/contracts/domain"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVWriter writes each output table to its own CSV file.
type CSVWriter struct {
	// BOMPrefix adds a UTF-8 BOM so Excel detects the encoding.
	BOMPrefix bool
	// Stamp, when set, suffixes every file name with _YYYYMMDD_HHMMSS.
	Stamp  time.Time
	logger *slog.Logger
}

// NewCSVWriter creates a new CSV writer instance
func NewCSVWriter(logger *slog.Logger) *CSVWriter {
	return &CSVWriter{BOMPrefix: true, logger: withComponent(logger)}
}

// WriteTables writes one CSV per table, named after the table's file with a
// .csv extension. CSV has no sheets, so the layout only affects naming: the
// combined layout prefixes each file with the workbook name.
func (w *CSVWriter) WriteTables(dir string, tables []domain.OutputTable, layout ruleset.Layout, workbook string) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	paths := make([]string, 0, len(tables))
	for i := range tables {
		name := withExt(tables[i].File, ".csv")
		if layout == ruleset.LayoutCombined && workbook != "" {
			name = withExt(workbook, "") + " - " + tables[i].Sheet + ".csv"
		}
		path := filepath.Join(dir, stampName(name, w.Stamp))
		if err := w.WriteTable(path, &tables[i]); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// WriteTable writes a single table with its header row.
func (w *CSVWriter) WriteTable(path string, table *domain.OutputTable) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if w.BOMPrefix {
		if _, err := file.Write(utf8BOM); err != nil {
			return fmt.Errorf("failed to write BOM: %w", err)
		}
	}

	writer := csv.NewWriter(file)
	if err := writer.Write(table.Headers()); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}

	record := make([]string, len(table.Columns))
	for i, values := range table.Rows {
		for j := range record {
			record[j] = ""
			if j < len(values) {
				record[j] = formatCell(values[j])
			}
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}

	w.logger.Info("CSV written",
		slog.String("path", path),
		slog.String("bucket", string(table.Bucket)),
		slog.Int("record_count", table.Len()))
	return file.Close()
}
