package exporter

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"ncbproc/internal/ruleset"
	"ncbproc/pkg/contracts/domain"
)

// Format selects the file type of exported tables.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// ParseFormat accepts "xlsx" or "csv" in any case. Empty means xlsx.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "xlsx":
		return FormatXLSX, nil
	case "csv":
		return FormatCSV, nil
	}
	return "", fmt.Errorf("unknown export format %q (want xlsx or csv)", s)
}

// TableWriter writes output tables under a directory and returns the paths
// it created.
type TableWriter interface {
	WriteTables(dir string, tables []domain.OutputTable, layout ruleset.Layout, workbook string) ([]string, error)
}

// NewWriter returns the writer for format. A non-zero stamp adds a
// _YYYYMMDD_HHMMSS suffix to every file name.
func NewWriter(format Format, stamp time.Time, logger *slog.Logger) TableWriter {
	if format == FormatCSV {
		return &CSVWriter{BOMPrefix: true, Stamp: stamp, logger: withComponent(logger)}
	}
	return &XLSXWriter{Stamp: stamp, logger: withComponent(logger)}
}

func withComponent(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("component", "exporter"))
}

// stampName inserts _YYYYMMDD_HHMMSS before the extension of name.
func stampName(name string, at time.Time) string {
	if at.IsZero() {
		return name
	}
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + "_" + at.Format("20060102_150405") + ext
}

// withExt replaces the extension of name.
func withExt(name, ext string) string {
	return strings.TrimSuffix(name, filepath.Ext(name)) + ext
}

// formatFloat formats a fee with the fewest digits that round-trip, so
// CSV output keeps the source precision.
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// formatCell renders an output cell as text.
func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return formatFloat(x)
	case int:
		return fmt.Sprintf("%d", x)
	default:
		return fmt.Sprint(x)
	}
}
