package exporter

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"ncbproc/internal/dataprocessing"
	"ncbproc/pkg/contracts/domain"
)

// SummaryFile is the base name of the processing summary workbook.
const SummaryFile = "Processing_Summary.xlsx"

// WriteSummary writes the processing summary for result into dir. The
// workbook has a record count per bucket, the warnings by kind and the
// resolved column map.
func (w *XLSXWriter) WriteSummary(dir string, result *dataprocessing.Result, at time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	date := at.Format("2006-01-02 15:04:05")
	counts := domain.OutputTable{
		Sheet: "Summary",
		Columns: []domain.OutputColumn{
			{Header: "Data Type"}, {Header: "Record Count"}, {Header: "Processing Date"},
		},
	}
	for _, t := range result.Tables {
		counts.Rows = append(counts.Rows, []any{t.Bucket.Title(), t.Len(), date})
	}
	counts.Rows = append(counts.Rows,
		[]any{"Source Rows", result.TotalRows, date},
		[]any{"Unclassified Rows", result.WarningCounts()[domain.KindUnclassifiableRow], date},
	)

	warnings := domain.OutputTable{
		Sheet:   "Warnings",
		Columns: []domain.OutputColumn{{Header: "Kind"}, {Header: "Count"}},
	}
	byKind := result.WarningCounts()
	for _, kind := range domain.SortedKinds(byKind) {
		warnings.Rows = append(warnings.Rows, []any{string(kind), byKind[kind]})
	}

	columns := domain.OutputTable{
		Sheet: "Column Map",
		Columns: []domain.OutputColumn{
			{Header: "Role"}, {Header: "Column"}, {Header: "Header"}, {Header: "Matched By"},
		},
	}
	for _, role := range result.ColumnMap.Roles() {
		ref := result.ColumnMap[role]
		columns.Rows = append(columns.Rows, []any{string(role), ref.Letter, ref.Name, string(ref.Source)})
	}

	f, err := buildWorkbook([]domain.OutputTable{counts, warnings, columns})
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := f.SetDocProps(&excelize.DocProperties{
		Title:       "NCB processing summary",
		Description: fmt.Sprintf("%s processed with %s", result.Source, result.Ruleset),
		Created:     at.UTC().Format(time.RFC3339),
	}); err != nil {
		return "", fmt.Errorf("failed to set document properties: %w", err)
	}

	path := filepath.Join(dir, stampName(SummaryFile, w.Stamp))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("failed to save summary: %w", err)
	}
	w.logger.Info("summary written", slog.String("path", path))
	return path, nil
}
