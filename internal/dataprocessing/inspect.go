package dataprocessing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"ncbproc/internal/ruleset"
	"ncbproc/pkg/contracts/domain"
)

const inspectSamples = 3

// ColumnInfo summarizes one column of the data sheet.
type ColumnInfo struct {
	domain.Column
	NonBlank int      `json:"non_blank"`
	Numeric  int      `json:"numeric"`
	Samples  []string `json:"samples,omitempty"`
}

// ValueCount is a distinct value and how often it occurs.
type ValueCount struct {
	Value  string        `json:"value"`
	Count  int           `json:"count"`
	Bucket domain.Bucket `json:"bucket,omitempty"`
}

// InspectReport describes how a workbook looks to the pipeline, without
// failing on unresolved columns.
type InspectReport struct {
	Ruleset           string           `json:"ruleset"`
	Sheets            []string         `json:"sheets"`
	Sheet             string           `json:"sheet"`
	HeaderRow         int              `json:"header_row"`
	Rows              int              `json:"rows"`
	Columns           []ColumnInfo     `json:"columns"`
	AdminColumns      []string         `json:"admin_columns"`
	ColumnMap         domain.ColumnMap `json:"column_map"`
	Missing           []domain.Role    `json:"missing,omitempty"`
	Problem           string           `json:"problem,omitempty"`
	TransactionValues []ValueCount     `json:"transaction_values,omitempty"`
}

// Inspect reads the workbook from r and reports its sheets, columns, the
// attempted column map and the transaction code distribution.
func (p *Pipeline) Inspect(ctx context.Context, r io.Reader) (*InspectReport, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadableWorkbook, err)
	}
	defer f.Close()

	report := &InspectReport{
		Ruleset: p.rs.Name,
		Sheets:  f.GetSheetList(),
	}

	table, err := p.loader.LoadWorkbook(ctx, f, p.rs.Sheet)
	if err != nil {
		return nil, err
	}
	report.Sheet = table.Sheet
	report.HeaderRow = table.HeaderRow
	report.Rows = len(table.Rows)
	report.Columns = describeColumns(table)

	for _, col := range table.Columns {
		if !col.Placeholder && strings.Contains(strings.ToUpper(col.Name), "ADMIN") {
			report.AdminColumns = append(report.AdminColumns, col.Letter+": "+col.Name)
		}
	}

	cmap, err := p.locator.Locate(table)
	report.ColumnMap = cmap
	if err != nil {
		var pe *ProcessingError
		if !errors.As(err, &pe) {
			return nil, err
		}
		report.Missing = pe.Missing
		report.Problem = pe.Message
	}

	if ref, ok := cmap.Get(domain.RoleTransactionType); ok {
		report.TransactionValues = p.transactionValues(table, ref.Index)
	}

	return report, nil
}

func describeColumns(table *domain.RawTable) []ColumnInfo {
	infos := make([]ColumnInfo, len(table.Columns))
	for i, col := range table.Columns {
		info := ColumnInfo{Column: col}
		for r := range table.Rows {
			v := strings.TrimSpace(table.Cell(r, col.Index))
			if v == "" {
				continue
			}
			info.NonBlank++
			if _, ok := parseAmount(v); ok {
				info.Numeric++
			}
			if len(info.Samples) < inspectSamples {
				info.Samples = append(info.Samples, v)
			}
		}
		infos[i] = info
	}
	return infos
}

func (p *Pipeline) transactionValues(table *domain.RawTable, col int) []ValueCount {
	counts := make(map[string]int)
	for r := range table.Rows {
		counts[ruleset.NormalizeCode(table.Cell(r, col))]++
	}

	values := make([]ValueCount, 0, len(counts))
	for v, n := range counts {
		vc := ValueCount{Value: v, Count: n}
		if b, ok := p.classifier.vocab[v]; ok {
			vc.Bucket = b
		}
		values = append(values, vc)
	}
	sort.Slice(values, func(i, j int) bool {
		if values[i].Count != values[j].Count {
			return values[i].Count > values[j].Count
		}
		return values[i].Value < values[j].Value
	})
	return values
}
