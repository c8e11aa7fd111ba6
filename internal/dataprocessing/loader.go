package dataprocessing

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/xuri/excelize/v2"

	"ncbproc/internal/ruleset"
	"ncbproc/pkg/contracts/domain"
)

// Loader reads the data sheet of a workbook into a RawTable.
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a loader.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger.With(slog.String("component", "sheet_loader"))}
}

// LoadFile opens the workbook at path and loads its data sheet.
func (l *Loader) LoadFile(ctx context.Context, path string, spec ruleset.SheetSpec) (*domain.RawTable, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadableWorkbook, err)
	}
	defer f.Close()

	return l.LoadWorkbook(ctx, f, spec)
}

// Load reads a workbook from r and loads its data sheet.
func (l *Loader) Load(ctx context.Context, r io.Reader, spec ruleset.SheetSpec) (*domain.RawTable, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadableWorkbook, err)
	}
	defer f.Close()

	return l.LoadWorkbook(ctx, f, spec)
}

// LoadWorkbook selects the data sheet of an open workbook and promotes its
// header row.
func (l *Loader) LoadWorkbook(ctx context.Context, f *excelize.File, spec ruleset.SheetSpec) (*domain.RawTable, error) {
	sheets := f.GetSheetList()
	sheet, err := SelectSheet(sheets, spec)
	if err != nil {
		l.logger.WarnContext(ctx, "data sheet not found",
			slog.String("requested", spec.Name),
			slog.Any("available", sheets))
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	formatted, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	raw, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read raw values of sheet %q: %w", sheet, err)
	}

	table, err := PromoteHeader(sheet, formatted, raw, spec)
	if err != nil {
		return nil, err
	}

	l.logger.InfoContext(ctx, "sheet loaded",
		slog.String("sheet", sheet),
		slog.Int("header_row", spec.HeaderRow),
		slog.Int("columns", table.Width()),
		slog.Int("rows", len(table.Rows)))

	return table, nil
}

// SelectSheet picks the data sheet. A configured name must exist (an exact
// match is preferred over a case and space insensitive one). Without a name,
// the first sheet in workbook order containing any preferred keyword wins,
// then the first sheet matching no excluded keyword. Exclusions do not apply
// to preferred sheets.
func SelectSheet(sheets []string, spec ruleset.SheetSpec) (string, error) {
	if spec.Name != "" {
		for _, s := range sheets {
			if s == spec.Name {
				return s, nil
			}
		}
		want := strings.ToLower(strings.TrimSpace(spec.Name))
		for _, s := range sheets {
			if strings.ToLower(strings.TrimSpace(s)) == want {
				return s, nil
			}
		}
		return "", newSheetNotFound(spec.Name, sheets)
	}

	for _, s := range sheets {
		if matchesAny(s, spec.Prefer) {
			return s, nil
		}
	}

	for _, s := range sheets {
		if !matchesAny(s, spec.Exclude) {
			return s, nil
		}
	}

	return "", newSheetNotFound("", sheets)
}

func matchesAny(sheet string, keywords []string) bool {
	for _, k := range keywords {
		if containsFold(sheet, k) {
			return true
		}
	}
	return false
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(strings.TrimSpace(substr)))
}

// PromoteHeader builds a RawTable from sheet rows, using the row at
// spec.HeaderRow as column names. Rows up to and including the header are
// dropped, as are rows with no content. raw may be nil.
func PromoteHeader(sheet string, formatted, raw [][]string, spec ruleset.SheetSpec) (*domain.RawTable, error) {
	hr := spec.HeaderRow
	if hr < 0 || hr >= len(formatted) {
		return nil, newMalformedHeader(sheet, hr, 0, spec.MinHeaderColumns,
			fmt.Sprintf("sheet has only %d rows", len(formatted)))
	}

	width := 0
	for _, row := range formatted[hr:] {
		if len(row) > width {
			width = len(row)
		}
	}

	header := formatted[hr]
	table := &domain.RawTable{
		Sheet:     sheet,
		HeaderRow: hr,
		Columns:   make([]domain.Column, width),
	}

	used := make(map[string]bool, width)
	named := 0
	for i := 0; i < width; i++ {
		letter := columnLetter(i)
		name := ""
		if i < len(header) {
			name = strings.TrimSpace(header[i])
		}

		col := domain.Column{Index: i, Letter: letter, Name: name}
		if name == "" {
			col.Name = "Unnamed: " + letter
			col.Placeholder = true
		} else {
			named++
			if used[name] {
				unique := dedupe(name, used)
				table.Warnings = append(table.Warnings, domain.Warning{
					Kind:    domain.KindDuplicateHeader,
					Row:     hr + 1,
					Column:  letter,
					Value:   name,
					Message: fmt.Sprintf("duplicate header %q in column %s renamed to %q", name, letter, unique),
				})
				col.Name = unique
			}
		}
		used[col.Name] = true
		table.Columns[i] = col
	}

	if named < spec.MinHeaderColumns {
		return nil, newMalformedHeader(sheet, hr, named, spec.MinHeaderColumns,
			fmt.Sprintf("found %d named columns, need at least %d", named, spec.MinHeaderColumns))
	}

	for r := hr + 1; r < len(formatted); r++ {
		if blankRow(formatted[r]) {
			continue
		}
		row := domain.Row{Number: r + 1, Cells: formatted[r]}
		if r < len(raw) {
			row.Raw = raw[r]
		}
		table.Rows = append(table.Rows, row)
	}

	return table, nil
}

// dedupe returns name with the first free _N suffix.
func dedupe(name string, used map[string]bool) string {
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s_%d", name, n)
		if !used[candidate] {
			return candidate
		}
	}
}

func blankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func columnLetter(index int) string {
	name, err := excelize.ColumnNumberToName(index + 1)
	if err != nil {
		return fmt.Sprintf("#%d", index+1)
	}
	return name
}
