package dataprocessing

import (
	"fmt"
	"log/slog"
	"strings"

	"ncbproc/internal/ruleset"
	"ncbproc/pkg/contracts/domain"
)

// Composer projects classified rows onto each bucket's output layout.
type Composer struct {
	rs     *ruleset.Ruleset
	logger *slog.Logger
}

// NewComposer creates a composer for rs.
func NewComposer(rs *ruleset.Ruleset, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{rs: rs, logger: logger.With(slog.String("component", "output_composer"))}
}

// Compose builds one OutputTable per configured bucket, in ruleset order.
// Roles missing from cmap are left out of that table and reported.
func (c *Composer) Compose(table *domain.RawTable, cmap domain.ColumnMap, cls *Classification) ([]domain.OutputTable, []domain.Warning) {
	var warnings []domain.Warning
	tables := make([]domain.OutputTable, 0, len(c.rs.Output.Buckets))

	for _, out := range c.rs.Output.Buckets {
		ot := domain.OutputTable{
			Bucket: out.Bucket,
			Sheet:  out.Sheet,
			File:   out.File,
		}

		for _, spec := range out.Columns {
			ref, ok := cmap.Get(spec.Role)
			if !ok {
				warnings = append(warnings, domain.Warning{
					Kind:    domain.KindMissingOutputRole,
					Column:  string(spec.Role),
					Message: fmt.Sprintf("%s output omits %s: role not resolved", out.Bucket, spec.Role),
				})
				continue
			}
			header := spec.Header
			if header == "" {
				header = c.rs.Label(spec.Role)
			}
			ot.Columns = append(ot.Columns, domain.OutputColumn{
				Role:   spec.Role,
				Header: header,
				Fee:    c.rs.IsFee(spec.Role),
				Source: ref,
			})
		}

		rows := cls.Buckets[out.Bucket]
		ot.Rows = make([][]any, 0, len(rows))
		for _, r := range rows {
			values := make([]any, len(ot.Columns))
			for i, col := range ot.Columns {
				if col.Fee {
					v, _ := cls.FeeValue(r, col.Role)
					values[i] = v
					continue
				}
				values[i] = strings.TrimSpace(table.Cell(r, col.Source.Index))
			}
			ot.Rows = append(ot.Rows, values)
		}

		c.logger.Debug("output table composed",
			slog.String("bucket", string(out.Bucket)),
			slog.Int("columns", len(ot.Columns)),
			slog.Int("rows", len(ot.Rows)))
		tables = append(tables, ot)
	}

	if len(warnings) > 0 {
		c.logger.Warn("degraded output: roles omitted", slog.Int("omitted", len(warnings)))
	}
	return tables, warnings
}
