package dataprocessing

import (
	"context"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ncbproc/internal/ruleset"
	"ncbproc/pkg/contracts/domain"
)

const tracerName = "ncbproc/internal/dataprocessing"

// Result is the in-memory outcome of one pipeline run.
type Result struct {
	Source     string                `json:"source"`
	Ruleset    string                `json:"ruleset"`
	Sheet      string                `json:"sheet"`
	HeaderRow  int                   `json:"header_row"`
	TotalRows  int                   `json:"total_rows"`
	ColumnMap  domain.ColumnMap      `json:"column_map"`
	Tables     []domain.OutputTable  `json:"tables"`
	Classified map[domain.Bucket]int `json:"classified"`
	Kept       map[domain.Bucket]int `json:"kept"`
	Warnings   []domain.Warning      `json:"warnings"`
}

// Table returns the output table of bucket.
func (r *Result) Table(bucket domain.Bucket) (*domain.OutputTable, bool) {
	for i := range r.Tables {
		if r.Tables[i].Bucket == bucket {
			return &r.Tables[i], true
		}
	}
	return nil, false
}

// WarningCounts tallies the run's warnings by kind.
func (r *Result) WarningCounts() map[domain.ErrorKind]int {
	return domain.CountWarnings(r.Warnings)
}

// TotalKept returns the number of rows across all output tables.
func (r *Result) TotalKept() int {
	total := 0
	for _, n := range r.Kept {
		total += n
	}
	return total
}

// Pipeline wires the loader, locator, classifier and composer for one
// ruleset. It holds no state between runs.
type Pipeline struct {
	rs         *ruleset.Ruleset
	loader     *Loader
	locator    *Locator
	classifier *Classifier
	composer   *Composer
	logger     *slog.Logger
	tracer     trace.Tracer
}

// NewPipeline creates a pipeline for rs.
func NewPipeline(rs *ruleset.Ruleset, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}
	locator, err := NewLocator(rs, logger)
	if err != nil {
		return nil, err
	}
	classifier, err := NewClassifier(rs, logger)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		rs:         rs,
		loader:     NewLoader(logger),
		locator:    locator,
		classifier: classifier,
		composer:   NewComposer(rs, logger),
		logger:     logger.With(slog.String("component", "pipeline"), slog.String("ruleset", rs.Name)),
		tracer:     otel.Tracer(tracerName),
	}, nil
}

// Ruleset returns the pipeline's ruleset.
func (p *Pipeline) Ruleset() *ruleset.Ruleset {
	return p.rs
}

// Run loads the workbook read from r and processes its data sheet.
func (p *Pipeline) Run(ctx context.Context, r io.Reader, source string) (*Result, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("ncb.source", source),
		attribute.String("ncb.ruleset", p.rs.Name),
	))
	defer span.End()

	_, loadSpan := p.tracer.Start(ctx, "pipeline.load")
	table, err := p.loader.Load(ctx, r, p.rs.Sheet)
	if err != nil {
		recordError(loadSpan, err)
		loadSpan.End()
		recordError(span, err)
		return nil, err
	}
	loadSpan.SetAttributes(
		attribute.String("ncb.sheet", table.Sheet),
		attribute.Int("ncb.rows", len(table.Rows)),
	)
	loadSpan.End()

	result, err := p.RunTable(ctx, table)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	result.Source = source
	return result, nil
}

// RunTable processes an already loaded table.
func (p *Pipeline) RunTable(ctx context.Context, table *domain.RawTable) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	_, span := p.tracer.Start(ctx, "pipeline.locate")
	cmap, err := p.locator.Locate(table)
	if err != nil {
		recordError(span, err)
		span.End()
		return nil, err
	}
	span.SetAttributes(attribute.Int("ncb.resolved_roles", len(cmap)))
	span.End()

	_, span = p.tracer.Start(ctx, "pipeline.classify")
	cls, err := p.classifier.Classify(table, cmap)
	if err != nil {
		recordError(span, err)
		span.End()
		return nil, err
	}
	span.End()

	_, span = p.tracer.Start(ctx, "pipeline.compose")
	tables, composeWarnings := p.composer.Compose(table, cmap, cls)
	span.End()

	warnings := make([]domain.Warning, 0, len(table.Warnings)+len(cls.Warnings)+len(composeWarnings))
	warnings = append(warnings, table.Warnings...)
	warnings = append(warnings, cls.Warnings...)
	warnings = append(warnings, composeWarnings...)

	result := &Result{
		Ruleset:    p.rs.Name,
		Sheet:      table.Sheet,
		HeaderRow:  table.HeaderRow,
		TotalRows:  len(table.Rows),
		ColumnMap:  cmap,
		Tables:     tables,
		Classified: cls.Classified,
		Kept:       cls.Kept(),
		Warnings:   warnings,
	}

	level := slog.LevelInfo
	if len(composeWarnings) > 0 {
		level = slog.LevelWarn
	}
	p.logger.Log(ctx, level, "pipeline completed",
		slog.String("sheet", table.Sheet),
		slog.Int("rows", result.TotalRows),
		slog.Int("kept", result.TotalKept()),
		slog.Int("warnings", len(warnings)))

	if result.TotalKept() == 0 {
		p.logger.WarnContext(ctx, "no rows kept after filtering", slog.String("sheet", table.Sheet))
	}

	return result, nil
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if kind, ok := KindOf(err); ok {
		span.SetAttributes(attribute.String("ncb.error_kind", string(kind)))
	}
}
