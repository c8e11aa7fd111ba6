package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"ncbproc/internal/config"
	"ncbproc/internal/dataprocessing"
	"ncbproc/internal/exporter"
	"ncbproc/internal/infrastructure"
	"ncbproc/internal/ruleset"
	"ncbproc/internal/validation"
)

// Run is one processed workbook held in memory.
type Run struct {
	ID        string        `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"-"`
	*dataprocessing.Result
}

// RunReport is a run whose tables were written to disk.
type RunReport struct {
	*Run
	Input     string   `json:"input"`
	OutputDir string   `json:"output_dir"`
	Format    string   `json:"format"`
	Files     []string `json:"files"`
	Summary   string   `json:"summary,omitempty"`
}

// BatchItem is the outcome of one workbook of a batch. Exactly one of
// Report and Err is set.
type BatchItem struct {
	Input  string
	Report *RunReport
	Err    error
}

// ProcessingService runs workbooks through the pipeline of a ruleset and
// exports the results.
type ProcessingService struct {
	cfg       config.ProcessingConfig
	metrics   *infrastructure.BusinessMetrics
	validator *validation.FileValidator
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time

	mu        sync.Mutex
	pipelines map[string]*dataprocessing.Pipeline
}

// NewProcessingService creates the service and resolves the configured
// ruleset, so a bad ruleset file fails at startup. metrics may be nil.
func NewProcessingService(cfg config.ProcessingConfig, metrics *infrastructure.BusinessMetrics, logger *slog.Logger) (*ProcessingService, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &ProcessingService{
		cfg:       cfg,
		metrics:   metrics,
		validator: validation.NewFileValidator(logger),
		logger:    logger.With(slog.String("component", "processing_service")),
		tracer:    otel.Tracer(infrastructure.MeterName),
		now:       time.Now,
		pipelines: make(map[string]*dataprocessing.Pipeline),
	}
	if _, err := s.pipeline(""); err != nil {
		return nil, fmt.Errorf("failed to load ruleset: %w", err)
	}
	return s, nil
}

// pipeline returns the cached pipeline of the named built-in ruleset. An
// empty name selects the configured ruleset, where a ruleset file wins over
// the configured name.
func (s *ProcessingService) pipeline(name string) (*dataprocessing.Pipeline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.pipelines[name]; ok {
		return p, nil
	}

	var (
		rs  *ruleset.Ruleset
		err error
	)
	if name == "" {
		rs, err = ruleset.Resolve(s.cfg.Ruleset, s.cfg.RulesetFile)
	} else {
		rs, err = ruleset.Builtin(name)
	}
	if err != nil {
		return nil, err
	}

	p, err := dataprocessing.NewPipeline(rs, s.logger)
	if err != nil {
		return nil, err
	}
	s.pipelines[name] = p
	return p, nil
}

// Ruleset returns the ruleset a request for name would use.
func (s *ProcessingService) Ruleset(name string) (*ruleset.Ruleset, error) {
	p, err := s.pipeline(name)
	if err != nil {
		return nil, err
	}
	return p.Ruleset(), nil
}

// Process runs the workbook read from r. source names the workbook in logs
// and results. name overrides the configured ruleset when not empty.
func (s *ProcessingService) Process(ctx context.Context, r io.Reader, source, name string) (*Run, error) {
	p, err := s.pipeline(name)
	if err != nil {
		return nil, err
	}
	rsName := p.Ruleset().Name

	ctx, runID := infrastructure.EnsureRunID(ctx)
	ctx, span := s.tracer.Start(ctx, "service.process", trace.WithAttributes(
		attribute.String("ncb.run_id", runID),
		attribute.String("ncb.ruleset", rsName),
		attribute.String("ncb.source", source),
	))
	defer span.End()

	infrastructure.RecordActiveRunChange(ctx, s.metrics, 1)
	defer infrastructure.RecordActiveRunChange(ctx, s.metrics, -1)

	start := s.now()
	result, err := p.Run(ctx, r, source)
	duration := s.now().Sub(start)

	run := infrastructure.RunMetrics{
		Ruleset:  rsName,
		Status:   runStatus(err),
		Duration: duration,
	}
	if result != nil {
		run.Rows = result.TotalRows
		run.Kept = result.Kept
		run.Warnings = result.WarningCounts()
	}
	infrastructure.RecordRunMetrics(ctx, s.metrics, run)

	if err != nil {
		infrastructure.RecordError(ctx, err)
		level := slog.LevelError
		if run.Status != infrastructure.StatusFailure {
			level = slog.LevelWarn
		}
		s.logger.Log(ctx, level, "run failed",
			slog.String("source", source),
			slog.String("status", run.Status),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("process %s: %w", source, err)
	}

	s.logger.InfoContext(ctx, "run completed",
		slog.String("source", source),
		slog.String("sheet", result.Sheet),
		slog.Int("rows", result.TotalRows),
		slog.Int("kept", result.TotalKept()),
		slog.Duration("duration", duration))

	return &Run{ID: runID, StartedAt: start, Duration: duration, Result: result}, nil
}

// runStatus maps a run error to the status attribute of run metrics.
func runStatus(err error) string {
	switch {
	case err == nil:
		return infrastructure.StatusSuccess
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return infrastructure.StatusCancelled
	case dataprocessing.IsInputError(err):
		return infrastructure.StatusInputError
	}
	return infrastructure.StatusFailure
}

// ProcessAndExport processes the workbook at path with the configured
// ruleset and writes its tables, and the summary workbook when enabled,
// into outDir.
func (s *ProcessingService) ProcessAndExport(ctx context.Context, path, outDir string) (*RunReport, error) {
	if err := s.validator.ValidateExcelFile(path); err != nil {
		return nil, err
	}
	format, err := exporter.ParseFormat(s.cfg.Format)
	if err != nil {
		return nil, err
	}
	p, err := s.pipeline("")
	if err != nil {
		return nil, err
	}
	layout := p.Ruleset().Output.Layout
	if s.cfg.Layout != "" {
		if layout, err = ruleset.ParseLayout(s.cfg.Layout); err != nil {
			return nil, err
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	ctx, _ = infrastructure.EnsureRunID(ctx)
	run, err := s.Process(ctx, f, filepath.Base(path), "")
	if err != nil {
		return nil, err
	}

	if err := s.validator.ValidateOutputDirectory(outDir); err != nil {
		return nil, err
	}

	var stamp time.Time
	if s.cfg.Timestamp {
		stamp = run.StartedAt
	}
	files, err := exporter.NewWriter(format, stamp, s.logger).
		WriteTables(outDir, run.Tables, layout, WorkbookName(p.Ruleset(), path))
	infrastructure.RecordFilesWritten(ctx, s.metrics, string(format), len(files))
	if err != nil {
		infrastructure.RecordError(ctx, err)
		return nil, fmt.Errorf("export %s: %w", filepath.Base(path), err)
	}

	report := &RunReport{
		Run:       run,
		Input:     path,
		OutputDir: outDir,
		Format:    string(format),
		Files:     files,
	}

	if s.cfg.Summary {
		xw := exporter.NewXLSXWriter(s.logger)
		xw.Stamp = stamp
		summary, err := xw.WriteSummary(outDir, run.Result, run.StartedAt)
		if err != nil {
			return nil, fmt.Errorf("write summary: %w", err)
		}
		infrastructure.RecordFilesWritten(ctx, s.metrics, string(exporter.FormatXLSX), 1)
		report.Summary = summary
	}

	s.logger.InfoContext(ctx, "outputs written",
		slog.String("output_dir", outDir),
		slog.Int("files", len(files)))
	return report, nil
}

// WorkbookName returns the combined workbook name of rs. Rulesets that do
// not name one get "<input>_NCB_Output.xlsx".
func WorkbookName(rs *ruleset.Ruleset, input string) string {
	if name := strings.TrimSpace(rs.Output.Workbook); name != "" {
		return name
	}
	base := filepath.Base(input)
	return strings.TrimSuffix(base, filepath.Ext(base)) + "_NCB_Output.xlsx"
}

// ProcessBatch exports every workbook in paths with at most workers runs in
// flight, writing each into dirFor(path). A failing workbook does not stop
// the others. Items are returned in input order.
func (s *ProcessingService) ProcessBatch(ctx context.Context, paths []string, workers int, dirFor func(path string) string) []BatchItem {
	if workers < 1 {
		workers = 1
	}
	items := make([]BatchItem, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, path := range paths {
		g.Go(func() error {
			report, err := s.ProcessAndExport(gctx, path, dirFor(path))
			items[i] = BatchItem{Input: path, Report: report, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return items
}

// Inspect reports how the workbook read from r looks to the pipeline of
// the named ruleset.
func (s *ProcessingService) Inspect(ctx context.Context, r io.Reader, name string) (*dataprocessing.InspectReport, error) {
	p, err := s.pipeline(name)
	if err != nil {
		return nil, err
	}
	ctx, span := s.tracer.Start(ctx, "service.inspect", trace.WithAttributes(
		attribute.String("ncb.ruleset", p.Ruleset().Name),
	))
	defer span.End()

	report, err := p.Inspect(ctx, r)
	if err != nil {
		infrastructure.RecordError(ctx, err)
		return nil, err
	}
	return report, nil
}
