package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"ncbproc/internal/files"
	"ncbproc/internal/infrastructure"
	"ncbproc/internal/services"
	"ncbproc/internal/validation"
	"ncbproc/pkg/contracts"
	"ncbproc/pkg/contracts/domain"
)

type processFlags struct {
	inputDir  string
	outDir    string
	format    string
	layout    string
	summary   bool
	timestamp bool
	workers   int
}

// batchError reports the failed workbooks of a process run.
type batchError struct {
	failed []services.BatchItem
	total  int
}

// Error is the workbook's own error for a single-input run, else a count.
func (e *batchError) Error() string {
	if e.total == 1 && len(e.failed) == 1 {
		return e.failed[0].Err.Error()
	}
	return fmt.Sprintf("%d of %d workbooks failed", len(e.failed), e.total)
}

// ExitCode is 2 when every failure was caused by its input workbook.
func (e *batchError) ExitCode() int {
	for _, item := range e.failed {
		if !isInputError(item.Err) {
			return exitFailure
		}
	}
	return exitInput
}

func (c *cli) processCmd() *cobra.Command {
	var f processFlags
	cmd := &cobra.Command{
		Use:   "process [files...]",
		Short: "Process workbooks and write the bucket tables",
		Long: `Process reads each workbook, writes its new business, reinstatement and
cancellation tables to the output directory and prints the kept row counts.

With more than one workbook each one gets its own subdirectory of the
output directory.`,
		Example: `  ncbproc process export.xlsx
  ncbproc process --input-dir exports --out results --format csv
  ncbproc --ruleset karen-2.0 process ncb.xlsx --layout separate`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := &c.cfg.Processing
			flags := cmd.Flags()
			if flags.Changed("format") {
				p.Format = f.format
			}
			if flags.Changed("layout") {
				p.Layout = f.layout
			}
			if flags.Changed("summary") {
				p.Summary = f.summary
			}
			if flags.Changed("timestamp") {
				p.Timestamp = f.timestamp
			}
			if flags.Changed("workers") {
				p.Workers = f.workers
			}
			if f.outDir != "" {
				p.OutputDir = f.outDir
			}
			if err := c.cfg.Validate(); err != nil {
				return fmt.Errorf("invalid flags: %w", err)
			}
			return c.runProcess(cmd.Context(), args, f.inputDir)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.inputDir, "input-dir", "", "process every workbook in this directory")
	flags.StringVar(&f.outDir, "out", "", "output directory (default from config)")
	flags.StringVar(&f.format, "format", "", "output format: xlsx or csv")
	flags.StringVar(&f.layout, "layout", "", "override the ruleset layout: separate or combined")
	flags.BoolVar(&f.summary, "summary", true, "write Processing_Summary.xlsx")
	flags.BoolVar(&f.timestamp, "timestamp", false, "add _YYYYMMDD_HHMMSS to output file names")
	flags.IntVar(&f.workers, "workers", 0, "workbooks processed concurrently")
	return cmd
}

func (c *cli) runProcess(ctx context.Context, args []string, inputDir string) error {
	inputs, err := c.collectInputs(args, inputDir)
	if err != nil {
		return err
	}

	paths, err := c.cfg.ResolvePaths("")
	if err != nil {
		return err
	}
	if err := paths.EnsureDirectories(c.cfg.Logging.Output != "console"); err != nil {
		return err
	}
	manager := files.NewManager(paths)
	outDir := manager.OutputDir("")

	providers, err := infrastructure.InitializeOTel(c.cfg.Telemetry, contracts.Version, c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	defer func() { _ = providers.Shutdown(context.Background()) }()

	svc, err := c.newService(providers.Metrics)
	if err != nil {
		return err
	}

	batch := len(inputs) > 1
	c.logger.InfoContext(ctx, "processing workbooks",
		slog.Int("count", len(inputs)),
		slog.String("output_dir", outDir),
		slog.Int("workers", c.cfg.Processing.Workers))

	items := svc.ProcessBatch(ctx, inputs, c.cfg.Processing.Workers, func(path string) string {
		return manager.RunDir(outDir, path, batch)
	})
	printReports(c.stdout, items)

	var failed []services.BatchItem
	for _, item := range items {
		if item.Err != nil {
			failed = append(failed, item)
		}
	}
	if len(failed) > 0 {
		return &batchError{failed: failed, total: len(items)}
	}
	return nil
}

// collectInputs returns the workbook paths named on the command line
// followed by those found in inputDir.
func (c *cli) collectInputs(args []string, inputDir string) ([]string, error) {
	inputs := append([]string(nil), args...)
	if inputDir != "" {
		if err := validation.NewFileValidator(c.logger).ValidateInputDirectory(inputDir); err != nil {
			return nil, err
		}
		found, err := files.FindWorkbooks(inputDir)
		if err != nil {
			return nil, err
		}
		if len(found) == 0 {
			return nil, fmt.Errorf("%w in %s", services.ErrNoWorkbooks, inputDir)
		}
		inputs = append(inputs, found...)
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: pass workbook files or --input-dir", services.ErrNoWorkbooks)
	}
	return inputs, nil
}

// printReports writes one block per workbook: the kept and classified
// counts per bucket and the files written, or the error.
func printReports(out io.Writer, items []services.BatchItem) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	for i, item := range items {
		if i > 0 {
			fmt.Fprintln(tw)
		}
		name := filepath.Base(item.Input)
		if item.Err != nil {
			fmt.Fprintf(tw, "%s\tFAILED\t%v\n", name, item.Err)
			continue
		}

		r := item.Report
		fmt.Fprintf(tw, "%s\tsheet %q\t%d rows\truleset %s\n", name, r.Sheet, r.TotalRows, r.Ruleset)
		fmt.Fprintf(tw, "  BUCKET\tKEPT\tCLASSIFIED\t\n")
		for _, b := range domain.AllBuckets() {
			fmt.Fprintf(tw, "  %s\t%d\t%d\t\n", b.Title(), r.Kept[b], r.Classified[b])
		}
		if counts := r.WarningCounts(); len(counts) > 0 {
			for _, kind := range domain.SortedKinds(counts) {
				fmt.Fprintf(tw, "  warning\t%s\t%d\t\n", kind, counts[kind])
			}
		}
		for _, file := range r.Files {
			fmt.Fprintf(tw, "  wrote\t%s\t\t\n", file)
		}
		if r.Summary != "" {
			fmt.Fprintf(tw, "  wrote\t%s\t\t\n", r.Summary)
		}
	}
}
