// Command ncbproc splits NCB transaction workbooks into new business,
// reinstatement and cancellation tables.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ncbproc/internal/config"
	"ncbproc/internal/dataprocessing"
	"ncbproc/internal/infrastructure"
	"ncbproc/internal/services"
	"ncbproc/internal/validation"
)

// Exit codes
const (
	exitOK      = 0
	exitFailure = 1
	exitInput   = 2
)

// cli holds the persistent flags and the state built from them before a
// subcommand runs.
type cli struct {
	configPath  string
	logLevel    string
	rulesetName string
	rulesetFile string

	stdout io.Writer
	stderr io.Writer

	cfg     *config.Config
	logger  *slog.Logger
	logFile *os.File
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the command line in args and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	c := &cli{stdout: stdout, stderr: stderr}
	root := c.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	c.close()
	if err == nil {
		return exitOK
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return exitCode(err)
}

// exitCode maps a command error to the process exit code. Errors caused by
// the input workbooks exit with 2.
func exitCode(err error) int {
	var coded interface{ ExitCode() int }
	if errors.As(err, &coded) {
		return coded.ExitCode()
	}
	if isInputError(err) {
		return exitInput
	}
	return exitFailure
}

func isInputError(err error) bool {
	return dataprocessing.IsInputError(err) ||
		errors.Is(err, validation.ErrInvalidFile) ||
		errors.Is(err, services.ErrNoWorkbooks)
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ncbproc",
		Short: "Split NCB transaction workbooks into bucket tables",
		Long: `ncbproc reads an NCB transaction export, locates its columns, classifies
each row as new business, reinstatement or cancellation, keeps the rows
whose admin amounts satisfy the bucket's sign rule and writes one table
per bucket.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "config file (default: $NCB_CONFIG, ncbproc.yaml or config/ncbproc.yaml)")
	flags.StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn or error")
	flags.StringVar(&c.rulesetName, "ruleset", "", "built-in ruleset name")
	flags.StringVar(&c.rulesetFile, "ruleset-file", "", "ruleset YAML file, overrides --ruleset")

	root.AddCommand(
		c.processCmd(),
		c.inspectCmd(),
		c.rulesetsCmd(),
		c.serveCmd(),
		c.versionCmd(),
	)
	return root
}

// setup loads the configuration, applies the persistent flags and builds
// the logger.
func (c *cli) setup() error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.Logging.Level = c.logLevel
	}
	if c.rulesetName != "" {
		cfg.Processing.Ruleset = c.rulesetName
	}
	if c.rulesetFile != "" {
		cfg.Processing.RulesetFile = c.rulesetFile
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	logger, file, err := infrastructure.NewLogger(cfg.Logging, c.stderr)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	c.cfg, c.logger, c.logFile = cfg, logger, file
	return nil
}

func (c *cli) close() {
	if c.logFile != nil {
		_ = c.logFile.Close()
		c.logFile = nil
	}
}

// newService builds a processing service from the loaded configuration.
func (c *cli) newService(metrics *infrastructure.BusinessMetrics) (*services.ProcessingService, error) {
	return services.NewProcessingService(c.cfg.Processing, metrics, c.logger)
}
