package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Paths holds the resolved directories the application writes to.
type Paths struct {
	BaseDir   string
	OutputDir string
	LogsDir   string
	LogFile   string
}

// ResolvePaths resolves the configured output and log locations against
// baseDir. Absolute paths are kept as they are. An empty baseDir means the
// working directory.
func (c *Config) ResolvePaths(baseDir string) (*Paths, error) {
	if baseDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		baseDir = wd
	}

	logFile := resolve(baseDir, c.Logging.FilePath)
	return &Paths{
		BaseDir:   baseDir,
		OutputDir: resolve(baseDir, c.Processing.OutputDir),
		LogsDir:   filepath.Dir(logFile),
		LogFile:   logFile,
	}, nil
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// EnsureDirectories creates the output directory, and the logs directory
// when logging goes to a file.
func (p *Paths) EnsureDirectories(withLogs bool) error {
	dirs := []string{p.OutputDir}
	if withLogs {
		dirs = append(dirs, p.LogsDir)
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// LogPathResolution logs the resolved paths at debug level.
func (p *Paths) LogPathResolution(logger *slog.Logger) {
	logger.Debug("paths resolved",
		slog.String("base_dir", p.BaseDir),
		slog.String("output_dir", p.OutputDir),
		slog.String("log_file", p.LogFile))
}

// FileExists reports whether path exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
