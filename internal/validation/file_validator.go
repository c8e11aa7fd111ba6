package validation

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidFile marks every rejection of an input workbook path.
var ErrInvalidFile = errors.New("invalid input file")

// DefaultMaxFileSize bounds workbooks read from disk.
const DefaultMaxFileSize int64 = 200 << 20

// excelExtensions are the workbook formats the loader can open.
var excelExtensions = map[string]bool{".xlsx": true, ".xlsm": true}

// FileValidator checks input and output paths before processing
type FileValidator struct {
	// MaxSize is the largest accepted workbook in bytes. Zero disables the check.
	MaxSize int64
	logger  *slog.Logger
}

// NewFileValidator creates a new file validator
func NewFileValidator(logger *slog.Logger) *FileValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileValidator{
		MaxSize: DefaultMaxFileSize,
		logger:  logger.With(slog.String("component", "validation")),
	}
}

// ValidateInputDirectory checks that dir exists and is a directory.
func (v *FileValidator) ValidateInputDirectory(dir string) error {
	info, err := os.Stat(dir)
	if errors.Is(err, os.ErrNotExist) {
		v.logger.Error("input directory does not exist", slog.String("directory", dir))
		return fmt.Errorf("%w: input directory %s does not exist", ErrInvalidFile, dir)
	}
	if err != nil {
		return fmt.Errorf("failed to stat directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		v.logger.Error("input path is not a directory", slog.String("path", dir))
		return fmt.Errorf("%w: %s is not a directory", ErrInvalidFile, dir)
	}
	return nil
}

// ValidateOutputDirectory ensures output directory exists or can be created
// and that files can be written to it.
func (v *FileValidator) ValidateOutputDirectory(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		v.logger.Error("failed to create output directory",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".write_test_*")
	if err != nil {
		v.logger.Error("output directory is not writable",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return fmt.Errorf("output directory %s is not writable: %w", dir, err)
	}
	name := tmp.Name()
	_ = tmp.Close()
	_ = os.Remove(name)

	v.logger.Debug("output directory validated", slog.String("directory", dir))
	return nil
}

// ValidateExcelFile checks that path names a regular workbook file the
// loader can open: it exists, has an .xlsx or .xlsm extension, is not an
// Office lock file and is within MaxSize.
func (v *FileValidator) ValidateExcelFile(path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		v.logger.Error("file does not exist", slog.String("file", path))
		return fmt.Errorf("%w: file %s does not exist", ErrInvalidFile, path)
	}
	if err != nil {
		return fmt.Errorf("failed to stat file %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory, not a file", ErrInvalidFile, path)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if !IsWorkbookName(path) {
		v.logger.Error("file is not an Excel workbook",
			slog.String("file", path),
			slog.String("extension", ext))
		return fmt.Errorf("%w: %s is not an xlsx workbook (extension %q)", ErrInvalidFile, path, ext)
	}

	if IsLockFile(path) {
		v.logger.Warn("skipping temporary Excel file", slog.String("file", path))
		return fmt.Errorf("%w: %s is a temporary Excel lock file", ErrInvalidFile, path)
	}

	if v.MaxSize > 0 && info.Size() > v.MaxSize {
		return fmt.Errorf("%w: %s is %d bytes, limit is %d", ErrInvalidFile, path, info.Size(), v.MaxSize)
	}
	return nil
}

// IsWorkbookName reports whether name has a workbook extension the loader
// can open.
func IsWorkbookName(name string) bool {
	return excelExtensions[strings.ToLower(filepath.Ext(name))]
}

// IsLockFile reports whether path is an Office owner file such as
// "~$report.xlsx".
func IsLockFile(path string) bool {
	return strings.HasPrefix(filepath.Base(path), "~$")
}
