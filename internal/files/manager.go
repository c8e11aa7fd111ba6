package files

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ncbproc/internal/config"
)

// Manager places run outputs under the configured output directory.
type Manager struct {
	paths *config.Paths
}

// NewManager creates a new file manager instance
func NewManager(paths *config.Paths) *Manager {
	return &Manager{paths: paths}
}

// ResolvePath makes a relative path absolute against the base directory.
func (m *Manager) ResolvePath(path string) string {
	if path == "" || filepath.IsAbs(path) || m.paths == nil {
		return path
	}
	return filepath.Join(m.paths.BaseDir, path)
}

// OutputDir returns outDir resolved against the base directory, or the
// configured output directory when outDir is empty.
func (m *Manager) OutputDir(outDir string) string {
	if outDir == "" && m.paths != nil {
		return m.paths.OutputDir
	}
	return m.ResolvePath(outDir)
}

// RunDir returns the directory that receives the outputs of input. A batch
// gives each workbook its own subdirectory named after the file, so equal
// output names from different inputs do not collide.
func (m *Manager) RunDir(outDir, input string, batch bool) string {
	dir := m.OutputDir(outDir)
	if !batch {
		return dir
	}
	return filepath.Join(dir, Stem(input))
}

// EnsureDirectory creates path and its parents.
func (m *Manager) EnsureDirectory(path string) error {
	if err := os.MkdirAll(m.ResolvePath(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}

// Stem returns the file name of path without directory or extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
