// Package files discovers input workbooks and decides where run outputs
// are written.
//
// Discovery lists the workbooks of a directory for batch processing.
// Manager resolves output locations against the configured base directory
// and gives each workbook of a batch its own output subdirectory.
package files
