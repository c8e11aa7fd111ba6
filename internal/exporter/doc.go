// Package exporter writes composed output tables to disk or to a stream.
//
// XLSXWriter lays tables out as workbooks, either one per bucket or one
// combined workbook with a sheet per bucket. Headers are bold and fee columns
// use the #,##0.00 number format. It also writes the processing summary.
//
// CSVWriter is the plain-text alternative with an optional UTF-8 BOM for
// Excel compatibility.
//
// Example usage:
//
//	w := exporter.NewWriter(exporter.FormatXLSX, time.Time{}, logger)
//	paths, err := w.WriteTables("out", result.Tables, rs.Output.Layout, rs.Output.Workbook)
package exporter
