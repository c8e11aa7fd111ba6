// Package shared holds helpers used by the tests of several packages.
//
// The testutil subpackage builds fixture workbooks in memory or on disk
// (NewWorkbook, WriteWorkbook, WorkbookBytes), renders export layouts with
// Layout.Fixture and Txn records, and captures slog output with
// NewTestLogger so tests can assert on log messages and attributes.
//
//	path := testutil.WriteWorkbook(t, t.TempDir(), "export.xlsx",
//		testutil.Karen30Layout.Fixture(testutil.Txn("NB", "K1", 100)))
package shared
