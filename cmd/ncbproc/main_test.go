package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ncbproc/internal/dataprocessing"
	"ncbproc/internal/services"
	"ncbproc/internal/shared/testutil"
)

func records() []testutil.Record {
	return []testutil.Record{
		testutil.Txn("NB", "K1", 100.5, 0),
		testutil.Txn("NB", "K2", -5),
		testutil.Txn("C", "K3", 0, -10),
		testutil.Txn("C", "K4", 10, -5),
		testutil.Txn("R", "K5", 30),
		testutil.Txn("XFER", "K6", 12),
	}
}

type result struct {
	code   int
	stdout string
	stderr string
}

func execute(t *testing.T, args ...string) result {
	t.Helper()
	t.Setenv("NCB_CONFIG", "")
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func listFiles(t *testing.T, dir string) []string {
	t.Helper()
	var names []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		names = append(names, filepath.ToSlash(rel))
		return err
	})
	require.NoError(t, err)
	sort.Strings(names)
	return names
}

func TestVersion(t *testing.T) {
	res := execute(t, "version")
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "ncbproc v1.0.0")

	res = execute(t, "version", "--json")
	require.Equal(t, exitOK, res.code, res.stderr)
	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &info))
	assert.Equal(t, "1.0.0", info["version"])
}

func TestRulesets(t *testing.T) {
	res := execute(t, "rulesets")
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "karen-3.0 (default)")
	assert.Contains(t, res.stdout, "karen-2.0")

	res = execute(t, "--ruleset", "karen-2.0", "rulesets")
	assert.Contains(t, res.stdout, "karen-2.0 (default)")

	res = execute(t, "rulesets", "show", "karen-2.0")
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "workbook: Karen_2_0_NCB_Output.xlsx")

	res = execute(t, "rulesets", "show", "karen-9")
	assert.Equal(t, exitFailure, res.code)
	assert.Contains(t, res.stderr, "unknown ruleset")
}

func TestProcess(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	path := testutil.WriteWorkbook(t, in, "export.xlsx", testutil.Karen30Layout.Fixture(records()...))

	res := execute(t, "process", path, "--out", out)
	require.Equal(t, exitOK, res.code, res.stderr)

	want := []string{
		"Karen_3_0_Cancellations.xlsx",
		"Karen_3_0_New_Business.xlsx",
		"Karen_3_0_Reinstatements.xlsx",
		"Processing_Summary.xlsx",
	}
	if diff := cmp.Diff(want, listFiles(t, out)); diff != "" {
		t.Errorf("written files mismatch (-want +got):\n%s", diff)
	}

	assert.Contains(t, res.stdout, "export.xlsx")
	assert.Regexp(t, `New Business\s+1\s+2`, res.stdout)
	assert.Regexp(t, `Cancellation\s+2\s+2`, res.stdout)
	assert.Regexp(t, `unclassifiable_row\s+1`, res.stdout)
}

func TestProcessBatch(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	testutil.WriteWorkbook(t, in, "a.xlsx", testutil.Karen20Layout.Fixture(records()...))
	testutil.WriteWorkbook(t, in, "b.xlsx", testutil.Karen20Layout.Fixture(records()...))
	testutil.WriteWorkbook(t, in, "~$a.xlsx", testutil.Karen20Layout.Fixture(records()...))
	require.NoError(t, os.WriteFile(filepath.Join(in, "notes.txt"), []byte("x"), 0644))

	res := execute(t, "--ruleset", "karen-2.0", "process",
		"--input-dir", in, "--out", out, "--format", "csv", "--summary=false", "--workers", "2")
	require.Equal(t, exitOK, res.code, res.stderr)

	var want []string
	for _, dir := range []string{"a", "b"} {
		for _, sheet := range []string{"Data Set 1 - New Business", "Data Set 2 - Reinstatements", "Data Set 3 - Cancellations"} {
			want = append(want, dir+"/Karen_2_0_NCB_Output - "+sheet+".csv")
		}
	}
	sort.Strings(want)
	if diff := cmp.Diff(want, listFiles(t, out)); diff != "" {
		t.Errorf("written files mismatch (-want +got):\n%s", diff)
	}
}

func TestProcessExitCodes(t *testing.T) {
	in := t.TempDir()
	good := testutil.WriteWorkbook(t, in, "good.xlsx", testutil.Karen30Layout.Fixture(records()...))
	noSheet := testutil.WriteWorkbook(t, in, "summary.xlsx", testutil.Sheet{Name: "Summary", Rows: [][]any{{"Totals"}}})
	textFile := filepath.Join(in, "export.xlsx.txt")
	require.NoError(t, os.WriteFile(textFile, []byte("x"), 0644))
	empty := t.TempDir()

	tests := []struct {
		name       string
		args       []string
		wantCode   int
		wantStderr string
	}{
		{name: "sheet not found", args: []string{noSheet}, wantCode: exitInput, wantStderr: "sheet"},
		{name: "missing file", args: []string{filepath.Join(in, "absent.xlsx")}, wantCode: exitInput, wantStderr: "does not exist"},
		{name: "not a workbook", args: []string{textFile}, wantCode: exitInput, wantStderr: "not an xlsx workbook"},
		{name: "no inputs", args: nil, wantCode: exitInput, wantStderr: "no workbooks"},
		{name: "empty input dir", args: []string{"--input-dir", empty}, wantCode: exitInput, wantStderr: "no workbooks"},
		{name: "one of two fails", args: []string{good, noSheet}, wantCode: exitInput, wantStderr: "1 of 2 workbooks failed"},
		{name: "bad format", args: []string{good, "--format", "pdf"}, wantCode: exitFailure, wantStderr: "invalid flags"},
		{name: "unknown ruleset", args: []string{good, "--ruleset", "karen-9"}, wantCode: exitFailure, wantStderr: "unknown ruleset"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"process", "--out", t.TempDir()}, tt.args...)
			res := execute(t, args...)
			assert.Equal(t, tt.wantCode, res.code, res.stderr)
			assert.Contains(t, res.stderr, tt.wantStderr)
		})
	}
}

func TestBatchError(t *testing.T) {
	sheetErr := fmt.Errorf("process b.xlsx: %w", dataprocessing.ErrSheetNotFound)
	diskErr := errors.New("disk full")

	tests := []struct {
		name     string
		failed   []services.BatchItem
		total    int
		wantMsg  string
		wantCode int
	}{
		{
			name:     "single input keeps its error",
			failed:   []services.BatchItem{{Input: "b.xlsx", Err: sheetErr}},
			total:    1,
			wantMsg:  sheetErr.Error(),
			wantCode: exitInput,
		},
		{
			name:     "one of two",
			failed:   []services.BatchItem{{Input: "b.xlsx", Err: sheetErr}},
			total:    2,
			wantMsg:  "1 of 2 workbooks failed",
			wantCode: exitInput,
		},
		{
			name:     "mixed causes",
			failed:   []services.BatchItem{{Input: "b.xlsx", Err: sheetErr}, {Input: "c.xlsx", Err: diskErr}},
			total:    3,
			wantMsg:  "2 of 3 workbooks failed",
			wantCode: exitFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &batchError{failed: tt.failed, total: tt.total}
			assert.Equal(t, tt.wantMsg, err.Error())
			assert.Equal(t, tt.wantCode, exitCode(err))
		})
	}
}

func TestInspect(t *testing.T) {
	path := testutil.WriteWorkbook(t, t.TempDir(), "export.xlsx", testutil.Karen30Layout.Fixture(records()...))

	res := execute(t, "inspect", path)
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Data sheet:")
	assert.Contains(t, res.stdout, "transaction_type")
	assert.Regexp(t, `XFER\s+1\s+\(unclassified\)`, res.stdout)

	res = execute(t, "inspect", path, "--json")
	require.Equal(t, exitOK, res.code, res.stderr)
	var report dataprocessing.InspectReport
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &report))
	assert.Equal(t, "karen-3.0", report.Ruleset)
	assert.Equal(t, "Data", report.Sheet)
	assert.Empty(t, report.Missing)
}
