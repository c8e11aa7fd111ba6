package ruleset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ncbproc/pkg/contracts/domain"
)

func TestBuiltinRulesets(t *testing.T) {
	assert.Equal(t, []string{"karen-2.0", "karen-3.0"}, Names())

	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			rs, err := Builtin(name)
			require.NoError(t, err)
			assert.Equal(t, name, rs.Name)
			assert.Len(t, rs.Fees.Roles, 7)
			assert.Equal(t, 7, rs.Fees.MinResolved)
			assert.Equal(t, 10, rs.Descriptive.MinResolved)
			assert.Len(t, rs.Output.Buckets, 3)

			vocab, err := rs.Vocabulary()
			require.NoError(t, err)
			assert.Equal(t, domain.BucketNewBusiness, vocab["NB"])
			assert.Equal(t, domain.BucketCancellation, vocab["CANCEL"])
			assert.Equal(t, domain.BucketReinstatement, vocab["REINSTATEMENT"])
		})
	}
}

func TestKaren30Layout(t *testing.T) {
	rs, err := Builtin("karen-3.0")
	require.NoError(t, err)

	assert.Equal(t, "Data", rs.Sheet.Name)
	assert.Equal(t, 12, rs.Sheet.HeaderRow)
	assert.Equal(t, LayoutSeparate, rs.Output.Layout)

	rule, ok := rs.SignRule(domain.BucketCancellation)
	require.True(t, ok)
	assert.Equal(t, domain.SignAnyNegative, rule)

	nb, ok := rs.OutputFor(domain.BucketNewBusiness)
	require.True(t, ok)
	require.Len(t, nb.Columns, 16)
	assert.Equal(t, domain.Role("insurer_code"), nb.Columns[0].Role)
	assert.Equal(t, domain.RoleTransactionType, nb.Columns[7].Role)
	// Admin 6, 7 and 8 follow Admin 10.
	tail := make([]domain.Role, 0, 7)
	for _, c := range nb.Columns[9:] {
		tail = append(tail, c.Role)
	}
	assert.Equal(t, []domain.Role{"admin_3", "admin_4", "admin_9", "admin_10", "admin_6", "admin_7", "admin_8"}, tail)

	r, ok := rs.OutputFor(domain.BucketReinstatement)
	require.True(t, ok)
	assert.Equal(t, nb.Columns, r.Columns)

	c, ok := rs.OutputFor(domain.BucketCancellation)
	require.True(t, ok)
	assert.Len(t, c.Columns, 20)

	spec, ok := rs.Role("admin_10")
	require.True(t, ok)
	require.NotNil(t, spec.Position)
	assert.Equal(t, 54, *spec.Position)
	assert.True(t, rs.IsFee("admin_10"))
	assert.False(t, rs.IsFee("dealer_name"))
	assert.Equal(t, "Transaction Type", rs.Label(domain.RoleTransactionType))
}

func TestKaren20Layout(t *testing.T) {
	rs, err := Builtin("karen-2.0")
	require.NoError(t, err)

	assert.Empty(t, rs.Sheet.Name)
	assert.Equal(t, 0, rs.Sheet.HeaderRow)
	assert.Equal(t, LayoutCombined, rs.Output.Layout)
	assert.Equal(t, "Karen_2_0_NCB_Output.xlsx", rs.Output.Workbook)

	rule, _ := rs.SignRule(domain.BucketCancellation)
	assert.Equal(t, domain.SignSumNegative, rule)

	c, ok := rs.OutputFor(domain.BucketCancellation)
	require.True(t, ok)
	assert.Equal(t, "Data Set 3 - Cancellations", c.Sheet)
	assert.Equal(t, "Insurer", c.Columns[0].Header)
}

func TestBuiltinUnknown(t *testing.T) {
	for _, name := range []string{"", "karen-9.0", "../karen-3.0", `builtin\karen-3.0`} {
		_, err := Builtin(name)
		assert.ErrorIs(t, err, ErrUnknownRuleset, name)
	}
}

func TestResolve(t *testing.T) {
	rs, err := Resolve("", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultName, rs.Name)

	rs, err = Resolve("karen-2.0", "")
	require.NoError(t, err)
	assert.Equal(t, "karen-2.0", rs.Name)

	src, err := BuiltinSource("karen-2.0")
	require.NoError(t, err)
	custom := strings.Replace(string(src), "name: karen-2.0", "name: custom", 1)
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(custom), 0644))

	rs, err = Resolve("karen-3.0", path)
	require.NoError(t, err)
	assert.Equal(t, "custom", rs.Name)

	_, err = Resolve("", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestMarshalRoundTrip(t *testing.T) {
	rs, err := Builtin("karen-3.0")
	require.NoError(t, err)

	data, err := Marshal(rs)
	require.NoError(t, err)

	again, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, rs, again)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(rs *Ruleset)
		wantErr string
	}{
		{
			name: "overlapping vocabulary",
			mutate: func(rs *Ruleset) {
				rs.Transaction.Vocabulary[domain.BucketCancellation] = append(rs.Transaction.Vocabulary[domain.BucketCancellation], " nb ")
			},
			wantErr: "ambiguous",
		},
		{
			name: "unknown sign rule",
			mutate: func(rs *Ruleset) {
				rs.SignRules[domain.BucketCancellation] = "sum_zero"
			},
			wantErr: "oneof",
		},
		{
			name: "min resolved above defined roles",
			mutate: func(rs *Ruleset) {
				rs.Fees.MinResolved = 8
			},
			wantErr: "exceeds 7 defined roles",
		},
		{
			name: "duplicate role",
			mutate: func(rs *Ruleset) {
				rs.Descriptive.Roles = append(rs.Descriptive.Roles, rs.Fees.Roles[0])
			},
			wantErr: "defined more than once",
		},
		{
			name: "role without matcher",
			mutate: func(rs *Ruleset) {
				rs.Descriptive.Roles[0].Position = nil
			},
			wantErr: "has no matcher",
		},
		{
			name: "output references undefined role",
			mutate: func(rs *Ruleset) {
				rs.Output.Buckets[0].Columns = append(rs.Output.Buckets[0].Columns, OutputColumnSpec{Role: "vin"})
			},
			wantErr: "undefined role",
		},
		{
			name: "missing sign rule for output bucket",
			mutate: func(rs *Ruleset) {
				delete(rs.SignRules, domain.BucketReinstatement)
			},
			wantErr: "no sign rule",
		},
		{
			name: "combined layout without workbook",
			mutate: func(rs *Ruleset) {
				rs.Output.Layout = LayoutCombined
				rs.Output.Workbook = ""
			},
			wantErr: "requires output.workbook",
		},
		{
			name: "negative header row",
			mutate: func(rs *Ruleset) {
				rs.Sheet.HeaderRow = -1
			},
			wantErr: "HeaderRow",
		},
		{
			name: "sheet name too long",
			mutate: func(rs *Ruleset) {
				rs.Output.Buckets[0].Sheet = strings.Repeat("x", 32)
			},
			wantErr: "Sheet",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs, err := Builtin("karen-3.0")
			require.NoError(t, err)

			tt.mutate(rs)
			err = rs.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	src, err := BuiltinSource("karen-3.0")
	require.NoError(t, err)

	_, err = Parse(append(src, []byte("\nunexpected: true\n")...))
	assert.Error(t, err)
}

func TestParseLayout(t *testing.T) {
	l, err := ParseLayout(" Combined ")
	require.NoError(t, err)
	assert.Equal(t, LayoutCombined, l)

	l, err = ParseLayout("")
	require.NoError(t, err)
	assert.Equal(t, Layout(""), l)

	_, err = ParseLayout("zip")
	assert.Error(t, err)
}
