package dataprocessing

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ncbproc/internal/ruleset"
	"ncbproc/pkg/contracts/domain"
)

func intPtr(v int) *int { return &v }

// twoFeeRuleset is a small ruleset with fee roles fee_a and fee_b, one
// descriptive role and the standard vocabulary.
func twoFeeRuleset(t *testing.T, cancelRule domain.SignRule) *ruleset.Ruleset {
	t.Helper()

	rs := &ruleset.Ruleset{
		Name:  "test",
		Sheet: ruleset.SheetSpec{Name: "Data", HeaderRow: 0, MinHeaderColumns: 2},
		Transaction: ruleset.TransactionSpec{
			Tokens:   []string{"transaction", "type"},
			MinShare: 0.5,
			Vocabulary: map[domain.Bucket][]string{
				domain.BucketNewBusiness:   {"NB", "NEW BUSINESS", "NEW"},
				domain.BucketCancellation:  {"C", "CANCELLATION", "CANCEL"},
				domain.BucketReinstatement: {"R", "REINSTATEMENT", "REINSTATE"},
			},
		},
		Fees: ruleset.RoleGroup{
			MinResolved: 2,
			Roles: []ruleset.RoleSpec{
				{Role: "fee_a", Label: "Fee A", Tokens: []string{"fee", "a"}},
				{Role: "fee_b", Label: "Fee B", Tokens: []string{"fee", "b"}},
			},
		},
		Descriptive: ruleset.RoleGroup{
			MinResolved: 1,
			Roles: []ruleset.RoleSpec{
				{Role: "contract_number", Label: "Contract Number", Names: []string{"Contract Number"}, Position: intPtr(0)},
			},
		},
		SignRules: map[domain.Bucket]domain.SignRule{
			domain.BucketNewBusiness:   domain.SignSumPositive,
			domain.BucketReinstatement: domain.SignSumPositive,
			domain.BucketCancellation:  cancelRule,
		},
		Output: ruleset.OutputSpec{
			Layout: ruleset.LayoutSeparate,
			Buckets: []ruleset.BucketOutput{
				{Bucket: domain.BucketNewBusiness, Sheet: "New Business", File: "nb.xlsx", Columns: []ruleset.OutputColumnSpec{
					{Role: "contract_number"}, {Role: domain.RoleTransactionType}, {Role: "fee_a"}, {Role: "fee_b"},
				}},
				{Bucket: domain.BucketReinstatement, Sheet: "Reinstatements", File: "r.xlsx", Columns: []ruleset.OutputColumnSpec{
					{Role: "contract_number"}, {Role: domain.RoleTransactionType}, {Role: "fee_a"}, {Role: "fee_b"},
				}},
				{Bucket: domain.BucketCancellation, Sheet: "Cancellations", File: "c.xlsx", Columns: []ruleset.OutputColumnSpec{
					{Role: "contract_number", Header: "Contract"}, {Role: domain.RoleTransactionType}, {Role: "fee_a"}, {Role: "fee_b"},
				}},
			},
		},
	}
	require.NoError(t, rs.Validate())
	return rs
}

// newTable builds a RawTable from a header and data rows. Row numbers start
// at 2 as if the header were the first sheet row.
func newTable(header []string, rows ...[]string) *domain.RawTable {
	table := &domain.RawTable{Sheet: "Data"}
	for i, h := range header {
		col := domain.Column{Index: i, Letter: columnLetter(i), Name: h}
		if h == "" {
			col.Name = "Unnamed: " + col.Letter
			col.Placeholder = true
		}
		table.Columns = append(table.Columns, col)
	}
	for i, r := range rows {
		table.Rows = append(table.Rows, domain.Row{Number: i + 2, Cells: r})
	}
	return table
}

// sevenRowTable is the worked example: NB, NB, C, C, R, NB, C.
func sevenRowTable() *domain.RawTable {
	return newTable(
		[]string{"Contract Number", "Transaction Type", "Fee A Amount", "Fee B Amount"},
		[]string{"K1", "NB", "100", "0"},
		[]string{"K2", "NB", "-50", "0"},
		[]string{"K3", "C", "-25", "0"},
		[]string{"K4", "C", "0", "-15"},
		[]string{"K5", "R", "30", "0"},
		[]string{"K6", "NB", "0", "25"},
		[]string{"K7", "C", "10", "5"},
	)
}
