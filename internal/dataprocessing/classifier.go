package dataprocessing

import (
	"fmt"
	"log/slog"

	"ncbproc/internal/ruleset"
	"ncbproc/pkg/contracts/domain"
)

// Classification is the outcome of bucketing and sign filtering.
type Classification struct {
	// Buckets holds the kept row indices per bucket, in source order.
	Buckets map[domain.Bucket][]int
	// Classified counts rows per bucket before sign filtering.
	Classified map[domain.Bucket]int
	// FeeRoles lists the resolved fee roles in ruleset order.
	FeeRoles []domain.Role
	// Fees holds the coerced fee values, one row per table row and one
	// column per FeeRoles entry.
	Fees     [][]float64
	Warnings []domain.Warning
}

// FeeValue returns the coerced value of a fee role for a row.
func (c *Classification) FeeValue(row int, role domain.Role) (float64, bool) {
	if row < 0 || row >= len(c.Fees) {
		return 0, false
	}
	for i, r := range c.FeeRoles {
		if r == role {
			return c.Fees[row][i], true
		}
	}
	return 0, false
}

// Kept returns the number of rows kept per bucket.
func (c *Classification) Kept() map[domain.Bucket]int {
	kept := make(map[domain.Bucket]int, len(c.Buckets))
	for b, rows := range c.Buckets {
		kept[b] = len(rows)
	}
	return kept
}

// Classifier assigns rows to buckets and applies the sign rules.
type Classifier struct {
	rs     *ruleset.Ruleset
	vocab  map[string]domain.Bucket
	logger *slog.Logger
}

// NewClassifier creates a classifier. A transaction code claimed by more
// than one bucket is rejected with ruleset.ErrAmbiguousVocabulary.
func NewClassifier(rs *ruleset.Ruleset, logger *slog.Logger) (*Classifier, error) {
	vocab, err := rs.Vocabulary()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		rs:     rs,
		vocab:  vocab,
		logger: logger.With(slog.String("component", "classifier")),
	}, nil
}

// Classify coerces every fee cell, buckets each row by its transaction code
// and keeps the rows that satisfy their bucket's sign rule.
func (c *Classifier) Classify(table *domain.RawTable, cmap domain.ColumnMap) (*Classification, error) {
	txRef, ok := cmap.Get(domain.RoleTransactionType)
	if !ok {
		return nil, newInsufficientColumns(table.Sheet, cmap, []domain.Role{domain.RoleTransactionType},
			"transaction type column not resolved")
	}

	cls := &Classification{
		Buckets:    make(map[domain.Bucket][]int, 3),
		Classified: make(map[domain.Bucket]int, 3),
		Fees:       make([][]float64, len(table.Rows)),
	}
	for _, b := range domain.AllBuckets() {
		cls.Buckets[b] = []int{}
		cls.Classified[b] = 0
	}

	var feeRefs []domain.ColumnRef
	for _, spec := range c.rs.Fees.Roles {
		if ref, ok := cmap.Get(spec.Role); ok {
			cls.FeeRoles = append(cls.FeeRoles, spec.Role)
			feeRefs = append(feeRefs, ref)
		}
	}

	for r, row := range table.Rows {
		fees := make([]float64, len(feeRefs))
		for i, ref := range feeRefs {
			v, ok := Coerce(table.RawCell(r, ref.Index), table.Cell(r, ref.Index))
			if !ok {
				cls.Warnings = append(cls.Warnings, domain.Warning{
					Kind:    domain.KindNumericCoercionFallback,
					Row:     row.Number,
					Column:  ref.Letter,
					Value:   table.Cell(r, ref.Index),
					Message: fmt.Sprintf("non-numeric %s value treated as 0", cls.FeeRoles[i]),
				})
			}
			fees[i] = v
		}
		cls.Fees[r] = fees

		code := ruleset.NormalizeCode(table.Cell(r, txRef.Index))
		bucket, ok := c.vocab[code]
		if !ok {
			cls.Warnings = append(cls.Warnings, domain.Warning{
				Kind:    domain.KindUnclassifiableRow,
				Row:     row.Number,
				Column:  txRef.Letter,
				Value:   code,
				Message: "transaction type not in any bucket vocabulary",
			})
			continue
		}

		cls.Classified[bucket]++
		rule, ok := c.rs.SignRule(bucket)
		if !ok {
			continue
		}
		if rule.Keep(fees) {
			cls.Buckets[bucket] = append(cls.Buckets[bucket], r)
		}
	}

	c.logger.Info("rows classified",
		slog.Int("rows", len(table.Rows)),
		slog.Int("new_business", len(cls.Buckets[domain.BucketNewBusiness])),
		slog.Int("reinstatement", len(cls.Buckets[domain.BucketReinstatement])),
		slog.Int("cancellation", len(cls.Buckets[domain.BucketCancellation])),
		slog.Int("warnings", len(cls.Warnings)))

	return cls, nil
}
