package dataprocessing

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"ncbproc/internal/ruleset"
	"ncbproc/pkg/contracts/domain"
)

// matcher finds the column for a role, or reports that none qualifies.
type matcher func(t *domain.RawTable) (int, bool)

type rankedMatcher struct {
	source domain.MatchSource
	match  matcher
}

// Locator resolves ruleset roles to concrete columns.
type Locator struct {
	rs     *ruleset.Ruleset
	vocab  map[string]domain.Bucket
	logger *slog.Logger
}

// NewLocator creates a locator for rs.
func NewLocator(rs *ruleset.Ruleset, logger *slog.Logger) (*Locator, error) {
	vocab, err := rs.Vocabulary()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Locator{
		rs:     rs,
		vocab:  vocab,
		logger: logger.With(slog.String("component", "column_locator")),
	}, nil
}

// Locate resolves every role of the ruleset against table. When the
// transaction type or too few fee or descriptive roles resolve, the partial
// map is returned together with an InsufficientColumns error and the caller
// must not classify.
func (l *Locator) Locate(table *domain.RawTable) (domain.ColumnMap, error) {
	cmap := make(domain.ColumnMap)
	var missing []domain.Role

	tx := l.rs.Transaction
	if ref, ok := resolve(table,
		rankedMatcher{domain.MatchNameExact, exactMatcher(tx.Names)},
		rankedMatcher{domain.MatchNameFuzzy, fuzzyMatcher(tx.Tokens)},
		rankedMatcher{domain.MatchContent, l.contentMatcher()},
		rankedMatcher{domain.MatchPosition, positionMatcher(tx.Position)},
	); ok {
		cmap[domain.RoleTransactionType] = ref
	} else {
		missing = append(missing, domain.RoleTransactionType)
	}

	feeCount, feeMissing := l.resolveGroup(table, l.rs.Fees, cmap)
	descCount, descMissing := l.resolveGroup(table, l.rs.Descriptive, cmap)
	missing = append(missing, feeMissing...)
	missing = append(missing, descMissing...)

	attrs := []any{
		slog.String("sheet", table.Sheet),
		slog.Int("fee_columns", feeCount),
		slog.Int("descriptive_columns", descCount),
		slog.Bool("transaction_type", cmap.Has(domain.RoleTransactionType)),
	}

	var problems []string
	if !cmap.Has(domain.RoleTransactionType) {
		problems = append(problems, "transaction type column not found")
	}
	if feeCount < l.rs.Fees.MinResolved {
		problems = append(problems, fmt.Sprintf("resolved %d fee columns, need at least %d", feeCount, l.rs.Fees.MinResolved))
	}
	if descCount < l.rs.Descriptive.MinResolved {
		problems = append(problems, fmt.Sprintf("resolved %d descriptive columns, need at least %d", descCount, l.rs.Descriptive.MinResolved))
	}
	if len(problems) > 0 {
		l.logger.Warn("insufficient columns", append(attrs, slog.Any("missing", missing))...)
		return cmap, newInsufficientColumns(table.Sheet, cmap, missing, strings.Join(problems, "; "))
	}

	if len(missing) > 0 {
		l.logger.Warn("optional roles unresolved", append(attrs, slog.Any("missing", missing))...)
	} else {
		l.logger.Info("columns located", attrs...)
	}
	return cmap, nil
}

func (l *Locator) resolveGroup(table *domain.RawTable, group ruleset.RoleGroup, cmap domain.ColumnMap) (int, []domain.Role) {
	count := 0
	var missing []domain.Role
	for _, spec := range group.Roles {
		ref, ok := resolve(table,
			rankedMatcher{domain.MatchNameExact, exactMatcher(spec.Names)},
			rankedMatcher{domain.MatchNameFuzzy, fuzzyMatcher(spec.Tokens)},
			rankedMatcher{domain.MatchPosition, positionMatcher(spec.Position)},
		)
		if !ok {
			missing = append(missing, spec.Role)
			continue
		}
		cmap[spec.Role] = ref
		count++
	}
	return count, missing
}

// resolve returns the first match of the highest-priority matcher.
func resolve(table *domain.RawTable, matchers ...rankedMatcher) (domain.ColumnRef, bool) {
	for _, m := range matchers {
		if m.match == nil {
			continue
		}
		if idx, ok := m.match(table); ok {
			col := table.Columns[idx]
			return domain.ColumnRef{
				Index:  col.Index,
				Letter: col.Letter,
				Name:   col.Name,
				Source: m.source,
			}, true
		}
	}
	return domain.ColumnRef{}, false
}

// exactMatcher matches a header equal to one of names after normalization.
func exactMatcher(names []string) matcher {
	if len(names) == 0 {
		return nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		if norm := NormalizeHeader(n); norm != "" {
			want[norm] = true
		}
	}
	return func(t *domain.RawTable) (int, bool) {
		for _, col := range t.Columns {
			if !col.Placeholder && want[NormalizeHeader(col.Name)] {
				return col.Index, true
			}
		}
		return 0, false
	}
}

// fuzzyMatcher matches a header containing every token as a whole token, so
// "Admin 6  Amount" matches [admin 6 amount] and "Admin 60 Amount" does not.
func fuzzyMatcher(tokens []string) matcher {
	var want []string
	for _, tok := range tokens {
		want = append(want, Tokenize(tok)...)
	}
	if len(want) == 0 {
		return nil
	}
	return func(t *domain.RawTable) (int, bool) {
		for _, col := range t.Columns {
			if col.Placeholder {
				continue
			}
			if containsTokens(Tokenize(col.Name), want) {
				return col.Index, true
			}
		}
		return 0, false
	}
}

func positionMatcher(pos *int) matcher {
	if pos == nil {
		return nil
	}
	p := *pos
	return func(t *domain.RawTable) (int, bool) {
		return p, p >= 0 && p < t.Width()
	}
}

// contentMatcher picks the column whose non-blank values are dominated by the
// transaction vocabulary. The highest match count wins; ties go to the lowest
// position.
func (l *Locator) contentMatcher() matcher {
	return func(t *domain.RawTable) (int, bool) {
		best, bestCount := -1, 0
		for _, col := range t.Columns {
			matches, nonBlank := 0, 0
			for r := range t.Rows {
				v := ruleset.NormalizeCode(t.Cell(r, col.Index))
				if v == "" {
					continue
				}
				nonBlank++
				if _, ok := l.vocab[v]; ok {
					matches++
				}
			}
			if matches == 0 || float64(matches) < l.rs.Transaction.MinShare*float64(nonBlank) {
				continue
			}
			if matches > bestCount {
				best, bestCount = col.Index, matches
			}
		}
		return best, best >= 0
	}
}

// Tokenize lower-cases s and splits it into letter and digit runs, so
// "Admin_6 Amount" and "admin6amount" both yield [admin 6 amount].
func Tokenize(s string) []string {
	var tokens []string
	var cur []rune
	prev := 0
	flush := func() {
		if len(cur) > 0 {
			tokens = append(tokens, string(cur))
			cur = cur[:0]
		}
	}
	for _, r := range strings.ToLower(s) {
		kind := 0
		switch {
		case unicode.IsLetter(r):
			kind = 1
		case unicode.IsDigit(r):
			kind = 2
		}
		if kind == 0 || kind != prev {
			flush()
		}
		if kind != 0 {
			cur = append(cur, r)
		}
		prev = kind
	}
	flush()
	return tokens
}

// NormalizeHeader returns the tokens of s joined by single spaces.
func NormalizeHeader(s string) string {
	return strings.Join(Tokenize(s), " ")
}

func containsTokens(have, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, h := range have {
		set[h] = true
	}
	for _, w := range want {
		if !set[w] {
			return false
		}
	}
	return true
}
