package domain

import "sort"

// ErrorKind classifies pipeline failures and row-level warnings.
type ErrorKind string

const (
	KindSheetNotFound           ErrorKind = "sheet_not_found"
	KindMalformedHeader         ErrorKind = "malformed_header"
	KindInsufficientColumns     ErrorKind = "insufficient_columns"
	KindUnclassifiableRow       ErrorKind = "unclassifiable_row"
	KindNumericCoercionFallback ErrorKind = "numeric_coercion_fallback"
	KindMissingOutputRole       ErrorKind = "missing_output_role"
	KindDuplicateHeader         ErrorKind = "duplicate_header"
)

// Fatal reports whether an error of this kind aborts the run for a file.
func (k ErrorKind) Fatal() bool {
	switch k {
	case KindSheetNotFound, KindMalformedHeader, KindInsufficientColumns:
		return true
	}
	return false
}

// Warning is a recorded, non-fatal issue. Row is the 1-based sheet row, or 0
// when the warning is not tied to a row.
type Warning struct {
	Kind    ErrorKind `json:"kind"`
	Row     int       `json:"row,omitempty"`
	Column  string    `json:"column,omitempty"`
	Value   string    `json:"value,omitempty"`
	Message string    `json:"message"`
}

// CountWarnings tallies warnings by kind.
func CountWarnings(warnings []Warning) map[ErrorKind]int {
	counts := make(map[ErrorKind]int)
	for _, w := range warnings {
		counts[w.Kind]++
	}
	return counts
}

// SortedKinds returns the keys of counts in a stable order.
func SortedKinds(counts map[ErrorKind]int) []ErrorKind {
	kinds := make([]ErrorKind, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
