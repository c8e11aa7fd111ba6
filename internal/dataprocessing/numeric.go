package dataprocessing

import (
	"math"
	"strconv"
	"strings"
)

var amountReplacer = strings.NewReplacer(
	",", "",
	"$", "",
	"€", "",
	"£", "",
	" ", "",
	"\u00a0", "",
)

// Coerce converts a fee cell to a number. The raw cell value is tried first,
// then the formatted text. Blank cells are 0 and ok. Anything that does not
// parse is 0 and not ok.
func Coerce(raw, formatted string) (value float64, ok bool) {
	raw = strings.TrimSpace(raw)
	formatted = strings.TrimSpace(formatted)
	if raw == "" && formatted == "" {
		return 0, true
	}
	for _, s := range []string{raw, formatted} {
		if v, ok := parseAmount(s); ok {
			return v, true
		}
	}
	return 0, false
}

// parseAmount accepts plain numbers, thousands separators, currency symbols,
// accounting negatives "(25.00)" and trailing minus signs "25.00-".
// Decimal commas are rejected.
func parseAmount(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	if strings.HasSuffix(s, "-") {
		negative = !negative
		s = strings.TrimSuffix(s, "-")
	}

	// A comma after the decimal point is a European "1.234,56", not a
	// thousands separator.
	if dot := strings.LastIndex(s, "."); dot >= 0 && strings.Contains(s[dot:], ",") {
		return 0, false
	}
	s = amountReplacer.Replace(s)
	if s == "" {
		return 0, false
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	if negative {
		v = -v
	}
	return v, true
}
