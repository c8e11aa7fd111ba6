package domain

import (
	"fmt"
	"strings"
)

// Bucket is the output grouping a transaction row is assigned to.
type Bucket string

const (
	BucketNewBusiness   Bucket = "new_business"
	BucketReinstatement Bucket = "reinstatement"
	BucketCancellation  Bucket = "cancellation"
)

// AllBuckets returns every bucket in canonical output order.
func AllBuckets() []Bucket {
	return []Bucket{BucketNewBusiness, BucketReinstatement, BucketCancellation}
}

// Valid reports whether b is a known bucket.
func (b Bucket) Valid() bool {
	switch b {
	case BucketNewBusiness, BucketReinstatement, BucketCancellation:
		return true
	}
	return false
}

// Code returns the short transaction code for the bucket.
func (b Bucket) Code() string {
	switch b {
	case BucketNewBusiness:
		return "NB"
	case BucketReinstatement:
		return "R"
	case BucketCancellation:
		return "C"
	}
	return ""
}

// Title returns a human-readable bucket name.
func (b Bucket) Title() string {
	switch b {
	case BucketNewBusiness:
		return "New Business"
	case BucketReinstatement:
		return "Reinstatement"
	case BucketCancellation:
		return "Cancellation"
	}
	return string(b)
}

// ParseBucket accepts a canonical bucket name, its short code or its title.
func ParseBucket(s string) (Bucket, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.ReplaceAll(v, " ", "_")
	v = strings.ReplaceAll(v, "-", "_")
	switch v {
	case "new_business", "nb":
		return BucketNewBusiness, nil
	case "reinstatement", "reinstatements", "r":
		return BucketReinstatement, nil
	case "cancellation", "cancellations", "c":
		return BucketCancellation, nil
	}
	return "", fmt.Errorf("unknown bucket %q", s)
}

// SignRule is a predicate over the coerced fee values of a row.
type SignRule string

const (
	// SignSumPositive keeps rows whose fee sum is strictly positive.
	SignSumPositive SignRule = "sum_positive"
	// SignSumNegative keeps rows whose fee sum is strictly negative.
	SignSumNegative SignRule = "sum_negative"
	// SignAnyNegative keeps rows with at least one strictly negative fee.
	SignAnyNegative SignRule = "any_negative"
)

// Valid reports whether r is a known sign rule.
func (r SignRule) Valid() bool {
	switch r {
	case SignSumPositive, SignSumNegative, SignAnyNegative:
		return true
	}
	return false
}

// Keep evaluates the rule against a row's fee values.
func (r SignRule) Keep(fees []float64) bool {
	switch r {
	case SignSumPositive:
		return sum(fees) > 0
	case SignSumNegative:
		return sum(fees) < 0
	case SignAnyNegative:
		for _, f := range fees {
			if f < 0 {
				return true
			}
		}
	}
	return false
}

func sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}
