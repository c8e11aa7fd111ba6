// Package ruleset holds the versioned configuration that drives column
// discovery, classification and output layout.
package ruleset

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"ncbproc/pkg/contracts/domain"
)

// Layout controls how output tables are written.
type Layout string

const (
	// LayoutSeparate writes one workbook per bucket.
	LayoutSeparate Layout = "separate"
	// LayoutCombined writes one workbook with one sheet per bucket.
	LayoutCombined Layout = "combined"
)

// ParseLayout validates a layout name. An empty string is returned as is.
func ParseLayout(s string) (Layout, error) {
	switch Layout(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return "", nil
	case LayoutSeparate:
		return LayoutSeparate, nil
	case LayoutCombined:
		return LayoutCombined, nil
	}
	return "", fmt.Errorf("unknown output layout %q", s)
}

// ErrAmbiguousVocabulary is returned when a transaction code belongs to more
// than one bucket.
var ErrAmbiguousVocabulary = errors.New("transaction vocabulary is ambiguous")

// Ruleset is one complete processing configuration.
type Ruleset struct {
	Name        string                            `yaml:"name" json:"name" validate:"required"`
	Description string                            `yaml:"description,omitempty" json:"description,omitempty"`
	Sheet       SheetSpec                         `yaml:"sheet" json:"sheet"`
	Transaction TransactionSpec                   `yaml:"transaction" json:"transaction"`
	Fees        RoleGroup                         `yaml:"fees" json:"fees"`
	Descriptive RoleGroup                         `yaml:"descriptive" json:"descriptive"`
	SignRules   map[domain.Bucket]domain.SignRule `yaml:"sign_rules" json:"sign_rules" validate:"required,dive,keys,oneof=new_business reinstatement cancellation,endkeys,oneof=sum_positive sum_negative any_negative"`
	Output      OutputSpec                        `yaml:"output" json:"output"`
}

// SheetSpec selects the data sheet and its header row.
type SheetSpec struct {
	Name             string   `yaml:"name,omitempty" json:"name,omitempty"`
	Prefer           []string `yaml:"prefer,omitempty" json:"prefer,omitempty"`
	Exclude          []string `yaml:"exclude,omitempty" json:"exclude,omitempty"`
	HeaderRow        int      `yaml:"header_row" json:"header_row" validate:"min=0"`
	MinHeaderColumns int      `yaml:"min_header_columns" json:"min_header_columns" validate:"min=0"`
}

// TransactionSpec locates the transaction-type column and defines the
// vocabulary of each bucket.
type TransactionSpec struct {
	Names      []string                   `yaml:"names,omitempty" json:"names,omitempty"`
	Tokens     []string                   `yaml:"tokens,omitempty" json:"tokens,omitempty"`
	Position   *int                       `yaml:"position,omitempty" json:"position,omitempty" validate:"omitempty,min=0"`
	MinShare   float64                    `yaml:"min_share" json:"min_share" validate:"gte=0,lte=1"`
	Vocabulary map[domain.Bucket][]string `yaml:"vocabulary" json:"vocabulary" validate:"required,min=1,dive,keys,oneof=new_business reinstatement cancellation,endkeys,min=1,dive,required"`
}

// RoleSpec describes how one role is matched, in priority order: exact
// names, fuzzy tokens, then position.
type RoleSpec struct {
	Role     domain.Role `yaml:"role" json:"role" validate:"required"`
	Label    string      `yaml:"label" json:"label" validate:"required"`
	Names    []string    `yaml:"names,omitempty" json:"names,omitempty"`
	Tokens   []string    `yaml:"tokens,omitempty" json:"tokens,omitempty"`
	Position *int        `yaml:"position,omitempty" json:"position,omitempty" validate:"omitempty,min=0"`
}

// RoleGroup is a set of roles with a minimum resolution threshold.
type RoleGroup struct {
	MinResolved int        `yaml:"min_resolved" json:"min_resolved" validate:"min=0"`
	Roles       []RoleSpec `yaml:"roles" json:"roles" validate:"dive"`
}

// OutputSpec lists the output tables in write order.
type OutputSpec struct {
	Layout   Layout         `yaml:"layout" json:"layout" validate:"required,oneof=separate combined"`
	Workbook string         `yaml:"workbook,omitempty" json:"workbook,omitempty"`
	Buckets  []BucketOutput `yaml:"buckets" json:"buckets" validate:"required,min=1,dive"`
}

// BucketOutput is the layout of one output table.
type BucketOutput struct {
	Bucket  domain.Bucket      `yaml:"bucket" json:"bucket" validate:"required,oneof=new_business reinstatement cancellation"`
	Sheet   string             `yaml:"sheet" json:"sheet" validate:"required,max=31"`
	File    string             `yaml:"file" json:"file" validate:"required"`
	Columns []OutputColumnSpec `yaml:"columns" json:"columns" validate:"required,min=1,dive"`
}

// OutputColumnSpec references a role and optionally overrides its label.
type OutputColumnSpec struct {
	Role   domain.Role `yaml:"role" json:"role" validate:"required"`
	Header string      `yaml:"header,omitempty" json:"header,omitempty"`
}

var validate = validator.New()

// Validate checks field constraints and the cross-field rules that the
// locator, classifier and composer rely on.
func (rs *Ruleset) Validate() error {
	if err := validate.Struct(rs); err != nil {
		return fmt.Errorf("ruleset %q: %w", rs.Name, err)
	}

	if _, err := rs.Vocabulary(); err != nil {
		return err
	}

	seen := map[domain.Role]bool{domain.RoleTransactionType: true}
	for _, group := range []struct {
		name  string
		group RoleGroup
	}{{"fees", rs.Fees}, {"descriptive", rs.Descriptive}} {
		if group.group.MinResolved > len(group.group.Roles) {
			return fmt.Errorf("ruleset %q: %s.min_resolved %d exceeds %d defined roles",
				rs.Name, group.name, group.group.MinResolved, len(group.group.Roles))
		}
		for _, spec := range group.group.Roles {
			if seen[spec.Role] {
				return fmt.Errorf("ruleset %q: role %q defined more than once", rs.Name, spec.Role)
			}
			seen[spec.Role] = true
			if len(spec.Names) == 0 && len(spec.Tokens) == 0 && spec.Position == nil {
				return fmt.Errorf("ruleset %q: role %q has no matcher", rs.Name, spec.Role)
			}
		}
	}

	if rs.Output.Layout == LayoutCombined && strings.TrimSpace(rs.Output.Workbook) == "" {
		return fmt.Errorf("ruleset %q: combined layout requires output.workbook", rs.Name)
	}

	buckets := make(map[domain.Bucket]bool)
	sheets := make(map[string]bool)
	for _, out := range rs.Output.Buckets {
		if buckets[out.Bucket] {
			return fmt.Errorf("ruleset %q: bucket %q has more than one output", rs.Name, out.Bucket)
		}
		buckets[out.Bucket] = true
		if sheets[out.Sheet] {
			return fmt.Errorf("ruleset %q: sheet name %q used more than once", rs.Name, out.Sheet)
		}
		sheets[out.Sheet] = true

		if _, ok := rs.SignRules[out.Bucket]; !ok {
			return fmt.Errorf("ruleset %q: bucket %q has no sign rule", rs.Name, out.Bucket)
		}
		if len(rs.Transaction.Vocabulary[out.Bucket]) == 0 {
			return fmt.Errorf("ruleset %q: bucket %q has no vocabulary", rs.Name, out.Bucket)
		}
		for _, col := range out.Columns {
			if !seen[col.Role] {
				return fmt.Errorf("ruleset %q: output %q references undefined role %q", rs.Name, out.Bucket, col.Role)
			}
		}
	}

	return nil
}

// Vocabulary returns the upper-cased transaction code lookup. A code claimed
// by two buckets yields ErrAmbiguousVocabulary.
func (rs *Ruleset) Vocabulary() (map[string]domain.Bucket, error) {
	lookup := make(map[string]domain.Bucket)
	for _, bucket := range domain.AllBuckets() {
		for _, term := range rs.Transaction.Vocabulary[bucket] {
			key := NormalizeCode(term)
			if prev, ok := lookup[key]; ok && prev != bucket {
				return nil, fmt.Errorf("%w: %q belongs to both %s and %s", ErrAmbiguousVocabulary, key, prev, bucket)
			}
			lookup[key] = bucket
		}
	}
	return lookup, nil
}

// NormalizeCode upper-cases and trims a transaction code.
func NormalizeCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Role returns the spec for a fee or descriptive role.
func (rs *Ruleset) Role(role domain.Role) (RoleSpec, bool) {
	for _, group := range []RoleGroup{rs.Fees, rs.Descriptive} {
		for _, spec := range group.Roles {
			if spec.Role == role {
				return spec, true
			}
		}
	}
	return RoleSpec{}, false
}

// IsFee reports whether role is a fee role.
func (rs *Ruleset) IsFee(role domain.Role) bool {
	for _, spec := range rs.Fees.Roles {
		if spec.Role == role {
			return true
		}
	}
	return false
}

// Label returns the default header for role.
func (rs *Ruleset) Label(role domain.Role) string {
	if role == domain.RoleTransactionType {
		return "Transaction Type"
	}
	if spec, ok := rs.Role(role); ok {
		return spec.Label
	}
	return string(role)
}

// SignRule returns the sign rule configured for bucket.
func (rs *Ruleset) SignRule(bucket domain.Bucket) (domain.SignRule, bool) {
	rule, ok := rs.SignRules[bucket]
	return rule, ok
}

// OutputFor returns the output layout for bucket.
func (rs *Ruleset) OutputFor(bucket domain.Bucket) (BucketOutput, bool) {
	for _, out := range rs.Output.Buckets {
		if out.Bucket == bucket {
			return out, true
		}
	}
	return BucketOutput{}, false
}
