// Package rules implements the pattern based categorization engine.
//
// Categorization rules are evaluated by descending priority and the first
// match wins. Exclusion rules share the matcher shape and are evaluated in
// the order they were declared.
package rules

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/ArionMiles/bankanalyzer/pkg/api"
)

// ErrInvalidRule is returned for definitions that cannot form a rule.
var ErrInvalidRule = errors.New("invalid rule")

// Field selects the transaction attribute a rule inspects.
type Field string

// Supported fields.
const (
	FieldCounterparty Field = "counterparty"
	FieldDescription  Field = "description"
)

// MatchType selects how the pattern is compared against the field.
type MatchType string

// Supported match types.
const (
	MatchContains   MatchType = "contains"
	MatchExact      MatchType = "exact"
	MatchStartsWith MatchType = "startswith"
	MatchEndsWith   MatchType = "endswith"
	MatchRegex      MatchType = "regex"
)

// Definition is a rule as written in the rules file. Categorization rules
// use the category pair, exclusion rules use Reason.
type Definition struct {
	Name          string    `koanf:"name" yaml:"name,omitempty"`
	Pattern       string    `koanf:"pattern" yaml:"pattern"`
	Field         Field     `koanf:"field" yaml:"field,omitempty"`
	MatchType     MatchType `koanf:"match_type" yaml:"match_type,omitempty"`
	CaseSensitive bool      `koanf:"case_sensitive" yaml:"case_sensitive,omitempty"`
	Priority      int       `koanf:"priority" yaml:"priority,omitempty"`
	CategoryMain  string    `koanf:"category_main" yaml:"category_main,omitempty"`
	CategorySub   string    `koanf:"category_sub" yaml:"category_sub,omitempty"`
	Reason        string    `koanf:"reason" yaml:"reason,omitempty"`
}

// kind distinguishes the two rule families during validation.
type kind int

const (
	categorization kind = iota
	exclusion
)

func (k kind) defaultField() Field {
	if k == exclusion {
		return FieldDescription
	}
	return FieldCounterparty
}

// withDefaults fills the optional field and match type.
func (d Definition) withDefaults(k kind) Definition {
	if d.Field == "" {
		d.Field = k.defaultField()
	}
	if d.MatchType == "" {
		d.MatchType = MatchContains
	}
	return d
}

func (d Definition) validate(k kind) error {
	if d.Pattern == "" {
		return fmt.Errorf("%w %q: empty pattern", ErrInvalidRule, d.Name)
	}
	switch d.Field {
	case FieldCounterparty, FieldDescription:
	default:
		return fmt.Errorf("%w %q: unknown field %q", ErrInvalidRule, d.Name, d.Field)
	}
	switch d.MatchType {
	case MatchContains, MatchExact, MatchStartsWith, MatchEndsWith, MatchRegex:
	default:
		return fmt.Errorf("%w %q: unknown match type %q", ErrInvalidRule, d.Name, d.MatchType)
	}
	if k == categorization && (d.CategoryMain == "" || d.CategorySub == "") {
		return fmt.Errorf("%w %q: category_main and category_sub are required", ErrInvalidRule, d.Name)
	}
	return nil
}

// matcher tests an already case-folded field value.
type matcher interface {
	match(value string) bool
}

type containsMatcher struct{ pattern string }

func (m containsMatcher) match(v string) bool { return strings.Contains(v, m.pattern) }

type exactMatcher struct{ pattern string }

func (m exactMatcher) match(v string) bool { return v == m.pattern }

type prefixMatcher struct{ pattern string }

func (m prefixMatcher) match(v string) bool { return strings.HasPrefix(v, m.pattern) }

type suffixMatcher struct{ pattern string }

func (m suffixMatcher) match(v string) bool { return strings.HasSuffix(v, m.pattern) }

// regexMatcher searches anywhere in the value. A nil expression never matches.
type regexMatcher struct{ re *regexp.Regexp }

func (m regexMatcher) match(v string) bool { return m.re != nil && m.re.MatchString(v) }

// Rule is a validated, compiled Definition.
type Rule struct {
	def     Definition
	matcher matcher
}

// compile validates def and builds its matcher. A regex that fails to
// compile is logged and leaves the rule inert.
func compile(def Definition, k kind, logger *slog.Logger) (*Rule, error) {
	def = def.withDefaults(k)
	if err := def.validate(k); err != nil {
		return nil, err
	}

	pattern := def.Pattern
	if !def.CaseSensitive && def.MatchType != MatchRegex {
		pattern = strings.ToLower(pattern)
	}

	var m matcher
	switch def.MatchType {
	case MatchContains:
		m = containsMatcher{pattern}
	case MatchExact:
		m = exactMatcher{pattern}
	case MatchStartsWith:
		m = prefixMatcher{pattern}
	case MatchEndsWith:
		m = suffixMatcher{pattern}
	case MatchRegex:
		expr := pattern
		if !def.CaseSensitive {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			logger.Warn("invalid regex, rule disabled", "rule", def.Name, "pattern", def.Pattern, "error", err)
		}
		m = regexMatcher{re}
	}

	return &Rule{def: def, matcher: m}, nil
}

// Definition returns the rule with defaults applied.
func (r *Rule) Definition() Definition {
	return r.def
}

// Category returns the pair assigned by a categorization rule.
func (r *Rule) Category() api.Category {
	return api.Category{Main: r.def.CategoryMain, Sub: r.def.CategorySub}
}

// Matches reports whether the transaction's field satisfies the rule.
func (r *Rule) Matches(tx *api.Transaction) bool {
	var value string
	switch r.def.Field {
	case FieldCounterparty:
		value = tx.Counterparty
	case FieldDescription:
		value = tx.Description
	}
	if !r.def.CaseSensitive {
		value = strings.ToLower(value)
	}
	return r.matcher.match(value)
}
