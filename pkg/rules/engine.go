package rules

import (
	"cmp"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/ArionMiles/bankanalyzer/pkg/api"
)

// Engine categorizes transactions with an ordered rule set and filters
// them with exclusion rules. An Engine is not safe for concurrent use.
type Engine struct {
	rules      []*Rule
	exclusions []*Rule

	// cache holds rule matches keyed by lower(counterparty)|lower(description).
	// The default pair is never cached.
	cache        map[string]api.Category
	stats        map[string]int
	excludeStats map[string]int

	logger *slog.Logger
}

// New builds an engine from rule and exclusion definitions. Invalid
// definitions are logged and skipped.
func New(defs, excludes []Definition, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		cache:        make(map[string]api.Category),
		stats:        make(map[string]int),
		excludeStats: make(map[string]int),
		logger:       logger.With("component", "rules"),
	}

	for _, def := range defs {
		r, err := compile(def, categorization, e.logger)
		if err != nil {
			e.logger.Warn("skipping rule", "error", err)
			continue
		}
		e.rules = append(e.rules, r)
	}
	e.sort()

	for _, def := range excludes {
		r, err := compile(def, exclusion, e.logger)
		if err != nil {
			e.logger.Warn("skipping exclusion rule", "error", err)
			continue
		}
		e.exclusions = append(e.exclusions, r)
	}

	e.logger.Info("rules loaded", "rules", len(e.rules), "exclusions", len(e.exclusions))
	return e
}

// sort orders rules by descending priority, keeping declaration order on ties.
func (e *Engine) sort() {
	slices.SortStableFunc(e.rules, func(a, b *Rule) int {
		return cmp.Compare(b.def.Priority, a.def.Priority)
	})
}

// ShouldExclude evaluates exclusion rules in declaration order. It returns
// the first matching rule's reason, falling back to the rule name.
func (e *Engine) ShouldExclude(tx *api.Transaction) (bool, string) {
	for idx, r := range e.exclusions {
		if !r.Matches(tx) {
			continue
		}
		name := statName(r.def.Name, "exclude", idx)
		e.excludeStats[name]++

		reason := r.def.Reason
		if reason == "" {
			reason = name
		}
		return true, reason
	}
	return false, ""
}

// Categorize returns the category pair of the first matching rule, or the
// uncategorized sentinel pair. Cache hits do not update rule statistics.
func (e *Engine) Categorize(tx *api.Transaction) api.Category {
	key := cacheKey(tx)
	if c, ok := e.cache[key]; ok {
		return c
	}

	for idx, r := range e.rules {
		if !r.Matches(tx) {
			continue
		}
		c := r.Category()
		e.stats[statName(r.def.Name, "rule", idx)]++
		e.cache[key] = c
		return c
	}

	return api.Uncategorized
}

// AddRule compiles def, inserts it by priority and clears the cache.
// Zero Field and MatchType default to counterparty and contains.
func (e *Engine) AddRule(def Definition) error {
	r, err := compile(def, categorization, e.logger)
	if err != nil {
		return fmt.Errorf("adding rule: %w", err)
	}
	e.rules = append(e.rules, r)
	e.sort()
	e.ClearCache()
	return nil
}

// ClearCache drops every memoized result.
func (e *Engine) ClearCache() {
	clear(e.cache)
}

// Stats returns a copy of the per-rule match counters.
func (e *Engine) Stats() map[string]int {
	return maps.Clone(e.stats)
}

// ExcludeStats returns a copy of the per-rule exclusion counters.
func (e *Engine) ExcludeStats() map[string]int {
	return maps.Clone(e.excludeStats)
}

// Rules returns the categorization rules in evaluation order.
func (e *Engine) Rules() []Definition {
	return definitions(e.rules)
}

// Exclusions returns the exclusion rules in evaluation order.
func (e *Engine) Exclusions() []Definition {
	return definitions(e.exclusions)
}

func definitions(rs []*Rule) []Definition {
	out := make([]Definition, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.def)
	}
	return out
}

func cacheKey(tx *api.Transaction) string {
	return strings.ToLower(tx.Counterparty) + "|" + strings.ToLower(tx.Description)
}

// statName names unnamed rules by their position.
func statName(name, prefix string, idx int) string {
	if name != "" {
		return name
	}
	return prefix + "_" + strconv.Itoa(idx)
}
