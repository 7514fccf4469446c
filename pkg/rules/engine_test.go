package rules

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ArionMiles/bankanalyzer/pkg/api"
)

const sampleRules = `
rules:
  - name: "biedronka"
    pattern: "biedronka"
    field: "counterparty"
    match_type: "contains"
    priority: 10
    category_main: "Jedzenie"
    category_sub: "Zakupy spożywcze"

  - name: "netflix"
    pattern: "netflix"
    field: "description"
    match_type: "contains"
    priority: 15
    category_main: "Subskrypcje"
    category_sub: "Streaming"

  - name: "zabka_regex"
    pattern: "zabka|żabka"
    field: "counterparty"
    match_type: "regex"
    priority: 10
    category_main: "Jedzenie"
    category_sub: "Zakupy spożywcze"

exclude:
  - name: "own_transfer"
    pattern: "przelew własny"
    reason: "Internal transfer"
  - pattern: "^lokata"
    match_type: "regex"
`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeRules(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing rules file: %v", err)
	}
	return path
}

func newTx(counterparty, description string) *api.Transaction {
	tx := api.NewTransaction(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), description, decimal.RequireFromString("100.00"), api.Expense)
	tx.Counterparty = counterparty
	return tx
}

func TestLoad(t *testing.T) {
	engine := Load(writeRules(t, sampleRules), discardLogger())

	if got := len(engine.Rules()); got != 3 {
		t.Fatalf("len(Rules()) = %d, want 3", got)
	}
	if got := len(engine.Exclusions()); got != 2 {
		t.Fatalf("len(Exclusions()) = %d, want 2", got)
	}

	// Priority 15 first, then declaration order for the two priority 10 rules.
	wantOrder := []string{"netflix", "biedronka", "zabka_regex"}
	for i, def := range engine.Rules() {
		if def.Name != wantOrder[i] {
			t.Errorf("Rules()[%d] = %q, want %q", i, def.Name, wantOrder[i])
		}
	}

	excl := engine.Exclusions()[0]
	if excl.Field != FieldDescription || excl.MatchType != MatchContains {
		t.Errorf("exclusion defaults = %s/%s, want description/contains", excl.Field, excl.MatchType)
	}
}

func TestLoadDegradesToEmpty(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{name: "missing file", path: filepath.Join(t.TempDir(), "nope.yaml")},
		{name: "malformed yaml", path: writeRules(t, "rules: [\n  - name: x\n    pattern: [unclosed")},
		{name: "no path", path: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := Load(tt.path, discardLogger())
			if len(engine.Rules()) != 0 || len(engine.Exclusions()) != 0 {
				t.Errorf("expected empty engine, got %d rules, %d exclusions", len(engine.Rules()), len(engine.Exclusions()))
			}
			if got := engine.Categorize(newTx("Biedronka", "x")); got != api.Uncategorized {
				t.Errorf("Categorize() = %v, want %v", got, api.Uncategorized)
			}
		})
	}
}

func TestCategorize(t *testing.T) {
	engine := Load(writeRules(t, sampleRules), discardLogger())

	tests := []struct {
		name         string
		counterparty string
		description  string
		want         api.Category
	}{
		{
			name:         "counterparty contains",
			counterparty: "Biedronka Warszawa",
			description:  "Zakupy w sklepie",
			want:         api.Category{Main: "Jedzenie", Sub: "Zakupy spożywcze"},
		},
		{
			name:         "description contains",
			counterparty: "Unknown",
			description:  "Netflix subscription",
			want:         api.Category{Main: "Subskrypcje", Sub: "Streaming"},
		},
		{
			name:         "regex search",
			counterparty: "Zabka Z1234",
			description:  "Zakupy",
			want:         api.Category{Main: "Jedzenie", Sub: "Zakupy spożywcze"},
		},
		{
			name:         "regex with polish letters",
			counterparty: "SKLEP ŻABKA",
			description:  "Zakupy",
			want:         api.Category{Main: "Jedzenie", Sub: "Zakupy spożywcze"},
		},
		{
			name:         "no match falls back to sentinels",
			counterparty: "Unknown Shop",
			description:  "Random purchase",
			want:         api.Uncategorized,
		},
		{
			name:         "higher priority wins over earlier declaration",
			counterparty: "Biedronka",
			description:  "Netflix gift card",
			want:         api.Category{Main: "Subskrypcje", Sub: "Streaming"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := engine.Categorize(newTx(tt.counterparty, tt.description))
			if got != tt.want {
				t.Errorf("Categorize() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatchTypes(t *testing.T) {
	tests := []struct {
		name  string
		def   Definition
		value string
		want  bool
	}{
		{name: "exact", def: Definition{Pattern: "Orlen", MatchType: MatchExact}, value: "ORLEN", want: true},
		{name: "exact partial", def: Definition{Pattern: "Orlen", MatchType: MatchExact}, value: "Orlen Stacja", want: false},
		{name: "startswith", def: Definition{Pattern: "Shell", MatchType: MatchStartsWith}, value: "shell 123", want: true},
		{name: "startswith miss", def: Definition{Pattern: "Shell", MatchType: MatchStartsWith}, value: "a shell", want: false},
		{name: "endswith", def: Definition{Pattern: "sp. z o.o.", MatchType: MatchEndsWith}, value: "Firma SP. Z O.O.", want: true},
		{name: "case sensitive contains", def: Definition{Pattern: "Lidl", CaseSensitive: true}, value: "LIDL", want: false},
		{name: "case sensitive regex", def: Definition{Pattern: "^Lidl", MatchType: MatchRegex, CaseSensitive: true}, value: "lidl", want: false},
		{name: "regex is a search", def: Definition{Pattern: "car+efour", MatchType: MatchRegex}, value: "Hiper Carrefour Bemowo", want: true},
		{name: "invalid regex is inert", def: Definition{Pattern: "(?<=x)y", MatchType: MatchRegex}, value: "xy", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := tt.def
			def.CategoryMain, def.CategorySub = "A", "B"
			r, err := compile(def, categorization, discardLogger())
			if err != nil {
				t.Fatalf("compile() error = %v", err)
			}
			if got := r.Matches(newTx(tt.value, "")); got != tt.want {
				t.Errorf("Matches(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestInvalidDefinitionsAreSkipped(t *testing.T) {
	defs := []Definition{
		{Name: "no_pattern", CategoryMain: "A", CategorySub: "B"},
		{Name: "bad_type", Pattern: "x", MatchType: "fuzzy", CategoryMain: "A", CategorySub: "B"},
		{Name: "bad_field", Pattern: "x", Field: "amount", CategoryMain: "A", CategorySub: "B"},
		{Name: "no_category", Pattern: "x"},
		{Name: "ok", Pattern: "x", CategoryMain: "A", CategorySub: "B"},
	}

	engine := New(defs, nil, discardLogger())
	rules := engine.Rules()
	if len(rules) != 1 || rules[0].Name != "ok" {
		t.Errorf("Rules() = %+v, want only %q", rules, "ok")
	}
}

func TestInvalidRegexKeepsSiblings(t *testing.T) {
	defs := []Definition{
		{Name: "broken", Pattern: "(unclosed", MatchType: MatchRegex, Priority: 20, CategoryMain: "X", CategorySub: "Y"},
		{Name: "lidl", Pattern: "lidl", Priority: 10, CategoryMain: "Jedzenie", CategorySub: "Zakupy spożywcze"},
	}
	engine := New(defs, nil, discardLogger())

	if got := len(engine.Rules()); got != 2 {
		t.Fatalf("len(Rules()) = %d, want 2", got)
	}
	got := engine.Categorize(newTx("(unclosed Lidl", ""))
	if got.Main != "Jedzenie" {
		t.Errorf("Categorize() = %v, want Jedzenie", got)
	}
}

func TestCacheSkipsStats(t *testing.T) {
	engine := Load(writeRules(t, sampleRules), discardLogger())

	first := engine.Categorize(newTx("Biedronka Warszawa", "Zakupy"))
	second := engine.Categorize(newTx("BIEDRONKA WARSZAWA", "ZAKUPY"))
	if first != second {
		t.Errorf("cached result %v differs from first %v", second, first)
	}

	stats := engine.Stats()
	if stats["biedronka"] != 1 {
		t.Errorf("stats[biedronka] = %d, want 1 (cache hits are not counted)", stats["biedronka"])
	}

	// Returned map is a snapshot.
	stats["biedronka"] = 99
	if engine.Stats()["biedronka"] != 1 {
		t.Error("Stats() must return a copy")
	}
}

func TestDefaultIsNotCached(t *testing.T) {
	engine := New(nil, nil, discardLogger())
	tx := newTx("New Shop", "purchase")

	if got := engine.Categorize(tx); got != api.Uncategorized {
		t.Fatalf("Categorize() = %v, want default", got)
	}

	if err := engine.AddRule(Definition{Name: "shop", Pattern: "new shop", CategoryMain: "Zakupy", CategorySub: "Inne"}); err != nil {
		t.Fatalf("AddRule() error = %v", err)
	}
	if got := engine.Categorize(tx); got.Main != "Zakupy" {
		t.Errorf("Categorize() after AddRule = %v, want Zakupy", got)
	}
}

func TestAddRuleResortsAndClearsCache(t *testing.T) {
	engine := Load(writeRules(t, sampleRules), discardLogger())
	tx := newTx("Biedronka", "Zakupy")

	if got := engine.Categorize(tx); got.Main != "Jedzenie" {
		t.Fatalf("Categorize() = %v, want Jedzenie", got)
	}

	err := engine.AddRule(Definition{
		Name:         "biedronka_regex_override",
		Pattern:      "^bied",
		MatchType:    MatchRegex,
		Priority:     50,
		CategoryMain: "Dom",
		CategorySub:  "Chemia",
	})
	if err != nil {
		t.Fatalf("AddRule() error = %v", err)
	}

	if got := engine.Rules()[0].Name; got != "biedronka_regex_override" {
		t.Errorf("Rules()[0] = %q, want the new rule first", got)
	}
	if got := engine.Categorize(tx); got != (api.Category{Main: "Dom", Sub: "Chemia"}) {
		t.Errorf("Categorize() after AddRule = %v, want Dom/Chemia", got)
	}
}

func TestAddRuleRegex(t *testing.T) {
	tests := []struct {
		name string
		def  Definition
		tx   *api.Transaction
		want api.Category
	}{
		{
			name: "case insensitive regex behind higher priorities",
			def: Definition{
				Name:         "kino_regex",
				Pattern:      "^CINEMA (CITY|HELIOS)",
				MatchType:    MatchRegex,
				Priority:     1,
				CategoryMain: "Rozrywka",
				CategorySub:  "Kino",
			},
			tx:   newTx("cinema city arkadia", ""),
			want: api.Category{Main: "Rozrywka", Sub: "Kino"},
		},
		{
			name: "case sensitive regex on description",
			def: Definition{
				Name:          "apteka_regex",
				Pattern:       `Apteka \d+`,
				Field:         FieldDescription,
				MatchType:     MatchRegex,
				CaseSensitive: true,
				Priority:      12,
				CategoryMain:  "Zdrowie",
				CategorySub:   "Leki",
			},
			tx:   newTx("", "Zakup Apteka 24"),
			want: api.Category{Main: "Zdrowie", Sub: "Leki"},
		},
		{
			name: "case sensitive regex does not fold case",
			def: Definition{
				Name:          "apteka_regex",
				Pattern:       `Apteka \d+`,
				Field:         FieldDescription,
				MatchType:     MatchRegex,
				CaseSensitive: true,
				CategoryMain:  "Zdrowie",
				CategorySub:   "Leki",
			},
			tx:   newTx("", "zakup apteka 24"),
			want: api.Uncategorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := Load(writeRules(t, sampleRules), discardLogger())
			if err := engine.AddRule(tt.def); err != nil {
				t.Fatalf("AddRule() error = %v", err)
			}
			if got := engine.Categorize(tt.tx); got != tt.want {
				t.Errorf("Categorize() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPriorityExtremes(t *testing.T) {
	defs := []Definition{
		{Name: "min", Pattern: "shop", Priority: math.MinInt + 1, CategoryMain: "L", CategorySub: "l"},
		{Name: "max", Pattern: "shop", Priority: math.MaxInt, CategoryMain: "H", CategorySub: "h"},
		{Name: "zero", Pattern: "shop", CategoryMain: "Z", CategorySub: "z"},
	}
	engine := New(defs, nil, discardLogger())

	var order []string
	for _, d := range engine.Rules() {
		order = append(order, d.Name)
	}
	if want := []string{"max", "zero", "min"}; !slices.Equal(order, want) {
		t.Errorf("Rules() order = %v, want %v", order, want)
	}
	if got := engine.Categorize(newTx("Shop", "")); got != (api.Category{Main: "H", Sub: "h"}) {
		t.Errorf("Categorize() = %v, want H/h", got)
	}
}

func TestAddRuleInvalid(t *testing.T) {
	engine := New(nil, nil, discardLogger())
	err := engine.AddRule(Definition{Name: "x", Pattern: "x"})
	if !errors.Is(err, ErrInvalidRule) {
		t.Errorf("AddRule() error = %v, want ErrInvalidRule", err)
	}
}

func TestUnnamedRuleStats(t *testing.T) {
	defs := []Definition{
		{Pattern: "orlen", Priority: 5, CategoryMain: "Transport", CategorySub: "Paliwo"},
		{Pattern: "shell", Priority: 5, CategoryMain: "Transport", CategorySub: "Paliwo"},
	}
	engine := New(defs, nil, discardLogger())
	engine.Categorize(newTx("Shell Polska", ""))

	if got := engine.Stats()["rule_1"]; got != 1 {
		t.Errorf("stats[rule_1] = %d, want 1; stats = %v", got, engine.Stats())
	}
}

func TestShouldExclude(t *testing.T) {
	engine := Load(writeRules(t, sampleRules), discardLogger())

	tests := []struct {
		name        string
		description string
		wantExcl    bool
		wantReason  string
	}{
		{name: "reason given", description: "Przelew własny na konto oszczędnościowe", wantExcl: true, wantReason: "Internal transfer"},
		{name: "unnamed falls back to positional name", description: "Lokata 3M", wantExcl: true, wantReason: "exclude_1"},
		{name: "no match", description: "Zakupy", wantExcl: false, wantReason: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			excluded, reason := engine.ShouldExclude(newTx("Jan Kowalski", tt.description))
			if excluded != tt.wantExcl || reason != tt.wantReason {
				t.Errorf("ShouldExclude() = (%v, %q), want (%v, %q)", excluded, reason, tt.wantExcl, tt.wantReason)
			}
		})
	}

	stats := engine.ExcludeStats()
	if stats["own_transfer"] != 1 || stats["exclude_1"] != 1 {
		t.Errorf("ExcludeStats() = %v, want own_transfer=1 exclude_1=1", stats)
	}
}

func TestExclusionsKeepDeclarationOrder(t *testing.T) {
	excludes := []Definition{
		{Name: "low", Pattern: "przelew", Priority: 1, Reason: "first"},
		{Name: "high", Pattern: "przelew", Priority: 100, Reason: "second"},
	}
	engine := New(nil, excludes, discardLogger())

	_, reason := engine.ShouldExclude(newTx("", "Przelew"))
	if reason != "first" {
		t.Errorf("reason = %q, want %q (exclusions are not priority sorted)", reason, "first")
	}
}

func TestAppendRule(t *testing.T) {
	path := writeRules(t, "# categorization rules\n"+sampleRules)

	err := AppendRule(path, Definition{Name: "orlen", Pattern: "orlen", Priority: 10, CategoryMain: "Transport", CategorySub: "Paliwo"})
	if err != nil {
		t.Fatalf("AppendRule() error = %v", err)
	}

	f, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if len(f.Rules) != 4 || f.Rules[3].Name != "orlen" {
		t.Errorf("rules after append = %+v", f.Rules)
	}
	if len(f.Exclude) != 2 {
		t.Errorf("exclusions after append = %d, want 2", len(f.Exclude))
	}

	data, _ := os.ReadFile(path)
	if len(data) == 0 || string(data[:len("# categorization rules")]) != "# categorization rules" {
		t.Errorf("leading comment not preserved:\n%s", data)
	}
}

func TestAppendRuleCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config", "rules.yaml")

	if err := AppendRule(path, Definition{Name: "a", Pattern: "a", CategoryMain: "A", CategorySub: "B"}); err != nil {
		t.Fatalf("AppendRule() error = %v", err)
	}
	engine := Load(path, discardLogger())
	if got := len(engine.Rules()); got != 1 {
		t.Errorf("len(Rules()) = %d, want 1", got)
	}
}
