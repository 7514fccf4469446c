package aggregator

import (
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ArionMiles/bankanalyzer/pkg/api"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func tx(date, counterparty, amount string, typ api.TransactionType, main, sub string) *api.Transaction {
	d, err := time.Parse(time.DateOnly, date)
	if err != nil {
		panic(err)
	}
	t := api.NewTransaction(d, "Płatność "+counterparty, decimal.RequireFromString(amount), typ)
	t.Counterparty = counterparty
	t.CategoryMain, t.CategorySub = main, sub
	return t
}

// fixture mirrors a month of typical household activity.
func fixture() []*api.Transaction {
	return []*api.Transaction{
		tx("2026-01-15", "Biedronka", "100.00", api.Expense, "Jedzenie", "Zakupy spożywcze"),
		tx("2026-01-20", "Lidl", "150.00", api.Expense, "Jedzenie", "Zakupy spożywcze"),
		tx("2026-01-25", "McDonalds", "45.00", api.Expense, "Jedzenie", "Restauracje"),
		tx("2026-02-10", "Orlen", "250.00", api.Expense, "Transport", "Paliwo"),
		tx("2026-01-01", "Pracodawca", "5000.00", api.Income, "Przychody", "Wynagrodzenie"),
		tx("2026-01-30", "Unknown", "75.00", api.Expense, api.DefaultCategoryMain, api.DefaultCategorySub),
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestAggregateScenario(t *testing.T) {
	report := New(discardLogger()).Aggregate(fixture())

	jan, ok := report.Month(2026, 1)
	if !ok {
		t.Fatal("January 2026 missing")
	}
	if !jan.TotalExpense.Equal(dec("370")) {
		t.Errorf("January total_expense = %s, want 370", jan.TotalExpense)
	}
	if !jan.TotalIncome.Equal(dec("5000")) {
		t.Errorf("January total_income = %s, want 5000", jan.TotalIncome)
	}
	if !jan.Total.Equal(dec("5370")) {
		t.Errorf("January total = %s, want 5370", jan.Total)
	}

	year := report.Years[2026]
	if !year.TotalYearExpense.Equal(dec("620")) {
		t.Errorf("total_year_expense = %s, want 620", year.TotalYearExpense)
	}

	if len(report.Uncategorized) != 1 {
		t.Errorf("len(uncategorized) = %d, want 1", len(report.Uncategorized))
	}

	cell, ok := jan.Categories.Lookup(api.Category{Main: "Jedzenie", Sub: "Zakupy spożywcze"})
	if !ok {
		t.Fatal("Jedzenie/Zakupy spożywcze cell missing")
	}
	if !cell.Total.Equal(dec("250")) || cell.Count != 2 || len(cell.Transactions) != 2 {
		t.Errorf("cell = total %s count %d txs %d, want 250/2/2", cell.Total, cell.Count, len(cell.Transactions))
	}

	want := api.Summary{TotalTransactions: 6, TotalCategorized: 5, TotalUncategorized: 1}
	if report.Summary != want {
		t.Errorf("Summary = %+v, want %+v", report.Summary, want)
	}
	if len(report.AllTransactions) != 6 {
		t.Errorf("len(all_transactions) = %d, want 6", len(report.AllTransactions))
	}
}

func TestAggregateConservation(t *testing.T) {
	txs := append(fixture(),
		tx("2025-12-31", "Sylwester", "300.50", api.Expense, "Rozrywka", "Imprezy"),
		tx("2025-12-01", "Zwrot", "20.25", api.Income, "Przychody", "Zwroty"),
	)
	report := New(discardLogger()).Aggregate(txs)

	wantExpense, wantIncome := decimal.Zero, decimal.Zero
	for _, tr := range txs {
		if tr.IsExpense() {
			wantExpense = wantExpense.Add(tr.Amount)
		} else {
			wantIncome = wantIncome.Add(tr.Amount)
		}
	}

	monthsExpense, monthsIncome := decimal.Zero, decimal.Zero
	yearsExpense, yearsIncome := decimal.Zero, decimal.Zero
	cells := 0
	for _, y := range report.Years {
		yearsExpense = yearsExpense.Add(y.TotalYearExpense)
		yearsIncome = yearsIncome.Add(y.TotalYearIncome)

		monthSum := decimal.Zero
		for _, m := range y.Months {
			monthsExpense = monthsExpense.Add(m.TotalExpense)
			monthsIncome = monthsIncome.Add(m.TotalIncome)
			monthSum = monthSum.Add(m.Total)

			categorySum := decimal.Zero
			for _, c := range m.Categories.Keys() {
				cell, _ := m.Categories.Lookup(c)
				categorySum = categorySum.Add(cell.Total)
				cells += cell.Count
			}
			if !categorySum.Equal(m.Total) {
				t.Errorf("category totals %s != month total %s", categorySum, m.Total)
			}
		}
		if !monthSum.Equal(y.TotalYear) {
			t.Errorf("month totals %s != total_year %s", monthSum, y.TotalYear)
		}
	}

	if !monthsExpense.Equal(wantExpense) || !yearsExpense.Equal(wantExpense) {
		t.Errorf("expense: months %s, years %s, want %s", monthsExpense, yearsExpense, wantExpense)
	}
	if !monthsIncome.Equal(wantIncome) || !yearsIncome.Equal(wantIncome) {
		t.Errorf("income: months %s, years %s, want %s", monthsIncome, yearsIncome, wantIncome)
	}
	if cells != len(txs) {
		t.Errorf("cells hold %d transactions, want %d", cells, len(txs))
	}
	if got := report.YearKeys(); len(got) != 2 || got[0] != 2025 || got[1] != 2026 {
		t.Errorf("YearKeys() = %v, want [2025 2026]", got)
	}
}

func TestAggregateMissingCategories(t *testing.T) {
	raw := tx("2026-03-03", "Nowy sklep", "12.00", api.Expense, "", "")
	half := tx("2026-03-04", "Kiosk", "5.00", api.Expense, "Prasa", "")

	report := New(discardLogger()).Aggregate([]*api.Transaction{raw, half})

	march, _ := report.Month(2026, 3)
	if cell, ok := march.Categories.Lookup(api.Uncategorized); !ok || cell.Count != 1 {
		t.Errorf("uncategorized transaction not placed in the sentinel cell")
	}
	if cell, ok := march.Categories.Lookup(api.Category{Main: "Prasa", Sub: api.DefaultCategorySub}); !ok || cell.Count != 1 {
		t.Errorf("half categorized transaction not placed under Prasa/Nieprzypisane")
	}
	if len(report.Uncategorized) != 2 {
		t.Errorf("len(uncategorized) = %d, want 2", len(report.Uncategorized))
	}
}

func TestAggregateEmpty(t *testing.T) {
	report := New(discardLogger()).Aggregate(nil)

	if len(report.Years) != 0 || len(report.Uncategorized) != 0 {
		t.Errorf("empty input produced %+v", report)
	}
	if report.Summary != (api.Summary{}) {
		t.Errorf("Summary = %+v, want zero", report.Summary)
	}
}

func TestYearlyRollUp(t *testing.T) {
	report := New(discardLogger()).Aggregate(fixture())

	food := MainCategorySummary(report, 2026, "Jedzenie")
	if len(food) != 2 {
		t.Fatalf("Jedzenie has %d subcategories, want 2", len(food))
	}
	if groceries := food["Zakupy spożywcze"]; !groceries.Total.Equal(dec("250")) || groceries.Count != 2 {
		t.Errorf("groceries = %s/%d, want 250/2", groceries.Total, groceries.Count)
	}
	if food["Restauracje"].Transactions != nil {
		t.Error("yearly cells must not carry transactions")
	}

	all := CategorySummary(report, 2026)
	if len(all) != 4 {
		t.Errorf("CategorySummary has %d main categories, want 4", len(all))
	}
}

func TestLookupMisses(t *testing.T) {
	report := New(discardLogger()).Aggregate(fixture())

	if m := MonthlySummary(report, 2026, 7); m == nil || m.Categories.Len() != 0 || !m.Total.IsZero() {
		t.Errorf("MonthlySummary(missing) = %+v, want empty month", m)
	}
	if m := MonthlySummary(report, 1999, 1); m == nil {
		t.Error("MonthlySummary(missing year) returned nil")
	}
	if got := CategorySummary(report, 1999); got == nil || len(got) != 0 {
		t.Errorf("CategorySummary(missing) = %v, want empty", got)
	}
	if got := MainCategorySummary(report, 2026, "Nieistniejąca"); got == nil || len(got) != 0 {
		t.Errorf("MainCategorySummary(missing) = %v, want empty", got)
	}
	if got := TopExpenses(report, 1999, 5); len(got) != 0 {
		t.Errorf("TopExpenses(missing year) = %v, want empty", got)
	}
}

func TestTopExpenses(t *testing.T) {
	txs := append(fixture(),
		tx("2025-06-01", "Orlen", "100.00", api.Expense, "Transport", "Paliwo"),
		tx("2025-06-02", "Kino", "45.00", api.Expense, "Rozrywka", "Kino"),
	)
	report := New(discardLogger()).Aggregate(txs)

	t.Run("all years", func(t *testing.T) {
		top := TopExpenses(report, 0, 0)
		if len(top) != 6 {
			t.Fatalf("len(top) = %d, want 6", len(top))
		}
		for i := 1; i < len(top); i++ {
			if top[i-1].Total.LessThan(top[i].Total) {
				t.Errorf("not sorted: %v before %v", top[i-1].Total, top[i].Total)
			}
		}
		if top[0].Category != "Przychody > Wynagrodzenie" {
			t.Errorf("top[0] = %q, want income category first", top[0].Category)
		}
		fuel := top[1]
		if fuel.Category != "Transport > Paliwo" || !fuel.Total.Equal(dec("350")) || fuel.Count != 2 {
			t.Errorf("fuel entry = %+v, want 350 over 2 transactions across years", fuel)
		}
	})

	t.Run("ties keep first seen order", func(t *testing.T) {
		top := TopExpenses(report, 0, 10)
		// Both total 45: Rozrywka/Kino is seen first (2025), Jedzenie/Restauracje later (2026).
		var order []string
		for _, e := range top {
			if e.Total.Equal(dec("45")) {
				order = append(order, e.Category)
			}
		}
		if strings.Join(order, ",") != "Rozrywka > Kino,Jedzenie > Restauracje" {
			t.Errorf("tie order = %v", order)
		}
	})

	t.Run("single year with limit", func(t *testing.T) {
		top := TopExpenses(report, 2026, 2)
		if len(top) != 2 {
			t.Fatalf("len(top) = %d, want 2", len(top))
		}
		if top[1].Category != "Jedzenie > Zakupy spożywcze" {
			t.Errorf("top[1] = %q", top[1].Category)
		}
	})
}

func TestReportJSONShape(t *testing.T) {
	report := New(discardLogger()).Aggregate(fixture())

	data, err := json.Marshal(report)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	for _, key := range []string{"years", "uncategorized", "all_transactions", "summary"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("report JSON missing %q", key)
		}
	}

	year := decoded["years"].(map[string]any)["2026"].(map[string]any)
	for _, key := range []string{"months", "total_year", "total_year_income", "total_year_expense", "categories_year"} {
		if _, ok := year[key]; !ok {
			t.Errorf("year JSON missing %q", key)
		}
	}
	month := year["months"].(map[string]any)["1"].(map[string]any)
	for _, key := range []string{"categories", "total", "total_income", "total_expense"} {
		if _, ok := month[key]; !ok {
			t.Errorf("month JSON missing %q", key)
		}
	}
}
