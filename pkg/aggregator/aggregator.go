// Package aggregator groups categorized transactions into a
// year, month, category, subcategory hierarchy with running totals.
package aggregator

import (
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/ArionMiles/bankanalyzer/pkg/api"
)

// DefaultTopLimit is the number of entries TopExpenses returns when the
// limit is not positive.
const DefaultTopLimit = 10

// Aggregator builds reports. It holds no state between calls.
type Aggregator struct {
	logger *slog.Logger
}

// New creates an Aggregator.
func New(logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{logger: logger.With("component", "aggregator")}
}

// Aggregate builds a report from transactions. Missing category parts are
// treated as the uncategorized sentinels, so every transaction lands in
// exactly one cell.
func (a *Aggregator) Aggregate(transactions []*api.Transaction) *api.Report {
	a.logger.Info("aggregating transactions", "count", len(transactions))

	report := &api.Report{
		Years:           make(map[int]*api.Year),
		Uncategorized:   []*api.Transaction{},
		AllTransactions: transactions,
	}

	for _, tx := range transactions {
		year := yearOf(report, tx.Date.Year())
		month := monthOf(year, int(tx.Date.Month()))

		if tx.IsExpense() {
			month.TotalExpense = month.TotalExpense.Add(tx.Amount)
		} else {
			month.TotalIncome = month.TotalIncome.Add(tx.Amount)
		}
		month.Total = month.Total.Add(tx.Amount)

		category := tx.Category()
		if category.IsUncategorized() {
			report.Uncategorized = append(report.Uncategorized, tx)
		}

		cell := month.Categories.Cell(category)
		cell.Total = cell.Total.Add(tx.Amount)
		cell.Count++
		cell.Transactions = append(cell.Transactions, tx)
	}

	for _, y := range report.Years {
		rollUp(y)
	}

	report.Summary = api.Summary{
		TotalTransactions:  len(transactions),
		TotalCategorized:   len(transactions) - len(report.Uncategorized),
		TotalUncategorized: len(report.Uncategorized),
	}

	a.logger.Info("aggregation complete",
		"years", len(report.Years),
		"uncategorized", len(report.Uncategorized),
	)
	return report
}

// rollUp sums months into yearly totals and category cells, visiting months
// in ascending order so yearly category order follows the calendar.
func rollUp(y *api.Year) {
	for _, m := range y.MonthKeys() {
		month := y.Months[m]
		for _, c := range month.Categories.Keys() {
			src, _ := month.Categories.Lookup(c)
			dst := y.CategoriesYear.Cell(c)
			dst.Total = dst.Total.Add(src.Total)
			dst.Count += src.Count
		}
		y.TotalYear = y.TotalYear.Add(month.Total)
		y.TotalYearIncome = y.TotalYearIncome.Add(month.TotalIncome)
		y.TotalYearExpense = y.TotalYearExpense.Add(month.TotalExpense)
	}
}

func yearOf(r *api.Report, year int) *api.Year {
	y, ok := r.Years[year]
	if !ok {
		y = &api.Year{
			Months:           make(map[int]*api.Month),
			TotalYear:        decimal.Zero,
			TotalYearIncome:  decimal.Zero,
			TotalYearExpense: decimal.Zero,
		}
		r.Years[year] = y
	}
	return y
}

func monthOf(y *api.Year, month int) *api.Month {
	m, ok := y.Months[month]
	if !ok {
		m = &api.Month{
			Total:        decimal.Zero,
			TotalIncome:  decimal.Zero,
			TotalExpense: decimal.Zero,
		}
		y.Months[month] = m
	}
	return m
}
