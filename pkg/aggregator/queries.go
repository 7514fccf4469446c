package aggregator

import (
	"maps"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/ArionMiles/bankanalyzer/pkg/api"
)

// TopEntry is one ranked category.
type TopEntry struct {
	Category     string          `json:"category"`
	CategoryMain string          `json:"category_main"`
	CategorySub  string          `json:"category_sub"`
	Total        decimal.Decimal `json:"total"`
	Count        int             `json:"count"`
}

// MonthlySummary returns one month of the report. A missing year or month
// yields an empty month, never nil.
func MonthlySummary(r *api.Report, year, month int) *api.Month {
	if m, ok := r.Month(year, month); ok {
		return m
	}
	return &api.Month{}
}

// CategorySummary returns the yearly category tree. A missing year yields
// an empty map.
func CategorySummary(r *api.Report, year int) map[string]map[string]*api.Cell {
	y, ok := r.Years[year]
	if !ok {
		return map[string]map[string]*api.Cell{}
	}
	return y.CategoriesYear.Map()
}

// MainCategorySummary returns the yearly subcategory cells of one main
// category. Missing paths yield an empty map.
func MainCategorySummary(r *api.Report, year int, main string) map[string]*api.Cell {
	if y, ok := r.Years[year]; ok {
		if subs, ok := y.CategoriesYear.Main(main); ok {
			return maps.Clone(subs)
		}
	}
	return map[string]*api.Cell{}
}

// TopExpenses ranks "main > sub" categories by total, for one year or, with
// year 0, summed over every year. Ties keep the order in which categories
// were first seen. A non-positive limit means DefaultTopLimit.
//
// Every category is ranked, including income ones such as salary.
func TopExpenses(r *api.Report, year, limit int) []TopEntry {
	if limit <= 0 {
		limit = DefaultTopLimit
	}

	years := r.YearKeys()
	if year != 0 {
		years = []int{year}
	}

	var ranked []*TopEntry
	index := make(map[api.Category]*TopEntry)
	for _, yr := range years {
		y, ok := r.Years[yr]
		if !ok {
			continue
		}
		for _, c := range y.CategoriesYear.Keys() {
			cell, _ := y.CategoriesYear.Lookup(c)
			entry, ok := index[c]
			if !ok {
				entry = &TopEntry{
					Category:     c.Key(),
					CategoryMain: c.Main,
					CategorySub:  c.Sub,
					Total:        decimal.Zero,
				}
				index[c] = entry
				ranked = append(ranked, entry)
			}
			entry.Total = entry.Total.Add(cell.Total)
			entry.Count += cell.Count
		}
	}

	slices.SortStableFunc(ranked, func(a, b *TopEntry) int {
		return b.Total.Cmp(a.Total)
	})

	out := make([]TopEntry, 0, min(limit, len(ranked)))
	for _, e := range ranked[:min(limit, len(ranked))] {
		out = append(out, *e)
	}
	return out
}
