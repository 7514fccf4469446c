package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"

	"github.com/ArionMiles/bankanalyzer/pkg/aggregator"
	"github.com/ArionMiles/bankanalyzer/pkg/api"
	"github.com/ArionMiles/bankanalyzer/pkg/orchestrator"
	"github.com/ArionMiles/bankanalyzer/pkg/overrides"
	"github.com/ArionMiles/bankanalyzer/pkg/rules"
)

const (
	previewCount      = 5
	defaultHistoryTop = 50
)

// errUnknownFormat makes parse exit non-zero after it printed the reason.
var errUnknownFormat = errors.New("cannot determine bank format")

func (a *app) runParse(args []string) error {
	fs := a.newFlagSet("parse", "parse FILE")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("expected exactly one file")
	}
	path := fs.Arg(0)

	detector := a.detector()
	bank := detector.DetectFormat(path)
	fmt.Fprintf(a.out, "\nFile: %s\n", filepath.Base(path))
	fmt.Fprintf(a.out, "Detected bank: %s\n", bank)
	if bank == api.UnknownBank {
		return errUnknownFormat
	}

	txs, err := detector.DetectAndParse(path)
	if err != nil {
		return err
	}

	stats := summarize(txs)
	fmt.Fprintln(a.out, "\nStatistics:")
	fmt.Fprintf(a.out, "  Total transactions: %d\n", len(txs))
	fmt.Fprintf(a.out, "  Expenses: %d (%s PLN)\n", stats.expenses, formatPLN(stats.expenseTotal))
	fmt.Fprintf(a.out, "  Incomes: %d (%s PLN)\n", stats.incomes, formatPLN(stats.incomeTotal))
	if len(txs) > 0 {
		fmt.Fprintf(a.out, "  Date range: %s to %s\n", stats.first.Format(time.DateOnly), stats.last.Format(time.DateOnly))
	}

	fmt.Fprintf(a.out, "\nFirst %d transactions:\n", previewCount)
	for i, tx := range txs[:min(previewCount, len(txs))] {
		fmt.Fprintf(a.out, "  %d. %s\n", i+1, tx)
	}
	return nil
}

type statementStats struct {
	expenses, incomes         int
	expenseTotal, incomeTotal decimal.Decimal
	first, last               time.Time
}

func summarize(txs []*api.Transaction) statementStats {
	var s statementStats
	for i, tx := range txs {
		if tx.IsExpense() {
			s.expenses++
			s.expenseTotal = s.expenseTotal.Add(tx.Amount)
		} else {
			s.incomes++
			s.incomeTotal = s.incomeTotal.Add(tx.Amount)
		}
		if i == 0 || tx.Date.Before(s.first) {
			s.first = tx.Date
		}
		if i == 0 || tx.Date.After(s.last) {
			s.last = tx.Date
		}
	}
	return s
}

func (a *app) runDetect(args []string) error {
	fs := a.newFlagSet("detect", "detect FILE")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("expected exactly one file")
	}
	path := fs.Arg(0)

	bank := a.detector().DetectFormat(path)
	fmt.Fprintf(a.out, "File: %s\n", filepath.Base(path))
	fmt.Fprintf(a.out, "Detected bank: %s\n", bank)
	if bank == api.UnknownBank {
		fmt.Fprintln(a.out, "\nSupported formats:")
		fmt.Fprintln(a.out, "  - PKO BP (Data operacji header)")
		fmt.Fprintln(a.out, "  - Alior Bank (semicolon-separated)")
	}
	return nil
}

func (a *app) runHistory(args []string) error {
	fs := a.newFlagSet("history", "history [options]")
	source := fs.String("source", a.cfg.ProcessedDir, "directory with archived statements")
	top := fs.Int("top", defaultHistoryTop, "number of counterparties to show")
	if err := fs.Parse(args); err != nil {
		return err
	}

	files, err := csvFiles(*source)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no CSV files found in %s", *source)
	}
	fmt.Fprintf(a.out, "Found %d files\n", len(files))

	txs, fileErrs := a.detector().ParseFiles(files)
	for _, fe := range fileErrs {
		a.logger.Warn("skipping file", "file", fe.Path, "error", fe.Err)
	}
	if len(txs) == 0 {
		return errors.New("no transactions found")
	}
	fmt.Fprintf(a.out, "Total transactions: %d\n", len(txs))

	counts := counterpartyCounts(txs)
	fmt.Fprintf(a.out, "\nTop %d counterparties:\n", *top)
	table := tablewriter.NewWriter(a.out)
	table.SetHeader([]string{"Counterparty", "Count"})
	for _, c := range counts[:min(max(*top, 0), len(counts))] {
		table.Append([]string{c.name, fmt.Sprint(c.count)})
	}
	table.Render()
	return nil
}

type counterpartyCount struct {
	name  string
	count int
}

// counterpartyCounts orders counterparties by frequency, ties by first
// appearance.
func counterpartyCounts(txs []*api.Transaction) []counterpartyCount {
	index := make(map[string]int)
	var counts []counterpartyCount
	for _, tx := range txs {
		i, ok := index[tx.Counterparty]
		if !ok {
			i = len(counts)
			index[tx.Counterparty] = i
			counts = append(counts, counterpartyCount{name: tx.Counterparty})
		}
		counts[i].count++
	}
	slices.SortStableFunc(counts, func(x, y counterpartyCount) int {
		return y.count - x.count
	})
	return counts
}

func (a *app) runTop(ctx context.Context, args []string) error {
	fs := a.newFlagSet("top", "top [options] FILES...")
	year := fs.Int("year", 0, "limit to one year (0 = all years)")
	limit := fs.Int("limit", aggregator.DefaultTopLimit, "number of categories to show")
	rulesFile := fs.String("rules", a.cfg.RulesFile, "rules file")
	overridesFile := fs.String("overrides", a.cfg.OverridesFile, "manual overrides file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("no input files")
	}

	txs, fileErrs := a.detector().ParseFiles(fs.Args())
	for _, fe := range fileErrs {
		fmt.Fprintf(a.out, "Skipping %s: %v\n", filepath.Base(fe.Path), fe.Err)
	}
	if len(txs) == 0 {
		return errors.New("no transactions found")
	}

	orch := orchestrator.New(orchestrator.Config{
		Engine:    rules.Load(*rulesFile, a.logger),
		Overrides: overrides.Open(*overridesFile, a.logger),
	}, a.logger)
	outcome, err := orch.Run(ctx, txs)
	if err != nil {
		return err
	}

	entries := aggregator.TopExpenses(outcome.Report, *year, *limit)
	if len(entries) == 0 {
		fmt.Fprintln(a.out, "No expenses found.")
		return nil
	}

	table := tablewriter.NewWriter(a.out)
	table.SetHeader([]string{"#", "Category", "Subcategory", "Total (PLN)", "Count"})
	for i, e := range entries {
		table.Append([]string{fmt.Sprint(i + 1), e.CategoryMain, e.CategorySub, formatPLN(e.Total), fmt.Sprint(e.Count)})
	}
	table.Render()
	return nil
}
