package main

import (
	"cmp"
	"context"
	"errors"
	"flag"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/ArionMiles/bankanalyzer/internal/runner"
	"github.com/ArionMiles/bankanalyzer/pkg/api"
	"github.com/ArionMiles/bankanalyzer/pkg/config"
	"github.com/ArionMiles/bankanalyzer/pkg/orchestrator"
	"github.com/ArionMiles/bankanalyzer/pkg/overrides"
	"github.com/ArionMiles/bankanalyzer/pkg/rules"
)

const topRulesShown = 5

type analyzeOptions struct {
	rules     string
	overrides string
	writers   string
	jsonPath  string
	csvPath   string
	chartPath string
}

func (a *app) analyzeFlags(fs *flag.FlagSet) *analyzeOptions {
	o := &analyzeOptions{}
	fs.StringVar(&o.rules, "rules", a.cfg.RulesFile, "rules file")
	fs.StringVar(&o.overrides, "overrides", a.cfg.OverridesFile, "manual overrides file")
	fs.StringVar(&o.writers, "writers", strings.Join(a.cfg.Writers, ","), "comma separated writer plugins ("+strings.Join(a.writerNames(), ", ")+")")
	fs.StringVar(&o.jsonPath, "json", "", "also write the JSON report to `PATH`")
	fs.StringVar(&o.csvPath, "csv", "", "also write the CSV export to `PATH`")
	fs.StringVar(&o.chartPath, "chart", "", "also render the top expenses chart to `PATH`")
	return o
}

// runConfig applies the command line selections on top of the loaded
// configuration.
func (o *analyzeOptions) runConfig(base config.Config) config.Config {
	cfg := base
	cfg.Writers = splitNames(o.writers)

	for _, out := range []struct{ writer, path string }{
		{"json", o.jsonPath},
		{"csv", o.csvPath},
		{"chart", o.chartPath},
	} {
		if out.path == "" {
			continue
		}
		cfg.SetWriter(out.writer, "file_path", out.path)
		if !slices.Contains(cfg.Writers, out.writer) {
			cfg.Writers = append(cfg.Writers, out.writer)
		}
	}
	return cfg
}

func (a *app) runAnalyze(ctx context.Context, args []string) error {
	fs := a.newFlagSet("analyze", "analyze [options] FILES...")
	opts := a.analyzeFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("no input files")
	}
	return a.analyze(ctx, opts, fs.Args())
}

func (a *app) runReprocess(ctx context.Context, args []string) error {
	fs := a.newFlagSet("reprocess", "reprocess [options]")
	source := fs.String("source", a.cfg.ProcessedDir, "directory with archived statements")
	opts := a.analyzeFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	files, err := csvFiles(*source)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no files in archive: %s", *source)
	}

	fmt.Fprintf(a.out, "Reprocessing %d files...\n", len(files))
	return a.analyze(ctx, opts, files)
}

func (a *app) analyze(ctx context.Context, opts *analyzeOptions, files []string) error {
	cfg := opts.runConfig(a.cfg)
	cfg.RulesFile = opts.rules
	if err := cfg.Validate(a.writerNames()); err != nil {
		return err
	}

	txs := a.parseAll(files)
	if len(txs) == 0 {
		return runner.ErrNoTransactions
	}
	fmt.Fprintf(a.out, "\nTotal: %d transactions\n", len(txs))

	engine := rules.Load(opts.rules, a.logger)
	store := overrides.Open(opts.overrides, a.logger)

	httpClient, err := a.oauthClient(ctx, cfg.Writers, false)
	if err != nil {
		return err
	}

	outcome, err := runner.New(a.registry, httpClient, a.logger).Run(ctx, cfg, runner.Input{
		Transactions: txs,
		Engine:       engine,
		Overrides:    store,
	})
	if outcome != nil {
		a.printOutcome(outcome, engine)
		if err == nil && len(cfg.Writers) > 0 {
			fmt.Fprintf(a.out, "\nDone! Reports written by: %s\n", strings.Join(cfg.Writers, ", "))
		}
	}
	return err
}

// parseAll parses every file, reporting and skipping the ones that fail.
func (a *app) parseAll(files []string) []*api.Transaction {
	detector := a.detector()

	fmt.Fprintf(a.out, "Analyzing %d file(s)...\n", len(files))
	var all []*api.Transaction
	for _, path := range files {
		fmt.Fprintf(a.out, "  Processing: %s\n", filepath.Base(path))
		txs, err := detector.DetectAndParse(path)
		if err != nil {
			fmt.Fprintf(a.out, "    Error: %v\n", err)
			continue
		}
		fmt.Fprintf(a.out, "    Found %d transactions\n", len(txs))
		all = append(all, txs...)
	}
	return all
}

func (a *app) printOutcome(outcome *orchestrator.Outcome, engine *rules.Engine) {
	fmt.Fprintf(a.out, "\nCategorized:   %d", outcome.Categorized)
	if outcome.Overridden > 0 {
		fmt.Fprintf(a.out, " (%d manual)", outcome.Overridden)
	}
	fmt.Fprintf(a.out, "\nUncategorized: %d\n", outcome.Uncategorized)
	fmt.Fprintf(a.out, "Excluded:      %d\n", len(outcome.Excluded))

	fmt.Fprintln(a.out, "\nSUMMARY")
	table := tablewriter.NewWriter(a.out)
	table.SetHeader([]string{"Year", "Expenses (PLN)", "Income (PLN)"})
	for _, year := range outcome.Report.YearKeys() {
		y := outcome.Report.Years[year]
		table.Append([]string{fmt.Sprint(year), formatPLN(y.TotalYearExpense), formatPLN(y.TotalYearIncome)})
	}
	table.Render()

	stats := engine.Stats()
	top := topRules(stats, topRulesShown)
	if len(top) == 0 {
		return
	}
	fmt.Fprintf(a.out, "\nTop %d rules used:\n", topRulesShown)
	for _, name := range top {
		fmt.Fprintf(a.out, "  %s: %d\n", name, stats[name])
	}
}

// topRules returns up to n rule names by descending match count, ties by
// name.
func topRules(stats map[string]int, n int) []string {
	names := slices.SortedFunc(maps.Keys(stats), func(x, y string) int {
		if c := cmp.Compare(stats[y], stats[x]); c != 0 {
			return c
		}
		return strings.Compare(x, y)
	})
	if len(names) > n {
		names = names[:n]
	}
	return names
}

// csvFiles lists *.csv in dir in name order.
func csvFiles(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	slices.Sort(files)
	return files, nil
}
