// Command bankanalyzer categorizes Polish bank statement exports and writes
// expense reports.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ArionMiles/bankanalyzer/pkg/client"
	"github.com/ArionMiles/bankanalyzer/pkg/config"
	"github.com/ArionMiles/bankanalyzer/pkg/logging"
	"github.com/ArionMiles/bankanalyzer/pkg/plugins"
	aliorplugin "github.com/ArionMiles/bankanalyzer/pkg/plugins/readers/alior"
	pkoplugin "github.com/ArionMiles/bankanalyzer/pkg/plugins/readers/pko"
	chartplugin "github.com/ArionMiles/bankanalyzer/pkg/plugins/writers/chart"
	csvplugin "github.com/ArionMiles/bankanalyzer/pkg/plugins/writers/csv"
	jsonplugin "github.com/ArionMiles/bankanalyzer/pkg/plugins/writers/json"
	postgresplugin "github.com/ArionMiles/bankanalyzer/pkg/plugins/writers/postgres"
	sheetsplugin "github.com/ArionMiles/bankanalyzer/pkg/plugins/writers/sheets"
	sqliteplugin "github.com/ArionMiles/bankanalyzer/pkg/plugins/writers/sqlite"
	"github.com/ArionMiles/bankanalyzer/pkg/reader"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "0.1.0"

func main() {
	// A missing .env is fine.
	_ = godotenv.Load()

	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// app carries what every subcommand needs.
type app struct {
	cfg      config.Config
	registry *plugins.Registry
	logger   *slog.Logger
	out      io.Writer
	errOut   io.Writer
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("bankanalyzer", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to the YAML config file (default "+config.DefaultFile+")")
	verbose := fs.Bool("v", false, "verbose output")
	debug := fs.Bool("debug", false, "debug output")
	fs.Usage = func() { printUsage(stderr) }

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() == 0 {
		printUsage(stderr)
		return 1
	}
	command, cmdArgs := fs.Arg(0), fs.Args()[1:]

	switch command {
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	case "version":
		runVersion(stdout)
		return 0
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	level := logging.ParseLevel(cfg.LogLevel, slog.LevelWarn)
	switch {
	case *debug:
		level = slog.LevelDebug
	case *verbose:
		level = slog.LevelInfo
	}
	logger := logging.New(logging.Config{Level: level, JSON: cfg.LogJSON, Output: stderr})

	registry, err := newRegistry()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	logger.Debug("plugins registered",
		"readers", len(registry.ListReaders()),
		"writers", len(registry.ListWriters()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{cfg: cfg, registry: registry, logger: logger, out: stdout, errOut: stderr}

	var cmdErr error
	switch command {
	case "analyze":
		cmdErr = a.runAnalyze(ctx, cmdArgs)
	case "reprocess":
		cmdErr = a.runReprocess(ctx, cmdArgs)
	case "parse":
		cmdErr = a.runParse(cmdArgs)
	case "detect":
		cmdErr = a.runDetect(cmdArgs)
	case "history":
		cmdErr = a.runHistory(cmdArgs)
	case "top":
		cmdErr = a.runTop(ctx, cmdArgs)
	case "overrides":
		cmdErr = a.runOverrides(cmdArgs)
	case "rules":
		cmdErr = a.runRules(cmdArgs)
	case "status":
		cmdErr = a.runStatus()
	case "setup":
		cmdErr = a.runSetup(ctx, cmdArgs)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", command)
		printUsage(stderr)
		return 1
	}

	if cmdErr != nil {
		if !errors.Is(cmdErr, flag.ErrHelp) {
			fmt.Fprintf(stderr, "Error: %v\n", cmdErr)
		}
		return 1
	}
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Bank Analyzer")
	fmt.Fprintln(w, "\nUsage:")
	fmt.Fprintln(w, "  bankanalyzer [-config FILE] [-v] [-debug] <command> [options]")
	fmt.Fprintln(w, "\nCommands:")
	fmt.Fprintln(w, "  analyze     Categorize statements and write reports")
	fmt.Fprintln(w, "  reprocess   Run analyze over every archived statement")
	fmt.Fprintln(w, "  parse       Show what a statement contains, without categorization")
	fmt.Fprintln(w, "  detect      Detect the bank format of a statement")
	fmt.Fprintln(w, "  history     Count counterparties across archived statements")
	fmt.Fprintln(w, "  top         Show the largest expense categories")
	fmt.Fprintln(w, "  overrides   List, add or remove manual category overrides")
	fmt.Fprintln(w, "  rules       List or add categorization rules")
	fmt.Fprintln(w, "  status      Check configuration and authentication")
	fmt.Fprintln(w, "  setup       Authorize access to Google Sheets")
	fmt.Fprintln(w, "  version     Show version information")
	fmt.Fprintln(w, "\nRun 'bankanalyzer <command> -h' for more information on a command.")
}

func runVersion(w io.Writer) {
	fmt.Fprintf(w, "Bank Analyzer v%s\n", version)
	fmt.Fprintln(w, "Supported banks: PKO BP, Alior Bank")
}

// newRegistry registers the built-in plugins. Reader order is detection
// order.
func newRegistry() (*plugins.Registry, error) {
	registry := plugins.NewRegistry()

	for _, p := range []plugins.ReaderPlugin{&pkoplugin.Plugin{}, &aliorplugin.Plugin{}} {
		if err := registry.RegisterReader(p); err != nil {
			return nil, fmt.Errorf("registering %s reader: %w", p.Name(), err)
		}
	}

	for _, p := range []plugins.WriterPlugin{
		&jsonplugin.Plugin{},
		&csvplugin.Plugin{},
		&sheetsplugin.Plugin{},
		&postgresplugin.Plugin{},
		&sqliteplugin.Plugin{},
		&chartplugin.Plugin{},
	} {
		if err := registry.RegisterWriter(p); err != nil {
			return nil, fmt.Errorf("registering %s writer: %w", p.Name(), err)
		}
	}

	return registry, nil
}

func (a *app) newFlagSet(name, usage string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: bankanalyzer %s\n\nOptions:\n", usage)
		fs.PrintDefaults()
	}
	return fs
}

func (a *app) detector() *reader.Detector {
	return reader.NewDetector(a.registry.Readers(a.logger), a.logger)
}

func (a *app) writerNames() []string {
	var names []string
	for _, p := range a.registry.ListWriters() {
		names = append(names, p.Name())
	}
	return names
}

// oauthClient returns an authorized client when any of the writers needs
// one, nil otherwise.
func (a *app) oauthClient(ctx context.Context, writers []string, interactive bool) (*http.Client, error) {
	scopes, err := a.registry.Scopes(writers...)
	if err != nil {
		return nil, err
	}
	if len(scopes) == 0 {
		return nil, nil
	}

	httpClient, err := client.New(ctx, client.Options{
		SecretFile:  a.cfg.ClientSecretFile,
		TokenFile:   a.cfg.TokenFile,
		Scopes:      scopes,
		Interactive: interactive,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("creating http client: %w", err)
	}
	return httpClient, nil
}

// splitNames splits a comma separated list, dropping blanks.
func splitNames(s string) []string {
	var names []string
	for _, n := range strings.Split(s, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	return names
}
