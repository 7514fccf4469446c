package main

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/ArionMiles/bankanalyzer/pkg/client"
	"github.com/ArionMiles/bankanalyzer/pkg/overrides"
	"github.com/ArionMiles/bankanalyzer/pkg/rules"
)

// runStatus checks the configuration and authentication status.
func (a *app) runStatus() error {
	fmt.Fprintln(a.out, "=== Bank Analyzer Status ===")
	fmt.Fprintln(a.out)

	allGood := true

	a.checkConfig(&allGood)
	a.checkRules(&allGood)
	a.checkOverrides()
	a.checkWriters(&allGood)

	fmt.Fprintln(a.out)
	if allGood {
		fmt.Fprintln(a.out, "Status: ✓ Ready to run")
		fmt.Fprintln(a.out)
		fmt.Fprintln(a.out, "Run 'bankanalyzer analyze FILES...' to categorize statements.")
	} else {
		fmt.Fprintln(a.out, "Status: ✗ Configuration issues detected")
		fmt.Fprintln(a.out)
		fmt.Fprintln(a.out, "Fix the issues above, then run 'bankanalyzer status' again.")
	}
	return nil
}

func (a *app) checkConfig(allGood *bool) {
	if a.cfg.File == "" {
		fmt.Fprintln(a.out, "Config file: built-in defaults")
	} else {
		fmt.Fprintf(a.out, "Config file: ✓ %s\n", a.cfg.File)
	}

	if err := a.cfg.Validate(a.writerNames()); err != nil {
		fmt.Fprintf(a.out, "Config: ✗ %v\n", err)
		*allGood = false
	}
	fmt.Fprintf(a.out, "Archive directory: %s\n", a.cfg.ProcessedDir)
	fmt.Fprintf(a.out, "Output directory: %s\n", a.cfg.OutputDir)
}

func (a *app) checkRules(allGood *bool) {
	fmt.Fprintf(a.out, "Rules file (%s): ", a.cfg.RulesFile)
	if _, err := os.Stat(a.cfg.RulesFile); err != nil {
		fmt.Fprintln(a.out, "✗ Not found (every transaction will be uncategorized)")
		*allGood = false
		return
	}

	engine := rules.Load(a.cfg.RulesFile, a.logger)
	fmt.Fprintf(a.out, "✓ %d rules, %d exclusions\n", len(engine.Rules()), len(engine.Exclusions()))
}

func (a *app) checkOverrides() {
	fmt.Fprintf(a.out, "Overrides file (%s): ", a.cfg.OverridesFile)
	if _, err := os.Stat(a.cfg.OverridesFile); err != nil {
		fmt.Fprintln(a.out, "none yet")
		return
	}
	fmt.Fprintf(a.out, "✓ %d overrides\n", overrides.Open(a.cfg.OverridesFile, a.logger).Len())
}

func (a *app) checkWriters(allGood *bool) {
	fmt.Fprintln(a.out)
	fmt.Fprintln(a.out, "Writers:")
	for _, p := range a.registry.ListWriters() {
		mark := " "
		if slices.Contains(a.cfg.Writers, p.Name()) {
			mark = "*"
		}
		fmt.Fprintf(a.out, "  %s %-9s %s\n", mark, p.Name(), p.Description())
	}
	fmt.Fprintln(a.out, "  (* = enabled)")

	scopes, err := a.registry.Scopes(a.cfg.Writers...)
	if err != nil || len(scopes) == 0 {
		return
	}

	fmt.Fprintln(a.out)
	fmt.Fprintf(a.out, "OAuth scopes: %s\n", strings.Join(scopes, ", "))
	fmt.Fprintf(a.out, "Client secret (%s): ", a.cfg.ClientSecretFile)
	if _, err := os.Stat(a.cfg.ClientSecretFile); err != nil {
		fmt.Fprintln(a.out, "✗ Not found")
		*allGood = false
	} else {
		fmt.Fprintln(a.out, "✓ Found")
	}

	fmt.Fprintf(a.out, "OAuth token (%s): ", a.cfg.TokenFile)
	if client.HasToken(a.cfg.TokenFile) {
		fmt.Fprintln(a.out, "✓ Found")
	} else {
		fmt.Fprintln(a.out, "✗ Not found (run 'bankanalyzer setup')")
		*allGood = false
	}
}
