package main

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/ArionMiles/bankanalyzer/pkg/api"
	"github.com/ArionMiles/bankanalyzer/pkg/overrides"
	"github.com/ArionMiles/bankanalyzer/pkg/rules"
)

func (a *app) runOverrides(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: bankanalyzer overrides list|add|remove")
	}

	switch args[0] {
	case "list":
		return a.listOverrides(args[1:])
	case "add":
		return a.addOverride(args[1:])
	case "remove":
		return a.removeOverride(args[1:])
	default:
		return fmt.Errorf("unknown overrides command %q (want list, add or remove)", args[0])
	}
}

func (a *app) listOverrides(args []string) error {
	fs := a.newFlagSet("overrides list", "overrides list [options]")
	file := fs.String("file", a.cfg.OverridesFile, "manual overrides file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	entries, err := overrides.Open(*file, a.logger).Entries()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintf(a.out, "No overrides in %s\n", *file)
		return nil
	}

	table := tablewriter.NewWriter(a.out)
	table.SetHeader([]string{"Transaction", "Category", "Subcategory", "Note", "Added"})
	for _, e := range entries {
		table.Append([]string{e.TransactionID, e.CategoryMain, e.CategorySub, e.Note, e.DateAdded})
	}
	table.Render()
	return nil
}

func (a *app) addOverride(args []string) error {
	fs := a.newFlagSet("overrides add", "overrides add [options] ID MAIN SUB")
	file := fs.String("file", a.cfg.OverridesFile, "manual overrides file")
	note := fs.String("note", "", "note stored with the override")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 3 {
		fs.Usage()
		return errors.New("expected transaction id, category and subcategory")
	}

	id := fs.Arg(0)
	c := api.Category{Main: fs.Arg(1), Sub: fs.Arg(2)}
	if err := overrides.Open(*file, a.logger).Add(id, c, *note); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Override saved: %s -> %s\n", id, c.Key())
	return nil
}

func (a *app) removeOverride(args []string) error {
	fs := a.newFlagSet("overrides remove", "overrides remove [options] ID")
	file := fs.String("file", a.cfg.OverridesFile, "manual overrides file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("expected a transaction id")
	}

	id := fs.Arg(0)
	removed, err := overrides.Open(*file, a.logger).Remove(id)
	if err != nil {
		return err
	}
	if !removed {
		fmt.Fprintf(a.out, "No override for %s\n", id)
		return nil
	}
	fmt.Fprintf(a.out, "Override removed: %s\n", id)
	return nil
}

func (a *app) runRules(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: bankanalyzer rules list|add")
	}

	switch args[0] {
	case "list":
		return a.listRules(args[1:])
	case "add":
		return a.addRule(args[1:])
	default:
		return fmt.Errorf("unknown rules command %q (want list or add)", args[0])
	}
}

func (a *app) listRules(args []string) error {
	fs := a.newFlagSet("rules list", "rules list [options]")
	file := fs.String("rules", a.cfg.RulesFile, "rules file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	engine := rules.Load(*file, a.logger)

	fmt.Fprintf(a.out, "Rules (%s):\n", *file)
	table := tablewriter.NewWriter(a.out)
	table.SetHeader([]string{"Priority", "Name", "Field", "Match", "Pattern", "Category"})
	for _, d := range engine.Rules() {
		c := api.Category{Main: d.CategoryMain, Sub: d.CategorySub}
		table.Append([]string{strconv.Itoa(d.Priority), d.Name, string(d.Field), string(d.MatchType), d.Pattern, c.Key()})
	}
	table.Render()

	exclusions := engine.Exclusions()
	if len(exclusions) == 0 {
		return nil
	}
	fmt.Fprintln(a.out, "\nExclusions:")
	table = tablewriter.NewWriter(a.out)
	table.SetHeader([]string{"Name", "Field", "Match", "Pattern", "Reason"})
	for _, d := range exclusions {
		table.Append([]string{d.Name, string(d.Field), string(d.MatchType), d.Pattern, d.Reason})
	}
	table.Render()
	return nil
}

func (a *app) addRule(args []string) error {
	fs := a.newFlagSet("rules add", "rules add [options]")
	file := fs.String("rules", a.cfg.RulesFile, "rules file")
	var def rules.Definition
	fs.StringVar(&def.Name, "name", "", "rule name")
	fs.StringVar(&def.Pattern, "pattern", "", "text to match (required)")
	fs.StringVar((*string)(&def.Field), "field", string(rules.FieldCounterparty), "field to match: counterparty or description")
	fs.StringVar((*string)(&def.MatchType), "match", string(rules.MatchContains), "contains, exact, startswith, endswith or regex")
	fs.BoolVar(&def.CaseSensitive, "case-sensitive", false, "match case")
	fs.IntVar(&def.Priority, "priority", 0, "higher priorities are tried first")
	fs.StringVar(&def.CategoryMain, "main", "", "category (required)")
	fs.StringVar(&def.CategorySub, "sub", "", "subcategory (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if def.MatchType == rules.MatchRegex {
		if _, err := regexp.Compile(def.Pattern); err != nil {
			return fmt.Errorf("%w: %v", rules.ErrInvalidRule, err)
		}
	}

	engine := rules.Load(*file, a.logger)
	if err := engine.AddRule(def); err != nil {
		return err
	}
	if err := rules.AppendRule(*file, def); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Rule added to %s (%d rules active)\n", *file, len(engine.Rules()))
	return nil
}
