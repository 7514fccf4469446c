package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/ArionMiles/bankanalyzer/pkg/client"
)

// runSetup handles the OAuth setup flow.
func (a *app) runSetup(ctx context.Context, args []string) error {
	flags := a.newFlagSet("setup", "setup [options]")
	force := flags.Bool("force", false, "re-authenticate even if a token exists")
	if err := flags.Parse(args); err != nil {
		return err
	}

	fmt.Fprintln(a.out, "=== Bank Analyzer Setup ===")
	fmt.Fprintln(a.out)

	secretsPath := a.cfg.ClientSecretFile
	if _, err := os.Stat(secretsPath); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("credentials file not found: %s\n\nTo get your credentials:\n"+
			"1. Go to https://console.cloud.google.com/apis/credentials\n"+
			"2. Create an OAuth 2.0 Client ID (Desktop application)\n"+
			"3. Download the JSON file and save it as '%s'", secretsPath, secretsPath)
	}

	tokenFile := a.cfg.TokenFile
	if !*force && client.HasToken(tokenFile) {
		fmt.Fprintf(a.out, "Already authenticated! Token file exists: %s\n", tokenFile)
		fmt.Fprintln(a.out)
		fmt.Fprintln(a.out, "To re-authenticate, run: bankanalyzer setup -force")
		return nil
	}

	if *force {
		if err := os.Remove(tokenFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			a.logger.Warn("failed to remove existing token", "error", err)
		}
		fmt.Fprintln(a.out, "Forcing re-authentication...")
		fmt.Fprintln(a.out)
	}

	fmt.Fprintln(a.out, "This will set up OAuth authentication with Google.")
	fmt.Fprintln(a.out)
	fmt.Fprintln(a.out, "Required permissions:")
	fmt.Fprintln(a.out, "  - Sheets: Read and write spreadsheets")
	fmt.Fprintln(a.out)
	fmt.Fprintln(a.out, "Starting authentication...")
	fmt.Fprintln(a.out)

	// Authorize every writer that needs OAuth, so enabling one later does
	// not require another setup.
	httpClient, err := a.oauthClient(ctx, a.writerNames(), true)
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}
	if httpClient == nil {
		fmt.Fprintln(a.out, "No writer needs OAuth, nothing to do.")
		return nil
	}

	fmt.Fprintln(a.out)
	fmt.Fprintln(a.out, "=== Setup Complete ===")
	fmt.Fprintln(a.out)
	fmt.Fprintf(a.out, "Token saved to: %s\n", tokenFile)
	fmt.Fprintln(a.out)
	fmt.Fprintln(a.out, "Next steps:")
	fmt.Fprintln(a.out, "  1. Add 'sheets' to writers in your config file")
	fmt.Fprintln(a.out, "  2. Run 'bankanalyzer analyze FILES...'")
	fmt.Fprintln(a.out)
	return nil
}
