package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/identity-matcher/internal/config"
	"github.com/kozaktomas/identity-matcher/internal/database"
	"github.com/kozaktomas/identity-matcher/internal/health"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that every integration is configured and reachable",
	Long: `Ping the database, check the oracle and content store credentials and
ask the ledger RPC which network it serves.`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().Bool("json", false, "Output as JSON")
}

func runCheck(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	svc := newServices(config.Load())
	defer svc.Close()

	ctx := context.Background()
	checker := &health.Checker{Config: svc.cfg}

	if err := svc.openDatabase(ctx); err != nil {
		checker.Database = func(context.Context) error { return err }
	} else {
		checker.Database = database.Ping
	}
	if svc.ledgerConfigured() {
		if client, err := svc.ledgerClient(ctx); err == nil {
			checker.Ledger = client
		} else {
			checker.Ledger = failedChain{err}
		}
	}

	checks := checker.Run(ctx)
	if jsonOutput {
		if err := outputJSON(checks); err != nil {
			return err
		}
	} else {
		for _, c := range checks {
			status := "OK  "
			if !c.OK {
				status = "FAIL"
			}
			fmt.Printf("[%s] %-9s %s\n", status, c.Name, c.Detail)
		}
	}

	if !health.Healthy(checks) {
		return errors.New("some checks failed")
	}
	return nil
}

// failedChain reports a dial error as the ledger check result
type failedChain struct{ err error }

func (f failedChain) ChainID(context.Context) (int64, error) {
	return 0, f.err
}
