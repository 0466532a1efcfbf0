package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/identity-matcher/internal/config"
	"github.com/kozaktomas/identity-matcher/internal/database"
	"github.com/kozaktomas/identity-matcher/internal/verification"
)

var recordsCmd = &cobra.Command{
	Use:   "records <wallet-address>",
	Short: "List verification records of a wallet, newest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecords,
}

func init() {
	rootCmd.AddCommand(recordsCmd)

	recordsCmd.Flags().Int("limit", 20, "Maximum number of records to show")
	recordsCmd.Flags().Bool("registrations", false, "List ledger registrations instead")
	recordsCmd.Flags().Bool("json", false, "Output as JSON")
}

func runRecords(cmd *cobra.Command, args []string) error {
	limit := mustGetInt(cmd, "limit")
	registrations := mustGetBool(cmd, "registrations")
	jsonOutput := mustGetBool(cmd, "json")

	if !common.IsHexAddress(args[0]) {
		return verification.ErrInvalidAddress
	}
	address := common.HexToAddress(args[0]).Hex()

	svc := newServices(config.Load())
	defer svc.Close()

	ctx := context.Background()
	if err := svc.openDatabase(ctx); err != nil {
		return err
	}

	if registrations {
		return listRegistrations(ctx, address, jsonOutput)
	}

	store, err := database.GetRecordStore(ctx)
	if err != nil {
		return err
	}
	records, err := store.ListVerificationRecords(ctx, address, limit)
	if err != nil {
		return fmt.Errorf("failed to list verification records: %w", err)
	}

	if jsonOutput {
		return outputJSON(records)
	}
	if len(records) == 0 {
		fmt.Printf("No verification records for %s\n", address)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CREATED\tSTATUS\tPROFILE\tSCORE\tCONTENT ID")
	fmt.Fprintln(w, "-------\t------\t-------\t-----\t----------")
	for _, r := range records {
		profile := "-"
		if r.ProfileID != 0 {
			profile = fmt.Sprintf("%d", r.ProfileID)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", r.CreatedAt.Format("2006-01-02 15:04:05"), r.Status, profile, r.MatchScore, r.ContentID)
	}
	w.Flush()
	return nil
}

func listRegistrations(ctx context.Context, address string, jsonOutput bool) error {
	store, err := database.GetRegistrationStore(ctx)
	if err != nil {
		return err
	}
	regs, err := store.ListRegistrations(ctx, address)
	if err != nil {
		return fmt.Errorf("failed to list registrations: %w", err)
	}

	if jsonOutput {
		return outputJSON(regs)
	}
	if len(regs) == 0 {
		fmt.Printf("No registrations for %s\n", address)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CREATED\tPROFILE\tSCORE\tTX\tBLOCK")
	fmt.Fprintln(w, "-------\t-------\t-----\t--\t-----")
	for _, r := range regs {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%d\n", r.CreatedAt.Format("2006-01-02 15:04:05"), r.ProfileID, r.MatchScore, r.TxHash, r.BlockNumber)
	}
	w.Flush()
	return nil
}
