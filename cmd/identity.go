package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/identity-matcher/internal/config"
	"github.com/kozaktomas/identity-matcher/internal/ledger"
)

var identityCmd = &cobra.Command{
	Use:   "identity <wallet-address | profile-id>",
	Short: "Look up a registered identity on the ledger",
	Long: `Read the identity registry by wallet address or by profile id.

Example:
  identity-matcher identity 0x71C7656EC7ab88b098defB751B7401B5f6d8976F
  identity-matcher identity 42
  identity-matcher identity --registry`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIdentity,
}

func init() {
	rootCmd.AddCommand(identityCmd)

	identityCmd.Flags().Bool("registry", false, "Show the registry admin and the published catalog snapshot")
	identityCmd.Flags().Bool("json", false, "Output as JSON")
}

func runIdentity(cmd *cobra.Command, args []string) error {
	showRegistry := mustGetBool(cmd, "registry")
	jsonOutput := mustGetBool(cmd, "json")

	if !showRegistry && len(args) == 0 {
		return errors.New("pass a wallet address, a profile id or --registry")
	}

	svc := newServices(config.Load())
	defer svc.Close()

	ctx := context.Background()
	client, err := svc.ledgerClient(ctx)
	if err != nil {
		return err
	}

	if showRegistry {
		return printRegistry(ctx, client, jsonOutput)
	}

	var entry *ledger.Entry
	key := args[0]
	switch {
	case common.IsHexAddress(key):
		entry, err = client.IdentityOf(ctx, common.HexToAddress(key))
	default:
		profileID, parseErr := strconv.ParseInt(key, 10, 64)
		if parseErr != nil || profileID <= 0 {
			return fmt.Errorf("%q is neither a wallet address nor a profile id", key)
		}
		entry, err = client.IdentityByProfile(ctx, profileID)
	}
	if err != nil {
		return err
	}

	if !entry.Registered() {
		if jsonOutput {
			return outputJSON(map[string]any{"registered": false})
		}
		fmt.Printf("No identity registered for %s\n", key)
		return nil
	}

	if jsonOutput {
		return outputJSON(entry)
	}
	fmt.Printf("Profile:     %d\n", entry.ProfileID)
	fmt.Printf("Content ID:  %s\n", entry.ContentID)
	fmt.Printf("Hashed URL:  %s\n", entry.HashedURL)
	fmt.Printf("Match score: %d\n", entry.MatchScore)
	fmt.Printf("Registered:  %s\n", entry.Timestamp.Format("2006-01-02 15:04:05 MST"))
	return nil
}

func printRegistry(ctx context.Context, client *ledger.Client, jsonOutput bool) error {
	admin, err := client.Admin(ctx)
	if err != nil {
		return err
	}
	snapshot, err := client.ReferenceImagesStorage(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		return outputJSON(map[string]string{
			"contract":                 client.ContractAddress().Hex(),
			"admin":                    admin.Hex(),
			"reference_images_storage": snapshot,
		})
	}
	fmt.Printf("Contract: %s\n", client.ContractAddress().Hex())
	fmt.Printf("Admin:    %s\n", admin.Hex())
	if snapshot == "" {
		fmt.Printf("Catalog:  not published\n")
	} else {
		fmt.Printf("Catalog:  %s\n", snapshot)
	}
	return nil
}
