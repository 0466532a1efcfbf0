package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/identity-matcher/internal/catalog"
	"github.com/kozaktomas/identity-matcher/internal/config"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the reference image catalog",
	Long:  `Add reference images for identity profiles, list the catalog and publish a snapshot of it.`,
}

var catalogAddCmd = &cobra.Command{
	Use:   "add <path> [path...]",
	Short: "Add reference images for a profile",
	Long: `Upload reference images to the content store and bind them to a profile.

Paths may be image files or folders. Folders contribute the image files they
contain (non-recursive unless -r is given). Every file is processed on its
own: a failed file is reported and never undoes files added before it.

Example:
  identity-matcher catalog add --profile 1 alice-front.jpg alice-side.jpg
  identity-matcher catalog add --profile 2 -r /path/to/bob`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCatalogAdd,
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List reference images ordered by profile",
	RunE:  runCatalogList,
}

var catalogPublishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish a catalog snapshot to the content store and the ledger",
	Long: `Upload a JSON manifest of every reference image to the content store and
store its content id in the identity registry. Only the registry admin may
update the ledger; use --no-ledger to upload the manifest only.`,
	RunE: runCatalogPublish,
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogAddCmd, catalogListCmd, catalogPublishCmd)

	catalogAddCmd.Flags().Int64("profile", 0, "Profile id the images belong to (required)")
	catalogAddCmd.Flags().BoolP("recursive", "r", false, "Search folders recursively")
	catalogAddCmd.Flags().Bool("json", false, "Output as JSON")
	_ = catalogAddCmd.MarkFlagRequired("profile")

	catalogListCmd.Flags().Bool("json", false, "Output as JSON")

	catalogPublishCmd.Flags().Bool("no-ledger", false, "Upload the manifest without updating the ledger")
	catalogPublishCmd.Flags().Bool("json", false, "Output as JSON")
}

func runCatalogAdd(cmd *cobra.Command, args []string) error {
	profileID := mustGetInt64(cmd, "profile")
	recursive := mustGetBool(cmd, "recursive")
	jsonOutput := mustGetBool(cmd, "json")

	if profileID <= 0 {
		return catalog.ErrInvalidProfileID
	}

	filePaths, err := collectImageFiles(args, recursive)
	if err != nil {
		return err
	}
	if len(filePaths) == 0 {
		fmt.Println("No image files found.")
		return nil
	}

	files := make([]catalog.File, 0, len(filePaths))
	for _, path := range filePaths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("cannot read %s: %w", path, err)
		}
		files = append(files, catalog.File{Name: filepath.Base(path), Data: data})
	}

	svc := newServices(config.Load())
	defer svc.Close()

	ctx := context.Background()
	if err := svc.openDatabase(ctx); err != nil {
		return err
	}
	cat, err := svc.catalog(ctx, true)
	if err != nil {
		return err
	}

	var bar *progressbar.ProgressBar
	if !jsonOutput {
		fmt.Printf("Adding %d image(s) to profile %d\n\n", len(files), profileID)
		bar = newProgressBar(int64(len(files)), "Uploading", "files")
	}

	results, err := cat.AddBatch(ctx, profileID, files, func(done, total int, r catalog.BatchResult) {
		if bar != nil {
			_ = bar.Add(1)
		}
	})
	if err != nil {
		return err
	}

	added, failed := catalog.Summarize(results)
	if jsonOutput {
		return outputJSON(map[string]any{
			"profile_id": profileID,
			"added":      added,
			"failed":     failed,
			"results":    results,
		})
	}

	fmt.Println()
	for _, r := range results {
		if r.Err != nil {
			fmt.Printf("Failed: %s: %v\n", r.FileName, r.Err)
		} else {
			fmt.Printf("Added:  %s -> %s\n", r.FileName, r.ReferenceImage.ContentID)
		}
	}
	fmt.Printf("\nDone! Added %d, failed %d\n", added, failed)

	if added == 0 {
		return errors.New("no reference images were added")
	}
	return nil
}

func runCatalogList(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	svc := newServices(config.Load())
	defer svc.Close()

	ctx := context.Background()
	if err := svc.openDatabase(ctx); err != nil {
		return err
	}
	cat, err := svc.catalog(ctx, false)
	if err != nil {
		return err
	}

	images, err := cat.List(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		return outputJSON(images)
	}

	if len(images) == 0 {
		fmt.Println("Catalog is empty.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROFILE\tCONTENT ID\tADDED")
	fmt.Fprintln(w, "-------\t----------\t-----")
	for _, img := range images {
		fmt.Fprintf(w, "%d\t%s\t%s\n", img.ProfileID, img.ContentID, img.CreatedAt.Format("2006-01-02 15:04"))
	}
	w.Flush()

	fmt.Printf("\nTotal: %d reference images\n", len(images))
	return nil
}

func runCatalogPublish(cmd *cobra.Command, args []string) error {
	noLedger := mustGetBool(cmd, "no-ledger")
	jsonOutput := mustGetBool(cmd, "json")

	svc := newServices(config.Load())
	defer svc.Close()

	ctx := context.Background()
	if err := svc.openDatabase(ctx); err != nil {
		return err
	}
	cat, err := svc.catalog(ctx, true)
	if err != nil {
		return err
	}

	var publisher catalog.SnapshotPublisher
	if !noLedger {
		client, err := svc.ledgerClient(ctx)
		if err != nil {
			return err
		}
		publisher = client
	}

	result, err := cat.Publish(ctx, publisher)
	if result != nil && !jsonOutput {
		fmt.Printf("Manifest with %d image(s) stored at %s\n", result.Images, result.URL)
	}
	if err != nil {
		return fmt.Errorf("failed to publish catalog: %w", err)
	}

	if jsonOutput {
		return outputJSON(result)
	}
	if result.Receipt != nil {
		fmt.Printf("Ledger updated in tx %s (block %d)\n", result.Receipt.TxHash, result.Receipt.BlockNumber)
	}
	return nil
}
