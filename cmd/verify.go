package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/identity-matcher/internal/config"
	"github.com/kozaktomas/identity-matcher/internal/ledger"
	"github.com/kozaktomas/identity-matcher/internal/matcher"
	"github.com/kozaktomas/identity-matcher/internal/storage"
	"github.com/kozaktomas/identity-matcher/internal/verification"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [image]",
	Short: "Verify a candidate image against the reference catalog",
	Long: `Store the candidate image in the content store, compare it against every
reference image and record the best match for the wallet address.

With --register a matched outcome is committed to the identity registry
right away. Use --cid to verify an image that is already stored.

Example:
  identity-matcher verify --address 0x71C7...976F selfie.jpg
  identity-matcher verify --address 0x71C7...976F --register selfie.jpg
  identity-matcher verify --address 0x71C7...976F --cid bafybeigdyr...`,
	Args: cobra.MaximumNArgs(1),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().String("address", "", "Wallet address of the person being verified (required)")
	verifyCmd.Flags().String("cid", "", "Content id of an already stored candidate image")
	verifyCmd.Flags().Bool("register", false, "Commit a matched outcome to the ledger")
	verifyCmd.Flags().Bool("json", false, "Output as JSON")
	_ = verifyCmd.MarkFlagRequired("address")
}

// verifyOutput is the JSON form of a finished verification
type verifyOutput struct {
	Result  *verification.Result `json:"result"`
	Receipt *ledger.Receipt      `json:"receipt,omitempty"`
}

func runVerify(cmd *cobra.Command, args []string) error {
	address := mustGetString(cmd, "address")
	cid := mustGetString(cmd, "cid")
	register := mustGetBool(cmd, "register")
	jsonOutput := mustGetBool(cmd, "json")

	if (len(args) == 0) == (cid == "") {
		return errors.New("pass either an image path or --cid")
	}

	svc := newServices(config.Load())
	defer svc.Close()

	ctx := context.Background()
	if err := svc.openDatabase(ctx); err != nil {
		return err
	}
	pipeline, err := svc.pipeline(ctx, verification.NewAttempts(time.Hour))
	if err != nil {
		return err
	}

	// Fail before spending oracle calls when the result could not be registered anyway.
	var registrar *verification.Registrar
	if register {
		if registrar, err = svc.registrar(ctx); err != nil {
			return err
		}
	}

	hooks, finish := verifyHooks(jsonOutput)
	start := time.Now()

	var res *verification.Result
	if cid != "" {
		res, err = pipeline.VerifyContent(ctx, address, cid, svc.cfg.Storage.ContentURL(cid), hooks)
	} else {
		res, err = verifyFile(ctx, pipeline, address, args[0], hooks)
	}
	finish()
	if err != nil {
		return err
	}

	if res.RecordErr != nil {
		fmt.Fprintf(os.Stderr, "Warning: verification record was not stored: %v\n", res.RecordErr)
	}

	var receipt *ledger.Receipt
	var registerErr error
	if register {
		receipt, registerErr = registrar.Register(ctx, address, res.Outcome)
	}

	if jsonOutput {
		if err := outputJSON(verifyOutput{Result: res, Receipt: receipt}); err != nil {
			return err
		}
		return registerErr
	}

	printVerification(res, time.Since(start))

	if register {
		if registerErr != nil {
			return fmt.Errorf("registration failed: %w", registerErr)
		}
		fmt.Printf("\nRegistered in tx %s (block %d, gas %d)\n", receipt.TxHash, receipt.BlockNumber, receipt.GasUsed)
	}
	return nil
}

func verifyFile(ctx context.Context, pipeline *verification.Pipeline, address, path string, hooks verification.Hooks) (*verification.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("cannot stat %s: %w", path, err)
	}
	return pipeline.Verify(ctx, address, filepath.Base(path), f, info.Size(), hooks)
}

// verifyHooks renders upload and comparison progress bars. The returned
// func clears the current bar.
func verifyHooks(quiet bool) (verification.Hooks, func()) {
	if quiet {
		return verification.Hooks{}, func() {}
	}

	var upload, compare *progressbar.ProgressBar
	finish := func() {
		if upload != nil {
			_ = upload.Finish()
		}
		if compare != nil {
			_ = compare.Finish()
		}
		fmt.Println()
	}

	return verification.Hooks{
		OnUploadProgress: func(percent int) {
			if upload == nil {
				upload = newProgressBar(100, "Uploading", "%")
			}
			_ = upload.Set(percent)
		},
		OnUploaded: func(r *storage.UploadResult) {
			if upload != nil {
				_ = upload.Finish()
			}
			fmt.Printf("\nStored candidate as %s\n", r.ContentID)
		},
		OnCompared: func(p matcher.ProgressInfo) {
			if compare == nil {
				compare = newProgressBar(int64(p.Total), "Comparing", "references")
			}
			_ = compare.Add(1)
		},
	}, finish
}

func printVerification(res *verification.Result, elapsed time.Duration) {
	if res.Selection != nil {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PROFILE\tSCORE\tCONFIDENCE\tEFFECTIVE\tMATCH\tTIME")
		fmt.Fprintln(w, "-------\t-----\t----------\t---------\t-----\t----")
		for _, c := range res.Selection.Comparisons {
			j := c.Judgement
			match := "no"
			switch {
			case j.Degraded:
				match = "failed"
			case j.IsMatch:
				match = "yes"
			}
			fmt.Fprintf(w, "%d\t%.0f\t%.0f\t%.1f\t%s\t%s\n",
				c.Reference.ProfileID, j.MatchScore, j.Confidence, matcher.EffectiveScore(j), match, formatDuration(c.Duration))
		}
		w.Flush()
	}

	j := res.Outcome.Judgement
	fmt.Println()
	if j.IsMatch && j.MatchedProfile != nil {
		fmt.Printf("Verified: matched profile %d (score %.0f, confidence %.0f)\n", *j.MatchedProfile, j.MatchScore, j.Confidence)
	} else {
		fmt.Printf("Rejected: no reference image matched\n")
	}
	if j.Analysis != "" {
		fmt.Printf("Analysis: %s\n", j.Analysis)
	}
	if res.Record != nil && res.RecordErr == nil {
		fmt.Printf("Record:   %s\n", res.Record.ID)
	}
	fmt.Printf("Duration: %s\n", formatDuration(elapsed))
}
