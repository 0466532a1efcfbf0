package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "identity-matcher",
	Short: "Verify a person against a reference catalog and register the match on-chain",
	Long: `Identity Matcher stores a candidate image in a content-addressed store,
asks a vision model oracle to compare it against every reference image in
the catalog, records the best match and commits it to an on-chain identity
registry on request.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
