package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/identity-matcher/internal/config"
	"github.com/kozaktomas/identity-matcher/internal/database"
	"github.com/kozaktomas/identity-matcher/internal/health"
	"github.com/kozaktomas/identity-matcher/internal/verification"
	"github.com/kozaktomas/identity-matcher/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the Identity Matcher API server.
The server accepts candidate images, runs verifications as background jobs
with progress streamed over SSE, lists verification records and commits
matched identities to the ledger.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Duration("attempt-ttl", 30*time.Minute, "How long a finished verification stays registrable")
}

// resolveServeHostPort resolves port and host from flags and environment variables.
func resolveServeHostPort(cmd *cobra.Command) (int, string) {
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")

	if envPort := os.Getenv("WEB_PORT"); envPort != "" {
		fmt.Sscanf(envPort, "%d", &port)
	}
	if envHost := os.Getenv("WEB_HOST"); envHost != "" {
		host = envHost
	}
	return port, host
}

// buildServerDeps wires every service the API needs. The ledger is optional:
// without it registration and identity lookups answer 503.
func buildServerDeps(ctx context.Context, svc *services, attemptTTL time.Duration) (web.Dependencies, error) {
	attempts := verification.NewAttempts(attemptTTL)

	pipeline, err := svc.pipeline(ctx, attempts)
	if err != nil {
		return web.Dependencies{}, err
	}
	cat, err := svc.catalog(ctx, true)
	if err != nil {
		return web.Dependencies{}, err
	}
	references, err := database.GetCatalogReader(ctx)
	if err != nil {
		return web.Dependencies{}, err
	}
	records, err := database.GetRecordStore(ctx)
	if err != nil {
		return web.Dependencies{}, err
	}

	deps := web.Dependencies{
		Verifier:   pipeline,
		Catalog:    cat,
		References: references,
		Records:    records,
		Attempts:   attempts,
		Gatherer:   svc.registry,
		Logger:     svc.logger,
		Health:     &health.Checker{Config: svc.cfg, Database: database.Ping},
	}

	if svc.ledgerConfigured() {
		registrar, err := svc.registrar(ctx)
		if err != nil {
			return web.Dependencies{}, err
		}
		deps.Registrar = registrar
		deps.Identities = svc.ledger
		deps.Health.Ledger = svc.ledger
		if wallet, ok := svc.ledger.WalletAddress(); ok {
			fmt.Printf("Ledger wallet %s on chain %d\n", wallet.Hex(), svc.ledger.RequiredChainID())
		} else {
			fmt.Printf("Ledger connected read-only (LEDGER_PRIVATE_KEY not set)\n")
		}
	} else {
		fmt.Printf("Ledger not configured, registration is disabled\n")
	}
	return deps, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	svc := newServices(cfg)
	defer svc.Close()

	ctx := context.Background()
	if err := svc.openDatabase(ctx); err != nil {
		return err
	}
	fmt.Printf("Using %s backend\n", database.BackendName())

	deps, err := buildServerDeps(ctx, svc, mustGetDuration(cmd, "attempt-ttl"))
	if err != nil {
		return err
	}

	port, host := resolveServeHostPort(cmd)
	server := web.NewServer(cfg, deps, port, host)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Identity Matcher API on http://%s:%d\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
