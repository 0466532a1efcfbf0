package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kozaktomas/identity-matcher/internal/ai"
	"github.com/kozaktomas/identity-matcher/internal/catalog"
	"github.com/kozaktomas/identity-matcher/internal/config"
	"github.com/kozaktomas/identity-matcher/internal/database"
	"github.com/kozaktomas/identity-matcher/internal/database/postgres"
	"github.com/kozaktomas/identity-matcher/internal/database/sqlite"
	"github.com/kozaktomas/identity-matcher/internal/fingerprint"
	"github.com/kozaktomas/identity-matcher/internal/ledger"
	"github.com/kozaktomas/identity-matcher/internal/logging"
	"github.com/kozaktomas/identity-matcher/internal/metrics"
	"github.com/kozaktomas/identity-matcher/internal/storage"
	"github.com/kozaktomas/identity-matcher/internal/verification"
)

// services holds the collaborators shared by the commands. Optional parts
// stay nil until the command that needs them asks for them.
type services struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	store  *storage.Lighthouse
	hasher *fingerprint.Hasher
	ledger *ledger.Client

	closers []func()
}

func newServices(cfg *config.Config) *services {
	registry := prometheus.NewRegistry()
	return &services{
		cfg:      cfg,
		logger:   logging.New(cfg.LogLevel),
		registry: registry,
		metrics:  metrics.New(registry),
	}
}

func (s *services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openDatabase connects the backend selected by DATABASE_URL and registers it.
func (s *services) openDatabase(ctx context.Context) error {
	dbCfg := &s.cfg.Database
	if dbCfg.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	if dbCfg.IsSQLite() {
		store, err := sqlite.Initialize(ctx, dbCfg.SQLitePath())
		if err != nil {
			return fmt.Errorf("failed to initialize SQLite: %w", err)
		}
		s.closers = append(s.closers, func() {
			database.ResetBackend()
			_ = store.Close()
		})
		return nil
	}

	pool, err := postgres.Initialize(dbCfg, s.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	s.closers = append(s.closers, func() {
		database.ResetBackend()
		_ = pool.Close()
	})
	return nil
}

func (s *services) contentStore() (*storage.Lighthouse, error) {
	if s.store != nil {
		return s.store, nil
	}
	store, err := storage.New(s.cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to create content store client: %w", err)
	}
	s.store = store
	return store, nil
}

func (s *services) fingerprinter() (*fingerprint.Hasher, error) {
	if s.hasher != nil {
		return s.hasher, nil
	}
	hasher, err := fingerprint.NewHasher(s.cfg.Fingerprint.Secret)
	if err != nil {
		return nil, fmt.Errorf("HASH_SECRET: %w", err)
	}
	s.hasher = hasher
	return hasher, nil
}

// ledgerConfigured reports whether both the RPC endpoint and the registry address are set.
func (s *services) ledgerConfigured() bool {
	return s.cfg.Ledger.RPCURL != "" && s.cfg.Ledger.ContractAddress != ""
}

// ledgerClient dials the ledger once. It fails when the ledger is not configured.
func (s *services) ledgerClient(ctx context.Context) (*ledger.Client, error) {
	if s.ledger != nil {
		return s.ledger, nil
	}
	if !s.ledgerConfigured() {
		return nil, errors.New("LEDGER_RPC_URL and LEDGER_CONTRACT_ADDRESS are required")
	}
	client, err := ledger.Dial(ctx, s.cfg.Ledger, s.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ledger: %w", err)
	}
	s.ledger = client
	s.closers = append(s.closers, client.Close)
	return client, nil
}

// catalog returns the reference catalog over the active backend. The content
// store is attached only when the caller will upload.
func (s *services) catalog(ctx context.Context, withUploads bool) (*catalog.Catalog, error) {
	writer, err := database.GetCatalogWriter(ctx)
	if err != nil {
		return nil, err
	}
	var uploader catalog.Uploader
	if withUploads {
		store, err := s.contentStore()
		if err != nil {
			return nil, err
		}
		uploader = store
	}
	return catalog.New(writer, uploader, s.metrics, s.logger), nil
}

// pipeline assembles the verification pipeline over the active backend.
func (s *services) pipeline(ctx context.Context, attempts *verification.Attempts) (*verification.Pipeline, error) {
	store, err := s.contentStore()
	if err != nil {
		return nil, err
	}
	hasher, err := s.fingerprinter()
	if err != nil {
		return nil, err
	}
	references, err := database.GetCatalogReader(ctx)
	if err != nil {
		return nil, err
	}
	records, err := database.GetRecordStore(ctx)
	if err != nil {
		return nil, err
	}
	provider, err := ai.NewProviderFromConfig(ctx, s.cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create oracle provider: %w", err)
	}

	return verification.NewPipeline(verification.PipelineConfig{
		Catalog:  references,
		Uploader: store,
		Oracle:   ai.NewOracle(provider, s.cfg.Oracle.Timeout, s.logger),
		Provider: provider.Name(),
		Recorder: verification.NewRecorder(records, hasher, store.ContentURL, s.metrics, s.logger),
		Attempts: attempts,
		Metrics:  s.metrics,
		Logger:   s.logger,
	}), nil
}

// registrar binds the ledger and the registration audit store.
func (s *services) registrar(ctx context.Context) (*verification.Registrar, error) {
	client, err := s.ledgerClient(ctx)
	if err != nil {
		return nil, err
	}
	hasher, err := s.fingerprinter()
	if err != nil {
		return nil, err
	}
	audit, err := database.GetRegistrationStore(ctx)
	if err != nil {
		return nil, err
	}
	return verification.NewRegistrar(client, hasher, s.cfg.Storage.ContentURL, audit, s.metrics, s.logger), nil
}
