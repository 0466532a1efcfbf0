// Package health checks that every external collaborator is reachable and configured.
package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/identity-matcher/internal/config"
	"github.com/kozaktomas/identity-matcher/internal/constants"
)

// Check is the result of one probe.
type Check struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// ChainReader reports the network an RPC endpoint serves.
type ChainReader interface {
	ChainID(ctx context.Context) (int64, error)
}

// Checker probes the database, oracle, storage and ledger configuration.
// Nil probes are reported as not configured.
type Checker struct {
	Config   *config.Config
	Database func(ctx context.Context) error
	Ledger   ChainReader
	Timeout  time.Duration
}

// Run executes every probe and returns them in a stable order.
func (c *Checker) Run(ctx context.Context) []Check {
	timeout := c.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return []Check{
		c.checkDatabase(ctx),
		c.checkOracle(),
		c.checkStorage(),
		c.checkLedger(ctx),
	}
}

// Healthy reports whether every check passed.
func Healthy(checks []Check) bool {
	for _, ch := range checks {
		if !ch.OK {
			return false
		}
	}
	return true
}

func (c *Checker) checkDatabase(ctx context.Context) Check {
	if c.Database == nil {
		return Check{Name: "database", Detail: "DATABASE_URL is not configured"}
	}
	if err := c.Database(ctx); err != nil {
		return Check{Name: "database", Detail: err.Error()}
	}
	return Check{Name: "database", OK: true}
}

func (c *Checker) checkOracle() Check {
	check := Check{Name: "oracle", Detail: c.Config.Oracle.Provider}
	switch c.Config.Oracle.Provider {
	case constants.ProviderGemini:
		check.OK = c.Config.Gemini.APIKey != ""
	case constants.ProviderOpenAI:
		check.OK = c.Config.OpenAI.Token != ""
	case constants.ProviderOllama, constants.ProviderLlamaCpp:
		// Local servers need no key; reachability shows on the first comparison.
		check.OK = true
		return check
	default:
		check.Detail = fmt.Sprintf("unknown provider %q", c.Config.Oracle.Provider)
		return check
	}
	if !check.OK {
		check.Detail += ": API key missing"
	}
	return check
}

func (c *Checker) checkStorage() Check {
	if c.Config.Storage.APIKey == "" {
		return Check{Name: "storage", Detail: "LIGHTHOUSE_API_KEY is not configured"}
	}
	return Check{Name: "storage", OK: true, Detail: c.Config.Storage.UploadURL}
}

var errNoLedger = errors.New("LEDGER_RPC_URL or LEDGER_CONTRACT_ADDRESS is not configured")

func (c *Checker) checkLedger(ctx context.Context) Check {
	if c.Ledger == nil {
		return Check{Name: "ledger", Detail: errNoLedger.Error()}
	}
	chainID, err := c.Ledger.ChainID(ctx)
	if err != nil {
		return Check{Name: "ledger", Detail: err.Error()}
	}
	if chainID != c.Config.Ledger.ChainID {
		return Check{Name: "ledger", Detail: fmt.Sprintf("RPC serves chain %d, expected %d", chainID, c.Config.Ledger.ChainID)}
	}
	return Check{Name: "ledger", OK: true, Detail: fmt.Sprintf("chain %d", chainID)}
}
