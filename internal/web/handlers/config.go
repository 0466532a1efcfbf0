package handlers

import (
	"net/http"

	"github.com/kozaktomas/identity-matcher/internal/config"
	"github.com/kozaktomas/identity-matcher/internal/constants"
	"github.com/kozaktomas/identity-matcher/internal/database"
)

// ConfigHandler handles configuration endpoints
type ConfigHandler struct {
	config *config.Config
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{
		config: cfg,
	}
}

// ConfigResponse represents the configuration response
type ConfigResponse struct {
	Providers       []ProviderInfo `json:"providers"`
	OracleProvider  string         `json:"oracle_provider"`
	GatewayURL      string         `json:"gateway_url"`
	ChainID         int64          `json:"chain_id"`
	ContractAddress string         `json:"contract_address,omitempty"`
	LedgerEnabled   bool           `json:"ledger_enabled"`
	Database        string         `json:"database,omitempty"`
}

// ProviderInfo represents information about an oracle provider
type ProviderInfo struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
}

// Get returns the public configuration
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	providers := []ProviderInfo{
		{
			Name:      constants.ProviderGemini,
			Available: h.config.Gemini.APIKey != "",
		},
		{
			Name:      constants.ProviderOpenAI,
			Available: h.config.OpenAI.Token != "",
		},
		{
			Name:      constants.ProviderOllama,
			Available: true, // Always available (local)
		},
		{
			Name:      constants.ProviderLlamaCpp,
			Available: true, // Always available (local)
		},
	}

	response := ConfigResponse{
		Providers:       providers,
		OracleProvider:  h.config.Oracle.Provider,
		GatewayURL:      h.config.Storage.ContentURL(""),
		ChainID:         h.config.Ledger.ChainID,
		ContractAddress: h.config.Ledger.ContractAddress,
		LedgerEnabled:   h.config.Ledger.RPCURL != "" && h.config.Ledger.ContractAddress != "",
		Database:        database.BackendName(),
	}

	respondJSON(w, http.StatusOK, response)
}
