package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/kozaktomas/identity-matcher/internal/config"
	"github.com/kozaktomas/identity-matcher/internal/constants"
)

// Providers lists every oracle backend ORACLE_PROVIDER accepts, in preference order.
var Providers = []string{constants.ProviderGemini, constants.ProviderOpenAI, constants.ProviderOllama, constants.ProviderLlamaCpp}

// ErrMissingCredentials is returned when the selected provider has no API key.
var ErrMissingCredentials = errors.New("oracle provider credentials are not configured")

// NewProviderFromConfig builds the provider selected by ORACLE_PROVIDER.
func NewProviderFromConfig(ctx context.Context, cfg *config.Config) (Provider, error) {
	fetcher := NewImageFetcher(&http.Client{Timeout: cfg.Oracle.Timeout}, int64(cfg.Oracle.MaxImageBytes))

	switch cfg.Oracle.Provider {
	case constants.ProviderGemini:
		if cfg.Gemini.APIKey == "" {
			return nil, fmt.Errorf("%w: GEMINI_API_KEY", ErrMissingCredentials)
		}
		pricing := cfg.GetModelPricing(constants.GeminiModel).Standard
		return NewGeminiProvider(ctx, cfg.Gemini.APIKey, RequestPricing{Input: pricing.Input, Output: pricing.Output}, fetcher)
	case constants.ProviderOpenAI:
		if cfg.OpenAI.Token == "" {
			return nil, fmt.Errorf("%w: OPENAI_TOKEN", ErrMissingCredentials)
		}
		pricing := cfg.GetModelPricing(constants.OpenAIModel).Standard
		return NewOpenAIProvider(cfg.OpenAI.Token, RequestPricing{Input: pricing.Input, Output: pricing.Output}), nil
	case constants.ProviderOllama:
		return NewOllamaProvider(cfg.Ollama.URL, cfg.Ollama.Model, fetcher), nil
	case constants.ProviderLlamaCpp:
		return NewLlamaCppProvider(cfg.LlamaCpp.URL, cfg.LlamaCpp.Model, fetcher)
	default:
		return nil, fmt.Errorf("unknown oracle provider %q (supported: %s)", cfg.Oracle.Provider, strings.Join(Providers, ", "))
	}
}
