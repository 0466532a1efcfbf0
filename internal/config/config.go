package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed prices.yaml
var pricesYAML []byte

const (
	defaultUploadURL    = "https://node.lighthouse.storage/api/v0/add"
	defaultGatewayURL   = "https://gateway.lighthouse.storage/ipfs/"
	defaultHashSecret   = "identity-matcher-secret"
	defaultOracle       = "gemini"
	filecoinCalibration = 314159
)

type Config struct {
	Storage     StorageConfig
	OpenAI      OpenAIConfig
	Gemini      GeminiConfig
	Ollama      OllamaConfig
	LlamaCpp    LlamaCppConfig
	Oracle      OracleConfig
	Database    DatabaseConfig
	Ledger      LedgerConfig
	Fingerprint FingerprintConfig
	Web         WebConfig
	LogLevel    string
	Prices      PricesConfig
}

type StorageConfig struct {
	APIKey     string        // Lighthouse API key
	UploadURL  string        // defaults to https://node.lighthouse.storage/api/v0/add
	GatewayURL string        // public gateway base, content id is appended
	Timeout    time.Duration // whole-transfer timeout for one upload
}

// ContentURL returns the public gateway URL for a content id.
func (c *StorageConfig) ContentURL(cid string) string {
	base := c.GatewayURL
	if base == "" {
		base = defaultGatewayURL
	}
	return strings.TrimRight(base, "/") + "/" + cid
}

type OpenAIConfig struct {
	Token string
}

type GeminiConfig struct {
	APIKey string
}

type OllamaConfig struct {
	URL   string // defaults to http://localhost:11434
	Model string // defaults to llama3.2-vision:11b
}

type LlamaCppConfig struct {
	URL   string // defaults to http://localhost:8080
	Model string // defaults to llava
}

type OracleConfig struct {
	Provider      string        // "gemini", "openai", "ollama" or "llamacpp"
	Timeout       time.Duration // per-comparison timeout
	MaxImageBytes int           // cap for images fetched from the gateway
}

type DatabaseConfig struct {
	URL          string // postgres://... or sqlite:<path>
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

// IsSQLite reports whether the URL selects the embedded SQLite backend.
func (c *DatabaseConfig) IsSQLite() bool {
	return strings.HasPrefix(c.URL, "sqlite:")
}

// SQLitePath returns the file path part of a sqlite: URL.
func (c *DatabaseConfig) SQLitePath() string {
	path := strings.TrimPrefix(c.URL, "sqlite:")
	return strings.TrimPrefix(path, "//")
}

type LedgerConfig struct {
	RPCURL          string
	ContractAddress string
	ChainID         int64         // required network, defaults to Filecoin Calibration
	PrivateKey      string        // hex-encoded signing key; empty means no wallet is connected
	ReceiptTimeout  time.Duration // how long to wait for a transaction to be mined
}

type FingerprintConfig struct {
	Secret string
}

type WebConfig struct {
	AdminToken     string // bearer token for catalog administration
	AllowedOrigins string
}

type PricesConfig struct {
	Models map[string]ModelPricing `yaml:"models"`
}

type ModelPricing struct {
	Standard RequestPricing `yaml:"standard"`
}

type RequestPricing struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envSeconds reads a positive number of seconds as a duration.
func envSeconds(key string, defaultVal time.Duration) time.Duration {
	n := envInt(key, 0)
	if n == 0 {
		return defaultVal
	}
	return time.Duration(n) * time.Second
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	var prices PricesConfig
	if err := yaml.Unmarshal(pricesYAML, &prices); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded prices.yaml: " + err.Error())
	}

	return &Config{
		Storage: StorageConfig{
			APIKey:     os.Getenv("LIGHTHOUSE_API_KEY"),
			UploadURL:  envString("LIGHTHOUSE_UPLOAD_URL", defaultUploadURL),
			GatewayURL: envString("GATEWAY_URL", defaultGatewayURL),
			Timeout:    envSeconds("UPLOAD_TIMEOUT_SECONDS", 5*time.Minute),
		},
		OpenAI: OpenAIConfig{
			Token: os.Getenv("OPENAI_TOKEN"),
		},
		Gemini: GeminiConfig{
			APIKey: os.Getenv("GEMINI_API_KEY"),
		},
		Ollama: OllamaConfig{
			URL:   os.Getenv("OLLAMA_URL"),
			Model: os.Getenv("OLLAMA_MODEL"),
		},
		LlamaCpp: LlamaCppConfig{
			URL:   os.Getenv("LLAMACPP_URL"),
			Model: os.Getenv("LLAMACPP_MODEL"),
		},
		Oracle: OracleConfig{
			Provider:      envString("ORACLE_PROVIDER", defaultOracle),
			Timeout:       envSeconds("ORACLE_TIMEOUT_SECONDS", 60*time.Second),
			MaxImageBytes: envInt("ORACLE_MAX_IMAGE_BYTES", 10<<20),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Ledger: LedgerConfig{
			RPCURL:          os.Getenv("LEDGER_RPC_URL"),
			ContractAddress: os.Getenv("LEDGER_CONTRACT_ADDRESS"),
			ChainID:         int64(envInt("LEDGER_CHAIN_ID", filecoinCalibration)),
			PrivateKey:      os.Getenv("LEDGER_PRIVATE_KEY"),
			ReceiptTimeout:  envSeconds("LEDGER_RECEIPT_TIMEOUT_SECONDS", 3*time.Minute),
		},
		Fingerprint: FingerprintConfig{
			Secret: envString("HASH_SECRET", defaultHashSecret),
		},
		Web: WebConfig{
			AdminToken:     os.Getenv("ADMIN_TOKEN"),
			AllowedOrigins: os.Getenv("WEB_ALLOWED_ORIGINS"),
		},
		LogLevel: envString("LOG_LEVEL", "info"),
		Prices:   prices,
	}
}

// GetModelPricing returns pricing for a specific model, zero if unknown
func (c *Config) GetModelPricing(modelName string) ModelPricing {
	if pricing, ok := c.Prices.Models[modelName]; ok {
		return pricing
	}
	return ModelPricing{}
}
