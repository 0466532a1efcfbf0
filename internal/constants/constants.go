// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Oracle provider names
const (
	ProviderGemini   = "gemini"
	ProviderOpenAI   = "openai"
	ProviderOllama   = "ollama"
	ProviderLlamaCpp = "llamacpp"
)

// Oracle models
const (
	// GeminiModel is the vision model used for image comparison
	GeminiModel = "gemini-2.5-flash"

	// OpenAIModel is the fallback vision model
	OpenAIModel = "gpt-4.1-mini"

	// OracleMaxTokens caps the oracle response size
	OracleMaxTokens = 1024
)

// Local vision model defaults
const (
	DefaultOllamaURL     = "http://localhost:11434"
	DefaultOllamaModel   = "llama3.2-vision:11b"
	DefaultLlamaCppURL   = "http://localhost:8080"
	DefaultLlamaCppModel = "llava"
)

// Ledger constants
const (
	// FilecoinCalibrationChainID is the only network registrations are accepted on
	FilecoinCalibrationChainID = 314159
)

// File upload constants
const (
	// MaxUploadSize is the maximum file upload size in bytes (10MB)
	MaxUploadSize = 10 << 20

	// MaxBatchSize is the maximum combined size of a catalog batch upload (200MB)
	MaxBatchSize = 200 << 20
)

// Event channel constants
const (
	// EventChannelBuffer is the buffer size for event channels
	EventChannelBuffer = 100
)

// Attempt tracking constants
const (
	// AttemptTTLMinutes is how long a verification outcome stays registrable
	AttemptTTLMinutes = 30
)
