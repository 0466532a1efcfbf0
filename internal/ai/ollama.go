package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kozaktomas/identity-matcher/internal/constants"
)

// OllamaProvider judges images with a local Ollama vision model. Usage is
// tracked for stats; local inference has no price.
type OllamaProvider struct {
	baseURL string
	model   string
	client  *http.Client
	fetcher *ImageFetcher
	usageTracker
}

func NewOllamaProvider(baseURL, model string, fetcher *ImageFetcher) *OllamaProvider {
	if baseURL == "" {
		baseURL = constants.DefaultOllamaURL
	}
	if model == "" {
		model = constants.DefaultOllamaModel
	}
	return &OllamaProvider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		client:  &http.Client{},
		fetcher: fetcher,
	}
}

func (p *OllamaProvider) Name() string {
	return p.model
}

// ollamaRequest represents a request to the Ollama chat API
type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
	Options  ollamaOptions   `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"` // base64 encoded images
}

type ollamaOptions struct {
	NumPredict  int     `json:"num_predict,omitempty"`
	Temperature float64 `json:"temperature"`
}

// ollamaResponse represents a response from the Ollama chat API
type ollamaResponse struct {
	Model   string `json:"model"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done            bool  `json:"done"`
	PromptEvalCount int64 `json:"prompt_eval_count"`
	EvalCount       int64 `json:"eval_count"`
}

// CompareImages sends both images base64 encoded in one user message.
func (p *OllamaProvider) CompareImages(ctx context.Context, req *CompareRequest) (*Judgement, error) {
	reference, _, err := p.fetcher.Fetch(ctx, req.ReferenceURL)
	if err != nil {
		return nil, fmt.Errorf("reference image: %w", err)
	}
	candidate, _, err := p.fetcher.Fetch(ctx, req.CandidateURL)
	if err != nil {
		return nil, fmt.Errorf("candidate image: %w", err)
	}

	body, err := json.Marshal(ollamaRequest{
		Model: p.model,
		Messages: []ollamaMessage{{
			Role:    "user",
			Content: buildComparePrompt(req),
			Images: []string{
				base64.StdEncoding.EncodeToString(reference),
				base64.StdEncoding.EncodeToString(candidate),
			},
		}},
		Format:  "json",
		Options: ollamaOptions{NumPredict: constants.OracleMaxTokens},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var resp ollamaResponse
	if err := postJSON(ctx, p.client, p.baseURL+"/api/chat", body, &resp); err != nil {
		return nil, fmt.Errorf("ollama API error: %w", err)
	}
	p.track(resp.PromptEvalCount, resp.EvalCount)

	return ParseJudgement(resp.Message.Content)
}

// postJSON posts body and decodes a 200 response into out.
func postJSON(ctx context.Context, client *http.Client, url string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
