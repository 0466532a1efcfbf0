package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/kozaktomas/identity-matcher/internal/constants"
)

// LlamaCppProvider judges images through a llama.cpp server's
// OpenAI-compatible chat endpoint.
type LlamaCppProvider struct {
	parsedURL *url.URL
	model     string
	client    *http.Client
	fetcher   *ImageFetcher
	usageTracker
}

// NewLlamaCppProvider creates a new llama.cpp provider with the given config.
func NewLlamaCppProvider(baseURL, model string, fetcher *ImageFetcher) (*LlamaCppProvider, error) {
	if baseURL == "" {
		baseURL = constants.DefaultLlamaCppURL
	}
	if model == "" {
		model = constants.DefaultLlamaCppModel
	}
	parsed, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid llama.cpp URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid llama.cpp URL scheme %q: must be http or https", parsed.Scheme)
	}
	if parsed.Host == "" {
		return nil, errors.New("invalid llama.cpp URL: missing host")
	}
	return &LlamaCppProvider{
		parsedURL: parsed,
		model:     model,
		client:    &http.Client{},
		fetcher:   fetcher,
	}, nil
}

// Name returns the provider name.
func (p *LlamaCppProvider) Name() string {
	return p.model
}

type llamaCppRequest struct {
	Model          string                  `json:"model"`
	Messages       []llamaCppMessage       `json:"messages"`
	MaxTokens      int                     `json:"max_tokens,omitempty"`
	Temperature    float64                 `json:"temperature"`
	Stream         bool                    `json:"stream"`
	ResponseFormat *llamaCppResponseFormat `json:"response_format,omitempty"`
}

type llamaCppResponseFormat struct {
	Type string `json:"type"`
}

type llamaCppMessage struct {
	Role    string                `json:"role"`
	Content []llamaCppContentPart `json:"content"`
}

type llamaCppContentPart struct {
	Type     string            `json:"type"`
	Text     string            `json:"text,omitempty"`
	ImageURL *llamaCppImageURL `json:"image_url,omitempty"`
}

type llamaCppImageURL struct {
	URL string `json:"url"`
}

type llamaCppResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
}

// CompareImages inlines both images as data URIs; the server cannot be
// assumed to reach the public gateway.
func (p *LlamaCppProvider) CompareImages(ctx context.Context, req *CompareRequest) (*Judgement, error) {
	reference, err := p.dataURI(ctx, req.ReferenceURL)
	if err != nil {
		return nil, fmt.Errorf("reference image: %w", err)
	}
	candidate, err := p.dataURI(ctx, req.CandidateURL)
	if err != nil {
		return nil, fmt.Errorf("candidate image: %w", err)
	}

	body, err := json.Marshal(llamaCppRequest{
		Model: p.model,
		Messages: []llamaCppMessage{{
			Role: "user",
			Content: []llamaCppContentPart{
				{Type: "text", Text: buildComparePrompt(req)},
				{Type: "image_url", ImageURL: &llamaCppImageURL{URL: reference}},
				{Type: "image_url", ImageURL: &llamaCppImageURL{URL: candidate}},
			},
		}},
		MaxTokens:      constants.OracleMaxTokens,
		ResponseFormat: &llamaCppResponseFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var resp llamaCppResponse
	if err := postJSON(ctx, p.client, p.parsedURL.JoinPath("/v1/chat/completions").String(), body, &resp); err != nil {
		return nil, fmt.Errorf("llama.cpp API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("no response from llama.cpp")
	}
	p.track(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	return ParseJudgement(resp.Choices[0].Message.Content)
}

func (p *LlamaCppProvider) dataURI(ctx context.Context, imageURL string) (string, error) {
	data, mimeType, err := p.fetcher.Fetch(ctx, imageURL)
	if err != nil {
		return "", err
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
