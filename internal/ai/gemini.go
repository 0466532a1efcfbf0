package ai

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/kozaktomas/identity-matcher/internal/constants"
)

type GeminiProvider struct {
	client  *genai.Client
	fetcher *ImageFetcher
	usageTracker
}

func NewGeminiProvider(ctx context.Context, apiKey string, pricing RequestPricing, fetcher *ImageFetcher) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiProvider{
		client:       client,
		fetcher:      fetcher,
		usageTracker: usageTracker{pricing: pricing},
	}, nil
}

func (p *GeminiProvider) Name() string {
	return constants.GeminiModel
}

// CompareImages sends both images inline so the model never has to resolve gateway URLs itself.
func (p *GeminiProvider) CompareImages(ctx context.Context, req *CompareRequest) (*Judgement, error) {
	reference, referenceMIME, err := p.fetcher.Fetch(ctx, req.ReferenceURL)
	if err != nil {
		return nil, fmt.Errorf("reference image: %w", err)
	}
	candidate, candidateMIME, err := p.fetcher.Fetch(ctx, req.CandidateURL)
	if err != nil {
		return nil, fmt.Errorf("candidate image: %w", err)
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: buildComparePrompt(req)},
				{InlineData: &genai.Blob{Data: reference, MIMEType: referenceMIME}},
				{InlineData: &genai.Blob{Data: candidate, MIMEType: candidateMIME}},
			},
		},
	}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   judgementSchema(),
	}

	result, err := p.client.Models.GenerateContent(ctx, constants.GeminiModel, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini API error: %w", err)
	}

	if result.UsageMetadata != nil {
		p.track(int64(result.UsageMetadata.PromptTokenCount), int64(result.UsageMetadata.CandidatesTokenCount))
	}

	content := result.Text()
	if content == "" {
		return nil, errors.New("no response from Gemini")
	}

	return ParseJudgement(content)
}

func judgementSchema() *genai.Schema {
	nullable := true
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"matchScore":     {Type: genai.TypeNumber},
			"confidence":     {Type: genai.TypeNumber},
			"analysis":       {Type: genai.TypeString},
			"isMatch":        {Type: genai.TypeBoolean},
			"matchedProfile": {Type: genai.TypeInteger, Nullable: &nullable},
		},
		Required: []string{"matchScore", "confidence", "analysis", "isMatch"},
	}
}
