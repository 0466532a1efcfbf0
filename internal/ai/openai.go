package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/kozaktomas/identity-matcher/internal/constants"
)

type OpenAIProvider struct {
	client *openai.Client
	usageTracker
}

func NewOpenAIProvider(apiKey string, pricing RequestPricing, opts ...option.RequestOption) *OpenAIProvider {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	client := openai.NewClient(opts...)
	return &OpenAIProvider{
		client:       &client,
		usageTracker: usageTracker{pricing: pricing},
	}
}

func (p *OpenAIProvider) Name() string {
	return constants.OpenAIModel
}

// CompareImages passes the gateway URLs through; OpenAI downloads the images itself.
func (p *OpenAIProvider) CompareImages(ctx context.Context, req *CompareRequest) (*Judgement, error) {
	messages := []openai.ChatCompletionMessageParamUnion{
		{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{
					OfArrayOfContentParts: []openai.ChatCompletionContentPartUnionParam{
						openai.TextContentPart(buildComparePrompt(req)),
						openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
							URL:    req.ReferenceURL,
							Detail: "high",
						}),
						openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
							URL:    req.CandidateURL,
							Detail: "high",
						}),
					},
				},
			},
		},
	}

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    constants.OpenAIModel,
		Messages: messages,
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
		MaxTokens: openai.Int(constants.OracleMaxTokens),
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, errors.New("no response from OpenAI")
	}

	if resp.Usage.PromptTokens > 0 || resp.Usage.CompletionTokens > 0 {
		p.track(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}

	return ParseJudgement(resp.Choices[0].Message.Content)
}
