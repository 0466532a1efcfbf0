package ai

import (
	"context"
	_ "embed"
	"strconv"
	"strings"
	"sync"
)

//go:embed prompts/compare.txt
var comparePrompt string

// Provider is a vision model backend able to judge whether two images show the same person.
type Provider interface {
	Name() string
	CompareImages(ctx context.Context, req *CompareRequest) (*Judgement, error)

	// Usage tracking.
	GetUsage() Usage
	ResetUsage()
}

// CompareRequest carries both image references and the acceptable profile ids.
type CompareRequest struct {
	ReferenceURL     string
	CandidateURL     string
	ExpectedProfiles []int64
}

// Usage tracks token usage and calculates cost.
type Usage struct {
	Requests     int
	InputTokens  int
	OutputTokens int
	TotalCost    float64 // in USD
}

// RequestPricing holds input/output prices per 1M tokens
type RequestPricing struct {
	Input  float64
	Output float64
}

// usageTracker is shared by providers; comparisons run concurrently so access is locked.
type usageTracker struct {
	mu      sync.Mutex
	usage   Usage
	pricing RequestPricing
}

func (u *usageTracker) GetUsage() Usage {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.usage
}

func (u *usageTracker) ResetUsage() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.usage = Usage{}
}

func (u *usageTracker) track(inputTokens, outputTokens int64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.usage.Requests++
	u.usage.InputTokens += int(inputTokens)
	u.usage.OutputTokens += int(outputTokens)
	u.usage.TotalCost += float64(inputTokens) / 1_000_000 * u.pricing.Input
	u.usage.TotalCost += float64(outputTokens) / 1_000_000 * u.pricing.Output
}

func buildComparePrompt(req *CompareRequest) string {
	ids := make([]string, len(req.ExpectedProfiles))
	for i, id := range req.ExpectedProfiles {
		ids[i] = strconv.FormatInt(id, 10)
	}
	return strings.NewReplacer(
		"{{REFERENCE_URL}}", req.ReferenceURL,
		"{{CANDIDATE_URL}}", req.CandidateURL,
		"{{EXPECTED_PROFILES}}", strings.Join(ids, ", "),
	).Replace(comparePrompt)
}
