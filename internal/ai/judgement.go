package ai

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// failurePrefix starts the analysis text of every fail-closed judgement.
const failurePrefix = "Failed to analyze images"

// Judgement is the oracle's verdict for one reference/candidate pair.
type Judgement struct {
	MatchScore     float64 `json:"matchScore"`
	Confidence     float64 `json:"confidence"`
	Analysis       string  `json:"analysis"`
	IsMatch        bool    `json:"isMatch"`
	MatchedProfile *int64  `json:"matchedProfile"`
	// Degraded marks a fail-closed default produced locally instead of by the oracle.
	Degraded bool `json:"degraded"`
}

// FailClosed returns the no-match judgement used whenever the oracle cannot answer.
func FailClosed(reason string) Judgement {
	analysis := failurePrefix
	if reason != "" {
		analysis += " - " + reason
	}
	return Judgement{Analysis: analysis, Degraded: true}
}

// ErrMalformedResponse wraps every reason a response is rejected by ParseJudgement.
var ErrMalformedResponse = errors.New("malformed oracle response")

// rawJudgement keeps every field optional so presence can be checked.
type rawJudgement struct {
	MatchScore     *float64        `json:"matchScore"`
	Confidence     *float64        `json:"confidence"`
	Analysis       *string         `json:"analysis"`
	IsMatch        *bool           `json:"isMatch"`
	MatchedProfile json.RawMessage `json:"matchedProfile"`
}

// ParseJudgement validates oracle output field by field. Markdown code fences
// and any prose around the first JSON object are ignored.
func ParseJudgement(text string) (*Judgement, error) {
	body, err := extractObject(text)
	if err != nil {
		return nil, err
	}

	var raw rawJudgement
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	if raw.MatchScore == nil {
		return nil, fmt.Errorf("%w: matchScore is missing", ErrMalformedResponse)
	}
	if raw.Confidence == nil {
		return nil, fmt.Errorf("%w: confidence is missing", ErrMalformedResponse)
	}
	if raw.IsMatch == nil {
		return nil, fmt.Errorf("%w: isMatch is missing", ErrMalformedResponse)
	}
	if err := checkPercent("matchScore", *raw.MatchScore); err != nil {
		return nil, err
	}
	if err := checkPercent("confidence", *raw.Confidence); err != nil {
		return nil, err
	}

	j := &Judgement{
		MatchScore: *raw.MatchScore,
		Confidence: *raw.Confidence,
		IsMatch:    *raw.IsMatch,
	}
	if raw.Analysis != nil {
		j.Analysis = *raw.Analysis
	}

	profile, err := parseProfile(raw.MatchedProfile)
	if err != nil {
		return nil, err
	}
	j.MatchedProfile = profile

	return j, nil
}

func checkPercent(field string, v float64) error {
	if math.IsNaN(v) || v < 0 || v > 100 {
		return fmt.Errorf("%w: %s %v is outside [0,100]", ErrMalformedResponse, field, v)
	}
	return nil
}

func parseProfile(raw json.RawMessage) (*int64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: matchedProfile is not a number", ErrMalformedResponse)
	}
	if f != math.Trunc(f) || f < 1 || f > math.MaxInt32 {
		return nil, fmt.Errorf("%w: matchedProfile %v is not a positive integer", ErrMalformedResponse, f)
	}
	id := int64(f)
	return &id, nil
}

// extractObject returns the first complete JSON object found in text.
func extractObject(text string) ([]byte, error) {
	text = stripCodeFence(strings.TrimSpace(text))
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, fmt.Errorf("%w: no JSON object found", ErrMalformedResponse)
	}

	dec := json.NewDecoder(strings.NewReader(text[start:]))
	var obj json.RawMessage
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return bytes.TrimSpace(obj), nil
}

func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	// Drop the opening fence line, including any language tag.
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	} else {
		text = strings.TrimPrefix(text, "```")
	}
	return strings.TrimSuffix(strings.TrimSpace(text), "```")
}
