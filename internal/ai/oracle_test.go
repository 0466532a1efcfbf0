package ai

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/openai/openai-go/option"

	"github.com/kozaktomas/identity-matcher/internal/config"
)

// stubProvider returns a canned result or runs fn.
type stubProvider struct {
	usageTracker
	fn func(ctx context.Context, req *CompareRequest) (*Judgement, error)

	reqMu    sync.Mutex
	requests []*CompareRequest
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) CompareImages(ctx context.Context, req *CompareRequest) (*Judgement, error) {
	s.reqMu.Lock()
	s.requests = append(s.requests, req)
	s.reqMu.Unlock()
	return s.fn(ctx, req)
}

func assertFailClosed(t *testing.T, j Judgement) {
	t.Helper()
	if j.MatchScore != 0 || j.Confidence != 0 || j.IsMatch || j.MatchedProfile != nil || !j.Degraded {
		t.Errorf("expected fail-closed judgement, got %+v", j)
	}
	if !strings.HasPrefix(j.Analysis, "Failed to analyze images") {
		t.Errorf("expected diagnostic analysis, got %q", j.Analysis)
	}
}

func TestOracleCompare_Success(t *testing.T) {
	profile := int64(4)
	p := &stubProvider{fn: func(ctx context.Context, req *CompareRequest) (*Judgement, error) {
		return &Judgement{MatchScore: 88, Confidence: 92, IsMatch: true, MatchedProfile: &profile, Analysis: "match"}, nil
	}}

	j := NewOracle(p, time.Second, nil).Compare(context.Background(), "https://gw/ref", "https://gw/cand", 4)

	if !j.IsMatch || j.MatchScore != 88 || j.Confidence != 92 || j.Degraded {
		t.Errorf("unexpected judgement %+v", j)
	}
	if len(p.requests) != 1 {
		t.Fatalf("expected 1 provider call, got %d", len(p.requests))
	}
	req := p.requests[0]
	if req.ReferenceURL != "https://gw/ref" || req.CandidateURL != "https://gw/cand" {
		t.Errorf("URLs not forwarded: %+v", req)
	}
	if len(req.ExpectedProfiles) != 1 || req.ExpectedProfiles[0] != 4 {
		t.Errorf("expected profile hint [4], got %v", req.ExpectedProfiles)
	}
}

func TestOracleCompare_FailClosed(t *testing.T) {
	tests := []struct {
		name       string
		fn         func(ctx context.Context, req *CompareRequest) (*Judgement, error)
		wantReason string
	}{
		{
			name: "transport error",
			fn: func(ctx context.Context, req *CompareRequest) (*Judgement, error) {
				return nil, errors.New("connection refused")
			},
			wantReason: "stub API error",
		},
		{
			name: "malformed output",
			fn: func(ctx context.Context, req *CompareRequest) (*Judgement, error) {
				return ParseJudgement("not json at all")
			},
			wantReason: "malformed response",
		},
		{
			name: "nil judgement",
			fn: func(ctx context.Context, req *CompareRequest) (*Judgement, error) {
				return nil, nil
			},
			wantReason: "returned no judgement",
		},
		{
			name: "panic",
			fn: func(ctx context.Context, req *CompareRequest) (*Judgement, error) {
				panic("boom")
			},
			wantReason: "oracle panic",
		},
		{
			name: "timeout",
			fn: func(ctx context.Context, req *CompareRequest) (*Judgement, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
			wantReason: "timed out",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := &stubProvider{fn: tc.fn}
			j := NewOracle(p, 20*time.Millisecond, nil).Compare(context.Background(), "ref", "cand", 1)

			assertFailClosed(t, j)
			if !strings.Contains(j.Analysis, tc.wantReason) {
				t.Errorf("expected analysis to mention %q, got %q", tc.wantReason, j.Analysis)
			}
		})
	}
}

func TestBuildComparePrompt(t *testing.T) {
	prompt := buildComparePrompt(&CompareRequest{
		ReferenceURL:     "https://gw/ipfs/ref",
		CandidateURL:     "https://gw/ipfs/cand",
		ExpectedProfiles: []int64{1, 22},
	})

	for _, want := range []string{"https://gw/ipfs/ref", "https://gw/ipfs/cand", "1, 22", "matchScore", "matchedProfile"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(prompt, "{{") {
		t.Error("prompt still contains unreplaced placeholders")
	}
}

func TestUsageTracker(t *testing.T) {
	u := usageTracker{pricing: RequestPricing{Input: 1.0, Output: 2.0}}

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u.track(100_000, 50_000)
		}()
	}
	wg.Wait()

	usage := u.GetUsage()
	if usage.Requests != 10 || usage.InputTokens != 1_000_000 || usage.OutputTokens != 500_000 {
		t.Errorf("unexpected usage %+v", usage)
	}
	// 1M input at $1 + 0.5M output at $2
	if usage.TotalCost < 1.999 || usage.TotalCost > 2.001 {
		t.Errorf("expected cost ~2.0, got %f", usage.TotalCost)
	}

	u.ResetUsage()
	if u.GetUsage() != (Usage{}) {
		t.Error("expected usage to be reset")
	}
}

func TestOpenAIProvider_CompareImages(t *testing.T) {
	var gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-4.1-mini",
			"choices": [{
				"index": 0,
				"finish_reason": "stop",
				"message": {"role": "assistant", "content": "{\"matchScore\": 81, \"confidence\": 77, \"analysis\": \"same eyes\", \"isMatch\": true, \"matchedProfile\": 5}"}
			}],
			"usage": {"prompt_tokens": 1000, "completion_tokens": 100, "total_tokens": 1100}
		}`))
	}))
	defer server.Close()

	p := NewOpenAIProvider("sk-test", RequestPricing{Input: 0.4, Output: 1.6},
		option.WithBaseURL(server.URL+"/"), option.WithMaxRetries(0))

	j, err := p.CompareImages(context.Background(), &CompareRequest{
		ReferenceURL:     "https://gw/ipfs/ref",
		CandidateURL:     "https://gw/ipfs/cand",
		ExpectedProfiles: []int64{5},
	})
	if err != nil {
		t.Fatalf("CompareImages failed: %v", err)
	}
	if j.MatchScore != 81 || j.Confidence != 77 || !j.IsMatch || j.MatchedProfile == nil || *j.MatchedProfile != 5 {
		t.Errorf("unexpected judgement %+v", j)
	}
	if !strings.Contains(gotBody, "https://gw/ipfs/ref") || !strings.Contains(gotBody, "https://gw/ipfs/cand") {
		t.Error("request should carry both image URLs")
	}
	if !strings.Contains(gotBody, `"json_object"`) {
		t.Error("request should ask for JSON object output")
	}
	if usage := p.GetUsage(); usage.InputTokens != 1000 || usage.OutputTokens != 100 {
		t.Errorf("unexpected usage %+v", usage)
	}
}

func TestOpenAIProvider_APIErrorFailsClosedThroughOracle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": {"message": "invalid image", "type": "invalid_request_error"}}`))
	}))
	defer server.Close()

	p := NewOpenAIProvider("sk-test", RequestPricing{}, option.WithBaseURL(server.URL+"/"), option.WithMaxRetries(0))
	j := NewOracle(p, time.Second, nil).Compare(context.Background(), "ref", "cand", 1)

	assertFailClosed(t, j)
}

func TestImageFetcher(t *testing.T) {
	// 1x1 transparent GIF
	gif := []byte("GIF89a\x01\x00\x01\x00\x80\x00\x00\x00\x00\x00\xff\xff\xff!\xf9\x04\x01\x00\x00\x00\x00,\x00\x00\x00\x00\x01\x00\x01\x00\x00\x02\x02D\x01\x00;")

	mux := http.NewServeMux()
	mux.HandleFunc("/ipfs/ok", func(w http.ResponseWriter, r *http.Request) { w.Write(gif) })
	mux.HandleFunc("/ipfs/text", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("hello")) })
	mux.HandleFunc("/ipfs/big", func(w http.ResponseWriter, r *http.Request) { w.Write(make([]byte, 2048)) })
	server := httptest.NewServer(mux)
	defer server.Close()

	f := NewImageFetcher(server.Client(), 1024)

	data, mimeType, err := f.Fetch(context.Background(), server.URL+"/ipfs/ok")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if mimeType != "image/gif" || len(data) != len(gif) {
		t.Errorf("unexpected result %s (%d bytes)", mimeType, len(data))
	}

	for _, path := range []string{"/ipfs/text", "/ipfs/big", "/ipfs/missing"} {
		if _, _, err := f.Fetch(context.Background(), server.URL+path); err == nil {
			t.Errorf("expected error for %s", path)
		}
	}
}

func TestNewProviderFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.Config
		wantErr error
		wantMsg string
	}{
		{"gemini without key", config.Config{Oracle: config.OracleConfig{Provider: "gemini"}}, ErrMissingCredentials, "GEMINI_API_KEY"},
		{"openai without key", config.Config{Oracle: config.OracleConfig{Provider: "openai"}}, ErrMissingCredentials, "OPENAI_TOKEN"},
		{"unknown provider", config.Config{Oracle: config.OracleConfig{Provider: "claude"}}, nil, "unknown oracle provider"},
		{"llamacpp bad URL", config.Config{Oracle: config.OracleConfig{Provider: "llamacpp"}, LlamaCpp: config.LlamaCppConfig{URL: "ftp://models"}}, nil, "must be http or https"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewProviderFromConfig(context.Background(), &tc.cfg)
			if err == nil {
				t.Fatal("expected error")
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Errorf("expected %v, got %v", tc.wantErr, err)
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Errorf("expected message containing %q, got %v", tc.wantMsg, err)
			}
		})
	}

	cfg := config.Config{Oracle: config.OracleConfig{Provider: "openai"}, OpenAI: config.OpenAIConfig{Token: "sk-test"}}
	p, err := NewProviderFromConfig(context.Background(), &cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name() != "gpt-4.1-mini" {
		t.Errorf("unexpected provider %s", p.Name())
	}

	local := []struct {
		cfg  config.Config
		name string
	}{
		{config.Config{Oracle: config.OracleConfig{Provider: "ollama"}}, "llama3.2-vision:11b"},
		{config.Config{Oracle: config.OracleConfig{Provider: "ollama"}, Ollama: config.OllamaConfig{Model: "llava:13b"}}, "llava:13b"},
		{config.Config{Oracle: config.OracleConfig{Provider: "llamacpp"}}, "llava"},
	}
	for _, tc := range local {
		p, err := NewProviderFromConfig(context.Background(), &tc.cfg)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.cfg.Oracle.Provider, err)
		}
		if p.Name() != tc.name {
			t.Errorf("%s: expected %s, got %s", tc.cfg.Oracle.Provider, tc.name, p.Name())
		}
	}
}
