// Package verification runs a candidate image through upload, best-match
// selection and record keeping, and commits matches to the ledger.
package verification

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kozaktomas/identity-matcher/internal/database"
	"github.com/kozaktomas/identity-matcher/internal/matcher"
	"github.com/kozaktomas/identity-matcher/internal/metrics"
	"github.com/kozaktomas/identity-matcher/internal/storage"
)

var tracer = otel.Tracer("identity-matcher/verification")

var (
	ErrNoReferenceImages = errors.New("no reference images available")
	ErrInvalidAddress    = errors.New("invalid wallet address")
)

// Uploader stores the candidate image. *storage.Lighthouse implements it.
type Uploader interface {
	Upload(ctx context.Context, name string, r io.Reader, size int64, progress storage.ProgressFunc) (*storage.UploadResult, error)
}

// Hooks receive progress while an attempt runs. Any of them may be nil.
type Hooks struct {
	OnUploadProgress func(percent int)
	OnUploaded       func(result *storage.UploadResult)
	OnCompared       func(info matcher.ProgressInfo)
}

// Result is everything an attempt produced. RecordErr is set when the
// attempt completed but its record could not be stored.
type Result struct {
	AttemptID  string                       `json:"attempt_id"`
	Outcome    Outcome                      `json:"outcome"`
	Selection  *matcher.Selection           `json:"selection"`
	Record     *database.VerificationRecord `json:"record"`
	RecordErr  error                        `json:"-"`
	Superseded bool                         `json:"superseded"`
}

type Pipeline struct {
	catalog  database.CatalogReader
	uploader Uploader
	oracle   matcher.Comparer
	provider string
	recorder *Recorder
	attempts *Attempts
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

type PipelineConfig struct {
	Catalog  database.CatalogReader
	Uploader Uploader
	Oracle   matcher.Comparer
	Provider string // oracle name for metrics and logs
	Recorder *Recorder
	Attempts *Attempts
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attempts := cfg.Attempts
	if attempts == nil {
		attempts = NewAttempts(30 * time.Minute)
	}
	return &Pipeline{
		catalog:  cfg.Catalog,
		uploader: cfg.Uploader,
		oracle:   cfg.Oracle,
		provider: cfg.Provider,
		recorder: cfg.Recorder,
		attempts: attempts,
		metrics:  cfg.Metrics,
		logger:   logger,
	}
}

func (p *Pipeline) Attempts() *Attempts {
	return p.attempts
}

// Verify uploads the candidate read from r and verifies it against the whole
// catalog. An empty catalog is rejected before anything is uploaded; an upload
// failure aborts the attempt before any comparison.
func (p *Pipeline) Verify(ctx context.Context, userAddress, name string, r io.Reader, size int64, hooks Hooks) (*Result, error) {
	if !common.IsHexAddress(userAddress) {
		return nil, ErrInvalidAddress
	}

	ctx, span := tracer.Start(ctx, "verification.Verify")
	defer span.End()

	refs, err := p.references(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	uploaded, err := p.uploader.Upload(ctx, name, r, size, hooks.OnUploadProgress)
	p.metrics.ObserveUpload(err, size)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upload failed")
		return nil, fmt.Errorf("failed to upload image: %w", err)
	}
	p.logger.Info("candidate uploaded", "user_address", userAddress, "content_id", uploaded.ContentID)
	if hooks.OnUploaded != nil {
		hooks.OnUploaded(uploaded)
	}

	return p.run(ctx, userAddress, uploaded.ContentID, uploaded.URL, refs, hooks)
}

// VerifyContent verifies an image that is already in the content store.
func (p *Pipeline) VerifyContent(ctx context.Context, userAddress, contentID, candidateURL string, hooks Hooks) (*Result, error) {
	if !common.IsHexAddress(userAddress) {
		return nil, ErrInvalidAddress
	}

	ctx, span := tracer.Start(ctx, "verification.VerifyContent")
	defer span.End()

	refs, err := p.references(ctx)
	if err != nil {
		return nil, err
	}
	return p.run(ctx, userAddress, contentID, candidateURL, refs, hooks)
}

func (p *Pipeline) references(ctx context.Context) ([]database.ReferenceImage, error) {
	refs, err := p.catalog.ListReferenceImages(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load reference images: %w", err)
	}
	if len(refs) == 0 {
		return nil, ErrNoReferenceImages
	}
	return refs, nil
}

func (p *Pipeline) run(ctx context.Context, userAddress, contentID, candidateURL string, refs []database.ReferenceImage, hooks Hooks) (*Result, error) {
	start := time.Now()
	attemptID := p.attempts.Begin(userAddress)
	logger := p.logger.With("user_address", userAddress, "attempt", attemptID)

	var opts []matcher.Option
	if hooks.OnCompared != nil {
		opts = append(opts, matcher.WithOnCompared(hooks.OnCompared))
	}
	selection, err := matcher.NewSelector(p.oracle, opts...).SelectBest(ctx, candidateURL, refs)
	if err != nil {
		return nil, err
	}
	// An abandoned attempt leaves no record and no outcome: its comparisons
	// failed closed only because the context ended.
	if err := ctx.Err(); err != nil {
		logger.Info("attempt abandoned before completion", "error", err)
		return nil, err
	}
	p.observeComparisons(selection.Comparisons)

	outcome := Outcome{Judgement: selection.Winner, ContentID: contentID, CandidateURL: candidateURL}
	result := &Result{AttemptID: attemptID, Outcome: outcome, Selection: selection}

	// The record is written for every completed fan-out, superseded or not.
	result.Record, result.RecordErr = p.recorder.Record(ctx, userAddress, outcome)

	if !p.attempts.Complete(userAddress, attemptID, outcome) {
		result.Superseded = true
		p.metrics.AttemptSuperseded()
		logger.Info("attempt superseded by a newer one, outcome discarded")
	}

	status := string(database.StatusRejected)
	if outcome.Judgement.IsMatch {
		status = string(database.StatusVerified)
	}
	p.metrics.ObserveVerification(status, time.Since(start))

	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("attempt", attemptID),
		attribute.Bool("is_match", outcome.Judgement.IsMatch),
		attribute.Bool("superseded", result.Superseded),
	)

	fields := []any{"status", status, "score", outcome.Judgement.MatchScore, "confidence", outcome.Judgement.Confidence}
	if outcome.Judgement.MatchedProfile != nil {
		fields = append(fields, "profile_id", *outcome.Judgement.MatchedProfile)
	}
	logger.Info("verification completed", fields...)

	return result, nil
}

func (p *Pipeline) observeComparisons(comparisons []matcher.Comparison) {
	for _, c := range comparisons {
		outcome := metrics.OutcomeUnmatched
		switch {
		case c.Judgement.Degraded:
			outcome = metrics.OutcomeDegraded
		case c.Judgement.IsMatch:
			outcome = metrics.OutcomeMatched
		}
		p.metrics.ObserveComparison(p.provider, outcome, c.Duration)
	}
}
