package verification

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kozaktomas/identity-matcher/internal/ai"
	"github.com/kozaktomas/identity-matcher/internal/database"
	"github.com/kozaktomas/identity-matcher/internal/fingerprint"
	"github.com/kozaktomas/identity-matcher/internal/metrics"
)

// Outcome is the winning judgement of one attempt together with the
// candidate image it was made for.
type Outcome struct {
	Judgement    ai.Judgement `json:"judgement"`
	ContentID    string       `json:"content_id"`
	CandidateURL string       `json:"candidate_url"`
}

// ContentURLFunc maps a content id to its public gateway URL.
type ContentURLFunc func(contentID string) string

// Recorder writes one VerificationRecord per completed attempt.
type Recorder struct {
	store      database.RecordWriter
	hasher     *fingerprint.Hasher
	contentURL ContentURLFunc
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func NewRecorder(store database.RecordWriter, hasher *fingerprint.Hasher, contentURL ContentURLFunc, m *metrics.Metrics, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, hasher: hasher, contentURL: contentURL, metrics: m, logger: logger}
}

// BuildRecord derives the stored record from an outcome without writing it.
func (r *Recorder) BuildRecord(userAddress string, outcome Outcome) *database.VerificationRecord {
	j := outcome.Judgement
	rec := &database.VerificationRecord{
		UserAddress: userAddress,
		HashedURL:   r.hasher.Hash(r.contentURL(outcome.ContentID)),
		ContentID:   outcome.ContentID,
		MatchScore:  scoreToInt(j.MatchScore),
		Status:      database.StatusRejected,
	}
	if j.IsMatch {
		rec.Status = database.StatusVerified
		if j.MatchedProfile != nil {
			rec.ProfileID = *j.MatchedProfile
		}
	}
	return rec
}

// Record persists the attempt. A failure is logged and returned, never
// retried; the caller decides whether to surface it.
func (r *Recorder) Record(ctx context.Context, userAddress string, outcome Outcome) (*database.VerificationRecord, error) {
	ctx, span := tracer.Start(ctx, "verification.Record")
	defer span.End()

	rec := r.BuildRecord(userAddress, outcome)
	span.SetAttributes(attribute.String("status", string(rec.Status)))

	if err := r.store.InsertVerificationRecord(ctx, rec); err != nil {
		span.RecordError(err)
		r.metrics.RecordWriteFailed()
		r.logger.Error("failed to store verification record",
			"user_address", userAddress,
			"content_id", outcome.ContentID,
			"status", rec.Status,
			"error", err)
		return rec, fmt.Errorf("failed to store verification record: %w", err)
	}

	r.logger.Info("verification record stored",
		"id", rec.ID,
		"user_address", userAddress,
		"status", rec.Status,
		"profile_id", rec.ProfileID,
		"match_score", rec.MatchScore)
	return rec, nil
}

func scoreToInt(score float64) int {
	if math.IsNaN(score) || score <= 0 {
		return 0
	}
	if score >= 100 {
		return 100
	}
	return int(math.Round(score))
}
