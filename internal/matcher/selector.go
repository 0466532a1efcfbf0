// Package matcher fans a candidate image out against the reference catalog and
// reduces the oracle's judgements to a single winner.
package matcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kozaktomas/identity-matcher/internal/ai"
	"github.com/kozaktomas/identity-matcher/internal/database"
)

var tracer = otel.Tracer("identity-matcher/matcher")

// ErrNoReferences is returned by SelectBest for an empty reference set.
// Callers are expected to check the catalog before selecting.
var ErrNoReferences = errors.New("no reference images to compare against")

// Comparer is the oracle contract the selector relies on. Compare never fails.
type Comparer interface {
	Compare(ctx context.Context, referenceURL, candidateURL string, expectedProfileID int64) ai.Judgement
}

// Comparison is one reference evaluated against the candidate.
type Comparison struct {
	Reference database.ReferenceImage `json:"reference"`
	Judgement ai.Judgement            `json:"judgement"`
	Duration  time.Duration           `json:"duration"`
}

// ProgressInfo is reported after each comparison settles.
type ProgressInfo struct {
	Current    int
	Total      int
	Comparison Comparison
}

// Selection is the reduced outcome of a fan-out.
type Selection struct {
	Winner      ai.Judgement `json:"winner"`
	WinnerIndex int          `json:"winner_index"`
	Comparisons []Comparison `json:"comparisons"`
}

type Selector struct {
	oracle     Comparer
	onCompared func(ProgressInfo)
}

type Option func(*Selector)

// WithOnCompared registers a callback invoked once per settled comparison.
// Calls are serialized; Current counts completions, not reference positions.
func WithOnCompared(fn func(ProgressInfo)) Option {
	return func(s *Selector) {
		s.onCompared = fn
	}
}

func NewSelector(oracle Comparer, opts ...Option) *Selector {
	s := &Selector{oracle: oracle}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SelectBest compares candidateURL against every reference concurrently and
// returns the judgement with the greatest effective score. Every reference is
// evaluated; there is no early exit on a presumed match.
func (s *Selector) SelectBest(ctx context.Context, candidateURL string, refs []database.ReferenceImage) (*Selection, error) {
	if len(refs) == 0 {
		return nil, ErrNoReferences
	}

	ctx, span := tracer.Start(ctx, "matcher.SelectBest", trace.WithAttributes(
		attribute.Int("references", len(refs)),
	))
	defer span.End()

	var (
		progressMu sync.Mutex
		done       int
	)

	comparisons := Gather(ctx, refs, func(ctx context.Context, _ int, ref database.ReferenceImage) Comparison {
		start := time.Now()
		j := s.oracle.Compare(ctx, ref.URL, candidateURL, ref.ProfileID)
		if !j.Degraded {
			id := ref.ProfileID
			j.MatchedProfile = &id
		}
		c := Comparison{Reference: ref, Judgement: j, Duration: time.Since(start)}

		if s.onCompared != nil {
			progressMu.Lock()
			done++
			s.onCompared(ProgressInfo{Current: done, Total: len(refs), Comparison: c})
			progressMu.Unlock()
		}
		return c
	})

	judgements := make([]ai.Judgement, len(comparisons))
	for i, c := range comparisons {
		judgements[i] = c.Judgement
	}
	idx, winner := Reduce(judgements)

	span.SetAttributes(
		attribute.Int("winner_index", idx),
		attribute.Bool("is_match", winner.IsMatch),
		attribute.Float64("effective_score", EffectiveScore(winner)),
	)

	return &Selection{Winner: winner, WinnerIndex: idx, Comparisons: comparisons}, nil
}
