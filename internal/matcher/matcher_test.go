package matcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/identity-matcher/internal/ai"
	"github.com/kozaktomas/identity-matcher/internal/database"
	"github.com/kozaktomas/identity-matcher/internal/logging"
)

type scoredComparer struct {
	scores map[int64][2]float64 // profile id -> (matchScore, confidence)
	delay  map[int64]time.Duration
	fail   map[int64]bool
	calls  atomic.Int32

	mu   sync.Mutex
	seen []int64
}

func (s *scoredComparer) Compare(ctx context.Context, referenceURL, candidateURL string, expectedProfileID int64) ai.Judgement {
	s.calls.Add(1)
	if d, ok := s.delay[expectedProfileID]; ok {
		time.Sleep(d)
	}
	s.mu.Lock()
	s.seen = append(s.seen, expectedProfileID)
	s.mu.Unlock()

	if s.fail[expectedProfileID] {
		return ai.FailClosed("stub API error")
	}
	sc := s.scores[expectedProfileID]
	return ai.Judgement{MatchScore: sc[0], Confidence: sc[1], IsMatch: sc[0] >= 60, Analysis: "stub"}
}

func refs(profileIDs ...int64) []database.ReferenceImage {
	out := make([]database.ReferenceImage, len(profileIDs))
	for i, id := range profileIDs {
		out[i] = database.ReferenceImage{
			ID:        string(rune('a' + i)),
			ProfileID: id,
			ContentID: "cid-" + string(rune('a'+i)),
			URL:       "https://gateway.example/ipfs/cid-" + string(rune('a'+i)),
		}
	}
	return out
}

func TestSelectBest_HighestEffectiveScoreWins(t *testing.T) {
	c := &scoredComparer{scores: map[int64][2]float64{
		1: {90, 50},
		2: {70, 95},
		3: {40, 99},
	}}
	s := NewSelector(c)

	sel, err := s.SelectBest(context.Background(), "https://gateway.example/ipfs/candidate", refs(1, 2, 3))
	require.NoError(t, err)

	assert.Equal(t, 1, sel.WinnerIndex)
	require.NotNil(t, sel.Winner.MatchedProfile)
	assert.Equal(t, int64(2), *sel.Winner.MatchedProfile)
	assert.InDelta(t, 66.5, EffectiveScore(sel.Winner), 1e-9)
	assert.Len(t, sel.Comparisons, 3)
	assert.Equal(t, int32(3), c.calls.Load())
}

func TestSelectBest_TieKeepsFirstReference(t *testing.T) {
	c := &scoredComparer{
		scores: map[int64][2]float64{
			1: {100, 50},
			2: {50, 100},
		},
		// the first reference finishing last must not change the outcome
		delay: map[int64]time.Duration{1: 20 * time.Millisecond},
	}
	s := NewSelector(c)

	sel, err := s.SelectBest(context.Background(), "cand", refs(1, 2))
	require.NoError(t, err)

	assert.Equal(t, 0, sel.WinnerIndex)
	require.NotNil(t, sel.Winner.MatchedProfile)
	assert.Equal(t, int64(1), *sel.Winner.MatchedProfile)
	assert.Equal(t, []int64{2, 1}, c.seen)
}

func TestSelectBest_MatchedProfileIsAlwaysFromCatalog(t *testing.T) {
	c := &scoredComparer{scores: map[int64][2]float64{
		4:  {10, 10},
		9:  {80, 80},
		17: {30, 90},
	}}
	catalog := refs(4, 9, 17)
	sel, err := NewSelector(c).SelectBest(context.Background(), "cand", catalog)
	require.NoError(t, err)

	members := map[int64]bool{}
	for _, r := range catalog {
		members[r.ProfileID] = true
	}
	for _, cmp := range sel.Comparisons {
		require.NotNil(t, cmp.Judgement.MatchedProfile)
		assert.Equal(t, cmp.Reference.ProfileID, *cmp.Judgement.MatchedProfile)
		assert.True(t, members[*cmp.Judgement.MatchedProfile])
	}
}

func TestSelectBest_EmptyReferences(t *testing.T) {
	c := &scoredComparer{}
	_, err := NewSelector(c).SelectBest(context.Background(), "cand", nil)

	assert.ErrorIs(t, err, ErrNoReferences)
	assert.Zero(t, c.calls.Load())
}

type failingProvider struct {
	ai.Provider
}

func (failingProvider) Name() string { return "failing" }

func (failingProvider) CompareImages(context.Context, *ai.CompareRequest) (*ai.Judgement, error) {
	return nil, errors.New("connection refused")
}

func TestSelectBest_AllComparisonsFail(t *testing.T) {
	oracle := ai.NewOracle(failingProvider{}, time.Second, logging.Discard())

	sel, err := NewSelector(oracle).SelectBest(context.Background(), "cand", refs(1, 2, 3))
	require.NoError(t, err)

	assert.False(t, sel.Winner.IsMatch)
	assert.Nil(t, sel.Winner.MatchedProfile)
	assert.True(t, sel.Winner.Degraded)
	assert.Zero(t, sel.Winner.MatchScore)
	assert.Zero(t, sel.Winner.Confidence)
	assert.Equal(t, 0, sel.WinnerIndex)
	for _, cmp := range sel.Comparisons {
		assert.True(t, cmp.Judgement.Degraded)
		assert.Contains(t, cmp.Judgement.Analysis, "Failed to analyze images")
	}
}

func TestSelectBest_WellFormedJudgementBeatsEarlierDegraded(t *testing.T) {
	c := &scoredComparer{
		scores: map[int64][2]float64{2: {0, 70}},
		fail:   map[int64]bool{1: true},
	}

	sel, err := NewSelector(c).SelectBest(context.Background(), "cand", refs(1, 2))
	require.NoError(t, err)

	assert.Equal(t, 1, sel.WinnerIndex)
	assert.False(t, sel.Winner.Degraded)
	require.NotNil(t, sel.Winner.MatchedProfile)
	assert.Equal(t, int64(2), *sel.Winner.MatchedProfile)
	assert.True(t, sel.Comparisons[0].Judgement.Degraded)
}

func TestSelectBest_ProgressReportsEveryComparison(t *testing.T) {
	c := &scoredComparer{scores: map[int64][2]float64{1: {1, 1}, 2: {2, 2}, 3: {3, 3}, 4: {4, 4}}}

	var reports []ProgressInfo
	s := NewSelector(c, WithOnCompared(func(p ProgressInfo) {
		reports = append(reports, p)
	}))

	_, err := s.SelectBest(context.Background(), "cand", refs(1, 2, 3, 4))
	require.NoError(t, err)

	require.Len(t, reports, 4)
	for i, p := range reports {
		assert.Equal(t, i+1, p.Current)
		assert.Equal(t, 4, p.Total)
	}
}

func TestGather_WaitsForAllAndKeepsOrder(t *testing.T) {
	items := []int{5, 1, 3, 0, 2}
	var running atomic.Int32

	out := Gather(context.Background(), items, func(_ context.Context, i int, item int) int {
		running.Add(1)
		time.Sleep(time.Duration(item) * time.Millisecond)
		running.Add(-1)
		return item * 10
	})

	assert.Zero(t, running.Load())
	assert.Equal(t, []int{50, 10, 30, 0, 20}, out)
}

func TestReduce(t *testing.T) {
	tests := []struct {
		name string
		in   []ai.Judgement
		want int
	}{
		{"empty", nil, -1},
		{"single", []ai.Judgement{{MatchScore: 0}}, 0},
		{"all zero keeps first", []ai.Judgement{{}, {}, {}}, 0},
		{"strictly greater replaces", []ai.Judgement{{MatchScore: 50, Confidence: 50}, {MatchScore: 50, Confidence: 51}}, 1},
		{"equal does not replace", []ai.Judgement{{MatchScore: 80, Confidence: 50}, {MatchScore: 40, Confidence: 100}}, 0},
		{"confidence discounts score", []ai.Judgement{{MatchScore: 100, Confidence: 10}, {MatchScore: 20, Confidence: 100}}, 1},
		{"well-formed zero beats degraded first", []ai.Judgement{ai.FailClosed("down"), {MatchScore: 0, Confidence: 80}}, 1},
		{"all degraded keeps first", []ai.Judgement{ai.FailClosed("a"), ai.FailClosed("b")}, 0},
		{"degraded never replaces well-formed", []ai.Judgement{{MatchScore: 0, Confidence: 0}, ai.FailClosed("down")}, 0},
		{"first well-formed wins among later ties", []ai.Judgement{ai.FailClosed("down"), {Confidence: 50}, {Confidence: 90}}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := Reduce(tt.in)
			assert.Equal(t, tt.want, got)
		})
	}
}
