package matcher

import "github.com/kozaktomas/identity-matcher/internal/ai"

// EffectiveScore weights the raw score by the oracle's own certainty.
func EffectiveScore(j ai.Judgement) float64 {
	return j.MatchScore * (j.Confidence / 100)
}

// Reduce is a stable left fold over judgements: the first element seeds the
// accumulator and only a strictly greater effective score replaces it, so the
// earliest judgement wins ties. A degraded accumulator is also replaced by the
// first well-formed judgement, so a fail-closed default only wins when every
// comparison degraded. Returns -1 for an empty slice.
func Reduce(judgements []ai.Judgement) (int, ai.Judgement) {
	if len(judgements) == 0 {
		return -1, ai.Judgement{}
	}

	best, bestScore := 0, EffectiveScore(judgements[0])
	for i := 1; i < len(judgements); i++ {
		score := EffectiveScore(judgements[i])
		if score > bestScore || (judgements[best].Degraded && !judgements[i].Degraded && score == bestScore) {
			best, bestScore = i, score
		}
	}
	return best, judgements[best]
}
