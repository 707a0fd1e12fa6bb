package search

// ScoreClass names the scale a raw pipeline score arrives on.
type ScoreClass string

const (
	// ScoreVector covers cosine similarity, already in [0, 1].
	ScoreVector ScoreClass = "vector"

	// ScoreText covers unbounded relevance scores from $search and $text.
	ScoreText ScoreClass = "text"

	// ScoreFused covers fusion output normalized upstream.
	ScoreFused ScoreClass = "fused"
)

// textScoreHalfPoint is the raw text score that lands on 0.5 after
// normalization.
const textScoreHalfPoint = 5.0

// NormalizeScore maps a raw score onto [0, 1]. Text relevance scores have
// no upper bound, so they squash through s/(s+5); the other classes clamp.
func NormalizeScore(class ScoreClass, s float64) float64 {
	if s <= 0 {
		return 0
	}
	if class == ScoreText {
		return s / (s + textScoreHalfPoint)
	}
	return clamp01(s)
}

func clamp01(s float64) float64 {
	switch {
	case s < 0:
		return 0
	case s > 1:
		return 1
	}
	return s
}

// normalizeAll rewrites every score through the class normalization.
func normalizeAll(results []Result, class ScoreClass) {
	for i := range results {
		results[i].Score = NormalizeScore(class, results[i].Score)
	}
}
