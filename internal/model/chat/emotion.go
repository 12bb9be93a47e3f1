package chat

import (
	"math"
	"sort"
)

// EmotionScore is one label/confidence pair produced by the emotion scorer.
type EmotionScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Weight returns the score clamped into [0,1]. Malformed values weigh nothing.
func (e EmotionScore) Weight() float64 {
	if math.IsNaN(e.Score) || e.Score <= 0 {
		return 0
	}
	if e.Score > 1 {
		return 1
	}
	return e.Score
}

// TopEmotion returns the highest weighted entry.
func TopEmotion(scores []EmotionScore) (EmotionScore, bool) {
	best := EmotionScore{}
	found := false
	for _, s := range scores {
		if s.Label == "" {
			continue
		}
		if !found || s.Weight() > best.Weight() {
			best = EmotionScore{Label: s.Label, Score: s.Weight()}
			found = true
		}
	}
	return best, found
}

// TopEmotions returns up to n entries ordered by descending weight.
func TopEmotions(scores []EmotionScore, n int) []EmotionScore {
	sorted := make([]EmotionScore, 0, len(scores))
	for _, s := range scores {
		if s.Label == "" {
			continue
		}
		sorted = append(sorted, EmotionScore{Label: s.Label, Score: s.Weight()})
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })
	if n >= 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
