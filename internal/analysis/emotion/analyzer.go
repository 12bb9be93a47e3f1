package emotion

import (
	"math"
	"sort"
	"strings"

	"github.com/zhouzirui/enoki/backend/internal/model/chat"
)

// Label 使用 go_emotions 标签空间，与远端情绪服务保持一致。
type Label string

const (
	Neutral        Label = "neutral"
	Joy            Label = "joy"
	Love           Label = "love"
	Excitement     Label = "excitement"
	Gratitude      Label = "gratitude"
	Sadness        Label = "sadness"
	Grief          Label = "grief"
	Disappointment Label = "disappointment"
	Anger          Label = "anger"
	Annoyance      Label = "annoyance"
	Fear           Label = "fear"
	Nervousness    Label = "nervousness"
)

// MaxConfidence caps heuristic scores so they never look like a confident model verdict.
const MaxConfidence = 0.6

const neutralConfidence = 0.3

var keywordBuckets = map[Label][]string{
	Joy: {
		"开心", "高兴", "快乐", "太好了", "happy", "glad", "lol", "haha", "awesome", "yay", "good news",
	},
	Love: {
		"喜欢", "爱你", "love", "adore", "miss you",
	},
	Excitement: {
		"期待", "激动", "兴奋", "can't wait", "cant wait", "excited", "hype", "wow", "pumped",
	},
	Gratitude: {
		"谢谢", "感谢", "thanks", "thank you", "grateful", "appreciate",
	},
	Sadness: {
		"难过", "伤心", "失落", "哭", "寂寞", "孤单", "sad", "unhappy", "cry", "crying", "depressed", "lonely",
		"empty", "hopeless", "miserable", "down", "heartbroken",
	},
	Grief: {
		"去世", "passed away", "funeral", "grieving", "mourning", "died", "loss of",
	},
	Disappointment: {
		"失望", "disappointed", "let down", "failed", "rejected", "didn't get",
	},
	Anger: {
		"生气", "愤怒", "气死", "angry", "furious", "rage", "mad", "hate", "pissed",
	},
	Annoyance: {
		"烦死", "受够了", "annoyed", "annoying", "irritated", "fed up", "ugh", "sick of",
	},
	Fear: {
		"害怕", "恐惧", "scared", "afraid", "terrified", "panic", "frightened", "can't breathe",
	},
	Nervousness: {
		"紧张", "焦虑", "anxious", "nervous", "worried", "stressed", "overwhelmed", "on edge",
	},
}

var punctuationBoost = map[Label]int{
	Joy:        1,
	Excitement: 2,
}

// Score 用关键词给出低置信度的情绪分布，供远端情绪服务不可用时兜底。
// 结果按分数降序，至少包含一个条目；没有命中时返回 neutral。
func Score(text string) []chat.EmotionScore {
	points := scoreText(text)
	if len(points) == 0 {
		return []chat.EmotionScore{{Label: string(Neutral), Score: neutralConfidence}}
	}

	total := 0
	for _, p := range points {
		total += p
	}

	out := make([]chat.EmotionScore, 0, len(points))
	for label, p := range points {
		share := float64(p) / float64(total)
		// 命中越多越可信，但不超过 MaxConfidence。
		confidence := math.Min(MaxConfidence, share*math.Min(1, float64(total)/6))
		out = append(out, chat.EmotionScore{Label: string(label), Score: round3(confidence)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].Label < out[j].Label
		}
		return out[i].Score > out[j].Score
	})
	return out
}

// Top 返回启发式判断的主导情绪。
func Top(text string) Label {
	scores := Score(text)
	return Label(scores[0].Label)
}

func scoreText(text string) map[Label]int {
	normalized := strings.TrimSpace(strings.ToLower(text))
	if normalized == "" {
		return nil
	}

	scores := make(map[Label]int)
	for label, keywords := range keywordBuckets {
		for _, word := range keywords {
			if word == "" {
				continue
			}
			if containsWord(normalized, word) {
				scores[label] += 3
			}
		}
	}

	// 感叹号只放大已有的积极情绪，不单独制造情绪。
	exclamations := strings.Count(text, "!") + strings.Count(text, "！")
	if exclamations > 0 {
		for label, boost := range punctuationBoost {
			if scores[label] > 0 {
				scores[label] += exclamations * boost
			}
		}
	}
	return scores
}

// containsWord 对 ASCII 关键词要求单词边界，避免 "sad" 命中 "crusade"。中文关键词按子串匹配。
func containsWord(text, word string) bool {
	word = strings.ToLower(word)
	if !isASCII(word) {
		return strings.Contains(text, word)
	}
	from := 0
	for {
		idx := strings.Index(text[from:], word)
		if idx < 0 {
			return false
		}
		start := from + idx
		end := start + len(word)
		if (start == 0 || !isWordByte(text[start-1])) && (end == len(text) || !isWordByte(text[end])) {
			return true
		}
		from = start + 1
	}
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

func isWordByte(b byte) bool {
	return b == '_' || b == '\'' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
