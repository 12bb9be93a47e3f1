// Package signal derives per-message features from raw text and emotion scores.
package signal

import (
	"strings"
	"unicode"

	"github.com/zhouzirui/enoki/backend/internal/analysis/lexicon"
	"github.com/zhouzirui/enoki/backend/internal/model/chat"
)

// Elongation is the run length at which a repeated character counts as stretched ("soooo", "!!!!").
const Elongation = 4

var (
	positiveLabels = map[string]struct{}{
		"joy": {}, "love": {}, "admiration": {}, "excitement": {}, "amusement": {},
	}
	negativeLabels = map[string]struct{}{
		"sadness": {}, "disappointment": {}, "annoyance": {}, "anger": {}, "grief": {}, "fear": {},
	}
)

// Bundle is recomputed per message and never persisted.
type Bundle struct {
	NegativeHits  int     `json:"negative_hits"`
	HyperboleHits int     `json:"hyperbole_hits"`
	Elongated     bool    `json:"elongated"`
	Profane       bool    `json:"profane"`
	UpperRatio    float64 `json:"upper_ratio"`
	PositiveMass  float64 `json:"positive_mass"`
	NegativeMass  float64 `json:"negative_mass"`
}

// Extractor computes bundles against a fixed lexicon.
type Extractor struct {
	lex *lexicon.Set
}

// NewExtractor binds the extractor to lex; nil selects the embedded bank.
func NewExtractor(lex *lexicon.Set) *Extractor {
	if lex == nil {
		lex = lexicon.Default()
	}
	return &Extractor{lex: lex}
}

// Extract is pure and total: malformed emotion entries contribute zero.
func (e *Extractor) Extract(text string, emotions []chat.EmotionScore) Bundle {
	return Bundle{
		NegativeHits:  e.lex.NegativeEvent.Count(text),
		HyperboleHits: e.lex.Hyperbole.Count(text),
		Elongated:     HasElongation(text),
		Profane:       e.lex.Profanity.Any(text),
		UpperRatio:    UpperRatio(text),
		PositiveMass:  mass(emotions, positiveLabels),
		NegativeMass:  mass(emotions, negativeLabels),
	}
}

// HasElongation reports a run of Elongation or more identical non-space characters,
// ignoring case.
func HasElongation(text string) bool {
	var prev rune
	run := 0
	for _, r := range strings.ToLower(text) {
		if unicode.IsSpace(r) {
			prev, run = 0, 0
			continue
		}
		if r == prev {
			run++
		} else {
			prev, run = r, 1
		}
		if run >= Elongation {
			return true
		}
	}
	return false
}

// UpperRatio is uppercase letters over all letters, 0 when there are no letters.
func UpperRatio(text string) float64 {
	letters, upper := 0, 0
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.IsUpper(r) {
			upper++
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(upper) / float64(letters)
}

func mass(emotions []chat.EmotionScore, allow map[string]struct{}) float64 {
	total := 0.0
	for _, e := range emotions {
		if _, ok := allow[strings.ToLower(strings.TrimSpace(e.Label))]; !ok {
			continue
		}
		total += e.Weight()
	}
	return total
}
