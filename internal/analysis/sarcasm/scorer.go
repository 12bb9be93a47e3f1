// Package sarcasm scores how likely a message is sarcastic by aggregating independent
// lexical, emotional and model signals.
package sarcasm

import (
	"math"
	"strings"

	"github.com/zhouzirui/enoki/backend/internal/analysis/signal"
	"github.com/zhouzirui/enoki/backend/internal/model/chat"
)

// Label is the discrete verdict.
type Label string

const (
	NotSarcastic      Label = "not_sarcastic"
	PossiblySarcastic Label = "possibly_sarcastic"
	Sarcastic         Label = "sarcastic"
)

// Audit trail entries recorded in Verdict.Sources.
const (
	SourceNone             = "none"
	SourceIronyModel       = "irony_model"
	SourceIntentModel      = "intent_model"
	SourceContradiction    = "contradiction"
	SourceElongation       = "elongation"
	SourceProfanity        = "profanity"
	SourceHyperbole        = "hyperbole"
	SourcePosNegCombo      = "pos_neg_combo"
	SourceBorderlineAssist = "borderline_assist"
)

// Irony is the vendor irony signal for one message.
type Irony struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Probability converts the label/confidence pair into P(ironic).
func (i Irony) Probability() float64 {
	score := i.Score
	if math.IsNaN(score) || score < 0 {
		return 0
	}
	if score > 1 {
		score = 1
	}
	switch strings.ToLower(strings.TrimSpace(i.Label)) {
	case "irony", "ironic", "sarcasm", "sarcastic", "label_1":
		return score
	case "non_irony", "not_irony", "non-irony", "not_sarcastic", "label_0":
		return 1 - score
	default:
		return 0
	}
}

// Input is everything the scorer looks at for one message.
type Input struct {
	Text     string
	Emotions []chat.EmotionScore
	Irony    Irony
	// Intent is the intent model's binary "sarcasm" flag.
	Intent bool
}

// Verdict is the scorer output. Sources never drives control flow.
type Verdict struct {
	Label   Label    `json:"label"`
	Score   float64  `json:"score"`
	Sources []string `json:"sources"`
}

// Scorer is stateless after construction and safe for concurrent use.
type Scorer struct {
	cfg       Config
	extractor *signal.Extractor
}

// NewScorer builds a scorer. A nil extractor selects the embedded lexicon.
func NewScorer(cfg Config, extractor *signal.Extractor) *Scorer {
	if extractor == nil {
		extractor = signal.NewExtractor(nil)
	}
	return &Scorer{cfg: cfg, extractor: extractor}
}

// Config returns the scorer configuration.
func (s *Scorer) Config() Config {
	return s.cfg
}

// Score extracts signals from the input and scores them.
func (s *Scorer) Score(in Input) Verdict {
	return s.ScoreBundle(s.extractor.Extract(in.Text, in.Emotions), in.Irony, in.Intent)
}

type features struct {
	irony         float64
	intent        float64
	contradiction float64
	style         float64
	combo         float64
	positiveMass  float64
	negativeHits  float64
}

// ScoreBundle scores precomputed signals.
func (s *Scorer) ScoreBundle(b signal.Bundle, irony Irony, intent bool) Verdict {
	cfg := s.cfg
	var (
		score   float64
		sources []string
		f       = features{positiveMass: b.PositiveMass, negativeHits: float64(b.NegativeHits)}
	)
	add := func(source string) {
		for _, existing := range sources {
			if existing == source {
				return
			}
		}
		sources = append(sources, source)
	}

	p := irony.Probability()
	ironyContribution := cfg.IronyWeight * p
	if p >= cfg.IronyFloor && p > 0 {
		ironyContribution += cfg.IronyFloorBonus
	}
	if ironyContribution > 0 {
		add(SourceIronyModel)
	}
	score += ironyContribution
	f.irony = p

	if intent {
		score += cfg.IntentWeight
		f.intent = 1
		add(SourceIntentModel)
	}

	contradiction := (b.PositiveMass >= cfg.ContradictionPosMass && b.NegativeHits >= 1) ||
		(b.PositiveMass >= cfg.ContradictionPosMassLow && b.NegativeHits >= 2)
	if contradiction {
		score += cfg.ContradictionWeight
		f.contradiction = 1
		add(SourceContradiction)
	}

	if b.NegativeHits >= 1 {
		if b.Elongated {
			score += cfg.StyleWeight
			f.style++
			add(SourceElongation)
		}
		if b.Profane {
			score += cfg.StyleWeight
			f.style++
			add(SourceProfanity)
		}
		if b.HyperboleHits >= 1 {
			score += cfg.StyleWeight
			f.style++
			add(SourceHyperbole)
		}
	}

	// The combo only fires when contradiction did not, so the same evidence is not counted twice.
	if !contradiction && b.HyperboleHits >= 1 && b.NegativeHits >= 1 {
		score += cfg.ComboWeight
		f.combo = 1
		add(SourcePosNegCombo)
	}

	if b.NegativeHits >= 1 && ironyContribution < cfg.StrictThreshold &&
		ironyContribution >= cfg.StrictThreshold-cfg.BorderlineMargin {
		score += cfg.BorderlineBump
		add(SourceBorderlineAssist)
	}

	score = clamp01(score)
	if blended, ok := s.blend(score, f); ok {
		score = blended
	}

	if len(sources) == 0 {
		sources = []string{SourceNone}
	}
	return Verdict{Label: cfg.LabelFor(score), Score: score, Sources: sources}
}

// blend mixes the additive score with the calibrated logistic estimate. Any invalid
// configuration leaves the additive score untouched.
func (s *Scorer) blend(additive float64, f features) (float64, bool) {
	c := s.cfg.Calibration
	w := s.cfg.BlendWeight
	if !c.Valid() || math.IsNaN(w) || w < 0 || w > 1 {
		return additive, false
	}
	z := c.Intercept +
		c.Irony*f.irony +
		c.Intent*f.intent +
		c.Contradiction*f.contradiction +
		c.Style*f.style +
		c.Combo*f.combo +
		c.PositiveMass*f.positiveMass +
		c.NegativeHits*f.negativeHits
	prob := 1 / (1 + math.Exp(-z))
	if math.IsNaN(prob) {
		return additive, false
	}
	return clamp01((1-w)*additive + w*prob), true
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
