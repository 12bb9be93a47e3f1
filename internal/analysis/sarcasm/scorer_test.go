package sarcasm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/enoki/backend/internal/analysis/signal"
	"github.com/zhouzirui/enoki/backend/internal/model/chat"
)

func TestScoreCoffeeSpill(t *testing.T) {
	s := NewScorer(DefaultConfig(), nil)

	v := s.Score(Input{Text: "I spilled coffee everywhere, best day ever!"})

	assert.Equal(t, Sarcastic, v.Label)
	assert.InDelta(t, 0.6, v.Score, 1e-9)
	assert.Equal(t, []string{SourceHyperbole, SourcePosNegCombo}, v.Sources)
}

func TestScoreNoSignals(t *testing.T) {
	s := NewScorer(DefaultConfig(), nil)

	v := s.Score(Input{Text: "I took my dog for a walk today."})

	assert.Equal(t, NotSarcastic, v.Label)
	assert.Zero(t, v.Score)
	assert.Equal(t, []string{SourceNone}, v.Sources)
}

func TestContradictionSuppressesCombo(t *testing.T) {
	s := NewScorer(DefaultConfig(), nil)

	v := s.Score(Input{
		Text:     "Best day ever, my flight got cancelled",
		Emotions: []chat.EmotionScore{{Label: "joy", Score: 0.7}},
	})

	assert.Contains(t, v.Sources, SourceContradiction)
	assert.NotContains(t, v.Sources, SourcePosNegCombo)
	assert.Equal(t, Sarcastic, v.Label)
}

func TestStyleRequiresNegativeEvent(t *testing.T) {
	s := NewScorer(DefaultConfig(), nil)

	v := s.Score(Input{Text: "Soooo fantastic, damn"})

	assert.Equal(t, []string{SourceNone}, v.Sources)
	assert.Zero(t, v.Score)
}

func TestIronyModelAndBorderline(t *testing.T) {
	s := NewScorer(DefaultConfig(), nil)

	// 0.5*0.9 + 0.05 = 0.50 sits just under the strict threshold.
	v := s.Score(Input{
		Text:  "My bus was delayed again",
		Irony: Irony{Label: "irony", Score: 0.9},
	})

	assert.Equal(t, []string{SourceIronyModel, SourceBorderlineAssist}, v.Sources)
	assert.InDelta(t, 0.56, v.Score, 1e-9)
	assert.Equal(t, Sarcastic, v.Label)
}

func TestWeakIronyIsStillAudited(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PossibleThreshold = 0.2
	s := NewScorer(cfg, nil)

	v := s.Score(Input{Text: "I took my dog for a walk today.", Irony: Irony{Label: "irony", Score: 0.45}})

	assert.InDelta(t, 0.225, v.Score, 1e-9)
	assert.Equal(t, PossiblySarcastic, v.Label)
	assert.Equal(t, []string{SourceIronyModel}, v.Sources)
}

func TestIronyProbability(t *testing.T) {
	assert.InDelta(t, 0.8, Irony{Label: "irony", Score: 0.8}.Probability(), 1e-9)
	assert.InDelta(t, 0.2, Irony{Label: "non_irony", Score: 0.8}.Probability(), 1e-9)
	assert.Zero(t, Irony{Label: "??", Score: 0.8}.Probability())
	assert.Zero(t, Irony{Label: "irony", Score: math.NaN()}.Probability())
}

func TestIntentFlag(t *testing.T) {
	s := NewScorer(DefaultConfig(), nil)

	v := s.Score(Input{Text: "sure thing", Intent: true})

	assert.Equal(t, []string{SourceIntentModel}, v.Sources)
	assert.Equal(t, Sarcastic, v.Label)
}

func TestScoreIsClamped(t *testing.T) {
	s := NewScorer(DefaultConfig(), nil)

	v := s.ScoreBundle(signal.Bundle{
		NegativeHits:  3,
		HyperboleHits: 2,
		Elongated:     true,
		Profane:       true,
		PositiveMass:  1,
	}, Irony{Label: "irony", Score: 1}, true)

	assert.Equal(t, 1.0, v.Score)
	assert.Equal(t, Sarcastic, v.Label)
}

func TestCalibrationBlend(t *testing.T) {
	cal, err := ParseCalibration(`{"intercept": 0, "combo": 0}`)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Calibration = cal
	s := NewScorer(cfg, nil)

	// sigmoid(0) = 0.5, blended with 0.6 at equal weight.
	v := s.Score(Input{Text: "I spilled coffee everywhere, best day ever!"})
	assert.InDelta(t, 0.55, v.Score, 1e-9)
}

func TestInvalidCalibrationFallsBack(t *testing.T) {
	_, err := ParseCalibration(`{"intercept": "x"}`)
	require.Error(t, err)

	cfg := DefaultConfig()
	cfg.Calibration = &Calibration{Intercept: math.NaN()}
	s := NewScorer(cfg, nil)

	v := s.Score(Input{Text: "I spilled coffee everywhere, best day ever!"})
	assert.InDelta(t, 0.6, v.Score, 1e-9)
}

func TestParseCalibrationEmpty(t *testing.T) {
	cal, err := ParseCalibration("  ")
	require.NoError(t, err)
	assert.Nil(t, cal)
}

func TestLabelFor(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, NotSarcastic, cfg.LabelFor(0.1))
	assert.Equal(t, PossiblySarcastic, cfg.LabelFor(0.25))
	assert.Equal(t, Sarcastic, cfg.LabelFor(0.55))
}
