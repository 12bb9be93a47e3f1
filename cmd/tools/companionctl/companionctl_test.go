package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/enoki/backend/internal/analysis/risk"
	"github.com/zhouzirui/enoki/backend/internal/analysis/sarcasm"
)

func constant(label sarcasm.Label) verdictFunc {
	return func(context.Context, string) sarcasm.Verdict {
		return sarcasm.Verdict{Label: label}
	}
}

func TestSarcasmSetAlternates(t *testing.T) {
	require.Len(t, sarcasmSet, 50)
	for i, s := range sarcasmSet {
		assert.Equal(t, i%2 == 0, s.Sarcastic, "entry %d", i+1)
		assert.NotEmpty(t, s.Text)
	}
}

func TestEvaluateAllSarcastic(t *testing.T) {
	r := evaluate(context.Background(), sarcasmSet, constant(sarcasm.Sarcastic))

	assert.Equal(t, 50, r.Total())
	assert.Equal(t, 25, r.StrictCorrect)
	assert.Equal(t, 25, r.InclusiveCorrect)
	assert.Equal(t, 25, r.TP)
	assert.Equal(t, 25, r.FP)
	assert.Zero(t, r.TN+r.FN)
	assert.InDelta(t, 0.5, r.Precision(), 1e-9)
	assert.InDelta(t, 1.0, r.Recall(), 1e-9)
	assert.InDelta(t, 2.0/3.0, r.F1(), 1e-9)
}

func TestEvaluatePossiblyCountsOnlyInclusive(t *testing.T) {
	set := []labelledSentence{{Text: "a", Sarcastic: true}, {Text: "b", Sarcastic: false}}
	r := evaluate(context.Background(), set, constant(sarcasm.PossiblySarcastic))

	// strict reads possibly_sarcastic as negative
	assert.Equal(t, 1, r.StrictCorrect)
	assert.Equal(t, 1, r.InclusiveCorrect)
	assert.Equal(t, 1, r.TP)
	assert.Equal(t, 1, r.FP)
	assert.Equal(t, "TP", r.Rows[0].Outcome())
	assert.Equal(t, "FP", r.Rows[1].Outcome())
}

func TestEvaluateEmptySet(t *testing.T) {
	r := evaluate(context.Background(), nil, constant(sarcasm.Sarcastic))
	assert.Zero(t, r.StrictAccuracy())
	assert.Zero(t, r.F1())
}

func TestPrintReport(t *testing.T) {
	set := []labelledSentence{{Text: "Oh joy, my laptop crashed.", Sarcastic: true}}
	r := evaluate(context.Background(), set, constant(sarcasm.NotSarcastic))

	var buf bytes.Buffer
	printReport(&buf, r, sarcasm.DefaultConfig(), true)
	out := buf.String()

	assert.Contains(t, out, "[01] FN GT=sarcastic")
	assert.Contains(t, out, "Total Sentences: 1")
	assert.Contains(t, out, "Confusion (Inclusive): TP=0 FP=0 TN=0 FN=1")
	assert.Contains(t, out, "Thresholds (strict/possible): 0.55/0.25")
	assert.NotContains(t, out, "%!")
}

func localAnalysisEnv(t *testing.T) {
	t.Helper()
	t.Setenv("LLM_PROVIDER", "none")
	t.Setenv("EMOTION_SERVICE_ENABLED", "false")
	t.Setenv("LEXICON_PATH", "")
	useEmotionService = false
}

func TestClassifyExplicitMarker(t *testing.T) {
	localAnalysisEnv(t)
	a, err := loadAnalysis(context.Background())
	require.NoError(t, err)

	raw, err := classify(context.Background(), a, "I want to kill myself tonight")
	require.NoError(t, err)

	var out struct {
		Situation risk.Decision   `json:"situation"`
		Sarcasm   sarcasm.Verdict `json:"sarcasm"`
		Fallback  bool            `json:"emotion_fallback"`
	}
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, risk.ImmediateDanger, out.Situation.Category)
	assert.Equal(t, risk.LayerExplicitMarker, out.Situation.Layer)
	assert.True(t, out.Fallback)
}

func TestClassifyCommandRejectsBlankText(t *testing.T) {
	err := runClassify(classifyCmd, []string{"   "})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "empty"))
}
