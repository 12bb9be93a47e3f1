package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/enoki/backend/internal/analysis/risk"
	"github.com/zhouzirui/enoki/backend/internal/analysis/sarcasm"
	"github.com/zhouzirui/enoki/backend/internal/app"
	"github.com/zhouzirui/enoki/backend/internal/config"
	"github.com/zhouzirui/enoki/backend/internal/model/chat"
	"github.com/zhouzirui/enoki/backend/internal/service/emotion"
)

type labelledSentence struct {
	Text      string
	Sarcastic bool
}

type evalRow struct {
	Text    string
	Truth   bool
	Verdict sarcasm.Verdict
}

// Outcome uses the inclusive reading: possibly_sarcastic counts as positive.
func (r evalRow) Outcome() string {
	predicted := r.Verdict.Label != sarcasm.NotSarcastic
	switch {
	case predicted && r.Truth:
		return "TP"
	case predicted:
		return "FP"
	case r.Truth:
		return "FN"
	default:
		return "TN"
	}
}

type evalReport struct {
	Rows             []evalRow
	StrictCorrect    int
	InclusiveCorrect int
	TP, FP, TN, FN   int
}

func (r evalReport) Total() int { return len(r.Rows) }

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

func (r evalReport) StrictAccuracy() float64    { return ratio(r.StrictCorrect, r.Total()) }
func (r evalReport) InclusiveAccuracy() float64 { return ratio(r.InclusiveCorrect, r.Total()) }
func (r evalReport) Precision() float64         { return ratio(r.TP, r.TP+r.FP) }
func (r evalReport) Recall() float64            { return ratio(r.TP, r.TP+r.FN) }

func (r evalReport) F1() float64 {
	p, rc := r.Precision(), r.Recall()
	if p+rc == 0 {
		return 0
	}
	return 2 * p * rc / (p + rc)
}

type verdictFunc func(ctx context.Context, text string) sarcasm.Verdict

func evaluate(ctx context.Context, set []labelledSentence, score verdictFunc) evalReport {
	var report evalReport
	for _, s := range set {
		row := evalRow{Text: s.Text, Truth: s.Sarcastic, Verdict: score(ctx, s.Text)}
		report.Rows = append(report.Rows, row)

		if (row.Verdict.Label == sarcasm.Sarcastic) == s.Sarcastic {
			report.StrictCorrect++
		}
		switch row.Outcome() {
		case "TP":
			report.TP++
			report.InclusiveCorrect++
		case "TN":
			report.TN++
			report.InclusiveCorrect++
		case "FP":
			report.FP++
		case "FN":
			report.FN++
		}
	}
	return report
}

func printReport(w io.Writer, r evalReport, cfg sarcasm.Config, verbose bool) {
	if verbose {
		for i, row := range r.Rows {
			truth := sarcasm.NotSarcastic
			if row.Truth {
				truth = sarcasm.Sarcastic
			}
			fmt.Fprintf(w, "[%02d] %s GT=%-13s Pred=%-18s Score=%.2f Text=%s\n",
				i+1, row.Outcome(), truth, row.Verdict.Label, row.Verdict.Score, row.Text)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w, "=== Sarcasm Evaluation Summary ===")
	fmt.Fprintf(w, "Total Sentences: %d\n", r.Total())
	fmt.Fprintf(w, "Strict Accuracy:    %.2f%%\n", 100*r.StrictAccuracy())
	fmt.Fprintf(w, "Inclusive Accuracy: %.2f%%\n", 100*r.InclusiveAccuracy())
	fmt.Fprintf(w, "Precision: %.2f%%  Recall: %.2f%%  F1: %.2f%%\n", 100*r.Precision(), 100*r.Recall(), 100*r.F1())
	fmt.Fprintf(w, "Confusion (Inclusive): TP=%d FP=%d TN=%d FN=%d\n", r.TP, r.FP, r.TN, r.FN)
	fmt.Fprintf(w, "Thresholds (strict/possible): %.2f/%.2f\n", cfg.StrictThreshold, cfg.PossibleThreshold)
}

// loadAnalysis builds the analysis stack. Without --remote the emotion client stays
// disabled so every signal comes from local heuristics.
func loadAnalysis(ctx context.Context) (*app.Analysis, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	a, err := app.NewAnalysis(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if !useEmotionService {
		a.Emotion = emotion.NewService(emotion.Config{}, nil)
	}
	return a, nil
}

func scoreText(ctx context.Context, a *app.Analysis, text string) (emotion.Result, sarcasm.Verdict) {
	signals := a.Emotion.Analyze(ctx, text)
	return signals, a.Sarcasm.Score(sarcasm.Input{
		Text:     text,
		Emotions: signals.Emotions,
		Irony:    signals.Irony,
		Intent:   signals.Intent,
	})
}

func scorerVerdicts(a *app.Analysis) verdictFunc {
	return func(ctx context.Context, text string) sarcasm.Verdict {
		_, v := scoreText(ctx, a, text)
		return v
	}
}

func runSarcasmEval(cmd *cobra.Command, args []string) error {
	a, err := loadAnalysis(cmd.Context())
	if err != nil {
		return err
	}
	report := evaluate(cmd.Context(), sarcasmSet, scorerVerdicts(a))
	printReport(cmd.OutOrStdout(), report, a.Sarcasm.Config(), evalVerbose)
	return nil
}

type classification struct {
	Text      string              `json:"text"`
	Emotions  []chat.EmotionScore `json:"emotions"`
	Fallback  bool                `json:"emotion_fallback"`
	Sarcasm   sarcasm.Verdict     `json:"sarcasm"`
	Situation risk.Decision       `json:"situation"`
}

func runClassify(cmd *cobra.Command, args []string) error {
	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" {
		return fmt.Errorf("text must not be empty")
	}
	a, err := loadAnalysis(cmd.Context())
	if err != nil {
		return err
	}
	out, err := classify(cmd.Context(), a, text)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}

func classify(ctx context.Context, a *app.Analysis, text string) ([]byte, error) {
	signals, verdict := scoreText(ctx, a, text)
	decision := a.Risk.Classify(ctx, text, signals.Emotions)
	return json.MarshalIndent(classification{
		Text:      text,
		Emotions:  signals.Emotions,
		Fallback:  signals.Fallback,
		Sarcasm:   verdict,
		Situation: decision,
	}, "", "  ")
}
