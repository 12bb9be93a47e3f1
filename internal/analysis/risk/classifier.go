// Package risk classifies each message into a situation category. Checks run in a fixed
// order and short-circuit: explicit self-harm markers, a grief shortcut over emotion
// scores, then the model, then a deterministic rule over the top emotion.
package risk

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/zhouzirui/enoki/backend/internal/analysis/lexicon"
	"github.com/zhouzirui/enoki/backend/internal/model/chat"
	"github.com/zhouzirui/enoki/backend/internal/model/generation"
)

// Layer records which check produced the decision.
type Layer string

const (
	LayerExplicitMarker Layer = "explicit_marker"
	LayerEmotion        Layer = "emotion_shortcut"
	LayerModel          Layer = "model"
	LayerFallback       Layer = "fallback"
)

// Fallback reasons.
const (
	ReasonUnclassified = "unclassified"
	ReasonModelError   = "model_error"
	ReasonNoModel      = "no_model"
)

// Config tunes the emotion shortcut, the fallback rule and the model call.
type Config struct {
	GriefThreshold    float64
	GriefLabels       []string
	FallbackThreshold float64
	Temperature       float32
	MaxTokens         int
	Timeout           time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		GriefThreshold:    0.85,
		GriefLabels:       []string{"sadness", "grief", "disappointment", "remorse"},
		FallbackThreshold: 0.5,
		Temperature:       0,
		MaxTokens:         12,
		Timeout:           5 * time.Second,
	}
}

// Decision is the classifier output.
type Decision struct {
	Category Category `json:"category"`
	Layer    Layer    `json:"layer"`
	Marker   string   `json:"marker,omitempty"`
	Reason   string   `json:"reason,omitempty"`
}

// Classifier is safe for concurrent use.
type Classifier struct {
	cfg   Config
	lex   *lexicon.Set
	model generation.Generator
	grief map[string]struct{}
}

// NewClassifier wires the classifier. gen may be nil, in which case the model layer is
// skipped and the fallback rule always applies.
func NewClassifier(cfg Config, lex *lexicon.Set, gen generation.Generator) *Classifier {
	if lex == nil {
		lex = lexicon.Default()
	}
	grief := make(map[string]struct{}, len(cfg.GriefLabels))
	for _, label := range cfg.GriefLabels {
		grief[strings.ToLower(label)] = struct{}{}
	}
	return &Classifier{cfg: cfg, lex: lex, model: gen, grief: grief}
}

// Classify is total: it always returns exactly one category.
func (c *Classifier) Classify(ctx context.Context, text string, emotions []chat.EmotionScore) Decision {
	if marker, ok := c.ExplicitMarker(text); ok {
		return Decision{Category: ImmediateDanger, Layer: LayerExplicitMarker, Marker: marker}
	}

	top, hasTop := chat.TopEmotion(emotions)
	if hasTop && top.Weight() > c.cfg.GriefThreshold && c.isGriefLabel(top.Label) && c.lex.Grief.Any(text) {
		return Decision{Category: Grief, Layer: LayerEmotion}
	}

	if c.model == nil {
		return c.fallback(text, top, hasTop, ReasonNoModel)
	}

	raw, err := c.model.Generate(ctx, c.prompt(text), generation.Options{
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
		Timeout:     c.cfg.Timeout,
	})
	if err != nil {
		log.Printf("[risk] model classification failed, using fallback: %v", err)
		return c.fallback(text, top, hasTop, ReasonModelError)
	}
	if category, ok := ParseModelOutput(raw); ok {
		return Decision{Category: category, Layer: LayerModel}
	}
	return c.fallback(text, top, hasTop, ReasonUnclassified)
}

// ExplicitMarker reports the first configured self-harm phrase found in text.
func (c *Classifier) ExplicitMarker(text string) (string, bool) {
	matches := c.lex.Risk.Matches(text)
	if len(matches) == 0 {
		return "", false
	}
	return matches[0], true
}

// fallback prefers escalation: a panic phrase or fear lands on panic before distress.
func (c *Classifier) fallback(text string, top chat.EmotionScore, hasTop bool, reason string) Decision {
	d := Decision{Category: Normal, Layer: LayerFallback, Reason: reason}
	label := ""
	if hasTop {
		label = strings.ToLower(top.Label)
	}
	switch {
	case label == "fear" && top.Weight() > c.cfg.FallbackThreshold:
		d.Category = Panic
	case c.lex.Panic.Any(text):
		d.Category = Panic
	case (label == "sadness" || label == "anger") && top.Weight() > c.cfg.FallbackThreshold:
		d.Category = HighDistress
	}
	return d
}

func (c *Classifier) isGriefLabel(label string) bool {
	_, ok := c.grief[strings.ToLower(strings.TrimSpace(label))]
	return ok
}

func (c *Classifier) prompt(text string) string {
	tokens := make([]string, 0, len(Categories()))
	for _, category := range Categories() {
		tokens = append(tokens, category.Token())
	}
	return fmt.Sprintf(`Classify the emotional situation of the message below for a supportive companion.
Answer with exactly one of these tokens and nothing else: %s.

IMMEDIATE_DANGER: intent or plan to harm self or others.
GRIEF: loss or death of a person or pet.
PANIC: acute anxiety, panic attack, physical alarm.
HIGH_DISTRESS: strong sadness, anger or hopelessness without danger.
NORMAL: everything else.

Message: %q`, strings.Join(tokens, ", "), text)
}
