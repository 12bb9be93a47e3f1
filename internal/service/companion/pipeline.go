// Package companion runs one inbound message through analysis, classification, reply
// generation, memory evolution and consent-gated persistence.
package companion

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/zhouzirui/enoki/backend/internal/analysis/risk"
	"github.com/zhouzirui/enoki/backend/internal/analysis/sarcasm"
	"github.com/zhouzirui/enoki/backend/internal/analysis/signal"
	"github.com/zhouzirui/enoki/backend/internal/metrics"
	"github.com/zhouzirui/enoki/backend/internal/model/chat"
	chatsvc "github.com/zhouzirui/enoki/backend/internal/service/chat"
	"github.com/zhouzirui/enoki/backend/internal/service/emotion"
	"github.com/zhouzirui/enoki/backend/internal/service/memory"
	"github.com/zhouzirui/enoki/backend/internal/service/reply"
	"github.com/zhouzirui/enoki/backend/internal/store"
)

var (
	ErrEmptyMessage   = errors.New("message is required")
	ErrMessageTooLong = errors.New("message is too long")
)

const (
	MaxMessageLength = 4000
	topEmotions      = 5
	ephemeralNotice  = "Conversation stored in memory only - enable data storage for full continuity across sessions."
)

// Analyzer supplies the external emotion and irony signals.
type Analyzer interface {
	Analyze(ctx context.Context, text string) emotion.Result
}

// Deps groups the pipeline collaborators.
type Deps struct {
	Chats     *chatsvc.Service
	Analyzer  Analyzer
	Extractor *signal.Extractor
	Sarcasm   *sarcasm.Scorer
	Risk      *risk.Classifier
	Replies   *reply.Builder
	Memory    *memory.Evolver
}

// Pipeline is safe for concurrent use; work for one identity is serialized.
type Pipeline struct {
	Deps
	historyWindow int
	now           func() time.Time
}

// New builds the pipeline.
func New(deps Deps) *Pipeline {
	window := 12
	if deps.Memory != nil && deps.Memory.Config().HistoryWindow > 0 {
		window = deps.Memory.Config().HistoryWindow
	}
	return &Pipeline{Deps: deps, historyWindow: window, now: time.Now}
}

// Message is one submission with optional preference changes applied first.
type Message struct {
	Text     string
	Tone     *string
	Language *string
	Consent  *bool
}

// Analysis is the classification part of the pipeline.
type Analysis struct {
	Emotions        []chat.EmotionScore `json:"emotions"`
	EmotionFallback bool                `json:"emotion_fallback"`
	Signals         signal.Bundle       `json:"signals"`
	Sarcasm         sarcasm.Verdict     `json:"sarcasm"`
	Situation       risk.Decision       `json:"situation"`
}

// PreferencesView is the preference subset echoed back to callers.
type PreferencesView struct {
	Tone     chat.Tone `json:"tone"`
	Language string    `json:"language"`
}

// Result is the submit-message response.
type Result struct {
	UserMessage     string              `json:"user_message"`
	Emotions        []chat.EmotionScore `json:"emotions"`
	Sarcasm         sarcasm.Verdict     `json:"sarcasm"`
	Situation       risk.Category       `json:"situation"`
	SituationLayer  risk.Layer          `json:"situation_layer"`
	Reply           string              `json:"reply"`
	SessionID       *string             `json:"session_id"`
	Preferences     PreferencesView     `json:"preferences"`
	Summary         *string             `json:"summary"`
	Memory          *chat.Memory        `json:"memory"`
	ConsentRequired bool                `json:"consent_required"`
	Migration       *chatsvc.Migration  `json:"migration,omitempty"`
	Notice          string              `json:"message,omitempty"`
}

// ValidateText trims and checks a submitted message.
func ValidateText(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		return "", ErrMessageTooLong
	}
	return text, nil
}

// Analyze scores emotions and irony, extracts signals, scores sarcasm and classifies the
// situation. It never fails.
func (p *Pipeline) Analyze(ctx context.Context, text string) Analysis {
	scored := p.Analyzer.Analyze(ctx, text)
	bundle := p.Extractor.Extract(text, scored.Emotions)
	verdict := p.Sarcasm.ScoreBundle(bundle, scored.Irony, scored.Intent)
	decision := p.Risk.Classify(ctx, text, scored.Emotions)

	metrics.RecordSarcasm(string(verdict.Label))
	metrics.RecordSituation(string(decision.Category), string(decision.Layer))
	if decision.Reason == risk.ReasonModelError || decision.Reason == risk.ReasonUnclassified {
		metrics.RecordGenerationFallback("risk")
	}

	return Analysis{
		Emotions:        scored.Emotions,
		EmotionFallback: scored.Fallback,
		Signals:         bundle,
		Sarcasm:         verdict,
		Situation:       decision,
	}
}

// Submit processes one message for id.
func (p *Pipeline) Submit(ctx context.Context, id chat.Identity, msg Message) (Result, error) {
	return p.Process(ctx, id, msg, nil)
}

// Process is Submit with a hook that observes the analysis before the reply is generated.
// The situation is always classified before any generation, and the exchange is recorded
// as a single unit.
func (p *Pipeline) Process(ctx context.Context, id chat.Identity, msg Message, onAnalysis func(Analysis)) (Result, error) {
	start := p.now()
	if !id.Valid() {
		return Result{}, chatsvc.ErrIdentityRequired
	}
	text, err := ValidateText(msg.Text)
	if err != nil {
		return Result{}, err
	}

	var migration *chatsvc.Migration
	upd := chatsvc.PreferenceUpdate{Tone: msg.Tone, Language: msg.Language, Consent: msg.Consent}
	if !upd.Empty() {
		if _, migration, err = p.Chats.UpdatePreferences(ctx, id, upd); err != nil {
			return Result{}, err
		}
	}

	unlock := p.Chats.Lock(id)
	defer unlock()

	conv, err := p.Chats.Conversation(ctx, id)
	if err != nil {
		return Result{}, err
	}

	analysis := p.Analyze(ctx, text)
	if onAnalysis != nil {
		onAnalysis(analysis)
	}

	verdict := analysis.Sarcasm
	answer := p.Replies.Generate(ctx, reply.Request{
		Category: analysis.Situation.Category,
		Tone:     conv.Preferences.Tone,
		Language: conv.Preferences.Language,
		Message:  text,
		History:  conv.Transcript.Window(p.historyWindow),
		Memory:   conv.Memory,
		Summary:  conv.Summary,
		Sarcasm:  &verdict,
	})
	if answer.Fallback {
		metrics.RecordGenerationFallback("reply")
	}

	now := p.now().UTC()
	userTurn := chat.Turn{ID: uuid.NewString(), Role: chat.RoleUser, Text: text, Emotions: analysis.Emotions, CreatedAt: now}
	botTurn := chat.Turn{ID: uuid.NewString(), Role: chat.RoleBot, Text: answer.Text, CreatedAt: now}
	exchange := store.Exchange{User: userTurn, Bot: botTurn}

	res := Result{
		UserMessage:    text,
		Emotions:       chat.TopEmotions(analysis.Emotions, topEmotions),
		Sarcasm:        verdict,
		Situation:      analysis.Situation.Category,
		SituationLayer: analysis.Situation.Layer,
		Reply:          answer.Text,
		Preferences:    PreferencesView{Tone: conv.Preferences.Tone, Language: conv.Preferences.Language},
		Migration:      migration,
	}

	if conv.Ephemeral() {
		if _, err := p.Chats.Record(ctx, conv, exchange); err != nil {
			return Result{}, err
		}
		res.ConsentRequired = true
		res.Notice = ephemeralNotice
		log.Printf("[audit] ephemeral exchange owner=%s user_len=%d", id.Owner(), len(text))
		metrics.RecordMessage(true, p.now().Sub(start))
		return res, nil
	}

	transcript := make(chat.Transcript, 0, len(conv.Transcript)+2)
	transcript = append(transcript, conv.Transcript...)
	transcript = append(transcript, userTurn, botTurn)
	state := p.Memory.Evolve(ctx, memory.State{
		Memory:        conv.Memory,
		Summary:       conv.Summary,
		UserTurnCount: conv.UserTurnCount(),
	}, transcript, text, answer.Text)
	exchange.Memory, exchange.Summary = state.Memory, state.Summary

	sess, err := p.Chats.Record(ctx, conv, exchange)
	if err != nil {
		return Result{}, err
	}
	sessionID := sess.ID
	res.SessionID = &sessionID
	res.Summary = &sess.Summary
	res.Memory = &sess.Memory
	log.Printf("[pipeline] owner=%s session=%s situation=%s layer=%s sarcasm=%s fallback=%v",
		id.Owner(), sess.ID, res.Situation, res.SituationLayer, verdict.Label, answer.Fallback)
	metrics.RecordMessage(false, p.now().Sub(start))
	return res, nil
}
