// Package memory evolves the structured memory and rolling summary of a conversation.
// Keyword heuristics only fill gaps; model extraction may overwrite them.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/zhouzirui/enoki/backend/internal/model/chat"
	"github.com/zhouzirui/enoki/backend/internal/model/generation"
)

// Config bounds the memory and the model calls.
type Config struct {
	CopingCap       int
	OpeningsCap     int
	SummaryMaxChars int
	HistoryWindow   int
	Timeout         time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		CopingCap:       8,
		OpeningsCap:     5,
		SummaryMaxChars: 800,
		HistoryWindow:   12,
		Timeout:         8 * time.Second,
	}
}

// State is the evolvable part of a session.
type State struct {
	Memory        chat.Memory
	Summary       string
	UserTurnCount int
}

// Evolver is safe for concurrent use.
type Evolver struct {
	cfg Config
	gen generation.Generator
}

// NewEvolver wires the evolver. A nil generator disables extraction and summaries.
func NewEvolver(cfg Config, gen generation.Generator) *Evolver {
	return &Evolver{cfg: cfg, gen: gen}
}

// Config returns the evolver configuration.
func (e *Evolver) Config() Config {
	return e.cfg
}

// ShouldRefresh reports whether the summary is regenerated after the n-th user turn.
func ShouldRefresh(userTurns int) bool {
	return userTurns <= 6 || userTurns%3 == 0
}

// Evolve applies one exchange. transcript must already contain the exchange; state.UserTurnCount
// counts the new user turn too.
func (e *Evolver) Evolve(ctx context.Context, state State, transcript chat.Transcript, userText, botText string) State {
	next := State{
		Memory:        e.ApplyHeuristics(state.Memory, userText),
		Summary:       state.Summary,
		UserTurnCount: state.UserTurnCount,
	}
	next.Memory = e.RememberOpening(next.Memory, botText)

	window := transcript.Window(e.cfg.HistoryWindow)
	next.Memory = e.Extract(ctx, next.Memory, window)
	if ShouldRefresh(state.UserTurnCount) {
		next.Summary = e.Summarize(ctx, state.Summary, window)
	}
	return next
}

// ApplyHeuristics fills unset fields from keywords and adds coping strategies up to the cap.
func (e *Evolver) ApplyHeuristics(mem chat.Memory, text string) chat.Memory {
	out := mem.Clone()
	if out.Stressor == "" {
		out.Stressor = Stressor(text)
	}
	if out.Motivation == "" {
		out.Motivation = Motivation(text)
	}
	out.Coping = e.mergeCoping(out.Coping, Coping(text))
	return out
}

// RememberOpening records how a reply started so later prompts can avoid repeating it.
func (e *Evolver) RememberOpening(mem chat.Memory, reply string) chat.Memory {
	opening := Opening(reply)
	if opening == "" {
		return mem
	}
	out := mem.Clone()
	kept := out.BotOpenings[:0]
	for _, o := range out.BotOpenings {
		if o != opening {
			kept = append(kept, o)
		}
	}
	kept = append(kept, opening)
	if limit := e.cfg.OpeningsCap; limit > 0 && len(kept) > limit {
		kept = kept[len(kept)-limit:]
	}
	out.BotOpenings = kept
	return out
}

// Opening is the first few words of the first sentence, lowercased.
func Opening(reply string) string {
	words := strings.Fields(reply)
	if len(words) == 0 {
		return ""
	}
	const maxWords = 6
	var picked []string
	for _, w := range words {
		picked = append(picked, w)
		if strings.ContainsAny(w, ".!?") || len(picked) == maxWords {
			break
		}
	}
	return strings.ToLower(strings.TrimRight(strings.Join(picked, " "), ".!?,;:"))
}

type extraction struct {
	Stressor   string   `json:"stressor"`
	Motivation string   `json:"motivation"`
	Coping     []string `json:"coping"`
	Trajectory string   `json:"trajectory"`
}

// Extract asks the model for structured facts. Non-empty fields overwrite, coping merges.
// Any failure returns mem unchanged.
func (e *Evolver) Extract(ctx context.Context, mem chat.Memory, window chat.Transcript) chat.Memory {
	if e.gen == nil || len(window) == 0 {
		return mem
	}
	raw, err := e.gen.Generate(ctx, extractionPrompt(mem, window), generation.Options{
		Temperature: 0.2,
		MaxTokens:   200,
		Timeout:     e.cfg.Timeout,
	})
	if err != nil {
		log.Printf("[memory] extraction failed, keeping heuristic memory: %v", err)
		return mem
	}
	payload, err := parseExtraction(raw)
	if err != nil {
		log.Printf("[memory] extraction output parse failed: %v", err)
		return mem
	}

	out := mem.Clone()
	if v := cleanField(payload.Stressor); v != "" {
		out.Stressor = v
	}
	if v := cleanField(payload.Motivation); v != "" {
		out.Motivation = v
	}
	if v := cleanField(payload.Trajectory); v != "" {
		out.Trajectory = v
	}
	out.Coping = e.mergeCoping(out.Coping, payload.Coping)
	return out
}

// Summarize regenerates the summary; failures keep the previous one.
func (e *Evolver) Summarize(ctx context.Context, previous string, window chat.Transcript) string {
	if e.gen == nil || len(window) == 0 {
		return previous
	}
	raw, err := e.gen.Generate(ctx, summaryPrompt(previous, window, e.cfg.SummaryMaxChars), generation.Options{
		Temperature: 0.3,
		MaxTokens:   240,
		Timeout:     e.cfg.Timeout,
	})
	if err != nil {
		log.Printf("[memory] summary failed, keeping previous: %v", err)
		return previous
	}
	summary := strings.Join(strings.Fields(raw), " ")
	if summary == "" {
		return previous
	}
	return Truncate(summary, e.cfg.SummaryMaxChars)
}

// Truncate cuts text to at most max runes, preferring a word boundary.
func Truncate(text string, max int) string {
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	runes := []rune(text)[:max]
	cut := string(runes)
	if i := strings.LastIndex(cut, " "); i > len(cut)/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut)
}

func (e *Evolver) mergeCoping(existing, incoming []string) []string {
	out := append([]string(nil), existing...)
	for _, c := range incoming {
		c = cleanField(strings.ToLower(c))
		if c == "" {
			continue
		}
		if e.cfg.CopingCap > 0 && len(out) >= e.cfg.CopingCap {
			break
		}
		dup := false
		for _, have := range out {
			if have == c {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, c)
		}
	}
	return out
}

func cleanField(v string) string {
	v = strings.TrimSpace(v)
	switch strings.ToLower(v) {
	case "", "null", "none", "unknown", "n/a":
		return ""
	}
	return Truncate(v, 120)
}

func parseExtraction(content string) (*extraction, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("missing json object")
	}

	payload := &extraction{}
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func formatTranscript(window chat.Transcript) string {
	var b strings.Builder
	for _, turn := range window {
		if turn.Role == chat.RoleUser {
			b.WriteString("User: ")
		} else {
			b.WriteString("Companion: ")
		}
		b.WriteString(strings.TrimSpace(turn.Text))
		b.WriteString("\n")
	}
	return b.String()
}

func extractionPrompt(mem chat.Memory, window chat.Transcript) string {
	current, _ := json.Marshal(extraction{
		Stressor:   mem.Stressor,
		Motivation: mem.Motivation,
		Coping:     mem.Coping,
		Trajectory: mem.Trajectory,
	})
	return fmt.Sprintf(`Extract long-lived facts about the user from the conversation.
Return only one JSON object with the fields: stressor (short phrase), motivation (short phrase),
coping (array of short activities that help the user), trajectory (improving, stable or worsening).
Use an empty string or empty array when the conversation does not say.

Current memory: %s

Conversation:
%s`, current, formatTranscript(window))
}

func summaryPrompt(previous string, window chat.Transcript, max int) string {
	if strings.TrimSpace(previous) == "" {
		previous = "(none)"
	}
	return fmt.Sprintf(`Rewrite the running summary of this supportive conversation in at most %d characters.
Keep what matters for future replies: what the user is going through, how they feel, what helps.
Write plain prose in the third person. Return only the summary.

Previous summary: %s

Recent conversation:
%s`, max, previous, formatTranscript(window))
}
