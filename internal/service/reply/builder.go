// Package reply selects a response style for the situation, builds the instruction
// prompt, calls the generator and post-processes the result.
package reply

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/zhouzirui/enoki/backend/internal/analysis/risk"
	"github.com/zhouzirui/enoki/backend/internal/analysis/sarcasm"
	"github.com/zhouzirui/enoki/backend/internal/model/chat"
	"github.com/zhouzirui/enoki/backend/internal/model/generation"
)

// Request carries everything the prompt is built from.
type Request struct {
	Category risk.Category
	Tone     chat.Tone
	Language string
	Message  string
	// History is the bounded recent window, most recent last, excluding Message.
	History chat.Transcript
	Memory  chat.Memory
	Summary string
	Sarcasm *sarcasm.Verdict
}

// Reply is the post-processed answer.
type Reply struct {
	Text     string        `json:"text"`
	Category risk.Category `json:"category"`
	Fallback bool          `json:"fallback"`
	Budget   Budget        `json:"budget"`
}

// Builder is safe for concurrent use.
type Builder struct {
	cfg   Config
	gen   generation.Generator
	tones *ToneProfiles
}

// NewBuilder wires the builder. A nil generator always yields fallbacks.
func NewBuilder(cfg Config, gen generation.Generator, tones *ToneProfiles) *Builder {
	if tones == nil {
		tones = NewToneProfiles()
	}
	if len(cfg.CrisisResources) == 0 {
		cfg.CrisisResources = DefaultCrisisResources()
	}
	return &Builder{cfg: cfg, gen: gen, tones: tones}
}

// Tones exposes the tone catalogue.
func (b *Builder) Tones() *ToneProfiles {
	return b.tones
}

// Generate never fails: generation errors and empty output produce the category fallback.
func (b *Builder) Generate(ctx context.Context, req Request) Reply {
	budget := BudgetFor(req.Category)
	out := Reply{Category: req.Category, Budget: budget}

	if b.gen == nil {
		out.Text, out.Fallback = b.Fallback(req.Category), true
		return out
	}

	raw, err := b.gen.Generate(ctx, b.Prompt(req), generation.Options{
		Temperature: budget.Temperature,
		MaxTokens:   budget.MaxTokens,
		Timeout:     b.cfg.Timeout,
	})
	if err != nil {
		log.Printf("[reply] generation failed for category=%s: %v", req.Category, err)
		out.Text, out.Fallback = b.Fallback(req.Category), true
		return out
	}

	body := raw
	if req.Category.Crisis() {
		body = b.removeResources(body)
	}
	body = Clean(body, budget.SentenceCap, b.cfg.ParagraphEvery)
	if body == "" {
		out.Text, out.Fallback = b.Fallback(req.Category), true
		return out
	}
	if req.Category.Crisis() {
		body += "\n\n" + b.ResourceBlock()
	}
	out.Text = body
	return out
}

// ResourceBlock is the literal crisis resource list.
func (b *Builder) ResourceBlock() string {
	lines := make([]string, len(b.cfg.CrisisResources))
	for i, r := range b.cfg.CrisisResources {
		lines[i] = "- " + r
	}
	return strings.Join(lines, "\n")
}

// Fallback returns the fixed reply of a category.
func (b *Builder) Fallback(c risk.Category) string {
	switch c {
	case risk.ImmediateDanger:
		return "I'm really glad you told me, and I'm worried about your safety right now. You deserve support from a real person immediately. Please reach out to one of these right now:\n\n" +
			b.ResourceBlock() +
			"\n\nIf you can, move away from anything you could use to hurt yourself and stay with someone you trust."
	case risk.Grief:
		return "I'm so sorry for your loss. Grief can be overwhelming, and there is no right way to feel right now. I'm here if you want to tell me about them or just sit with this for a moment."
	case risk.Panic:
		return "Let's slow things down together. Breathe in slowly for four counts, hold for four, and breathe out for six. You're safe in this moment, and this feeling will pass."
	case risk.HighDistress:
		return "That sounds like a lot to carry. I'm here with you. Would it help to talk about what's weighing on you most right now?"
	case risk.Normal:
		return "Thanks for telling me. I'm here and listening. What's on your mind?"
	default:
		return "Thanks for telling me. I'm here and listening. What's on your mind?"
	}
}

// Prompt renders the full instruction for one reply.
func (b *Builder) Prompt(req Request) string {
	budget := BudgetFor(req.Category)
	lang := strings.TrimSpace(req.Language)
	if lang == "" {
		lang = chat.DefaultLanguage
	}

	var sb strings.Builder
	sb.WriteString("You are Enoki, a caring companion for emotional support. You are not a therapist and you never diagnose.\n\n")
	sb.WriteString(b.tones.Instructions(req.Tone))
	sb.WriteString(fmt.Sprintf("\n\nReply in the language with code %q.\n\n", lang))
	sb.WriteString("Situation tasks:\n")
	sb.WriteString(b.tasks(req.Category))
	sb.WriteString(fmt.Sprintf("\n\nLength: at most %d sentences. Plain prose only, no lists or headings.", budget.SentenceCap))

	if s := strings.TrimSpace(req.Summary); s != "" {
		sb.WriteString("\n\nConversation so far: ")
		sb.WriteString(s)
	}
	if facts := memoryFacts(req.Memory); facts != "" {
		sb.WriteString("\n\nWhat you know about the user:\n")
		sb.WriteString(facts)
	}
	if len(req.Memory.BotOpenings) > 0 {
		sb.WriteString("\n\nDo not start your reply the way you started recent replies: ")
		sb.WriteString(strings.Join(quoteAll(req.Memory.BotOpenings), ", "))
		sb.WriteString(".")
	}
	sb.WriteString("\nNever open with stock phrases like \"I hear you\" or \"It sounds like\".")
	if req.Sarcasm != nil && req.Sarcasm.Label != sarcasm.NotSarcastic {
		sb.WriteString("\n\nThe user may be sarcastic. Respond to the frustration underneath, not the literal words.")
	}

	if len(req.History) > 0 {
		sb.WriteString("\n\nRecent conversation:\n")
		for _, turn := range req.History {
			speaker := "User"
			if turn.Role == chat.RoleBot {
				speaker = "Enoki"
			}
			sb.WriteString(speaker)
			sb.WriteString(": ")
			sb.WriteString(turn.Text)
			sb.WriteString("\n")
		}
	}
	sb.WriteString("\nUser: ")
	sb.WriteString(req.Message)
	sb.WriteString("\nEnoki:")
	return sb.String()
}

func (b *Builder) tasks(c risk.Category) string {
	switch c {
	case risk.ImmediateDanger:
		return "- The user may be in immediate danger. Stay calm, direct and caring.\n" +
			"- Tell them plainly that their safety matters and encourage contacting a crisis line now.\n" +
			"- Include exactly this resource list, verbatim, and do not add, change or invent any other hotline, website or service:\n" +
			b.ResourceBlock() + "\n" +
			"- Ask whether they are safe right now."
	case risk.Grief:
		return "- The user is grieving a loss. Acknowledge the loss by name if they gave one.\n" +
			"- Make room for memories and feelings. Do not rush toward fixing or silver linings.\n" +
			"- Invite them to share more only if they want to."
	case risk.Panic:
		return "- The user is in acute anxiety or panic. Keep sentences short and grounding.\n" +
			"- Offer one simple breathing or grounding exercise with concrete counts.\n" +
			"- Reassure them that the feeling will pass."
	case risk.HighDistress:
		return "- The user is in strong distress. Validate the specific feeling first.\n" +
			"- Reflect what seems hardest and offer one gentle next step or question."
	case risk.Normal:
		return "- Respond naturally and warmly to what the user said.\n" +
			"- Keep it light and brief. Ask a follow-up question only if it helps."
	default:
		return "- Respond naturally and warmly to what the user said."
	}
}

// removeResources drops model-written copies of resource lines so the literal block is
// appended exactly once.
func (b *Builder) removeResources(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		trimmed := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*• "))
		drop := false
		for _, r := range b.cfg.CrisisResources {
			if trimmed == r {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func memoryFacts(m chat.Memory) string {
	var lines []string
	if m.Stressor != "" {
		lines = append(lines, "- Main stressor: "+m.Stressor)
	}
	if m.Motivation != "" {
		lines = append(lines, "- Motivation: "+m.Motivation)
	}
	if len(m.Coping) > 0 {
		lines = append(lines, "- Coping that helps: "+strings.Join(m.Coping, ", "))
	}
	if m.Trajectory != "" {
		lines = append(lines, "- Trajectory: "+m.Trajectory)
	}
	return strings.Join(lines, "\n")
}

func quoteAll(items []string) []string {
	out := make([]string, len(items))
	for i, s := range items {
		out[i] = fmt.Sprintf("%q", s)
	}
	return out
}
