// Package handlertest builds a fully wired in-memory backend for handler tests.
package handlertest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/zhouzirui/enoki/backend/internal/analysis/lexicon"
	"github.com/zhouzirui/enoki/backend/internal/analysis/risk"
	"github.com/zhouzirui/enoki/backend/internal/analysis/sarcasm"
	"github.com/zhouzirui/enoki/backend/internal/analysis/signal"
	"github.com/zhouzirui/enoki/backend/internal/model/generation"
	chatsvc "github.com/zhouzirui/enoki/backend/internal/service/chat"
	"github.com/zhouzirui/enoki/backend/internal/service/companion"
	"github.com/zhouzirui/enoki/backend/internal/service/emotion"
	"github.com/zhouzirui/enoki/backend/internal/service/memory"
	"github.com/zhouzirui/enoki/backend/internal/service/reply"
	"github.com/zhouzirui/enoki/backend/internal/store"
)

// Env is the wired backend.
type Env struct {
	Chats    *chatsvc.Service
	Buffer   *store.Buffer
	Pipeline *companion.Pipeline
	Replies  *reply.Builder
}

// Analyzer always returns the same signals.
type Analyzer struct {
	Result emotion.Result
}

func (a Analyzer) Analyze(context.Context, string) emotion.Result {
	return a.Result
}

// Failing is a generator that is always down.
var Failing = generation.GeneratorFunc(func(context.Context, string, generation.Options) (string, error) {
	return "", errors.New("model unavailable")
})

// Echo answers classification prompts with NORMAL and replies with a fixed sentence.
var Echo = generation.GeneratorFunc(func(_ context.Context, prompt string, _ generation.Options) (string, error) {
	if strings.HasPrefix(prompt, "Classify") {
		return "NORMAL", nil
	}
	if strings.HasPrefix(prompt, "Extract") {
		return "{}", nil
	}
	return "Tell me more about that.", nil
})

// New wires an in-memory backend around gen. Anonymous consent is allowed when anonConsent is set.
func New(t *testing.T, gen generation.Generator, anonConsent bool) *Env {
	t.Helper()
	db, err := store.OpenDB(store.InMemoryDBConfig())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	buffer := store.NewBuffer(10)
	chats := chatsvc.NewService(store.New(db, nil), buffer, chatsvc.Config{AnonConsentAllowed: anonConsent})
	lex := lexicon.Default()
	extractor := signal.NewExtractor(lex)
	replies := reply.NewBuilder(reply.DefaultConfig(), gen, nil)
	pipeline := companion.New(companion.Deps{
		Chats:     chats,
		Analyzer:  Analyzer{},
		Extractor: extractor,
		Sarcasm:   sarcasm.NewScorer(sarcasm.DefaultConfig(), extractor),
		Risk:      risk.NewClassifier(risk.DefaultConfig(), lex, gen),
		Replies:   replies,
		Memory:    memory.NewEvolver(memory.DefaultConfig(), gen),
	})
	return &Env{Chats: chats, Buffer: buffer, Pipeline: pipeline, Replies: replies}
}
