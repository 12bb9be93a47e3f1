// Package app wires configuration into a running backend. It is shared by the API server
// and the maintenance CLI.
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/zhouzirui/enoki/backend/internal/analysis/lexicon"
	"github.com/zhouzirui/enoki/backend/internal/analysis/risk"
	"github.com/zhouzirui/enoki/backend/internal/analysis/sarcasm"
	"github.com/zhouzirui/enoki/backend/internal/analysis/signal"
	"github.com/zhouzirui/enoki/backend/internal/config"
	"github.com/zhouzirui/enoki/backend/internal/handler"
	"github.com/zhouzirui/enoki/backend/internal/middleware"
	"github.com/zhouzirui/enoki/backend/internal/model/generation"
	"github.com/zhouzirui/enoki/backend/internal/service/ai"
	chatsvc "github.com/zhouzirui/enoki/backend/internal/service/chat"
	"github.com/zhouzirui/enoki/backend/internal/service/companion"
	"github.com/zhouzirui/enoki/backend/internal/service/emotion"
	"github.com/zhouzirui/enoki/backend/internal/service/memory"
	"github.com/zhouzirui/enoki/backend/internal/service/reply"
	"github.com/zhouzirui/enoki/backend/internal/store"
)

// Analysis holds the pure analysis components.
type Analysis struct {
	Lexicon    *lexicon.Set
	Extractor  *signal.Extractor
	Sarcasm    *sarcasm.Scorer
	Risk       *risk.Classifier
	Generator  generation.Generator
	Emotion    *emotion.Service
	Calibrated bool
}

// App is a fully wired backend.
type App struct {
	Config   *config.Config
	Analysis *Analysis
	Store    *store.Store
	Chats    *chatsvc.Service
	Replies  *reply.Builder
	Pipeline *companion.Pipeline
	Limiter  *middleware.RateLimiter
}

// NewAnalysis builds the lexicon, the scorers and the generate_text backend.
func NewAnalysis(ctx context.Context, cfg *config.Config) (*Analysis, error) {
	lex := lexicon.Default()
	if cfg.LexiconPath != "" {
		loaded, err := lexicon.Load(cfg.LexiconPath)
		if err != nil {
			return nil, fmt.Errorf("load lexicon: %w", err)
		}
		lex = loaded
	}
	log.Printf("[app] lexicon version %s", lex.Version)

	gen, err := ai.NewGenerator(ctx, cfg)
	if err != nil {
		log.Printf("[app] text generation unavailable, using deterministic fallbacks: %v", err)
		gen = nil
	}

	extractor := signal.NewExtractor(lex)
	return &Analysis{
		Lexicon:   lex,
		Extractor: extractor,
		Sarcasm:   sarcasm.NewScorer(cfg.Sarcasm, extractor),
		Risk:      risk.NewClassifier(cfg.Risk, lex, gen),
		Generator: gen,
		Emotion: emotion.NewService(emotion.Config{
			BaseURL:   cfg.Emotion.BaseURL,
			IronyPath: cfg.Emotion.IronyPath,
			Timeout:   cfg.Emotion.Timeout,
			Enabled:   cfg.Emotion.Enabled,
		}, nil),
		Calibrated: cfg.Sarcasm.Calibration.Valid(),
	}, nil
}

// OpenStore opens the database and the cipher described by cfg.
func OpenStore(cfg config.StoreConfig) (*store.Store, error) {
	dbCfg := store.DefaultDBConfig(cfg.Path)
	if cfg.InMemory {
		dbCfg = store.InMemoryDBConfig()
	}
	db, err := store.OpenDB(dbCfg)
	if err != nil {
		return nil, err
	}
	cipher, err := store.NewCipher(cfg.EncryptionKey)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("encryption key: %w", err)
	}
	if !cipher.Enabled() {
		log.Println("[store] ENCRYPTION_KEY not set, turns are stored in plaintext")
	}
	return store.New(db, cipher), nil
}

// New builds the whole backend.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	analysis, err := NewAnalysis(ctx, cfg)
	if err != nil {
		return nil, err
	}
	st, err := OpenStore(cfg.Store)
	if err != nil {
		return nil, err
	}

	chats := chatsvc.NewService(st, store.NewBuffer(cfg.Limits.EphemeralMaxTurns), chatsvc.Config{
		AnonConsentAllowed: cfg.Limits.AnonConsentAllowed,
		HistoryWindow:      cfg.Limits.HistoryWindow,
	})
	replies := reply.NewBuilder(cfg.Reply, analysis.Generator, reply.NewToneProfiles())
	pipeline := companion.New(companion.Deps{
		Chats:     chats,
		Analyzer:  analysis.Emotion,
		Extractor: analysis.Extractor,
		Sarcasm:   analysis.Sarcasm,
		Risk:      analysis.Risk,
		Replies:   replies,
		Memory:    memory.NewEvolver(cfg.Memory, analysis.Generator),
	})

	return &App{
		Config:   cfg,
		Analysis: analysis,
		Store:    st,
		Chats:    chats,
		Replies:  replies,
		Pipeline: pipeline,
		Limiter:  middleware.NewRateLimiter(cfg.Limits.RateLimit),
	}, nil
}

// Router returns the HTTP handler.
func (a *App) Router() http.Handler {
	return handler.NewRouter(handler.Deps{
		Chats:          a.Chats,
		Pipeline:       a.Pipeline,
		Tones:          a.Replies.Tones(),
		Limiter:        a.Limiter,
		AllowedOrigins: a.Config.Server.AllowedOrigins,
	})
}

// Close releases the database.
func (a *App) Close() error {
	return a.Store.Close()
}
