package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zhouzirui/enoki/backend/internal/handler/chat"
	"github.com/zhouzirui/enoki/backend/internal/handler/settings"
	"github.com/zhouzirui/enoki/backend/internal/handler/stream"
	"github.com/zhouzirui/enoki/backend/internal/handler/tone"
	"github.com/zhouzirui/enoki/backend/internal/handler/ws"
	middlewarePkg "github.com/zhouzirui/enoki/backend/internal/middleware"
	chatService "github.com/zhouzirui/enoki/backend/internal/service/chat"
	"github.com/zhouzirui/enoki/backend/internal/service/companion"
	"github.com/zhouzirui/enoki/backend/internal/service/reply"
	"github.com/zhouzirui/enoki/backend/pkg/utils"
)

// Deps groups what the router needs.
type Deps struct {
	Chats          *chatService.Service
	Pipeline       *companion.Pipeline
	Tones          *reply.ToneProfiles
	Limiter        *middlewarePkg.RateLimiter
	AllowedOrigins []string
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.AllowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	var limit func(http.Handler) http.Handler
	if deps.Limiter != nil {
		limit = deps.Limiter.Middleware
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(middlewarePkg.Identity)

		tone.New(deps.Tones).RegisterRoutes(api)
		settings.New(deps.Chats).RegisterRoutes(api)
		chat.New(deps.Chats, deps.Pipeline, limit).RegisterRoutes(api)
		stream.New(deps.Pipeline, limit).RegisterRoutes(api)
		ws.New(deps.Pipeline, deps.Limiter, originChecker(deps.AllowedOrigins)).RegisterRoutes(api)
	})

	return r
}

// originChecker mirrors the CORS allow-list for websocket upgrades.
func originChecker(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			return nil
		}
		allowed[o] = struct{}{}
	}
	if len(allowed) == 0 {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}
