// Package ws serves the companion over a websocket: one JSON frame in, analysis and result
// frames out.
package ws

import (
	"context"
	"log"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/enoki/backend/internal/handler/httperr"
	"github.com/zhouzirui/enoki/backend/internal/middleware"
	"github.com/zhouzirui/enoki/backend/internal/model/chat"
	"github.com/zhouzirui/enoki/backend/internal/service/companion"
)

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	pingInterval = 54 * time.Second
	maxFrameSize = 64 << 10
)

// Handler WebSocket处理器
type Handler struct {
	pipeline *companion.Pipeline
	limiter  *middleware.RateLimiter
	upgrader websocket.Upgrader
}

// New 创建WebSocket处理器。checkOrigin 为 nil 时接受所有来源。
func New(pipeline *companion.Pipeline, limiter *middleware.RateLimiter, checkOrigin func(r *http.Request) bool) *Handler {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Handler{
		pipeline: pipeline,
		limiter:  limiter,
		upgrader: websocket.Upgrader{
			CheckOrigin:     checkOrigin,
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
}

type inboundMessage struct {
	Type     string  `json:"type"`
	Message  string  `json:"message"`
	Tone     *string `json:"tone,omitempty"`
	Language *string `json:"language,omitempty"`
	Consent  *bool   `json:"consent,omitempty"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id := middleware.IdentityFrom(r.Context())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxFrameSize)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	out := &writer{conn: conn}
	go h.pingLoop(ctx, out)

	out.send("connected", map[string]any{"identity": id.String()})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[websocket] read error: %v", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		switch msg.Type {
		case "message":
			h.handleMessage(ctx, out, id, msg)
		case "ping":
			out.send("pong", nil)
		default:
			out.sendError("unsupported message type: "+msg.Type, http.StatusBadRequest)
		}
	}
}

func (h *Handler) handleMessage(ctx context.Context, w *writer, id chat.Identity, msg inboundMessage) {
	if ok, wait := h.limiter.Allow(id.Owner()); !ok {
		w.send("error", map[string]any{
			"message":     "please wait before sending another message",
			"status":      http.StatusTooManyRequests,
			"retry_after": int(math.Max(1, math.Ceil(wait.Seconds()))),
		})
		return
	}

	result, err := h.pipeline.Process(ctx, id, companion.Message{
		Text:     msg.Message,
		Tone:     msg.Tone,
		Language: msg.Language,
		Consent:  msg.Consent,
	}, func(a companion.Analysis) {
		w.send("analysis", a)
	})
	if err != nil {
		w.sendError(httperr.Message(err), httperr.Status(err))
		return
	}
	w.send("result", result)
}

// pingLoop 定期发送ping消息
func (h *Handler) pingLoop(ctx context.Context, w *writer) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.ping(); err != nil {
				return
			}
		}
	}
}
