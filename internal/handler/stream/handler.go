package stream

import (
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/enoki/backend/internal/handler/httperr"
	"github.com/zhouzirui/enoki/backend/internal/middleware"
	"github.com/zhouzirui/enoki/backend/internal/service/companion"
	"github.com/zhouzirui/enoki/backend/pkg/utils"
)

// SSE event names, in emission order.
const (
	EventStart    = "start"
	EventAnalysis = "analysis"
	EventMessage  = "message"
	EventEnd      = "end"
	EventError    = "error"
)

// Handler manages companion replies via Server-Sent Events
type Handler struct {
	pipeline *companion.Pipeline
	limit    func(http.Handler) http.Handler
}

// New creates a new stream handler
func New(pipeline *companion.Pipeline, limit func(http.Handler) http.Handler) *Handler {
	return &Handler{pipeline: pipeline, limit: limit}
}

// StreamResponse is the payload of start, end and error events.
type StreamResponse struct {
	UserMessage string  `json:"user_message,omitempty"`
	SessionID   *string `json:"session_id,omitempty"`
	Finished    bool    `json:"finished,omitempty"`
	Error       string  `json:"error,omitempty"`
	Status      int     `json:"status,omitempty"`
}

// RegisterRoutes registers GET /stream.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		if h.limit != nil {
			r.Use(h.limit)
		}
		r.Get("/stream", h.handleStream)
	})
}

// handleStream runs the pipeline and reports its stages: start, analysis (before the reply
// is generated), message (the full result) and end.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	text, err := companion.ValidateText(query.Get("message"))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	utils.SetupSSEHeaders(w)

	msg := companion.Message{Text: text}
	if tone := query.Get("tone"); tone != "" {
		msg.Tone = &tone
	}
	if lang := query.Get("language"); lang != "" {
		msg.Language = &lang
	}

	utils.SendSSEEvent(w, flusher, EventStart, StreamResponse{UserMessage: text})

	id := middleware.IdentityFrom(r.Context())
	result, err := h.pipeline.Process(r.Context(), id, msg, func(a companion.Analysis) {
		utils.SendSSEEvent(w, flusher, EventAnalysis, a)
	})
	if err != nil {
		log.Printf("[stream] pipeline failed for %s: %v", id, err)
		utils.SendSSEEvent(w, flusher, EventError, StreamResponse{
			Error:  fmt.Sprintf("request failed: %s", httperr.Message(err)),
			Status: httperr.Status(err),
		})
		return
	}

	utils.SendSSEEvent(w, flusher, EventMessage, result)
	utils.SendSSEEvent(w, flusher, EventEnd, StreamResponse{SessionID: result.SessionID, Finished: true})
}
