package chat

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/enoki/backend/internal/handler/httperr"
	"github.com/zhouzirui/enoki/backend/internal/middleware"
	chatService "github.com/zhouzirui/enoki/backend/internal/service/chat"
	"github.com/zhouzirui/enoki/backend/internal/service/companion"
	"github.com/zhouzirui/enoki/backend/pkg/utils"
)

// Handler 聊天服务的HTTP处理器
type Handler struct {
	chatSvc  *chatService.Service
	pipeline *companion.Pipeline
	limit    func(http.Handler) http.Handler
}

// New 创建聊天处理器。limit 为 nil 时提交消息不限流。
func New(chatSvc *chatService.Service, pipeline *companion.Pipeline, limit func(http.Handler) http.Handler) *Handler {
	return &Handler{chatSvc: chatSvc, pipeline: pipeline, limit: limit}
}

// SubmitRequest 是提交消息的请求体。
type SubmitRequest struct {
	Message  string  `json:"message" validate:"required,max=16000"`
	Tone     *string `json:"tone" validate:"omitempty,max=32"`
	Language *string `json:"language" validate:"omitempty,max=8"`
	Consent  *bool   `json:"consent"`
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		if h.limit != nil {
			r.Use(h.limit)
		}
		r.Post("/chat", h.handleSubmit)
	})
	r.Get("/history", h.handleHistory)
	r.Get("/context", h.handleContext)
	r.Delete("/ephemeral", h.handleClearEphemeral)

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", h.handleListSessions)
		r.Post("/", h.handleCreateSession)
		r.Get("/{sessionID}", h.handleSessionDetail)
		r.Post("/{sessionID}/switch", h.handleSwitchSession)
		r.Delete("/{sessionID}", h.handleDeleteSession)
	})
}

// handleSubmit 运行完整的消息处理流程
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var payload SubmitRequest
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.pipeline.Submit(r.Context(), middleware.IdentityFrom(r.Context()), companion.Message{
		Text:     payload.Message,
		Tone:     payload.Tone,
		Language: payload.Language,
		Consent:  payload.Consent,
	})
	if err != nil {
		httperr.Respond(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, result)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			utils.RespondError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}

	id := middleware.IdentityFrom(r.Context())
	turns, err := h.chatSvc.History(r.Context(), id, limit)
	if err != nil {
		httperr.Respond(w, r, err)
		return
	}
	prefs, err := h.chatSvc.Preferences(r.Context(), id)
	if err != nil {
		httperr.Respond(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"messages":   turns,
		"count":      len(turns),
		"ephemeral":  !prefs.Consent,
		"session_id": prefs.CurrentSessionID,
	})
}

func (h *Handler) handleContext(w http.ResponseWriter, r *http.Request) {
	view, err := h.chatSvc.Context(r.Context(), middleware.IdentityFrom(r.Context()))
	if err != nil {
		httperr.Respond(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, view)
}

func (h *Handler) handleClearEphemeral(w http.ResponseWriter, r *http.Request) {
	n, err := h.chatSvc.ClearEphemeral(r.Context(), middleware.IdentityFrom(r.Context()))
	if err != nil {
		httperr.Respond(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]int{"cleared": n})
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.chatSvc.ListSessions(r.Context(), middleware.IdentityFrom(r.Context()))
	if err != nil {
		httperr.Respond(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// handleCreateSession 创建会话；未同意存储时只清空临时记录
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatSvc.NewSession(r.Context(), middleware.IdentityFrom(r.Context()))
	if err != nil {
		httperr.Respond(w, r, err)
		return
	}
	if session == nil {
		utils.RespondJSON(w, http.StatusOK, map[string]any{"session_id": nil, "ephemeral": true})
		return
	}
	utils.RespondJSON(w, http.StatusCreated, map[string]any{"session_id": session.ID, "session": session})
}

func (h *Handler) handleSessionDetail(w http.ResponseWriter, r *http.Request) {
	detail, err := h.chatSvc.SessionDetail(r.Context(), middleware.IdentityFrom(r.Context()), chi.URLParam(r, "sessionID"))
	if err != nil {
		httperr.Respond(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, detail)
}

func (h *Handler) handleSwitchSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatSvc.SwitchSession(r.Context(), middleware.IdentityFrom(r.Context()), chi.URLParam(r, "sessionID"))
	if err != nil {
		httperr.Respond(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"session_id": session.ID, "session": session})
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.DeleteSession(r.Context(), middleware.IdentityFrom(r.Context()), chi.URLParam(r, "sessionID")); err != nil {
		httperr.Respond(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
