// Package settings serves consent and preference endpoints.
package settings

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/enoki/backend/internal/handler/httperr"
	"github.com/zhouzirui/enoki/backend/internal/middleware"
	chatService "github.com/zhouzirui/enoki/backend/internal/service/chat"
	"github.com/zhouzirui/enoki/backend/pkg/utils"
)

// Handler 设置相关的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
}

// New 创建设置处理器
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

type consentRequest struct {
	Consent *bool `json:"consent" validate:"required"`
}

type preferencesRequest struct {
	Tone     *string `json:"tone" validate:"omitempty,max=32"`
	Language *string `json:"language" validate:"omitempty,max=8"`
	Consent  *bool   `json:"consent"`
}

// RegisterRoutes 注册设置相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/consent", h.handleGetConsent)
	r.Post("/consent", h.handleSetConsent)
	r.Get("/preferences", h.handleGetPreferences)
	r.Put("/preferences", h.handleUpdatePreferences)
}

func (h *Handler) handleGetConsent(w http.ResponseWriter, r *http.Request) {
	status, err := h.chatSvc.ConsentStatus(r.Context(), middleware.IdentityFrom(r.Context()))
	if err != nil {
		httperr.Respond(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, status)
}

// handleSetConsent 授予同意时迁移临时记录，撤销时清空
func (h *Handler) handleSetConsent(w http.ResponseWriter, r *http.Request) {
	var payload consentRequest
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	status, migration, err := h.chatSvc.SetConsent(r.Context(), middleware.IdentityFrom(r.Context()), *payload.Consent)
	if err != nil {
		httperr.Respond(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"status":    status,
		"migration": migration,
	})
}

func (h *Handler) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := h.chatSvc.Preferences(r.Context(), middleware.IdentityFrom(r.Context()))
	if err != nil {
		httperr.Respond(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, prefs)
}

func (h *Handler) handleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var payload preferencesRequest
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	prefs, migration, err := h.chatSvc.UpdatePreferences(r.Context(), middleware.IdentityFrom(r.Context()), chatService.PreferenceUpdate{
		Tone:     payload.Tone,
		Language: payload.Language,
		Consent:  payload.Consent,
	})
	if err != nil {
		httperr.Respond(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"preferences": prefs,
		"migration":   migration,
	})
}
