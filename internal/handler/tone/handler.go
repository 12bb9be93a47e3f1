package tone

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/enoki/backend/internal/model/chat"
	"github.com/zhouzirui/enoki/backend/internal/service/reply"
	"github.com/zhouzirui/enoki/backend/pkg/utils"
)

// Handler 语气目录的HTTP处理器
type Handler struct {
	tones *reply.ToneProfiles
}

// New 创建语气处理器
func New(tones *reply.ToneProfiles) *Handler {
	return &Handler{tones: tones}
}

// RegisterRoutes 注册语气相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/tones", h.handleListTones)
	r.Get("/tones/{tone}", h.handleGetTone)
}

// handleListTones 列出所有语气
func (h *Handler) handleListTones(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"tones":   h.tones.List(),
		"default": chat.ToneEmpathetic,
	})
}

func (h *Handler) handleGetTone(w http.ResponseWriter, r *http.Request) {
	tone, ok := chat.ParseTone(chi.URLParam(r, "tone"))
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "tone not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.tones.Get(tone))
}
