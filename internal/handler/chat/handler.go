package chat

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	chatmodel "github.com/medlens/rxchat/backend/internal/model/chat"
	"github.com/medlens/rxchat/backend/internal/service/pipeline"
	"github.com/medlens/rxchat/backend/internal/service/session"
	"github.com/medlens/rxchat/backend/pkg/utils"
)

// Handler 会话与消息的HTTP处理器
type Handler struct {
	svc *pipeline.Service
}

// New 创建聊天处理器
func New(svc *pipeline.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions", h.handleCreateSession)
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/", h.handleGetSession)
		r.Delete("/", h.handleCloseSession)
		r.Post("/messages", h.handleSendMessage)
	})
}

type createSessionRequest struct {
	PrescriptionID string `json:"prescriptionId"`
	All            bool   `json:"all"`
	Text           string `json:"text"`
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

type sendMessageResponse struct {
	SessionID string `json:"sessionId"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Turns     int    `json:"turns"`
}

// handleCreateSession 创建会话。请求体为空时创建不带处方的直接对话。
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sources := 0
	for _, set := range []bool{payload.PrescriptionID != "", payload.All, payload.Text != ""} {
		if set {
			sources++
		}
	}
	if sources > 1 {
		utils.RespondError(w, http.StatusBadRequest, "prescriptionId, all and text are mutually exclusive")
		return
	}

	var (
		sess *session.Session
		err  error
	)
	switch {
	case payload.All:
		sess, err = h.svc.OpenSessionAll(r.Context())
	case payload.Text != "":
		sess, err = h.svc.OpenSessionFromText(r.Context(), payload.Text)
	default:
		sess, err = h.svc.OpenSession(r.Context(), payload.PrescriptionID)
	}
	if err != nil {
		utils.RespondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, sess.View())
}

// handleGetSession 返回会话的锚定信息和对话记录
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.Session(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		utils.RespondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, sess.View())
}

// handleCloseSession 关闭会话，之后不再接受消息
func (h *Handler) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.Session(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		utils.RespondServiceError(w, err)
		return
	}
	if err := h.svc.CloseSession(r.Context(), sess); err != nil {
		utils.RespondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, sess.View())
}

// handleSendMessage 发送一条用户消息并返回模型回复
func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var payload sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := h.svc.Session(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		utils.RespondServiceError(w, err)
		return
	}

	reply, err := h.svc.SendMessage(r.Context(), sess, payload.Content)
	if err != nil {
		utils.RespondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, sendMessageResponse{
		SessionID: sess.ID,
		Role:      string(chatmodel.RoleAssistant),
		Content:   reply,
		Turns:     sess.Len(),
	})
}
