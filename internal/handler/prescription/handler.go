package prescription

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/medlens/rxchat/backend/internal/service/pipeline"
	"github.com/medlens/rxchat/backend/pkg/utils"
)

// 上传请求体上限，超过图片上限的部分由服务层拒绝。
const maxUploadBytes = 32 << 20

// Handler 处方相关的HTTP处理器
type Handler struct {
	svc *pipeline.Service
}

// New 创建处方处理器
func New(svc *pipeline.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes 注册处方相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/prescriptions", h.handleUpload)
	r.Get("/prescriptions", h.handleList)
	r.Get("/prescriptions/{id}", h.handleGet)
}

// handleUpload 识别上传的处方图片并保存文本。
// 支持 multipart 字段 image，或直接以 image/* 作为请求体。
func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	image, err := readImage(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.RespondError(w, http.StatusRequestEntityTooLarge, "image is too large")
			return
		}
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	record, err := h.svc.ExtractAndStore(r.Context(), image)
	if err != nil {
		utils.RespondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, record)
}

func readImage(r *http.Request) ([]byte, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "image/") {
		return io.ReadAll(r.Body)
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, errors.New("multipart field \"image\" is required")
	}
	defer file.Close()
	return io.ReadAll(file)
}

// handleList 列出所有处方，最新的在前
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.svc.ListPrescriptions(r.Context())
	if err != nil {
		utils.RespondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, summaries)
}

// handleGet 返回单个处方的完整文本
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	record, err := h.svc.GetPrescription(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		utils.RespondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, record)
}
