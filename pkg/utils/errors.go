package utils

import (
	"errors"
	"net/http"

	"github.com/medlens/rxchat/backend/internal/model/prescription"
	"github.com/medlens/rxchat/backend/internal/service/ai"
	"github.com/medlens/rxchat/backend/internal/service/chat"
	"github.com/medlens/rxchat/backend/internal/service/normalize"
	"github.com/medlens/rxchat/backend/internal/service/ocr"
	"github.com/medlens/rxchat/backend/internal/service/pipeline"
	"github.com/medlens/rxchat/backend/internal/service/session"
)

// 错误类别，出现在错误响应的 kind 字段中。
const (
	KindBadRequest       = "bad_request"
	KindNotFound         = "not_found"
	KindUnavailable      = "unavailable"
	KindEmptyInput       = "empty_input"
	KindUnsupportedImage = "unsupported_image"
	KindExtraction       = "extraction_failed"
	KindEmptyMessage     = "empty_message"
	KindNoRecords        = "no_records"
	KindSessionNotFound  = "session_not_found"
	KindSessionClosed    = "session_closed"
	KindStoreUnavailable = "store_unavailable"
	KindOCRUnavailable   = "ocr_unavailable"
	KindModelUnavailable = "model_unavailable"
	KindModelRejected    = "model_rejected"
	KindInternal         = "internal"
)

type errorKind struct {
	target error
	status int
	kind   string
}

// 顺序有意义：先匹配的类别生效。
var errorKinds = []errorKind{
	{normalize.ErrEmptyInput, http.StatusUnprocessableEntity, KindEmptyInput},
	{prescription.ErrEmptyText, http.StatusUnprocessableEntity, KindEmptyInput},
	{ocr.ErrUnsupportedImage, http.StatusUnprocessableEntity, KindUnsupportedImage},
	{ocr.ErrExtraction, http.StatusUnprocessableEntity, KindExtraction},
	{chat.ErrEmptyMessage, http.StatusUnprocessableEntity, KindEmptyMessage},
	{session.ErrNoRecords, http.StatusUnprocessableEntity, KindNoRecords},
	{prescription.ErrNotFound, http.StatusNotFound, KindNotFound},
	{session.ErrSessionNotFound, http.StatusNotFound, KindSessionNotFound},
	{session.ErrSessionClosed, http.StatusConflict, KindSessionClosed},
	{prescription.ErrStoreUnavailable, http.StatusServiceUnavailable, KindStoreUnavailable},
	{pipeline.ErrExtractorUnavailable, http.StatusServiceUnavailable, KindOCRUnavailable},
	{ai.ErrModelUnavailable, http.StatusServiceUnavailable, KindModelUnavailable},
	{ai.ErrModelRejected, http.StatusUnprocessableEntity, KindModelRejected},
}

// Classify 将服务层错误映射为 HTTP 状态码和错误类别。
func Classify(err error) (int, string) {
	for _, k := range errorKinds {
		if errors.Is(err, k.target) {
			return k.status, k.kind
		}
	}
	return http.StatusInternalServerError, KindInternal
}
