package stream

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/medlens/rxchat/backend/internal/logging"
	"github.com/medlens/rxchat/backend/internal/service/pipeline"
	"github.com/medlens/rxchat/backend/internal/service/session"
	"github.com/medlens/rxchat/backend/pkg/utils"
)

// Handler manages streaming model replies via Server-Sent Events
type Handler struct {
	svc    *pipeline.Service
	logger zerolog.Logger
}

// New creates a new stream handler
func New(svc *pipeline.Service) *Handler {
	return &Handler{svc: svc, logger: logging.Component("http")}
}

// StreamResponse represents a streaming response chunk
type StreamResponse struct {
	Event     string `json:"event"`
	Content   string `json:"content,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Finished  bool   `json:"finished,omitempty"`
	Error     string `json:"error,omitempty"`
	Kind      string `json:"kind,omitempty"`
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream/{sessionID}", h.handleStream)
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	userMessage := r.URL.Query().Get("message")

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sess, err := h.svc.Session(r.Context(), sessionID)
	if err != nil {
		utils.RespondServiceError(w, err)
		return
	}
	if sess.Closed() {
		utils.RespondServiceError(w, session.ErrSessionClosed)
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	send := func(resp StreamResponse) {
		resp.SessionID = sessionID
		if err := utils.SendSSEEvent(w, flusher, resp.Event, resp); err != nil {
			h.logger.Debug().Err(err).Str("sessionId", sessionID).Msg("sse write failed")
		}
	}

	send(StreamResponse{Event: "start"})

	var reply string
	if h.svc.StreamingEnabled() {
		reply, err = h.svc.StreamMessage(r.Context(), sess, userMessage, func(delta string) {
			send(StreamResponse{Event: "delta", Content: delta})
		})
	} else {
		reply, err = h.svc.SendMessage(r.Context(), sess, userMessage)
	}
	if err != nil {
		_, kind := utils.Classify(err)
		send(StreamResponse{Event: "error", Error: err.Error(), Kind: kind})
		return
	}

	send(StreamResponse{Event: "message", Content: reply})
	send(StreamResponse{Event: "end", Finished: true})

	h.logger.Debug().Str("sessionId", sessionID).Int("turns", sess.Len()).Msg("stream completed")
}
