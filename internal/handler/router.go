package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/medlens/rxchat/backend/internal/handler/chat"
	"github.com/medlens/rxchat/backend/internal/handler/prescription"
	"github.com/medlens/rxchat/backend/internal/handler/stream"
	"github.com/medlens/rxchat/backend/internal/handler/ws"
	"github.com/medlens/rxchat/backend/internal/service/pipeline"
	"github.com/medlens/rxchat/backend/pkg/utils"
)

const healthTimeout = 2 * time.Second

// NewRouter wires HTTP routes to the pipeline service.
func NewRouter(svc *pipeline.Service) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(CORS)

	r.Get("/healthz", handleHealth(svc))

	r.Route("/api", func(api chi.Router) {
		prescription.New(svc).RegisterRoutes(api)
		chat.New(svc).RegisterRoutes(api)
		stream.New(svc).RegisterRoutes(api)
		ws.New(svc).RegisterRoutes(api)
	})

	return r
}

func handleHealth(svc *pipeline.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		if err := svc.Ping(ctx); err != nil {
			utils.RespondServiceError(w, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":    "ok",
			"streaming": svc.StreamingEnabled(),
		})
	}
}
