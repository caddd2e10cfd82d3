package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	chatmodel "github.com/medlens/rxchat/backend/internal/model/chat"
	"github.com/medlens/rxchat/backend/internal/model/prescription"
	chatservice "github.com/medlens/rxchat/backend/internal/service/chat"
	"github.com/medlens/rxchat/backend/internal/service/pipeline"
	"github.com/medlens/rxchat/backend/internal/service/prompt"
	"github.com/medlens/rxchat/backend/internal/service/session"
)

type chunkedGenerator struct{}

func (chunkedGenerator) Generate(context.Context, []chatmodel.Message) (string, error) {
	return "Twice daily", nil
}

func (chunkedGenerator) Stream(_ context.Context, _ []chatmodel.Message, onDelta func(string)) (string, error) {
	onDelta("Twice")
	onDelta(" daily")
	return "Twice daily", nil
}

func TestHandleStreamSendsDeltasInOrder(t *testing.T) {
	chatSvc := chatservice.NewService(prompt.NewAssembler(0), chunkedGenerator{})
	svc := pipeline.NewService(prescription.NewMemoryStore(), nil, session.NewManager(), chatSvc)

	sess, err := svc.OpenSessionFromText(context.Background(), "Ibuprofen 200mg")
	if err != nil {
		t.Fatalf("OpenSessionFromText err: %v", err)
	}

	r := chi.NewRouter()
	New(svc).RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodGet, "/stream/"+sess.ID+"?message=when", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	body := resp.Body.String()
	order := []string{
		"event: start\ndata: {\"event\":\"start\"",
		"event: delta\ndata: {\"event\":\"delta\",\"content\":\"Twice\"",
		"event: delta\ndata: {\"event\":\"delta\",\"content\":\" daily\"",
		"event: message\ndata: {\"event\":\"message\"",
		"event: end\ndata: {\"event\":\"end\"",
	}
	pos := 0
	for _, want := range order {
		idx := strings.Index(body[pos:], want)
		if idx < 0 {
			t.Fatalf("expected %s after offset %d in %q", want, pos, body)
		}
		pos += idx + len(want)
	}

	if sess.Len() != 2 {
		t.Fatalf("expected 2 transcript turns, got %d", sess.Len())
	}
}

func TestHandleStreamUnknownSession(t *testing.T) {
	chatSvc := chatservice.NewService(prompt.NewAssembler(0), chunkedGenerator{})
	svc := pipeline.NewService(prescription.NewMemoryStore(), nil, session.NewManager(), chatSvc)

	r := chi.NewRouter()
	New(svc).RegisterRoutes(r)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/stream/missing?message=hi", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}
