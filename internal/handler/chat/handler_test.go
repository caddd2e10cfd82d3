package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	chatmodel "github.com/medlens/rxchat/backend/internal/model/chat"
	"github.com/medlens/rxchat/backend/internal/model/prescription"
	chatservice "github.com/medlens/rxchat/backend/internal/service/chat"
	"github.com/medlens/rxchat/backend/internal/service/pipeline"
	"github.com/medlens/rxchat/backend/internal/service/prompt"
	"github.com/medlens/rxchat/backend/internal/service/session"
)

type echoGenerator struct{}

func (echoGenerator) Generate(_ context.Context, msgs []chatmodel.Message) (string, error) {
	return "echo: " + msgs[len(msgs)-1].Content, nil
}

func setupRouter(t *testing.T) (*chi.Mux, prescription.Store) {
	t.Helper()
	store := prescription.NewMemoryStore()
	chatSvc := chatservice.NewService(prompt.NewAssembler(0), echoGenerator{})
	svc := pipeline.NewService(store, nil, session.NewManager(), chatSvc)

	r := chi.NewRouter()
	New(svc).RegisterRoutes(r)
	return r, store
}

func post(r http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestCreateSessionForStoredPrescription(t *testing.T) {
	r, store := setupRouter(t)
	record, err := store.Create(context.Background(), "Paracetamol 500mg")
	if err != nil {
		t.Fatalf("Create err: %v", err)
	}

	payload, _ := json.Marshal(map[string]string{"prescriptionId": record.ID})
	resp := post(r, "/sessions", string(payload))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var view chatmodel.SessionView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if view.AnchorText != "Paracetamol 500mg" {
		t.Fatalf("expected anchor text to match record, got %q", view.AnchorText)
	}
}

func TestCreateSessionInvalidBody(t *testing.T) {
	r, _ := setupRouter(t)
	resp := post(r, "/sessions", "{not json")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestCreateSessionUnknownPrescription(t *testing.T) {
	r, _ := setupRouter(t)
	resp := post(r, "/sessions", `{"prescriptionId":"non-existent"}`)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestSendMessageReturnsReply(t *testing.T) {
	r, _ := setupRouter(t)
	resp := post(r, "/sessions", "")
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.Code)
	}
	var view chatmodel.SessionView
	_ = json.NewDecoder(resp.Body).Decode(&view)

	resp = post(r, "/sessions/"+view.ID+"/messages", `{"content":"hello"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var reply sendMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if reply.Content != "echo: hello" || reply.Turns != 2 {
		t.Fatalf("unexpected reply %+v", reply)
	}
}
