package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medlens/rxchat/backend/internal/model/chat"
)

type stubChatModel struct {
	reply   *schema.Message
	chunks  []*schema.Message
	err     error
	lastIn  []*schema.Message
	callCnt int
}

func (m *stubChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.callCnt++
	m.lastIn = input
	if m.err != nil {
		return nil, m.err
	}
	return m.reply, nil
}

func (m *stubChatModel) Stream(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	m.callCnt++
	m.lastIn = input
	if m.err != nil {
		return nil, m.err
	}
	return schema.StreamReaderFromArray(m.chunks), nil
}

var prompt = []chat.Message{
	{Role: chat.RoleSystem, Content: "system"},
	{Role: chat.RoleUser, Content: "earlier"},
	{Role: chat.RoleAssistant, Content: "answer"},
	{Role: chat.RoleUser, Content: "now"},
}

func TestEinoGeneratorGenerate(t *testing.T) {
	stub := &stubChatModel{reply: schema.AssistantMessage("Take it twice daily.", nil)}
	gen, err := NewEinoGenerator(context.Background(), stub)
	require.NoError(t, err)

	reply, err := gen.Generate(context.Background(), prompt)
	require.NoError(t, err)
	assert.Equal(t, "Take it twice daily.", reply)

	require.Len(t, stub.lastIn, 4)
	assert.Equal(t, schema.System, stub.lastIn[0].Role)
	assert.Equal(t, schema.User, stub.lastIn[1].Role)
	assert.Equal(t, schema.Assistant, stub.lastIn[2].Role)
	assert.Equal(t, "now", stub.lastIn[3].Content)
}

func TestEinoGeneratorEmptyReplyRejected(t *testing.T) {
	stub := &stubChatModel{reply: schema.AssistantMessage("  ", nil)}
	gen, err := NewEinoGenerator(context.Background(), stub)
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), prompt)
	assert.ErrorIs(t, err, ErrModelRejected)
}

func TestEinoGeneratorContentFilterRejected(t *testing.T) {
	reply := schema.AssistantMessage("partial", nil)
	reply.ResponseMeta = &schema.ResponseMeta{FinishReason: "content_filter"}
	gen, err := NewEinoGenerator(context.Background(), &stubChatModel{reply: reply})
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), prompt)
	assert.ErrorIs(t, err, ErrModelRejected)
}

func TestEinoGeneratorTransportErrorUnavailable(t *testing.T) {
	stub := &stubChatModel{err: errors.New("connection reset by peer")}
	gen, err := NewEinoGenerator(context.Background(), stub)
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), prompt)
	assert.ErrorIs(t, err, ErrModelUnavailable)
	assert.True(t, Retryable(err))
	assert.Equal(t, 1, stub.callCnt)
}

func TestEinoGeneratorStream(t *testing.T) {
	stub := &stubChatModel{chunks: []*schema.Message{
		schema.AssistantMessage("Hel", nil),
		schema.AssistantMessage("lo", nil),
	}}
	gen, err := NewEinoGenerator(context.Background(), stub)
	require.NoError(t, err)

	var deltas []string
	reply, err := gen.Stream(context.Background(), prompt, func(d string) { deltas = append(deltas, d) })
	require.NoError(t, err)
	assert.Equal(t, "Hello", reply)
	assert.Equal(t, []string{"Hel", "lo"}, deltas)
}

func TestNewEinoGeneratorRequiresModel(t *testing.T) {
	_, err := NewEinoGenerator(context.Background(), nil)
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	ctx := context.Background()
	cancelled, cancel := context.WithCancel(ctx)
	cancel()

	tests := []struct {
		name string
		ctx  context.Context
		err  error
		want error
	}{
		{"deadline", ctx, context.DeadlineExceeded, ErrModelUnavailable},
		{"cancelled context", cancelled, errors.New("boom"), ErrModelUnavailable},
		{"content policy", ctx, errors.New("code=SensitiveContentDetected"), ErrModelRejected},
		{"unknown", ctx, errors.New("boom"), ErrModelUnavailable},
		{"already classified", ctx, fmt.Errorf("%w: x", ErrModelRejected), ErrModelRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, Classify(tt.ctx, tt.err), tt.want)
		})
	}
	assert.NoError(t, Classify(ctx, nil))
}

func TestClassifyStatus(t *testing.T) {
	base := errors.New("status")
	for _, code := range []int{408, 409, 429, 500, 503} {
		assert.ErrorIs(t, ClassifyStatus(code, base), ErrModelUnavailable, "status %d", code)
	}
	for _, code := range []int{400, 401, 403, 404, 422} {
		assert.ErrorIs(t, ClassifyStatus(code, base), ErrModelRejected, "status %d", code)
	}
}

type completionRequest struct {
	Model       string   `json:"model"`
	Temperature *float64 `json:"temperature"`
	MaxTokens   *int     `json:"max_tokens"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func completionServer(t *testing.T, status int, body string, hits *int32, seen *completionRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if seen != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestOpenAI(t *testing.T, url string) *OpenAIGenerator {
	t.Helper()
	temp := 0.7
	maxTokens := 500
	gen, err := NewOpenAIGenerator(OpenAIConfig{
		APIKey:      "test-key",
		BaseURL:     url + "/v1/",
		Model:       "mistral-large-latest",
		Temperature: &temp,
		MaxTokens:   &maxTokens,
		Timeout:     5 * time.Second,
	})
	require.NoError(t, err)
	return gen
}

const okCompletion = `{
  "id": "cmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "mistral-large-latest",
  "choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "Take one tablet twice daily."}}],
  "usage": {"prompt_tokens": 12, "completion_tokens": 7, "total_tokens": 19}
}`

func TestOpenAIGeneratorGenerate(t *testing.T) {
	var hits int32
	var seen completionRequest
	srv := completionServer(t, http.StatusOK, okCompletion, &hits, &seen)

	reply, err := newTestOpenAI(t, srv.URL).Generate(context.Background(), prompt)
	require.NoError(t, err)
	assert.Equal(t, "Take one tablet twice daily.", reply)

	assert.Equal(t, "mistral-large-latest", seen.Model)
	require.NotNil(t, seen.Temperature)
	assert.InDelta(t, 0.7, *seen.Temperature, 1e-9)
	require.NotNil(t, seen.MaxTokens)
	assert.Equal(t, 500, *seen.MaxTokens)
	require.Len(t, seen.Messages, 4)
	assert.Equal(t, "system", seen.Messages[0].Role)
	assert.Equal(t, "assistant", seen.Messages[2].Role)
	assert.Equal(t, "now", seen.Messages[3].Content)
}

func TestOpenAIGeneratorRateLimitedIsUnavailableWithoutRetry(t *testing.T) {
	var hits int32
	srv := completionServer(t, http.StatusTooManyRequests, `{"error":{"message":"slow down","type":"rate_limit"}}`, &hits, nil)

	_, err := newTestOpenAI(t, srv.URL).Generate(context.Background(), prompt)
	assert.ErrorIs(t, err, ErrModelUnavailable)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestOpenAIGeneratorBadRequestIsRejected(t *testing.T) {
	var hits int32
	srv := completionServer(t, http.StatusBadRequest, `{"error":{"message":"bad","type":"invalid_request_error"}}`, &hits, nil)

	_, err := newTestOpenAI(t, srv.URL).Generate(context.Background(), prompt)
	assert.ErrorIs(t, err, ErrModelRejected)
}

func TestOpenAIGeneratorServerErrorIsUnavailable(t *testing.T) {
	var hits int32
	srv := completionServer(t, http.StatusInternalServerError, `{"error":{"message":"oops"}}`, &hits, nil)

	var logs bytes.Buffer
	gen := newTestOpenAI(t, srv.URL)
	gen.logger = zerolog.New(&logs).Level(zerolog.InfoLevel)

	_, err := gen.Generate(context.Background(), prompt)
	assert.ErrorIs(t, err, ErrModelUnavailable)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	_, err = gen.Stream(context.Background(), prompt, nil)
	assert.ErrorIs(t, err, ErrModelUnavailable)
	assert.Empty(t, logs.String())
}

func TestOpenAIGeneratorContentFilter(t *testing.T) {
	var hits int32
	body := strings.Replace(okCompletion, `"finish_reason": "stop"`, `"finish_reason": "content_filter"`, 1)
	srv := completionServer(t, http.StatusOK, body, &hits, nil)

	_, err := newTestOpenAI(t, srv.URL).Generate(context.Background(), prompt)
	assert.ErrorIs(t, err, ErrModelRejected)
}

func TestNewOpenAIGeneratorRequiresModel(t *testing.T) {
	_, err := NewOpenAIGenerator(OpenAIConfig{APIKey: "k"})
	assert.Error(t, err)
}

func TestOpenAIGeneratorStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, true, req["stream"])

		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range []string{
			`{"id":"c","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"role":"assistant","content":"Twice"}}]}`,
			`{"id":"c","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"content":" daily"},"finish_reason":"stop"}]}`,
		} {
			_, _ = w.Write([]byte("data: " + chunk + "\n\n"))
		}
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()

	var deltas []string
	reply, err := newTestOpenAI(t, srv.URL).Stream(context.Background(), prompt, func(d string) { deltas = append(deltas, d) })
	require.NoError(t, err)
	assert.Equal(t, "Twice daily", reply)
	assert.Equal(t, []string{"Twice", " daily"}, deltas)
}

func TestOpenAIGeneratorStreamRateLimited(t *testing.T) {
	var hits int32
	srv := completionServer(t, http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, &hits, nil)

	_, err := newTestOpenAI(t, srv.URL).Stream(context.Background(), prompt, nil)
	assert.ErrorIs(t, err, ErrModelUnavailable)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}
