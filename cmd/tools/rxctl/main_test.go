package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chatmodel "github.com/medlens/rxchat/backend/internal/model/chat"
	"github.com/medlens/rxchat/backend/internal/model/prescription"
	"github.com/medlens/rxchat/backend/internal/service/ai"
	"github.com/medlens/rxchat/backend/internal/service/chat"
	"github.com/medlens/rxchat/backend/internal/service/ocr"
	"github.com/medlens/rxchat/backend/internal/service/pipeline"
	"github.com/medlens/rxchat/backend/internal/service/prompt"
	"github.com/medlens/rxchat/backend/internal/service/session"
)

type replyModel struct {
	err error
}

func (m *replyModel) Generate(_ context.Context, msgs []chatmodel.Message) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return fmt.Sprintf("answer to %q (%d messages)", msgs[len(msgs)-1].Content, len(msgs)), nil
}

func newChatPipeline(gen ai.Generator) *pipeline.Service {
	chatSvc := chat.NewService(prompt.NewAssembler(0), gen)
	extractor := ocr.ExtractorFunc(func(context.Context, []byte) (string, error) { return "x", nil })
	return pipeline.NewService(prescription.NewMemoryStore(), extractor, session.NewManager(), chatSvc)
}

func direct(svc *pipeline.Service) func(context.Context) (*session.Session, error) {
	return func(ctx context.Context) (*session.Session, error) { return svc.OpenSession(ctx, "") }
}

func TestRunChatConversation(t *testing.T) {
	svc := newChatPipeline(&replyModel{})
	var out bytes.Buffer

	in := strings.NewReader("first\n\nsecond\n/quit\nignored\n")
	require.NoError(t, runChat(context.Background(), svc, direct(svc), in, &out))

	text := out.String()
	assert.Contains(t, text, "chatting directly")
	assert.Contains(t, text, `answer to "first"`)
	assert.Contains(t, text, `answer to "second"`)
	assert.NotContains(t, text, "ignored")
}

func TestRunChatNewClearsHistory(t *testing.T) {
	svc := newChatPipeline(&replyModel{})
	var opened []*session.Session
	open := func(ctx context.Context) (*session.Session, error) {
		s, err := svc.OpenSession(ctx, "")
		opened = append(opened, s)
		return s, err
	}

	var out bytes.Buffer
	require.NoError(t, runChat(context.Background(), svc, open, strings.NewReader("one\n/new\ntwo\n"), &out))

	require.Len(t, opened, 2)
	assert.True(t, opened[0].Closed())
	assert.True(t, opened[1].Closed())
	assert.Equal(t, 2, opened[0].Len())
	assert.Equal(t, 2, opened[1].Len())
	assert.Contains(t, out.String(), "History cleared.")
}

func TestRunChatKeepsGoingAfterModelFailure(t *testing.T) {
	model := &replyModel{err: fmt.Errorf("%w: 503", ai.ErrModelUnavailable)}
	svc := newChatPipeline(model)

	var out bytes.Buffer
	require.NoError(t, runChat(context.Background(), svc, direct(svc), strings.NewReader("hello\nagain\n"), &out))

	assert.Equal(t, 2, strings.Count(out.String(), "try again in a moment"))
}

func TestRunChatOpenFailure(t *testing.T) {
	svc := newChatPipeline(&replyModel{})
	open := func(ctx context.Context) (*session.Session, error) { return svc.OpenSessionAll(ctx) }

	err := runChat(context.Background(), svc, open, strings.NewReader(""), &bytes.Buffer{})
	assert.ErrorIs(t, err, session.ErrNoRecords)
}

func memoryEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DB_DRIVER", "memory")
	t.Setenv("OCR_ENGINE", "none")
	t.Setenv("AI_PROVIDER", "openai")
	t.Setenv("MISTRAL_API_KEY", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("LOG_LEVEL", "disabled")
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return executeContext(t, context.Background(), args...)
}

func executeContext(t *testing.T, ctx context.Context, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(""))
	err := cmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func TestListCommandEmptyStore(t *testing.T) {
	memoryEnv(t)
	stdout, _, err := execute(t, "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "no prescriptions stored")
}

func TestShowCommandUnknownID(t *testing.T) {
	memoryEnv(t)
	_, _, err := execute(t, "show", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestExtractCommandWithoutEngine(t *testing.T) {
	memoryEnv(t)
	path := filepath.Join(t.TempDir(), "rx.png")
	require.NoError(t, os.WriteFile(path, []byte("not even an image"), 0o644))

	_, stderr, err := execute(t, "extract", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 images failed")
	assert.Contains(t, stderr, "rx.png")
}

func TestChatCommandRejectsConflictingFlags(t *testing.T) {
	memoryEnv(t)
	_, _, err := execute(t, "chat", "--all", "--prescription", "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")
}

func TestWatchCommandLeavesExistingFiles(t *testing.T) {
	memoryEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old.png"), []byte("png"), 0o644))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	stdout, stderr, err := executeContext(t, ctx, "watch", dir)
	require.NoError(t, err)
	assert.Contains(t, stdout, "watching "+dir)
	assert.NotContains(t, stderr, "old.png")

	ctx, cancel = context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, stderr, err = executeContext(t, ctx, "watch", "--process-existing", dir)
	require.NoError(t, err)
	assert.Contains(t, stderr, "old.png")
}
