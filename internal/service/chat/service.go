package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/medlens/rxchat/backend/internal/logging"
	chatmodel "github.com/medlens/rxchat/backend/internal/model/chat"
	"github.com/medlens/rxchat/backend/internal/service/ai"
	"github.com/medlens/rxchat/backend/internal/service/prompt"
	"github.com/medlens/rxchat/backend/internal/service/session"
)

var (
	ErrEmptyMessage       = errors.New("message is empty")
	ErrStreamNotSupported = errors.New("generator does not support streaming")
)

type modelCall func(ctx context.Context, messages []chatmodel.Message) (string, error)

// Service runs one conversational turn at a time against a session.
type Service struct {
	assembler *prompt.Assembler
	generator ai.Generator
	timeout   time.Duration
	logger    zerolog.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithTimeout bounds every model call.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// NewService wires the prompt assembler to a model generator.
func NewService(assembler *prompt.Assembler, generator ai.Generator, opts ...Option) *Service {
	svc := &Service{
		assembler: assembler,
		generator: generator,
		logger:    logging.Component("chat"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// StreamingEnabled reports whether the configured generator can stream.
func (s *Service) StreamingEnabled() bool {
	_, ok := s.generator.(ai.Streamer)
	return ok
}

// Converse sends userMessage in the context of sess and returns the reply.
// The transcript grows by exactly one user and one assistant turn on success
// and is left untouched on any failure.
func (s *Service) Converse(ctx context.Context, sess *session.Session, userMessage string) (string, error) {
	return s.turn(ctx, sess, userMessage, func(callCtx context.Context, msgs []chatmodel.Message) (string, error) {
		return s.generator.Generate(callCtx, msgs)
	})
}

// ConverseStream behaves like Converse and forwards partial output to onDelta
// while the reply is generated.
func (s *Service) ConverseStream(ctx context.Context, sess *session.Session, userMessage string, onDelta func(string)) (string, error) {
	streamer, ok := s.generator.(ai.Streamer)
	if !ok {
		return "", ErrStreamNotSupported
	}
	return s.turn(ctx, sess, userMessage, func(callCtx context.Context, msgs []chatmodel.Message) (string, error) {
		return streamer.Stream(callCtx, msgs, onDelta)
	})
}

func (s *Service) turn(ctx context.Context, sess *session.Session, userMessage string, call modelCall) (string, error) {
	if sess == nil {
		return "", session.ErrSessionNotFound
	}
	if sess.Closed() {
		return "", session.ErrSessionClosed
	}
	if strings.TrimSpace(userMessage) == "" {
		return "", ErrEmptyMessage
	}
	sentAt := sess.Stamp()

	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	messages := s.assembler.Build(sess, userMessage)

	start := time.Now()
	reply, err := call(callCtx, messages)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("session", sess.ID).
			Bool("retryable", ai.Retryable(err)).
			Msg("model call failed")
		return "", err
	}

	// A reply that arrives after cancellation is dropped.
	if ctxErr := callCtx.Err(); ctxErr != nil {
		return "", fmt.Errorf("%w: %w", ai.ErrModelUnavailable, ctxErr)
	}

	if err := sess.AppendExchange(userMessage, sentAt, reply); err != nil {
		return "", err
	}

	s.logger.Info().
		Str("session", sess.ID).
		Int("turns", sess.Len()).
		Dur("elapsed", time.Since(start)).
		Msg("turn completed")
	return reply, nil
}
