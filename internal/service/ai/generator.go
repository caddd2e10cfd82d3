package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/medlens/rxchat/backend/internal/model/chat"
)

var (
	// ErrModelUnavailable is transient: the identical call may be retried.
	ErrModelUnavailable = errors.New("language model unavailable")
	// ErrModelRejected is permanent for the given input, e.g. a content-policy refusal.
	ErrModelRejected = errors.New("language model rejected the request")
)

// Generator turns an ordered list of role-tagged messages into reply text.
// Implementations make exactly one attempt and report failures wrapped in
// ErrModelUnavailable or ErrModelRejected.
type Generator interface {
	Generate(ctx context.Context, messages []chat.Message) (string, error)
}

// Streamer is implemented by generators that can emit partial output. onDelta
// receives each content fragment; the full reply is returned at the end.
type Streamer interface {
	Stream(ctx context.Context, messages []chat.Message, onDelta func(string)) (string, error)
}

var rejectionMarkers = []string{
	"content_filter",
	"content filter",
	"content policy",
	"sensitivecontent",
	"sensitive content",
	"invalidparameter",
	"invalid_request_error",
	"context_length_exceeded",
}

// Classify wraps err in ErrModelUnavailable or ErrModelRejected. Errors that
// are already classified are returned unchanged.
func Classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrModelUnavailable) || errors.Is(err, ErrModelRejected) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range rejectionMarkers {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%w: %w", ErrModelRejected, err)
		}
	}
	return fmt.Errorf("%w: %w", ErrModelUnavailable, err)
}

// ClassifyStatus maps an HTTP status code from a model provider.
func ClassifyStatus(status int, err error) error {
	switch {
	case status == 408 || status == 409 || status == 429 || status >= 500:
		return fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	case status >= 400:
		return fmt.Errorf("%w: %w", ErrModelRejected, err)
	default:
		return fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}
}

// Retryable reports whether err is a transient model failure.
func Retryable(err error) bool {
	return errors.Is(err, ErrModelUnavailable)
}

func checkReply(content, finishReason string) (string, error) {
	if strings.EqualFold(finishReason, "content_filter") {
		return "", fmt.Errorf("%w: finish reason %s", ErrModelRejected, finishReason)
	}
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("%w: empty completion", ErrModelRejected)
	}
	return content, nil
}
