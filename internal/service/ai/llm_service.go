package ai

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/medlens/rxchat/backend/internal/logging"
	"github.com/medlens/rxchat/backend/internal/model/chat"
)

// EinoGenerator runs prompts through an eino chain ending in a chat model,
// Ark by default.
type EinoGenerator struct {
	chain  compose.Runnable[[]*schema.Message, *schema.Message]
	logger zerolog.Logger
}

// NewEinoGenerator compiles a single-node chain around chatModel.
func NewEinoGenerator(ctx context.Context, chatModel model.BaseChatModel) (*EinoGenerator, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}

	chain := compose.NewChain[[]*schema.Message, *schema.Message]()
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &EinoGenerator{
		chain:  runnable,
		logger: logging.Component("ai"),
	}, nil
}

// Generate produces a complete reply in one model call.
func (g *EinoGenerator) Generate(ctx context.Context, messages []chat.Message) (string, error) {
	response, err := g.chain.Invoke(ctx, toSchemaMessages(messages))
	if err != nil {
		return "", Classify(ctx, fmt.Errorf("failed to run AI chain: %w", err))
	}
	if response == nil {
		return "", fmt.Errorf("%w: nil response", ErrModelRejected)
	}

	reply, err := checkReply(response.Content, finishReason(response))
	if err != nil {
		return "", err
	}
	g.logger.Debug().Int("messages", len(messages)).Int("length", len(reply)).Msg("generated response")
	return reply, nil
}

// Stream produces a reply chunk by chunk, forwarding each fragment to onDelta.
func (g *EinoGenerator) Stream(ctx context.Context, messages []chat.Message, onDelta func(string)) (string, error) {
	stream, err := g.chain.Stream(ctx, toSchemaMessages(messages))
	if err != nil {
		return "", Classify(ctx, fmt.Errorf("failed to stream AI chain output: %w", err))
	}
	defer stream.Close()

	chunks := make([]*schema.Message, 0, 8)
	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return "", Classify(ctx, recvErr)
		}
		if chunk == nil {
			continue
		}
		chunks = append(chunks, chunk)
		if chunk.Content != "" && onDelta != nil {
			onDelta(chunk.Content)
		}
	}

	if len(chunks) == 0 {
		return "", fmt.Errorf("%w: empty stream", ErrModelRejected)
	}
	response, err := schema.ConcatMessages(chunks)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}
	return checkReply(response.Content, finishReason(response))
}

func toSchemaMessages(messages []chat.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case chat.RoleSystem:
			out = append(out, schema.SystemMessage(msg.Content))
		case chat.RoleAssistant:
			out = append(out, schema.AssistantMessage(msg.Content, nil))
		default:
			out = append(out, schema.UserMessage(msg.Content))
		}
	}
	return out
}

func finishReason(msg *schema.Message) string {
	if msg.ResponseMeta == nil {
		return ""
	}
	return msg.ResponseMeta.FinishReason
}
