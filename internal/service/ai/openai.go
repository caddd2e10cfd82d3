package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"

	"github.com/medlens/rxchat/backend/internal/logging"
	"github.com/medlens/rxchat/backend/internal/model/chat"
)

// OpenAIConfig configures an OpenAI-compatible chat completion endpoint.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature *float64
	MaxTokens   *int
	Timeout     time.Duration
}

// OpenAIGenerator talks to any OpenAI-compatible endpoint, Mistral by default.
// The SDK's automatic retries are disabled so that every call is one attempt.
type OpenAIGenerator struct {
	client      openai.Client
	model       string
	temperature *float64
	maxTokens   *int
	logger      zerolog.Logger
}

// NewOpenAIGenerator builds a generator from cfg.
func NewOpenAIGenerator(cfg OpenAIConfig) (*OpenAIGenerator, error) {
	if cfg.Model == "" {
		return nil, errors.New("model name is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	return &OpenAIGenerator{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      logging.Component("ai"),
	}, nil
}

func (g *OpenAIGenerator) params(messages []chat.Message) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    g.model,
		Messages: toOpenAIMessages(messages),
	}
	if g.temperature != nil {
		params.Temperature = openai.Float(*g.temperature)
	}
	if g.maxTokens != nil {
		params.MaxTokens = openai.Int(int64(*g.maxTokens))
	}
	return params
}

// Generate requests a single chat completion.
func (g *OpenAIGenerator) Generate(ctx context.Context, messages []chat.Message) (string, error) {
	params := g.params(messages)

	start := time.Now()
	res, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		g.logger.Debug().Err(err).Str("model", g.model).Msg("chat completion failed")
		return "", classifyOpenAI(ctx, err)
	}
	if len(res.Choices) == 0 {
		return "", fmt.Errorf("%w: completion has no choices", ErrModelUnavailable)
	}

	choice := res.Choices[0]
	reply, err := checkReply(choice.Message.Content, string(choice.FinishReason))
	if err != nil {
		return "", err
	}

	g.logger.Debug().
		Str("model", g.model).
		Int64("promptTokens", res.Usage.PromptTokens).
		Int64("completionTokens", res.Usage.CompletionTokens).
		Dur("elapsed", time.Since(start)).
		Msg("chat completion finished")
	return reply, nil
}

// Stream requests a streamed chat completion and forwards content deltas.
func (g *OpenAIGenerator) Stream(ctx context.Context, messages []chat.Message, onDelta func(string)) (string, error) {
	stream := g.client.Chat.Completions.NewStreaming(ctx, g.params(messages))
	defer stream.Close()

	var (
		content      strings.Builder
		finishReason string
	)
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.FinishReason != "" {
			finishReason = string(choice.FinishReason)
		}
		if delta := choice.Delta.Content; delta != "" {
			content.WriteString(delta)
			if onDelta != nil {
				onDelta(delta)
			}
		}
	}
	if err := stream.Err(); err != nil {
		g.logger.Debug().Err(err).Str("model", g.model).Msg("chat completion stream failed")
		return "", classifyOpenAI(ctx, err)
	}
	return checkReply(content.String(), finishReason)
}

func classifyOpenAI(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return Classify(ctx, err)
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return ClassifyStatus(apiErr.StatusCode, err)
	}
	return Classify(ctx, err)
}

func toOpenAIMessages(messages []chat.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case chat.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case chat.RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}
