package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/comigor/groq-extension-go/internal/logger"
	"github.com/comigor/groq-extension-go/internal/session"
)

var ErrEmptyCompletion = errors.New("model returned no choices")

// Completer hides whether a model supports streaming: Stream always yields
// a ChunkStream, using a single synthetic chunk for non-streaming models.
type Completer struct {
	client       Client
	nonStreaming map[string]struct{}
}

func NewCompleter(client Client, nonStreamingModels []string) *Completer {
	set := make(map[string]struct{}, len(nonStreamingModels))
	for _, m := range nonStreamingModels {
		set[m] = struct{}{}
	}
	return &Completer{client: client, nonStreaming: set}
}

// Complete runs a single-shot completion and returns the first choice.
func (c *Completer) Complete(ctx context.Context, model string, msgs []session.ChatMessage) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    model,
		Messages: toOpenAI(msgs),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion with %s: %w", model, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion with %s: %w", model, ErrEmptyCompletion)
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream opens a streamed completion.
func (c *Completer) Stream(ctx context.Context, model string, msgs []session.ChatMessage) (ChunkStream, error) {
	if _, ok := c.nonStreaming[model]; ok {
		logger.L.Debug("model does not stream; adapting single-shot completion", "model", model)
		content, err := c.Complete(ctx, model, msgs)
		if err != nil {
			return nil, err
		}
		return SliceStream(content), nil
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    model,
		Messages: toOpenAI(msgs),
		Stream:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("open completion stream with %s: %w", model, err)
	}
	return &openaiStream{stream: stream}, nil
}

func toOpenAI(msgs []session.ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}
