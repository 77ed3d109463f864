package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/moroccoguide/guide/internal/generation"
)

// Completer calls the chat completions endpoint with the prompt as a single
// user message. All conversational state lives in the prompt.
type Completer struct {
	c           *client
	temperature float32
	maxTokens   int
}

func NewCompleter(cfg ClientConfig, temperature float64, maxTokens int) *Completer {
	return &Completer{c: newClient(cfg), temperature: float32(temperature), maxTokens: maxTokens}
}

func (c *Completer) Complete(ctx context.Context, prompt string) (generation.Completion, error) {
	req := goopenai.ChatCompletionRequest{
		Model: c.c.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: c.temperature,
	}
	if c.maxTokens > 0 {
		req.MaxTokens = c.maxTokens
	}

	var resp goopenai.ChatCompletionResponse
	err := c.c.call(ctx, "complete", func(ctx context.Context) error {
		var err error
		resp, err = c.c.api.CreateChatCompletion(ctx, req)
		return err
	})
	if err != nil {
		return generation.Completion{}, fmt.Errorf("creating chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return generation.Completion{}, errors.New("chat completion returned no choices")
	}
	text := resp.Choices[0].Message.Content
	if text == "" {
		return generation.Completion{}, fmt.Errorf("chat completion returned empty content (finish reason %q)", resp.Choices[0].FinishReason)
	}
	slog.Debug("chat completion received", "model", resp.Model, "finish_reason", resp.Choices[0].FinishReason)

	tokens := resp.Usage.TotalTokens
	if tokens == 0 {
		tokens = CountTokens(prompt) + CountTokens(text)
	}
	return generation.Completion{Text: text, TokensUsed: tokens}, nil
}
