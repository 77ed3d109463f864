// Package generation produces tour-guide answers from retrieved context and
// session history.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/prompts"

	"github.com/moroccoguide/guide/internal/memory"
	"github.com/moroccoguide/guide/internal/metrics"
)

// ErrGeneration marks a failed, timed out or empty model response.
var ErrGeneration = errors.New("generation failed")

const promptTemplate = `You are an AI-powered Moroccan tour guide. Respond in the same language as the question.
- If the user asks about Morocco, provide detailed, engaging answers.
- If the context lacks details, use your knowledge to enhance responses.
- If the user asks about something unrelated to Morocco, politely respond: "I'm here to provide information about Morocco only."

Conversation history:
{{.chat_history}}

Context:
{{.context}}

Question:
{{.question}}

Answer in a helpful, conversational tone:`

// Completion is a language model response.
type Completion struct {
	Text       string
	TokensUsed int
}

// Completer sends a fully rendered prompt to a language model.
type Completer interface {
	Complete(ctx context.Context, prompt string) (Completion, error)
}

// Answer is the outcome of one successful generation.
type Answer struct {
	Text       string
	TokensUsed int
}

type Generator struct {
	completer Completer
	template  prompts.PromptTemplate
	timeout   time.Duration
}

// NewGenerator creates a Generator. timeout bounds each model call; zero
// leaves it bounded only by the caller's context.
func NewGenerator(completer Completer, timeout time.Duration) *Generator {
	return &Generator{
		completer: completer,
		template:  prompts.NewPromptTemplate(promptTemplate, []string{"chat_history", "context", "question"}),
		timeout:   timeout,
	}
}

// Generate answers query using contextText and the session's history, then
// records the exchange in the session. Nothing is recorded on failure.
func (g *Generator) Generate(ctx context.Context, contextText, query string, session *memory.Session) (Answer, error) {
	history, err := session.History(ctx)
	if err != nil {
		slog.Warn("generation: reading history failed, continuing without it",
			"session_id", session.ID(), "error", err)
		history = ""
	}

	prompt, err := g.RenderPrompt(history, contextText, query)
	if err != nil {
		return Answer{}, fmt.Errorf("%w: rendering prompt: %w", ErrGeneration, err)
	}

	completion, err := g.complete(ctx, prompt)
	if err != nil {
		return Answer{}, fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	if strings.TrimSpace(completion.Text) == "" {
		return Answer{}, fmt.Errorf("%w: empty response from model", ErrGeneration)
	}

	// The turn is already paid for; record it even if the caller went away.
	if err := session.Append(context.WithoutCancel(ctx), query, completion.Text); err != nil {
		metrics.MemoryAppendFailuresTotal.Inc()
		slog.Error("generation: recording exchange failed",
			"session_id", session.ID(), "error", err)
	}

	return Answer{Text: completion.Text, TokensUsed: completion.TokensUsed}, nil
}

// RenderPrompt fills the tour-guide template.
func (g *Generator) RenderPrompt(history, contextText, query string) (string, error) {
	return g.template.Format(map[string]any{
		"chat_history": history,
		"context":      contextText,
		"question":     query,
	})
}

func (g *Generator) complete(ctx context.Context, prompt string) (Completion, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	return g.completer.Complete(ctx, prompt)
}
