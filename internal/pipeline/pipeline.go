// Package pipeline runs one conversation turn: validate, retrieve context,
// generate an answer and record it in session memory.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/moroccoguide/guide/internal/generation"
	"github.com/moroccoguide/guide/internal/memory"
	"github.com/moroccoguide/guide/internal/metrics"
	"github.com/moroccoguide/guide/internal/retrieval"
)

// ContextRetriever produces reference text for a query.
type ContextRetriever interface {
	Retrieve(ctx context.Context, query string) (string, error)
}

// AnswerGenerator answers a query and records the exchange in session.
type AnswerGenerator interface {
	Generate(ctx context.Context, contextText, query string, session *memory.Session) (generation.Answer, error)
}

// Reply is the result of a successful turn.
type Reply struct {
	Text       string
	TokensUsed int
}

type Pipeline struct {
	memory    memory.Store
	retriever ContextRetriever
	generator AnswerGenerator
}

func New(store memory.Store, retriever ContextRetriever, generator AnswerGenerator) *Pipeline {
	return &Pipeline{memory: store, retriever: retriever, generator: generator}
}

// Answer runs one turn for sessionID. Failures are returned as *Error.
//
// When context retrieval fails the turn still proceeds with empty context;
// an embedding failure is treated the same way. Both are logged and counted.
func (p *Pipeline) Answer(ctx context.Context, sessionID, query string) (Reply, error) {
	if err := ValidateQuery(query); err != nil {
		metrics.PipelineAnswersTotal.WithLabelValues(string(KindInvalidInput)).Inc()
		return Reply{}, err
	}

	session := p.memory.GetOrCreate(sessionID)

	contextText, err := p.retriever.Retrieve(ctx, query)
	if err != nil {
		if ctx.Err() != nil {
			return Reply{}, p.fail(classifyRetrieval(err), err)
		}
		metrics.RetrievalDegradedTotal.Inc()
		slog.Warn("pipeline: retrieval failed, answering without context",
			"session_id", sessionID, "kind", classifyRetrieval(err), "error", err)
		contextText = ""
	}

	answer, err := p.generator.Generate(ctx, contextText, query, session)
	if err != nil {
		return Reply{}, p.fail(KindGeneration, err)
	}

	metrics.PipelineAnswersTotal.WithLabelValues("ok").Inc()
	return Reply{Text: answer.Text, TokensUsed: answer.TokensUsed}, nil
}

// ValidateQuery rejects empty and whitespace-only queries with KindInvalidInput.
func ValidateQuery(query string) *Error {
	if strings.TrimSpace(query) == "" {
		return newError(KindInvalidInput, "query must not be empty", nil)
	}
	return nil
}

// Reset clears the session's transcript.
func (p *Pipeline) Reset(ctx context.Context, sessionID string) error {
	return p.memory.Clear(ctx, sessionID)
}

// History returns the session's transcript.
func (p *Pipeline) History(ctx context.Context, sessionID string) ([]memory.Entry, error) {
	return p.memory.Entries(ctx, sessionID)
}

func (p *Pipeline) fail(kind Kind, cause error) *Error {
	metrics.PipelineAnswersTotal.WithLabelValues(string(kind)).Inc()
	slog.Error("pipeline: turn failed", "kind", kind, "error", cause)
	return newError(kind, userMessage(kind), cause)
}

func classifyRetrieval(err error) Kind {
	if errors.Is(err, retrieval.ErrEmbedding) {
		return KindEmbedding
	}
	return KindRetrieval
}

func userMessage(kind Kind) string {
	switch kind {
	case KindEmbedding:
		return "could not process the question"
	case KindRetrieval:
		return "could not look up travel information"
	case KindGeneration:
		return "could not generate an answer, please try again"
	default:
		return "request failed"
	}
}
