package pipeline

import (
	"errors"
	"fmt"
)

// Kind classifies a failed conversation turn.
type Kind string

const (
	KindInvalidInput Kind = "invalid_input"
	KindEmbedding    Kind = "embedding_error"
	KindRetrieval    Kind = "retrieval_error"
	KindGeneration   Kind = "generation_error"
)

// Error is the only error type Answer returns. Message is safe to show to
// end users; the wrapped cause is for logs only.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

func newError(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, cause: cause}
}

// KindOf returns the Kind of err, or "" when err is not a pipeline error.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
