package openai

import (
	"log/slog"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encoding     *tiktoken.Tiktoken
	encodingOnce sync.Once
)

// CountTokens estimates the cl100k token count of text. Used when a server
// does not report usage. If the encoding cannot be loaded it falls back to
// four characters per token.
func CountTokens(text string) int {
	if text == "" {
		return 0
	}

	encodingOnce.Do(func() {
		var err error
		encoding, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			slog.Warn("tiktoken encoding unavailable, using character estimate", "error", err)
		}
	})

	if encoding == nil {
		return (len(text) + 3) / 4
	}
	return len(encoding.Encode(text, nil, nil))
}
