// Package retrieval turns a user query into a block of reference text about
// the places most relevant to it.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// TopK is the number of places retrieved for every query.
const TopK = 3

var (
	// ErrEmbedding marks a failure to embed the query.
	ErrEmbedding = errors.New("embedding failed")
	// ErrRetrieval marks a failed vector search.
	ErrRetrieval = errors.New("vector search failed")
)

// Embedder maps text to a vector in the same space as the indexed places.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher returns up to topK hits, most similar first.
type Searcher interface {
	Search(ctx context.Context, vector []float32, topK int) ([]Hit, error)
}

// Hit is one search result. Metadata is expected to carry title, category and
// description but any of them may be missing.
type Hit struct {
	Score    float32
	Metadata map[string]any
}

// Retriever composes an Embedder and a Searcher.
type Retriever struct {
	embedder      Embedder
	searcher      Searcher
	embedTimeout  time.Duration
	searchTimeout time.Duration
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithTimeouts bounds the embedding and search calls. Zero leaves a call
// bounded only by the caller's context.
func WithTimeouts(embed, search time.Duration) Option {
	return func(r *Retriever) {
		r.embedTimeout = embed
		r.searchTimeout = search
	}
}

func NewRetriever(embedder Embedder, searcher Searcher, opts ...Option) *Retriever {
	r := &Retriever{embedder: embedder, searcher: searcher}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve embeds query, searches for the TopK nearest places and formats
// them as context text. No hits yields an empty string and no error.
func (r *Retriever) Retrieve(ctx context.Context, query string) (string, error) {
	vec, err := r.embed(ctx, query)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrEmbedding, err)
	}

	hits, err := r.search(ctx, vec)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRetrieval, err)
	}

	return FormatContext(hits), nil
}

func (r *Retriever) embed(ctx context.Context, query string) ([]float32, error) {
	if r.embedTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.embedTimeout)
		defer cancel()
	}
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, errors.New("empty embedding vector")
	}
	return vec, nil
}

func (r *Retriever) search(ctx context.Context, vec []float32) ([]Hit, error) {
	if r.searchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.searchTimeout)
		defer cancel()
	}
	return r.searcher.Search(ctx, vec, TopK)
}

// FormatContext renders one paragraph per hit, in the order given.
func FormatContext(hits []Hit) string {
	var b strings.Builder
	for _, h := range hits {
		fmt.Fprintf(&b, "Title: %s\nCategory: %s\nDescription: %s\n\n",
			field(h.Metadata, "title"),
			field(h.Metadata, "category"),
			field(h.Metadata, "description"),
		)
	}
	return b.String()
}

func field(meta map[string]any, key string) string {
	v, ok := meta[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
