package openai

import (
	"context"
	"errors"
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"
)

// Embedder calls the embeddings endpoint.
type Embedder struct {
	c          *client
	dimensions int
}

// NewEmbedder creates an Embedder. dimensions is sent only when positive;
// not every compatible server supports it.
func NewEmbedder(cfg ClientConfig, dimensions int) *Embedder {
	return &Embedder{c: newClient(cfg), dimensions: dimensions}
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var resp goopenai.EmbeddingResponse
	err := e.c.call(ctx, "embed", func(ctx context.Context) error {
		var err error
		resp, err = e.c.api.CreateEmbeddings(ctx, goopenai.EmbeddingRequestStrings{
			Input:      []string{text},
			Model:      goopenai.EmbeddingModel(e.c.model),
			Dimensions: e.dimensions,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedding: %w", err)
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, errors.New("embedding response contained no vectors")
	}
	return resp.Data[0].Embedding, nil
}
