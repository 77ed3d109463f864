// Package weaviate searches a Weaviate class of places with near-vector
// queries.
package weaviate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/moroccoguide/guide/internal/retrieval"
)

// Config selects the Weaviate instance and class.
type Config struct {
	Host      string
	Scheme    string
	ClassName string
}

// Searcher implements retrieval.Searcher. Objects of the class are expected
// to carry title, category and description properties.
type Searcher struct {
	client    *weaviate.Client
	className string
}

func NewSearcher(cfg Config) (*Searcher, error) {
	host, scheme := cfg.Host, cfg.Scheme
	if rest, ok := strings.CutPrefix(host, "https://"); ok {
		host, scheme = rest, "https"
	} else if rest, ok := strings.CutPrefix(host, "http://"); ok {
		host, scheme = rest, "http"
	}
	if scheme == "" {
		scheme = "http"
	}

	client, err := weaviate.NewClient(weaviate.Config{Host: host, Scheme: scheme})
	if err != nil {
		return nil, fmt.Errorf("creating weaviate client: %w", err)
	}
	return &Searcher{client: client, className: cfg.ClassName}, nil
}

func (s *Searcher) Search(ctx context.Context, vector []float32, topK int) ([]retrieval.Hit, error) {
	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(vector)

	fields := []graphql.Field{
		{Name: "title"},
		{Name: "category"},
		{Name: "description"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "certainty"}}},
	}

	resp, err := s.client.GraphQL().Get().
		WithClassName(s.className).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(topK).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate near-vector search: %w", err)
	}

	return parseHits(resp, s.className)
}

type placeObject struct {
	Title       *string `json:"title"`
	Category    *string `json:"category"`
	Description *string `json:"description"`
	Additional  struct {
		Certainty float64 `json:"certainty"`
	} `json:"_additional"`
}

type getResponse struct {
	Get map[string][]placeObject `json:"Get"`
}

// parseHits converts a GraphQL Get response into hits, preserving order.
func parseHits(resp *models.GraphQLResponse, className string) ([]retrieval.Hit, error) {
	if resp == nil {
		return nil, errors.New("nil GraphQL response")
	}
	if len(resp.Errors) > 0 {
		msgs := make([]string, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			if e != nil {
				msgs = append(msgs, e.Message)
			}
		}
		return nil, fmt.Errorf("weaviate query error: %s", strings.Join(msgs, "; "))
	}

	raw, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("marshaling GraphQL data: %w", err)
	}
	var parsed getResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decoding GraphQL data: %w", err)
	}

	objects := parsed.Get[className]
	hits := make([]retrieval.Hit, 0, len(objects))
	for _, o := range objects {
		meta := make(map[string]any, 3)
		if o.Title != nil {
			meta["title"] = *o.Title
		}
		if o.Category != nil {
			meta["category"] = *o.Category
		}
		if o.Description != nil {
			meta["description"] = *o.Description
		}
		hits = append(hits, retrieval.Hit{
			Score:    float32(o.Additional.Certainty),
			Metadata: meta,
		})
	}
	return hits, nil
}
