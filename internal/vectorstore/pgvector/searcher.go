// Package pgvector searches the places table by cosine distance.
package pgvector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/moroccoguide/guide/internal/retrieval"
)

// Searcher implements retrieval.Searcher over a table with columns
// title, category, description, metadata (jsonb) and embedding (vector).
type Searcher struct {
	pool  *pgxpool.Pool
	query string
}

func NewSearcher(pool *pgxpool.Pool, table string) *Searcher {
	ident := pgx.Identifier{table}.Sanitize()
	return &Searcher{
		pool: pool,
		query: fmt.Sprintf(`SELECT title, category, description, metadata,
		        1 - (embedding <=> $1) AS similarity
		   FROM %s
		  ORDER BY embedding <=> $1
		  LIMIT $2`, ident),
	}
}

func (s *Searcher) Search(ctx context.Context, vector []float32, topK int) ([]retrieval.Hit, error) {
	rows, err := s.pool.Query(ctx, s.query, pgvector.NewVector(vector), topK)
	if err != nil {
		return nil, fmt.Errorf("searching places: %w", err)
	}
	defer rows.Close()

	var hits []retrieval.Hit
	for rows.Next() {
		var (
			title, category, description *string
			extra                        []byte
			similarity                   float64
		)
		if err := rows.Scan(&title, &category, &description, &extra, &similarity); err != nil {
			return nil, fmt.Errorf("scanning place: %w", err)
		}
		hits = append(hits, retrieval.Hit{
			Score:    float32(similarity),
			Metadata: buildMetadata(title, category, description, extra),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating places: %w", err)
	}
	return hits, nil
}

// buildMetadata merges the jsonb column with the dedicated text columns. The
// columns win over jsonb keys of the same name; NULL columns are left out.
func buildMetadata(title, category, description *string, extra []byte) map[string]any {
	meta := make(map[string]any)
	if len(extra) > 0 {
		if err := json.Unmarshal(extra, &meta); err != nil {
			slog.Warn("pgvector: ignoring malformed metadata", "title", deref(title), "error", err)
			meta = make(map[string]any)
		}
		if meta == nil {
			meta = make(map[string]any)
		}
	}
	for key, v := range map[string]*string{
		"title":       title,
		"category":    category,
		"description": description,
	} {
		if v != nil {
			meta[key] = *v
		}
	}
	return meta
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
