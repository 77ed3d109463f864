package conversations

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/moroccoguide/guide/internal/crypto"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type Service struct {
	repo   Repository
	sealer *crypto.Sealer
}

func NewService(repo Repository, sealer *crypto.Sealer) *Service {
	return &Service{repo: repo, sealer: sealer}
}

// Save encrypts the exchange with the user id as associated data and
// appends it to the user's log.
func (s *Service) Save(ctx context.Context, userID uuid.UUID, query, response string) (SaveResult, error) {
	owner := userID.String()
	sealedQuery, err := s.sealer.Seal(query, owner)
	if err != nil {
		return SaveResult{}, fmt.Errorf("sealing query: %w", err)
	}
	sealedResponse, err := s.sealer.Seal(response, owner)
	if err != nil {
		return SaveResult{}, fmt.Errorf("sealing response: %w", err)
	}

	created, err := s.repo.Append(ctx, userID, sealedTurn{
		ID:        uuid.New(),
		Query:     sealedQuery,
		Response:  sealedResponse,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return SaveResult{}, err
	}
	return SaveResult{UserID: userID, Created: created}, nil
}

// List returns one page of saved turns, newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]Turn, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > maxPageSize {
		pageSize = defaultPageSize
	}

	sealed, total, err := s.repo.List(ctx, userID, page, pageSize)
	if err != nil {
		return nil, 0, err
	}

	owner := userID.String()
	turns := make([]Turn, 0, len(sealed))
	for _, st := range sealed {
		query, err := s.sealer.Open(st.Query, owner)
		if err != nil {
			return nil, 0, fmt.Errorf("opening turn %s: %w", st.ID, err)
		}
		response, err := s.sealer.Open(st.Response, owner)
		if err != nil {
			return nil, 0, fmt.Errorf("opening turn %s: %w", st.ID, err)
		}
		turns = append(turns, Turn{ID: st.ID, Query: query, Response: response, CreatedAt: st.CreatedAt})
	}
	return turns, total, nil
}
