package conversations

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository stores sealed turns.
type Repository interface {
	// Append upserts the user's log header and inserts the turn in one
	// transaction. created is true when the header did not exist before.
	Append(ctx context.Context, userID uuid.UUID, turn sealedTurn) (created bool, err error)
	List(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]sealedTurn, int64, error)
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

func (r *postgresRepository) Append(ctx context.Context, userID uuid.UUID, turn sealedTurn) (bool, error) {
	var created bool
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		// xmax is 0 only for a freshly inserted row.
		err := tx.QueryRow(ctx,
			`INSERT INTO conversation_logs (user_id, turn_count)
			 VALUES ($1, 1)
			 ON CONFLICT (user_id) DO UPDATE
			 SET turn_count = conversation_logs.turn_count + 1, updated_at = NOW()
			 RETURNING (xmax = 0)`, userID,
		).Scan(&created)
		if err != nil {
			return fmt.Errorf("upserting conversation log: %w", err)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO conversation_turns (id, user_id, query, response, created_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			turn.ID, userID, turn.Query, turn.Response, turn.CreatedAt)
		if err != nil {
			return fmt.Errorf("inserting conversation turn: %w", err)
		}
		return nil
	})
	return created, err
}

func (r *postgresRepository) List(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]sealedTurn, int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM conversation_turns WHERE user_id = $1`, userID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting conversation turns: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, query, response, created_at
		 FROM conversation_turns WHERE user_id = $1
		 ORDER BY created_at DESC, id
		 LIMIT $2 OFFSET $3`, userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("querying conversation turns: %w", err)
	}

	turns, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (sealedTurn, error) {
		var t sealedTurn
		err := row.Scan(&t.ID, &t.Query, &t.Response, &t.CreatedAt)
		return t, err
	})
	if err != nil {
		return nil, 0, fmt.Errorf("scanning conversation turns: %w", err)
	}
	return turns, total, nil
}
