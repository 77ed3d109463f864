package quota

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists daily usage and violations.
type Store interface {
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*Usage, error)
	ResetDailyIfStale(ctx context.Context, userID uuid.UUID) (bool, error)
	AddUsage(ctx context.Context, userID uuid.UUID, tokens int64) error
	RecordViolation(ctx context.Context, userID uuid.UUID, kind string) error
}

type postgresStore struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Store {
	return &postgresStore{pool: pool}
}

func (r *postgresStore) GetOrCreate(ctx context.Context, userID uuid.UUID) (*Usage, error) {
	var u Usage
	err := r.pool.QueryRow(ctx,
		`INSERT INTO user_quotas (user_id) VALUES ($1)
		 ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		 RETURNING user_id, tokens_used_today, requests_today, last_daily_reset, updated_at`, userID,
	).Scan(&u.UserID, &u.TokensUsedToday, &u.RequestsToday, &u.LastDailyReset, &u.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("fetching user quota: %w", err)
	}
	return &u, nil
}

// ResetDailyIfStale zeroes the daily counters once a day has passed since the
// last reset.
func (r *postgresStore) ResetDailyIfStale(ctx context.Context, userID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE user_quotas
		 SET tokens_used_today = 0, requests_today = 0,
		     last_daily_reset = NOW(), updated_at = NOW()
		 WHERE user_id = $1 AND last_daily_reset < NOW() - INTERVAL '24 hours'`, userID)
	if err != nil {
		return false, fmt.Errorf("resetting daily quota: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *postgresStore) AddUsage(ctx context.Context, userID uuid.UUID, tokens int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_quotas (user_id, tokens_used_today, requests_today)
		 VALUES ($1, $2, 1)
		 ON CONFLICT (user_id) DO UPDATE
		 SET tokens_used_today = user_quotas.tokens_used_today + EXCLUDED.tokens_used_today,
		     requests_today = user_quotas.requests_today + 1,
		     updated_at = NOW()`, userID, tokens)
	if err != nil {
		return fmt.Errorf("adding quota usage: %w", err)
	}
	return nil
}

func (r *postgresStore) RecordViolation(ctx context.Context, userID uuid.UUID, kind string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO quota_violations (user_id, kind) VALUES ($1, $2)`, userID, kind)
	if err != nil {
		return fmt.Errorf("recording violation: %w", err)
	}
	return nil
}
