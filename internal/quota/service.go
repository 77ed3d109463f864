package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/moroccoguide/guide/internal/config"
)

// Service combines the minute window and the daily budgets. Store failures
// never block a user: the check fails open and logs.
type Service struct {
	store   Store
	limiter *Limiter
	cfg     config.GovernanceConfig
}

func NewService(store Store, limiter *Limiter, cfg config.GovernanceConfig) *Service {
	return &Service{store: store, limiter: limiter, cfg: cfg}
}

// Check admits or rejects one ask. A rejection is an *ExceededError.
func (s *Service) Check(ctx context.Context, userID uuid.UUID) error {
	if s.cfg.AskPerMinute > 0 {
		allowed, err := s.limiter.Allow(ctx, userID, s.cfg.AskPerMinute)
		switch {
		case err != nil:
			slog.Warn("quota: minute window unavailable, allowing request", "user_id", userID, "error", err)
		case !allowed:
			return s.reject(ctx, userID, LimitMinute, window,
				fmt.Sprintf("rate limit exceeded: max %d questions per minute", s.cfg.AskPerMinute))
		}
	}

	if _, err := s.store.ResetDailyIfStale(ctx, userID); err != nil {
		slog.Warn("quota: daily reset check failed", "user_id", userID, "error", err)
	}

	usage, err := s.store.GetOrCreate(ctx, userID)
	if err != nil {
		slog.Warn("quota: daily usage unavailable, allowing request", "user_id", userID, "error", err)
		return nil
	}

	if s.cfg.DailyTokenLimit > 0 && usage.TokensUsedToday >= s.cfg.DailyTokenLimit {
		return s.reject(ctx, userID, LimitDailyTokens, untilReset(usage, time.Now()),
			fmt.Sprintf("daily token limit exceeded: %d/%d tokens used", usage.TokensUsedToday, s.cfg.DailyTokenLimit))
	}
	if s.cfg.DailyRequestLimit > 0 && usage.RequestsToday >= s.cfg.DailyRequestLimit {
		return s.reject(ctx, userID, LimitDailyRequests, untilReset(usage, time.Now()),
			fmt.Sprintf("daily request limit exceeded: %d/%d requests", usage.RequestsToday, s.cfg.DailyRequestLimit))
	}
	return nil
}

func (s *Service) reject(ctx context.Context, userID uuid.UUID, limit string, retryAfter time.Duration, msg string) error {
	if err := s.store.RecordViolation(ctx, userID, limit); err != nil {
		slog.Warn("quota: recording violation failed", "user_id", userID, "error", err)
	}
	return &ExceededError{Limit: limit, Message: msg, RetryAfter: retryAfter}
}

// untilReset is the time left before the daily counters roll over.
func untilReset(usage *Usage, now time.Time) time.Duration {
	return max(usage.LastDailyReset.Add(dailyPeriod).Sub(now), 0)
}

// Deduct records one answered ask and its token cost.
func (s *Service) Deduct(ctx context.Context, userID uuid.UUID, tokens int) error {
	return s.store.AddUsage(ctx, userID, int64(tokens))
}

func (s *Service) Status(ctx context.Context, userID uuid.UUID) (*Status, error) {
	if _, err := s.store.ResetDailyIfStale(ctx, userID); err != nil {
		slog.Warn("quota: daily reset check failed", "user_id", userID, "error", err)
	}

	usage, err := s.store.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("getting quota: %w", err)
	}

	asks, err := s.limiter.Count(ctx, userID)
	if err != nil {
		slog.Warn("quota: minute window unavailable", "user_id", userID, "error", err)
		asks = 0
	}

	return &Status{
		AsksLastMinute:   asks,
		AsksLimitMinute:  s.cfg.AskPerMinute,
		TokensUsedToday:  usage.TokensUsedToday,
		TokensLimitDay:   s.cfg.DailyTokenLimit,
		RequestsToday:    usage.RequestsToday,
		RequestsLimitDay: s.cfg.DailyRequestLimit,
	}, nil
}
