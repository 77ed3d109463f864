// Package quota enforces per-user ask limits: a per-minute sliding window in
// Redis and daily token and request budgets in Postgres.
package quota

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// dailyPeriod is how long daily counters accumulate before they reset.
const dailyPeriod = 24 * time.Hour

// ErrExceeded matches every *ExceededError.
var ErrExceeded = errors.New("quota exceeded")

// Limit names, also recorded as violation kinds.
const (
	LimitMinute        = "rate_limit_minute"
	LimitDailyTokens   = "daily_token_limit"
	LimitDailyRequests = "daily_request_limit"
)

// ExceededError reports which limit stopped the request.
type ExceededError struct {
	Limit      string
	Message    string
	RetryAfter time.Duration
}

func (e *ExceededError) Error() string { return e.Message }

func (e *ExceededError) Is(target error) bool { return target == ErrExceeded }

// Usage matches the user_quotas table.
type Usage struct {
	UserID          uuid.UUID `json:"user_id"`
	TokensUsedToday int64     `json:"tokens_used_today"`
	RequestsToday   int       `json:"requests_today"`
	LastDailyReset  time.Time `json:"last_daily_reset"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Status is returned by GET /api/v1/quota.
type Status struct {
	AsksLastMinute   int   `json:"asks_last_minute"`
	AsksLimitMinute  int   `json:"asks_limit_minute"`
	TokensUsedToday  int64 `json:"tokens_used_today"`
	TokensLimitDay   int64 `json:"tokens_limit_day"`
	RequestsToday    int   `json:"requests_today"`
	RequestsLimitDay int   `json:"requests_limit_day"`
}
