package quota

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	minuteKeyPrefix = "guide:quota:minute:"
	window          = time.Minute
	keyTTL          = 90 * time.Second
)

// Limiter is a Redis sorted-set sliding window over the last minute.
type Limiter struct {
	rdb redis.Cmdable
	now func() time.Time
}

func NewLimiter(rdb redis.Cmdable) *Limiter {
	return &Limiter{rdb: rdb, now: time.Now}
}

func minuteKey(userID uuid.UUID) string {
	return minuteKeyPrefix + userID.String()
}

// Allow records an attempt and reports whether it fits in the window. The
// attempt is added before counting, so concurrent callers cannot both slip
// under the limit; a rejected attempt is removed again.
func (l *Limiter) Allow(ctx context.Context, userID uuid.UUID, maxPerMinute int) (bool, error) {
	key := minuteKey(userID)
	now := l.now()
	member := strconv.FormatInt(now.UnixNano(), 10) + ":" + uuid.NewString()[:8]

	var card *redis.IntCmd
	_, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", score(now.Add(-window)))
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: member})
		card = pipe.ZCard(ctx, key)
		pipe.Expire(ctx, key, keyTTL)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("sliding window update: %w", err)
	}

	if card.Val() <= int64(maxPerMinute) {
		return true, nil
	}

	if err := l.rdb.ZRem(ctx, key, member).Err(); err != nil {
		return false, fmt.Errorf("sliding window rollback: %w", err)
	}
	return false, nil
}

// Count returns the attempts currently inside the window.
func (l *Limiter) Count(ctx context.Context, userID uuid.UUID) (int, error) {
	now := l.now()
	n, err := l.rdb.ZCount(ctx, minuteKey(userID), score(now.Add(-window)), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("counting window: %w", err)
	}
	return int(n), nil
}

func score(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
