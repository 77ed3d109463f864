package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps transcripts in Redis lists so they survive restarts and are
// shared between replicas. Each append is a single RPUSH, which Redis applies
// atomically per key.
type RedisStore struct {
	client     redis.Cmdable
	maxEntries int
	ttl        time.Duration
}

// NewRedisStore creates a Redis-backed store. maxEntries <= 0 keeps the full
// transcript; ttl <= 0 disables expiry.
func NewRedisStore(client redis.Cmdable, maxEntries int, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, maxEntries: maxEntries, ttl: ttl}
}

func sessionKey(sessionID string) string {
	return "guide:conv:" + sessionID
}

// GetOrCreate returns a handle for sessionID. The list itself is created lazily
// by the first Append.
func (s *RedisStore) GetOrCreate(sessionID string) *Session {
	return NewSession(sessionID, s)
}

// Append pushes entry and applies trimming and expiry in one transaction.
func (s *RedisStore) Append(ctx context.Context, sessionID string, entry Entry) error {
	key := sessionKey(sessionID)

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling entry: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		if s.maxEntries > 0 {
			pipe.LTrim(ctx, key, int64(-s.maxEntries), -1)
		}
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("appending to %s: %w", key, err)
	}
	return nil
}

// Entries reads the full list. Malformed elements are skipped.
func (s *RedisStore) Entries(ctx context.Context, sessionID string) ([]Entry, error) {
	key := sessionKey(sessionID)

	vals, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange %s: %w", key, err)
	}

	entries := make([]Entry, 0, len(vals))
	for _, v := range vals {
		var e Entry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			slog.Warn("skipping malformed transcript entry", "key", key, "error", err)
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Clear deletes the list.
func (s *RedisStore) Clear(ctx context.Context, sessionID string) error {
	key := sessionKey(sessionID)
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("del %s: %w", key, err)
	}
	return nil
}
