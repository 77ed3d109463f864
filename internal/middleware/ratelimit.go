package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter is a per-client sliding-window limiter backed by Redis sorted
// sets. Clients are identified by IP address.
type RateLimiter struct {
	client  redis.Cmdable
	prefix  string
	maxReqs int
	window  time.Duration
}

// NewRateLimiter allows maxReqs requests per window for each client. Keys are
// stored under "guide:ratelimit:<scope>:<ip>".
func NewRateLimiter(client redis.Cmdable, scope string, maxReqs int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client:  client,
		prefix:  "guide:ratelimit:" + scope + ":",
		maxReqs: maxReqs,
		window:  window,
	}
}

// Middleware rejects requests over the limit with 429. Redis errors let the
// request through.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r)

		allowed, err := rl.allow(r.Context(), rl.prefix+ip)
		if err != nil {
			slog.Warn("rate limiter: redis error, failing open", "error", err, "ip", ip)
			next.ServeHTTP(w, r)
			return
		}

		if !allowed {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"too many requests"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(ctx context.Context, key string) (bool, error) {
	now := time.Now()
	windowStart := now.Add(-rl.window).UnixMilli()

	var count *redis.IntCmd
	_, err := rl.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(windowStart, 10))
		count = pipe.ZCard(ctx, key)
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: now.UnixNano()})
		pipe.Expire(ctx, key, rl.window+time.Second)
		return nil
	})
	if err != nil {
		return false, err
	}

	return count.Val() < int64(rl.maxReqs), nil
}

// ClientIP returns the originating address, preferring proxy headers.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
