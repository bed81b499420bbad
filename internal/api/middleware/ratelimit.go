package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/prgf87/socket-io-chat/internal/metrics"
)

// RateLimiter throttles message submissions per client IP using a fixed
// window counter in Redis, shared by all workers. With a nil client it is
// a no-op, so single-worker deployments without Redis skip limiting.
type RateLimiter struct {
	client *redis.Client
	logger zerolog.Logger
	limit  int
	window time.Duration
}

// NewRateLimiter creates a rate limiter allowing limit submissions per
// window.
func NewRateLimiter(client *redis.Client, logger zerolog.Logger, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{client: client, logger: logger, limit: limit, window: window}
}

// Middleware enforces the limit on the wrapped handler.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.client == nil || rl.limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		key := rl.key(r)
		count, err := rl.increment(r, key)
		if err != nil {
			// Redis trouble must not take submissions down with it.
			rl.logger.Warn().Err(err).Msg("rate limit check failed, allowing request")
			next.ServeHTTP(w, r)
			return
		}

		if count > int64(rl.limit) {
			metrics.RateLimitHits.Inc()
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
			http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// increment bumps the window counter, setting the expiry on first use.
func (rl *RateLimiter) increment(r *http.Request, key string) (int64, error) {
	pipe := rl.client.Pipeline()
	incr := pipe.Incr(r.Context(), key)
	pipe.Expire(r.Context(), key, rl.window)
	if _, err := pipe.Exec(r.Context()); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (rl *RateLimiter) key(r *http.Request) string {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return fmt.Sprintf("ratelimit:submit:%s", ip)
}
