package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter throttles repeated authentication attempts per subject using
// a Redis counter with a sliding expiry window.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

// NewRateLimiter creates a limiter allowing limit attempts per window.
func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{client: client, limit: limit, window: window}
}

// Allow records one attempt for the subject and reports whether it is still
// within the limit. A Redis outage fails open so that a cache incident does
// not lock every user out.
func (r *RateLimiter) Allow(ctx context.Context, subject string) (bool, error) {
	if r == nil || r.client == nil {
		return true, nil
	}

	key := "authrate:" + strings.ToLower(subject)
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return true, fmt.Errorf("rate limit incr: %w", err)
	}
	if count == 1 {
		if err := r.client.Expire(ctx, key, r.window).Err(); err != nil {
			return true, fmt.Errorf("rate limit expire: %w", err)
		}
	}
	return count <= r.limit, nil
}

// Reset clears the attempt counter after a successful authentication.
func (r *RateLimiter) Reset(ctx context.Context, subject string) {
	if r == nil || r.client == nil {
		return
	}
	r.client.Del(ctx, "authrate:"+strings.ToLower(subject))
}
