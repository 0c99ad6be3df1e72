package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable is returned when a counter operation fails for any
// reason other than a missing key.
var ErrRedisUnavailable = errors.New("redis unavailable")

// Config holds brute-force guard tuning parameters. A zero CounterTTL
// keeps counters until they are reset.
type Config struct {
	CaptchaThreshold int
	CounterTTL       time.Duration
}

// Guard tracks consecutive authentication failures per origin in Redis
// counters and decides when an origin must present a CAPTCHA proof.
//
// Counters use last-writer-wins semantics: each request applies its own
// atomic INCR and an occasional missed increment under heavy concurrency
// only delays the CAPTCHA trigger, it never fails open.
type Guard struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a brute-force [Guard] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Guard {
	return &Guard{
		redis:  redisClient,
		config: cfg,
	}
}

func originKey(origin string) string {
	return "bf:" + origin
}

// ShouldChallenge re-reads the counter and reports whether the origin has
// reached the CAPTCHA threshold. Always evaluated fresh; the decision is
// never cached across requests.
func (g *Guard) ShouldChallenge(ctx context.Context, origin string) (bool, error) {
	if origin == "" {
		return false, nil
	}

	count, err := g.Attempts(ctx, origin)
	if err != nil {
		return false, err
	}
	return count >= g.config.CaptchaThreshold, nil
}

// RecordFailure increments the origin's consecutive failure counter and
// returns the new value.
func (g *Guard) RecordFailure(ctx context.Context, origin string) (int64, error) {
	if origin == "" {
		return 0, nil
	}

	key := originKey(origin)
	count, err := g.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 && g.config.CounterTTL > 0 {
		if err := g.redis.Expire(ctx, key, g.config.CounterTTL).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}

// Reset zeroes the origin's counter after a successful credential
// issuance. Counters are reset, never deleted.
func (g *Guard) Reset(ctx context.Context, origin string) error {
	if origin == "" {
		return nil
	}

	if err := g.redis.Set(ctx, originKey(origin), 0, g.config.CounterTTL).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Attempts returns the current failure count for an origin. Missing keys
// return zero.
func (g *Guard) Attempts(ctx context.Context, origin string) (int, error) {
	count, err := g.redis.Get(ctx, originKey(origin)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}
