package pin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrTooManyAttempts is returned once a user burns through the attempt budget.
var ErrTooManyAttempts = errors.New("too many pin attempts, try again later")

// AttemptLimiter throttles failed PIN verifications per user within a
// rolling window. Backed by Redis so the limit holds across instances;
// a nil client disables limiting (development without Redis).
type AttemptLimiter struct {
	redis       *redis.Client
	maxAttempts int
	window      time.Duration
}

func NewAttemptLimiter(redisClient *redis.Client, maxAttempts int, window time.Duration) *AttemptLimiter {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &AttemptLimiter{redis: redisClient, maxAttempts: maxAttempts, window: window}
}

// Check returns ErrTooManyAttempts if the user has exhausted the budget.
func (l *AttemptLimiter) Check(ctx context.Context, userID uuid.UUID) error {
	if l.redis == nil {
		return nil
	}
	count, err := l.redis.Get(ctx, l.key(userID)).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		// Fail open: a Redis outage must not freeze wallet operations.
		return nil
	}
	if count >= l.maxAttempts {
		return ErrTooManyAttempts
	}
	return nil
}

// RecordFailure counts a failed verification against the window.
func (l *AttemptLimiter) RecordFailure(ctx context.Context, userID uuid.UUID) {
	if l.redis == nil {
		return
	}
	key := l.key(userID)
	pipe := l.redis.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, l.window)
	pipe.Exec(ctx)
}

// Reset clears the counter after a successful verification.
func (l *AttemptLimiter) Reset(ctx context.Context, userID uuid.UUID) {
	if l.redis == nil {
		return
	}
	l.redis.Del(ctx, l.key(userID))
}

func (l *AttemptLimiter) key(userID uuid.UUID) string {
	return fmt.Sprintf("wallet:pin_attempts:%s", userID)
}
