package client

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-limiter"
	"github.com/sethvargo/go-limiter/memorystore"
)

// RateLimiter decides whether another request may go out now.
// Wait blocks until it may.
type RateLimiter interface {
	Wait(ctx context.Context) error
}

const limiterKey = "requests"

// RequestLimiter caps requests per minute with a go-limiter token bucket.
type RequestLimiter struct {
	store limiter.Store
	clock clockwork.Clock
	rate  int
}

// NewRateLimiter returns nil when callsPerMinute is not positive, meaning no limit.
func NewRateLimiter(callsPerMinute int) (*RequestLimiter, error) {
	if callsPerMinute <= 0 {
		return nil, nil
	}
	store, err := memorystore.New(&memorystore.Config{
		Tokens:   uint64(callsPerMinute),
		Interval: time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limiter: %w", err)
	}
	return &RequestLimiter{store: store, clock: clockwork.NewRealClock(), rate: callsPerMinute}, nil
}

// WithClock swaps the clock used for waiting.
func (l *RequestLimiter) WithClock(clock clockwork.Clock) *RequestLimiter {
	l.clock = clock
	return l
}

// Wait takes one token, sleeping until the bucket resets when it is empty.
func (l *RequestLimiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	for {
		_, remaining, reset, ok, err := l.store.Take(ctx, limiterKey)
		if err != nil {
			return fmt.Errorf("rate limiter failure: %w", err)
		}
		if ok {
			log.Debug().Uint64("remaining", remaining).Int("per_minute", l.rate).Msg("Request allowed by rate limiter")
			return nil
		}
		wait := time.Until(time.Unix(0, int64(reset)))
		if wait <= 0 {
			wait = 10 * time.Millisecond
		}
		log.Info().Dur("wait", wait).Msg("Requests-per-minute limit reached, waiting")
		if err := sleep(ctx, l.clock, wait); err != nil {
			return err
		}
	}
}

// Close releases the limiter's background sweeper.
func (l *RequestLimiter) Close(ctx context.Context) error {
	if l == nil {
		return nil
	}
	return l.store.Close(ctx)
}
