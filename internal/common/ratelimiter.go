package common

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

type RateLimiter struct {
	mu        sync.Mutex
	limiters  []*rate.Limiter // One per restriction
	stopwatch Stopwatch       // Cooldown imposed by the remote end
}

func NewRateLimiter(restrictions []Restriction, clock Clock) *RateLimiter {
	rl := &RateLimiter{stopwatch: NewStopwatch(0, clock)}
	for _, restriction := range restrictions {
		if !restriction.Valid() {
			log.Warn().Msg(fmt.Sprintf("Ignoring invalid restriction of %d requests per %s", restriction.Requests, restriction.Duration))
			continue
		}
		rl.limiters = append(rl.limiters, restriction.Limiter())
	}
	return rl
}

// Wait blocks until every restriction allows one more request and any
// cooldown received from the remote end has passed
func (rl *RateLimiter) Wait(ctx context.Context) error {

	// Cooldown first
	rl.mu.Lock()
	_, remaining := rl.stopwatch.Stopped()
	rl.mu.Unlock()
	if remaining > 0 {
		log.Warn().Msg(fmt.Sprintf("Request delayed %.1f seconds by rate limit cooldown", remaining.Seconds()))
		timer := time.NewTimer(remaining)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	for _, limiter := range rl.limiters {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}
	return nil
}

// Allow reports whether a request may go out right now without waiting.
// Tokens are only taken when every restriction allows it
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	stopped, _ := rl.stopwatch.Stopped()
	rl.mu.Unlock()
	if !stopped {
		return false
	}
	now := time.Now()
	reservations := make([]*rate.Reservation, 0, len(rl.limiters))
	for _, limiter := range rl.limiters {
		r := limiter.ReserveN(now, 1)
		if !r.OK() || r.DelayFrom(now) > 0 {
			r.CancelAt(now)
			for _, previous := range reservations {
				previous.CancelAt(now)
			}
			return false
		}
		reservations = append(reservations, r)
	}
	return true
}

// ReceivedRateLimit starts a cooldown during which no request is allowed
func (rl *RateLimiter) ReceivedRateLimit(retryAfter time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.stopwatch.Timeout = retryAfter
	rl.stopwatch.Start()
}
