// Package ratelimit bounds the call rate to an external API with two
// rolling windows: one second and one minute.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/petroleumjelliffe/socialsync/internal/metrics"
)

// Limiter is a dual sliding-window rate limiter. Each call to Wait records a
// timestamp in both windows once the call is allowed to proceed.
//
// Waiters are admitted one at a time in arrival order: the lock is held while
// a caller sleeps.
type Limiter struct {
	name      string
	perSecond int
	perMinute int

	mu     sync.Mutex
	second []time.Time
	minute []time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a limiter that allows at most perSecond calls in any rolling
// second and perMinute calls in any rolling minute. A non-positive ceiling
// disables that window. The name labels wait metrics.
func New(name string, perSecond, perMinute int) *Limiter {
	return &Limiter{
		name:      name,
		perSecond: perSecond,
		perMinute: perMinute,
		now:       time.Now,
		sleep:     Sleep,
	}
}

// WithClock replaces the time source and sleep function. Tests use it to run
// the limiter against a fake clock.
func (l *Limiter) WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) *Limiter {
	l.now = now
	l.sleep = sleep
	return l
}

// Wait blocks until a call may proceed under both ceilings, respecting
// context cancellation.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var waited time.Duration
	for {
		now := l.now()
		l.second = prune(l.second, now, time.Second)
		l.minute = prune(l.minute, now, time.Minute)

		delay := delayFor(l.second, l.perSecond, now, time.Second)
		if d := delayFor(l.minute, l.perMinute, now, time.Minute); d > delay {
			delay = d
		}
		if delay <= 0 {
			l.second = append(l.second, now)
			l.minute = append(l.minute, now)
			break
		}

		if err := l.sleep(ctx, delay); err != nil {
			return err
		}
		waited += delay
	}

	if waited > 0 {
		metrics.RateLimitWait.WithLabelValues(l.name).Observe(waited.Seconds())
	}
	return nil
}

// prune drops timestamps that have left the window. Timestamps are appended
// in order so the expired ones are always a prefix.
func prune(stamps []time.Time, now time.Time, window time.Duration) []time.Time {
	i := 0
	for i < len(stamps) && now.Sub(stamps[i]) >= window {
		i++
	}
	if i == 0 {
		return stamps
	}
	return append(stamps[:0], stamps[i:]...)
}

// delayFor returns how long until the oldest timestamp expires when the
// window is full, or zero.
func delayFor(stamps []time.Time, limit int, now time.Time, window time.Duration) time.Duration {
	if limit <= 0 || len(stamps) < limit {
		return 0
	}
	return window - now.Sub(stamps[0])
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
