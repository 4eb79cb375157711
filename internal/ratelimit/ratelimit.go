// Package ratelimit implements the fixed-window attempt counter used for
// login, registration, posting and contact requests.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lostfound/internal/models"
	"lostfound/internal/store"
)

// Backend persists one counter per (identifier, action). *store.Store and
// *Memory both satisfy it.
type Backend interface {
	PurgeRateLimits(ctx context.Context, now time.Time) error
	GetRateLimit(ctx context.Context, identifier, action string) (models.RateLimitRecord, error)
	CreateRateLimit(ctx context.Context, r models.RateLimitRecord) error
	ResetRateLimit(ctx context.Context, identifier, action string, windowStart, expiresAt time.Time) error
	IncrementRateLimit(ctx context.Context, identifier, action string, max int) (bool, error)
}

type Limiter struct {
	backend Backend
	now     func() time.Time
}

func New(backend Backend) *Limiter {
	return &Limiter{backend: backend, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock replaces the time source. Used by tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Allow records one attempt and reports whether it is within maxAttempts for
// the current window. The window resets only once it has fully elapsed, so a
// burst straddling the boundary may see up to 2*maxAttempts.
func (l *Limiter) Allow(ctx context.Context, identifier, action string, maxAttempts int, window time.Duration) (bool, error) {
	if maxAttempts <= 0 || window <= 0 {
		return false, fmt.Errorf("ratelimit: invalid rule for %s", action)
	}
	now := l.now()
	if err := l.backend.PurgeRateLimits(ctx, now); err != nil {
		return false, fmt.Errorf("ratelimit purge: %w", err)
	}
	for attempt := 0; attempt < 2; attempt++ {
		rec, err := l.backend.GetRateLimit(ctx, identifier, action)
		if errors.Is(err, store.ErrNotFound) {
			err = l.backend.CreateRateLimit(ctx, models.RateLimitRecord{
				Identifier:  identifier,
				Action:      action,
				Attempts:    1,
				WindowStart: now,
				ExpiresAt:   now.Add(window),
			})
			if errors.Is(err, store.ErrConflict) {
				continue
			}
			if err != nil {
				return false, fmt.Errorf("ratelimit create: %w", err)
			}
			return true, nil
		}
		if err != nil {
			return false, fmt.Errorf("ratelimit get: %w", err)
		}
		if rec.WindowStart.Before(now.Add(-window)) {
			if err := l.backend.ResetRateLimit(ctx, identifier, action, now, now.Add(window)); err != nil {
				return false, fmt.Errorf("ratelimit reset: %w", err)
			}
			return true, nil
		}
		if rec.Attempts >= maxAttempts {
			return false, nil
		}
		ok, err := l.backend.IncrementRateLimit(ctx, identifier, action, maxAttempts)
		if err != nil {
			return false, fmt.Errorf("ratelimit increment: %w", err)
		}
		return ok, nil
	}
	return false, fmt.Errorf("ratelimit: contention on %s/%s", identifier, action)
}
