package store

import (
	"context"
	"database/sql"
	"time"

	"lostfound/internal/models"
)

func (s *Store) PurgeRateLimits(ctx context.Context, now time.Time) error {
	_, err := s.Delete(ctx, "rate_limits", "expires_at<?", now.UTC())
	return err
}

func (s *Store) GetRateLimit(ctx context.Context, identifier, action string) (models.RateLimitRecord, error) {
	r := models.RateLimitRecord{Identifier: identifier, Action: action}
	err := s.queryRow(ctx,
		`SELECT attempts,window_start,expires_at FROM rate_limits WHERE identifier=? AND action=?`,
		identifier, action,
	).Scan(&r.Attempts, &r.WindowStart, &r.ExpiresAt)
	if err == sql.ErrNoRows {
		return models.RateLimitRecord{}, ErrNotFound
	}
	return r, err
}

// CreateRateLimit returns ErrConflict when a concurrent request created the
// record first.
func (s *Store) CreateRateLimit(ctx context.Context, r models.RateLimitRecord) error {
	_, err := s.exec(ctx,
		`INSERT INTO rate_limits(identifier,action,attempts,window_start,expires_at) VALUES(?,?,?,?,?)`,
		r.Identifier, r.Action, r.Attempts, r.WindowStart.UTC(), r.ExpiresAt.UTC(),
	)
	if err != nil && isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (s *Store) ResetRateLimit(ctx context.Context, identifier, action string, windowStart, expiresAt time.Time) error {
	_, err := s.Update(ctx, "rate_limits", Fields{
		"attempts":     1,
		"window_start": windowStart.UTC(),
		"expires_at":   expiresAt.UTC(),
	}, "identifier=? AND action=?", identifier, action)
	return err
}

// IncrementRateLimit bumps the counter only while it is below max and reports
// whether it did.
func (s *Store) IncrementRateLimit(ctx context.Context, identifier, action string, max int) (bool, error) {
	res, err := s.exec(ctx,
		`UPDATE rate_limits SET attempts=attempts+1 WHERE identifier=? AND action=? AND attempts<?`,
		identifier, action, max,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
