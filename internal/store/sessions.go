package store

import (
	"context"
	"database/sql"
	"time"

	"lostfound/internal/models"
)

const sessionColumns = `id,token_hash,user_id,user_email,user_role,csrf_token,flash,created_at,last_regenerated_at,last_seen_at,expires_at`

func (s *Store) CreateSession(ctx context.Context, sess models.Session) (models.Session, error) {
	var userID *string
	if sess.UserID != "" {
		userID = &sess.UserID
	}
	id, err := s.Insert(ctx, "sessions", Fields{
		"id":                  sess.ID,
		"token_hash":          sess.TokenHash,
		"user_id":             nullString(userID),
		"user_email":          sess.UserEmail,
		"user_role":           sess.UserRole,
		"csrf_token":          sess.CSRFToken,
		"flash":               sess.Flash,
		"created_at":          sess.CreatedAt.UTC(),
		"last_regenerated_at": sess.LastRegeneratedAt.UTC(),
		"last_seen_at":        sess.LastSeenAt.UTC(),
		"expires_at":          sess.ExpiresAt.UTC(),
	})
	if err != nil {
		return models.Session{}, err
	}
	sess.ID = id
	return sess, nil
}

// GetSessionByTokenHash returns ErrNotFound for unknown and expired sessions.
func (s *Store) GetSessionByTokenHash(ctx context.Context, tokenHash string, now time.Time) (models.Session, error) {
	var sess models.Session
	var userID sql.NullString
	err := s.queryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE token_hash=? AND expires_at>?`, tokenHash, now.UTC()).Scan(
		&sess.ID, &sess.TokenHash, &userID, &sess.UserEmail, &sess.UserRole, &sess.CSRFToken, &sess.Flash,
		&sess.CreatedAt, &sess.LastRegeneratedAt, &sess.LastSeenAt, &sess.ExpiresAt,
	)
	if err == sql.ErrNoRows {
		return models.Session{}, ErrNotFound
	}
	if err != nil {
		return models.Session{}, err
	}
	sess.UserID = userID.String
	return sess, nil
}

// RotateSessionToken swaps the token hash only if it still equals oldHash, so
// two concurrent requests cannot both rotate the same session.
func (s *Store) RotateSessionToken(ctx context.Context, id, oldHash, newHash string, at time.Time) (bool, error) {
	n, err := s.Update(ctx, "sessions", Fields{
		"token_hash":          newHash,
		"last_regenerated_at": at.UTC(),
	}, "id=? AND token_hash=?", id, oldHash)
	return n > 0, err
}

func (s *Store) BindSessionUser(ctx context.Context, id, userID, email, role string) error {
	var uid *string
	if userID != "" {
		uid = &userID
	}
	_, err := s.Update(ctx, "sessions", Fields{
		"user_id":    nullString(uid),
		"user_email": email,
		"user_role":  role,
	}, "id=?", id)
	return err
}

// SetSessionCSRFToken stores token only when the session has none yet and
// returns the token that ends up stored.
func (s *Store) SetSessionCSRFToken(ctx context.Context, id, token string) (string, error) {
	if _, err := s.Update(ctx, "sessions", Fields{"csrf_token": token}, "id=? AND csrf_token=''", id); err != nil {
		return "", err
	}
	var stored string
	if err := s.queryRow(ctx, `SELECT csrf_token FROM sessions WHERE id=?`, id).Scan(&stored); err != nil {
		if err == sql.ErrNoRows {
			return "", ErrNotFound
		}
		return "", err
	}
	return stored, nil
}

func (s *Store) SetSessionFlash(ctx context.Context, id, flash string) error {
	_, err := s.Update(ctx, "sessions", Fields{"flash": flash}, "id=?", id)
	return err
}

func (s *Store) TouchSession(ctx context.Context, id string, seen, expires time.Time) error {
	_, err := s.Update(ctx, "sessions", Fields{
		"last_seen_at": seen.UTC(),
		"expires_at":   expires.UTC(),
	}, "id=?", id)
	return err
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	_, err := s.Delete(ctx, "sessions", "id=?", id)
	return err
}

func (s *Store) DeleteUserSessions(ctx context.Context, userID string) error {
	_, err := s.Delete(ctx, "sessions", "user_id=?", userID)
	return err
}

func (s *Store) PurgeExpiredSessions(ctx context.Context, now time.Time) error {
	_, err := s.Delete(ctx, "sessions", "expires_at<=?", now.UTC())
	return err
}
