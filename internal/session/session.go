// Package session binds browser cookies to server-side session rows and
// exposes the identity questions handlers ask about the current request.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"lostfound/internal/auth"
	"lostfound/internal/config"
	"lostfound/internal/models"
	"lostfound/internal/store"
)

// touchEvery limits last_seen writes to one per minute per session.
const touchEvery = time.Minute

type Manager struct {
	cfg config.Config
	st  *store.Store
	now func() time.Time
}

func NewManager(cfg config.Config, st *store.Store) *Manager {
	return &Manager{cfg: cfg, st: st, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock replaces the time source. Used by tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Init loads the session named by the request cookie or starts a fresh
// anonymous one. Unknown and expired cookies never resurrect old state.
// The cookie token is rotated once RegenerateEvery has elapsed.
func (m *Manager) Init(w http.ResponseWriter, r *http.Request) (*models.Session, error) {
	ctx := r.Context()
	now := m.now()
	c, err := r.Cookie(m.cfg.Session.CookieName)
	if err != nil || c.Value == "" {
		return m.start(ctx, w, r, now)
	}
	sess, err := m.st.GetSessionByTokenHash(ctx, auth.HashToken(c.Value), now)
	if errors.Is(err, store.ErrNotFound) {
		return m.start(ctx, w, r, now)
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	if now.Sub(sess.LastRegeneratedAt) >= m.cfg.Session.RegenerateEvery {
		if err := m.rotate(ctx, w, r, &sess, now); err != nil {
			return nil, err
		}
	}
	if now.Sub(sess.LastSeenAt) >= touchEvery {
		sess.LastSeenAt = now
		sess.ExpiresAt = now.Add(m.cfg.Session.IdleTimeout)
		if err := m.st.TouchSession(ctx, sess.ID, sess.LastSeenAt, sess.ExpiresAt); err != nil {
			return nil, fmt.Errorf("touch session: %w", err)
		}
	}
	return &sess, nil
}

func (m *Manager) start(ctx context.Context, w http.ResponseWriter, r *http.Request, now time.Time) (*models.Session, error) {
	if err := m.st.PurgeExpiredSessions(ctx, now); err != nil {
		return nil, fmt.Errorf("purge sessions: %w", err)
	}
	raw, hash, err := auth.NewOpaqueToken()
	if err != nil {
		return nil, fmt.Errorf("session token: %w", err)
	}
	sess, err := m.st.CreateSession(ctx, models.Session{
		TokenHash:         hash,
		CreatedAt:         now,
		LastRegeneratedAt: now,
		LastSeenAt:        now,
		ExpiresAt:         now.Add(m.cfg.Session.IdleTimeout),
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	m.setCookie(w, r, raw)
	return &sess, nil
}

// rotate swaps the cookie token. Losing the race to a concurrent request is
// not an error; that request's cookie wins.
func (m *Manager) rotate(ctx context.Context, w http.ResponseWriter, r *http.Request, sess *models.Session, now time.Time) error {
	raw, hash, err := auth.NewOpaqueToken()
	if err != nil {
		return fmt.Errorf("session token: %w", err)
	}
	ok, err := m.st.RotateSessionToken(ctx, sess.ID, sess.TokenHash, hash, now)
	if err != nil {
		return fmt.Errorf("rotate session: %w", err)
	}
	if ok {
		sess.TokenHash = hash
		sess.LastRegeneratedAt = now
		m.setCookie(w, r, raw)
	}
	return nil
}

func (m *Manager) setCookie(w http.ResponseWriter, r *http.Request, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.Session.CookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   m.cfg.ResolveCookieSecure(r),
	})
}

func IsLoggedIn(sess *models.Session) bool {
	return sess != nil && sess.UserID != "" && sess.UserEmail != ""
}

// User resolves the bound account. Anonymous sessions, deleted accounts and
// deactivated accounts all report false without an error.
func (m *Manager) User(ctx context.Context, sess *models.Session) (models.User, bool, error) {
	if !IsLoggedIn(sess) {
		return models.User{}, false, nil
	}
	u, err := m.st.GetUserByID(ctx, sess.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return models.User{}, false, nil
	}
	if err != nil {
		return models.User{}, false, err
	}
	if !u.IsActive {
		return models.User{}, false, nil
	}
	return u, true, nil
}

func (m *Manager) IsAdmin(ctx context.Context, sess *models.Session) (bool, error) {
	u, ok, err := m.User(ctx, sess)
	if err != nil || !ok {
		return false, err
	}
	return u.IsAdmin(), nil
}

// Login binds u to sess and issues a new cookie token so that a token known
// before authentication is useless afterwards.
func (m *Manager) Login(w http.ResponseWriter, r *http.Request, sess *models.Session, u models.User) error {
	ctx := r.Context()
	now := m.now()
	if err := m.rotate(ctx, w, r, sess, now); err != nil {
		return err
	}
	if err := m.st.BindSessionUser(ctx, sess.ID, u.ID, u.Email, u.Role); err != nil {
		return fmt.Errorf("bind session: %w", err)
	}
	sess.UserID, sess.UserEmail, sess.UserRole = u.ID, u.Email, u.Role
	return nil
}

// Logout destroys sess and returns a fresh anonymous session. Calling it on an
// anonymous session is harmless.
func (m *Manager) Logout(w http.ResponseWriter, r *http.Request, sess *models.Session) (*models.Session, error) {
	ctx := r.Context()
	if sess != nil && sess.ID != "" {
		if err := m.st.DeleteSession(ctx, sess.ID); err != nil {
			return nil, fmt.Errorf("delete session: %w", err)
		}
	}
	return m.start(ctx, w, r, m.now())
}

// SetFlash stores a one-shot status message shown on the next request.
func (m *Manager) SetFlash(ctx context.Context, sess *models.Session, msg string) error {
	if sess == nil {
		return nil
	}
	if err := m.st.SetSessionFlash(ctx, sess.ID, msg); err != nil {
		return fmt.Errorf("set flash: %w", err)
	}
	sess.Flash = msg
	return nil
}

// TakeFlash returns and clears the pending flash message.
func (m *Manager) TakeFlash(ctx context.Context, sess *models.Session) (string, error) {
	if sess == nil || sess.Flash == "" {
		return "", nil
	}
	msg := sess.Flash
	if err := m.st.SetSessionFlash(ctx, sess.ID, ""); err != nil {
		return "", fmt.Errorf("clear flash: %w", err)
	}
	sess.Flash = ""
	return msg, nil
}
