package ratelimit_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lostfound/internal/db"
	"lostfound/internal/ratelimit"
	"lostfound/internal/store"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func sqlBackend(t *testing.T) ratelimit.Backend {
	t.Helper()
	sqdb, err := db.OpenSQLite(filepath.Join(t.TempDir(), "app.db"), 1, 1, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqdb.Close() })
	require.NoError(t, db.Migrate(sqdb, "sqlite"))
	return store.New(sqdb, "sqlite")
}

func backends(t *testing.T) map[string]ratelimit.Backend {
	return map[string]ratelimit.Backend{
		"memory": ratelimit.NewMemory(),
		"sqlite": sqlBackend(t),
	}
}

func TestAllowDeniesAfterMaxAttempts(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			c := &clock{t: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)}
			l := ratelimit.New(backend).WithClock(c.now)
			ctx := context.Background()

			for i := 1; i <= 5; i++ {
				ok, err := l.Allow(ctx, "10.0.0.1", "login", 5, 15*time.Minute)
				require.NoError(t, err)
				require.True(t, ok, "attempt %d", i)
				c.t = c.t.Add(time.Second)
			}
			ok, err := l.Allow(ctx, "10.0.0.1", "login", 5, 15*time.Minute)
			require.NoError(t, err)
			require.False(t, ok, "sixth attempt must be denied")

			ok, err = l.Allow(ctx, "10.0.0.2", "login", 5, 15*time.Minute)
			require.NoError(t, err)
			require.True(t, ok, "other identifiers are independent")

			ok, err = l.Allow(ctx, "10.0.0.1", "register", 5, 15*time.Minute)
			require.NoError(t, err)
			require.True(t, ok, "other actions are independent")
		})
	}
}

func TestAllowResetsAfterWindow(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			start := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
			c := &clock{t: start}
			l := ratelimit.New(backend).WithClock(c.now)
			ctx := context.Background()

			for i := 0; i < 3; i++ {
				ok, err := l.Allow(ctx, "u@school.edu", "register", 3, time.Hour)
				require.NoError(t, err)
				require.True(t, ok)
			}
			c.t = start.Add(59 * time.Minute)
			ok, err := l.Allow(ctx, "u@school.edu", "register", 3, time.Hour)
			require.NoError(t, err)
			require.False(t, ok)

			c.t = start.Add(time.Hour + time.Second)
			ok, err = l.Allow(ctx, "u@school.edu", "register", 3, time.Hour)
			require.NoError(t, err)
			require.True(t, ok, "fresh window after expiry")
			ok, err = l.Allow(ctx, "u@school.edu", "register", 3, time.Hour)
			require.NoError(t, err)
			require.True(t, ok)
		})
	}
}

func TestDeniedAttemptDoesNotMutate(t *testing.T) {
	backend := ratelimit.NewMemory()
	c := &clock{t: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)}
	l := ratelimit.New(backend).WithClock(c.now)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := l.Allow(ctx, "ip", "contact", 2, time.Hour)
		require.NoError(t, err)
	}
	rec, err := backend.GetRateLimit(ctx, "ip", "contact")
	require.NoError(t, err)
	require.Equal(t, 2, rec.Attempts)
}

func TestAllowRejectsInvalidRule(t *testing.T) {
	l := ratelimit.New(ratelimit.NewMemory())
	_, err := l.Allow(context.Background(), "ip", "login", 0, time.Minute)
	require.Error(t, err)
}
