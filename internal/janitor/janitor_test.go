package janitor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lostfound/internal/config"
	"lostfound/internal/db"
	"lostfound/internal/models"
	"lostfound/internal/store"
)

func TestRunOnceSweepsExpiredStateAndOrphans(t *testing.T) {
	sqdb, err := db.OpenSQLite(filepath.Join(t.TempDir(), "app.db"), 1, 1, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqdb.Close() })
	require.NoError(t, db.Migrate(sqdb, "sqlite"))
	st := store.New(sqdb, "sqlite")
	ctx := context.Background()

	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	cfg := config.Defaults()
	cfg.Upload.Dir = t.TempDir()

	owner, err := st.CreateUser(ctx, models.User{FullName: "Amy", Email: "amy@school.edu", PasswordHash: "x", Role: models.RoleUser, IsActive: true})
	require.NoError(t, err)
	kept := "kept.png"
	_, err = st.CreatePost(ctx, models.Post{
		UserID: owner.ID, Type: models.PostLost, Title: "Bag", Description: "Red", Category: "Bags",
		Location: "Hall", DateLostFound: now, PhotoPath: &kept,
	})
	require.NoError(t, err)

	old := now.Add(-2 * time.Hour)
	for _, name := range []string{"kept.png", "orphan.png", "fresh.png"} {
		path := filepath.Join(cfg.Upload.Dir, name)
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o640))
		mtime := old
		if name == "fresh.png" {
			mtime = now.Add(-time.Minute)
		}
		require.NoError(t, os.Chtimes(path, mtime, mtime))
	}

	_, err = st.CreateSession(ctx, models.Session{
		TokenHash: "h", CreatedAt: old, LastRegeneratedAt: old, LastSeenAt: old, ExpiresAt: now.Add(-time.Hour),
	})
	require.NoError(t, err)
	require.NoError(t, st.CreateRateLimit(ctx, models.RateLimitRecord{
		Identifier: "ip:1.2.3.4", Action: "login", Attempts: 5, WindowStart: old, ExpiresAt: now.Add(-time.Minute),
	}))

	j := New(cfg, st, nil).WithClock(func() time.Time { return now })
	rep, err := j.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, rep.OrphansRemoved)

	_, err = os.Stat(filepath.Join(cfg.Upload.Dir, "orphan.png"))
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(cfg.Upload.Dir, "kept.png"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(cfg.Upload.Dir, "fresh.png"))
	require.NoError(t, err)

	_, err = st.GetSessionByTokenHash(ctx, "h", old)
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = st.GetRateLimit(ctx, "ip:1.2.3.4", "login")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRunOnceWithoutUploadDir(t *testing.T) {
	cfg := config.Defaults()
	cfg.Upload.Dir = filepath.Join(t.TempDir(), "missing")
	j := New(cfg, emptyStore{}, nil)
	rep, err := j.RunOnce(context.Background())
	require.NoError(t, err)
	require.Zero(t, rep.OrphansRemoved)
}

type emptyStore struct{}

func (emptyStore) PurgeExpiredSessions(context.Context, time.Time) error { return nil }
func (emptyStore) PurgeRateLimits(context.Context, time.Time) error      { return nil }
func (emptyStore) ReferencedPhotos(context.Context) (map[string]struct{}, error) {
	return map[string]struct{}{}, nil
}
