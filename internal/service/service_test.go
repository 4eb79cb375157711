package service_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"lostfound/internal/audit"
	"lostfound/internal/config"
	"lostfound/internal/db"
	"lostfound/internal/models"
	"lostfound/internal/notify"
	"lostfound/internal/ratelimit"
	"lostfound/internal/security"
	"lostfound/internal/service"
	"lostfound/internal/store"
)

type captureSender struct {
	mu   sync.Mutex
	sent []notify.ContactMessage
}

func (c *captureSender) SendContact(_ context.Context, msg notify.ContactMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

type fixture struct {
	svc    *service.Service
	st     *store.Store
	sender *captureSender
	owner  models.User
	admin  models.User
	other  models.User
}

func newFixture(t *testing.T, mutate ...func(*config.Config)) *fixture {
	t.Helper()
	sqdb, err := db.OpenSQLite(filepath.Join(t.TempDir(), "app.db"), 1, 1, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqdb.Close() })
	require.NoError(t, db.Migrate(sqdb, "sqlite"))
	st := store.New(sqdb, "sqlite")

	cfg := config.Defaults()
	cfg.Upload.Dir = t.TempDir()
	cfg.BaseURL = "https://lf.school.edu"
	for _, fn := range mutate {
		fn(&cfg)
	}
	sec := security.New(cfg, st, ratelimit.New(st))
	sender := &captureSender{}
	svc := service.New(cfg, st, sec, audit.New(st, zap.NewNop()), sender, zap.NewNop())

	f := &fixture{svc: svc, st: st, sender: sender}
	f.owner = mustUser(t, st, "owner@school.edu", models.RoleUser)
	f.admin = mustUser(t, st, "admin@school.edu", models.RoleAdmin)
	f.other = mustUser(t, st, "other@school.edu", models.RoleUser)
	return f
}

func mustUser(t *testing.T, st *store.Store, email, role string) models.User {
	t.Helper()
	u, err := st.CreateUser(context.Background(), models.User{
		FullName:     "User " + email,
		Email:        email,
		PasswordHash: "unused",
		Role:         role,
		IsActive:     true,
	})
	require.NoError(t, err)
	return u
}

func yesterday() string {
	return time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
}

func (f *fixture) createPost(t *testing.T, title string) models.Post {
	t.Helper()
	p, v, err := f.svc.CreatePost(context.Background(), f.owner.ID, service.PostInput{
		Type:          "lost",
		Title:         title,
		Description:   "Black case, cracked corner",
		Category:      "Electronics",
		Location:      "Gym",
		DateLostFound: yesterday(),
	})
	require.NoError(t, err)
	require.True(t, v.OK(), v.String())
	return p
}

func TestPostLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.createPost(t, "Phone")
	require.Equal(t, models.PostPending, p.Status)

	list, total, err := f.svc.SearchPosts(ctx, models.PostFilter{})
	require.NoError(t, err)
	require.Zero(t, total)
	require.Empty(t, list)

	_, err = f.svc.GetPost(ctx, p.ID, nil)
	require.ErrorIs(t, err, service.ErrNotFound)
	_, err = f.svc.GetPost(ctx, p.ID, &f.owner)
	require.NoError(t, err)

	_, err = f.svc.ApprovePost(ctx, p.ID, f.other.ID)
	require.ErrorIs(t, err, service.ErrForbidden)

	ok, err := f.svc.ApprovePost(ctx, p.ID, f.admin.ID)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = f.svc.ApprovePost(ctx, p.ID, f.admin.ID)
	require.NoError(t, err)
	require.False(t, ok, "second approval must not change anything")

	got, err := f.svc.GetPost(ctx, p.ID, nil)
	require.NoError(t, err)
	require.Equal(t, models.PostApproved, got.Status)
	require.NotNil(t, got.ApprovedBy)
	require.Equal(t, f.admin.ID, *got.ApprovedBy)
	require.NotNil(t, got.ApprovedAt)

	_, total, err = f.svc.SearchPosts(ctx, models.PostFilter{Query: "phone"})
	require.NoError(t, err)
	require.Equal(t, 1, total)

	ok, err = f.svc.DeletePost(ctx, p.ID, f.owner)
	require.NoError(t, err)
	require.False(t, ok, "owner cannot delete an approved post")

	_, err = f.svc.ResolvePost(ctx, p.ID, f.other)
	require.ErrorIs(t, err, service.ErrForbidden)

	ok, err = f.svc.ResolvePost(ctx, p.ID, f.owner)
	require.NoError(t, err)
	require.True(t, ok)

	got, err = f.svc.GetPost(ctx, p.ID, &f.owner)
	require.NoError(t, err)
	require.Equal(t, models.PostResolved, got.Status)
	require.True(t, got.IsResolved)
	require.NotNil(t, got.ResolvedAt)

	_, total, err = f.svc.SearchPosts(ctx, models.PostFilter{})
	require.NoError(t, err)
	require.Zero(t, total, "resolved posts leave the public board")

	entries, _, err := f.svc.Audit().List(ctx, models.AuditQuery{Action: "post.approve"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].ResourceType)
	require.Equal(t, "posts", *entries[0].ResourceType)
	require.Equal(t, "Phone", entries[0].ResourceTitle)
	require.Equal(t, `Post "Phone" approved by admin@school.edu.`, entries[0].SummaryText)

	ok, err = f.svc.DeletePost(ctx, p.ID, f.admin)
	require.NoError(t, err)
	require.True(t, ok)
	_, err = f.st.GetPost(ctx, p.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	entries, total, err = f.svc.Audit().List(ctx, models.AuditQuery{ResourceType: audit.ResourcePosts})
	require.NoError(t, err)
	require.Equal(t, 3, total, "create, approve and delete; the owner's resolve is not audited")
	for _, e := range entries {
		require.Equal(t, "posts", *e.ResourceType, e.Action)
	}
}

func TestRejectedPostCannotBeApproved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createPost(t, "Scarf")

	ok, err := f.svc.RejectPost(ctx, p.ID, f.admin.ID, "<b>duplicate</b>")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = f.svc.ApprovePost(ctx, p.ID, f.admin.ID)
	require.NoError(t, err)
	require.False(t, ok)

	got, err := f.svc.GetPost(ctx, p.ID, &f.owner)
	require.NoError(t, err)
	require.Equal(t, models.PostRejected, got.Status)
	require.NotNil(t, got.RejectionReason)
	require.Equal(t, "&lt;b&gt;duplicate&lt;/b&gt;", *got.RejectionReason)

	ok, err = f.svc.DeletePost(ctx, p.ID, f.owner)
	require.NoError(t, err)
	require.True(t, ok, "owner may delete a rejected post")
}

func TestCreatePostValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, v, err := f.svc.CreatePost(ctx, f.owner.ID, service.PostInput{
		Type:          "stolen",
		Category:      "Spaceships",
		DateLostFound: time.Now().UTC().AddDate(0, 0, 2).Format("2006-01-02"),
	})
	require.NoError(t, err)
	require.Contains(t, v, "Type must be lost or found.")
	require.Contains(t, v, "Title is required.")
	require.Contains(t, v, "Category is not available.")
	require.Contains(t, v, "Date cannot be in the future.")

	active, err := f.svc.ToggleCategory(ctx, f.admin, "cat-keys")
	require.NoError(t, err)
	require.False(t, active)
	_, v, err = f.svc.CreatePost(ctx, f.owner.ID, service.PostInput{
		Type: "found", Title: "Keys", Description: "Three keys", Category: "Keys",
		Location: "Bus stop", DateLostFound: yesterday(),
	})
	require.NoError(t, err)
	require.Equal(t, security.Violations{"Category is not available."}, v)
}

func TestSearchMatchesEscapedText(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, v, err := f.svc.CreatePost(ctx, f.owner.ID, service.PostInput{
		Type:          "lost",
		Title:         "Mike's wallet",
		Description:   `Brown, says "M.K." inside`,
		Category:      "Books & Stationery",
		Location:      "Room A&B",
		DateLostFound: yesterday(),
	})
	require.NoError(t, err)
	require.True(t, v.OK(), v.String())
	require.Equal(t, "Mike&#39;s wallet", p.Title)
	require.Equal(t, "Books &amp; Stationery", p.Category)
	ok, err := f.svc.ApprovePost(ctx, p.ID, f.admin.ID)
	require.NoError(t, err)
	require.True(t, ok)

	for _, q := range []string{"mike's", "a&b", `"m.k."`} {
		_, total, err := f.svc.SearchPosts(ctx, models.PostFilter{Query: q})
		require.NoError(t, err)
		require.Equal(t, 1, total, q)
	}
	_, total, err := f.svc.AdminListPosts(ctx, models.PostFilter{Query: "Mike's"})
	require.NoError(t, err)
	require.Equal(t, 1, total)

	// Re-saving the seeded category keeps its stored name, so existing posts
	// still match the category filter.
	c, v, err := f.svc.UpdateCategory(ctx, f.admin, "cat-books", service.CategoryInput{Name: "Books & Stationery", Description: "Textbooks"})
	require.NoError(t, err)
	require.True(t, v.OK(), v.String())
	require.Equal(t, "Books &amp; Stationery", c.Name)
	_, total, err = f.svc.SearchPosts(ctx, models.PostFilter{Category: "Books & Stationery"})
	require.NoError(t, err)
	require.Equal(t, 1, total)
}

func TestRegisterAndAuthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, v, err := f.svc.Register(ctx, service.RegisterInput{FullName: "Sam", Email: "sam@gmail.com", Password: "weak"})
	require.NoError(t, err)
	require.False(t, v.OK())

	u, v, err := f.svc.Register(ctx, service.RegisterInput{FullName: "Sam Lee", Email: "Sam@School.edu", Password: "Corr3ct!horse"})
	require.NoError(t, err)
	require.True(t, v.OK(), v.String())
	require.False(t, u.IsActive)

	_, v, err = f.svc.Register(ctx, service.RegisterInput{FullName: "Sam Again", Email: "sam@school.edu", Password: "Corr3ct!horse"})
	require.NoError(t, err)
	require.Equal(t, security.Violations{"An account with this email already exists."}, v)

	_, err = f.svc.Authenticate(ctx, "sam@school.edu", "Corr3ct!horse")
	require.ErrorIs(t, err, service.ErrInactive)

	ok, err := f.svc.SetUserActive(ctx, f.admin, u.ID, true)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.svc.Authenticate(ctx, "sam@school.edu", "wrong-password")
	require.ErrorIs(t, err, service.ErrInvalidCredentials)
	_, err = f.svc.Authenticate(ctx, "nobody@school.edu", "Corr3ct!horse")
	require.ErrorIs(t, err, service.ErrInvalidCredentials)

	got, err := f.svc.Authenticate(ctx, "SAM@school.edu", "Corr3ct!horse")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)
	require.NotNil(t, got.LastLogin)
}

func TestAdminCannotLockThemselvesOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SetUserActive(ctx, f.admin, f.admin.ID, false)
	require.ErrorIs(t, err, service.ErrForbidden)
	_, err = f.svc.SetUserRole(ctx, f.admin, f.admin.ID, models.RoleUser)
	require.ErrorIs(t, err, service.ErrForbidden)

	ok, err := f.svc.SetUserRole(ctx, f.admin, f.other.ID, models.RoleAdmin)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = f.svc.SetUserRole(ctx, f.admin, f.other.ID, models.RoleAdmin)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestContactOwner(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.Security.ContactMaxAttempts = 1 })
	ctx := context.Background()
	p := f.createPost(t, "Umbrella")

	_, err := f.svc.ContactOwner(ctx, p.ID, f.other, "I think I found it")
	require.ErrorIs(t, err, service.ErrNotFound, "pending posts are hidden")

	_, err = f.svc.ApprovePost(ctx, p.ID, f.admin.ID)
	require.NoError(t, err)

	v, err := f.svc.ContactOwner(ctx, p.ID, f.owner, "hello me")
	require.NoError(t, err)
	require.Equal(t, security.Violations{"You cannot contact yourself."}, v)

	v, err = f.svc.ContactOwner(ctx, p.ID, f.other, "  ")
	require.NoError(t, err)
	require.Equal(t, security.Violations{"Message is required."}, v)

	v, err = f.svc.ContactOwner(ctx, p.ID, f.other, "I think I found it")
	require.NoError(t, err)
	require.True(t, v.OK())
	require.Len(t, f.sender.sent, 1)
	msg := f.sender.sent[0]
	require.Equal(t, "owner@school.edu", msg.OwnerEmail)
	require.Equal(t, "other@school.edu", msg.SenderEmail)
	require.Equal(t, "https://lf.school.edu/posts/"+p.ID, msg.PostURL)

	_, err = f.svc.ContactOwner(ctx, p.ID, f.other, "again")
	require.ErrorIs(t, err, service.ErrRateLimited)
	require.Len(t, f.sender.sent, 1)
}

func TestCatalogAdministration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.CreateCategory(ctx, f.other, service.CategoryInput{Name: "Pets"})
	require.ErrorIs(t, err, service.ErrForbidden)

	c, v, err := f.svc.CreateCategory(ctx, f.admin, service.CategoryInput{Name: "Instruments", SortOrder: 95})
	require.NoError(t, err)
	require.True(t, v.OK())
	require.True(t, c.IsActive)

	_, v, err = f.svc.CreateCategory(ctx, f.admin, service.CategoryInput{Name: "Instruments"})
	require.NoError(t, err)
	require.Equal(t, security.Violations{"A category with this name already exists."}, v)

	_, v, err = f.svc.UpdateCategory(ctx, f.admin, c.ID, service.CategoryInput{Name: "Clothing"})
	require.NoError(t, err)
	require.Equal(t, security.Violations{"A category with this name already exists."}, v)

	_, _, err = f.svc.UpdateCategory(ctx, f.admin, "missing", service.CategoryInput{Name: "Ghost"})
	require.ErrorIs(t, err, service.ErrNotFound)

	a, v, err := f.svc.CreateAnnouncement(ctx, f.admin, service.AnnouncementInput{Title: "Closed", Content: "Office closed Friday", Type: "warning", IsActive: true})
	require.NoError(t, err)
	require.True(t, v.OK())
	require.Equal(t, models.AnnouncementWarning, a.Type)

	_, v, err = f.svc.CreateAnnouncement(ctx, f.admin, service.AnnouncementInput{Title: "x", Content: "y", Type: "loud"})
	require.NoError(t, err)
	require.False(t, v.OK())

	a, _, err = f.svc.UpdateAnnouncement(ctx, f.admin, a.ID, service.AnnouncementInput{Title: "Closed", Content: "Office closed Friday", Type: "info", IsActive: false})
	require.NoError(t, err)
	require.False(t, a.IsActive)

	active, err := f.svc.ListAnnouncements(ctx, true)
	require.NoError(t, err)
	require.Empty(t, active)

	ok, err := f.svc.DeleteAnnouncement(ctx, f.admin, a.ID)
	require.NoError(t, err)
	require.True(t, ok)

	entries, total, err := f.svc.Audit().List(ctx, models.AuditQuery{ResourceType: "announcement"})
	require.NoError(t, err)
	require.Equal(t, 3, total)
	var actions []string
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	require.ElementsMatch(t, []string{"announcement.create", "announcement.update", "announcement.delete"}, actions)
}
