package config

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "sqlite", cfg.DB.Driver)
	require.Equal(t, []string{"@school.edu"}, cfg.Security.AllowedEmailDomains)
	require.Equal(t, 5*time.Minute, cfg.Session.RegenerateEvery)
	require.Equal(t, 8, cfg.Security.PasswordMinLength)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("DB_DRIVER", "oracle")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadRequiresDSNForMySQL(t *testing.T) {
	t.Setenv("DB_DRIVER", "mysql")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("DB_DSN", "lf:secret@tcp(127.0.0.1:3306)/lostfound?parseTime=true")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "mysql", cfg.DB.Driver)
}

func TestLoadPasswordBounds(t *testing.T) {
	t.Setenv("PASSWORD_MIN_LENGTH", "16")
	t.Setenv("PASSWORD_MAX_LENGTH", "12")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadNormalizesEmailDomains(t *testing.T) {
	t.Setenv("ALLOWED_EMAIL_DOMAINS", "school.edu, @Students.School.EDU ,")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, []string{"@school.edu", "@students.school.edu"}, cfg.Security.AllowedEmailDomains)
}

func TestLoadCaptchaRequiresSecret(t *testing.T) {
	t.Setenv("CAPTCHA_ENABLED", "true")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadRateLimitBackend(t *testing.T) {
	t.Setenv("RATE_LIMIT_BACKEND", "redis")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("RATE_LIMIT_BACKEND", "memory")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "memory", cfg.Security.RateLimitBackend)
}

func TestLookupDottedPaths(t *testing.T) {
	cfg := Defaults()
	cases := []struct {
		path string
		want string
	}{
		{path: "db.driver", want: "sqlite"},
		{path: "security.rate_limit.login.max_attempts", want: "5"},
		{path: "security.rate_limit.register.window", want: "1h0m0s"},
		{path: "security.allowed_email_domains", want: "@school.edu"},
		{path: "upload.max_bytes", want: "5242880"},
		{path: "session.regenerate_every", want: "5m0s"},
		{path: "janitor.interval", want: "15m0s"},
		{path: "security.rate_limit.backend", want: "db"},
	}
	for _, tc := range cases {
		got, ok := cfg.Lookup(tc.path)
		require.True(t, ok, tc.path)
		require.Equal(t, tc.want, got, tc.path)
	}

	for _, missing := range []string{"", "db", "db.dsn", "notify.smtp.password", "nope.nothing"} {
		_, ok := cfg.Lookup(missing)
		require.False(t, ok, missing)
	}
}

func TestResolveCookieSecure(t *testing.T) {
	cfg := Defaults()
	r := httptest.NewRequest("GET", "/", nil)
	require.False(t, cfg.ResolveCookieSecure(r))

	r.Header.Set("X-Forwarded-Proto", "https")
	require.False(t, cfg.ResolveCookieSecure(r))
	cfg.Session.TrustProxy = true
	require.True(t, cfg.ResolveCookieSecure(r))

	cfg.Session.CookieSecureMode = "never"
	require.False(t, cfg.ResolveCookieSecure(r))
	cfg.Session.CookieSecureMode = "always"
	require.True(t, cfg.ResolveCookieSecure(httptest.NewRequest("GET", "/", nil)))
}
