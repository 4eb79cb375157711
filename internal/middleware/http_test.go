package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"lostfound/internal/config"
	"lostfound/internal/models"
)

func TestClientIPTrustProxy(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.5:12345"
	r.Header.Set("X-Forwarded-For", "1.2.3.4, 10.0.0.5")

	if got := ClientIP(r, false); got != "10.0.0.5" {
		t.Fatalf("unexpected direct IP: %s", got)
	}
	if got := ClientIP(r, true); got != "1.2.3.4" {
		t.Fatalf("unexpected proxied IP: %s", got)
	}
}

func TestCSRFBlocksBeforeHandler(t *testing.T) {
	called := false
	h := CSRF(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	}))
	sess := &models.Session{ID: "s", CSRFToken: "tok"}

	cases := []struct {
		name   string
		req    func() *http.Request
		status int
		called bool
	}{
		{"get passes", func() *http.Request { return httptest.NewRequest("GET", "/", nil) }, http.StatusNoContent, true},
		{"post without token", func() *http.Request { return httptest.NewRequest("POST", "/", nil) }, http.StatusForbidden, false},
		{"post wrong header", func() *http.Request {
			r := httptest.NewRequest("POST", "/", nil)
			r.Header.Set("X-CSRF-Token", "nope")
			return r
		}, http.StatusForbidden, false},
		{"post header", func() *http.Request {
			r := httptest.NewRequest("POST", "/", nil)
			r.Header.Set("X-CSRF-Token", "tok")
			return r
		}, http.StatusNoContent, true},
		{"post form field", func() *http.Request {
			r := httptest.NewRequest("POST", "/", strings.NewReader(url.Values{"csrf_token": {"tok"}}.Encode()))
			r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			return r
		}, http.StatusNoContent, true},
	}
	for _, tc := range cases {
		called = false
		r := tc.req()
		r = r.WithContext(WithSession(r.Context(), sess))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		if rec.Code != tc.status || called != tc.called {
			t.Fatalf("%s: status=%d called=%v", tc.name, rec.Code, called)
		}
	}
}

func TestThrottleRejectsBurst(t *testing.T) {
	h := Throttle(0.0001, 2)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
		codes = append(codes, rec.Code)
	}
	if codes[0] != 200 || codes[1] != 200 || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected codes %v", codes)
	}
}

func TestDenyRedirectsBrowsers(t *testing.T) {
	cfg := config.Defaults()
	r := httptest.NewRequest("GET", "/admin", nil)
	r.Header.Set("Accept", "text/html,application/xhtml+xml")
	rec := httptest.NewRecorder()
	deny(rec, r, cfg, http.StatusUnauthorized, "unauthorized", "authentication required")
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != cfg.Session.LoginPath {
		t.Fatalf("expected redirect, got %d %q", rec.Code, rec.Header().Get("Location"))
	}

	r = httptest.NewRequest("GET", "/api/v1/admin/posts", nil)
	rec = httptest.NewRecorder()
	deny(rec, r, cfg, http.StatusUnauthorized, "unauthorized", "authentication required")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
