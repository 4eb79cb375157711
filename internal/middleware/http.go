package middleware

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"lostfound/internal/config"
	"lostfound/internal/security"
	"lostfound/internal/session"
	"lostfound/internal/util"
)

func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := uuid.NewString()
		r = r.WithContext(WithRequestID(r.Context(), rid))
		w.Header().Set("X-Request-ID", rid)
		next.ServeHTTP(w, r)
	})
}

// RealIP stores the client address in the request context for audit and
// rate limiting.
func RealIP(trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r = r.WithContext(WithClientIP(r.Context(), ClientIP(r, trustProxy)))
			next.ServeHTTP(w, r)
		})
	}
}

func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			return strings.TrimSpace(parts[0])
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Throttle caps the whole server at rps requests per second.
func Throttle(rps float64, burst int) func(http.Handler) http.Handler {
	if rps <= 0 {
		rps = 50
	}
	if burst <= 0 {
		burst = 100
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				util.WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", RequestID(r.Context()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BodyLimit bounds request bodies before any handler or CSRF check parses them.
func BodyLimit(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Sessions attaches the current session, creating an anonymous one when the
// request carries no valid cookie.
func Sessions(mgr *session.Manager, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := mgr.Init(w, r)
			if err != nil {
				log.Error("session init failed", zap.Error(err), zap.String("request_id", RequestID(r.Context())))
				util.WriteError(w, http.StatusInternalServerError, "internal_error", "internal error", RequestID(r.Context()))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
		})
	}
}

// RequireLogin stops the request unless an active user is bound to the
// session. Browsers are redirected to the login page, API clients get 401.
func RequireLogin(mgr *session.Manager, cfg config.Config, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok, err := mgr.User(r.Context(), Session(r.Context()))
			if err != nil {
				log.Error("resolve session user failed", zap.Error(err), zap.String("request_id", RequestID(r.Context())))
				util.WriteError(w, http.StatusInternalServerError, "internal_error", "internal error", RequestID(r.Context()))
				return
			}
			if !ok {
				deny(w, r, cfg, http.StatusUnauthorized, "unauthorized", "authentication required")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
		})
	}
}

// RequireAdmin implies RequireLogin.
func RequireAdmin(mgr *session.Manager, cfg config.Config, log *zap.Logger) func(http.Handler) http.Handler {
	login := RequireLogin(mgr, cfg, log)
	return func(next http.Handler) http.Handler {
		return login(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, _ := User(r.Context())
			if !u.IsAdmin() {
				deny(w, r, cfg, http.StatusForbidden, "forbidden", "admin role required")
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

func deny(w http.ResponseWriter, r *http.Request, cfg config.Config, status int, code, msg string) {
	if wantsHTML(r) {
		http.Redirect(w, r, cfg.Session.LoginPath, http.StatusSeeOther)
		return
	}
	util.WriteError(w, status, code, msg, RequestID(r.Context()))
}

func wantsHTML(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "text/html") && !strings.Contains(accept, "application/json")
}

// CSRF rejects every unsafe request whose X-CSRF-Token header or csrf_token
// form field does not match the session token.
func CSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}
		candidate := r.Header.Get("X-CSRF-Token")
		if candidate == "" {
			candidate = r.FormValue("csrf_token")
		}
		if !security.ValidateCSRFToken(Session(r.Context()), candidate) {
			util.WriteError(w, http.StatusForbidden, "csrf_failed", "invalid csrf token", RequestID(r.Context()))
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func RequestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sr, r)
			log.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", sr.status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", RequestID(r.Context())),
				zap.String("remote_ip", ClientIPFrom(r.Context())),
			)
		})
	}
}
