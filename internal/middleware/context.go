package middleware

import (
	"context"
	"net/http"

	"lostfound/internal/models"
)

type ctxKey string

const (
	ctxRequestID ctxKey = "request_id"
	ctxClientIP  ctxKey = "client_ip"
	ctxUser      ctxKey = "user"
	ctxSession   ctxKey = "session"
)

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxRequestID, id)
}

func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(ctxRequestID).(string)
	return v
}

func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxClientIP, ip)
}

// ClientIPFrom returns the address stored by RealIP, or "".
func ClientIPFrom(ctx context.Context) string {
	v, _ := ctx.Value(ctxClientIP).(string)
	return v
}

func WithUser(ctx context.Context, u models.User) context.Context {
	return context.WithValue(ctx, ctxUser, u)
}

func User(ctx context.Context) (models.User, bool) {
	u, ok := ctx.Value(ctxUser).(models.User)
	return u, ok
}

func WithSession(ctx context.Context, s *models.Session) context.Context {
	return context.WithValue(ctx, ctxSession, s)
}

func Session(ctx context.Context) *models.Session {
	s, _ := ctx.Value(ctxSession).(*models.Session)
	return s
}

func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "same-origin")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; img-src 'self'; frame-ancestors 'none'; base-uri 'none'")
		next.ServeHTTP(w, r)
	})
}
