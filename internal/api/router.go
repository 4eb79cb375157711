package api

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"lostfound/internal/captcha"
	"lostfound/internal/config"
	"lostfound/internal/middleware"
	"lostfound/internal/models"
	"lostfound/internal/service"
	"lostfound/internal/session"
	"lostfound/internal/util"
	"lostfound/internal/version"
)

type Handlers struct {
	cfg             config.Config
	svc             *service.Service
	sessions        *session.Manager
	captchaVerifier captcha.Verifier
	log             *zap.Logger
}

func NewRouter(cfg config.Config, svc *service.Service, sessions *session.Manager, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Handlers{
		cfg:             cfg,
		svc:             svc,
		sessions:        sessions,
		captchaVerifier: captcha.NewVerifier(cfg),
		log:             log.Named("api"),
	}
	return h.routes()
}

func (h *Handlers) routes() http.Handler {
	cfg := h.cfg
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.RealIP(cfg.Session.TrustProxy))
	r.Use(middleware.RequestLogger(h.log))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Throttle(cfg.HTTP.ThrottleRPS, cfg.HTTP.ThrottleBurst))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type", "X-CSRF-Token"},
			AllowCredentials: true,
		}))
	}

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		util.WriteJSON(w, 200, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", h.Ready)
	r.Get("/uploads/*", h.Upload)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.BodyLimit(cfg.Upload.MaxBytes + 1<<20))
		r.Use(middleware.Sessions(h.sessions, h.log))
		r.Use(middleware.CSRF)

		r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
			util.WriteJSON(w, 200, version.Current())
		})
		r.Get("/session", h.Session)
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)
		r.Get("/posts", h.ListPosts)
		r.Get("/posts/{id}", h.GetPost)
		r.Get("/categories", h.ListCategories)
		r.Get("/announcements", h.ListAnnouncements)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireLogin(h.sessions, cfg, h.log))
			r.Get("/me", h.Me)
			r.Get("/me/posts", h.MyPosts)
			r.Post("/posts", h.CreatePost)
			r.Post("/posts/{id}/resolve", h.ResolvePost)
			r.Post("/posts/{id}/delete", h.DeletePost)
			r.Post("/posts/{id}/contact", h.ContactOwner)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin(h.sessions, cfg, h.log))
			r.Get("/posts", h.AdminListPosts)
			r.Get("/stats", h.AdminStats)
			r.Post("/posts/{id}/approve", h.AdminApprovePost)
			r.Post("/posts/{id}/reject", h.AdminRejectPost)
			r.Post("/posts/{id}/resolve", h.ResolvePost)
			r.Post("/posts/{id}/delete", h.DeletePost)
			r.Get("/users", h.AdminListUsers)
			r.Post("/users/{id}/activate", h.AdminSetUserActive(true))
			r.Post("/users/{id}/deactivate", h.AdminSetUserActive(false))
			r.Post("/users/{id}/promote", h.AdminSetUserRole(models.RoleAdmin))
			r.Post("/users/{id}/demote", h.AdminSetUserRole(models.RoleUser))
			r.Get("/categories", h.AdminListCategories)
			r.Post("/categories", h.AdminCreateCategory)
			r.Post("/categories/{id}", h.AdminUpdateCategory)
			r.Post("/categories/{id}/toggle", h.AdminToggleCategory)
			r.Get("/announcements", h.AdminListAnnouncements)
			r.Post("/announcements", h.AdminCreateAnnouncement)
			r.Post("/announcements/{id}", h.AdminUpdateAnnouncement)
			r.Post("/announcements/{id}/delete", h.AdminDeleteAnnouncement)
			r.Get("/audit-log", h.AdminAuditLog)
		})
	})

	return r
}

func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	comps := map[string]any{}
	ok := true
	if err := h.svc.Ready(r.Context()); err != nil {
		h.log.Warn("database readiness check failed", zap.Error(err))
		comps["database"] = map[string]any{"ok": false}
		ok = false
	} else {
		comps["database"] = map[string]any{"ok": true}
	}
	if checked, err := h.svc.NotifierReady(r.Context()); checked {
		if err != nil {
			h.log.Warn("smtp readiness check failed", zap.Error(err))
			comps["smtp"] = map[string]any{"ok": false}
			ok = false
		} else {
			comps["smtp"] = map[string]any{"ok": true}
		}
	}

	ready := map[string]any{
		"checked_at": time.Now().UTC().Format(time.RFC3339),
		"components": comps,
	}
	if ok {
		ready["status"] = "ready"
		util.WriteJSON(w, 200, ready)
		return
	}
	ready["status"] = "degraded"
	util.WriteJSON(w, 503, ready)
}

// Upload serves stored photos. Names are generated server side, so anything
// that looks like a path is refused.
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "*")
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Cache-Control", "private, max-age=86400")
	http.ServeFile(w, r, filepath.Join(h.cfg.Upload.Dir, name))
}

// fail maps service errors to responses. Anything unexpected is logged with
// detail and answered with a generic message.
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	rid := middleware.RequestID(r.Context())
	switch {
	case errors.Is(err, service.ErrNotFound):
		util.WriteError(w, http.StatusNotFound, "not_found", "not found", rid)
	case errors.Is(err, service.ErrForbidden):
		util.WriteError(w, http.StatusForbidden, "forbidden", "not allowed", rid)
	case errors.Is(err, service.ErrRateLimited):
		util.WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts, try again later", rid)
	default:
		h.log.Error("request failed",
			zap.Error(err),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", rid),
		)
		util.WriteError(w, http.StatusInternalServerError, "internal_error", "internal error", rid)
	}
}

func (h *Handlers) badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	util.WriteError(w, http.StatusBadRequest, "bad_request", msg, middleware.RequestID(r.Context()))
}

func (h *Handlers) violations(w http.ResponseWriter, r *http.Request, v []string) {
	util.WriteViolations(w, v, middleware.RequestID(r.Context()))
}

// unchanged answers a conditional transition that matched no row.
func (h *Handlers) unchanged(w http.ResponseWriter, r *http.Request, msg string) {
	util.WriteError(w, http.StatusConflict, "state_conflict", msg, middleware.RequestID(r.Context()))
}

// rateLimited records an attempt for identifier under the configured rule for
// action and answers 429 when it is over the limit. It reports whether the
// request has already been answered.
func (h *Handlers) rateLimited(w http.ResponseWriter, r *http.Request, action, identifier string) bool {
	ok, err := h.svc.Security().CheckRule(r.Context(), identifier, action)
	if err != nil {
		h.fail(w, r, err)
		return true
	}
	if !ok {
		h.fail(w, r, service.ErrRateLimited)
		return true
	}
	return false
}

// viewer returns the logged-in user for public routes, or nil.
func (h *Handlers) viewer(r *http.Request) *models.User {
	u, ok, err := h.sessions.User(r.Context(), middleware.Session(r.Context()))
	if err != nil {
		h.log.Warn("resolve viewer failed", zap.Error(err), zap.String("request_id", middleware.RequestID(r.Context())))
		return nil
	}
	if !ok {
		return nil
	}
	return &u
}

type pageResponse struct {
	Items    any `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

func parseDate(v string) (*time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// postFilter reads the board filters shared by the public and admin listings.
func postFilter(r *http.Request) (models.PostFilter, int, int, error) {
	q := r.URL.Query()
	page, pageSize, offset := util.Pagination(r)
	f := models.PostFilter{
		Type:     models.PostType(strings.ToLower(strings.TrimSpace(q.Get("type")))),
		Category: strings.TrimSpace(q.Get("category")),
		Query:    strings.TrimSpace(q.Get("q")),
		Limit:    pageSize,
		Offset:   offset,
	}
	if f.Type != "" && !f.Type.Valid() {
		return f, 0, 0, errors.New("type must be lost or found")
	}
	var err error
	if f.From, err = parseDate(q.Get("from")); err != nil {
		return f, 0, 0, errors.New("from must be YYYY-MM-DD")
	}
	if f.To, err = parseDate(q.Get("to")); err != nil {
		return f, 0, 0, errors.New("to must be YYYY-MM-DD")
	}
	return f, page, pageSize, nil
}
