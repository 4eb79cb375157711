package api

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"lostfound/internal/captcha"
	"lostfound/internal/middleware"
	"lostfound/internal/service"
	"lostfound/internal/util"
)

// Session returns the CSRF token every later POST must echo back, plus the
// logged-in user when there is one. It consumes the pending flash message.
func (h *Handlers) Session(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := middleware.Session(ctx)
	token, err := h.svc.Security().GenerateCSRFToken(ctx, sess)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	flash, err := h.sessions.TakeFlash(ctx, sess)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := map[string]any{"csrf_token": token, "logged_in": false}
	if flash != "" {
		out["flash"] = flash
	}
	if u := h.viewer(r); u != nil {
		out["logged_in"] = true
		out["user"] = u
	}
	util.WriteJSON(w, 200, out)
}

type registerRequest struct {
	FullName     string `json:"full_name"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	CaptchaToken string `json:"captcha_token"`
}

func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := util.DecodeJSON(r, &req); err != nil {
		h.badRequest(w, r, "invalid json")
		return
	}
	ip := middleware.ClientIPFrom(r.Context())
	if h.rateLimited(w, r, "register", "ip:"+ip) {
		return
	}
	if h.cfg.Captcha.Enabled {
		if err := h.captchaVerifier.Verify(r.Context(), req.CaptchaToken, ip); err != nil {
			rid := middleware.RequestID(r.Context())
			if errors.Is(err, captcha.ErrCaptchaUnavailable) {
				h.log.Warn("captcha verification unavailable", zap.Error(err), zap.String("request_id", rid))
				util.WriteError(w, http.StatusServiceUnavailable, "captcha_unavailable", "captcha verification is unavailable", rid)
				return
			}
			util.WriteError(w, http.StatusBadRequest, "captcha_required", "captcha validation failed", rid)
			return
		}
	}
	u, v, err := h.svc.Register(r.Context(), service.RegisterInput{
		FullName: req.FullName,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !v.OK() {
		h.violations(w, r, v)
		return
	}
	status := "pending_approval"
	if u.IsActive {
		status = "active"
	}
	util.WriteJSON(w, http.StatusCreated, map[string]string{"status": status, "user_id": u.ID})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login counts every attempt against both the client address and the email,
// so spreading guesses over many addresses does not help.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := util.DecodeJSON(r, &req); err != nil {
		h.badRequest(w, r, "invalid json")
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if h.rateLimited(w, r, "login", "ip:"+middleware.ClientIPFrom(r.Context())) {
		return
	}
	if email != "" && h.rateLimited(w, r, "login", "email:"+email) {
		return
	}

	rid := middleware.RequestID(r.Context())
	u, err := h.svc.Authenticate(r.Context(), email, req.Password)
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		util.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password", rid)
		return
	case errors.Is(err, service.ErrInactive):
		util.WriteError(w, http.StatusForbidden, "inactive", "account is awaiting approval or disabled", rid)
		return
	case err != nil:
		h.fail(w, r, err)
		return
	}

	sess := middleware.Session(r.Context())
	if err := h.sessions.Login(w, r, sess, u); err != nil {
		h.fail(w, r, err)
		return
	}
	token, err := h.svc.Security().GenerateCSRFToken(r.Context(), sess)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	util.WriteJSON(w, 200, map[string]any{"user": u, "csrf_token": token})
}

func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, err := h.sessions.Logout(w, r, middleware.Session(ctx))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	token, err := h.svc.Security().GenerateCSRFToken(ctx, sess)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.sessions.SetFlash(ctx, sess, "You have been logged out."); err != nil {
		h.log.Warn("set logout flash failed", zap.Error(err))
	}
	util.WriteJSON(w, 200, map[string]string{"status": "ok", "csrf_token": token})
}

func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.User(r.Context())
	util.WriteJSON(w, 200, u)
}
