package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"lostfound/internal/config"
)

var (
	ErrCaptchaRequired    = errors.New("captcha_required")
	ErrCaptchaUnavailable = errors.New("captcha_unavailable")
)

// Verifier checks the widget token a registration form submits.
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) error
}

type NoopVerifier struct{}

func (NoopVerifier) Verify(context.Context, string, string) error { return nil }

// SiteVerifier talks to a Turnstile or hCaptcha style siteverify endpoint.
// Both accept the same form-encoded request.
type SiteVerifier struct {
	verifyURL string
	secret    string
	client    *http.Client
}

func NewVerifier(cfg config.Config) Verifier {
	if !cfg.Captcha.Enabled {
		return NoopVerifier{}
	}
	return NewSiteVerifier(cfg.CaptchaVerifyURL(), cfg.Captcha.Secret, &http.Client{Timeout: 8 * time.Second})
}

func NewSiteVerifier(verifyURL, secret string, client *http.Client) *SiteVerifier {
	return &SiteVerifier{
		verifyURL: strings.TrimSpace(verifyURL),
		secret:    strings.TrimSpace(secret),
		client:    client,
	}
}

type siteverifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

func (v *SiteVerifier) Verify(ctx context.Context, token, remoteIP string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: captcha token is required", ErrCaptchaRequired)
	}
	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", token)
	if ip := strings.TrimSpace(remoteIP); ip != "" {
		form.Set("remoteip", ip)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCaptchaUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCaptchaUnavailable, err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: siteverify HTTP %d", ErrCaptchaUnavailable, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%w: siteverify HTTP %d", ErrCaptchaRequired, resp.StatusCode)
	}

	var out siteverifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("%w: %v", ErrCaptchaUnavailable, err)
	}
	if !out.Success {
		if len(out.ErrorCodes) > 0 {
			return fmt.Errorf("%w: captcha rejected: %s", ErrCaptchaRequired, strings.Join(out.ErrorCodes, ","))
		}
		return fmt.Errorf("%w: captcha rejected", ErrCaptchaRequired)
	}
	return nil
}
