// Package security holds the request-hardening helpers shared by every
// state-changing route: CSRF tokens, input sanitizing, email and password
// policy, attempt limiting and photo upload handling.
package security

import (
	"context"
	"fmt"
	"html"
	"net/mail"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"lostfound/internal/auth"
	"lostfound/internal/config"
	"lostfound/internal/models"
	"lostfound/internal/ratelimit"
)

// Violations lists human-readable policy failures. Empty means valid.
type Violations []string

func (v Violations) OK() bool { return len(v) == 0 }

func (v Violations) String() string { return strings.Join(v, "; ") }

// CSRFStore persists the per-session token.
type CSRFStore interface {
	SetSessionCSRFToken(ctx context.Context, sessionID, token string) (string, error)
}

type Service struct {
	cfg     config.Config
	tokens  CSRFStore
	limiter *ratelimit.Limiter
}

func New(cfg config.Config, tokens CSRFStore, limiter *ratelimit.Limiter) *Service {
	return &Service{cfg: cfg, tokens: tokens, limiter: limiter}
}

// GenerateCSRFToken returns the session's token, allocating it on first use.
// The same token serves every form for the lifetime of the session.
func (s *Service) GenerateCSRFToken(ctx context.Context, sess *models.Session) (string, error) {
	if sess == nil {
		return "", fmt.Errorf("csrf: no session")
	}
	if sess.CSRFToken != "" {
		return sess.CSRFToken, nil
	}
	tok, err := auth.RandomHex(32)
	if err != nil {
		return "", fmt.Errorf("csrf token: %w", err)
	}
	stored, err := s.tokens.SetSessionCSRFToken(ctx, sess.ID, tok)
	if err != nil {
		return "", fmt.Errorf("store csrf token: %w", err)
	}
	sess.CSRFToken = stored
	return stored, nil
}

// ValidateCSRFToken fails when the session has no token yet or candidate is
// empty or different.
func ValidateCSRFToken(sess *models.Session, candidate string) bool {
	if sess == nil {
		return false
	}
	return auth.EqualTokens(sess.CSRFToken, candidate)
}

// SanitizeInput trims and HTML-escapes every string inside v, walking maps and
// slices. Other values are returned unchanged.
func SanitizeInput(v any) any {
	switch x := v.(type) {
	case string:
		return SanitizeString(x)
	case []string:
		out := make([]string, len(x))
		for i, s := range x {
			out[i] = SanitizeString(s)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(x))
		for k, s := range x {
			out[k] = SanitizeString(s)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = SanitizeInput(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = SanitizeInput(e)
		}
		return out
	case map[string][]string:
		out := make(map[string][]string, len(x))
		for k, e := range x {
			out[k] = SanitizeInput(e).([]string)
		}
		return out
	default:
		return v
	}
}

func SanitizeString(s string) string {
	return html.EscapeString(strings.TrimSpace(s))
}

func (s *Service) ValidateEmail(email string) Violations {
	return ValidateEmail(email, s.cfg.Security.AllowedEmailDomains)
}

// ValidateEmail checks syntax and that the address ends with one of the
// allowed suffixes (for example "@school.edu").
func ValidateEmail(email string, allowed []string) Violations {
	var out Violations
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		out = append(out, "Email address is not valid.")
		return out
	}
	lower := strings.ToLower(email)
	for _, suffix := range allowed {
		if strings.HasSuffix(lower, strings.ToLower(suffix)) {
			return out
		}
	}
	return append(out, fmt.Sprintf("Email must end with %s.", strings.Join(allowed, " or ")))
}

func (s *Service) ValidatePassword(pw string) Violations {
	return ValidatePassword(pw, s.cfg.Security.PasswordMinLength, s.cfg.Security.PasswordMaxLength)
}

// ValidatePassword reports every failed rule, not just the first.
func ValidatePassword(pw string, minLen, maxLen int) Violations {
	var out Violations
	n := utf8.RuneCountInString(pw)
	if n < minLen {
		out = append(out, fmt.Sprintf("Password must be at least %d characters.", minLen))
	}
	if maxLen > 0 && n > maxLen {
		out = append(out, fmt.Sprintf("Password must be at most %d characters.", maxLen))
	}
	var upper, lower, digit, symbol bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}
	if !upper {
		out = append(out, "Password must contain an uppercase letter.")
	}
	if !lower {
		out = append(out, "Password must contain a lowercase letter.")
	}
	if !digit {
		out = append(out, "Password must contain a digit.")
	}
	if !symbol {
		out = append(out, "Password must contain a symbol.")
	}
	return out
}

// CheckRateLimit records an attempt for (identifier, action) and reports
// whether it is allowed.
func (s *Service) CheckRateLimit(ctx context.Context, identifier, action string, maxAttempts int, window time.Duration) (bool, error) {
	return s.limiter.Allow(ctx, identifier, action, maxAttempts, window)
}

// CheckRule applies the configured limit for action.
func (s *Service) CheckRule(ctx context.Context, identifier, action string) (bool, error) {
	rule := s.cfg.RateRule(action)
	return s.CheckRateLimit(ctx, identifier, action, rule.MaxAttempts, rule.Window)
}
