package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"lostfound/internal/audit"
	"lostfound/internal/auth"
	"lostfound/internal/config"
	"lostfound/internal/notify"
	"lostfound/internal/security"
	"lostfound/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInactive           = errors.New("account is not active")
	ErrForbidden          = errors.New("forbidden")
	ErrRateLimited        = errors.New("too many attempts")
	ErrNotFound           = store.ErrNotFound
)

type Service struct {
	cfg    config.Config
	st     *store.Store
	sec    *security.Service
	audit  *audit.Logger
	sender notify.Sender
	log    *zap.Logger
	now    func() time.Time
}

func New(cfg config.Config, st *store.Store, sec *security.Service, aud *audit.Logger, sender notify.Sender, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if sender == nil {
		sender = notify.NewLogSender(log)
	}
	return &Service{
		cfg:    cfg,
		st:     st,
		sec:    sec,
		audit:  aud,
		sender: sender,
		log:    log.Named("service"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Store() *store.Store         { return s.st }
func (s *Service) Security() *security.Service { return s.sec }
func (s *Service) Audit() *audit.Logger        { return s.audit }
func (s *Service) Config() config.Config       { return s.cfg }

// Ready reports whether the database answers.
func (s *Service) Ready(ctx context.Context) error {
	return s.st.Ping(ctx)
}

// BootstrapAdmin makes sure the configured administrator exists. It does
// nothing when no bootstrap credentials are configured.
func (s *Service) BootstrapAdmin(ctx context.Context) error {
	email := strings.TrimSpace(s.cfg.BootstrapAdminEmail)
	if email == "" || s.cfg.BootstrapAdminPassword == "" {
		return nil
	}
	if v := s.sec.ValidateEmail(email); !v.OK() {
		return fmt.Errorf("bootstrap admin email: %s", v.String())
	}
	hash, err := auth.HashPassword(s.cfg.BootstrapAdminPassword)
	if err != nil {
		return err
	}
	if err := s.st.EnsureAdmin(ctx, s.cfg.BootstrapAdminName, email, hash); err != nil {
		return fmt.Errorf("ensure admin: %w", err)
	}
	s.log.Info("bootstrap admin ensured", zap.String("email", strings.ToLower(email)))
	return nil
}

func required(v security.Violations, value, label string, max int) security.Violations {
	n := len([]rune(value))
	switch {
	case n == 0:
		return append(v, label+" is required.")
	case max > 0 && n > max:
		return append(v, fmt.Sprintf("%s must be at most %d characters.", label, max))
	}
	return v
}

// NotifierReady probes the notification upstream when the sender supports
// it. checked is false for senders that have nothing to probe.
func (s *Service) NotifierReady(ctx context.Context) (checked bool, err error) {
	p, ok := s.sender.(notify.Prober)
	if !ok {
		return false, nil
	}
	return true, p.Probe(ctx)
}
