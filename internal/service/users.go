package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"lostfound/internal/audit"
	"lostfound/internal/auth"
	"lostfound/internal/models"
	"lostfound/internal/security"
	"lostfound/internal/store"
)

type RegisterInput struct {
	FullName string
	Email    string
	Password string
}

// Register creates a user account. New accounts are inactive until an admin
// activates them unless AutoApproveUsers is set.
func (s *Service) Register(ctx context.Context, in RegisterInput) (models.User, security.Violations, error) {
	name := security.SanitizeString(in.FullName)
	email := strings.ToLower(strings.TrimSpace(in.Email))

	var v security.Violations
	v = required(v, name, "Full name", 120)
	v = append(v, s.sec.ValidateEmail(email)...)
	v = append(v, s.sec.ValidatePassword(in.Password)...)
	if !v.OK() {
		return models.User{}, v, nil
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return models.User{}, nil, err
	}
	u, err := s.st.CreateUser(ctx, models.User{
		FullName:     name,
		Email:        email,
		PasswordHash: hash,
		Role:         models.RoleUser,
		IsActive:     s.cfg.AutoApproveUsers,
	})
	if errors.Is(err, store.ErrConflict) {
		return models.User{}, security.Violations{"An account with this email already exists."}, nil
	}
	if err != nil {
		return models.User{}, nil, err
	}
	s.audit.Log(ctx, audit.Entry{
		UserID:       u.ID,
		Action:       "user.register",
		ResourceType: audit.ResourceUsers,
		ResourceID:   u.ID,
		Details:      map[string]any{"email": u.Email},
	})
	return u, nil, nil
}

// Authenticate checks credentials. Unknown email and wrong password are
// indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, email, password string) (models.User, error) {
	u, err := s.st.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		auth.BurnVerify(password)
		return models.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return models.User{}, err
	}
	if !auth.VerifyPassword(u.PasswordHash, password) {
		return models.User{}, ErrInvalidCredentials
	}
	if !u.IsActive {
		return models.User{}, ErrInactive
	}

	now := s.now()
	if err := s.st.TouchUserLastLogin(ctx, u.ID, now); err != nil {
		return models.User{}, err
	}
	u.LastLogin = &now
	if auth.NeedsRehash(u.PasswordHash) {
		if hash, err := auth.HashPassword(password); err == nil {
			if err := s.st.UpdatePasswordHash(ctx, u.ID, hash); err != nil {
				s.log.Warn("password rehash failed", zap.String("user_id", u.ID), zap.Error(err))
			}
		}
	}
	s.audit.Log(ctx, audit.Entry{UserID: u.ID, Action: "user.login", ResourceType: audit.ResourceUsers, ResourceID: u.ID})
	return u, nil
}

func (s *Service) GetUser(ctx context.Context, id string) (models.User, error) {
	return s.st.GetUserByID(ctx, id)
}

// SetUserActive activates or deactivates userID. Admins cannot deactivate
// themselves. Deactivation ends the user's sessions.
func (s *Service) SetUserActive(ctx context.Context, admin models.User, userID string, active bool) (bool, error) {
	if !admin.IsAdmin() {
		return false, ErrForbidden
	}
	if admin.ID == userID && !active {
		return false, ErrForbidden
	}
	target, err := s.st.GetUserByID(ctx, userID)
	if err != nil {
		return false, err
	}
	changed, err := s.st.SetUserActive(ctx, userID, active)
	if err != nil || !changed {
		return false, err
	}
	action := "user.activate"
	if !active {
		action = "user.deactivate"
		if err := s.st.DeleteUserSessions(ctx, userID); err != nil {
			return true, err
		}
	}
	s.audit.Log(ctx, audit.Entry{
		UserID:       admin.ID,
		Action:       action,
		ResourceType: audit.ResourceUsers,
		ResourceID:   userID,
		Details:      map[string]any{"email": target.Email},
	})
	return true, nil
}

// SetUserRole promotes or demotes userID. Admins cannot demote themselves.
func (s *Service) SetUserRole(ctx context.Context, admin models.User, userID, role string) (bool, error) {
	if !admin.IsAdmin() {
		return false, ErrForbidden
	}
	if role != models.RoleUser && role != models.RoleAdmin {
		return false, errors.New("invalid role")
	}
	if admin.ID == userID && role != models.RoleAdmin {
		return false, ErrForbidden
	}
	target, err := s.st.GetUserByID(ctx, userID)
	if err != nil {
		return false, err
	}
	changed, err := s.st.SetUserRole(ctx, userID, role)
	if err != nil || !changed {
		return false, err
	}
	action := "user.promote"
	if role == models.RoleUser {
		action = "user.demote"
	}
	s.audit.Log(ctx, audit.Entry{
		UserID:       admin.ID,
		Action:       action,
		ResourceType: audit.ResourceUsers,
		ResourceID:   userID,
		Details:      map[string]any{"email": target.Email},
	})
	return true, nil
}

func (s *Service) ListUsers(ctx context.Context, q models.UserQuery) ([]models.User, int, error) {
	return s.st.ListUsers(ctx, q)
}
