package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"lostfound/internal/models"
)

const userColumns = `id,full_name,email,password_hash,role,is_active,email_verified,last_login,created_at`

func scanUser(row interface{ Scan(...any) error }) (models.User, error) {
	var u models.User
	var lastLogin sql.NullTime
	if err := row.Scan(&u.ID, &u.FullName, &u.Email, &u.PasswordHash, &u.Role, &u.IsActive, &u.EmailVerified, &lastLogin, &u.CreatedAt); err != nil {
		return models.User{}, err
	}
	u.LastLogin = timePtr(lastLogin)
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, u models.User) (models.User, error) {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	if u.Role == "" {
		u.Role = models.RoleUser
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	id, err := s.Insert(ctx, "users", Fields{
		"id":             u.ID,
		"full_name":      u.FullName,
		"email":          u.Email,
		"password_hash":  u.PasswordHash,
		"role":           u.Role,
		"is_active":      u.IsActive,
		"email_verified": u.EmailVerified,
		"created_at":     u.CreatedAt,
	})
	if err != nil {
		return models.User{}, err
	}
	u.ID = id
	return u, nil
}

// EnsureAdmin creates the bootstrap administrator or promotes and reactivates
// the existing account with that email.
func (s *Store) EnsureAdmin(ctx context.Context, fullName, email, passwordHash string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || passwordHash == "" {
		return nil
	}
	u, err := s.GetUserByEmail(ctx, email)
	if err == ErrNotFound {
		_, err = s.CreateUser(ctx, models.User{
			FullName:      fullName,
			Email:         email,
			PasswordHash:  passwordHash,
			Role:          models.RoleAdmin,
			IsActive:      true,
			EmailVerified: true,
		})
		return err
	}
	if err != nil {
		return err
	}
	_, err = s.Update(ctx, "users", Fields{
		"role":          models.RoleAdmin,
		"is_active":     true,
		"password_hash": passwordHash,
	}, "id=?", u.ID)
	return err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	u, err := scanUser(s.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email=?`, strings.ToLower(strings.TrimSpace(email))))
	if err == sql.ErrNoRows {
		return models.User{}, ErrNotFound
	}
	return u, err
}

func (s *Store) GetUserByID(ctx context.Context, id string) (models.User, error) {
	u, err := scanUser(s.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return models.User{}, ErrNotFound
	}
	return u, err
}

func (s *Store) TouchUserLastLogin(ctx context.Context, userID string, at time.Time) error {
	_, err := s.Update(ctx, "users", Fields{"last_login": at}, "id=?", userID)
	return err
}

// SetUserActive flips is_active and reports whether the row changed.
func (s *Store) SetUserActive(ctx context.Context, userID string, active bool) (bool, error) {
	n, err := s.Update(ctx, "users", Fields{"is_active": active}, "id=? AND is_active=?", userID, !active)
	return n > 0, err
}

func (s *Store) SetUserRole(ctx context.Context, userID, role string) (bool, error) {
	n, err := s.Update(ctx, "users", Fields{"role": role}, "id=? AND role<>?", userID, role)
	return n > 0, err
}

func (s *Store) ListUsers(ctx context.Context, q models.UserQuery) ([]models.User, int, error) {
	where := []string{"1=1"}
	var args []any
	if v := strings.TrimSpace(q.Q); v != "" {
		pat := "%" + escapeLike(strings.ToLower(v)) + "%"
		where = append(where, "(LOWER(full_name) LIKE ? ESCAPE '!' OR LOWER(email) LIKE ? ESCAPE '!')")
		args = append(args, pat, pat)
	}
	if q.Role != "" {
		where = append(where, "role=?")
		args = append(args, q.Role)
	}
	if q.Active != nil {
		where = append(where, "is_active=?")
		args = append(args, *q.Active)
	}
	cond := strings.Join(where, " AND ")
	total, err := s.count(ctx, `SELECT COUNT(1) FROM users WHERE `+cond, args...)
	if err != nil {
		return nil, 0, err
	}
	limit, offset := clampLimit(q.Limit, q.Offset)
	rows, err := s.query(ctx, `SELECT `+userColumns+` FROM users WHERE `+cond+` ORDER BY created_at DESC LIMIT ? OFFSET ?`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]models.User, 0, limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, u)
	}
	return out, total, rows.Err()
}

func (s *Store) CountUsers(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(1) FROM users`)
}

func (s *Store) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	_, err := s.Update(ctx, "users", Fields{"password_hash": hash}, "id=?", userID)
	return err
}
