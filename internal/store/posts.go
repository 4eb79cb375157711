package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"lostfound/internal/models"
)

const postColumns = `p.id,p.user_id,p.type,p.title,p.description,p.category,p.location,p.date_lost_found,p.photo_path,p.status,p.approved_by,p.approved_at,p.rejection_reason,p.is_resolved,p.resolved_at,p.created_at,COALESCE(u.full_name,'')`

const postFrom = ` FROM posts p LEFT JOIN users u ON u.id=p.user_id`

func scanPost(row interface{ Scan(...any) error }) (models.Post, error) {
	var (
		p                      models.Post
		photo, approvedBy, rej sql.NullString
		approvedAt, resolvedAt sql.NullTime
	)
	if err := row.Scan(
		&p.ID, &p.UserID, &p.Type, &p.Title, &p.Description, &p.Category, &p.Location,
		&p.DateLostFound, &photo, &p.Status, &approvedBy, &approvedAt, &rej,
		&p.IsResolved, &resolvedAt, &p.CreatedAt, &p.OwnerName,
	); err != nil {
		return models.Post{}, err
	}
	p.PhotoPath = strPtr(photo)
	p.ApprovedBy = strPtr(approvedBy)
	p.ApprovedAt = timePtr(approvedAt)
	p.RejectionReason = strPtr(rej)
	p.ResolvedAt = timePtr(resolvedAt)
	return p, nil
}

// CreatePost inserts p as pending regardless of the status it carries.
func (s *Store) CreatePost(ctx context.Context, p models.Post) (models.Post, error) {
	p.Status = models.PostPending
	p.IsResolved = false
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	id, err := s.Insert(ctx, "posts", Fields{
		"id":              p.ID,
		"user_id":         p.UserID,
		"type":            string(p.Type),
		"title":           p.Title,
		"description":     p.Description,
		"category":        p.Category,
		"location":        p.Location,
		"date_lost_found": p.DateLostFound.UTC(),
		"photo_path":      nullString(p.PhotoPath),
		"status":          string(p.Status),
		"is_resolved":     false,
		"created_at":      p.CreatedAt,
	})
	if err != nil {
		return models.Post{}, err
	}
	p.ID = id
	return p, nil
}

func (s *Store) GetPost(ctx context.Context, id string) (models.Post, error) {
	p, err := scanPost(s.queryRow(ctx, `SELECT `+postColumns+postFrom+` WHERE p.id=?`, id))
	if err == sql.ErrNoRows {
		return models.Post{}, ErrNotFound
	}
	return p, err
}

// ApprovePost moves a pending post to approved in one conditional write.
// It reports false when the post is missing or no longer pending.
func (s *Store) ApprovePost(ctx context.Context, id, adminID string, at time.Time) (bool, error) {
	n, err := s.Update(ctx, "posts", Fields{
		"status":      string(models.PostApproved),
		"approved_by": adminID,
		"approved_at": at.UTC(),
	}, "id=? AND status=?", id, string(models.PostPending))
	return n > 0, err
}

func (s *Store) RejectPost(ctx context.Context, id, adminID, reason string, at time.Time) (bool, error) {
	n, err := s.Update(ctx, "posts", Fields{
		"status":           string(models.PostRejected),
		"approved_by":      adminID,
		"approved_at":      at.UTC(),
		"rejection_reason": reason,
	}, "id=? AND status=?", id, string(models.PostPending))
	return n > 0, err
}

// ResolvePost is valid only from approved. ownerID restricts the write to the
// owner's row; pass "" for admin resolution.
func (s *Store) ResolvePost(ctx context.Context, id, ownerID string, at time.Time) (bool, error) {
	where := "id=? AND status=? AND is_resolved=?"
	args := []any{id, string(models.PostApproved), false}
	if ownerID != "" {
		where += " AND user_id=?"
		args = append(args, ownerID)
	}
	n, err := s.Update(ctx, "posts", Fields{
		"status":      string(models.PostResolved),
		"is_resolved": true,
		"resolved_at": at.UTC(),
	}, where, args...)
	return n > 0, err
}

func (s *Store) DeletePost(ctx context.Context, id string) (bool, error) {
	n, err := s.Delete(ctx, "posts", "id=?", id)
	return n > 0, err
}

// DeleteOwnPost removes the owner's post only while it is pending or rejected.
func (s *Store) DeleteOwnPost(ctx context.Context, id, ownerID string) (bool, error) {
	n, err := s.Delete(ctx, "posts", "id=? AND user_id=? AND status IN (?,?)",
		id, ownerID, string(models.PostPending), string(models.PostRejected))
	return n > 0, err
}

// SearchPosts ANDs every non-empty filter field. The date range is inclusive
// on whole days.
func (s *Store) SearchPosts(ctx context.Context, f models.PostFilter) ([]models.Post, int, error) {
	where := []string{"1=1"}
	var args []any
	if f.Status != "" {
		where = append(where, "p.status=?")
		args = append(args, string(f.Status))
	}
	if f.Type != "" {
		where = append(where, "p.type=?")
		args = append(args, string(f.Type))
	}
	if f.Category != "" {
		where = append(where, "p.category=?")
		args = append(args, f.Category)
	}
	if f.OwnerID != "" {
		where = append(where, "p.user_id=?")
		args = append(args, f.OwnerID)
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		pat := "%" + escapeLike(strings.ToLower(q)) + "%"
		where = append(where, "(LOWER(p.title) LIKE ? ESCAPE '!' OR LOWER(p.description) LIKE ? ESCAPE '!' OR LOWER(p.location) LIKE ? ESCAPE '!')")
		args = append(args, pat, pat, pat)
	}
	if f.From != nil {
		where = append(where, "p.date_lost_found>=?")
		args = append(args, dayStart(*f.From))
	}
	if f.To != nil {
		where = append(where, "p.date_lost_found<?")
		args = append(args, dayStart(*f.To).Add(24*time.Hour))
	}
	cond := strings.Join(where, " AND ")

	total, err := s.count(ctx, `SELECT COUNT(1) FROM posts p WHERE `+cond, args...)
	if err != nil {
		return nil, 0, err
	}
	limit, offset := clampLimit(f.Limit, f.Offset)
	rows, err := s.query(ctx, `SELECT `+postColumns+postFrom+` WHERE `+cond+` ORDER BY p.created_at DESC, p.id LIMIT ? OFFSET ?`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]models.Post, 0, limit)
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func (s *Store) CountPostsByStatus(ctx context.Context) (map[models.PostStatus]int, error) {
	rows, err := s.query(ctx, `SELECT status, COUNT(1) FROM posts GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[models.PostStatus]int{}
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		out[models.PostStatus(st)] = n
	}
	return out, rows.Err()
}

func dayStart(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ReferencedPhotos returns the set of photo file names some post still uses.
func (s *Store) ReferencedPhotos(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.query(ctx, `SELECT photo_path FROM posts WHERE photo_path IS NOT NULL AND photo_path<>''`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]struct{}{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out[name] = struct{}{}
	}
	return out, rows.Err()
}
