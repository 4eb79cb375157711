package store

import (
	"context"
	"database/sql"
	"time"

	"lostfound/internal/models"
)

const categoryColumns = `id,name,description,icon,sort_order,is_active`

func scanCategory(row interface{ Scan(...any) error }) (models.Category, error) {
	var c models.Category
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.Icon, &c.SortOrder, &c.IsActive)
	return c, err
}

func (s *Store) CreateCategory(ctx context.Context, c models.Category) (models.Category, error) {
	id, err := s.Insert(ctx, "categories", Fields{
		"id":          c.ID,
		"name":        c.Name,
		"description": c.Description,
		"icon":        c.Icon,
		"sort_order":  c.SortOrder,
		"is_active":   c.IsActive,
	})
	if err != nil {
		return models.Category{}, err
	}
	c.ID = id
	return c, nil
}

func (s *Store) UpdateCategory(ctx context.Context, c models.Category) error {
	n, err := s.Update(ctx, "categories", Fields{
		"name":        c.Name,
		"description": c.Description,
		"icon":        c.Icon,
		"sort_order":  c.SortOrder,
	}, "id=?", c.ID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ToggleCategory flips is_active and returns the new value.
func (s *Store) ToggleCategory(ctx context.Context, id string) (bool, error) {
	c, err := s.GetCategory(ctx, id)
	if err != nil {
		return false, err
	}
	if _, err := s.Update(ctx, "categories", Fields{"is_active": !c.IsActive}, "id=? AND is_active=?", id, c.IsActive); err != nil {
		return false, err
	}
	return !c.IsActive, nil
}

func (s *Store) GetCategory(ctx context.Context, id string) (models.Category, error) {
	c, err := scanCategory(s.queryRow(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return models.Category{}, ErrNotFound
	}
	return c, err
}

func (s *Store) GetCategoryByName(ctx context.Context, name string) (models.Category, error) {
	c, err := scanCategory(s.queryRow(ctx, `SELECT `+categoryColumns+` FROM categories WHERE name=?`, name))
	if err == sql.ErrNoRows {
		return models.Category{}, ErrNotFound
	}
	return c, err
}

func (s *Store) ListCategories(ctx context.Context, activeOnly bool) ([]models.Category, error) {
	q := `SELECT ` + categoryColumns + ` FROM categories`
	var args []any
	if activeOnly {
		q += ` WHERE is_active=?`
		args = append(args, true)
	}
	rows, err := s.query(ctx, q+` ORDER BY sort_order, name`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const announcementColumns = `id,title,content,type,is_active,created_by,created_at,updated_at`

func scanAnnouncement(row interface{ Scan(...any) error }) (models.Announcement, error) {
	var a models.Announcement
	err := row.Scan(&a.ID, &a.Title, &a.Content, &a.Type, &a.IsActive, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (s *Store) CreateAnnouncement(ctx context.Context, a models.Announcement) (models.Announcement, error) {
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	id, err := s.Insert(ctx, "announcements", Fields{
		"id":         a.ID,
		"title":      a.Title,
		"content":    a.Content,
		"type":       string(a.Type),
		"is_active":  a.IsActive,
		"created_by": a.CreatedBy,
		"created_at": a.CreatedAt,
		"updated_at": a.UpdatedAt,
	})
	if err != nil {
		return models.Announcement{}, err
	}
	a.ID = id
	return a, nil
}

func (s *Store) UpdateAnnouncement(ctx context.Context, a models.Announcement) error {
	n, err := s.Update(ctx, "announcements", Fields{
		"title":      a.Title,
		"content":    a.Content,
		"type":       string(a.Type),
		"is_active":  a.IsActive,
		"updated_at": time.Now().UTC(),
	}, "id=?", a.ID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteAnnouncement(ctx context.Context, id string) (bool, error) {
	n, err := s.Delete(ctx, "announcements", "id=?", id)
	return n > 0, err
}

func (s *Store) GetAnnouncement(ctx context.Context, id string) (models.Announcement, error) {
	a, err := scanAnnouncement(s.queryRow(ctx, `SELECT `+announcementColumns+` FROM announcements WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return models.Announcement{}, ErrNotFound
	}
	return a, err
}

func (s *Store) ListAnnouncements(ctx context.Context, activeOnly bool) ([]models.Announcement, error) {
	q := `SELECT ` + announcementColumns + ` FROM announcements`
	var args []any
	if activeOnly {
		q += ` WHERE is_active=?`
		args = append(args, true)
	}
	rows, err := s.query(ctx, q+` ORDER BY created_at DESC, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Announcement
	for rows.Next() {
		a, err := scanAnnouncement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
