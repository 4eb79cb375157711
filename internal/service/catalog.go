package service

import (
	"context"
	"errors"
	"strings"

	"lostfound/internal/audit"
	"lostfound/internal/models"
	"lostfound/internal/security"
	"lostfound/internal/store"
)

type CategoryInput struct {
	Name        string
	Description string
	Icon        string
	SortOrder   int
}

func (in CategoryInput) clean() (models.Category, security.Violations) {
	c := models.Category{
		Name:        security.SanitizeString(in.Name),
		Description: security.SanitizeString(in.Description),
		Icon:        strings.TrimSpace(in.Icon),
		SortOrder:   in.SortOrder,
		IsActive:    true,
	}
	var v security.Violations
	v = required(v, c.Name, "Name", 100)
	if len(c.Icon) > 64 {
		v = append(v, "Icon must be at most 64 characters.")
	}
	return c, v
}

func (s *Service) ListCategories(ctx context.Context, activeOnly bool) ([]models.Category, error) {
	return s.st.ListCategories(ctx, activeOnly)
}

func (s *Service) CreateCategory(ctx context.Context, admin models.User, in CategoryInput) (models.Category, security.Violations, error) {
	if !admin.IsAdmin() {
		return models.Category{}, nil, ErrForbidden
	}
	c, v := in.clean()
	if !v.OK() {
		return models.Category{}, v, nil
	}
	c, err := s.st.CreateCategory(ctx, c)
	if errors.Is(err, store.ErrConflict) {
		return models.Category{}, security.Violations{"A category with this name already exists."}, nil
	}
	if err != nil {
		return models.Category{}, nil, err
	}
	s.audit.Log(ctx, audit.Entry{UserID: admin.ID, Action: "category.create", ResourceType: audit.ResourceCategories, ResourceID: c.ID, Details: map[string]any{"name": c.Name}})
	return c, nil, nil
}

func (s *Service) UpdateCategory(ctx context.Context, admin models.User, id string, in CategoryInput) (models.Category, security.Violations, error) {
	if !admin.IsAdmin() {
		return models.Category{}, nil, ErrForbidden
	}
	c, v := in.clean()
	if !v.OK() {
		return models.Category{}, v, nil
	}
	current, err := s.st.GetCategory(ctx, id)
	if err != nil {
		return models.Category{}, nil, err
	}
	c.ID = id
	c.IsActive = current.IsActive
	err = s.st.UpdateCategory(ctx, c)
	if errors.Is(err, store.ErrConflict) {
		return models.Category{}, security.Violations{"A category with this name already exists."}, nil
	}
	if err != nil {
		return models.Category{}, nil, err
	}
	s.audit.Log(ctx, audit.Entry{UserID: admin.ID, Action: "category.update", ResourceType: audit.ResourceCategories, ResourceID: id, Details: map[string]any{"name": c.Name}})
	return c, nil, nil
}

// ToggleCategory flips whether the category is offered for new posts and
// returns the new state.
func (s *Service) ToggleCategory(ctx context.Context, admin models.User, id string) (bool, error) {
	if !admin.IsAdmin() {
		return false, ErrForbidden
	}
	active, err := s.st.ToggleCategory(ctx, id)
	if err != nil {
		return false, err
	}
	name := id
	if c, err := s.st.GetCategory(ctx, id); err == nil {
		name = c.Name
	}
	s.audit.Log(ctx, audit.Entry{UserID: admin.ID, Action: "category.toggle", ResourceType: audit.ResourceCategories, ResourceID: id, Details: map[string]any{"name": name, "active": active}})
	return active, nil
}

type AnnouncementInput struct {
	Title    string
	Content  string
	Type     string
	IsActive bool
}

func (in AnnouncementInput) clean() (models.Announcement, security.Violations) {
	a := models.Announcement{
		Title:    security.SanitizeString(in.Title),
		Content:  security.SanitizeString(in.Content),
		Type:     models.AnnouncementType(strings.ToLower(strings.TrimSpace(in.Type))),
		IsActive: in.IsActive,
	}
	if a.Type == "" {
		a.Type = models.AnnouncementInfo
	}
	var v security.Violations
	v = required(v, a.Title, "Title", 200)
	v = required(v, a.Content, "Content", 5000)
	if !a.Type.Valid() {
		v = append(v, "Type must be one of info, success, warning, danger.")
	}
	return a, v
}

func (s *Service) ListAnnouncements(ctx context.Context, activeOnly bool) ([]models.Announcement, error) {
	return s.st.ListAnnouncements(ctx, activeOnly)
}

func (s *Service) CreateAnnouncement(ctx context.Context, admin models.User, in AnnouncementInput) (models.Announcement, security.Violations, error) {
	if !admin.IsAdmin() {
		return models.Announcement{}, nil, ErrForbidden
	}
	a, v := in.clean()
	if !v.OK() {
		return models.Announcement{}, v, nil
	}
	a.CreatedBy = admin.ID
	a, err := s.st.CreateAnnouncement(ctx, a)
	if err != nil {
		return models.Announcement{}, nil, err
	}
	s.audit.Log(ctx, audit.Entry{UserID: admin.ID, Action: "announcement.create", ResourceType: audit.ResourceAnnouncements, ResourceID: a.ID, Details: map[string]any{"title": a.Title}})
	return a, nil, nil
}

func (s *Service) UpdateAnnouncement(ctx context.Context, admin models.User, id string, in AnnouncementInput) (models.Announcement, security.Violations, error) {
	if !admin.IsAdmin() {
		return models.Announcement{}, nil, ErrForbidden
	}
	a, v := in.clean()
	if !v.OK() {
		return models.Announcement{}, v, nil
	}
	a.ID = id
	if err := s.st.UpdateAnnouncement(ctx, a); err != nil {
		return models.Announcement{}, nil, err
	}
	a, err := s.st.GetAnnouncement(ctx, id)
	if err != nil {
		return models.Announcement{}, nil, err
	}
	s.audit.Log(ctx, audit.Entry{UserID: admin.ID, Action: "announcement.update", ResourceType: audit.ResourceAnnouncements, ResourceID: id, Details: map[string]any{"title": a.Title}})
	return a, nil, nil
}

func (s *Service) DeleteAnnouncement(ctx context.Context, admin models.User, id string) (bool, error) {
	if !admin.IsAdmin() {
		return false, ErrForbidden
	}
	a, err := s.st.GetAnnouncement(ctx, id)
	if err != nil {
		return false, err
	}
	deleted, err := s.st.DeleteAnnouncement(ctx, id)
	if err != nil || !deleted {
		return false, err
	}
	s.audit.Log(ctx, audit.Entry{UserID: admin.ID, Action: "announcement.delete", ResourceType: audit.ResourceAnnouncements, ResourceID: id, Details: map[string]any{"title": a.Title}})
	return true, nil
}
