package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"lostfound/internal/audit"
	"lostfound/internal/models"
	"lostfound/internal/notify"
	"lostfound/internal/security"
	"lostfound/internal/store"
)

const dateLayout = "2006-01-02"

type PostInput struct {
	Type          string
	Title         string
	Description   string
	Category      string
	Location      string
	DateLostFound string
	PhotoPath     string
}

// CreatePost validates in and stores a pending post owned by userID.
func (s *Service) CreatePost(ctx context.Context, userID string, in PostInput) (models.Post, security.Violations, error) {
	p := models.Post{
		UserID:      userID,
		Type:        models.PostType(strings.ToLower(strings.TrimSpace(in.Type))),
		Title:       security.SanitizeString(in.Title),
		Description: security.SanitizeString(in.Description),
		Category:    security.SanitizeString(in.Category),
		Location:    security.SanitizeString(in.Location),
	}

	var v security.Violations
	if !p.Type.Valid() {
		v = append(v, "Type must be lost or found.")
	}
	v = required(v, p.Title, "Title", 200)
	v = required(v, p.Description, "Description", 5000)
	v = required(v, p.Location, "Location", 200)
	if p.Category == "" {
		v = append(v, "Category is required.")
	} else {
		c, err := s.st.GetCategoryByName(ctx, p.Category)
		switch {
		case errors.Is(err, store.ErrNotFound) || (err == nil && !c.IsActive):
			v = append(v, "Category is not available.")
		case err != nil:
			return models.Post{}, nil, err
		}
	}
	when, err := time.Parse(dateLayout, strings.TrimSpace(in.DateLostFound))
	if err != nil {
		v = append(v, "Date must be in YYYY-MM-DD format.")
	} else if when.After(s.now()) {
		v = append(v, "Date cannot be in the future.")
	}
	if !v.OK() {
		return models.Post{}, v, nil
	}

	p.DateLostFound = when
	if in.PhotoPath != "" {
		photo := in.PhotoPath
		p.PhotoPath = &photo
	}
	p, err = s.st.CreatePost(ctx, p)
	if err != nil {
		return models.Post{}, nil, err
	}
	s.audit.Log(ctx, audit.Entry{
		UserID:       userID,
		Action:       "post.create",
		ResourceType: audit.ResourcePosts,
		ResourceID:   p.ID,
		Details:      map[string]any{"title": p.Title, "type": string(p.Type)},
	})
	return p, nil, nil
}

func (s *Service) requireAdmin(ctx context.Context, adminID string) (models.User, error) {
	u, err := s.st.GetUserByID(ctx, adminID)
	if errors.Is(err, store.ErrNotFound) {
		return models.User{}, ErrForbidden
	}
	if err != nil {
		return models.User{}, err
	}
	if !u.IsAdmin() || !u.IsActive {
		return models.User{}, ErrForbidden
	}
	return u, nil
}

// ApprovePost is valid only from pending. It reports whether a row changed,
// so a second approval or an approval of a rejected post returns false.
func (s *Service) ApprovePost(ctx context.Context, postID, adminID string) (bool, error) {
	if _, err := s.requireAdmin(ctx, adminID); err != nil {
		return false, err
	}
	changed, err := s.st.ApprovePost(ctx, postID, adminID, s.now())
	if err != nil || !changed {
		return false, err
	}
	s.audit.Log(ctx, audit.Entry{
		UserID:       adminID,
		Action:       "post.approve",
		ResourceType: audit.ResourcePosts,
		ResourceID:   postID,
	})
	return true, nil
}

func (s *Service) RejectPost(ctx context.Context, postID, adminID, reason string) (bool, error) {
	if _, err := s.requireAdmin(ctx, adminID); err != nil {
		return false, err
	}
	reason = security.SanitizeString(reason)
	changed, err := s.st.RejectPost(ctx, postID, adminID, reason, s.now())
	if err != nil || !changed {
		return false, err
	}
	s.audit.Log(ctx, audit.Entry{
		UserID:       adminID,
		Action:       "post.reject",
		ResourceType: audit.ResourcePosts,
		ResourceID:   postID,
		Details:      map[string]any{"reason": reason},
	})
	return true, nil
}

// ResolvePost is valid only from approved and only for the owner or an admin.
func (s *Service) ResolvePost(ctx context.Context, postID string, actor models.User) (bool, error) {
	ownerID := actor.ID
	if actor.IsAdmin() {
		ownerID = ""
	}
	changed, err := s.st.ResolvePost(ctx, postID, ownerID, s.now())
	if err != nil {
		return false, err
	}
	if !changed {
		p, err := s.st.GetPost(ctx, postID)
		if err != nil {
			return false, err
		}
		if !actor.IsAdmin() && p.UserID != actor.ID {
			return false, ErrForbidden
		}
		return false, nil
	}
	if actor.IsAdmin() {
		s.audit.Log(ctx, audit.Entry{
			UserID:       actor.ID,
			Action:       "post.resolve",
			ResourceType: audit.ResourcePosts,
			ResourceID:   postID,
		})
	}
	return true, nil
}

// DeletePost removes a post. Admins may delete any post; owners only while it
// is pending or rejected. The stored photo is removed after the row.
func (s *Service) DeletePost(ctx context.Context, postID string, actor models.User) (bool, error) {
	p, err := s.st.GetPost(ctx, postID)
	if err != nil {
		return false, err
	}
	var deleted bool
	switch {
	case actor.IsAdmin():
		deleted, err = s.st.DeletePost(ctx, postID)
	case p.UserID == actor.ID:
		deleted, err = s.st.DeleteOwnPost(ctx, postID, actor.ID)
	default:
		return false, ErrForbidden
	}
	if err != nil || !deleted {
		return false, err
	}
	if p.PhotoPath != nil {
		if err := security.RemoveUpload(s.cfg.Upload.Dir, *p.PhotoPath); err != nil {
			s.log.Warn("photo removal failed", zap.String("post_id", postID), zap.Error(err))
		}
	}
	if actor.IsAdmin() {
		s.audit.Log(ctx, audit.Entry{
			UserID:       actor.ID,
			Action:       "post.delete",
			ResourceType: audit.ResourcePosts,
			ResourceID:   postID,
			Details:      map[string]any{"title": p.Title, "status": string(p.Status)},
		})
	}
	return true, nil
}

// SearchPosts is the public board: only approved posts are ever returned.
func (s *Service) SearchPosts(ctx context.Context, f models.PostFilter) ([]models.Post, int, error) {
	f = storedForm(f)
	f.Status = models.PostApproved
	f.OwnerID = ""
	return s.st.SearchPosts(ctx, f)
}

// AdminListPosts lists posts in any status, typically the pending queue.
func (s *Service) AdminListPosts(ctx context.Context, f models.PostFilter) ([]models.Post, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, fmt.Errorf("invalid status %q", f.Status)
	}
	return s.st.SearchPosts(ctx, storedForm(f))
}

// storedForm escapes the text filters the same way post fields are escaped
// on write, so "Mike's" matches a stored "Mike&#39;s".
func storedForm(f models.PostFilter) models.PostFilter {
	f.Query = security.SanitizeString(f.Query)
	f.Category = security.SanitizeString(f.Category)
	return f
}

func (s *Service) ListUserPosts(ctx context.Context, userID string, limit, offset int) ([]models.Post, int, error) {
	return s.st.SearchPosts(ctx, models.PostFilter{OwnerID: userID, Limit: limit, Offset: offset})
}

// GetPost hides posts that are not approved from everyone but their owner
// and admins. viewer may be nil for anonymous requests.
func (s *Service) GetPost(ctx context.Context, id string, viewer *models.User) (models.Post, error) {
	p, err := s.st.GetPost(ctx, id)
	if err != nil {
		return models.Post{}, err
	}
	if p.Status == models.PostApproved {
		return p, nil
	}
	if viewer != nil && (viewer.IsAdmin() || viewer.ID == p.UserID) {
		return p, nil
	}
	return models.Post{}, ErrNotFound
}

func (s *Service) Stats(ctx context.Context) (models.PostStats, error) {
	counts, err := s.st.CountPostsByStatus(ctx)
	if err != nil {
		return models.PostStats{}, err
	}
	users, err := s.st.CountUsers(ctx)
	if err != nil {
		return models.PostStats{}, err
	}
	return models.PostStats{
		Pending:  counts[models.PostPending],
		Approved: counts[models.PostApproved],
		Rejected: counts[models.PostRejected],
		Resolved: counts[models.PostResolved],
		Users:    users,
	}, nil
}

// ContactOwner relays a message from sender to the owner of an approved post.
// Delivery failures are logged and do not fail the request.
func (s *Service) ContactOwner(ctx context.Context, postID string, sender models.User, message string) (security.Violations, error) {
	message = strings.TrimSpace(message)
	var v security.Violations
	v = required(v, message, "Message", 2000)
	if !v.OK() {
		return v, nil
	}
	p, err := s.GetPost(ctx, postID, &sender)
	if err != nil {
		return nil, err
	}
	if p.Status != models.PostApproved {
		return security.Violations{"Only approved posts can be contacted."}, nil
	}
	if p.UserID == sender.ID {
		return security.Violations{"You cannot contact yourself."}, nil
	}
	ok, err := s.sec.CheckRule(ctx, "user:"+sender.ID, "contact")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRateLimited
	}
	owner, err := s.st.GetUserByID(ctx, p.UserID)
	if err != nil {
		return nil, err
	}

	msg := notify.ContactMessage{
		PostID:      p.ID,
		PostTitle:   p.Title,
		OwnerName:   owner.FullName,
		OwnerEmail:  owner.Email,
		SenderName:  sender.FullName,
		SenderEmail: sender.Email,
		Body:        message,
	}
	if base := strings.TrimRight(s.cfg.BaseURL, "/"); base != "" {
		msg.PostURL = base + "/posts/" + p.ID
	}
	if err := s.sender.SendContact(ctx, msg); err != nil {
		s.log.Error("contact delivery failed", zap.String("post_id", p.ID), zap.String("sender_id", sender.ID), zap.Error(err))
	}
	s.audit.Log(ctx, audit.Entry{
		UserID:       sender.ID,
		Action:       "contact.send",
		ResourceType: audit.ResourcePosts,
		ResourceID:   p.ID,
		Details:      map[string]any{"title": p.Title},
	})
	return nil, nil
}
