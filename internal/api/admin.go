package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"lostfound/internal/middleware"
	"lostfound/internal/models"
	"lostfound/internal/service"
	"lostfound/internal/util"
)

func (h *Handlers) AdminListPosts(w http.ResponseWriter, r *http.Request) {
	f, page, pageSize, err := postFilter(r)
	if err != nil {
		h.badRequest(w, r, err.Error())
		return
	}
	f.Status = models.PostStatus(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status"))))
	if f.Status != "" && !f.Status.Valid() {
		h.badRequest(w, r, "unknown status")
		return
	}
	items, total, err := h.svc.AdminListPosts(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	util.WriteJSON(w, 200, pageResponse{Items: items, Total: total, Page: page, PageSize: pageSize})
}

func (h *Handlers) AdminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	util.WriteJSON(w, 200, stats)
}

func (h *Handlers) AdminApprovePost(w http.ResponseWriter, r *http.Request) {
	admin, _ := middleware.User(r.Context())
	changed, err := h.svc.ApprovePost(r.Context(), chi.URLParam(r, "id"), admin.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !changed {
		h.unchanged(w, r, "only pending posts can be approved")
		return
	}
	util.WriteJSON(w, 200, map[string]string{"status": string(models.PostApproved)})
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handlers) AdminRejectPost(w http.ResponseWriter, r *http.Request) {
	admin, _ := middleware.User(r.Context())
	var req rejectRequest
	if r.ContentLength != 0 {
		if err := util.DecodeJSON(r, &req); err != nil {
			h.badRequest(w, r, "invalid json")
			return
		}
	}
	changed, err := h.svc.RejectPost(r.Context(), chi.URLParam(r, "id"), admin.ID, req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !changed {
		h.unchanged(w, r, "only pending posts can be rejected")
		return
	}
	util.WriteJSON(w, 200, map[string]string{"status": string(models.PostRejected)})
}

func (h *Handlers) AdminListUsers(w http.ResponseWriter, r *http.Request) {
	page, pageSize, offset := util.Pagination(r)
	q := models.UserQuery{
		Q:      strings.TrimSpace(r.URL.Query().Get("q")),
		Role:   strings.TrimSpace(r.URL.Query().Get("role")),
		Limit:  pageSize,
		Offset: offset,
	}
	if v := r.URL.Query().Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			h.badRequest(w, r, "active must be true or false")
			return
		}
		q.Active = &active
	}
	items, total, err := h.svc.ListUsers(r.Context(), q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	util.WriteJSON(w, 200, pageResponse{Items: items, Total: total, Page: page, PageSize: pageSize})
}

func (h *Handlers) AdminSetUserActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		admin, _ := middleware.User(r.Context())
		changed, err := h.svc.SetUserActive(r.Context(), admin, chi.URLParam(r, "id"), active)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		util.WriteJSON(w, 200, map[string]bool{"changed": changed, "is_active": active})
	}
}

func (h *Handlers) AdminSetUserRole(role string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		admin, _ := middleware.User(r.Context())
		changed, err := h.svc.SetUserRole(r.Context(), admin, chi.URLParam(r, "id"), role)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		util.WriteJSON(w, 200, map[string]any{"changed": changed, "role": role})
	}
}

func (h *Handlers) AdminListCategories(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListCategories(r.Context(), false)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	util.WriteJSON(w, 200, map[string]any{"items": items})
}

type categoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	SortOrder   int    `json:"sort_order"`
}

func (req categoryRequest) input() service.CategoryInput {
	return service.CategoryInput{Name: req.Name, Description: req.Description, Icon: req.Icon, SortOrder: req.SortOrder}
}

func (h *Handlers) AdminCreateCategory(w http.ResponseWriter, r *http.Request) {
	admin, _ := middleware.User(r.Context())
	var req categoryRequest
	if err := util.DecodeJSON(r, &req); err != nil {
		h.badRequest(w, r, "invalid json")
		return
	}
	c, v, err := h.svc.CreateCategory(r.Context(), admin, req.input())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !v.OK() {
		h.violations(w, r, v)
		return
	}
	util.WriteJSON(w, http.StatusCreated, c)
}

func (h *Handlers) AdminUpdateCategory(w http.ResponseWriter, r *http.Request) {
	admin, _ := middleware.User(r.Context())
	var req categoryRequest
	if err := util.DecodeJSON(r, &req); err != nil {
		h.badRequest(w, r, "invalid json")
		return
	}
	c, v, err := h.svc.UpdateCategory(r.Context(), admin, chi.URLParam(r, "id"), req.input())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !v.OK() {
		h.violations(w, r, v)
		return
	}
	util.WriteJSON(w, 200, c)
}

func (h *Handlers) AdminToggleCategory(w http.ResponseWriter, r *http.Request) {
	admin, _ := middleware.User(r.Context())
	active, err := h.svc.ToggleCategory(r.Context(), admin, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	util.WriteJSON(w, 200, map[string]bool{"is_active": active})
}

func (h *Handlers) AdminListAnnouncements(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListAnnouncements(r.Context(), false)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	util.WriteJSON(w, 200, map[string]any{"items": items})
}

type announcementRequest struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Type     string `json:"type"`
	IsActive *bool  `json:"is_active"`
}

func (req announcementRequest) input() service.AnnouncementInput {
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return service.AnnouncementInput{Title: req.Title, Content: req.Content, Type: req.Type, IsActive: active}
}

func (h *Handlers) AdminCreateAnnouncement(w http.ResponseWriter, r *http.Request) {
	admin, _ := middleware.User(r.Context())
	var req announcementRequest
	if err := util.DecodeJSON(r, &req); err != nil {
		h.badRequest(w, r, "invalid json")
		return
	}
	a, v, err := h.svc.CreateAnnouncement(r.Context(), admin, req.input())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !v.OK() {
		h.violations(w, r, v)
		return
	}
	util.WriteJSON(w, http.StatusCreated, a)
}

func (h *Handlers) AdminUpdateAnnouncement(w http.ResponseWriter, r *http.Request) {
	admin, _ := middleware.User(r.Context())
	var req announcementRequest
	if err := util.DecodeJSON(r, &req); err != nil {
		h.badRequest(w, r, "invalid json")
		return
	}
	a, v, err := h.svc.UpdateAnnouncement(r.Context(), admin, chi.URLParam(r, "id"), req.input())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !v.OK() {
		h.violations(w, r, v)
		return
	}
	util.WriteJSON(w, 200, a)
}

func (h *Handlers) AdminDeleteAnnouncement(w http.ResponseWriter, r *http.Request) {
	admin, _ := middleware.User(r.Context())
	deleted, err := h.svc.DeleteAnnouncement(r.Context(), admin, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !deleted {
		h.fail(w, r, service.ErrNotFound)
		return
	}
	util.WriteJSON(w, 200, map[string]string{"status": "deleted"})
}

func (h *Handlers) AdminAuditLog(w http.ResponseWriter, r *http.Request) {
	page, pageSize, offset := util.Pagination(r)
	q := r.URL.Query()
	items, total, err := h.svc.Audit().List(r.Context(), models.AuditQuery{
		Action:       strings.TrimSpace(q.Get("action")),
		UserID:       strings.TrimSpace(q.Get("user_id")),
		ResourceType: strings.TrimSpace(q.Get("resource_type")),
		Limit:        pageSize,
		Offset:       offset,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	util.WriteJSON(w, 200, pageResponse{Items: items, Total: total, Page: page, PageSize: pageSize})
}
