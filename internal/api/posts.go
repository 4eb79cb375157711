package api

import (
	"errors"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"lostfound/internal/middleware"
	"lostfound/internal/models"
	"lostfound/internal/security"
	"lostfound/internal/service"
	"lostfound/internal/util"
)

func (h *Handlers) ListPosts(w http.ResponseWriter, r *http.Request) {
	f, page, pageSize, err := postFilter(r)
	if err != nil {
		h.badRequest(w, r, err.Error())
		return
	}
	items, total, err := h.svc.SearchPosts(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	util.WriteJSON(w, 200, pageResponse{Items: items, Total: total, Page: page, PageSize: pageSize})
}

func (h *Handlers) GetPost(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.GetPost(r.Context(), chi.URLParam(r, "id"), h.viewer(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	util.WriteJSON(w, 200, p)
}

func (h *Handlers) MyPosts(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.User(r.Context())
	page, pageSize, offset := util.Pagination(r)
	items, total, err := h.svc.ListUserPosts(r.Context(), u.ID, pageSize, offset)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	util.WriteJSON(w, 200, pageResponse{Items: items, Total: total, Page: page, PageSize: pageSize})
}

type postRequest struct {
	Type          string `json:"type"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	Category      string `json:"category"`
	Location      string `json:"location"`
	DateLostFound string `json:"date_lost_found"`
}

// CreatePost accepts a multipart form with an optional "photo" file, or a
// JSON body without one.
func (h *Handlers) CreatePost(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.User(r.Context())
	var in service.PostInput
	var photo string

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req postRequest
		if err := util.DecodeJSON(r, &req); err != nil {
			h.badRequest(w, r, "invalid json")
			return
		}
		in = service.PostInput{
			Type:          req.Type,
			Title:         req.Title,
			Description:   req.Description,
			Category:      req.Category,
			Location:      req.Location,
			DateLostFound: req.DateLostFound,
		}
	} else {
		if err := r.ParseMultipartForm(h.cfg.Upload.MaxBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			h.badRequest(w, r, "invalid form")
			return
		}
		in = service.PostInput{
			Type:          r.FormValue("type"),
			Title:         r.FormValue("title"),
			Description:   r.FormValue("description"),
			Category:      r.FormValue("category"),
			Location:      r.FormValue("location"),
			DateLostFound: r.FormValue("date_lost_found"),
		}
	}

	if h.rateLimited(w, r, "post", "ip:"+middleware.ClientIPFrom(r.Context())) {
		return
	}

	if r.MultipartForm != nil && len(r.MultipartForm.File["photo"]) > 0 {
		res, err := h.svc.Security().HandleFileUpload(r.MultipartForm.File["photo"][0], h.cfg.Upload.Dir)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if !res.OK {
			h.violations(w, r, []string{res.Error})
			return
		}
		photo = res.Filename
		in.PhotoPath = photo
	}

	p, v, err := h.svc.CreatePost(r.Context(), u.ID, in)
	if err != nil || !v.OK() {
		if photo != "" {
			if rmErr := security.RemoveUpload(h.cfg.Upload.Dir, photo); rmErr != nil {
				h.log.Warn("discard upload failed", zap.String("file", photo), zap.Error(rmErr))
			}
		}
		if err != nil {
			h.fail(w, r, err)
			return
		}
		h.violations(w, r, v)
		return
	}
	util.WriteJSON(w, http.StatusCreated, p)
}

// ResolvePost serves both the owner route and the admin route; the service
// decides which of the two the actor may use.
func (h *Handlers) ResolvePost(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.User(r.Context())
	changed, err := h.svc.ResolvePost(r.Context(), chi.URLParam(r, "id"), u)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !changed {
		h.unchanged(w, r, "only approved, unresolved posts can be resolved")
		return
	}
	util.WriteJSON(w, 200, map[string]string{"status": string(models.PostResolved)})
}

func (h *Handlers) DeletePost(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.User(r.Context())
	deleted, err := h.svc.DeletePost(r.Context(), chi.URLParam(r, "id"), u)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !deleted {
		h.unchanged(w, r, "only pending or rejected posts can be deleted by their owner")
		return
	}
	util.WriteJSON(w, 200, map[string]string{"status": "deleted"})
}

type contactRequest struct {
	Message string `json:"message"`
}

func (h *Handlers) ContactOwner(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.User(r.Context())
	var req contactRequest
	if err := util.DecodeJSON(r, &req); err != nil {
		h.badRequest(w, r, "invalid json")
		return
	}
	v, err := h.svc.ContactOwner(r.Context(), chi.URLParam(r, "id"), u, req.Message)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !v.OK() {
		h.violations(w, r, v)
		return
	}
	util.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

func (h *Handlers) ListCategories(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListCategories(r.Context(), true)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	util.WriteJSON(w, 200, map[string]any{"items": items})
}

func (h *Handlers) ListAnnouncements(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListAnnouncements(r.Context(), true)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	util.WriteJSON(w, 200, map[string]any{"items": items})
}
