// Package audit records administrative and security-relevant actions. Writes
// are best effort: a failed insert is logged and never fails the action that
// produced it.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"lostfound/internal/middleware"
	"lostfound/internal/models"
	"lostfound/internal/store"
)

// Resource types name the table the audited row lives in.
const (
	ResourcePosts         = "posts"
	ResourceUsers         = "users"
	ResourceCategories    = "categories"
	ResourceAnnouncements = "announcements"
)

type Entry struct {
	UserID       string
	Action       string
	ResourceType string
	ResourceID   string
	Details      map[string]any
}

type Logger struct {
	st  *store.Store
	log *zap.Logger
}

func New(st *store.Store, log *zap.Logger) *Logger {
	return &Logger{st: st, log: log.Named("audit")}
}

// Log persists e with the client address taken from ctx.
func (l *Logger) Log(ctx context.Context, e Entry) {
	row := models.AuditEntry{
		Action:       e.Action,
		UserID:       optional(e.UserID),
		ResourceType: optional(e.ResourceType),
		ResourceID:   optional(e.ResourceID),
		IPAddress:    optional(middleware.ClientIPFrom(ctx)),
	}
	if len(e.Details) > 0 {
		raw, err := json.Marshal(e.Details)
		if err != nil {
			l.log.Warn("audit details not serializable", zap.String("action", e.Action), zap.Error(err))
		} else {
			s := string(raw)
			row.Details = &s
		}
	}
	if err := l.st.InsertAudit(ctx, row); err != nil {
		l.log.Error("audit write failed",
			zap.String("action", e.Action),
			zap.String("user_id", e.UserID),
			zap.String("resource_id", e.ResourceID),
			zap.Error(err),
		)
	}
}

// List returns entries newest first with a display summary filled in.
func (l *Logger) List(ctx context.Context, q models.AuditQuery) ([]models.AuditEntry, int, error) {
	items, total, err := l.st.ListAudit(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	for i := range items {
		items[i].SummaryCode, items[i].SummaryText, items[i].Severity = summarize(items[i])
	}
	return items, total, nil
}

func summarize(e models.AuditEntry) (string, string, string) {
	meta := parseDetails(e.Details)
	target := deref(e.ResourceID)
	if v := meta["title"]; v != "" {
		target = fmt.Sprintf("%q", v)
	} else if e.ResourceTitle != "" {
		target = fmt.Sprintf("%q", e.ResourceTitle)
	} else if v := meta["email"]; v != "" {
		target = v
	} else if v := meta["name"]; v != "" {
		target = v
	}
	if target == "" {
		target = "(n/a)"
	}
	actor := e.UserEmail
	if actor == "" {
		actor = "anonymous"
	}

	switch e.Action {
	case "post.create":
		return "post.created", fmt.Sprintf("Post %s submitted by %s.", target, actor), "info"
	case "post.approve":
		return "post.approved", fmt.Sprintf("Post %s approved by %s.", target, actor), "ok"
	case "post.reject":
		if reason := strings.TrimSpace(meta["reason"]); reason != "" {
			return "post.rejected", fmt.Sprintf("Post %s rejected by %s (%s).", target, actor, reason), "warning"
		}
		return "post.rejected", fmt.Sprintf("Post %s rejected by %s.", target, actor), "warning"
	case "post.resolve":
		return "post.resolved", fmt.Sprintf("Post %s marked resolved by %s.", target, actor), "ok"
	case "post.delete":
		return "post.deleted", fmt.Sprintf("Post %s deleted by %s.", target, actor), "warning"
	case "user.register":
		return "user.registered", fmt.Sprintf("Account registered: %s.", target), "info"
	case "user.login":
		return "user.logged_in", fmt.Sprintf("%s signed in.", actor), "info"
	case "user.activate":
		return "user.activated", fmt.Sprintf("Account %s activated by %s.", target, actor), "ok"
	case "user.deactivate":
		return "user.deactivated", fmt.Sprintf("Account %s deactivated by %s.", target, actor), "warning"
	case "user.promote":
		return "user.promoted", fmt.Sprintf("Account %s promoted to admin by %s.", target, actor), "warning"
	case "user.demote":
		return "user.demoted", fmt.Sprintf("Account %s demoted by %s.", target, actor), "warning"
	case "contact.send":
		return "contact.sent", fmt.Sprintf("%s contacted the owner of post %s.", actor, target), "info"
	}
	if kind, verb, ok := strings.Cut(e.Action, "."); ok && (kind == "category" || kind == "announcement") {
		return kind + "." + verb, fmt.Sprintf("%s %s %s by %s.", strings.ToUpper(kind[:1])+kind[1:], target, pastTense(verb), actor), "info"
	}
	if e.Action != "" {
		return "audit.event", fmt.Sprintf("Audit event %s on %s.", e.Action, target), "info"
	}
	return "audit.event", fmt.Sprintf("Audit event on %s.", target), "info"
}

func pastTense(verb string) string {
	switch verb {
	case "create":
		return "created"
	case "update":
		return "updated"
	case "delete":
		return "deleted"
	case "toggle":
		return "toggled"
	}
	return verb
}

func parseDetails(raw *string) map[string]string {
	out := map[string]string{}
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return out
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(*raw), &decoded); err != nil {
		return out
	}
	for k, v := range decoded {
		switch typed := v.(type) {
		case string:
			out[k] = typed
		case float64:
			out[k] = fmt.Sprintf("%.0f", typed)
		default:
			out[k] = fmt.Sprintf("%v", typed)
		}
	}
	return out
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
