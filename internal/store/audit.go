package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"lostfound/internal/models"
)

func (s *Store) InsertAudit(ctx context.Context, e models.AuditEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.Insert(ctx, "audit_log", Fields{
		"id":            e.ID,
		"user_id":       nullString(e.UserID),
		"action":        e.Action,
		"resource_type": nullString(e.ResourceType),
		"resource_id":   nullString(e.ResourceID),
		"ip_address":    nullString(e.IPAddress),
		"details":       nullString(e.Details),
		"created_at":    e.CreatedAt,
	})
	return err
}

func (s *Store) ListAudit(ctx context.Context, q models.AuditQuery) ([]models.AuditEntry, int, error) {
	where := []string{"1=1"}
	var args []any
	if v := strings.TrimSpace(q.Action); v != "" {
		where = append(where, "a.action=?")
		args = append(args, v)
	}
	if v := strings.TrimSpace(q.UserID); v != "" {
		where = append(where, "a.user_id=?")
		args = append(args, v)
	}
	if v := strings.TrimSpace(q.ResourceType); v != "" {
		where = append(where, "a.resource_type=?")
		args = append(args, v)
	}
	cond := strings.Join(where, " AND ")

	total, err := s.count(ctx, `SELECT COUNT(1) FROM audit_log a WHERE `+cond, args...)
	if err != nil {
		return nil, 0, err
	}
	limit, offset := clampLimit(q.Limit, q.Offset)
	rows, err := s.query(ctx,
		`SELECT a.id,a.user_id,COALESCE(u.email,''),a.action,a.resource_type,a.resource_id,COALESCE(p.title,''),a.ip_address,a.details,a.created_at
		FROM audit_log a LEFT JOIN users u ON u.id=a.user_id
		LEFT JOIN posts p ON a.resource_type='posts' AND p.id=a.resource_id
		WHERE `+cond+` ORDER BY a.created_at DESC, a.id LIMIT ? OFFSET ?`,
		append(args, limit, offset)...,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]models.AuditEntry, 0, limit)
	for rows.Next() {
		var e models.AuditEntry
		var userID, resType, resID, ip, details sql.NullString
		if err := rows.Scan(&e.ID, &userID, &e.UserEmail, &e.Action, &resType, &resID, &e.ResourceTitle, &ip, &details, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		e.UserID = strPtr(userID)
		e.ResourceType = strPtr(resType)
		e.ResourceID = strPtr(resID)
		e.IPAddress = strPtr(ip)
		e.Details = strPtr(details)
		out = append(out, e)
	}
	return out, total, rows.Err()
}
