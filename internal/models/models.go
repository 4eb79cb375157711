package models

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID            string     `json:"id"`
	FullName      string     `json:"full_name"`
	Email         string     `json:"email"`
	PasswordHash  string     `json:"-"`
	Role          string     `json:"role"`
	IsActive      bool       `json:"is_active"`
	EmailVerified bool       `json:"email_verified"`
	LastLogin     *time.Time `json:"last_login,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

type PostType string

const (
	PostLost  PostType = "lost"
	PostFound PostType = "found"
)

func (t PostType) Valid() bool { return t == PostLost || t == PostFound }

type PostStatus string

const (
	PostPending  PostStatus = "pending"
	PostApproved PostStatus = "approved"
	PostRejected PostStatus = "rejected"
	PostResolved PostStatus = "resolved"
)

func (s PostStatus) Valid() bool {
	switch s {
	case PostPending, PostApproved, PostRejected, PostResolved:
		return true
	}
	return false
}

type Post struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	Type            PostType   `json:"type"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Category        string     `json:"category"`
	Location        string     `json:"location"`
	DateLostFound   time.Time  `json:"date_lost_found"`
	PhotoPath       *string    `json:"photo_path,omitempty"`
	Status          PostStatus `json:"status"`
	ApprovedBy      *string    `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	RejectionReason *string    `json:"rejection_reason,omitempty"`
	IsResolved      bool       `json:"is_resolved"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`

	OwnerName string `json:"owner_name,omitempty"`
}

type Category struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	SortOrder   int    `json:"sort_order"`
	IsActive    bool   `json:"is_active"`
}

type AnnouncementType string

const (
	AnnouncementInfo    AnnouncementType = "info"
	AnnouncementSuccess AnnouncementType = "success"
	AnnouncementWarning AnnouncementType = "warning"
	AnnouncementDanger  AnnouncementType = "danger"
)

func (t AnnouncementType) Valid() bool {
	switch t {
	case AnnouncementInfo, AnnouncementSuccess, AnnouncementWarning, AnnouncementDanger:
		return true
	}
	return false
}

type Announcement struct {
	ID        string           `json:"id"`
	Title     string           `json:"title"`
	Content   string           `json:"content"`
	Type      AnnouncementType `json:"type"`
	IsActive  bool             `json:"is_active"`
	CreatedBy string           `json:"created_by"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

type AuditEntry struct {
	ID           string  `json:"id"`
	UserID       *string `json:"user_id,omitempty"`
	UserEmail    string  `json:"user_email,omitempty"`
	Action       string  `json:"action"`
	ResourceType *string `json:"resource_type,omitempty"`
	ResourceID   *string `json:"resource_id,omitempty"`
	// ResourceTitle is the current title of an audited post that still exists.
	ResourceTitle string    `json:"resource_title,omitempty"`
	IPAddress     *string   `json:"ip_address,omitempty"`
	Details       *string   `json:"details,omitempty"`
	SummaryCode   string    `json:"summary_code,omitempty"`
	SummaryText   string    `json:"summary_text,omitempty"`
	Severity      string    `json:"severity,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type RateLimitRecord struct {
	Identifier  string
	Action      string
	Attempts    int
	WindowStart time.Time
	ExpiresAt   time.Time
}

// Session is the server-side state behind the session cookie. The raw cookie
// value is never stored, only its sha256.
type Session struct {
	ID                string
	TokenHash         string
	UserID            string
	UserEmail         string
	UserRole          string
	CSRFToken         string
	Flash             string
	CreatedAt         time.Time
	LastRegeneratedAt time.Time
	LastSeenAt        time.Time
	ExpiresAt         time.Time
}

type PostFilter struct {
	Type     PostType
	Category string
	Query    string
	From     *time.Time
	To       *time.Time
	Status   PostStatus
	OwnerID  string
	Limit    int
	Offset   int
}

type UserQuery struct {
	Q      string
	Role   string
	Active *bool
	Limit  int
	Offset int
}

type AuditQuery struct {
	Action       string
	UserID       string
	ResourceType string
	Limit        int
	Offset       int
}

type PostStats struct {
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
	Resolved int `json:"resolved"`
	Users    int `json:"users"`
}
