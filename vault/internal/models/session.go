package models

import "time"

// Session is a server-side authenticated session.
type Session struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"created_at"`
	LastAccess  time.Time `json:"last_access"`
	Expires     time.Time `json:"expires"`
}

// IsActive returns true if the session has not passed its expiry.
func (s *Session) IsActive(now time.Time) bool {
	return !now.After(s.Expires)
}

// HasPermission checks for "resource:action", "resource:*" or "*".
func (s *Session) HasPermission(resource, action string) bool {
	for _, p := range s.Permissions {
		if p == "*" || p == resource+":*" || p == resource+":"+action {
			return true
		}
	}
	return false
}
