package models

import (
	"time"
)

// Session is one login. The ID is the opaque token handed to the client and
// doubles as the storage key.
type Session struct {
	ID          string     `bson:"_id" json:"id"`
	PrincipalID string     `bson:"principal_id" json:"principalId"`
	Variant     Variant    `bson:"variant" json:"variant"`
	Email       string     `bson:"email" json:"email"`
	Role        Role       `bson:"role" json:"role"`
	IPAddress   string     `bson:"ip_address,omitempty" json:"ipAddress,omitempty"`
	UserAgent   string     `bson:"user_agent,omitempty" json:"userAgent,omitempty"`
	LoginTime   time.Time  `bson:"login_time" json:"loginTime"`
	LogoutTime  *time.Time `bson:"logout_time,omitempty" json:"logoutTime,omitempty"`
	ExpiresAt   time.Time  `bson:"expires_at" json:"expiresAt"`
	IsActive    bool       `bson:"is_active" json:"isActive"`
}

// ClientMeta is the optional request metadata recorded with a session.
type ClientMeta struct {
	IPAddress string
	UserAgent string
}

// ValidAt reports whether the session may authorize a request at now.
func (s *Session) ValidAt(now time.Time) bool {
	return s.IsActive && now.Before(s.ExpiresAt)
}
