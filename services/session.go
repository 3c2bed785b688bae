package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"clinic-portal/models"
)

const (
	DefaultSessionTTL = 24 * time.Hour
	SessionCookieName = "session_id"
	SessionHeaderName = "Session-Id"
)

// SessionStore persists sessions. Implementations are safe for concurrent use.
//
// FindActive returns (nil, nil) when the session is unknown, logged out or
// expired at now. Deactivate is idempotent and never reactivates a session.
// DeleteExpired physically removes sessions whose expiry is before now.
type SessionStore interface {
	Create(ctx context.Context, s *models.Session) error
	FindActive(ctx context.Context, id string, now time.Time) (*models.Session, error)
	Deactivate(ctx context.Context, id string, now time.Time) error
	DeactivateForPrincipal(ctx context.Context, variant models.Variant, principalID string, now time.Time) (int64, error)
	ListActive(ctx context.Context, variant models.Variant, principalID string, now time.Time) ([]*models.Session, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// GenerateSessionID generates a secure random session ID
func GenerateSessionID() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// Sessions applies the fixed-TTL session policy on top of a SessionStore.
type Sessions struct {
	store SessionStore
	ttl   time.Duration
	now   func() time.Time
}

// NewSessions returns a session service. A non-positive ttl selects
// DefaultSessionTTL.
func NewSessions(store SessionStore, ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Sessions{store: store, ttl: ttl, now: time.Now}
}

// WithClock replaces the time source. It is meant for tests.
func (s *Sessions) WithClock(now func() time.Time) *Sessions {
	s.now = now
	return s
}

// CreateSession opens a session for p. The role is captured as it is now and
// does not follow later changes to the principal.
func (s *Sessions) CreateSession(ctx context.Context, p *models.Principal, meta models.ClientMeta) (*models.Session, error) {
	id, err := GenerateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &models.Session{
		ID:          id,
		PrincipalID: p.ID.Hex(),
		Variant:     p.Variant,
		Email:       p.Email,
		Role:        p.Role,
		IPAddress:   meta.IPAddress,
		UserAgent:   meta.UserAgent,
		LoginTime:   now,
		ExpiresAt:   now.Add(s.ttl),
		IsActive:    true,
	}

	if err := s.store.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// FindActive returns the session if it can still authorize requests, or nil.
func (s *Sessions) FindActive(ctx context.Context, id string) (*models.Session, error) {
	if id == "" {
		return nil, nil
	}
	return s.store.FindActive(ctx, id, s.now())
}

// Deactivate logs a session out. Unknown or already inactive ids are a no-op.
func (s *Sessions) Deactivate(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	return s.store.Deactivate(ctx, id, s.now())
}

// DeactivateAll logs out every active session of a principal.
func (s *Sessions) DeactivateAll(ctx context.Context, variant models.Variant, principalID string) (int64, error) {
	return s.store.DeactivateForPrincipal(ctx, variant, principalID, s.now())
}

// ListActive returns the principal's sessions that can still authorize requests.
func (s *Sessions) ListActive(ctx context.Context, variant models.Variant, principalID string) ([]*models.Session, error) {
	return s.store.ListActive(ctx, variant, principalID, s.now())
}

// CleanupExpired removes sessions past their expiry.
func (s *Sessions) CleanupExpired(ctx context.Context) (int64, error) {
	return s.store.DeleteExpired(ctx, s.now())
}
