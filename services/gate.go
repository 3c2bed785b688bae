package services

import (
	"context"
	"errors"
	"log/slog"

	"clinic-portal/models"
)

// Identity is the result of a successful authentication. Role is the
// snapshot taken at login; Principal is the live record.
type Identity struct {
	Session   *models.Session
	Principal *models.Principal
	Role      models.Role
}

// Gate resolves session tokens to identities.
type Gate struct {
	sessions   *Sessions
	principals PrincipalRepository
}

func NewGate(sessions *Sessions, principals PrincipalRepository) *Gate {
	return &Gate{sessions: sessions, principals: principals}
}

// Authenticate resolves token to an identity. Every rejection wraps
// models.ErrUnauthenticated; other errors are storage failures.
func (g *Gate) Authenticate(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, models.ErrNoSession
	}

	session, err := g.sessions.FindActive(ctx, token)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, models.ErrInvalidSession
	}

	principal, err := g.principals.FindByID(ctx, session.Variant, session.PrincipalID)
	if err != nil {
		if errors.Is(err, models.ErrPrincipalNotFound) {
			slog.Info("Session references a missing principal",
				"variant", session.Variant,
				"principalID", session.PrincipalID)
			return nil, models.ErrInvalidSession
		}
		return nil, err
	}
	if !principal.IsActive {
		return nil, models.ErrInvalidSession
	}

	return &Identity{Session: session, Principal: principal, Role: session.Role}, nil
}

// RequireRole fails with models.ErrForbidden unless the session role is one
// of roles.
func (id *Identity) RequireRole(roles ...models.Role) error {
	for _, r := range roles {
		if id.Role == r {
			return nil
		}
	}
	return models.ErrForbidden
}

// RequirePermission fails with models.ErrForbidden unless the session role is
// admin and the admin holds the permission flag.
func (id *Identity) RequirePermission(permission string) error {
	if id.Role != models.RoleAdmin || !id.Principal.HasPermission(permission) {
		return models.ErrForbidden
	}
	return nil
}
