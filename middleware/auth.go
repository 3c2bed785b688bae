package middleware

import (
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"

	"clinic-portal/models"
	"clinic-portal/services"
)

// IdentityLocal is the fiber locals key holding the authenticated identity.
const IdentityLocal = "identity"

// Auth turns the session gate into fiber middleware. Rejections are returned
// as errors and rendered by the app's error handler.
type Auth struct {
	gate *services.Gate
}

func NewAuth(gate *services.Gate) *Auth {
	return &Auth{gate: gate}
}

// SessionToken reads the session id from the Session-Id header, falling back
// to the session cookie set at login.
func SessionToken(c *fiber.Ctx) string {
	if token := strings.TrimSpace(c.Get(services.SessionHeaderName)); token != "" {
		return token
	}
	return c.Cookies(services.SessionCookieName)
}

// IdentityFrom returns the identity stored by RequireAuth, or nil.
func IdentityFrom(c *fiber.Ctx) *services.Identity {
	id, _ := c.Locals(IdentityLocal).(*services.Identity)
	return id
}

func (a *Auth) authenticate(c *fiber.Ctx) (*services.Identity, error) {
	if id := IdentityFrom(c); id != nil {
		return id, nil
	}

	id, err := a.gate.Authenticate(c.Context(), SessionToken(c))
	if err != nil {
		return nil, err
	}
	c.Locals(IdentityLocal, id)
	return id, nil
}

func (a *Auth) RequireAuth(c *fiber.Ctx) error {
	if _, err := a.authenticate(c); err != nil {
		return err
	}
	return c.Next()
}

// RequireRole admits sessions whose login-time role is one of roles.
func (a *Auth) RequireRole(roles ...models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := a.authenticate(c)
		if err != nil {
			return err
		}

		if err := id.RequireRole(roles...); err != nil {
			slog.Info("Access denied", "role", id.Role, "required_roles", roles, "path", c.Path())
			return err
		}
		return c.Next()
	}
}

// RequirePermission admits admin sessions whose principal holds permission.
func (a *Auth) RequirePermission(permission string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := a.authenticate(c)
		if err != nil {
			return err
		}

		if err := id.RequirePermission(permission); err != nil {
			slog.Info("Permission denied", "role", id.Role, "required_permission", permission, "path", c.Path())
			return err
		}
		return c.Next()
	}
}
