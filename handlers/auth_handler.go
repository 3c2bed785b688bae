package handlers

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"clinic-portal/middleware"
	"clinic-portal/models"
	"clinic-portal/services"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Variant  string `json:"variant"`
	// UserType is the field name older dashboards send.
	UserType string `json:"userType"`
}

type LoginResponse struct {
	Message   string                  `json:"message"`
	User      models.PrincipalSummary `json:"user"`
	SessionID string                  `json:"sessionId"`
	ExpiresAt time.Time               `json:"expiresAt"`
}

type LogoutRequest struct {
	SessionID string `json:"sessionId"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// AuthHandler serves registration, login, logout and the caller's profile.
type AuthHandler struct {
	credentials  *services.Credentials
	sessions     *services.Sessions
	hub          *services.SessionHub
	cookieSecure bool
}

func NewAuthHandler(credentials *services.Credentials, sessions *services.Sessions, hub *services.SessionHub, cookieSecure bool) *AuthHandler {
	return &AuthHandler{
		credentials:  credentials,
		sessions:     sessions,
		hub:          hub,
		cookieSecure: cookieSecure,
	}
}

func (h *AuthHandler) sessionCookie(value string, expires time.Time) *fiber.Cookie {
	sameSite := fiber.CookieSameSiteLaxMode
	if h.cookieSecure {
		sameSite = fiber.CookieSameSiteNoneMode
	}
	return &fiber.Cookie{
		Name:     services.SessionCookieName,
		Value:    value,
		Expires:  expires,
		HTTPOnly: true,
		Secure:   h.cookieSecure,
		SameSite: sameSite,
		Path:     "/",
	}
}

// Register creates a principal of the variant named in the path. The bare
// /api/register route registers patients.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	variant, err := models.ParseVariant(c.Params("variant"))
	if err != nil {
		return err
	}

	var req services.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return bodyError(err)
	}

	p, err := h.credentials.Register(c.Context(), variant, req)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Registration successful",
		"user":    p.Summary(),
	})
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return bodyError(err)
	}

	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return &models.ValidationError{Message: "Email and password are required"}
	}

	name := req.Variant
	if name == "" {
		name = req.UserType
	}
	// An unknown account type fails like a wrong password.
	variant, err := models.ParseVariant(name)
	if err != nil {
		return models.ErrInvalidCredentials
	}

	p, err := h.credentials.Verify(c.Context(), variant, req.Email, req.Password)
	if err != nil {
		return err
	}

	session, err := h.sessions.CreateSession(c.Context(), p, models.ClientMeta{
		IPAddress: c.IP(),
		UserAgent: c.Get(fiber.HeaderUserAgent),
	})
	if err != nil {
		return err
	}

	h.credentials.MarkLogin(c.Context(), p)
	c.Cookie(h.sessionCookie(session.ID, session.ExpiresAt))

	slog.Info("Principal logged in", "variant", variant, "principalID", session.PrincipalID)

	summary := p.Summary()
	summary.Role = session.Role
	return c.Status(fiber.StatusOK).JSON(LoginResponse{
		Message:   "Login successful",
		User:      summary,
		SessionID: session.ID,
		ExpiresAt: session.ExpiresAt,
	})
}

// Logout deactivates the session named in the body, header or cookie. It
// answers 200 whether or not the session existed.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	var req LogoutRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return bodyError(err)
		}
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = middleware.SessionToken(c)
	}

	if sessionID != "" {
		session, err := h.sessions.FindActive(c.Context(), sessionID)
		if err != nil {
			return err
		}
		if err := h.sessions.Deactivate(c.Context(), sessionID); err != nil {
			return err
		}
		if session != nil {
			h.hub.NotifySessionRevoked(session.Variant, session.PrincipalID, session.ID)
			slog.Info("Principal logged out", "variant", session.Variant, "principalID", session.PrincipalID)
		}
	}

	c.Cookie(h.sessionCookie("", time.Now().Add(-time.Hour)))

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Logout successful",
	})
}

// LogoutAll deactivates every session of the caller, including this one.
func (h *AuthHandler) LogoutAll(c *fiber.Ctx) error {
	id := middleware.IdentityFrom(c)

	n, err := h.sessions.DeactivateAll(c.Context(), id.Session.Variant, id.Session.PrincipalID)
	if err != nil {
		return err
	}
	h.hub.NotifyAllRevoked(id.Session.Variant, id.Session.PrincipalID)
	c.Cookie(h.sessionCookie("", time.Now().Add(-time.Hour)))

	slog.Info("Principal logged out everywhere", "variant", id.Session.Variant, "principalID", id.Session.PrincipalID, "revoked", n)

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Logged out of all sessions",
		"revoked": n,
	})
}

// Profile echoes the caller. The role is the one captured at login.
func (h *AuthHandler) Profile(c *fiber.Ctx) error {
	id := middleware.IdentityFrom(c)

	summary := id.Principal.Summary()
	summary.Role = id.Role
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"user": summary,
	})
}

// Account returns the caller's full record for the role dashboards.
func (h *AuthHandler) Account(c *fiber.Ctx) error {
	id := middleware.IdentityFrom(c)
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"profile": id.Principal,
	})
}

func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	id := middleware.IdentityFrom(c)

	var req ChangePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return bodyError(err)
	}
	if req.CurrentPassword == "" {
		return &models.ValidationError{Field: "currentPassword", Message: "is required"}
	}

	err := h.credentials.ChangePassword(c.Context(), id.Principal.Variant, id.Principal.ID.Hex(), req.CurrentPassword, req.NewPassword)
	if errors.Is(err, models.ErrInvalidCredentials) {
		return &models.ValidationError{Field: "currentPassword", Message: "is incorrect"}
	}
	if err != nil {
		return err
	}

	slog.Info("Password changed", "variant", id.Principal.Variant, "principalID", id.Principal.ID.Hex())
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Password updated",
	})
}

// ListSessions returns the caller's active sessions, flagging the current one.
func (h *AuthHandler) ListSessions(c *fiber.Ctx) error {
	id := middleware.IdentityFrom(c)

	sessions, err := h.sessions.ListActive(c.Context(), id.Session.Variant, id.Session.PrincipalID)
	if err != nil {
		return err
	}

	type sessionView struct {
		*models.Session
		Current bool `json:"current"`
	}
	views := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, sessionView{Session: s, Current: s.ID == id.Session.ID})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"sessions": views,
	})
}

// CheckSession reports whether the presented session is usable. A missing or
// dead session is a normal answer; a store failure is a 500.
func (h *AuthHandler) CheckSession(c *fiber.Ctx) error {
	session, err := h.sessions.FindActive(c.Context(), middleware.SessionToken(c))
	if err != nil {
		slog.Error("Session check failed", "error", err)
		return err
	}
	if session == nil {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"authenticated": false,
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"authenticated": true,
		"principalId":   session.PrincipalID,
		"variant":       session.Variant,
		"email":         session.Email,
		"role":          session.Role,
		"expiresAt":     session.ExpiresAt,
	})
}
