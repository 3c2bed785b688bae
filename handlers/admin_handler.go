package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"clinic-portal/middleware"
	"clinic-portal/models"
	"clinic-portal/services"
)

type SetActiveRequest struct {
	IsActive *bool `json:"isActive"`
}

// AdminHandler serves account management for admins holding manageUsers.
type AdminHandler struct {
	credentials *services.Credentials
	principals  services.PrincipalRepository
	sessions    *services.Sessions
	hub         *services.SessionHub
}

func NewAdminHandler(credentials *services.Credentials, principals services.PrincipalRepository, sessions *services.Sessions, hub *services.SessionHub) *AdminHandler {
	return &AdminHandler{credentials: credentials, principals: principals, sessions: sessions, hub: hub}
}

// CreateAdmin registers another admin with an explicit access level and
// permission set. The caller can hand out only what they hold.
func (h *AdminHandler) CreateAdmin(c *fiber.Ctx) error {
	var req services.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return bodyError(err)
	}

	caller := middleware.IdentityFrom(c)
	level, perms := req.AdminGrant()
	if !caller.Principal.CanGrant(level, perms) {
		slog.Warn("Admin grant refused",
			"by", caller.Principal.ID.Hex(),
			"accessLevel", level,
			"permissions", perms.Granted())
		return models.ErrForbidden
	}

	p, err := h.credentials.RegisterAdmin(c.Context(), req)
	if err != nil {
		return err
	}

	slog.Info("Admin created",
		"principalID", p.ID.Hex(),
		"accessLevel", p.Admin.AccessLevel,
		"by", caller.Principal.ID.Hex())

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Admin created",
		"user":    p.Summary(),
	})
}

func (h *AdminHandler) ListPrincipals(c *fiber.Ctx) error {
	variant, err := models.ParseVariant(c.Params("variant"))
	if err != nil {
		return err
	}

	principals, err := h.principals.List(c.Context(), variant, c.QueryBool("active", false))
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"principals": principals,
		"count":      len(principals),
	})
}

// SetActive enables or disables an account. Disabling also revokes its
// sessions so the change takes effect immediately.
func (h *AdminHandler) SetActive(c *fiber.Ctx) error {
	variant, err := models.ParseVariant(c.Params("variant"))
	if err != nil {
		return err
	}
	principalID := c.Params("id")

	var req SetActiveRequest
	if err := c.BodyParser(&req); err != nil {
		return bodyError(err)
	}
	if req.IsActive == nil {
		return &models.ValidationError{Field: "isActive", Message: "is required"}
	}

	caller := middleware.IdentityFrom(c)
	if !*req.IsActive && variant == caller.Principal.Variant && principalID == caller.Principal.ID.Hex() {
		return &models.ValidationError{Field: "isActive", Message: "cannot disable your own account"}
	}

	if err := h.principals.SetActive(c.Context(), variant, principalID, *req.IsActive); err != nil {
		return err
	}

	var revoked int64
	if !*req.IsActive {
		revoked, err = h.sessions.DeactivateAll(c.Context(), variant, principalID)
		if err != nil {
			return err
		}
		h.hub.NotifyAllRevoked(variant, principalID)
	}

	slog.Info("Principal active flag changed",
		"variant", variant,
		"principalID", principalID,
		"isActive", *req.IsActive,
		"by", caller.Principal.ID.Hex(),
		"revoked", revoked)

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message":  "Account updated",
		"isActive": *req.IsActive,
		"revoked":  revoked,
	})
}

type SetRoleRequest struct {
	Role string `json:"role"`
}

// SetRole changes an account's role. Open sessions keep the role they were
// created with; the new role applies from the next login.
func (h *AdminHandler) SetRole(c *fiber.Ctx) error {
	variant, err := models.ParseVariant(c.Params("variant"))
	if err != nil {
		return err
	}
	principalID := c.Params("id")

	var req SetRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return bodyError(err)
	}
	role, err := models.ParseRole(req.Role)
	if err != nil {
		return err
	}

	if err := h.principals.SetRole(c.Context(), variant, principalID, role); err != nil {
		return err
	}

	slog.Info("Principal role changed",
		"variant", variant,
		"principalID", principalID,
		"role", role,
		"by", middleware.IdentityFrom(c).Principal.ID.Hex())

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Role updated",
		"role":    role,
	})
}

// RevokeSessions logs an account out of every device.
func (h *AdminHandler) RevokeSessions(c *fiber.Ctx) error {
	variant, err := models.ParseVariant(c.Params("variant"))
	if err != nil {
		return err
	}
	principalID := c.Params("id")

	if _, err := h.principals.FindByID(c.Context(), variant, principalID); err != nil {
		return err
	}

	revoked, err := h.sessions.DeactivateAll(c.Context(), variant, principalID)
	if err != nil {
		return err
	}
	h.hub.NotifyAllRevoked(variant, principalID)

	slog.Info("Principal sessions revoked",
		"variant", variant,
		"principalID", principalID,
		"by", middleware.IdentityFrom(c).Principal.ID.Hex(),
		"revoked", revoked)

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Sessions revoked",
		"revoked": revoked,
	})
}

// ListDoctors is the public directory of active doctors.
func (h *AdminHandler) ListDoctors(c *fiber.Ctx) error {
	doctors, err := h.principals.List(c.Context(), models.VariantDoctor, true)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"doctors": doctors,
	})
}
