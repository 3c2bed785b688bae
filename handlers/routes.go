package handlers

import (
	"io"
	"os"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"

	"clinic-portal/middleware"
	"clinic-portal/models"
	"clinic-portal/services"
)

// Deps are the collaborators the HTTP layer is built from.
type Deps struct {
	Credentials  *services.Credentials
	Sessions     *services.Sessions
	Principals   services.PrincipalRepository
	Hub          *services.SessionHub
	CookieSecure bool
	CORSOrigins  string
	// AccessLog receives fiber access log lines; nil means stdout.
	AccessLog io.Writer
}

// NewApp builds the fiber application with middleware and all routes.
func NewApp(d Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "clinic-portal",
		ErrorHandler: ErrorHandler,
	})

	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{
		Generator: uuid.NewString,
	}))

	if d.CORSOrigins != "" {
		app.Use(cors.New(cors.Config{
			AllowOrigins:     d.CORSOrigins,
			AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
			AllowHeaders:     "Origin, Content-Type, Accept, " + services.SessionHeaderName,
			AllowCredentials: d.CORSOrigins != "*",
		}))
	}

	output := d.AccessLog
	if output == nil {
		output = os.Stdout
	}
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${locals:requestid} ${status} - ${method} ${path}\n",
		Output: output,
	}))

	RegisterRoutes(app, d)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":  "Route not found",
			"path":   c.OriginalURL(),
			"method": c.Method(),
		})
	})

	return app
}

func RegisterRoutes(app *fiber.App, d Deps) {
	gate := services.NewGate(d.Sessions, d.Principals)
	auth := middleware.NewAuth(gate)
	authHandler := NewAuthHandler(d.Credentials, d.Sessions, d.Hub, d.CookieSecure)
	adminHandler := NewAdminHandler(d.Credentials, d.Principals, d.Sessions, d.Hub)

	api := app.Group("/api")

	api.Post("/register", authHandler.Register)
	api.Post("/register/:variant", authHandler.Register)
	api.Post("/login", authHandler.Login)
	api.Post("/logout", authHandler.Logout)
	api.Post("/logout/all", auth.RequireAuth, authHandler.LogoutAll)
	api.Get("/session/check", authHandler.CheckSession)

	api.Get("/profile", auth.RequireAuth, authHandler.Profile)
	api.Put("/profile/password", auth.RequireAuth, authHandler.ChangePassword)
	api.Get("/sessions", auth.RequireAuth, authHandler.ListSessions)

	api.Get("/doctors", adminHandler.ListDoctors)

	api.Get("/doctor/profile", auth.RequireRole(models.RoleDoctor), authHandler.Account)
	api.Get("/patient/profile", auth.RequireRole(models.RolePatient), authHandler.Account)
	api.Get("/staff/profile", auth.RequireRole(models.RoleStaff), authHandler.Account)

	admin := api.Group("/admin", auth.RequireRole(models.RoleAdmin))
	admin.Get("/profile", authHandler.Account)
	admin.Post("/admins", auth.RequirePermission(models.PermManageUsers), adminHandler.CreateAdmin)
	admin.Get("/principals/:variant", auth.RequirePermission(models.PermManageUsers), adminHandler.ListPrincipals)
	admin.Put("/principals/:variant/:id/active", auth.RequirePermission(models.PermManageUsers), adminHandler.SetActive)
	admin.Put("/principals/:variant/:id/role", auth.RequirePermission(models.PermManageUsers), adminHandler.SetRole)
	admin.Delete("/principals/:variant/:id/sessions", auth.RequirePermission(models.PermManageUsers), adminHandler.RevokeSessions)

	api.Get("/ws", auth.RequireAuth, WebSocketUpgrade, websocket.New(HandleWebSocket(d.Hub)))

	health := func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "clinic-portal",
		})
	}
	app.Get("/health", health)
	api.Get("/health", health)
}
