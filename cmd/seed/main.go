// seed creates the first super admin so the admin routes can be reached.
// Idempotent: an existing account with the same email is left untouched.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"clinic-portal/config"
	"clinic-portal/models"
	"clinic-portal/services"
)

func main() {
	email := flag.String("email", "admin@clinic.local", "admin email")
	password := flag.String("password", "", "admin password (or SEED_ADMIN_PASSWORD)")
	username := flag.String("username", "admin", "admin username")
	firstName := flag.String("first-name", "Clinic", "admin first name")
	lastName := flag.String("last-name", "Administrator", "admin last name")
	phone := flag.String("phone", "000-000-0000", "admin phone")
	employeeID := flag.String("employee-id", "ADM-0001", "admin employee ID")
	flag.Parse()

	_ = godotenv.Load()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	if *password == "" {
		*password = os.Getenv("SEED_ADMIN_PASSWORD")
	}
	if *password == "" {
		slog.Error("password is required: pass -password or set SEED_ADMIN_PASSWORD")
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := services.InitMongoDB(ctx, cfg.MongoURI)
	if err != nil {
		slog.Error("Failed to connect to MongoDB", "error", err)
		os.Exit(1)
	}
	defer client.Disconnect(context.Background())

	db := client.Database(cfg.DatabaseName)
	if err := services.CreatePrincipalIndexes(ctx, db); err != nil {
		slog.Error("Failed to create indexes", "error", err)
		os.Exit(1)
	}

	credentials, err := services.NewCredentials(services.NewMongoPrincipalRepository(db), cfg.BcryptCost)
	if err != nil {
		slog.Error("Failed to prepare credentials", "error", err)
		os.Exit(1)
	}

	admin, err := credentials.RegisterAdmin(ctx, services.RegisterRequest{
		Username:    *username,
		Email:       *email,
		Password:    *password,
		FirstName:   *firstName,
		LastName:    *lastName,
		Phone:       *phone,
		EmployeeID:  *employeeID,
		Department:  "Administration",
		Position:    "System Administrator",
		AccessLevel: string(models.AccessSuperAdmin),
	})

	var dup *models.DuplicateIdentityError
	switch {
	case errors.As(err, &dup):
		slog.Info("Admin already exists, nothing to do", "field", dup.Field)
	case err != nil:
		slog.Error("Failed to create admin", "error", err)
		os.Exit(1)
	default:
		slog.Info("Super admin created", "id", admin.ID.Hex(), "email", admin.Email)
	}
}
