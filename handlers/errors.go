package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"reflect"

	"github.com/gofiber/fiber/v2"

	"clinic-portal/models"
)

var duplicateMessages = map[string]string{
	"email":         "Email already registered",
	"username":      "Username already taken",
	"licenseNumber": "License number already registered",
	"employeeId":    "Employee ID already registered",
}

// ErrorHandler renders every error returned by a handler or middleware.
// Storage and other unexpected failures become a generic 500.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var (
		validationErr *models.ValidationError
		duplicateErr  *models.DuplicateIdentityError
		fiberErr      *fiber.Error
	)

	switch {
	case errors.As(err, &validationErr):
		body := fiber.Map{"error": validationErr.Error()}
		if validationErr.Field != "" {
			body["field"] = validationErr.Field
		}
		return c.Status(fiber.StatusBadRequest).JSON(body)

	case errors.As(err, &duplicateErr):
		msg, ok := duplicateMessages[duplicateErr.Field]
		if !ok {
			msg = "Duplicate entry"
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": msg,
			"field": duplicateErr.Field,
		})

	case errors.Is(err, models.ErrInvalidCredentials):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid email or password",
		})

	case errors.Is(err, models.ErrNoSession):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "No session provided",
		})

	case errors.Is(err, models.ErrUnauthenticated):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid or expired session",
		})

	case errors.Is(err, models.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Insufficient permissions",
		})

	case errors.Is(err, models.ErrPrincipalNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Account not found",
		})

	case errors.As(err, &fiberErr):
		return c.Status(fiberErr.Code).JSON(fiber.Map{
			"error": fiberErr.Message,
		})
	}

	slog.Error("Request error", "error", err, "method", c.Method(), "path", c.Path())
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Internal server error",
	})
}

// bodyError turns a BodyParser failure into a ValidationError, naming the
// offending field when the decoder reports one.
func bodyError(err error) error {
	var validationErr *models.ValidationError
	if errors.As(err, &validationErr) {
		return validationErr
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		msg := "has the wrong type"
		switch typeErr.Type.Kind() {
		case reflect.Int, reflect.Int64, reflect.Float64, reflect.Float32:
			msg = "must be a number"
		case reflect.String:
			msg = "must be a string"
		case reflect.Bool:
			msg = "must be true or false"
		}
		return &models.ValidationError{Field: typeErr.Field, Message: msg}
	}

	return &models.ValidationError{Message: "Invalid request body"}
}
