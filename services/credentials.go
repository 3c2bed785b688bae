package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"clinic-portal/models"
)

// RegisterRequest carries every field any variant accepts. Which of them are
// required depends on the variant being registered.
type RegisterRequest struct {
	Username    string `json:"username" validate:"required,min=3"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=6,max=72"`
	FirstName   string `json:"firstName" validate:"required"`
	LastName    string `json:"lastName" validate:"required"`
	Phone       string `json:"phone"`
	DateOfBirth string `json:"dateOfBirth"`
	Gender      string `json:"gender" validate:"omitempty,oneof=male female other"`
	Address     string `json:"address"`

	// Patient
	BloodGroup       string `json:"bloodGroup" validate:"omitempty,oneof=A+ A- B+ B- AB+ AB- O+ O-"`
	EmergencyContact string `json:"emergencyContact"`

	// Doctor
	Specialization     string   `json:"specialization"`
	LicenseNumber      string   `json:"licenseNumber"`
	Qualification      string   `json:"qualification"`
	Experience         *int     `json:"experience"`
	Biography          string   `json:"biography"`
	ConsultationFee    *float64 `json:"consultationFee" validate:"omitempty,min=0"`
	AvailableDays      []string `json:"availableDays" validate:"omitempty,dive,oneof=Monday Tuesday Wednesday Thursday Friday Saturday Sunday"`
	AvailableTimeSlots string   `json:"availableTimeSlots"`

	// Admin and staff
	EmployeeID  string                   `json:"employeeId"`
	Department  string                   `json:"department"`
	Position    string                   `json:"position"`
	AccessLevel string                   `json:"accessLevel" validate:"omitempty,oneof=super_admin admin manager"`
	Permissions *models.AdminPermissions `json:"permissions"`
	Shift       string                   `json:"shift"`
}

type doctorFields struct {
	Phone          string `json:"phone" validate:"required"`
	Specialization string `json:"specialization" validate:"required"`
	LicenseNumber  string `json:"licenseNumber" validate:"required"`
	Qualification  string `json:"qualification" validate:"required"`
	Experience     *int   `json:"experience" validate:"required,min=0"`
	Department     string `json:"department" validate:"required"`
}

type adminFields struct {
	Phone      string `json:"phone" validate:"required"`
	EmployeeID string `json:"employeeId" validate:"required"`
	Department string `json:"department" validate:"required"`
	Position   string `json:"position" validate:"required"`
}

type staffFields struct {
	EmployeeID string `json:"employeeId" validate:"required"`
	Department string `json:"department" validate:"required"`
	Position   string `json:"position" validate:"required"`
}

func (r *RegisterRequest) normalize() {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = NormalizeEmail(r.Email)
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.Phone = strings.TrimSpace(r.Phone)
	r.Address = strings.TrimSpace(r.Address)
	r.Specialization = strings.TrimSpace(r.Specialization)
	r.LicenseNumber = strings.TrimSpace(r.LicenseNumber)
	r.Qualification = strings.TrimSpace(r.Qualification)
	r.Department = strings.TrimSpace(r.Department)
	r.EmployeeID = strings.TrimSpace(r.EmployeeID)
	r.Position = strings.TrimSpace(r.Position)
}

// AdminGrant resolves the access level and permissions an admin created from
// r would hold. Unset fields fall back to AccessAdmin and the default flags.
func (r *RegisterRequest) AdminGrant() (models.AccessLevel, models.AdminPermissions) {
	level := models.AccessAdmin
	if r.AccessLevel != "" {
		level = models.AccessLevel(r.AccessLevel)
	}
	perms := models.DefaultAdminPermissions()
	if r.Permissions != nil {
		perms = *r.Permissions
	}
	return level, perms
}

func (r *RegisterRequest) identityKeys(variant models.Variant) IdentityKeys {
	keys := IdentityKeys{Email: r.Email, Username: r.Username}
	switch variant {
	case models.VariantDoctor:
		keys.LicenseNumber = r.LicenseNumber
	case models.VariantAdmin, models.VariantStaff:
		keys.EmployeeID = r.EmployeeID
	}
	return keys
}

// parseDateOfBirth accepts the HTML date input format and RFC 3339.
func parseDateOfBirth(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, &models.ValidationError{Field: "dateOfBirth", Message: "must be a date (YYYY-MM-DD)"}
}

// Credentials registers principals and verifies their passwords.
type Credentials struct {
	repo      PrincipalRepository
	cost      int
	validate  *validator.Validate
	dummyHash []byte
	now       func() time.Time
}

// NewCredentials builds the credential service. cost is the bcrypt work factor.
func NewCredentials(repo PrincipalRepository, cost int) (*Credentials, error) {
	// Compared against when an email is unknown, so both failure paths pay
	// for one bcrypt comparison.
	dummy, err := bcrypt.GenerateFromPassword([]byte("clinic-portal/no-such-account"), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare password hasher: %w", err)
	}

	return &Credentials{
		repo:      repo,
		cost:      cost,
		validate:  newValidator(),
		dummyHash: dummy,
		now:       time.Now,
	}, nil
}

// HashPassword generates a salted bcrypt hash of the password.
func (c *Credentials) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), c.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", &models.ValidationError{Field: "password", Message: "must be at most 72 characters"}
		}
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Register validates req, checks identity uniqueness within the variant and
// stores a new principal with a hashed password. It serves the public
// registration routes, so admins it creates get AccessAdmin and no permission
// flags whatever the request asks for.
func (c *Credentials) Register(ctx context.Context, variant models.Variant, req RegisterRequest) (*models.Principal, error) {
	return c.register(ctx, variant, req, false)
}

// RegisterAdmin creates an admin honouring the requested access level and
// permissions. Callers must have authorized the grant; it is reached from the
// seed command and the manageUsers-gated admin route.
func (c *Credentials) RegisterAdmin(ctx context.Context, req RegisterRequest) (*models.Principal, error) {
	return c.register(ctx, models.VariantAdmin, req, true)
}

func (c *Credentials) register(ctx context.Context, variant models.Variant, req RegisterRequest, elevated bool) (*models.Principal, error) {
	req.normalize()

	if err := c.validate.Struct(&req); err != nil {
		return nil, validationError(err)
	}

	var variantErr error
	switch variant {
	case models.VariantDoctor:
		variantErr = c.validate.Struct(doctorFields{
			Phone:          req.Phone,
			Specialization: req.Specialization,
			LicenseNumber:  req.LicenseNumber,
			Qualification:  req.Qualification,
			Experience:     req.Experience,
			Department:     req.Department,
		})
	case models.VariantAdmin:
		variantErr = c.validate.Struct(adminFields{
			Phone:      req.Phone,
			EmployeeID: req.EmployeeID,
			Department: req.Department,
			Position:   req.Position,
		})
	case models.VariantStaff:
		variantErr = c.validate.Struct(staffFields{
			EmployeeID: req.EmployeeID,
			Department: req.Department,
			Position:   req.Position,
		})
	}
	if variantErr != nil {
		return nil, validationError(variantErr)
	}

	dob, err := parseDateOfBirth(req.DateOfBirth)
	if err != nil {
		return nil, err
	}

	field, err := c.repo.FindConflict(ctx, variant, req.identityKeys(variant))
	if err != nil {
		return nil, err
	}
	if field != "" {
		return nil, &models.DuplicateIdentityError{Field: field}
	}

	hash, err := c.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	now := c.now()
	p := &models.Principal{
		Variant:      variant,
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         variant.DefaultRole(),
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Phone:        req.Phone,
		DateOfBirth:  dob,
		Gender:       req.Gender,
		Address:      req.Address,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	switch variant {
	case models.VariantPatient:
		p.Patient = &models.PatientProfile{
			BloodGroup:       req.BloodGroup,
			EmergencyContact: strings.TrimSpace(req.EmergencyContact),
		}
	case models.VariantDoctor:
		p.Doctor = &models.DoctorProfile{
			Specialization:     req.Specialization,
			LicenseNumber:      req.LicenseNumber,
			Qualification:      req.Qualification,
			Experience:         *req.Experience,
			Department:         req.Department,
			Biography:          strings.TrimSpace(req.Biography),
			AvailableDays:      req.AvailableDays,
			AvailableTimeSlots: strings.TrimSpace(req.AvailableTimeSlots),
		}
		if req.ConsultationFee != nil {
			p.Doctor.ConsultationFee = *req.ConsultationFee
		}
	case models.VariantAdmin:
		p.Admin = &models.AdminProfile{
			EmployeeID:  req.EmployeeID,
			Department:  req.Department,
			Position:    req.Position,
			AccessLevel: models.AccessAdmin,
		}
		if elevated {
			p.Admin.AccessLevel, p.Admin.Permissions = req.AdminGrant()
		}
	case models.VariantStaff:
		p.Staff = &models.StaffProfile{
			EmployeeID: req.EmployeeID,
			Department: req.Department,
			Position:   req.Position,
			Shift:      strings.TrimSpace(req.Shift),
		}
	}

	if err := c.repo.Insert(ctx, p); err != nil {
		return nil, err
	}

	slog.Info("Principal registered",
		"variant", variant,
		"principalID", p.ID.Hex(),
		"username", p.Username)

	return p, nil
}

// Verify checks a password for the principal with the given email. Unknown
// emails, wrong passwords and disabled accounts all fail with
// models.ErrInvalidCredentials.
func (c *Credentials) Verify(ctx context.Context, variant models.Variant, email, password string) (*models.Principal, error) {
	p, err := c.repo.FindByEmail(ctx, variant, email)
	if err != nil {
		if errors.Is(err, models.ErrPrincipalNotFound) {
			_ = bcrypt.CompareHashAndPassword(c.dummyHash, []byte(password))
			return nil, models.ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(password)); err != nil {
		slog.Info("Invalid password attempt", "variant", variant, "principalID", p.ID.Hex())
		return nil, models.ErrInvalidCredentials
	}

	if !p.IsActive {
		slog.Info("Login attempt on disabled account", "variant", variant, "principalID", p.ID.Hex())
		return nil, models.ErrInvalidCredentials
	}

	return p, nil
}

// ChangePassword re-derives the stored hash after checking the current password.
func (c *Credentials) ChangePassword(ctx context.Context, variant models.Variant, id, current, next string) error {
	if len(next) < 6 {
		return &models.ValidationError{Field: "newPassword", Message: "must be at least 6 characters"}
	}

	p, err := c.repo.FindByID(ctx, variant, id)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(current)); err != nil {
		return models.ErrInvalidCredentials
	}

	hash, err := c.HashPassword(next)
	if err != nil {
		return err
	}
	return c.repo.UpdatePasswordHash(ctx, variant, id, hash)
}

// MarkLogin records the login time on the principal. Failures are logged and
// swallowed; a stale lastLogin never blocks a login.
func (c *Credentials) MarkLogin(ctx context.Context, p *models.Principal) {
	if err := c.repo.TouchLastLogin(ctx, p.Variant, p.ID.Hex(), c.now()); err != nil {
		slog.Error("Failed to update last login", "error", err, "principalID", p.ID.Hex())
	}
}
