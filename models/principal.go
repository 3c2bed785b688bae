package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Variant names which kind of account a principal is. Each variant lives in
// its own collection and has its own uniqueness scope.
type Variant string

const (
	VariantPatient Variant = "patient"
	VariantDoctor  Variant = "doctor"
	VariantAdmin   Variant = "admin"
	VariantStaff   Variant = "staff"
	VariantUser    Variant = "user"
)

// Role is the authorization role captured into a session at login.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
	RoleStaff   Role = "staff"
	RoleUser    Role = "user"
)

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RolePatient, RoleDoctor, RoleAdmin, RoleStaff, RoleUser:
		return r, nil
	}
	return "", &ValidationError{Field: "role", Message: "unknown role: " + s}
}

// Variants lists every principal variant in a stable order.
func Variants() []Variant {
	return []Variant{VariantPatient, VariantDoctor, VariantAdmin, VariantStaff, VariantUser}
}

// ParseVariant validates a variant name. The empty string resolves to patient,
// which is what the login form sends when no account type is picked.
func ParseVariant(s string) (Variant, error) {
	if s == "" {
		return VariantPatient, nil
	}
	for _, v := range Variants() {
		if string(v) == s {
			return v, nil
		}
	}
	return "", &ValidationError{Field: "variant", Message: "unknown account type: " + s}
}

// DefaultRole returns the role assigned to new principals of the variant.
func (v Variant) DefaultRole() Role {
	return Role(v)
}

// Collection returns the MongoDB collection holding the variant.
func (v Variant) Collection() string {
	switch v {
	case VariantPatient:
		return "patients"
	case VariantDoctor:
		return "doctors"
	case VariantAdmin:
		return "admins"
	case VariantStaff:
		return "staff"
	default:
		return "users"
	}
}

// AccessLevel grades admin accounts.
type AccessLevel string

const (
	AccessSuperAdmin AccessLevel = "super_admin"
	AccessAdmin      AccessLevel = "admin"
	AccessManager    AccessLevel = "manager"
)

// Admin permission flags understood by the authorization gate.
const (
	PermManageUsers        = "manageUsers"
	PermManageDoctors      = "manageDoctors"
	PermManageAppointments = "manageAppointments"
	PermViewReports        = "viewReports"
	PermManageSettings     = "manageSettings"
)

// AdminPermissions are the per-admin capability flags.
type AdminPermissions struct {
	ManageUsers        bool `bson:"manage_users" json:"manageUsers"`
	ManageDoctors      bool `bson:"manage_doctors" json:"manageDoctors"`
	ManageAppointments bool `bson:"manage_appointments" json:"manageAppointments"`
	ViewReports        bool `bson:"view_reports" json:"viewReports"`
	ManageSettings     bool `bson:"manage_settings" json:"manageSettings"`
}

// DefaultAdminPermissions are granted to an admin created through a trusted
// path without explicit flags: everything except settings.
func DefaultAdminPermissions() AdminPermissions {
	return AdminPermissions{
		ManageUsers:        true,
		ManageDoctors:      true,
		ManageAppointments: true,
		ViewReports:        true,
	}
}

// Granted lists the names of the flags that are set.
func (p AdminPermissions) Granted() []string {
	var names []string
	for _, name := range []string{PermManageUsers, PermManageDoctors, PermManageAppointments, PermViewReports, PermManageSettings} {
		if p.Has(name) {
			names = append(names, name)
		}
	}
	return names
}

// Has reports whether the named flag is set. Unknown names are never granted.
func (p AdminPermissions) Has(permission string) bool {
	switch permission {
	case PermManageUsers:
		return p.ManageUsers
	case PermManageDoctors:
		return p.ManageDoctors
	case PermManageAppointments:
		return p.ManageAppointments
	case PermViewReports:
		return p.ViewReports
	case PermManageSettings:
		return p.ManageSettings
	}
	return false
}

type PatientProfile struct {
	BloodGroup       string `bson:"blood_group,omitempty" json:"bloodGroup,omitempty"`
	EmergencyContact string `bson:"emergency_contact,omitempty" json:"emergencyContact,omitempty"`
}

type DoctorProfile struct {
	Specialization     string   `bson:"specialization" json:"specialization"`
	LicenseNumber      string   `bson:"license_number" json:"licenseNumber"`
	Qualification      string   `bson:"qualification" json:"qualification"`
	Experience         int      `bson:"experience" json:"experience"`
	Department         string   `bson:"department" json:"department"`
	Biography          string   `bson:"biography,omitempty" json:"biography,omitempty"`
	ConsultationFee    float64  `bson:"consultation_fee" json:"consultationFee"`
	AvailableDays      []string `bson:"available_days,omitempty" json:"availableDays,omitempty"`
	AvailableTimeSlots string   `bson:"available_time_slots,omitempty" json:"availableTimeSlots,omitempty"`
	IsVerified         bool     `bson:"is_verified" json:"isVerified"`
}

type AdminProfile struct {
	EmployeeID  string           `bson:"employee_id" json:"employeeId"`
	Department  string           `bson:"department" json:"department"`
	Position    string           `bson:"position" json:"position"`
	AccessLevel AccessLevel      `bson:"access_level" json:"accessLevel"`
	Permissions AdminPermissions `bson:"permissions" json:"permissions"`
}

type StaffProfile struct {
	EmployeeID string `bson:"employee_id" json:"employeeId"`
	Department string `bson:"department" json:"department"`
	Position   string `bson:"position" json:"position"`
	Shift      string `bson:"shift,omitempty" json:"shift,omitempty"`
}

// Principal is an account that can log in. Exactly one of the profile
// pointers is set, matching Variant; generic user accounts carry none.
type Principal struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Variant  Variant            `bson:"variant" json:"variant"`
	Username string             `bson:"username" json:"username"`
	Email    string             `bson:"email" json:"email"`

	// Authentication
	PasswordHash string `bson:"password_hash" json:"-"`
	Role         Role   `bson:"role" json:"role"`

	FirstName   string     `bson:"first_name" json:"firstName"`
	LastName    string     `bson:"last_name" json:"lastName"`
	Phone       string     `bson:"phone,omitempty" json:"phone,omitempty"`
	DateOfBirth *time.Time `bson:"date_of_birth,omitempty" json:"dateOfBirth,omitempty"`
	Gender      string     `bson:"gender,omitempty" json:"gender,omitempty"`
	Address     string     `bson:"address,omitempty" json:"address,omitempty"`

	Patient *PatientProfile `bson:"patient,omitempty" json:"patient,omitempty"`
	Doctor  *DoctorProfile  `bson:"doctor,omitempty" json:"doctor,omitempty"`
	Admin   *AdminProfile   `bson:"admin,omitempty" json:"admin,omitempty"`
	Staff   *StaffProfile   `bson:"staff,omitempty" json:"staff,omitempty"`

	// Status
	IsActive  bool       `bson:"is_active" json:"isActive"`
	LastLogin *time.Time `bson:"last_login,omitempty" json:"lastLogin,omitempty"`

	// Metadata
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}

// PrincipalSummary is the public shape returned by register, login and profile.
type PrincipalSummary struct {
	ID        string  `json:"id"`
	Username  string  `json:"username"`
	Email     string  `json:"email"`
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	Role      Role    `json:"role"`
	Variant   Variant `json:"variant"`

	Specialization string      `json:"specialization,omitempty"`
	Position       string      `json:"position,omitempty"`
	AccessLevel    AccessLevel `json:"accessLevel,omitempty"`
}

// Summary renders the principal for API responses using its stored role.
func (p *Principal) Summary() PrincipalSummary {
	s := PrincipalSummary{
		ID:        p.ID.Hex(),
		Username:  p.Username,
		Email:     p.Email,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Role:      p.Role,
		Variant:   p.Variant,
	}
	switch {
	case p.Doctor != nil:
		s.Specialization = p.Doctor.Specialization
	case p.Admin != nil:
		s.Position = p.Admin.Position
		s.AccessLevel = p.Admin.AccessLevel
	case p.Staff != nil:
		s.Position = p.Staff.Position
	}
	return s
}

// HasPermission evaluates an admin permission flag. Super admins hold every
// permission; principals without an admin profile hold none.
func (p *Principal) HasPermission(permission string) bool {
	if p.Admin == nil {
		return false
	}
	if p.Admin.AccessLevel == AccessSuperAdmin {
		return true
	}
	return p.Admin.Permissions.Has(permission)
}

// CanGrant reports whether the principal may create an admin with the given
// access level and flags. Only super admins create super admins, and nobody
// hands out a flag they do not hold themselves.
func (p *Principal) CanGrant(level AccessLevel, perms AdminPermissions) bool {
	if p.Admin == nil {
		return false
	}
	if p.Admin.AccessLevel == AccessSuperAdmin {
		return true
	}
	if level == AccessSuperAdmin {
		return false
	}
	for _, name := range perms.Granted() {
		if !p.HasPermission(name) {
			return false
		}
	}
	return true
}
