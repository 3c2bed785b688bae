// Package servicestest provides in-memory collaborators for tests of the
// services, middleware and handlers packages.
package servicestest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"clinic-portal/models"
	"clinic-portal/services"
)

// PrincipalRepository is an in-memory services.PrincipalRepository. Insert
// checks and stores under one lock, like a unique index would.
type PrincipalRepository struct {
	mu   sync.Mutex
	byID map[models.Variant]map[primitive.ObjectID]*models.Principal
}

func NewPrincipalRepository() *PrincipalRepository {
	return &PrincipalRepository{byID: make(map[models.Variant]map[primitive.ObjectID]*models.Principal)}
}

func clone(p *models.Principal) *models.Principal {
	c := *p
	return &c
}

func identity(p *models.Principal) services.IdentityKeys {
	keys := services.IdentityKeys{Email: p.Email, Username: p.Username}
	if p.Doctor != nil {
		keys.LicenseNumber = p.Doctor.LicenseNumber
	}
	if p.Admin != nil {
		keys.EmployeeID = p.Admin.EmployeeID
	}
	if p.Staff != nil {
		keys.EmployeeID = p.Staff.EmployeeID
	}
	return keys
}

func (r *PrincipalRepository) conflict(variant models.Variant, keys services.IdentityKeys) string {
	for _, p := range r.byID[variant] {
		have := identity(p)
		switch {
		case keys.Email != "" && have.Email == services.NormalizeEmail(keys.Email):
			return "email"
		case keys.Username != "" && have.Username == strings.TrimSpace(keys.Username):
			return "username"
		case keys.LicenseNumber != "" && have.LicenseNumber == keys.LicenseNumber:
			return "licenseNumber"
		case keys.EmployeeID != "" && have.EmployeeID == keys.EmployeeID:
			return "employeeId"
		}
	}
	return ""
}

func (r *PrincipalRepository) Insert(ctx context.Context, p *models.Principal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if field := r.conflict(p.Variant, identity(p)); field != "" {
		return &models.DuplicateIdentityError{Field: field}
	}
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	if r.byID[p.Variant] == nil {
		r.byID[p.Variant] = make(map[primitive.ObjectID]*models.Principal)
	}
	r.byID[p.Variant][p.ID] = clone(p)
	return nil
}

func (r *PrincipalRepository) FindByEmail(ctx context.Context, variant models.Variant, email string) (*models.Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	email = services.NormalizeEmail(email)
	for _, p := range r.byID[variant] {
		if p.Email == email {
			return clone(p), nil
		}
	}
	return nil, models.ErrPrincipalNotFound
}

func (r *PrincipalRepository) get(variant models.Variant, id string) (*models.Principal, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, models.ErrPrincipalNotFound
	}
	p, ok := r.byID[variant][oid]
	if !ok {
		return nil, models.ErrPrincipalNotFound
	}
	return p, nil
}

func (r *PrincipalRepository) FindByID(ctx context.Context, variant models.Variant, id string) (*models.Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.get(variant, id)
	if err != nil {
		return nil, err
	}
	return clone(p), nil
}

func (r *PrincipalRepository) FindConflict(ctx context.Context, variant models.Variant, keys services.IdentityKeys) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conflict(variant, keys), nil
}

func (r *PrincipalRepository) mutate(variant models.Variant, id string, fn func(p *models.Principal)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.get(variant, id)
	if err != nil {
		return err
	}
	fn(p)
	p.UpdatedAt = time.Now()
	return nil
}

func (r *PrincipalRepository) UpdatePasswordHash(ctx context.Context, variant models.Variant, id, hash string) error {
	return r.mutate(variant, id, func(p *models.Principal) { p.PasswordHash = hash })
}

func (r *PrincipalRepository) SetActive(ctx context.Context, variant models.Variant, id string, active bool) error {
	return r.mutate(variant, id, func(p *models.Principal) { p.IsActive = active })
}

func (r *PrincipalRepository) SetRole(ctx context.Context, variant models.Variant, id string, role models.Role) error {
	return r.mutate(variant, id, func(p *models.Principal) { p.Role = role })
}

func (r *PrincipalRepository) TouchLastLogin(ctx context.Context, variant models.Variant, id string, at time.Time) error {
	return r.mutate(variant, id, func(p *models.Principal) { p.LastLogin = &at })
}

func (r *PrincipalRepository) List(ctx context.Context, variant models.Variant, activeOnly bool) ([]*models.Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []*models.Principal{}
	for _, p := range r.byID[variant] {
		if activeOnly && !p.IsActive {
			continue
		}
		out = append(out, clone(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Delete removes a principal outright, as an operator editing the database would.
func (r *PrincipalRepository) Delete(variant models.Variant, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		delete(r.byID[variant], oid)
	}
}

// NewRedisSessionStore returns a session store backed by a miniredis server
// that is shut down when the test ends.
func NewRedisSessionStore(t testing.TB) (*services.RedisSessionStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return services.NewRedisSessionStore(rdb, "test"), mr
}

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
