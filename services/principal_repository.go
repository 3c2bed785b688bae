package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"clinic-portal/models"
)

// IdentityKeys are the unique fields of a principal within its variant.
// Empty values are not checked.
type IdentityKeys struct {
	Email         string
	Username      string
	LicenseNumber string
	EmployeeID    string
}

// PrincipalRepository persists principals, one collection per variant.
// Insert must enforce identity uniqueness atomically and report violations as
// *models.DuplicateIdentityError.
type PrincipalRepository interface {
	Insert(ctx context.Context, p *models.Principal) error
	FindByEmail(ctx context.Context, variant models.Variant, email string) (*models.Principal, error)
	FindByID(ctx context.Context, variant models.Variant, id string) (*models.Principal, error)
	FindConflict(ctx context.Context, variant models.Variant, keys IdentityKeys) (string, error)
	UpdatePasswordHash(ctx context.Context, variant models.Variant, id, hash string) error
	SetActive(ctx context.Context, variant models.Variant, id string, active bool) error
	SetRole(ctx context.Context, variant models.Variant, id string, role models.Role) error
	TouchLastLogin(ctx context.Context, variant models.Variant, id string, at time.Time) error
	List(ctx context.Context, variant models.Variant, activeOnly bool) ([]*models.Principal, error)
}

// MongoPrincipalRepository stores principals in MongoDB.
type MongoPrincipalRepository struct {
	db *mongo.Database
}

func NewMongoPrincipalRepository(db *mongo.Database) *MongoPrincipalRepository {
	return &MongoPrincipalRepository{db: db}
}

func (r *MongoPrincipalRepository) collection(variant models.Variant) *mongo.Collection {
	return r.db.Collection(variant.Collection())
}

// NormalizeEmail trims and lowercases an email address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *MongoPrincipalRepository) Insert(ctx context.Context, p *models.Principal) error {
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	_, err := r.collection(p.Variant).InsertOne(ctx, p)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return &models.DuplicateIdentityError{Field: duplicateField(err)}
		}
		return fmt.Errorf("failed to insert %s: %w", p.Variant, err)
	}
	return nil
}

func (r *MongoPrincipalRepository) FindByEmail(ctx context.Context, variant models.Variant, email string) (*models.Principal, error) {
	var p models.Principal
	err := r.collection(variant).FindOne(ctx, bson.M{"email": NormalizeEmail(email)}).Decode(&p)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("failed to find %s by email: %w", variant, err)
	}
	return &p, nil
}

func (r *MongoPrincipalRepository) FindByID(ctx context.Context, variant models.Variant, id string) (*models.Principal, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, models.ErrPrincipalNotFound
	}

	var p models.Principal
	err = r.collection(variant).FindOne(ctx, bson.M{"_id": objectID}).Decode(&p)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("failed to find %s: %w", variant, err)
	}
	return &p, nil
}

// FindConflict returns the first identity field already taken, or "" when
// none is. It gives a friendly error before insert; the unique indexes remain
// the authority under concurrency.
func (r *MongoPrincipalRepository) FindConflict(ctx context.Context, variant models.Variant, keys IdentityKeys) (string, error) {
	checks := []struct {
		field string
		key   string
		value string
	}{
		{"email", "email", NormalizeEmail(keys.Email)},
		{"username", "username", strings.TrimSpace(keys.Username)},
		{"licenseNumber", "doctor.license_number", keys.LicenseNumber},
		{"employeeId", string(variant) + ".employee_id", keys.EmployeeID},
	}

	for _, c := range checks {
		if c.value == "" {
			continue
		}
		n, err := r.collection(variant).CountDocuments(ctx, bson.M{c.key: c.value}, options.Count().SetLimit(1))
		if err != nil {
			return "", fmt.Errorf("failed to check %s uniqueness: %w", c.field, err)
		}
		if n > 0 {
			return c.field, nil
		}
	}
	return "", nil
}

func (r *MongoPrincipalRepository) update(ctx context.Context, variant models.Variant, id string, set bson.M) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return models.ErrPrincipalNotFound
	}

	set["updated_at"] = time.Now()
	result, err := r.collection(variant).UpdateOne(ctx, bson.M{"_id": objectID}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", variant, err)
	}
	if result.MatchedCount == 0 {
		return models.ErrPrincipalNotFound
	}
	return nil
}

func (r *MongoPrincipalRepository) UpdatePasswordHash(ctx context.Context, variant models.Variant, id, hash string) error {
	return r.update(ctx, variant, id, bson.M{"password_hash": hash})
}

func (r *MongoPrincipalRepository) SetActive(ctx context.Context, variant models.Variant, id string, active bool) error {
	return r.update(ctx, variant, id, bson.M{"is_active": active})
}

func (r *MongoPrincipalRepository) SetRole(ctx context.Context, variant models.Variant, id string, role models.Role) error {
	return r.update(ctx, variant, id, bson.M{"role": role})
}

func (r *MongoPrincipalRepository) TouchLastLogin(ctx context.Context, variant models.Variant, id string, at time.Time) error {
	return r.update(ctx, variant, id, bson.M{"last_login": at})
}

func (r *MongoPrincipalRepository) List(ctx context.Context, variant models.Variant, activeOnly bool) ([]*models.Principal, error) {
	filter := bson.M{}
	if activeOnly {
		filter["is_active"] = true
	}

	cursor, err := r.collection(variant).Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", variant, err)
	}
	defer cursor.Close(ctx)

	principals := []*models.Principal{}
	if err := cursor.All(ctx, &principals); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", variant, err)
	}
	return principals, nil
}
