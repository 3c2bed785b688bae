package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"clinic-portal/models"
)

// Unique index names double as the field reported in DuplicateIdentityError.
const (
	indexEmailUnique    = "email_unique"
	indexUsernameUnique = "username_unique"
	indexLicenseUnique  = "license_number_unique"
	indexEmployeeUnique = "employee_id_unique"
)

var uniqueIndexFields = map[string]string{
	indexEmailUnique:    "email",
	indexUsernameUnique: "username",
	indexLicenseUnique:  "licenseNumber",
	indexEmployeeUnique: "employeeId",
}

// InitMongoDB initializes MongoDB connection
func InitMongoDB(ctx context.Context, uri string) (*mongo.Client, error) {
	clientOptions := options.Client().ApplyURI(uri)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, err
	}

	// Ping to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	slog.Info("Connected to MongoDB")
	return client, nil
}

// CreatePrincipalIndexes creates the unique indexes that make registration
// race-free. They must exist before the server accepts traffic.
func CreatePrincipalIndexes(ctx context.Context, db *mongo.Database) error {
	for _, variant := range models.Variants() {
		indexes := []mongo.IndexModel{
			{
				Keys:    bson.D{{Key: "email", Value: 1}},
				Options: options.Index().SetUnique(true).SetName(indexEmailUnique),
			},
			{
				Keys:    bson.D{{Key: "username", Value: 1}},
				Options: options.Index().SetUnique(true).SetName(indexUsernameUnique),
			},
		}

		switch variant {
		case models.VariantDoctor:
			indexes = append(indexes, mongo.IndexModel{
				Keys: bson.D{{Key: "doctor.license_number", Value: 1}},
				Options: options.Index().SetUnique(true).SetName(indexLicenseUnique).
					SetPartialFilterExpression(bson.M{"doctor.license_number": bson.M{"$exists": true}}),
			})
		case models.VariantAdmin, models.VariantStaff:
			key := string(variant) + ".employee_id"
			indexes = append(indexes, mongo.IndexModel{
				Keys: bson.D{{Key: key, Value: 1}},
				Options: options.Index().SetUnique(true).SetName(indexEmployeeUnique).
					SetPartialFilterExpression(bson.M{key: bson.M{"$exists": true}}),
			})
		}

		if _, err := db.Collection(variant.Collection()).Indexes().CreateMany(ctx, indexes); err != nil {
			return fmt.Errorf("failed to create %s indexes: %w", variant, err)
		}
	}
	return nil
}

// duplicateField maps a duplicate key write error to the conflicting field.
func duplicateField(err error) string {
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if f := fieldFromIndexMessage(e.Message); f != "" {
				return f
			}
		}
	}
	if f := fieldFromIndexMessage(err.Error()); f != "" {
		return f
	}
	return "email"
}

func fieldFromIndexMessage(msg string) string {
	for name, field := range uniqueIndexFields {
		if strings.Contains(msg, "index: "+name+" ") {
			return field
		}
	}
	return ""
}
