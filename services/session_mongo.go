package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"clinic-portal/models"
)

const sessionsCollection = "login_sessions"

// MongoSessionStore keeps sessions in a MongoDB collection with a TTL index
// on expires_at, so the server also expires records on its own.
type MongoSessionStore struct {
	collection *mongo.Collection
}

func NewMongoSessionStore(db *mongo.Database) *MongoSessionStore {
	return &MongoSessionStore{collection: db.Collection(sessionsCollection)}
}

// CreateIndexes creates the lookup and expiry indexes for the sessions collection
func (s *MongoSessionStore) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0).SetName("expires_at_ttl"),
		},
		{
			Keys: bson.D{{Key: "variant", Value: 1}, {Key: "principal_id", Value: 1}, {Key: "is_active", Value: 1}},
		},
	}

	if _, err := s.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create session indexes: %w", err)
	}
	return nil
}

func (s *MongoSessionStore) Create(ctx context.Context, session *models.Session) error {
	if _, err := s.collection.InsertOne(ctx, session); err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

func (s *MongoSessionStore) FindActive(ctx context.Context, id string, now time.Time) (*models.Session, error) {
	var session models.Session
	err := s.collection.FindOne(ctx, bson.M{
		"_id":        id,
		"is_active":  true,
		"expires_at": bson.M{"$gt": now},
	}).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

// Deactivate only matches active sessions, so the first logout time sticks.
func (s *MongoSessionStore) Deactivate(ctx context.Context, id string, now time.Time) error {
	_, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": id, "is_active": true},
		bson.M{"$set": bson.M{"is_active": false, "logout_time": now}},
	)
	if err != nil {
		return fmt.Errorf("failed to deactivate session: %w", err)
	}
	return nil
}

func (s *MongoSessionStore) DeactivateForPrincipal(ctx context.Context, variant models.Variant, principalID string, now time.Time) (int64, error) {
	result, err := s.collection.UpdateMany(ctx,
		bson.M{
			"variant":      variant,
			"principal_id": principalID,
			"is_active":    true,
			"expires_at":   bson.M{"$gt": now},
		},
		bson.M{"$set": bson.M{"is_active": false, "logout_time": now}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate principal sessions: %w", err)
	}
	return result.ModifiedCount, nil
}

func (s *MongoSessionStore) ListActive(ctx context.Context, variant models.Variant, principalID string, now time.Time) ([]*models.Session, error) {
	cursor, err := s.collection.Find(ctx,
		bson.M{
			"variant":      variant,
			"principal_id": principalID,
			"is_active":    true,
			"expires_at":   bson.M{"$gt": now},
		},
		options.Find().SetSort(bson.D{{Key: "login_time", Value: -1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get principal sessions: %w", err)
	}
	defer cursor.Close(ctx)

	sessions := []*models.Session{}
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, fmt.Errorf("failed to decode sessions: %w", err)
	}
	return sessions, nil
}

// DeleteExpired removes sessions the TTL monitor has not reached yet. The
// monitor runs about once a minute, so this keeps the collection tight
// between passes.
func (s *MongoSessionStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.collection.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": now}})
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired sessions: %w", err)
	}
	return result.DeletedCount, nil
}
