package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
)

const insertTimeout = 10 * time.Second

// Store persists audit records.
type Store interface {
	Insert(ctx context.Context, record *StatusRecord) error
}

// MongoStore writes records into a mongo collection.
type MongoStore struct {
	collection *mongo.Collection
}

// NewMongoStore binds the store to the audit collection.
func NewMongoStore(collection *mongo.Collection) (*MongoStore, error) {
	if collection == nil {
		return nil, errors.New("audit collection required")
	}
	return &MongoStore{collection: collection}, nil
}

// Insert stores the record. A duplicate event id is treated as already stored.
func (s *MongoStore) Insert(ctx context.Context, record *StatusRecord) error {
	ctx, cancel := context.WithTimeout(ctx, insertTimeout)
	defer cancel()

	if record.RecordedAt.IsZero() {
		record.RecordedAt = time.Now().UTC()
	}
	if _, err := s.collection.InsertOne(ctx, record); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("insert status audit: %w", err)
	}
	return nil
}
