package availabilityRepo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes creates the necessary indexes on the slots collection.
func (repo *MongoAvailabilityRepo) EnsureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexModels := []mongo.IndexModel{
		// Unique index on slot ID
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("unique_id"),
		},
		// One slot per (teacher, start); backstops the overlap check for
		// identical intervals raced past the publish transaction.
		{
			Keys:    bson.D{{Key: "teacher_id", Value: 1}, {Key: "start", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("unique_teacher_start"),
		},
		// Primary listing pattern.
		{
			Keys:    bson.D{{Key: "teacher_id", Value: 1}, {Key: "status", Value: 1}, {Key: "start", Value: 1}},
			Options: options.Index().SetName("teacher_status_start_idx"),
		},
		// Sweep pattern: held slots by expiry.
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "hold_expiry", Value: 1}},
			Options: options.Index().SetName("status_hold_expiry_idx"),
		},
		// Holder lookup for confirm/release.
		{
			Keys:    bson.D{{Key: "hold_owner", Value: 1}},
			Options: options.Index().SetName("hold_owner_idx"),
		},
	}

	_, err := repo.coll.Indexes().CreateMany(ctx, indexModels)
	if err != nil {
		return fmt.Errorf("failed to create slot indexes: %w", err)
	}
	return nil
}
