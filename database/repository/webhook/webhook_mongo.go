package webhookRepo

import (
	"context"
	"fmt"
	"time"

	"tutorhive/database"
	"tutorhive/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoWebhookRepo implements WebhookRepository using MongoDB.
type MongoWebhookRepo struct {
	coll *mongo.Collection
}

// NewMongoWebhookRepo constructs a new instance of MongoWebhookRepo.
func NewMongoWebhookRepo() *MongoWebhookRepo {
	db := database.MongoClient.Database(database.DatabaseName)
	return &MongoWebhookRepo{
		coll: db.Collection("webhook_events"),
	}
}

// EnsureIndexes creates the necessary indexes on the webhook_events collection.
func (repo *MongoWebhookRepo) EnsureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("unique_id"),
		},
		// The dedup constraint: one row per provider event.
		{
			Keys:    bson.D{{Key: "gateway", Value: 1}, {Key: "provider_event_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("unique_gateway_event"),
		},
		// Reconciliation sweep pattern.
		{
			Keys:    bson.D{{Key: "processed", Value: 1}, {Key: "received_at", Value: 1}},
			Options: options.Index().SetName("processed_received_idx"),
		},
	}

	_, err := repo.coll.Indexes().CreateMany(ctx, indexModels)
	if err != nil {
		return fmt.Errorf("failed to create webhook indexes: %w", err)
	}
	return nil
}

func (repo *MongoWebhookRepo) Insert(ctx context.Context, event *models.WebhookEvent) error {
	if _, err := repo.coll.InsertOne(ctx, event); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert webhook event failed: %w", err)
	}
	return nil
}

func (repo *MongoWebhookRepo) Get(ctx context.Context, gateway, providerEventID string) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	filter := bson.M{"gateway": gateway, "provider_event_id": providerEventID}
	if err := repo.coll.FindOne(ctx, filter).Decode(&event); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error fetching webhook event %s/%s: %w", gateway, providerEventID, err)
	}
	return &event, nil
}

func (repo *MongoWebhookRepo) MarkProcessed(ctx context.Context, id string, at time.Time) error {
	update := bson.M{
		"$set":   bson.M{"processed": true, "processed_at": at},
		"$unset": bson.M{"processing_error": ""},
	}
	res, err := repo.coll.UpdateOne(ctx, bson.M{"id": id}, update)
	if err != nil {
		return fmt.Errorf("mark processed failed for event %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (repo *MongoWebhookRepo) RecordError(ctx context.Context, id, message string) error {
	update := bson.M{"$set": bson.M{"processing_error": message}}
	if _, err := repo.coll.UpdateOne(ctx, bson.M{"id": id}, update); err != nil {
		return fmt.Errorf("record error failed for event %s: %w", id, err)
	}
	return nil
}

func (repo *MongoWebhookRepo) ListUnprocessed(ctx context.Context, before time.Time, limit int64) ([]models.WebhookEvent, error) {
	filter := bson.M{"processed": false, "received_at": bson.M{"$lt": before}}
	opts := options.Find().SetSort(bson.D{{Key: "received_at", Value: 1}}).SetLimit(limit)

	cursor, err := repo.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("error listing unprocessed events: %w", err)
	}
	defer cursor.Close(ctx)

	var events []models.WebhookEvent
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("error decoding webhook events: %w", err)
	}
	return events, nil
}
