package subscriptionRepo

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

// MongoSubscriptionRepo implements SubscriptionRepository using MongoDB.
type MongoSubscriptionRepo struct {
	coll        *mongo.Collection
	packageColl *mongo.Collection
}

// NewMongoSubscriptionRepo constructs a new instance of MongoSubscriptionRepo.
func NewMongoSubscriptionRepo() *MongoSubscriptionRepo {
	db := database.MongoClient.Database(database.DatabaseName)
	return &MongoSubscriptionRepo{
		coll:        db.Collection("subscriptions"),
		packageColl: db.Collection("packages"),
	}
}

// EnsureIndexes creates the necessary indexes on the subscriptions collection.
func (repo *MongoSubscriptionRepo) EnsureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("unique_id"),
		},
		// At most one Active subscription per (user, package).
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "package_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("unique_active_user_package").
				SetPartialFilterExpression(bson.M{"status": models.SubscriptionActive}),
		},
		// Renewal sweep pattern.
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "current_period_end", Value: 1}},
			Options: options.Index().SetName("status_period_end_idx"),
		},
	}

	_, err := repo.coll.Indexes().CreateMany(ctx, indexModels)
	if err != nil {
		return fmt.Errorf("failed to create subscription indexes: %w", err)
	}
	return nil
}

func (repo *MongoSubscriptionRepo) Create(ctx context.Context, sub *models.Subscription) error {
	if _, err := repo.coll.InsertOne(ctx, sub); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrAlreadyActive
		}
		return fmt.Errorf("insert subscription failed: %w", err)
	}
	return nil
}

func (repo *MongoSubscriptionRepo) GetByID(ctx context.Context, id string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := repo.coll.FindOne(ctx, bson.M{"id": id}).Decode(&sub); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error fetching subscription %s: %w", id, err)
	}
	return &sub, nil
}

func (repo *MongoSubscriptionRepo) GetActive(ctx context.Context, userID, packageID string) (*models.Subscription, error) {
	var sub models.Subscription
	filter := bson.M{"user_id": userID, "package_id": packageID, "status": models.SubscriptionActive}
	if err := repo.coll.FindOne(ctx, filter).Decode(&sub); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error fetching active subscription for %s/%s: %w", userID, packageID, err)
	}
	return &sub, nil
}

// Transition applies a guarded status change. Cancellation also stamps
// cancelled_at so the current period can still be honored afterwards.
func (repo *MongoSubscriptionRepo) Transition(ctx context.Context, id string, from []models.SubscriptionStatus, to models.SubscriptionStatus, at time.Time) (bool, error) {
	set := bson.M{"status": to, "updated_at": at}
	if to == models.SubscriptionCancelled {
		set["cancelled_at"] = at
	}
	filter := bson.M{"id": id, "status": bson.M{"$in": from}}

	res, err := repo.coll.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return false, fmt.Errorf("subscription transition failed for %s: %w", id, err)
	}
	return res.MatchedCount > 0, nil
}

func (repo *MongoSubscriptionRepo) ExtendPeriod(ctx context.Context, id string, periodEnd time.Time, paymentID string) error {
	update := bson.M{
		"$set":  bson.M{"current_period_end": periodEnd, "updated_at": time.Now().UTC()},
		"$push": bson.M{"payment_ids": paymentID},
	}
	res, err := repo.coll.UpdateOne(ctx, bson.M{"id": id}, update)
	if err != nil {
		return fmt.Errorf("extend period failed for subscription %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (repo *MongoSubscriptionRepo) ListDueForRenewal(ctx context.Context, now time.Time, limit int64) ([]models.Subscription, error) {
	filter := bson.M{
		"status":             bson.M{"$in": []models.SubscriptionStatus{models.SubscriptionActive, models.SubscriptionPastDue}},
		"current_period_end": bson.M{"$lte": now},
	}
	opts := options.Find().SetSort(bson.D{{Key: "current_period_end", Value: 1}}).SetLimit(limit)

	cursor, err := repo.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("error listing due subscriptions: %w", err)
	}
	defer cursor.Close(ctx)

	var subs []models.Subscription
	if err := cursor.All(ctx, &subs); err != nil {
		return nil, fmt.Errorf("error decoding subscriptions: %w", err)
	}
	return subs, nil
}

func (repo *MongoSubscriptionRepo) GetPackage(ctx context.Context, packageID string) (*models.Package, error) {
	var pkg models.Package
	if err := repo.packageColl.FindOne(ctx, bson.M{"id": packageID}).Decode(&pkg); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error fetching package %s: %w", packageID, err)
	}
	return &pkg, nil
}
