package paymentRepo

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

// MongoPaymentRepo implements PaymentRepository using MongoDB.
type MongoPaymentRepo struct {
	coll *mongo.Collection
}

// NewMongoPaymentRepo constructs a new instance of MongoPaymentRepo.
func NewMongoPaymentRepo() *MongoPaymentRepo {
	db := database.MongoClient.Database(database.DatabaseName)
	return &MongoPaymentRepo{
		coll: db.Collection("payments"),
	}
}

// EnsureIndexes creates the necessary indexes on the payments collection.
func (repo *MongoPaymentRepo) EnsureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("unique_id"),
		},
		// (gateway, gateway_ref) unique once assigned; partial so rows
		// without a reference yet do not collide.
		{
			Keys: bson.D{{Key: "gateway", Value: 1}, {Key: "gateway_ref", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("unique_gateway_ref").
				SetPartialFilterExpression(bson.M{"gateway_ref": bson.M{"$exists": true, "$type": "string"}}),
		},
		{
			Keys:    bson.D{{Key: "owner_type", Value: 1}, {Key: "owner_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("owner_idx"),
		},
	}

	_, err := repo.coll.Indexes().CreateMany(ctx, indexModels)
	if err != nil {
		return fmt.Errorf("failed to create payment indexes: %w", err)
	}
	return nil
}

func (repo *MongoPaymentRepo) Create(ctx context.Context, payment *models.Payment) error {
	if _, err := repo.coll.InsertOne(ctx, payment); err != nil {
		return fmt.Errorf("insert payment failed: %w", err)
	}
	return nil
}

func (repo *MongoPaymentRepo) GetByID(ctx context.Context, id string) (*models.Payment, error) {
	var payment models.Payment
	if err := repo.coll.FindOne(ctx, bson.M{"id": id}).Decode(&payment); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error fetching payment %s: %w", id, err)
	}
	return &payment, nil
}

func (repo *MongoPaymentRepo) GetByGatewayRef(ctx context.Context, gateway, ref string) (*models.Payment, error) {
	var payment models.Payment
	filter := bson.M{"gateway": gateway, "gateway_ref": ref}
	if err := repo.coll.FindOne(ctx, filter).Decode(&payment); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error fetching payment by ref %s/%s: %w", gateway, ref, err)
	}
	return &payment, nil
}

// AssignGatewayRef sets the provider reference exactly once; the unique
// index turns a raced double assignment into ErrDuplicateRef.
func (repo *MongoPaymentRepo) AssignGatewayRef(ctx context.Context, id, ref, redirectURL string) error {
	filter := bson.M{"id": id, "gateway_ref": bson.M{"$exists": false}}
	set := bson.M{"gateway_ref": ref, "updated_at": time.Now().UTC()}
	if redirectURL != "" {
		set["redirect_url"] = redirectURL
	}
	update := bson.M{"$set": set}

	res, err := repo.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateRef
		}
		return fmt.Errorf("assign gateway ref failed for payment %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		// Already assigned: fine if it is the same reference.
		existing, gerr := repo.GetByID(ctx, id)
		if gerr != nil {
			return gerr
		}
		if existing.GatewayRef != ref {
			return ErrDuplicateRef
		}
	}
	return nil
}

// Transition applies a guarded status change.
func (repo *MongoPaymentRepo) Transition(ctx context.Context, id string, from []models.PaymentStatus, to models.PaymentStatus, reason string) (bool, error) {
	set := bson.M{"status": to, "updated_at": time.Now().UTC()}
	if reason != "" {
		set["failure_reason"] = reason
	}
	filter := bson.M{"id": id, "status": bson.M{"$in": from}}

	res, err := repo.coll.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return false, fmt.Errorf("payment transition failed for %s: %w", id, err)
	}
	return res.MatchedCount > 0, nil
}
