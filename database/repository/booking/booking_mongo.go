package bookingRepo

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

// MongoBookingRepo implements BookingRepository using MongoDB.
type MongoBookingRepo struct {
	coll *mongo.Collection
}

// NewMongoBookingRepo constructs a new instance of MongoBookingRepo.
func NewMongoBookingRepo() *MongoBookingRepo {
	db := database.MongoClient.Database(database.DatabaseName)
	return &MongoBookingRepo{
		coll: db.Collection("bookings"),
	}
}

// EnsureIndexes creates the necessary indexes on the bookings collection.
func (repo *MongoBookingRepo) EnsureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("unique_id"),
		},
		{
			Keys:    bson.D{{Key: "student_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("student_created_idx"),
		},
		// At most one booking ever reaches Confirmed per slot.
		{
			Keys: bson.D{{Key: "slot_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("unique_confirmed_slot").
				SetPartialFilterExpression(bson.M{"status": models.BookingConfirmed}),
		},
	}

	_, err := repo.coll.Indexes().CreateMany(ctx, indexModels)
	if err != nil {
		return fmt.Errorf("failed to create booking indexes: %w", err)
	}
	return nil
}

func (repo *MongoBookingRepo) Create(ctx context.Context, booking *models.Booking) error {
	if _, err := repo.coll.InsertOne(ctx, booking); err != nil {
		return fmt.Errorf("insert booking failed: %w", err)
	}
	return nil
}

func (repo *MongoBookingRepo) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	var booking models.Booking
	if err := repo.coll.FindOne(ctx, bson.M{"id": id}).Decode(&booking); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error fetching booking %s: %w", id, err)
	}
	return &booking, nil
}

func (repo *MongoBookingRepo) ListByStudent(ctx context.Context, studentID string) ([]models.Booking, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := repo.coll.Find(ctx, bson.M{"student_id": studentID}, opts)
	if err != nil {
		return nil, fmt.Errorf("error listing bookings for student %s: %w", studentID, err)
	}
	defer cursor.Close(ctx)

	var bookings []models.Booking
	if err := cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("error decoding bookings: %w", err)
	}
	return bookings, nil
}

// Transition applies a guarded status change. MatchedCount==0 means the
// booking was not in any of the expected predecessor states.
func (repo *MongoBookingRepo) Transition(ctx context.Context, id string, from []models.BookingStatus, to models.BookingStatus, at time.Time) (bool, error) {
	filter := bson.M{"id": id, "status": bson.M{"$in": from}}
	update := bson.M{"$set": bson.M{"status": to, "updated_at": at}}

	res, err := repo.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("booking transition failed for %s: %w", id, err)
	}
	return res.MatchedCount > 0, nil
}

func (repo *MongoBookingRepo) SetPaymentID(ctx context.Context, id, paymentID string) error {
	update := bson.M{"$set": bson.M{"payment_id": paymentID, "updated_at": time.Now().UTC()}}
	res, err := repo.coll.UpdateOne(ctx, bson.M{"id": id}, update)
	if err != nil {
		return fmt.Errorf("set payment id failed for booking %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
