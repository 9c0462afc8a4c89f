package availabilityRepo

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

// MongoAvailabilityRepo implements AvailabilityRepository using MongoDB.
type MongoAvailabilityRepo struct {
	coll *mongo.Collection
}

// NewMongoAvailabilityRepo constructs a new instance of MongoAvailabilityRepo.
func NewMongoAvailabilityRepo() *MongoAvailabilityRepo {
	db := database.MongoClient.Database(database.DatabaseName)
	return &MongoAvailabilityRepo{
		coll: db.Collection("slots"),
	}
}

// CreateSlots inserts all slots inside one transaction. The overlap
// check runs against committed data under the transaction's snapshot;
// the reservation service additionally serializes publishes per teacher
// so two concurrent batches cannot both pass the check.
func (repo *MongoAvailabilityRepo) CreateSlots(ctx context.Context, slots []models.Slot) error {
	if len(slots) == 0 {
		return nil
	}

	client := repo.coll.Database().Client()
	sess, err := client.StartSession()
	if err != nil {
		return fmt.Errorf("could not start mongo session: %w", err)
	}
	defer sess.EndSession(ctx)

	txnFn := func(sc mongo.SessionContext) error {
		for _, s := range slots {
			filter := bson.M{
				"teacher_id": s.TeacherID,
				"start":      bson.M{"$lt": s.End},
				"end":        bson.M{"$gt": s.Start},
			}
			n, err := repo.coll.CountDocuments(sc, filter)
			if err != nil {
				return fmt.Errorf("overlap check failed: %w", err)
			}
			if n > 0 {
				return ErrOverlap
			}
		}
		docs := make([]interface{}, 0, len(slots))
		for _, s := range slots {
			docs = append(docs, s)
		}
		if _, err := repo.coll.InsertMany(sc, docs); err != nil {
			return fmt.Errorf("insert slots failed: %w", err)
		}
		return nil
	}

	if err := mongo.WithSession(ctx, sess, func(sc mongo.SessionContext) error {
		if err := sc.StartTransaction(); err != nil {
			return err
		}
		if err := txnFn(sc); err != nil {
			_ = sc.AbortTransaction(sc)
			return err
		}
		return sc.CommitTransaction(sc)
	}); err != nil {
		return err
	}

	return nil
}

// GetSlot retrieves a slot document by ID.
func (repo *MongoAvailabilityRepo) GetSlot(ctx context.Context, slotID string) (*models.Slot, error) {
	var slot models.Slot
	if err := repo.coll.FindOne(ctx, bson.M{"id": slotID}).Decode(&slot); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error fetching slot %s: %w", slotID, err)
	}
	return &slot, nil
}

// ListSlots returns a teacher's slots starting from the given time.
func (repo *MongoAvailabilityRepo) ListSlots(ctx context.Context, teacherID string, from time.Time) ([]models.Slot, error) {
	filter := bson.M{"teacher_id": teacherID, "start": bson.M{"$gte": from}}
	opts := options.Find().SetSort(bson.D{{Key: "start", Value: 1}})
	cursor, err := repo.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("error listing slots for teacher %s: %w", teacherID, err)
	}
	defer cursor.Close(ctx)

	var slots []models.Slot
	if err := cursor.All(ctx, &slots); err != nil {
		return nil, fmt.Errorf("error decoding slots: %w", err)
	}
	return slots, nil
}

// DeleteSlot removes a slot only while it is Free.
func (repo *MongoAvailabilityRepo) DeleteSlot(ctx context.Context, slotID string) error {
	res, err := repo.coll.DeleteOne(ctx, bson.M{"id": slotID, "status": models.SlotFree})
	if err != nil {
		return fmt.Errorf("error deleting slot %s: %w", slotID, err)
	}
	if res.DeletedCount == 0 {
		// Distinguish a missing slot from a non-free one.
		if _, gerr := repo.GetSlot(ctx, slotID); gerr != nil {
			return gerr
		}
		return ErrNotFree
	}
	return nil
}

// HoldIfFree claims the slot with a single conditional update. The
// filter admits a Free slot or a Held slot whose expiry already lapsed,
// so an abandoned hold does not block the interval until the sweep runs.
func (repo *MongoAvailabilityRepo) HoldIfFree(ctx context.Context, slotID, holderRef string, now, expiry time.Time) (*models.Slot, error) {
	filter := bson.M{
		"id": slotID,
		"$or": []bson.M{
			{"status": models.SlotFree},
			{"status": models.SlotHeld, "hold_expiry": bson.M{"$lt": now}},
		},
	}
	update := bson.M{
		"$set": bson.M{
			"status":      models.SlotHeld,
			"hold_owner":  holderRef,
			"hold_expiry": expiry,
			"updated_at":  now,
		},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var slot models.Slot
	if err := repo.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&slot); err != nil {
		if err == mongo.ErrNoDocuments {
			// Either the slot does not exist or it is held/booked.
			if _, gerr := repo.GetSlot(ctx, slotID); gerr != nil {
				return nil, gerr
			}
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("hold update failed for slot %s: %w", slotID, err)
	}
	return &slot, nil
}

// ConfirmHold promotes a live hold to Booked.
func (repo *MongoAvailabilityRepo) ConfirmHold(ctx context.Context, holderRef string, now time.Time) (*models.Slot, error) {
	filter := bson.M{
		"hold_owner":  holderRef,
		"status":      models.SlotHeld,
		"hold_expiry": bson.M{"$gte": now},
	}
	update := bson.M{
		"$set":   bson.M{"status": models.SlotBooked, "updated_at": now},
		"$unset": bson.M{"hold_expiry": ""},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var slot models.Slot
	if err := repo.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&slot); err != nil {
		if err == mongo.ErrNoDocuments {
			// A hold that exists but missed the expiry window lapsed;
			// anything else means the holder never held the slot.
			n, cerr := repo.coll.CountDocuments(ctx, bson.M{"hold_owner": holderRef, "status": models.SlotHeld})
			if cerr != nil {
				return nil, fmt.Errorf("confirm lookup failed: %w", cerr)
			}
			if n > 0 {
				return nil, ErrHoldLapsed
			}
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("confirm update failed for holder %s: %w", holderRef, err)
	}
	return &slot, nil
}

// ReleaseHold idempotently returns a Held slot to Free. Booked slots
// are left alone; freeing those goes through FreeBooked.
func (repo *MongoAvailabilityRepo) ReleaseHold(ctx context.Context, holderRef string) error {
	filter := bson.M{"hold_owner": holderRef, "status": models.SlotHeld}
	update := bson.M{
		"$set":   bson.M{"status": models.SlotFree, "updated_at": time.Now().UTC()},
		"$unset": bson.M{"hold_owner": "", "hold_expiry": ""},
	}
	if _, err := repo.coll.UpdateOne(ctx, filter, update); err != nil {
		return fmt.Errorf("release update failed for holder %s: %w", holderRef, err)
	}
	return nil
}

// FreeBooked reverts a Booked slot to Free.
func (repo *MongoAvailabilityRepo) FreeBooked(ctx context.Context, slotID string) error {
	filter := bson.M{"id": slotID, "status": models.SlotBooked}
	update := bson.M{
		"$set":   bson.M{"status": models.SlotFree, "updated_at": time.Now().UTC()},
		"$unset": bson.M{"hold_owner": "", "hold_expiry": ""},
	}
	res, err := repo.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("free update failed for slot %s: %w", slotID, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// SweepExpiredHolds reverts all lapsed holds in one bulk update.
func (repo *MongoAvailabilityRepo) SweepExpiredHolds(ctx context.Context, now time.Time) (int64, error) {
	filter := bson.M{"status": models.SlotHeld, "hold_expiry": bson.M{"$lt": now}}
	update := bson.M{
		"$set":   bson.M{"status": models.SlotFree, "updated_at": now},
		"$unset": bson.M{"hold_owner": "", "hold_expiry": ""},
	}
	res, err := repo.coll.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("sweep update failed: %w", err)
	}
	return res.ModifiedCount, nil
}
