package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// BillCollection is the collection holding bill analyses.
const BillCollection = "bill_analyses"

const queryTimeout = 5 * time.Second

var mongoClient *mongo.Client
var mongoDB *mongo.Database

// InitMongoDB connects to MongoDB and verifies the connection
func InitMongoDB(uri, dbName string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	mongoClient = client
	mongoDB = client.Database(dbName)

	log.Printf("Connected to MongoDB (%s)", dbName)
	return nil
}

// GetMongoDB returns the MongoDB database instance
func GetMongoDB() *mongo.Database {
	return mongoDB
}

// CloseMongoDB closes MongoDB connection
func CloseMongoDB() {
	if mongoClient == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := mongoClient.Disconnect(ctx); err != nil {
		log.Printf("MongoDB disconnect: %v", err)
		return
	}
	log.Println("MongoDB connection closed")
}

// MongoBillStore is the MongoDB-backed BillStore.
type MongoBillStore struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewMongoBillStore wraps a collection, usually GetMongoDB().Collection(BillCollection).
func NewMongoBillStore(coll *mongo.Collection) *MongoBillStore {
	return &MongoBillStore{coll: coll, now: time.Now}
}

// EnsureIndexes creates the per-user listing index and the createdAt index
// used by the retention sweep.
func (s *MongoBillStore) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("userId_createdAt"),
		},
		{
			Keys:    bson.D{{Key: "createdAt", Value: 1}},
			Options: options.Index().SetName("createdAt"),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create indexes on %s: %w", s.coll.Name(), err)
	}
	return nil
}

func (s *MongoBillStore) CountByUser(ctx context.Context, userID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	n, err := s.coll.CountDocuments(ctx, bson.M{"userId": userID})
	if err != nil {
		return 0, fmt.Errorf("failed to count bills: %w", err)
	}
	return n, nil
}

// Insert stores rec and fills in its id and timestamps.
func (s *MongoBillStore) Insert(ctx context.Context, rec *BillRecord) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	now := s.now().UTC()
	if rec.ID.IsZero() {
		rec.ID = primitive.NewObjectID()
	}
	rec.CreatedAt = now
	rec.UpdatedAt = now

	if _, err := s.coll.InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("failed to insert bill: %w", err)
	}
	return nil
}

func (s *MongoBillStore) FindForUser(ctx context.Context, id, userID string) (*BillRecord, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var rec BillRecord
	err = s.coll.FindOne(ctx, bson.M{"_id": objectID, "userId": userID}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query bill: %w", err)
	}
	return &rec, nil
}

// ListForUser returns one page of records, newest first, without extracted
// text, plus the total number of matching records.
func (s *MongoBillStore) ListForUser(ctx context.Context, userID string, q ListQuery) ([]BillRecord, int64, error) {
	q = q.Normalized()

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	filter := bson.M{"userId": userID}
	if q.Status != "" {
		filter["status"] = q.Status
	}

	total, err := s.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count bills: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(int64((q.Page - 1) * q.Limit)).
		SetLimit(int64(q.Limit)).
		SetProjection(bson.M{"extractedText": 0})

	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list bills: %w", err)
	}
	defer cursor.Close(ctx)

	records := []BillRecord{}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, 0, fmt.Errorf("failed to decode bills: %w", err)
	}
	return records, total, nil
}

func (s *MongoBillStore) DeleteForUser(ctx context.Context, id, userID string) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": objectID, "userId": userID})
	if err != nil {
		return fmt.Errorf("failed to delete bill: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteCreatedBefore removes every record created strictly before cutoff,
// regardless of owner or status.
func (s *MongoBillStore) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	res, err := s.coll.DeleteMany(ctx, bson.M{"createdAt": bson.M{"$lt": cutoff.UTC()}})
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired bills: %w", err)
	}
	return res.DeletedCount, nil
}

func (s *MongoBillStore) CountByStatus(ctx context.Context, userID string) (StatusCounts, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"userId": userID}}},
		{{Key: "$group", Value: bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}}},
	}
	cursor, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return StatusCounts{}, fmt.Errorf("failed to aggregate bills: %w", err)
	}
	defer cursor.Close(ctx)

	var groups []struct {
		Status Status `bson:"_id"`
		Count  int64  `bson:"count"`
	}
	if err := cursor.All(ctx, &groups); err != nil {
		return StatusCounts{}, fmt.Errorf("failed to decode bill counts: %w", err)
	}

	var counts StatusCounts
	for _, g := range groups {
		counts.add(g.Status, g.Count)
	}
	return counts, nil
}

// RecentForUser returns the n newest records with only the summary fields.
func (s *MongoBillStore) RecentForUser(ctx context.Context, userID string, n int) ([]BillRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(int64(n)).
		SetProjection(bson.M{
			"originalFileName":         1,
			"createdAt":                1,
			"status":                   1,
			"analysis.overall_summary": 1,
		})

	cursor, err := s.coll.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent bills: %w", err)
	}
	defer cursor.Close(ctx)

	records := []BillRecord{}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode recent bills: %w", err)
	}
	return records, nil
}
