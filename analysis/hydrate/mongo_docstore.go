package hydrate

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoDocStore is the DocStore backed by the "analysis_reports" collection
// used by the persistence layout.
type MongoDocStore struct {
	coll *mongo.Collection
}

var _ DocStore = (*MongoDocStore)(nil)

// NewMongoDocStore connects coll from an existing client, defaulting to
// "analysis_reports".
func NewMongoDocStore(client *mongo.Client, database, collection string) *MongoDocStore {
	if collection == "" {
		collection = "analysis_reports"
	}
	return &MongoDocStore{coll: client.Database(database).Collection(collection)}
}

// GetReport looks up the hydrated report document by task_id (or embedded
// analysis_id). A missing document is not an error: it returns (nil, nil)
// so the hydrator simply skips this layer.
func (s *MongoDocStore) GetReport(ctx context.Context, taskID string) (map[string]any, error) {
	var doc bson.M
	err := s.coll.FindOne(ctx, bson.D{{Key: "task_id", Value: taskID}}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("hydrate: get report %s: %w", taskID, err)
	}
	return map[string]any(doc), nil
}

// EnsureIndexes creates the lookup index on task_id.
func (s *MongoDocStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "task_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}
