package sink

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection is the subset of *mongo.Collection used by Mongo.
type Collection interface {
	ReplaceOne(ctx context.Context, filter any, replacement any, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error)
}

var _ Collection = (*mongo.Collection)(nil)

// Mongo upserts every record as a document keyed by Record.Key, so
// repeated runs replace content instead of duplicating it.
type Mongo struct {
	coll   Collection
	client *mongo.Client
}

// NewMongo creates a sink writing to coll.
func NewMongo(coll Collection) *Mongo {
	return &Mongo{coll: coll}
}

// ConnectMongo connects to uri and writes to database.collection.
// Close disconnects the client.
func ConnectMongo(ctx context.Context, uri, database, collection string) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	return &Mongo{
		coll:   client.Database(database).Collection(collection),
		client: client,
	}, nil
}

// Emit upserts records one by one and stops at the first failure.
func (m *Mongo) Emit(ctx context.Context, records []Record) error {
	opts := options.Replace().SetUpsert(true)
	for _, r := range records {
		if _, err := m.coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: r.Key}}, r, opts); err != nil {
			return fmt.Errorf("upsert %s: %w", r.Key, err)
		}
	}
	return nil
}

// Close disconnects a client created by ConnectMongo.
func (m *Mongo) Close(ctx context.Context) error {
	if m.client == nil {
		return nil
	}
	return m.client.Disconnect(ctx)
}
