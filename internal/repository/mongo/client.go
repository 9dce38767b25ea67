package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Connect dials MongoDB, applying any extra client options (e.g. an
// otelmongo command monitor) on top of the base URI.
func Connect(ctx context.Context, uri string, extra ...*options.ClientOptions) (*mongo.Client, error) {
	opts := append([]*options.ClientOptions{options.Client().ApplyURI(uri)}, extra...)
	client, err := mongo.Connect(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Database groups the collections this service owns within one logical
// Mongo database.
type Database struct {
	Accounts   *mongo.Collection
	Downloads  *mongo.Collection
	Workers    *mongo.Collection
	Watermarks *mongo.Collection
	Files      *mongo.Collection
}

func NewDatabase(client *mongo.Client, name string) *Database {
	db := client.Database(name)
	return &Database{
		Accounts:   db.Collection("accounts"),
		Downloads:  db.Collection("downloads"),
		Workers:    db.Collection("workers"),
		Watermarks: db.Collection("watermarks"),
		Files:      db.Collection("files"),
	}
}

// EnsureIndexes creates the indexes the repositories rely on for
// correctness, not just speed: the unique index on downloads.url is what
// makes feed re-ingestion idempotent.
func (d *Database) EnsureIndexes(ctx context.Context) error {
	if _, err := d.Downloads.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "url", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "locked_by", Value: 1}}},
	}); err != nil {
		return err
	}
	if _, err := d.Accounts.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "priority", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "last_checked_at", Value: 1}}},
		{Keys: bson.D{{Key: "locked_by", Value: 1}}},
	}); err != nil {
		return err
	}
	if _, err := d.Workers.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "last_heartbeat", Value: 1}}},
	}); err != nil {
		return err
	}
	return nil
}
