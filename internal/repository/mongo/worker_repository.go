package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"rssbox/internal/domain"
)

type WorkerRepository struct {
	collection *mongo.Collection
}

func NewWorkerRepository(db *Database) *WorkerRepository {
	return &WorkerRepository{collection: db.Workers}
}

type workerDoc struct {
	ID            string    `bson:"_id"`
	LastHeartbeat time.Time `bson:"last_heartbeat"`
}

func (r *WorkerRepository) Heartbeat(ctx context.Context, id domain.WorkerID, at time.Time) error {
	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": string(id)},
		bson.M{"$set": bson.M{"last_heartbeat": at}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *WorkerRepository) ListStale(ctx context.Context, olderThan time.Time) ([]domain.Worker, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"last_heartbeat": bson.M{"$lt": olderThan}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []workerDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	workers := make([]domain.Worker, 0, len(docs))
	for _, doc := range docs {
		workers = append(workers, domain.Worker{ID: domain.WorkerID(doc.ID), LastHeartbeat: doc.LastHeartbeat})
	}
	return workers, nil
}

func (r *WorkerRepository) Delete(ctx context.Context, id domain.WorkerID) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": string(id)})
	return err
}
