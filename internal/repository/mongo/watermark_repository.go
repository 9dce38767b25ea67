package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"rssbox/internal/domain"
)

type WatermarkRepository struct {
	collection *mongo.Collection
}

func NewWatermarkRepository(db *Database) *WatermarkRepository {
	return &WatermarkRepository{collection: db.Watermarks}
}

type watermarkDoc struct {
	ID          string    `bson:"_id"`
	LastSavedOn time.Time `bson:"last_saved_on"`
}

func (r *WatermarkRepository) Get(ctx context.Context, feedID string) (domain.FeedWatermark, error) {
	var doc watermarkDoc
	if err := r.collection.FindOne(ctx, bson.M{"_id": feedID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.FeedWatermark{ID: feedID}, domain.ErrNotFound
		}
		return domain.FeedWatermark{}, err
	}
	return domain.FeedWatermark{ID: doc.ID, LastSavedOn: doc.LastSavedOn}, nil
}

// Advance moves the watermark forward only if publishedAt is newer than the
// stored value, so a feed poll that races the reaper or another worker can
// never regress the cursor.
func (r *WatermarkRepository) Advance(ctx context.Context, feedID string, publishedAt time.Time) error {
	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": feedID, "last_saved_on": bson.M{"$lt": publishedAt}},
		bson.M{"$set": bson.M{"last_saved_on": publishedAt}},
		options.Update().SetUpsert(true),
	)
	if mongo.IsDuplicateKeyError(err) {
		// The stored watermark is already at or past publishedAt, so the
		// filter missed and the upsert collided with the existing _id.
		return nil
	}
	return err
}
