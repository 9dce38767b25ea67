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

type DownloadRepository struct {
	collection *mongo.Collection
}

func NewDownloadRepository(db *Database) *DownloadRepository {
	return &DownloadRepository{collection: db.Downloads}
}

type downloadDoc struct {
	ID           string    `bson:"_id"`
	URL          string    `bson:"url"`
	Name         string    `bson:"name"`
	Status       string    `bson:"status"`
	DownloadName string    `bson:"download_name,omitempty"`
	LockedBy     string    `bson:"locked_by,omitempty"`
	Retries      int       `bson:"retries"`
	CreatedAt    time.Time `bson:"created_at"`
}

func downloadFromDoc(doc downloadDoc) domain.Download {
	return domain.Download{
		ID:           domain.DownloadID(doc.ID),
		URL:          doc.URL,
		Name:         doc.Name,
		Status:       domain.DownloadStatus(doc.Status),
		DownloadName: doc.DownloadName,
		LockedBy:     domain.WorkerID(doc.LockedBy),
		Retries:      doc.Retries,
	}
}

// InsertFromFeed inserts a new PENDING download for the entry's URL. The
// unique index on url is the source of truth for dedup; a duplicate key
// error here just means another worker (or an earlier feed poll) already
// queued the same link, which is not an error condition from the caller's
// perspective.
func (r *DownloadRepository) InsertFromFeed(ctx context.Context, entry domain.FeedEntry) (domain.Download, error) {
	id := domain.DownloadID(entry.Link)
	doc := downloadDoc{
		ID:        string(id),
		URL:       entry.Link,
		Name:      entry.Title,
		Status:    string(domain.DownloadPending),
		Retries:   0,
		CreatedAt: time.Now().UTC(),
	}
	_, err := r.collection.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.Download{}, domain.ErrAlreadyExists
		}
		return domain.Download{}, err
	}
	return downloadFromDoc(doc), nil
}

func (r *DownloadRepository) ClaimPendingDownload(ctx context.Context, worker domain.WorkerID) (domain.Download, error) {
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetReturnDocument(options.After)

	var doc downloadDoc
	err := r.collection.FindOneAndUpdate(
		ctx,
		bson.M{"status": string(domain.DownloadPending)},
		bson.M{"$set": bson.M{
			"status":    string(domain.DownloadProcessing),
			"locked_by": string(worker),
		}},
		opts,
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Download{}, domain.ErrNotFound
		}
		return domain.Download{}, err
	}
	return downloadFromDoc(doc), nil
}

func (r *DownloadRepository) Get(ctx context.Context, id domain.DownloadID) (domain.Download, error) {
	var doc downloadDoc
	if err := r.collection.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Download{}, domain.ErrNotFound
		}
		return domain.Download{}, err
	}
	return downloadFromDoc(doc), nil
}

// SetDownloadName records the torrent-cache's canonical name and clears the
// transient lease set by ClaimPendingDownload, conditioned on the download
// still being PROCESSING.
func (r *DownloadRepository) SetDownloadName(ctx context.Context, id domain.DownloadID, name string) error {
	res, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": string(id), "status": string(domain.DownloadProcessing)},
		bson.M{
			"$set":   bson.M{"download_name": name},
			"$unset": bson.M{"locked_by": ""},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ResetToPending reverts a PROCESSING download to PENDING, clearing
// download_name and any lease, without touching retries.
func (r *DownloadRepository) ResetToPending(ctx context.Context, id domain.DownloadID) error {
	res, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": string(id), "status": string(domain.DownloadProcessing)},
		bson.M{
			"$set":   bson.M{"status": string(domain.DownloadPending)},
			"$unset": bson.M{"locked_by": "", "download_name": ""},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete removes a download outright, conditioned on it still being
// PROCESSING, once every file it names has been uploaded.
func (r *DownloadRepository) Delete(ctx context.Context, id domain.DownloadID) error {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": string(id), "status": string(domain.DownloadProcessing)})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkFailed records a failed upload attempt and either recycles the
// download back to PENDING or, once the retry ceiling is hit, deletes it
// outright so a permanently broken link does not occupy a retry slot
// forever. A soft failure leaves retries untouched.
func (r *DownloadRepository) MarkFailed(ctx context.Context, id domain.DownloadID, soft bool) error {
	var doc downloadDoc
	err := r.collection.FindOne(ctx, bson.M{"_id": string(id), "status": string(domain.DownloadProcessing)}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.ErrNotFound
		}
		return err
	}

	retries := doc.Retries
	if !soft {
		retries++
	}
	if retries >= domain.MaxRetries {
		res, err := r.collection.DeleteOne(ctx, bson.M{"_id": string(id), "status": string(domain.DownloadProcessing)})
		if err != nil {
			return err
		}
		if res.DeletedCount == 0 {
			return domain.ErrNotFound
		}
		return nil
	}

	res, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": string(id), "status": string(domain.DownloadProcessing)},
		bson.M{
			"$set":   bson.M{"status": string(domain.DownloadPending), "retries": retries},
			"$unset": bson.M{"locked_by": "", "download_name": ""},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *DownloadRepository) Unlock(ctx context.Context, id domain.DownloadID) error {
	res, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": string(id)},
		bson.M{
			"$set":   bson.M{"status": string(domain.DownloadPending)},
			"$unset": bson.M{"locked_by": ""},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *DownloadRepository) ListByLease(ctx context.Context, worker domain.WorkerID) ([]domain.Download, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"locked_by": string(worker)})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []downloadDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	downloads := make([]domain.Download, 0, len(docs))
	for _, doc := range docs {
		downloads = append(downloads, downloadFromDoc(doc))
	}
	return downloads, nil
}

func (r *DownloadRepository) List(ctx context.Context) ([]domain.Download, error) {
	cursor, err := r.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []downloadDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	downloads := make([]domain.Download, 0, len(docs))
	for _, doc := range docs {
		downloads = append(downloads, downloadFromDoc(doc))
	}
	return downloads, nil
}

func (r *DownloadRepository) CountPending(ctx context.Context) (int, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"status": string(domain.DownloadPending)})
	if err != nil {
		return 0, err
	}
	return int(count), nil
}
