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

type AccountRepository struct {
	collection *mongo.Collection
}

func NewAccountRepository(db *Database) *AccountRepository {
	return &AccountRepository{collection: db.Accounts}
}

type accountDoc struct {
	ID            string    `bson:"_id"`
	Credentials   string    `bson:"credentials"`
	Status        string    `bson:"status"`
	LockedBy      string    `bson:"locked_by,omitempty"`
	DownloadID    string    `bson:"download_id,omitempty"`
	AddedAt       time.Time `bson:"added_at,omitempty"`
	LastCheckedAt time.Time `bson:"last_checked_at,omitempty"`
	Priority      int       `bson:"priority"`
}

func accountFromDoc(doc accountDoc) domain.Account {
	return domain.Account{
		ID:            domain.AccountID(doc.ID),
		Credentials:   doc.Credentials,
		Status:        domain.AccountStatus(doc.Status),
		LockedBy:      domain.WorkerID(doc.LockedBy),
		DownloadID:    domain.DownloadID(doc.DownloadID),
		AddedAt:       doc.AddedAt,
		LastCheckedAt: doc.LastCheckedAt,
		Priority:      doc.Priority,
	}
}

// AcquireFreeAccount atomically claims the highest-priority IDLE account.
// The sort ensures fairness across accounts of equal priority by favoring
// whichever was checked least recently.
func (r *AccountRepository) AcquireFreeAccount(ctx context.Context, worker domain.WorkerID, download domain.DownloadID) (domain.Account, error) {
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "priority", Value: -1}, {Key: "last_checked_at", Value: 1}}).
		SetReturnDocument(options.After)

	var doc accountDoc
	err := r.collection.FindOneAndUpdate(
		ctx,
		bson.M{"status": string(domain.AccountIdle)},
		bson.M{"$set": bson.M{
			"status":      string(domain.AccountProcessing),
			"locked_by":   string(worker),
			"download_id": string(download),
			"added_at":    time.Now().UTC(),
		}},
		opts,
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Account{}, domain.ErrNotFound
		}
		return domain.Account{}, err
	}
	return accountFromDoc(doc), nil
}

// LeaseOneDownloading atomically claims the least-recently-checked
// DOWNLOADING account so the check_downloads poll cycles fairly through
// the pool instead of starving accounts at the back.
func (r *AccountRepository) LeaseOneDownloading(ctx context.Context, worker domain.WorkerID) (domain.Account, error) {
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "last_checked_at", Value: 1}}).
		SetReturnDocument(options.After)

	var doc accountDoc
	err := r.collection.FindOneAndUpdate(
		ctx,
		bson.M{"status": string(domain.AccountDownloading)},
		bson.M{"$set": bson.M{
			"status":          string(domain.AccountLocked),
			"locked_by":       string(worker),
			"last_checked_at": time.Now().UTC(),
		}},
		opts,
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Account{}, domain.ErrNotFound
		}
		return domain.Account{}, err
	}
	return accountFromDoc(doc), nil
}

func (r *AccountRepository) MarkDownloading(ctx context.Context, id domain.AccountID, checkedAt time.Time) error {
	res, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": string(id), "status": string(domain.AccountProcessing)},
		bson.M{
			"$set":   bson.M{"status": string(domain.AccountDownloading), "last_checked_at": checkedAt},
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

func (r *AccountRepository) MarkUploading(ctx context.Context, id domain.AccountID, worker domain.WorkerID) error {
	res, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": string(id), "status": string(domain.AccountLocked), "locked_by": string(worker)},
		bson.M{"$set": bson.M{"status": string(domain.AccountUploading)}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *AccountRepository) Reset(ctx context.Context, id domain.AccountID, from domain.AccountStatus) error {
	res, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": string(id), "status": string(from)},
		bson.M{
			"$set":   bson.M{"status": string(domain.AccountIdle)},
			"$unset": bson.M{"locked_by": "", "download_id": "", "added_at": ""},
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

func (r *AccountRepository) ReturnToDownloading(ctx context.Context, id domain.AccountID, worker domain.WorkerID) error {
	res, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": string(id), "status": string(domain.AccountLocked), "locked_by": string(worker)},
		bson.M{
			"$set":   bson.M{"status": string(domain.AccountDownloading)},
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

func (r *AccountRepository) ReclaimToDownloading(ctx context.Context, id domain.AccountID, from domain.AccountStatus) error {
	res, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": string(id), "status": string(from)},
		bson.M{
			"$set":   bson.M{"status": string(domain.AccountDownloading)},
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

func (r *AccountRepository) ReassignLease(ctx context.Context, id domain.AccountID, newWorker domain.WorkerID) error {
	res, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": string(id)},
		bson.M{"$set": bson.M{"locked_by": string(newWorker)}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *AccountRepository) Get(ctx context.Context, id domain.AccountID) (domain.Account, error) {
	var doc accountDoc
	if err := r.collection.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Account{}, domain.ErrNotFound
		}
		return domain.Account{}, err
	}
	return accountFromDoc(doc), nil
}

func (r *AccountRepository) List(ctx context.Context) ([]domain.Account, error) {
	cursor, err := r.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []accountDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	accounts := make([]domain.Account, 0, len(docs))
	for _, doc := range docs {
		accounts = append(accounts, accountFromDoc(doc))
	}
	return accounts, nil
}

func (r *AccountRepository) ListByLease(ctx context.Context, worker domain.WorkerID) ([]domain.Account, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"locked_by": string(worker)})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []accountDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	accounts := make([]domain.Account, 0, len(docs))
	for _, doc := range docs {
		accounts = append(accounts, accountFromDoc(doc))
	}
	return accounts, nil
}
