package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
)

// WithTransaction runs fn inside a multi-document Mongo session, used where
// an Account transition and its paired Download transition must commit or
// abort together (mark_as_downloading, mark_as_failed, reset).
func WithTransaction(ctx context.Context, client *mongo.Client, fn func(sessCtx mongo.SessionContext) error) error {
	session, err := client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		return nil, fn(sessCtx)
	})
	return err
}

// Transactor adapts WithTransaction to ports.TxRunner. A mongo.SessionContext
// satisfies context.Context, so repository calls made with the ctx passed
// into fn are automatically scoped to the transaction.
type Transactor struct {
	client *mongo.Client
}

func NewTransactor(client *mongo.Client) *Transactor {
	return &Transactor{client: client}
}

func (t *Transactor) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return WithTransaction(ctx, t.client, func(sessCtx mongo.SessionContext) error {
		return fn(sessCtx)
	})
}
