package ports

import "context"

// TxRunner executes fn within a single multi-document transaction,
// committing or aborting every write fn makes as one unit. It is used
// wherever an Account transition and its paired Download transition must
// land together — reset, mark_as_failed, and a successful submit or
// completion.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
