package ports

import "context"

// DedupeGuard is an optional, advisory fast path for skipping a link the
// caller has already processed recently. It is never the source of truth
// for uniqueness — that remains the downloads.url unique index.
type DedupeGuard interface {
	Seen(ctx context.Context, link string) bool
}
