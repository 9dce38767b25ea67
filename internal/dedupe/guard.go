package dedupe

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "rssbox:seen:"

// Guard is an advisory, Redis-backed fast path in front of the Mongo unique
// index on downloads.url. It lets the feed watcher skip an InsertFromFeed
// round trip for links it has already queued recently, without ever being
// the source of truth for dedup: a false negative here just costs an extra
// Mongo write, never a correctness bug.
type Guard struct {
	client *redis.Client
	ttl    time.Duration
}

func New(client *redis.Client, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Guard{client: client, ttl: ttl}
}

// Seen reports whether link was already marked, and marks it if not. A
// Redis error is treated as "not seen" so the guard degrades to always
// deferring to Mongo's unique index rather than failing the pipeline.
func (g *Guard) Seen(ctx context.Context, link string) bool {
	ok, err := g.client.SetNX(ctx, keyPrefix+link, 1, g.ttl).Result()
	if err != nil {
		return false
	}
	return !ok
}
