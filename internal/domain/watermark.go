package domain

import "time"

// FeedWatermark tracks the newest feed entry already handed to the consumer
// callback, keyed by feed id (defaults to the feed URL).
type FeedWatermark struct {
	ID          string
	LastSavedOn time.Time
}
