package domain

import "time"

// FeedEntry is one item announced on the RSS/Atom feed.
type FeedEntry struct {
	Link      string
	Title     string
	Published time.Time
}
