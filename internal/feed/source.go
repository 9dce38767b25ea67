package feed

import (
	"context"
	"time"

	"github.com/mmcdole/gofeed"

	"rssbox/internal/domain"
)

// Source fetches and parses an RSS/Atom feed. gofeed abstracts over both
// formats so callers never branch on feed type.
type Source struct {
	parser *gofeed.Parser
}

func New() *Source {
	return &Source{parser: gofeed.NewParser()}
}

func (s *Source) Fetch(ctx context.Context, url string) ([]domain.FeedEntry, error) {
	feed, err := s.parser.ParseURLWithContext(url, ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]domain.FeedEntry, 0, len(feed.Items))
	for _, item := range feed.Items {
		entries = append(entries, domain.FeedEntry{
			Link:      item.Link,
			Title:     item.Title,
			Published: publishedTime(item),
		})
	}
	return entries, nil
}

func publishedTime(item *gofeed.Item) time.Time {
	if item.PublishedParsed != nil {
		return *item.PublishedParsed
	}
	if item.UpdatedParsed != nil {
		return *item.UpdatedParsed
	}
	return time.Time{}
}
