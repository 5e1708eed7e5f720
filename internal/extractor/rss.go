package extractor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/SmillingSword/news-reynra/internal/types"
)

func (e *Extractor) extractRSS(ctx context.Context, source *types.NewsSource) ([]types.Candidate, error) {
	resp, err := e.fetch(ctx, source.RSSURL, "feed", types.FetcherHTTP)
	if err != nil {
		return nil, err
	}
	return e.feedCandidates(resp)
}

// feedCandidates turns an RSS or Atom body into candidates, skipping items
// without a link or title.
func (e *Extractor) feedCandidates(resp *types.Response) ([]types.Candidate, error) {
	feed, err := gofeed.NewParser().ParseString(string(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	candidates := make([]types.Candidate, 0, len(feed.Items))
	for _, item := range feed.Items {
		link := itemLink(item)
		if link == "" || strings.TrimSpace(item.Title) == "" {
			continue
		}

		content := item.Content
		if strings.TrimSpace(content) == "" {
			content = item.Description
		}

		c := types.Candidate{
			Title:       types.StripTags(item.Title),
			URL:         link,
			Content:     strings.TrimSpace(content),
			Excerpt:     types.StripTags(item.Description),
			ImageURL:    itemImage(item),
			PublishedAt: e.itemDate(item),
			AuthorName:  itemAuthor(item),
			Origin:      OriginRSS,
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

// itemLink prefers the explicit link, falling back to a URL-shaped GUID.
func itemLink(item *gofeed.Item) string {
	if item.Link != "" {
		return strings.TrimSpace(item.Link)
	}
	if strings.HasPrefix(item.GUID, "http") {
		return item.GUID
	}
	return ""
}

func itemImage(item *gofeed.Item) string {
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}
	for _, enc := range item.Enclosures {
		if strings.HasPrefix(enc.Type, "image/") {
			return enc.URL
		}
	}
	return ""
}

func itemAuthor(item *gofeed.Item) string {
	if item.Author != nil && item.Author.Name != "" {
		return item.Author.Name
	}
	for _, a := range item.Authors {
		if a != nil && a.Name != "" {
			return a.Name
		}
	}
	if item.DublinCoreExt != nil && len(item.DublinCoreExt.Creator) > 0 {
		return item.DublinCoreExt.Creator[0]
	}
	return ""
}

func (e *Extractor) itemDate(item *gofeed.Item) time.Time {
	if item.PublishedParsed != nil {
		return *item.PublishedParsed
	}
	if item.UpdatedParsed != nil {
		return *item.UpdatedParsed
	}
	return e.dates.Parse(item.Published)
}
