package extractor

import (
	"bytes"
	"context"
	"log/slog"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"

	"github.com/SmillingSword/news-reynra/internal/parser"
	"github.com/SmillingSword/news-reynra/internal/types"
)

// Attributes read, in order, for the image and date selectors.
var (
	imageAttrs = []string{"src", "data-src", "data-lazy-src", "data-original", "content", "href"}
	dateAttrs  = []string{"datetime", "content", "data-date", "title"}
)

func (e *Extractor) extractHTML(ctx context.Context, source *types.NewsSource, logger *slog.Logger) []types.Candidate {
	sc := source.ScrapingConfig
	listing, err := e.fetch(ctx, source.URL, "listing", sc.Fetcher)
	if err != nil {
		logger.Warn("listing fetch failed", "url", source.URL, "error", err)
		return nil
	}

	// Some sources serve their feed at the main URL.
	if listing.IsFeed() {
		candidates, err := e.feedCandidates(listing)
		if err != nil {
			logger.Warn("listing feed parse failed", "url", source.URL, "error", err)
			return nil
		}
		return candidates
	}
	if sc.Selectors.ArticleLinks == "" {
		logger.Warn("no article_links selector, nothing to extract")
		return nil
	}

	links := e.articleLinks(listing, source)
	budget := sc.Limits.MaxArticlesPerScrape * linkBudget
	if budget > 0 && len(links) > budget {
		links = links[:budget]
	}
	logger.Debug("article links found", "count", len(links))

	var candidates []types.Candidate
	for _, link := range links {
		if ctx.Err() != nil {
			return candidates
		}
		c, ok := e.extractArticle(ctx, link, sc, logger)
		if ok {
			candidates = append(candidates, c)
		}
	}
	return candidates
}

// articleLinks resolves links against the source base URL and removes
// duplicates by canonical form, keeping document order.
func (e *Extractor) articleLinks(listing *types.Response, source *types.NewsSource) []string {
	page := e.parser.Page(listing.Body, listing.BaseURL())
	seen := make(map[string]bool)
	var out []string
	for _, link := range page.Links(source.ScrapingConfig.Selectors.ArticleLinks) {
		key := parser.CanonicalizeURL(link)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, link)
	}
	return out
}

func (e *Extractor) extractArticle(ctx context.Context, link string, sc types.ScrapingConfig, logger *slog.Logger) (types.Candidate, bool) {
	resp, err := e.fetch(ctx, link, "article", sc.Fetcher)
	if err != nil {
		logger.Warn("article fetch failed", "url", link, "error", err)
		return types.Candidate{}, false
	}

	sel := sc.Selectors
	page := e.parser.Page(resp.Body, resp.BaseURL())
	meta := page.Meta()

	c := types.Candidate{
		Title:      page.Text(sel.Title),
		URL:        link,
		Content:    page.HTML(sel.Content),
		Excerpt:    page.Text(sel.Excerpt),
		ImageURL:   page.Resolve(page.Attr(sel.Image, false, imageAttrs...)),
		AuthorName: page.Text(sel.Author),
		Origin:     OriginHTML,
	}

	if c.Content == "" {
		title, content := readable(resp.Body, resp.BaseURL())
		c.Content = content
		if c.Title == "" {
			c.Title = title
		}
	}
	if c.Title == "" {
		c.Title = meta.Title
	}
	if c.Excerpt == "" {
		c.Excerpt = meta.Description
	}
	if c.ImageURL == "" {
		c.ImageURL = meta.Image
	}
	if c.AuthorName == "" {
		c.AuthorName = meta.Author
	}

	rawDate := page.Attr(sel.Date, true, dateAttrs...)
	if rawDate == "" {
		rawDate = meta.Published
	}
	c.PublishedAt = e.dates.Parse(rawDate)

	c.Title = strings.TrimSpace(c.Title)
	if c.Title == "" {
		logger.Debug("article without title skipped", "url", link)
		return types.Candidate{}, false
	}
	return c, true
}

// readable runs readability over the page for sources whose content
// selector matched nothing.
func readable(body []byte, pageURL string) (title, content string) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", ""
	}
	article, err := readability.FromReader(bytes.NewReader(body), u)
	if err != nil {
		return "", ""
	}
	return strings.TrimSpace(article.Title), strings.TrimSpace(article.Content)
}
