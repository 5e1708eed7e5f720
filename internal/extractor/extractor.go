// Package extractor turns a news source's feed or listing page into candidate
// articles.
package extractor

import (
	"context"
	"log/slog"

	"github.com/SmillingSword/news-reynra/internal/clock"
	"github.com/SmillingSword/news-reynra/internal/fetcher"
	"github.com/SmillingSword/news-reynra/internal/parser"
	"github.com/SmillingSword/news-reynra/internal/types"
)

// Candidate origins.
const (
	OriginRSS  = "rss"
	OriginHTML = "html"
)

// linkBudget bounds how many article pages the HTML path fetches relative to
// max_articles_per_scrape; the cap itself is applied after filtering.
const linkBudget = 3

// Extractor produces candidates for a source.
type Extractor struct {
	fetcher fetcher.Fetcher
	parser  *parser.Parser
	dates   *DateParser
	clock   clock.Clock
	logger  *slog.Logger
}

// New creates an Extractor.
func New(f fetcher.Fetcher, p *parser.Parser, dates *DateParser, clk clock.Clock, logger *slog.Logger) *Extractor {
	return &Extractor{
		fetcher: f,
		parser:  p,
		dates:   dates,
		clock:   clk,
		logger:  logger.With("component", "extractor"),
	}
}

// Extract returns the candidates a source currently lists. Sources with an
// RSS URL use the feed; a feed that cannot be fetched or parsed falls through
// to the HTML listing. Fetch failures are logged and yield no candidates;
// only context cancellation is returned as an error.
func (e *Extractor) Extract(ctx context.Context, source *types.NewsSource) ([]types.Candidate, error) {
	logger := e.logger.With("source", source.Slug)

	if source.RSSURL != "" {
		candidates, err := e.extractRSS(ctx, source)
		if err == nil {
			logger.Debug("feed extracted", "candidates", len(candidates))
			return candidates, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn("feed failed, falling back to html", "rss_url", source.RSSURL, "error", err)
	}

	candidates := e.extractHTML(ctx, source, logger)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	logger.Debug("listing extracted", "candidates", len(candidates))
	return candidates, nil
}

func (e *Extractor) fetch(ctx context.Context, rawURL, tag, fetcherType string) (*types.Response, error) {
	req, err := types.NewRequest(rawURL)
	if err != nil {
		return nil, err
	}
	req.Tag = tag
	req.FetcherType = fetcherType
	req.CreatedAt = e.clock.Now()
	return e.fetcher.Fetch(ctx, req)
}
