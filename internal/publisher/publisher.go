// Package publisher promotes draft articles to published once they are old
// enough and long enough.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/SmillingSword/news-reynra/internal/clock"
	"github.com/SmillingSword/news-reynra/internal/config"
	"github.com/SmillingSword/news-reynra/internal/types"
)

// Store is the persistence the publisher needs.
type Store interface {
	ListPublishable(ctx context.Context, createdBefore time.Time, limit int) ([]*types.Article, error)
	PublishArticle(ctx context.Context, id int64, at time.Time) error
}

// Recorder observes publish outcomes.
type Recorder interface {
	ObservePublish(outcome string)
}

// Publish outcomes reported to a Recorder.
const (
	OutcomePublished = "published"
	OutcomeTooShort  = "too_short"
	OutcomeFailed    = "failed"
)

// Options gates one publish run.
type Options struct {
	MinAge    time.Duration
	MinLength int
	Limit     int
}

// Result summarizes one publish run.
type Result struct {
	Considered int
	Published  []int64
	TooShort   int
	Failed     int
}

// Publisher publishes ready drafts.
type Publisher struct {
	store    Store
	clock    clock.Clock
	defaults Options
	recorder Recorder
	logger   *slog.Logger
}

// New creates a Publisher whose defaults come from cfg.
func New(store Store, clk clock.Clock, cfg config.PublisherConfig, logger *slog.Logger) *Publisher {
	return &Publisher{
		store: store,
		clock: clk,
		defaults: Options{
			MinAge:    cfg.MinAge,
			MinLength: cfg.MinLength,
			Limit:     cfg.BatchLimit,
		},
		logger: logger.With("component", "publisher"),
	}
}

// SetRecorder registers a metrics recorder.
func (p *Publisher) SetRecorder(r Recorder) {
	p.recorder = r
}

// Defaults returns the configured gates.
func (p *Publisher) Defaults() Options {
	return p.defaults
}

// PublishReady publishes drafts created at least opts.MinAge ago whose text
// content is at least opts.MinLength characters. Drafts failing the length
// gate stay drafts.
func (p *Publisher) PublishReady(ctx context.Context, opts Options) (Result, error) {
	now := p.clock.Now()
	drafts, err := p.store.ListPublishable(ctx, now.Add(-opts.MinAge), opts.Limit)
	if err != nil {
		return Result{}, fmt.Errorf("list publishable: %w", err)
	}

	res := Result{Considered: len(drafts)}
	for _, a := range drafts {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if n := types.TextLength(a.Content); n < opts.MinLength {
			res.TooShort++
			p.observe(OutcomeTooShort)
			p.logger.Debug("draft too short", "article_id", a.ID, "length", n, "min_length", opts.MinLength)
			continue
		}
		if err := p.store.PublishArticle(ctx, a.ID, now); err != nil {
			res.Failed++
			p.observe(OutcomeFailed)
			if !errors.Is(err, types.ErrNotFound) {
				p.logger.Error("publish failed", "article_id", a.ID, "error", err)
			}
			continue
		}
		res.Published = append(res.Published, a.ID)
		p.observe(OutcomePublished)
		p.logger.Info("article published", "article_id", a.ID, "slug", a.Slug)
	}

	p.logger.Info("publish run finished",
		"considered", res.Considered,
		"published", len(res.Published),
		"too_short", res.TooShort,
		"failed", res.Failed,
	)
	return res, nil
}

func (p *Publisher) observe(outcome string) {
	if p.recorder != nil {
		p.recorder.ObservePublish(outcome)
	}
}
