// Package storage persists news sources, scraping jobs and articles.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/SmillingSword/news-reynra/internal/config"
	"github.com/SmillingSword/news-reynra/internal/types"
)

// SourceStore persists news sources and their scrape counters.
type SourceStore interface {
	// SyncSources upserts configured sources by slug. Configuration fields
	// are overwritten; counters, timestamps and auto_scraping_enabled of an
	// existing row are kept and copied back into the passed sources along
	// with their IDs.
	SyncSources(ctx context.Context, sources []*types.NewsSource) error
	ListSources(ctx context.Context) ([]*types.NewsSource, error)
	GetSource(ctx context.Context, id int64) (*types.NewsSource, error)
	// UpdateSourceState writes the runtime fields of a source.
	UpdateSourceState(ctx context.Context, source *types.NewsSource) error
}

// JobStore persists scraping jobs.
type JobStore interface {
	CreateJob(ctx context.Context, job *types.ScrapingJob) error
	UpdateJob(ctx context.Context, job *types.ScrapingJob) error
	GetJob(ctx context.Context, id int64) (*types.ScrapingJob, error)
	// ListRetryableJobs returns failed jobs due for retry at now whose source
	// has no newer job.
	ListRetryableJobs(ctx context.Context, now time.Time) ([]*types.ScrapingJob, error)
}

// ArticleStore persists articles and their authors and categories.
type ArticleStore interface {
	// FindDuplicate returns an article whose title key is titleKey or whose
	// slug or source slug is slug, or types.ErrNotFound.
	FindDuplicate(ctx context.Context, titleKey, slug string) (*types.Article, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	// CreateArticle assigns the article an ID. It returns types.ErrDuplicate
	// when the slug, title key or source slug is already taken.
	CreateArticle(ctx context.Context, article *types.Article) error
	// AttachCategories links an article to categories, creating missing ones.
	AttachCategories(ctx context.Context, articleID int64, categories []types.Category) error
	// ResolveAuthor finds an author by slug or creates one.
	ResolveAuthor(ctx context.Context, name string) (*types.Author, error)
	// ListPublishable returns drafts created at or before the cutoff, oldest
	// first.
	ListPublishable(ctx context.Context, createdBefore time.Time, limit int) ([]*types.Article, error)
	// PublishArticle marks a draft published. It returns types.ErrNotFound if
	// no draft has the ID.
	PublishArticle(ctx context.Context, id int64, at time.Time) error
}

// Store is a complete persistence backend.
type Store interface {
	SourceStore
	JobStore
	ArticleStore

	// Close releases resources.
	Close() error

	// Name returns the backend identifier.
	Name() string
}

// Open creates the backend selected by cfg.
func Open(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryStore(logger), nil
	case "postgres":
		s, err := NewPostgresStore(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "mongodb":
		s, err := NewMongoStore(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

func wrap(backend, op string, err error) error {
	return &types.StorageError{Backend: backend, Op: op, Err: err}
}
