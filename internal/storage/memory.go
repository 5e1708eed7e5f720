package storage

import (
	"context"
	"log/slog"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/SmillingSword/news-reynra/internal/types"
)

// MemoryStore keeps everything in process memory. Slug and title key
// uniqueness is enforced the same way the database backends enforce it.
type MemoryStore struct {
	mu sync.Mutex

	sources  map[int64]*types.NewsSource
	jobs     map[int64]*types.ScrapingJob
	articles map[int64]*types.Article
	authors  map[string]*types.Author // by slug

	categories       map[string]*types.Category // by slug
	articleCategory  map[int64]map[int64]struct{}
	articleSlugs     map[string]int64
	articleTitleKeys map[string]int64
	articleSrcSlugs  map[string]int64

	nextSource, nextJob, nextArticle, nextAuthor, nextCategory int64

	logger *slog.Logger
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(logger *slog.Logger) *MemoryStore {
	return &MemoryStore{
		sources:          make(map[int64]*types.NewsSource),
		jobs:             make(map[int64]*types.ScrapingJob),
		articles:         make(map[int64]*types.Article),
		authors:          make(map[string]*types.Author),
		categories:       make(map[string]*types.Category),
		articleCategory:  make(map[int64]map[int64]struct{}),
		articleSlugs:     make(map[string]int64),
		articleTitleKeys: make(map[string]int64),
		articleSrcSlugs:  make(map[string]int64),
		logger:           logger.With("component", "memory_store"),
	}
}

func (s *MemoryStore) Name() string { return "memory" }

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger.Debug("memory store closing", "articles", len(s.articles), "jobs", len(s.jobs))
	return nil
}

// --- sources ---

func (s *MemoryStore) SyncSources(ctx context.Context, sources []*types.NewsSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bySlug := make(map[string]*types.NewsSource, len(s.sources))
	for _, src := range s.sources {
		bySlug[src.Slug] = src
	}

	for _, src := range sources {
		existing, ok := bySlug[src.Slug]
		if !ok {
			s.nextSource++
			src.ID = s.nextSource
			s.sources[src.ID] = cloneSource(src)
			bySlug[src.Slug] = s.sources[src.ID]
			continue
		}
		src.ID = existing.ID
		copyRuntime(src, existing)
		s.sources[src.ID] = cloneSource(src)
	}
	return nil
}

func (s *MemoryStore) ListSources(ctx context.Context) ([]*types.NewsSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*types.NewsSource, 0, len(s.sources))
	for _, src := range s.sources {
		out = append(out, cloneSource(src))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) GetSource(ctx context.Context, id int64) (*types.NewsSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, ok := s.sources[id]
	if !ok {
		return nil, wrap("memory", "get source", types.ErrNotFound)
	}
	return cloneSource(src), nil
}

func (s *MemoryStore) UpdateSourceState(ctx context.Context, source *types.NewsSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.sources[source.ID]
	if !ok {
		return wrap("memory", "update source", types.ErrNotFound)
	}
	copyRuntime(stored, source)
	return nil
}

// --- jobs ---

func (s *MemoryStore) CreateJob(ctx context.Context, job *types.ScrapingJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextJob++
	job.ID = s.nextJob
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *MemoryStore) UpdateJob(ctx context.Context, job *types.ScrapingJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; !ok {
		return wrap("memory", "update job", types.ErrNotFound)
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *MemoryStore) GetJob(ctx context.Context, id int64) (*types.ScrapingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, wrap("memory", "get job", types.ErrNotFound)
	}
	return cloneJob(job), nil
}

func (s *MemoryStore) ListRetryableJobs(ctx context.Context, now time.Time) ([]*types.ScrapingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	latest := make(map[int64]int64)
	for id, job := range s.jobs {
		if id > latest[job.NewsSourceID] {
			latest[job.NewsSourceID] = id
		}
	}

	var out []*types.ScrapingJob
	for id, job := range s.jobs {
		if job.CanRetry(now) && latest[job.NewsSourceID] == id {
			out = append(out, cloneJob(job))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextRetryAt.Before(*out[j].NextRetryAt) })
	return out, nil
}

// --- articles ---

func (s *MemoryStore) FindDuplicate(ctx context.Context, titleKey, slug string) (*types.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.articleTitleKeys[titleKey]; ok && titleKey != "" {
		return cloneArticle(s.articles[id]), nil
	}
	if slug != "" {
		if id, ok := s.articleSlugs[slug]; ok {
			return cloneArticle(s.articles[id]), nil
		}
		if id, ok := s.articleSrcSlugs[slug]; ok {
			return cloneArticle(s.articles[id]), nil
		}
	}
	return nil, wrap("memory", "find duplicate", types.ErrNotFound)
}

func (s *MemoryStore) SlugExists(ctx context.Context, slug string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.articleSlugs[slug]
	return ok, nil
}

func (s *MemoryStore) CreateArticle(ctx context.Context, article *types.Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.articleSlugs[article.Slug]; ok {
		return wrap("memory", "create article", types.ErrDuplicate)
	}
	if _, ok := s.articleTitleKeys[article.TitleKey]; ok && article.TitleKey != "" {
		return wrap("memory", "create article", types.ErrDuplicate)
	}
	if _, ok := s.articleSrcSlugs[article.SourceSlug]; ok && article.SourceSlug != "" {
		return wrap("memory", "create article", types.ErrDuplicate)
	}

	s.nextArticle++
	article.ID = s.nextArticle
	s.articles[article.ID] = cloneArticle(article)
	s.articleSlugs[article.Slug] = article.ID
	if article.TitleKey != "" {
		s.articleTitleKeys[article.TitleKey] = article.ID
	}
	if article.SourceSlug != "" {
		s.articleSrcSlugs[article.SourceSlug] = article.ID
	}
	return nil
}

func (s *MemoryStore) AttachCategories(ctx context.Context, articleID int64, categories []types.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	article, ok := s.articles[articleID]
	if !ok {
		return wrap("memory", "attach categories", types.ErrNotFound)
	}
	links := s.articleCategory[articleID]
	if links == nil {
		links = make(map[int64]struct{})
		s.articleCategory[articleID] = links
	}
	for _, c := range categories {
		stored, ok := s.categories[c.Slug]
		if !ok {
			s.nextCategory++
			stored = &types.Category{ID: s.nextCategory, Name: c.Name, Slug: c.Slug}
			s.categories[c.Slug] = stored
		}
		if _, linked := links[stored.ID]; !linked {
			links[stored.ID] = struct{}{}
			article.Categories = append(article.Categories, stored.Slug)
		}
	}
	return nil
}

func (s *MemoryStore) ResolveAuthor(ctx context.Context, name string) (*types.Author, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slug := types.Slugify(name)
	if a, ok := s.authors[slug]; ok {
		clone := *a
		return &clone, nil
	}
	s.nextAuthor++
	a := &types.Author{ID: s.nextAuthor, Name: name, Slug: slug}
	s.authors[slug] = a
	clone := *a
	return &clone, nil
}

func (s *MemoryStore) ListPublishable(ctx context.Context, createdBefore time.Time, limit int) ([]*types.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*types.Article
	for _, a := range s.articles {
		if a.Status == types.ArticleDraft && !a.CreatedAt.After(createdBefore) {
			out = append(out, cloneArticle(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) PublishArticle(ctx context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.articles[id]
	if !ok || a.Status != types.ArticleDraft {
		return wrap("memory", "publish article", types.ErrNotFound)
	}
	t := at
	a.Status = types.ArticlePublished
	a.PublishedAt = &t
	return nil
}

// Articles returns every stored article ordered by ID.
func (s *MemoryStore) Articles() []*types.Article {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*types.Article, 0, len(s.articles))
	for _, a := range s.articles {
		out = append(out, cloneArticle(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Jobs returns every stored job ordered by ID.
func (s *MemoryStore) Jobs() []*types.ScrapingJob {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*types.ScrapingJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, cloneJob(j))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// copyRuntime copies counters and scheduling state from src to dst.
func copyRuntime(dst, src *types.NewsSource) {
	dst.LastScrapedAt = cloneTime(src.LastScrapedAt)
	dst.NextScrapeAt = cloneTime(src.NextScrapeAt)
	dst.AutoScrapingEnabled = src.AutoScrapingEnabled
	dst.TotalScrapes = src.TotalScrapes
	dst.SuccessfulScrapes = src.SuccessfulScrapes
	dst.FailedScrapes = src.FailedScrapes
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func cloneSource(src *types.NewsSource) *types.NewsSource {
	c := *src
	c.LastScrapedAt = cloneTime(src.LastScrapedAt)
	c.NextScrapeAt = cloneTime(src.NextScrapeAt)
	c.ScrapingConfig.Filters.ExcludePatterns = append([]string(nil), src.ScrapingConfig.Filters.ExcludePatterns...)
	c.ScrapingConfig.Filters.RequiredKeywords = append([]string(nil), src.ScrapingConfig.Filters.RequiredKeywords...)
	return &c
}

func cloneJob(j *types.ScrapingJob) *types.ScrapingJob {
	c := *j
	c.StartedAt = cloneTime(j.StartedAt)
	c.CompletedAt = cloneTime(j.CompletedAt)
	c.NextRetryAt = cloneTime(j.NextRetryAt)
	if j.DurationSeconds != nil {
		d := *j.DurationSeconds
		c.DurationSeconds = &d
	}
	if j.ParentJobID != nil {
		p := *j.ParentJobID
		c.ParentJobID = &p
	}
	c.ErrorDetails = maps.Clone(j.ErrorDetails)
	c.Metadata = maps.Clone(j.Metadata)
	c.Performance = maps.Clone(j.Performance)
	return &c
}

func cloneArticle(a *types.Article) *types.Article {
	c := *a
	c.PublishedAt = cloneTime(a.PublishedAt)
	c.Categories = append([]string(nil), a.Categories...)
	c.Meta = maps.Clone(a.Meta)
	return &c
}
