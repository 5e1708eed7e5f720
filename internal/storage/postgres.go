package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/SmillingSword/news-reynra/internal/config"
	"github.com/SmillingSword/news-reynra/internal/types"
)

const pgUniqueViolation = "23505"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var (
	sourceColumns = []string{
		"id", "name", "slug", "url", "rss_url", "trust_score", "is_active", "scraping_config",
		"scraping_frequency", "last_scraped_at", "next_scrape_at", "auto_scraping_enabled",
		"total_scrapes", "successful_scrapes", "failed_scrapes", "is_gaming_source",
	}
	jobColumns = []string{
		"id", "news_source_id", "status", "type", "started_at", "completed_at", "duration_seconds",
		"articles_found", "articles_processed", "articles_created", "articles_updated", "articles_skipped",
		"error_message", "error_details", "retry_count", "next_retry_at", "parent_job_id",
		"metadata", "performance", "created_at",
	}
	articleColumns = []string{
		"id", "title", "slug", "title_key", "source_slug", "content", "excerpt", "image_url", "author_id",
		"news_source_id", "source_url", "status", "meta", "created_at", "published_at",
	}
)

type sourceRow struct {
	types.NewsSource
	ConfigJSON []byte `db:"scraping_config"`
}

func (r *sourceRow) source() (*types.NewsSource, error) {
	src := r.NewsSource
	if len(r.ConfigJSON) > 0 {
		if err := json.Unmarshal(r.ConfigJSON, &src.ScrapingConfig); err != nil {
			return nil, fmt.Errorf("decode scraping_config of %s: %w", src.Slug, err)
		}
	}
	return &src, nil
}

type jobRow struct {
	types.ScrapingJob
	DetailsJSON     []byte `db:"error_details"`
	MetadataJSON    []byte `db:"metadata"`
	PerformanceJSON []byte `db:"performance"`
}

func (r *jobRow) job() (*types.ScrapingJob, error) {
	j := r.ScrapingJob
	for _, f := range []struct {
		raw []byte
		dst *map[string]any
	}{
		{r.DetailsJSON, &j.ErrorDetails},
		{r.MetadataJSON, &j.Metadata},
		{r.PerformanceJSON, &j.Performance},
	} {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return nil, fmt.Errorf("decode job %d: %w", j.ID, err)
		}
	}
	return &j, nil
}

type articleRow struct {
	types.Article
	MetaJSON []byte `db:"meta"`
}

func (r *articleRow) article() (*types.Article, error) {
	a := r.Article
	if len(r.MetaJSON) > 0 {
		if err := json.Unmarshal(r.MetaJSON, &a.Meta); err != nil {
			return nil, fmt.Errorf("decode article %d meta: %w", a.ID, err)
		}
	}
	return &a, nil
}

// PostgresStore persists to PostgreSQL through sqlx, building queries with
// squirrel.
type PostgresStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgresStore connects to cfg.DSN and creates the schema if needed.
func NewPostgresStore(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	s := newPostgresStore(db, logger)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func newPostgresStore(db *sqlx.DB, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger.With("component", "postgres_store")}
}

func (s *PostgresStore) Name() string { return "postgres" }

func (s *PostgresStore) Close() error {
	s.logger.Info("postgres storage closing")
	return s.db.Close()
}

// Migrate creates missing tables and indexes.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return wrap("postgres", "migrate", err)
	}
	return nil
}

// --- sources ---

func (s *PostgresStore) SyncSources(ctx context.Context, sources []*types.NewsSource) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return wrap("postgres", "sync sources", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, src := range sources {
		cfgJSON, err := json.Marshal(src.ScrapingConfig)
		if err != nil {
			return fmt.Errorf("encode scraping_config of %s: %w", src.Slug, err)
		}
		query, args, err := psql.Insert("news_sources").
			Columns("name", "slug", "url", "rss_url", "trust_score", "is_active", "scraping_config",
				"scraping_frequency", "auto_scraping_enabled", "is_gaming_source").
			Values(src.Name, src.Slug, src.URL, src.RSSURL, src.TrustScore, src.Active, string(cfgJSON),
				src.ScrapingFrequency, src.AutoScrapingEnabled, src.IsGamingSource).
			Suffix(`ON CONFLICT (slug) DO UPDATE SET
				name = EXCLUDED.name, url = EXCLUDED.url, rss_url = EXCLUDED.rss_url,
				trust_score = EXCLUDED.trust_score, is_active = EXCLUDED.is_active,
				scraping_config = EXCLUDED.scraping_config, scraping_frequency = EXCLUDED.scraping_frequency,
				is_gaming_source = EXCLUDED.is_gaming_source
				RETURNING id, last_scraped_at, next_scrape_at, auto_scraping_enabled,
				total_scrapes, successful_scrapes, failed_scrapes`).
			ToSql()
		if err != nil {
			return fmt.Errorf("build source upsert: %w", err)
		}
		err = tx.QueryRowxContext(ctx, query, args...).Scan(
			&src.ID, &src.LastScrapedAt, &src.NextScrapeAt, &src.AutoScrapingEnabled,
			&src.TotalScrapes, &src.SuccessfulScrapes, &src.FailedScrapes,
		)
		if err != nil {
			return wrap("postgres", "sync sources", fmt.Errorf("upsert %s: %w", src.Slug, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return wrap("postgres", "sync sources", err)
	}
	s.logger.Debug("sources synced", "count", len(sources))
	return nil
}

func (s *PostgresStore) ListSources(ctx context.Context) ([]*types.NewsSource, error) {
	query, args, err := psql.Select(sourceColumns...).From("news_sources").OrderBy("id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build source list: %w", err)
	}
	var rows []sourceRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, wrap("postgres", "list sources", err)
	}

	out := make([]*types.NewsSource, 0, len(rows))
	for i := range rows {
		src, err := rows[i].source()
		if err != nil {
			return nil, wrap("postgres", "list sources", err)
		}
		out = append(out, src)
	}
	return out, nil
}

func (s *PostgresStore) GetSource(ctx context.Context, id int64) (*types.NewsSource, error) {
	query, args, err := psql.Select(sourceColumns...).From("news_sources").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build source get: %w", err)
	}
	var row sourceRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		return nil, wrap("postgres", "get source", notFound(err))
	}
	return row.source()
}

func (s *PostgresStore) UpdateSourceState(ctx context.Context, source *types.NewsSource) error {
	query, args, err := psql.Update("news_sources").
		SetMap(map[string]any{
			"last_scraped_at":       source.LastScrapedAt,
			"next_scrape_at":        source.NextScrapeAt,
			"auto_scraping_enabled": source.AutoScrapingEnabled,
			"total_scrapes":         source.TotalScrapes,
			"successful_scrapes":    source.SuccessfulScrapes,
			"failed_scrapes":        source.FailedScrapes,
		}).
		Where(sq.Eq{"id": source.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build source update: %w", err)
	}
	return s.execOne(ctx, "update source", query, args...)
}

// --- jobs ---

func (s *PostgresStore) CreateJob(ctx context.Context, job *types.ScrapingJob) error {
	query, args, err := psql.Insert("scraping_jobs").
		SetMap(jobValues(job)).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return fmt.Errorf("build job insert: %w", err)
	}
	if err := s.db.QueryRowxContext(ctx, query, args...).Scan(&job.ID); err != nil {
		return wrap("postgres", "create job", err)
	}
	return nil
}

func (s *PostgresStore) UpdateJob(ctx context.Context, job *types.ScrapingJob) error {
	values := jobValues(job)
	delete(values, "news_source_id")
	delete(values, "created_at")

	query, args, err := psql.Update("scraping_jobs").
		SetMap(values).
		Where(sq.Eq{"id": job.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build job update: %w", err)
	}
	return s.execOne(ctx, "update job", query, args...)
}

func (s *PostgresStore) GetJob(ctx context.Context, id int64) (*types.ScrapingJob, error) {
	query, args, err := psql.Select(jobColumns...).From("scraping_jobs").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build job get: %w", err)
	}
	var row jobRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		return nil, wrap("postgres", "get job", notFound(err))
	}
	return row.job()
}

func (s *PostgresStore) ListRetryableJobs(ctx context.Context, now time.Time) ([]*types.ScrapingJob, error) {
	cols := make([]string, len(jobColumns))
	for i, c := range jobColumns {
		cols[i] = "j." + c
	}
	query, args, err := psql.Select(cols...).
		From("scraping_jobs j").
		Where(sq.Eq{"j.status": string(types.JobFailed)}).
		Where(sq.LtOrEq{"j.next_retry_at": now}).
		Where("NOT EXISTS (SELECT 1 FROM scraping_jobs n WHERE n.news_source_id = j.news_source_id AND n.id > j.id)").
		OrderBy("j.next_retry_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build retryable jobs: %w", err)
	}

	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, wrap("postgres", "list retryable jobs", err)
	}
	out := make([]*types.ScrapingJob, 0, len(rows))
	for i := range rows {
		j, err := rows[i].job()
		if err != nil {
			return nil, wrap("postgres", "list retryable jobs", err)
		}
		out = append(out, j)
	}
	return out, nil
}

func jobValues(job *types.ScrapingJob) map[string]any {
	return map[string]any{
		"news_source_id":     job.NewsSourceID,
		"status":             string(job.Status),
		"type":               string(job.Type),
		"started_at":         job.StartedAt,
		"completed_at":       job.CompletedAt,
		"duration_seconds":   job.DurationSeconds,
		"articles_found":     job.ArticlesFound,
		"articles_processed": job.ArticlesProcessed,
		"articles_created":   job.ArticlesCreated,
		"articles_updated":   job.ArticlesUpdated,
		"articles_skipped":   job.ArticlesSkipped,
		"error_message":      job.ErrorMessage,
		"error_details":      jsonValue(job.ErrorDetails),
		"retry_count":        job.RetryCount,
		"next_retry_at":      job.NextRetryAt,
		"parent_job_id":      job.ParentJobID,
		"metadata":           jsonValue(job.Metadata),
		"performance":        jsonValue(job.Performance),
		"created_at":         job.CreatedAt,
	}
}

// --- articles ---

func (s *PostgresStore) FindDuplicate(ctx context.Context, titleKey, slug string) (*types.Article, error) {
	query, args, err := psql.Select(articleColumns...).
		From("articles").
		Where(sq.Or{sq.Eq{"title_key": titleKey}, sq.Eq{"slug": slug}, sq.Eq{"source_slug": slug}}).
		OrderBy("id").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build duplicate lookup: %w", err)
	}
	var row articleRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		return nil, wrap("postgres", "find duplicate", notFound(err))
	}
	return row.article()
}

func (s *PostgresStore) SlugExists(ctx context.Context, slug string) (bool, error) {
	query, args, err := psql.Select("COUNT(*)").From("articles").Where(sq.Eq{"slug": slug}).ToSql()
	if err != nil {
		return false, fmt.Errorf("build slug lookup: %w", err)
	}
	var n int
	if err := s.db.GetContext(ctx, &n, query, args...); err != nil {
		return false, wrap("postgres", "slug exists", err)
	}
	return n > 0, nil
}

func (s *PostgresStore) CreateArticle(ctx context.Context, article *types.Article) error {
	query, args, err := psql.Insert("articles").
		Columns("title", "slug", "title_key", "source_slug", "content", "excerpt", "image_url", "author_id",
			"news_source_id", "source_url", "status", "meta", "created_at", "published_at").
		Values(article.Title, article.Slug, article.TitleKey, article.SourceSlug, article.Content, article.Excerpt,
			article.ImageURL, article.AuthorID, article.NewsSourceID, article.SourceURL,
			string(article.Status), jsonValue(article.Meta), article.CreatedAt, article.PublishedAt).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return fmt.Errorf("build article insert: %w", err)
	}

	if err := s.db.QueryRowxContext(ctx, query, args...).Scan(&article.ID); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
			return wrap("postgres", "create article", fmt.Errorf("%w: %s", types.ErrDuplicate, pqErr.Constraint))
		}
		return wrap("postgres", "create article", err)
	}
	return nil
}

func (s *PostgresStore) AttachCategories(ctx context.Context, articleID int64, categories []types.Category) error {
	if len(categories) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return wrap("postgres", "attach categories", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, c := range categories {
		query, args, err := psql.Insert("categories").
			Columns("name", "slug").
			Values(c.Name, c.Slug).
			Suffix("ON CONFLICT (slug) DO UPDATE SET name = categories.name RETURNING id").
			ToSql()
		if err != nil {
			return fmt.Errorf("build category upsert: %w", err)
		}
		var categoryID int64
		if err := tx.QueryRowxContext(ctx, query, args...).Scan(&categoryID); err != nil {
			return wrap("postgres", "attach categories", fmt.Errorf("upsert %s: %w", c.Slug, err))
		}

		query, args, err = psql.Insert("article_categories").
			Columns("article_id", "category_id").
			Values(articleID, categoryID).
			Suffix("ON CONFLICT DO NOTHING").
			ToSql()
		if err != nil {
			return fmt.Errorf("build category link: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return wrap("postgres", "attach categories", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return wrap("postgres", "attach categories", err)
	}
	return nil
}

func (s *PostgresStore) ResolveAuthor(ctx context.Context, name string) (*types.Author, error) {
	query, args, err := psql.Insert("authors").
		Columns("name", "slug").
		Values(name, types.Slugify(name)).
		Suffix("ON CONFLICT (slug) DO UPDATE SET name = authors.name RETURNING id, name, slug").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build author upsert: %w", err)
	}
	var a types.Author
	if err := s.db.QueryRowxContext(ctx, query, args...).StructScan(&a); err != nil {
		return nil, wrap("postgres", "resolve author", err)
	}
	return &a, nil
}

func (s *PostgresStore) ListPublishable(ctx context.Context, createdBefore time.Time, limit int) ([]*types.Article, error) {
	b := psql.Select(articleColumns...).
		From("articles").
		Where(sq.Eq{"status": string(types.ArticleDraft)}).
		Where(sq.LtOrEq{"created_at": createdBefore}).
		OrderBy("created_at", "id")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build publishable list: %w", err)
	}

	var rows []articleRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, wrap("postgres", "list publishable", err)
	}
	out := make([]*types.Article, 0, len(rows))
	for i := range rows {
		a, err := rows[i].article()
		if err != nil {
			return nil, wrap("postgres", "list publishable", err)
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *PostgresStore) PublishArticle(ctx context.Context, id int64, at time.Time) error {
	query, args, err := psql.Update("articles").
		Set("status", string(types.ArticlePublished)).
		Set("published_at", at).
		Where(sq.Eq{"id": id, "status": string(types.ArticleDraft)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build publish: %w", err)
	}
	return s.execOne(ctx, "publish article", query, args...)
}

// execOne runs a statement that must affect exactly one row.
func (s *PostgresStore) execOne(ctx context.Context, op, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return wrap("postgres", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrap("postgres", op, err)
	}
	if n == 0 {
		return wrap("postgres", op, types.ErrNotFound)
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return types.ErrNotFound
	}
	return err
}

// jsonValue encodes a map for a JSONB column; nil maps are stored as NULL.
func jsonValue(m map[string]any) any {
	if m == nil {
		return nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return string(b)
}
