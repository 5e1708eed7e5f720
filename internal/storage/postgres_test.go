package storage

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SmillingSword/news-reynra/internal/types"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return newPostgresStore(sqlx.NewDb(mockDB, "postgres"), testLogger), mock
}

func TestPostgresCreateArticle(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO articles \(title,slug,title_key,source_slug`).
		WithArgs("Judul", "judul", "judul", "judul-asli", "<p>isi</p>", "ringkas", "", int64(3), int64(1),
			"https://gamebrott.com/a", "draft", `{"origin":"rss"}`, t0, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))

	a := &types.Article{
		Title: "Judul", Slug: "judul", TitleKey: "judul", SourceSlug: "judul-asli", Content: "<p>isi</p>", Excerpt: "ringkas",
		AuthorID: 3, NewsSourceID: 1, SourceURL: "https://gamebrott.com/a", Status: types.ArticleDraft,
		Meta: map[string]any{"origin": "rss"}, CreatedAt: t0,
	}
	require.NoError(t, s.CreateArticle(context.Background(), a))
	assert.Equal(t, int64(11), a.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateArticleUniqueViolation(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO articles`).
		WillReturnError(&pq.Error{Code: pgUniqueViolation, Constraint: "articles_slug_key"})

	err := s.CreateArticle(context.Background(), &types.Article{Title: "x", Slug: "x", Status: types.ArticleDraft})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrDuplicate)

	var se *types.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "postgres", se.Backend)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFindDuplicate(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .* FROM articles WHERE \(title_key = \$1 OR slug = \$2 OR source_slug = \$3\) ORDER BY id LIMIT 1`).
		WithArgs("mobile legends season 30", "mobile-legends-season-30", "mobile-legends-season-30").
		WillReturnRows(sqlmock.NewRows(articleColumns))

	_, err := s.FindDuplicate(context.Background(), "mobile legends season 30", "mobile-legends-season-30")
	assert.ErrorIs(t, err, types.ErrNotFound)

	mock.ExpectQuery(`SELECT .* FROM articles WHERE`).
		WillReturnRows(sqlmock.NewRows(articleColumns).AddRow(
			int64(4), "Season Baru MLBB Resmi Dimulai", "season-baru-mlbb-resmi-dimulai", "mobile legends season 30",
			"mobile-legends-season-30",
			"<p>isi</p>", "", "", int64(1), int64(2), "https://x.test/a", "draft",
			[]byte(`{"rewritten_by":"template_fallback"}`), t0, nil,
		))

	a, err := s.FindDuplicate(context.Background(), "x", "mobile-legends-season-30")
	require.NoError(t, err)
	assert.Equal(t, int64(4), a.ID)
	assert.Equal(t, "mobile-legends-season-30", a.SourceSlug)
	assert.Equal(t, types.ArticleDraft, a.Status)
	assert.Equal(t, "template_fallback", a.Meta["rewritten_by"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSyncSources(t *testing.T) {
	s, mock := newMockStore(t)
	last := t0.Add(-time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO news_sources .* ON CONFLICT \(slug\) DO UPDATE SET`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "last_scraped_at", "next_scrape_at", "auto_scraping_enabled",
			"total_scrapes", "successful_scrapes", "failed_scrapes"}).
			AddRow(int64(7), last, nil, false, 6, 1, 5))
	mock.ExpectCommit()

	src := &types.NewsSource{Name: "Gamebrott", Slug: "gamebrott", URL: "https://gamebrott.com", Active: true, AutoScrapingEnabled: true}
	require.NoError(t, s.SyncSources(context.Background(), []*types.NewsSource{src}))

	assert.Equal(t, int64(7), src.ID)
	assert.False(t, src.AutoScrapingEnabled)
	assert.Equal(t, 5, src.FailedScrapes)
	require.NotNil(t, src.LastScrapedAt)
	assert.True(t, src.LastScrapedAt.Equal(last))
	assert.Nil(t, src.NextScrapeAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetSourceDecodesConfig(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .* FROM news_sources WHERE id = \$1`).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows(sourceColumns).AddRow(
			int64(2), "Gamebrott", "gamebrott", "https://gamebrott.com", "", 7, true,
			[]byte(`{"selectors":{"article_links":"h2 a"},"filters":{"min_content_length":300},"limits":{"max_articles_per_scrape":5,"request_delay":1},"fetcher":"http"}`),
			60, nil, nil, true, 0, 0, 0, true,
		))

	src, err := s.GetSource(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "h2 a", src.ScrapingConfig.Selectors.ArticleLinks)
	assert.Equal(t, 300, src.ScrapingConfig.Filters.MinContentLength)
	assert.Equal(t, 5, src.ScrapingConfig.Limits.MaxArticlesPerScrape)
	assert.True(t, src.IsGamingSource)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListRetryableJobs(t *testing.T) {
	s, mock := newMockStore(t)
	next := t0.Add(5 * time.Minute)

	mock.ExpectQuery(`SELECT j\.id, .* FROM scraping_jobs j WHERE j\.status = \$1 AND j\.next_retry_at <= \$2 AND NOT EXISTS`).
		WithArgs("failed", t0.Add(10*time.Minute)).
		WillReturnRows(sqlmock.NewRows(jobColumns).AddRow(
			int64(9), int64(1), "failed", "scheduled", t0, t0, 0,
			0, 0, 0, 0, 0,
			"listing unavailable", []byte(`{"error_type":"*errors.errorString"}`), 0, next, nil,
			[]byte(`{}`), nil, t0,
		))

	jobs, err := s.ListRetryableJobs(context.Background(), t0.Add(10*time.Minute))
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, types.JobFailed, jobs[0].Status)
	assert.Equal(t, types.JobScheduled, jobs[0].Type)
	assert.Equal(t, "*errors.errorString", jobs[0].ErrorDetails["error_type"])
	require.NotNil(t, jobs[0].NextRetryAt)
	assert.True(t, jobs[0].NextRetryAt.Equal(next))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPublishArticleMissing(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE articles SET status = \$1, published_at = \$2 WHERE id = \$3 AND status = \$4`).
		WithArgs("published", t0, int64(5), "draft").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.PublishArticle(context.Background(), 5, t0)
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresResolveAuthor(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO authors \(name,slug\) VALUES \(\$1,\$2\) ON CONFLICT \(slug\)`).
		WithArgs("Redaksi Gamebrott", "redaksi-gamebrott").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "slug"}).AddRow(int64(3), "Redaksi Gamebrott", "redaksi-gamebrott"))

	a, err := s.ResolveAuthor(context.Background(), "Redaksi Gamebrott")
	require.NoError(t, err)
	assert.Equal(t, int64(3), a.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateJob(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE scraping_jobs SET .* WHERE id = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	j := types.NewScrapingJob(1, types.JobManual, t0)
	j.ID = 4
	require.NoError(t, j.MarkRunning(t0))
	require.NoError(t, s.UpdateJob(context.Background(), j))
	assert.NoError(t, mock.ExpectationsWereMet())
}
