package engine

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SmillingSword/news-reynra/internal/clock"
	"github.com/SmillingSword/news-reynra/internal/config"
	"github.com/SmillingSword/news-reynra/internal/rewriter"
	"github.com/SmillingSword/news-reynra/internal/storage"
	"github.com/SmillingSword/news-reynra/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

var t0 = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

func body(sentence string) string {
	return "<p>" + strings.Repeat(sentence+" ", 12) + "</p>"
}

func candidate(title, url string) types.Candidate {
	return types.Candidate{
		Title:   title,
		URL:     url,
		Content: body("Moonton menghadirkan hero baru dan skin gratis untuk para pemain di Indonesia."),
		Origin:  "html",
	}
}

type staticExtractor struct {
	candidates []types.Candidate
	err        error
	calls      int
}

func (s *staticExtractor) Extract(ctx context.Context, source *types.NewsSource) ([]types.Candidate, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([]types.Candidate, len(s.candidates))
	copy(out, s.candidates)
	return out, nil
}

type stubRewriter struct {
	title string
}

func (s stubRewriter) Rewrite(ctx context.Context, raw, title, category string) types.RewriteResult {
	return types.RewriteResult{
		Title:       s.title,
		Excerpt:     "ringkasan",
		Content:     "<p>isi</p>",
		RewrittenBy: types.RewrittenByModel,
	}
}

type recorder struct {
	mu       sync.Mutex
	jobs     []types.JobStatus
	articles []string
}

func (r *recorder) ObserveJob(status types.JobStatus, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, status)
}

func (r *recorder) ObserveArticle(action types.Action, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.articles = append(r.articles, string(action)+":"+reason)
}

type memorySink struct {
	records []storage.DryRunRecord
}

func (m *memorySink) Write(rec storage.DryRunRecord) error {
	m.records = append(m.records, rec)
	return nil
}

type fixture struct {
	engine *Engine
	store  *storage.MemoryStore
	clock  *clock.Fake
	source *types.NewsSource
}

func newFixture(t *testing.T, ex Extractor, rw Rewriter, opts ...Option) *fixture {
	t.Helper()
	cfg := config.DefaultConfig()
	store := storage.NewMemoryStore(testLogger)
	clk := clock.NewFake(t0)

	if rw == nil {
		rw = rewriter.New(nil, rewriter.NewFallback(1), cfg.AI, testLogger)
	}

	src := &types.NewsSource{
		Name:                "Gamebrott",
		Slug:                "gamebrott",
		URL:                 "https://gamebrott.test",
		TrustScore:          7,
		Active:              true,
		AutoScrapingEnabled: true,
		ScrapingFrequency:   60,
		IsGamingSource:      true,
		ScrapingConfig: types.ScrapingConfig{
			Limits: types.Limits{MaxArticlesPerScrape: 20, RequestDelay: 2},
		},
	}
	require.NoError(t, store.SyncSources(context.Background(), []*types.NewsSource{src}))

	return &fixture{
		engine: New(cfg.Scraper, ex, rw, store, clk, testLogger, opts...),
		store:  store,
		clock:  clk,
		source: src,
	}
}

func TestScrapeCreatesDraftArticles(t *testing.T) {
	ex := &staticExtractor{candidates: []types.Candidate{
		candidate("Mobile Legends Season 30 Dimulai", "https://gamebrott.test/ml-30"),
		candidate("Genshin Impact Versi 5.0 Rilis", "https://gamebrott.test/genshin-5"),
	}}
	ex.candidates[1].AuthorName = "Andi"
	f := newFixture(t, ex, nil)

	job, err := f.engine.ScrapeSource(context.Background(), f.source, types.JobManual)
	require.NoError(t, err)

	assert.Equal(t, types.JobCompleted, job.Status)
	assert.Equal(t, types.JobCounts{Found: 2, Processed: 2, Created: 2}, job.Counts())
	require.NotNil(t, job.DurationSeconds)

	articles := f.store.Articles()
	require.Len(t, articles, 2)
	a := articles[0]
	assert.Equal(t, types.ArticleDraft, a.Status)
	assert.Equal(t, "mobile legends season 30 dimulai", a.TitleKey)
	assert.Equal(t, f.source.ID, a.NewsSourceID)
	assert.Equal(t, "https://gamebrott.test/ml-30", a.Meta["source_url"])
	assert.Equal(t, types.RewrittenByFallback, a.Meta["rewritten_by"])
	assert.Equal(t, "html", a.Meta["origin"])
	assert.NotEmpty(t, a.Meta["meta_description"])
	assert.NotEmpty(t, a.Content)
	assert.Contains(t, a.Categories, "mobile")
	assert.Contains(t, a.Categories, "update")

	assert.NotEqual(t, articles[0].AuthorID, articles[1].AuthorID, "default author vs byline")

	src, err := f.store.GetSource(context.Background(), f.source.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, src.SuccessfulScrapes)
	require.NotNil(t, src.LastScrapedAt)
	require.NotNil(t, src.NextScrapeAt)
	assert.True(t, src.NextScrapeAt.Equal(src.LastScrapedAt.Add(time.Hour)))

	stored, err := f.store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobCompleted, stored.Status)
}

func TestScrapeCapAppliesAfterFilter(t *testing.T) {
	short := func(title, url string) types.Candidate {
		c := candidate(title, url)
		c.Content = "<p>terlalu pendek</p>"
		return c
	}
	ex := &staticExtractor{candidates: []types.Candidate{
		short("Pendek Satu", "https://gamebrott.test/1"),
		candidate("Panjang Satu", "https://gamebrott.test/2"),
		short("Pendek Dua", "https://gamebrott.test/3"),
		candidate("Panjang Dua", "https://gamebrott.test/4"),
		short("Pendek Tiga", "https://gamebrott.test/5"),
	}}
	f := newFixture(t, ex, nil)
	f.source.ScrapingConfig.Limits.MaxArticlesPerScrape = 2

	job, err := f.engine.ScrapeSource(context.Background(), f.source, types.JobManual)
	require.NoError(t, err)

	assert.Equal(t, 2, job.ArticlesFound)
	assert.LessOrEqual(t, job.ArticlesProcessed, 2)
	assert.Equal(t, 2, job.ArticlesCreated)

	for _, a := range f.store.Articles() {
		assert.Contains(t, a.Meta["original_title"], "Panjang")
	}
}

func TestScrapeIsIdempotent(t *testing.T) {
	ex := &staticExtractor{candidates: []types.Candidate{
		candidate("Berita Satu", "https://gamebrott.test/1"),
		candidate("Berita Dua", "https://gamebrott.test/2"),
		candidate("Berita Tiga", "https://gamebrott.test/3"),
	}}
	rec := &recorder{}
	f := newFixture(t, ex, nil, WithRecorder(rec))

	first, err := f.engine.ScrapeSource(context.Background(), f.source, types.JobScheduled)
	require.NoError(t, err)
	require.Equal(t, 3, first.ArticlesCreated)

	rec.articles = nil
	second, err := f.engine.ScrapeSource(context.Background(), f.source, types.JobScheduled)
	require.NoError(t, err)

	assert.Equal(t, types.JobCounts{Found: 3, Processed: 3, Skipped: 3}, second.Counts())
	assert.Equal(t, []string{"skipped:duplicate", "skipped:duplicate", "skipped:duplicate"}, rec.articles)
	assert.Len(t, f.store.Articles(), 3)
	assert.Equal(t, []types.JobStatus{types.JobCompleted, types.JobCompleted}, rec.jobs)
}

func TestScrapeDuplicateTitleInBatch(t *testing.T) {
	ex := &staticExtractor{candidates: []types.Candidate{
		candidate("Mobile Legends Season 30", "https://gamebrott.test/a"),
		candidate("Mobile Legends Season 30", "https://gamebrott.test/b"),
	}}
	rec := &recorder{}
	f := newFixture(t, ex, nil, WithRecorder(rec))

	job, err := f.engine.ScrapeSource(context.Background(), f.source, types.JobManual)
	require.NoError(t, err)

	assert.Equal(t, 1, job.ArticlesCreated)
	assert.Equal(t, 1, job.ArticlesSkipped)
	assert.Equal(t, []string{"created:", "skipped:duplicate"}, rec.articles)
}

func TestScrapeDuplicateSourceSlugAfterRewrite(t *testing.T) {
	rw := stubRewriter{title: "Season Baru MLBB Resmi Dimulai"}

	t.Run("same batch", func(t *testing.T) {
		ex := &staticExtractor{candidates: []types.Candidate{
			candidate("Mobile Legends: Season 30", "https://gamebrott.test/a"),
			candidate("Mobile Legends Season 30", "https://gamebrott.test/b"),
		}}
		f := newFixture(t, ex, rw)

		job, err := f.engine.ScrapeSource(context.Background(), f.source, types.JobManual)
		require.NoError(t, err)
		assert.Equal(t, 1, job.ArticlesCreated)
		assert.Equal(t, 1, job.ArticlesSkipped)
	})

	t.Run("later run", func(t *testing.T) {
		ex := &staticExtractor{candidates: []types.Candidate{
			candidate("Mobile Legends: Season 30", "https://gamebrott.test/a"),
		}}
		f := newFixture(t, ex, rw)

		first, err := f.engine.ScrapeSource(context.Background(), f.source, types.JobManual)
		require.NoError(t, err)
		require.Equal(t, 1, first.ArticlesCreated)

		articles := f.store.Articles()
		require.Len(t, articles, 1)
		assert.Equal(t, "season-baru-mlbb-resmi-dimulai", articles[0].Slug)
		assert.Equal(t, "mobile-legends-season-30", articles[0].SourceSlug)

		ex.candidates = []types.Candidate{candidate("Mobile Legends Season 30", "https://gamebrott.test/b")}
		second, err := f.engine.ScrapeSource(context.Background(), f.source, types.JobManual)
		require.NoError(t, err)
		assert.Equal(t, types.JobCounts{Found: 1, Processed: 1, Skipped: 1}, second.Counts())
		assert.Len(t, f.store.Articles(), 1)
	})
}

func TestScrapeSleepsBetweenCandidates(t *testing.T) {
	ex := &staticExtractor{candidates: []types.Candidate{
		candidate("Satu", "https://gamebrott.test/1"),
		candidate("Dua", "https://gamebrott.test/2"),
		candidate("Tiga", "https://gamebrott.test/3"),
	}}
	f := newFixture(t, ex, nil)

	_, err := f.engine.ScrapeSource(context.Background(), f.source, types.JobManual)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, f.clock.Slept())
}

func TestScrapeFailureSchedulesRetry(t *testing.T) {
	ex := &staticExtractor{err: context.DeadlineExceeded}
	f := newFixture(t, ex, nil)

	job, err := f.engine.ScrapeSource(context.Background(), f.source, types.JobScheduled)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NotNil(t, job)
	assert.Equal(t, types.JobFailed, job.Status)
	assert.Contains(t, job.ErrorMessage, "extract")
	require.NotNil(t, job.NextRetryAt)
	assert.True(t, job.NextRetryAt.Equal(t0.Add(5*time.Minute)))

	src, err := f.store.GetSource(context.Background(), f.source.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, src.FailedScrapes)
	assert.Equal(t, 1, src.TotalScrapes)

	// the retry chain keeps counting and stops after three retries
	failed := job
	for want := 1; want <= 3; want++ {
		failed, err = f.engine.RetryJob(context.Background(), f.source, failed)
		require.Error(t, err)
		assert.Equal(t, want, failed.RetryCount)
		assert.Equal(t, types.JobRetry, failed.Type)
		require.NotNil(t, failed.ParentJobID)
	}
	assert.Nil(t, failed.NextRetryAt)
}

func TestScrapeInactiveSource(t *testing.T) {
	ex := &staticExtractor{}
	f := newFixture(t, ex, nil)
	f.source.Active = false

	job, err := f.engine.ScrapeSource(context.Background(), f.source, types.JobManual)
	assert.Nil(t, job)
	assert.ErrorIs(t, err, types.ErrSourceDisabled)
	assert.Zero(t, ex.calls)
}

func TestScrapeCancelledMidBatch(t *testing.T) {
	ex := &staticExtractor{candidates: []types.Candidate{
		candidate("Satu", "https://gamebrott.test/1"),
		candidate("Dua", "https://gamebrott.test/2"),
	}}
	ctx, cancel := context.WithCancel(context.Background())
	rw := cancelRewriter{cancel: cancel}
	f := newFixture(t, ex, rw)

	job, err := f.engine.ScrapeSource(ctx, f.source, types.JobManual)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, types.JobFailed, job.Status)

	stored, gerr := f.store.GetJob(context.Background(), job.ID)
	require.NoError(t, gerr)
	assert.Equal(t, types.JobFailed, stored.Status, "bookkeeping survives cancellation")
}

type cancelRewriter struct {
	cancel context.CancelFunc
}

func (c cancelRewriter) Rewrite(ctx context.Context, raw, title, category string) types.RewriteResult {
	c.cancel()
	return stubRewriter{title: title}.Rewrite(ctx, raw, title, category)
}

func TestScrapeSlugCollisionGetsSuffix(t *testing.T) {
	ex := &staticExtractor{candidates: []types.Candidate{
		candidate("Berita Pertama", "https://gamebrott.test/1"),
		candidate("Berita Kedua", "https://gamebrott.test/2"),
	}}
	f := newFixture(t, ex, stubRewriter{title: "Judul Yang Sama"})

	job, err := f.engine.ScrapeSource(context.Background(), f.source, types.JobManual)
	require.NoError(t, err)
	require.Equal(t, 2, job.ArticlesCreated)

	articles := f.store.Articles()
	assert.Equal(t, "judul-yang-sama", articles[0].Slug)
	assert.True(t, strings.HasPrefix(articles[1].Slug, "judul-yang-sama-"))
	assert.Len(t, articles[1].Slug, len("judul-yang-sama-")+6)
}

func TestScrapeDryRunPersistsNothing(t *testing.T) {
	ex := &staticExtractor{candidates: []types.Candidate{
		candidate("Mobile Legends Satu", "https://gamebrott.test/1"),
		candidate("Mobile Legends Satu", "https://gamebrott.test/1#komentar"),
	}}
	sink := &memorySink{}
	f := newFixture(t, ex, nil, WithSink(sink))

	job, err := f.engine.ScrapeSource(context.Background(), f.source, types.JobManual)
	require.NoError(t, err)

	assert.True(t, f.engine.DryRun())
	assert.Equal(t, 1, job.ArticlesCreated)
	assert.Equal(t, 1, job.ArticlesSkipped)
	require.Len(t, sink.records, 1)
	assert.Equal(t, "gamebrott", sink.records[0].Source)
	assert.Contains(t, sink.records[0].Categories, "mobile")

	assert.Empty(t, f.store.Articles())
	assert.Empty(t, f.store.Jobs())
	src, err := f.store.GetSource(context.Background(), f.source.ID)
	require.NoError(t, err)
	assert.Zero(t, src.TotalScrapes)
}

func TestDeduplicator(t *testing.T) {
	d := NewDeduplicator(4)
	a := &types.Candidate{Title: "Mobile Legends  Season 30", URL: "https://Gamebrott.test/a?utm_source=x#top"}
	d.Mark(a)

	assert.True(t, d.Seen(&types.Candidate{Title: "lain", URL: "https://gamebrott.test/a"}))
	assert.True(t, d.Seen(&types.Candidate{Title: "mobile legends season 30", URL: "https://gamebrott.test/b"}))
	assert.True(t, d.Seen(&types.Candidate{Title: "Mobile Legends: Season 30", URL: "https://gamebrott.test/d"}))
	assert.False(t, d.Seen(&types.Candidate{Title: "Berita Baru", URL: "https://gamebrott.test/c"}))
	assert.Equal(t, 1, d.Count())
}
