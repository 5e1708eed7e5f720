package publisher

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SmillingSword/news-reynra/internal/clock"
	"github.com/SmillingSword/news-reynra/internal/config"
	"github.com/SmillingSword/news-reynra/internal/storage"
	"github.com/SmillingSword/news-reynra/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

var t0 = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

type countingRecorder map[string]int

func (r countingRecorder) ObservePublish(outcome string) { r[outcome]++ }

func draft(slug string, textLen int, created time.Time) *types.Article {
	return &types.Article{
		Title:        slug,
		Slug:         slug,
		TitleKey:     slug,
		Content:      "<p>" + strings.Repeat("a", textLen) + "</p>",
		AuthorID:     1,
		NewsSourceID: 1,
		Status:       types.ArticleDraft,
		CreatedAt:    created,
	}
}

func seed(t *testing.T, store *storage.MemoryStore, articles ...*types.Article) {
	t.Helper()
	for _, a := range articles {
		require.NoError(t, store.CreateArticle(context.Background(), a))
	}
}

func TestPublishReady(t *testing.T) {
	store := storage.NewMemoryStore(testLogger)
	old := draft("lama-dan-panjang", 600, t0.Add(-2*time.Hour))
	short := draft("lama-tapi-pendek", 100, t0.Add(-3*time.Hour))
	fresh := draft("baru", 900, t0.Add(-10*time.Minute))
	edge := draft("tepat-satu-jam", 500, t0.Add(-time.Hour))
	seed(t, store, old, short, fresh, edge)

	rec := countingRecorder{}
	p := New(store, clock.NewFake(t0), config.DefaultConfig().Publisher, testLogger)
	p.SetRecorder(rec)

	res, err := p.PublishReady(context.Background(), p.Defaults())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Considered)
	assert.ElementsMatch(t, []int64{old.ID, edge.ID}, res.Published)
	assert.Equal(t, 1, res.TooShort)
	assert.Equal(t, countingRecorder{OutcomePublished: 2, OutcomeTooShort: 1}, rec)

	byID := map[int64]*types.Article{}
	for _, a := range store.Articles() {
		byID[a.ID] = a
	}
	assert.Equal(t, types.ArticlePublished, byID[old.ID].Status)
	require.NotNil(t, byID[old.ID].PublishedAt)
	assert.Equal(t, t0, *byID[old.ID].PublishedAt)
	assert.Equal(t, types.ArticleDraft, byID[short.ID].Status)
	assert.Equal(t, types.ArticleDraft, byID[fresh.ID].Status)

	res, err = p.PublishReady(context.Background(), p.Defaults())
	require.NoError(t, err)
	assert.Empty(t, res.Published, "published articles are not republished")
}

func TestPublishReadyLengthCountsText(t *testing.T) {
	store := storage.NewMemoryStore(testLogger)
	a := draft("markup-heavy", 10, t0.Add(-2*time.Hour))
	a.Content = "<p>" + strings.Repeat(`<span class="x"></span>`, 100) + "pendek</p>"
	seed(t, store, a)

	p := New(store, clock.NewFake(t0), config.DefaultConfig().Publisher, testLogger)
	res, err := p.PublishReady(context.Background(), Options{MinAge: time.Hour, MinLength: 50})
	require.NoError(t, err)
	assert.Empty(t, res.Published)
	assert.Equal(t, 1, res.TooShort)
}

func TestPublishReadyLimit(t *testing.T) {
	store := storage.NewMemoryStore(testLogger)
	first := draft("pertama", 600, t0.Add(-3*time.Hour))
	second := draft("kedua", 600, t0.Add(-2*time.Hour))
	seed(t, store, second, first)

	p := New(store, clock.NewFake(t0), config.DefaultConfig().Publisher, testLogger)
	res, err := p.PublishReady(context.Background(), Options{MinAge: time.Hour, MinLength: 500, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []int64{first.ID}, res.Published, "oldest draft first")
}

type failingStore struct {
	drafts []*types.Article
	err    error
}

func (f failingStore) ListPublishable(context.Context, time.Time, int) ([]*types.Article, error) {
	return f.drafts, nil
}

func (f failingStore) PublishArticle(context.Context, int64, time.Time) error {
	return f.err
}

func TestPublishReadyStoreErrors(t *testing.T) {
	store := failingStore{
		drafts: []*types.Article{draft("a", 600, t0.Add(-2*time.Hour))},
		err:    errors.New("connection reset"),
	}
	p := New(store, clock.NewFake(t0), config.DefaultConfig().Publisher, testLogger)

	res, err := p.PublishReady(context.Background(), p.Defaults())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Empty(t, res.Published)
}
