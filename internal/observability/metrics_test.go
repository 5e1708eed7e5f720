package observability

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SmillingSword/news-reynra/internal/engine"
	"github.com/SmillingSword/news-reynra/internal/publisher"
	"github.com/SmillingSword/news-reynra/internal/queue"
	"github.com/SmillingSword/news-reynra/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

var (
	_ engine.Recorder    = (*Metrics)(nil)
	_ queue.Recorder     = (*Metrics)(nil)
	_ publisher.Recorder = (*Metrics)(nil)
	_ FetchObserver      = (*Metrics)(nil)
)

func TestRecorders(t *testing.T) {
	m := NewMetrics(testLogger)

	m.ObserveJob(types.JobCompleted, 3*time.Second)
	m.ObserveJob(types.JobCompleted, time.Second)
	m.ObserveJob(types.JobFailed, time.Second)
	m.ObserveArticle(types.ActionSkipped, "duplicate")
	m.ObserveArticle(types.ActionCreated, "")
	m.ObserveRewrite(types.RewrittenByModel)
	m.ObserveRewrite(types.RewrittenByFallback)
	m.ObserveRewrite(types.RewrittenByFallback)
	m.ObserveTask(queue.QueueHigh, queue.OutcomeRetried)
	m.ObservePublish(publisher.OutcomePublished)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.JobsTotal.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsTotal.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ArticlesTotal.WithLabelValues("skipped", "duplicate")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RewritesTotal.WithLabelValues(types.RewrittenByFallback)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TasksTotal.WithLabelValues("high", "retried")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PublishTotal.WithLabelValues("published")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.JobDuration))
}

func TestHandlerExposition(t *testing.T) {
	m := NewMetrics(testLogger)
	m.ObserveArticle(types.ActionCreated, "")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `reynra_articles_total{action="created",reason=""} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

type stubFetcher struct {
	status int
	err    error
}

func (s stubFetcher) Fetch(ctx context.Context, req *types.Request) (*types.Response, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &types.Response{StatusCode: s.status}, nil
}

func (s stubFetcher) Close() error { return nil }

func (s stubFetcher) Type() string { return "http" }

func TestInstrumentFetcher(t *testing.T) {
	m := NewMetrics(testLogger)
	req, err := types.NewRequest("https://gamebrott.test/")
	require.NoError(t, err)

	ok := InstrumentFetcher(stubFetcher{status: 200}, m)
	_, err = ok.Fetch(context.Background(), req)
	require.NoError(t, err)

	notFound := InstrumentFetcher(stubFetcher{status: 404}, m)
	_, err = notFound.Fetch(context.Background(), req)
	require.NoError(t, err)

	broken := InstrumentFetcher(stubFetcher{err: errors.New("dial tcp: refused")}, m)
	_, err = broken.Fetch(context.Background(), req)
	require.Error(t, err)

	assert.Equal(t, "http", ok.Type())
	assert.Equal(t, 3, testutil.CollectAndCount(m.FetchDuration))
}
