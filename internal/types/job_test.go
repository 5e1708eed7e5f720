package types

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

func TestRetryDelayTable(t *testing.T) {
	tests := []struct {
		retryCount int
		want       time.Duration
		ok         bool
	}{
		{0, 5 * time.Minute, true},
		{1, 15 * time.Minute, true},
		{2, 45 * time.Minute, true},
		{3, 0, false},
		{7, 0, false},
	}
	for _, tt := range tests {
		got, ok := RetryDelay(tt.retryCount)
		assert.Equal(t, tt.ok, ok, "retry count %d", tt.retryCount)
		assert.Equal(t, tt.want, got, "retry count %d", tt.retryCount)
	}
}

func TestMarkFailedComputesNextRetry(t *testing.T) {
	for retryCount, want := range []time.Duration{5 * time.Minute, 15 * time.Minute, 45 * time.Minute} {
		j := NewScrapingJob(1, JobScheduled, epoch)
		j.RetryCount = retryCount
		require.NoError(t, j.MarkRunning(epoch))
		require.NoError(t, j.MarkFailed(epoch.Add(time.Minute), errors.New("boom"), nil))

		require.NotNil(t, j.NextRetryAt)
		assert.Equal(t, want, j.NextRetryAt.Sub(epoch.Add(time.Minute)))
		assert.Equal(t, retryCount, j.RetryCount, "retry count is fixed on the row")
	}

	j := NewScrapingJob(1, JobRetry, epoch)
	j.RetryCount = 3
	require.NoError(t, j.MarkRunning(epoch))
	require.NoError(t, j.MarkFailed(epoch, errors.New("boom"), nil))
	assert.Nil(t, j.NextRetryAt)
	assert.False(t, j.CanRetry(epoch.Add(24*time.Hour)))
}

func TestJobLifecycle(t *testing.T) {
	j := NewScrapingJob(42, JobManual, epoch)
	assert.Equal(t, JobPending, j.Status)
	assert.Nil(t, j.DurationSeconds)

	require.NoError(t, j.MarkRunning(epoch))
	require.NoError(t, j.MarkCompleted(epoch.Add(90*time.Second), JobCounts{Found: 4, Processed: 4, Created: 3, Skipped: 1}))

	assert.Equal(t, JobCompleted, j.Status)
	require.NotNil(t, j.CompletedAt)
	require.NotNil(t, j.DurationSeconds)
	assert.Equal(t, 90, *j.DurationSeconds)
	assert.Equal(t, 3, j.ArticlesCreated)
	assert.Equal(t, 75.0, j.SuccessRate())
	assert.Nil(t, j.NextRetryAt)
}

func TestJobInvalidTransitions(t *testing.T) {
	j := NewScrapingJob(1, JobManual, epoch)
	assert.ErrorIs(t, j.MarkCompleted(epoch, JobCounts{}), ErrInvalidTransition)

	require.NoError(t, j.MarkRunning(epoch))
	assert.ErrorIs(t, j.MarkRunning(epoch), ErrInvalidTransition)

	require.NoError(t, j.MarkCompleted(epoch, JobCounts{}))
	assert.ErrorIs(t, j.MarkFailed(epoch, errors.New("late"), nil), ErrInvalidTransition)
}

func TestNewRetryJob(t *testing.T) {
	failed := NewScrapingJob(9, JobScheduled, epoch)
	failed.ID = 100
	failed.RetryCount = 1
	require.NoError(t, failed.MarkRunning(epoch))
	require.NoError(t, failed.MarkFailed(epoch, errors.New("timeout"), map[string]any{"stage": "extract"}))

	assert.False(t, failed.CanRetry(epoch.Add(14*time.Minute)))
	assert.True(t, failed.CanRetry(epoch.Add(15*time.Minute)))

	retry := NewRetryJob(failed, epoch.Add(15*time.Minute))
	assert.Equal(t, JobRetry, retry.Type)
	assert.Equal(t, JobPending, retry.Status)
	assert.Equal(t, 2, retry.RetryCount)
	require.NotNil(t, retry.ParentJobID)
	assert.Equal(t, int64(100), *retry.ParentJobID)
	assert.Equal(t, "extract", failed.ErrorDetails["stage"])
}

func TestNewsSourceScheduling(t *testing.T) {
	s := &NewsSource{Active: true, AutoScrapingEnabled: true, ScrapingFrequency: 30}
	assert.True(t, s.IsReady(epoch), "never scraped sources are ready")

	s.RecordSuccess(epoch)
	assert.False(t, s.IsReady(epoch.Add(29*time.Minute)))
	assert.True(t, s.IsReady(epoch.Add(30*time.Minute)))
	assert.Equal(t, 1, s.SuccessfulScrapes)

	for i := 0; i < 4; i++ {
		s.RecordFailure(epoch)
		assert.False(t, s.DisableIfFailing(5))
	}
	s.RecordFailure(epoch)
	assert.True(t, s.DisableIfFailing(5))
	assert.False(t, s.AutoScrapingEnabled)
	assert.Nil(t, s.NextScrapeAt)
	assert.False(t, s.IsReady(epoch.Add(time.Hour)))
}

func TestScrapingConfigDefaults(t *testing.T) {
	c := ScrapingConfig{}.WithDefaults(ScrapeDefaults{
		MaxArticlesPerScrape: 20,
		RequestDelay:         2 * time.Second,
		MinContentLength:     200,
	})
	assert.Equal(t, 20, c.Limits.MaxArticlesPerScrape)
	assert.Equal(t, 200, c.Filters.MinContentLength)
	assert.Equal(t, 2*time.Second, c.Delay())
	assert.Equal(t, FetcherHTTP, c.Fetcher)

	c = ScrapingConfig{Limits: Limits{MaxArticlesPerScrape: 2, RequestDelay: -1}}.WithDefaults(ScrapeDefaults{MaxArticlesPerScrape: 20, RequestDelay: 2 * time.Second})
	assert.Equal(t, 2, c.Limits.MaxArticlesPerScrape)
	assert.Equal(t, time.Duration(0), c.Delay())
}
