package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SmillingSword/news-reynra/internal/parser"
	"github.com/SmillingSword/news-reynra/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, Validate(cfg))

	assert.Equal(t, 30*time.Second, cfg.Fetcher.Timeout)
	assert.Equal(t, 3, cfg.Queue.MaxAttempts)
	assert.Equal(t, []time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute}, cfg.Queue.Backoff)
	assert.Equal(t, 2*time.Hour, cfg.Queue.RetryUntil)
	assert.Equal(t, 8, cfg.Queue.HighPriorityTrust)
	assert.Equal(t, 5, cfg.Queue.DisableAfterFailed)
	assert.Equal(t, 300*time.Second, cfg.Scraper.JobTimeout)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeFile(t, "reynra.yaml", `
scraper:
  max_articles_per_scrape: 5
  request_delay: 0s
queue:
  backend: redis
  backoff: [30s, 2m]
storage:
  type: postgres
  dsn: postgres://localhost/reynra
`)
	t.Setenv("REYNRA_LOGGING_LEVEL", "debug")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))

	assert.Equal(t, 5, cfg.Scraper.MaxArticlesPerScrape)
	assert.Equal(t, time.Duration(0), cfg.Scraper.RequestDelay)
	assert.Equal(t, "redis", cfg.Queue.Backend)
	assert.Equal(t, []time.Duration{30 * time.Second, 2 * time.Minute}, cfg.Queue.Backoff)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "sk-test", cfg.AI.APIKey)
	// untouched sections keep defaults
	assert.Equal(t, "Redaksi", cfg.Scraper.DefaultAuthor)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"storage type":   func(c *Config) { c.Storage.Type = "csv" },
		"postgres dsn":   func(c *Config) { c.Storage.Type = "postgres" },
		"queue backend":  func(c *Config) { c.Queue.Backend = "kafka" },
		"workers":        func(c *Config) { c.Queue.Workers = 0 },
		"empty backoff":  func(c *Config) { c.Queue.Backoff = nil },
		"bad cron":       func(c *Config) { c.Scheduler.ScrapeCron = "every minute" },
		"openai key":     func(c *Config) { c.AI.Enabled = true },
		"log level":      func(c *Config) { c.Logging.Level = "trace" },
		"default author": func(c *Config) { c.Scraper.DefaultAuthor = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

const sourcesYAML = `
sources:
  - name: Gamebrott
    url: https://gamebrott.example
    trust_score: 9
    gaming: true
    scraping_config:
      selectors:
        article_links: "article h2 a"
        title: "xpath://h1"
        content: ".entry-content"
      filters:
        exclude_patterns: ["promo"]
      limits:
        request_delay: -1
  - name: Feed Only Ésports
    url: https://feed.example
    rss_url: https://feed.example/rss
    trust_score: 5
    active: false
    scraping_config:
      fetcher: browser
      limits:
        max_articles_per_scrape: 3
`

func TestLoadSources(t *testing.T) {
	path := writeFile(t, "sources.yaml", sourcesYAML)
	defaults := DefaultConfig().Scraper

	sources, err := LoadSources(path, defaults, parser.New(testLogger))
	require.NoError(t, err)
	require.Len(t, sources, 2)

	g := sources[0]
	assert.Equal(t, int64(1), g.ID)
	assert.Equal(t, "gamebrott", g.Slug)
	assert.True(t, g.Active)
	assert.True(t, g.AutoScrapingEnabled)
	assert.True(t, g.IsGamingSource)
	assert.Equal(t, 20, g.ScrapingConfig.Limits.MaxArticlesPerScrape)
	assert.Equal(t, 200, g.ScrapingConfig.Filters.MinContentLength)
	assert.Equal(t, time.Duration(0), g.ScrapingConfig.Delay())
	assert.Equal(t, []string{"promo"}, g.ScrapingConfig.Filters.ExcludePatterns)
	assert.Equal(t, types.FetcherHTTP, g.ScrapingConfig.Fetcher)

	f := sources[1]
	assert.Equal(t, int64(2), f.ID)
	assert.Equal(t, "feed-only-esports", f.Slug)
	assert.False(t, f.Active)
	assert.Equal(t, 3, f.ScrapingConfig.Limits.MaxArticlesPerScrape)
	assert.Equal(t, 2*time.Second, f.ScrapingConfig.Delay())
	assert.Equal(t, types.FetcherBrowser, f.ScrapingConfig.Fetcher)
}

func TestBuildSourcesRejects(t *testing.T) {
	defaults := DefaultConfig().Scraper
	p := parser.New(testLogger)
	base := SourceSpec{
		Name:           "Site",
		URL:            "https://site.example",
		ScrapingConfig: types.ScrapingConfig{Selectors: types.Selectors{ArticleLinks: "a"}},
	}

	cases := map[string]func(*SourceSpec){
		"no name":        func(s *SourceSpec) { s.Name = " " },
		"bad url":        func(s *SourceSpec) { s.URL = "ftp://site.example" },
		"no links":       func(s *SourceSpec) { s.ScrapingConfig.Selectors.ArticleLinks = "" },
		"bad selector":   func(s *SourceSpec) { s.ScrapingConfig.Selectors.Title = "h1[[" },
		"bad fetcher":    func(s *SourceSpec) { s.ScrapingConfig.Fetcher = "curl" },
		"trust too high": func(s *SourceSpec) { s.TrustScore = 11 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			spec := base
			mutate(&spec)
			_, err := BuildSources([]SourceSpec{spec}, defaults, p)
			assert.Error(t, err)
		})
	}

	_, err := BuildSources([]SourceSpec{base, base}, defaults, p)
	assert.ErrorContains(t, err, "duplicate slug")
}
