package config

import (
	"fmt"
	"net/url"

	"github.com/robfig/cron/v3"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Fetcher.Timeout <= 0 {
		return fmt.Errorf("fetcher.timeout must be > 0")
	}
	if cfg.Fetcher.MaxBodySize <= 0 {
		return fmt.Errorf("fetcher.max_body_size must be > 0")
	}
	if cfg.Fetcher.MaxRedirects < 0 {
		return fmt.Errorf("fetcher.max_redirects must be >= 0")
	}
	if cfg.Fetcher.BrowserEnabled && cfg.Fetcher.BrowserPages < 1 {
		return fmt.Errorf("fetcher.browser_pages must be >= 1 when the browser is enabled")
	}

	if cfg.Scraper.MaxArticlesPerScrape < 1 {
		return fmt.Errorf("scraper.max_articles_per_scrape must be >= 1, got %d", cfg.Scraper.MaxArticlesPerScrape)
	}
	if cfg.Scraper.RequestDelay < 0 {
		return fmt.Errorf("scraper.request_delay must be >= 0")
	}
	if cfg.Scraper.MinContentLength < 0 {
		return fmt.Errorf("scraper.min_content_length must be >= 0")
	}
	if cfg.Scraper.DefaultAuthor == "" {
		return fmt.Errorf("scraper.default_author must not be empty")
	}
	if cfg.Scraper.JobTimeout <= 0 {
		return fmt.Errorf("scraper.job_timeout must be > 0")
	}

	if cfg.AI.Enabled {
		validProviders := map[string]bool{"openai": true, "ollama": true, "custom": true}
		if !validProviders[cfg.AI.Provider] {
			return fmt.Errorf("ai.provider must be openai/ollama/custom, got %q", cfg.AI.Provider)
		}
		if cfg.AI.Provider == "openai" && cfg.AI.APIKey == "" {
			return fmt.Errorf("ai.api_key is required for the openai provider")
		}
		if cfg.AI.Provider == "custom" {
			if err := ValidateURL(cfg.AI.Endpoint); err != nil {
				return fmt.Errorf("ai.endpoint: %w", err)
			}
		}
		if cfg.AI.Timeout <= 0 {
			return fmt.Errorf("ai.timeout must be > 0")
		}
		if cfg.AI.Temperature < 0 || cfg.AI.Temperature > 2 {
			return fmt.Errorf("ai.temperature must be within 0-2, got %v", cfg.AI.Temperature)
		}
	}

	if cfg.Queue.Backend != "memory" && cfg.Queue.Backend != "redis" {
		return fmt.Errorf("queue.backend must be 'memory' or 'redis', got %q", cfg.Queue.Backend)
	}
	if cfg.Queue.Workers < 1 {
		return fmt.Errorf("queue.workers must be >= 1, got %d", cfg.Queue.Workers)
	}
	if cfg.Queue.MaxAttempts < 1 {
		return fmt.Errorf("queue.max_attempts must be >= 1, got %d", cfg.Queue.MaxAttempts)
	}
	if len(cfg.Queue.Backoff) == 0 {
		return fmt.Errorf("queue.backoff must list at least one delay")
	}
	for i, d := range cfg.Queue.Backoff {
		if d <= 0 {
			return fmt.Errorf("queue.backoff[%d] must be > 0", i)
		}
	}
	if cfg.Queue.RetryUntil <= 0 {
		return fmt.Errorf("queue.retry_until must be > 0")
	}
	if cfg.Queue.DisableAfterFailed < 1 {
		return fmt.Errorf("queue.disable_after_failed must be >= 1")
	}

	for name, spec := range map[string]string{
		"scheduler.scrape_cron":  cfg.Scheduler.ScrapeCron,
		"scheduler.retry_cron":   cfg.Scheduler.RetryCron,
		"publisher.publish_cron": cfg.Publisher.PublishCron,
	} {
		if spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	if cfg.Publisher.MinAge < 0 {
		return fmt.Errorf("publisher.min_age must be >= 0")
	}

	validStorageTypes := map[string]bool{
		"memory": true, "postgres": true, "mongodb": true,
	}
	if !validStorageTypes[cfg.Storage.Type] {
		return fmt.Errorf("storage.type %q is not supported (valid: memory, postgres, mongodb)", cfg.Storage.Type)
	}
	if cfg.Storage.Type == "postgres" && cfg.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn is required for postgres")
	}
	if cfg.Storage.Type == "mongodb" && cfg.Storage.MongoURI == "" {
		return fmt.Errorf("storage.mongo_uri is required for mongodb")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be 1-65535, got %d", cfg.Metrics.Port)
		}
	}
	if cfg.API.Enabled {
		if cfg.API.Port < 1 || cfg.API.Port > 65535 {
			return fmt.Errorf("api.port must be 1-65535, got %d", cfg.API.Port)
		}
		if cfg.Metrics.Enabled && cfg.API.Port == cfg.Metrics.Port {
			return fmt.Errorf("api.port and metrics.port must differ, both are %d", cfg.API.Port)
		}
	}

	return nil
}

// ValidateURL checks if a URL string is a usable http(s) address.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
