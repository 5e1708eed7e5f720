package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. REYNRA_AI_API_KEY.
const EnvPrefix = "REYNRA"

// Load reads configuration from file, environment, and CLI flags.
// Priority (highest to lowest): CLI flags > env vars > config file > defaults.
// A .env file in the working directory is loaded into the environment first.
func Load(configPath string) (*Config, error) {
	if err := LoadEnvFile(".env"); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, cfg)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Keys shared with other tooling.
	_ = v.BindEnv("ai.api_key", EnvPrefix+"_AI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("storage.dsn", EnvPrefix+"_STORAGE_DSN", "DATABASE_URL")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("reynra")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".reynra"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is okay if not explicitly specified
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// LoadEnvFile loads KEY=VALUE pairs from path without overriding variables
// already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// setDefaults registers default values in viper.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("fetcher.timeout", cfg.Fetcher.Timeout)
	v.SetDefault("fetcher.user_agent", cfg.Fetcher.UserAgent)
	v.SetDefault("fetcher.accept_language", cfg.Fetcher.AcceptLanguage)
	v.SetDefault("fetcher.max_body_size", cfg.Fetcher.MaxBodySize)
	v.SetDefault("fetcher.max_redirects", cfg.Fetcher.MaxRedirects)
	v.SetDefault("fetcher.idle_conn_timeout", cfg.Fetcher.IdleConnTimeout)
	v.SetDefault("fetcher.max_idle_conns", cfg.Fetcher.MaxIdleConns)
	v.SetDefault("fetcher.browser_enabled", cfg.Fetcher.BrowserEnabled)
	v.SetDefault("fetcher.browser_pages", cfg.Fetcher.BrowserPages)
	v.SetDefault("fetcher.stealth", cfg.Fetcher.Stealth)

	v.SetDefault("scraper.max_articles_per_scrape", cfg.Scraper.MaxArticlesPerScrape)
	v.SetDefault("scraper.request_delay", cfg.Scraper.RequestDelay)
	v.SetDefault("scraper.min_content_length", cfg.Scraper.MinContentLength)
	v.SetDefault("scraper.default_author", cfg.Scraper.DefaultAuthor)
	v.SetDefault("scraper.job_timeout", cfg.Scraper.JobTimeout)
	v.SetDefault("scraper.dry_run_path", cfg.Scraper.DryRunPath)

	v.SetDefault("ai.enabled", cfg.AI.Enabled)
	v.SetDefault("ai.provider", cfg.AI.Provider)
	v.SetDefault("ai.model", cfg.AI.Model)
	v.SetDefault("ai.endpoint", cfg.AI.Endpoint)
	v.SetDefault("ai.api_key", cfg.AI.APIKey)
	v.SetDefault("ai.timeout", cfg.AI.Timeout)
	v.SetDefault("ai.temperature", cfg.AI.Temperature)
	v.SetDefault("ai.max_tokens", cfg.AI.MaxTokens)
	v.SetDefault("ai.seed", cfg.AI.Seed)
	v.SetDefault("ai.breaker_failures", cfg.AI.BreakerFailures)
	v.SetDefault("ai.breaker_cooldown", cfg.AI.BreakerCooldown)

	v.SetDefault("queue.backend", cfg.Queue.Backend)
	v.SetDefault("queue.redis_addr", cfg.Queue.RedisAddr)
	v.SetDefault("queue.redis_password", cfg.Queue.RedisPassword)
	v.SetDefault("queue.redis_db", cfg.Queue.RedisDB)
	v.SetDefault("queue.prefix", cfg.Queue.Prefix)
	v.SetDefault("queue.workers", cfg.Queue.Workers)
	v.SetDefault("queue.max_attempts", cfg.Queue.MaxAttempts)
	v.SetDefault("queue.backoff", cfg.Queue.Backoff)
	v.SetDefault("queue.retry_until", cfg.Queue.RetryUntil)
	v.SetDefault("queue.high_priority_trust", cfg.Queue.HighPriorityTrust)
	v.SetDefault("queue.disable_after_failed", cfg.Queue.DisableAfterFailed)
	v.SetDefault("queue.poll_interval", cfg.Queue.PollInterval)

	v.SetDefault("scheduler.scrape_cron", cfg.Scheduler.ScrapeCron)
	v.SetDefault("scheduler.retry_cron", cfg.Scheduler.RetryCron)
	v.SetDefault("scheduler.async", cfg.Scheduler.Async)

	v.SetDefault("publisher.min_age", cfg.Publisher.MinAge)
	v.SetDefault("publisher.min_length", cfg.Publisher.MinLength)
	v.SetDefault("publisher.publish_cron", cfg.Publisher.PublishCron)
	v.SetDefault("publisher.auto_publish", cfg.Publisher.AutoPublish)
	v.SetDefault("publisher.batch_limit", cfg.Publisher.BatchLimit)

	v.SetDefault("storage.type", cfg.Storage.Type)
	v.SetDefault("storage.dsn", cfg.Storage.DSN)
	v.SetDefault("storage.mongo_uri", cfg.Storage.MongoURI)
	v.SetDefault("storage.mongo_database", cfg.Storage.MongoDatabase)
	v.SetDefault("storage.max_open_conns", cfg.Storage.MaxOpenConns)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.output", cfg.Logging.Output)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.port", cfg.Metrics.Port)
	v.SetDefault("metrics.path", cfg.Metrics.Path)

	v.SetDefault("api.enabled", cfg.API.Enabled)
	v.SetDefault("api.port", cfg.API.Port)

	v.SetDefault("sources_path", cfg.SourcesPath)
}
