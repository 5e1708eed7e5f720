package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for the reynra pipeline.
type Config struct {
	Fetcher   FetcherConfig   `mapstructure:"fetcher"   yaml:"fetcher"`
	Scraper   ScraperConfig   `mapstructure:"scraper"   yaml:"scraper"`
	AI        AIConfig        `mapstructure:"ai"        yaml:"ai"`
	Queue     QueueConfig     `mapstructure:"queue"     yaml:"queue"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" yaml:"scheduler"`
	Publisher PublisherConfig `mapstructure:"publisher" yaml:"publisher"`
	Storage   StorageConfig   `mapstructure:"storage"   yaml:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"   yaml:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"   yaml:"metrics"`
	API       APIConfig       `mapstructure:"api"       yaml:"api"`

	// SourcesPath points to the YAML file listing news sources.
	SourcesPath string `mapstructure:"sources_path" yaml:"sources_path"`
}

// FetcherConfig controls outbound HTTP requests to news sources.
type FetcherConfig struct {
	Timeout         time.Duration `mapstructure:"timeout"           yaml:"timeout"`
	UserAgent       string        `mapstructure:"user_agent"        yaml:"user_agent"`
	AcceptLanguage  string        `mapstructure:"accept_language"   yaml:"accept_language"`
	MaxBodySize     int64         `mapstructure:"max_body_size"     yaml:"max_body_size"`
	MaxRedirects    int           `mapstructure:"max_redirects"     yaml:"max_redirects"`
	IdleConnTimeout time.Duration `mapstructure:"idle_conn_timeout" yaml:"idle_conn_timeout"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"    yaml:"max_idle_conns"`
	BrowserEnabled  bool          `mapstructure:"browser_enabled"   yaml:"browser_enabled"`
	BrowserPages    int           `mapstructure:"browser_pages"     yaml:"browser_pages"`
	Stealth         bool          `mapstructure:"stealth"           yaml:"stealth"`
}

// ScraperConfig holds pipeline-wide defaults applied when a source leaves a
// value unset in its scraping_config.
type ScraperConfig struct {
	MaxArticlesPerScrape int           `mapstructure:"max_articles_per_scrape" yaml:"max_articles_per_scrape"`
	RequestDelay         time.Duration `mapstructure:"request_delay"           yaml:"request_delay"`
	MinContentLength     int           `mapstructure:"min_content_length"      yaml:"min_content_length"`
	DefaultAuthor        string        `mapstructure:"default_author"          yaml:"default_author"`
	JobTimeout           time.Duration `mapstructure:"job_timeout"             yaml:"job_timeout"`
	DryRunPath           string        `mapstructure:"dry_run_path"            yaml:"dry_run_path"`
}

// AIConfig controls the external rewrite model.
type AIConfig struct {
	Enabled     bool          `mapstructure:"enabled"     yaml:"enabled"`
	Provider    string        `mapstructure:"provider"    yaml:"provider"`
	Model       string        `mapstructure:"model"       yaml:"model"`
	Endpoint    string        `mapstructure:"endpoint"    yaml:"endpoint"`
	APIKey      string        `mapstructure:"api_key"     yaml:"api_key"`
	Timeout     time.Duration `mapstructure:"timeout"     yaml:"timeout"`
	Temperature float64       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"  yaml:"max_tokens"`
	Seed        int64         `mapstructure:"seed"        yaml:"seed"`
	// BreakerFailures is the number of consecutive failures that opens the
	// circuit in front of the model; while open every rewrite uses the fallback.
	BreakerFailures uint32        `mapstructure:"breaker_failures" yaml:"breaker_failures"`
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown" yaml:"breaker_cooldown"`
}

// QueueConfig controls asynchronous per-source scrape dispatch.
type QueueConfig struct {
	Backend            string          `mapstructure:"backend"              yaml:"backend"` // memory, redis
	RedisAddr          string          `mapstructure:"redis_addr"           yaml:"redis_addr"`
	RedisPassword      string          `mapstructure:"redis_password"       yaml:"redis_password"`
	RedisDB            int             `mapstructure:"redis_db"             yaml:"redis_db"`
	Prefix             string          `mapstructure:"prefix"               yaml:"prefix"`
	Workers            int             `mapstructure:"workers"              yaml:"workers"`
	MaxAttempts        int             `mapstructure:"max_attempts"         yaml:"max_attempts"`
	Backoff            []time.Duration `mapstructure:"backoff"              yaml:"backoff"`
	RetryUntil         time.Duration   `mapstructure:"retry_until"          yaml:"retry_until"`
	HighPriorityTrust  int             `mapstructure:"high_priority_trust"  yaml:"high_priority_trust"`
	DisableAfterFailed int             `mapstructure:"disable_after_failed" yaml:"disable_after_failed"`
	PollInterval       time.Duration   `mapstructure:"poll_interval"        yaml:"poll_interval"`
}

// SchedulerConfig controls the periodic trigger used by "serve".
type SchedulerConfig struct {
	ScrapeCron string `mapstructure:"scrape_cron" yaml:"scrape_cron"`
	RetryCron  string `mapstructure:"retry_cron"  yaml:"retry_cron"`
	Async      bool   `mapstructure:"async"       yaml:"async"`
}

// PublisherConfig gates automatic publication of drafts.
type PublisherConfig struct {
	MinAge      time.Duration `mapstructure:"min_age"      yaml:"min_age"`
	MinLength   int           `mapstructure:"min_length"   yaml:"min_length"`
	PublishCron string        `mapstructure:"publish_cron" yaml:"publish_cron"`
	AutoPublish bool          `mapstructure:"auto_publish" yaml:"auto_publish"`
	BatchLimit  int           `mapstructure:"batch_limit"  yaml:"batch_limit"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Type          string `mapstructure:"type"           yaml:"type"` // memory, postgres, mongodb
	DSN           string `mapstructure:"dsn"            yaml:"dsn"`
	MongoURI      string `mapstructure:"mongo_uri"      yaml:"mongo_uri"`
	MongoDatabase string `mapstructure:"mongo_database" yaml:"mongo_database"`
	MaxOpenConns  int    `mapstructure:"max_open_conns" yaml:"max_open_conns"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port"    yaml:"port"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// APIConfig controls the operations HTTP API served by "serve".
type APIConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port"    yaml:"port"`
}

// DefaultUserAgent mimics a desktop browser; several gaming sites reject
// obvious bot agents.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Fetcher: FetcherConfig{
			Timeout:         30 * time.Second,
			UserAgent:       DefaultUserAgent,
			AcceptLanguage:  "id-ID,id;q=0.9,en-US;q=0.8,en;q=0.7",
			MaxBodySize:     10 * 1024 * 1024, // 10MB
			MaxRedirects:    10,
			IdleConnTimeout: 90 * time.Second,
			MaxIdleConns:    50,
			BrowserPages:    2,
		},
		Scraper: ScraperConfig{
			MaxArticlesPerScrape: 20,
			RequestDelay:         2 * time.Second,
			MinContentLength:     200,
			DefaultAuthor:        "Redaksi",
			JobTimeout:           300 * time.Second,
			DryRunPath:           "./output/dry-run.jsonl",
		},
		AI: AIConfig{
			Enabled:         false,
			Provider:        "openai",
			Model:           "gpt-4o-mini",
			Timeout:         45 * time.Second,
			Temperature:     0.7,
			MaxTokens:       2000,
			BreakerFailures: 3,
			BreakerCooldown: 5 * time.Minute,
		},
		Queue: QueueConfig{
			Backend:            "memory",
			RedisAddr:          "localhost:6379",
			Prefix:             "reynra",
			Workers:            2,
			MaxAttempts:        3,
			Backoff:            []time.Duration{60 * time.Second, 300 * time.Second, 900 * time.Second},
			RetryUntil:         2 * time.Hour,
			HighPriorityTrust:  8,
			DisableAfterFailed: 5,
			PollInterval:       time.Second,
		},
		Scheduler: SchedulerConfig{
			ScrapeCron: "*/5 * * * *",
			RetryCron:  "*/5 * * * *",
			Async:      true,
		},
		Publisher: PublisherConfig{
			MinAge:      time.Hour,
			MinLength:   500,
			PublishCron: "0 * * * *",
			BatchLimit:  50,
		},
		Storage: StorageConfig{
			Type:          "memory",
			MongoDatabase: "reynra",
			MaxOpenConns:  10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
		API: APIConfig{
			Enabled: false,
			Port:    8080,
		},
		SourcesPath: "./configs/sources.yaml",
	}
}
