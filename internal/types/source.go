package types

import (
	"net/url"
	"time"
)

// Selectors map extraction fields to query strings. A query starting with
// "xpath:" or "/" is evaluated as XPath, anything else as a CSS selector.
type Selectors struct {
	ArticleLinks string `mapstructure:"article_links" yaml:"article_links" json:"article_links,omitempty" bson:"article_links,omitempty"`
	Title        string `mapstructure:"title"         yaml:"title"         json:"title,omitempty"         bson:"title,omitempty"`
	Content      string `mapstructure:"content"       yaml:"content"       json:"content,omitempty"       bson:"content,omitempty"`
	Excerpt      string `mapstructure:"excerpt"       yaml:"excerpt"       json:"excerpt,omitempty"       bson:"excerpt,omitempty"`
	Image        string `mapstructure:"image"         yaml:"image"         json:"image,omitempty"         bson:"image,omitempty"`
	Date         string `mapstructure:"date"          yaml:"date"          json:"date,omitempty"          bson:"date,omitempty"`
	Author       string `mapstructure:"author"        yaml:"author"        json:"author,omitempty"        bson:"author,omitempty"`
}

// Fields returns the non-link selectors keyed by field name.
func (s Selectors) Fields() map[string]string {
	return map[string]string{
		"title":   s.Title,
		"content": s.Content,
		"excerpt": s.Excerpt,
		"image":   s.Image,
		"date":    s.Date,
		"author":  s.Author,
	}
}

// Filters are the per-source inclusion and exclusion rules.
type Filters struct {
	MinContentLength int      `mapstructure:"min_content_length" yaml:"min_content_length" json:"min_content_length,omitempty" bson:"min_content_length,omitempty"`
	ExcludePatterns  []string `mapstructure:"exclude_patterns"   yaml:"exclude_patterns"   json:"exclude_patterns,omitempty"   bson:"exclude_patterns,omitempty"`
	RequiredKeywords []string `mapstructure:"required_keywords"  yaml:"required_keywords"  json:"required_keywords,omitempty"  bson:"required_keywords,omitempty"`
}

// Limits bound how much work one scrape of a source may do.
type Limits struct {
	MaxArticlesPerScrape int `mapstructure:"max_articles_per_scrape" yaml:"max_articles_per_scrape" json:"max_articles_per_scrape,omitempty" bson:"max_articles_per_scrape,omitempty"`
	// RequestDelay is the pause between candidates, in seconds.
	RequestDelay int `mapstructure:"request_delay" yaml:"request_delay" json:"request_delay,omitempty" bson:"request_delay,omitempty"`
}

// ScrapingConfig is the typed per-source scraping configuration.
type ScrapingConfig struct {
	Selectors Selectors `mapstructure:"selectors" yaml:"selectors" json:"selectors" bson:"selectors"`
	Filters   Filters   `mapstructure:"filters"   yaml:"filters"   json:"filters"   bson:"filters"`
	Limits    Limits    `mapstructure:"limits"    yaml:"limits"    json:"limits"    bson:"limits"`
	// Fetcher is "http" (default) or "browser" for script-rendered sites.
	Fetcher string `mapstructure:"fetcher" yaml:"fetcher" json:"fetcher,omitempty" bson:"fetcher,omitempty"`
}

// ScrapeDefaults fill unset scraping values.
type ScrapeDefaults struct {
	MaxArticlesPerScrape int
	RequestDelay         time.Duration
	MinContentLength     int
}

// WithDefaults returns a copy with zero values replaced by d.
func (c ScrapingConfig) WithDefaults(d ScrapeDefaults) ScrapingConfig {
	if c.Filters.MinContentLength <= 0 {
		c.Filters.MinContentLength = d.MinContentLength
	}
	if c.Limits.MaxArticlesPerScrape <= 0 {
		c.Limits.MaxArticlesPerScrape = d.MaxArticlesPerScrape
	}
	if c.Limits.RequestDelay < 0 {
		c.Limits.RequestDelay = 0
	} else if c.Limits.RequestDelay == 0 {
		c.Limits.RequestDelay = int(d.RequestDelay / time.Second)
	}
	if c.Fetcher == "" {
		c.Fetcher = FetcherHTTP
	}
	return c
}

// Delay is the inter-candidate pause.
func (c ScrapingConfig) Delay() time.Duration {
	return time.Duration(c.Limits.RequestDelay) * time.Second
}

// NewsSource is an external site or feed configured for scraping.
type NewsSource struct {
	ID                  int64          `db:"id"                    json:"id"                         bson:"_id"`
	Name                string         `db:"name"                  json:"name"                       bson:"name"`
	Slug                string         `db:"slug"                  json:"slug"                       bson:"slug"`
	URL                 string         `db:"url"                   json:"url"                        bson:"url"`
	RSSURL              string         `db:"rss_url"               json:"rss_url,omitempty"          bson:"rss_url,omitempty"`
	TrustScore          int            `db:"trust_score"           json:"trust_score"                bson:"trust_score"`
	Active              bool           `db:"is_active"             json:"is_active"                  bson:"is_active"`
	ScrapingConfig      ScrapingConfig `db:"-"                     json:"scraping_config"            bson:"scraping_config"`
	ScrapingFrequency   int            `db:"scraping_frequency"    json:"scraping_frequency"         bson:"scraping_frequency"`
	LastScrapedAt       *time.Time     `db:"last_scraped_at"       json:"last_scraped_at,omitempty"  bson:"last_scraped_at,omitempty"`
	NextScrapeAt        *time.Time     `db:"next_scrape_at"        json:"next_scrape_at,omitempty"   bson:"next_scrape_at,omitempty"`
	AutoScrapingEnabled bool           `db:"auto_scraping_enabled" json:"auto_scraping_enabled"      bson:"auto_scraping_enabled"`
	TotalScrapes        int            `db:"total_scrapes"         json:"total_scrapes"              bson:"total_scrapes"`
	SuccessfulScrapes   int            `db:"successful_scrapes"    json:"successful_scrapes"         bson:"successful_scrapes"`
	FailedScrapes       int            `db:"failed_scrapes"        json:"failed_scrapes"             bson:"failed_scrapes"`
	IsGamingSource      bool           `db:"is_gaming_source"      json:"is_gaming_source"           bson:"is_gaming_source"`
}

// IsReady reports whether the source is due for a scheduled scrape.
func (s *NewsSource) IsReady(now time.Time) bool {
	if !s.Active || !s.AutoScrapingEnabled {
		return false
	}
	return s.NextScrapeAt == nil || !s.NextScrapeAt.After(now)
}

// RecordSuccess updates counters and timestamps after a completed scrape.
func (s *NewsSource) RecordSuccess(now time.Time) {
	s.TotalScrapes++
	s.SuccessfulScrapes++
	t := now
	s.LastScrapedAt = &t
	s.scheduleNext(now)
}

// RecordFailure updates counters after a failed scrape.
func (s *NewsSource) RecordFailure(now time.Time) {
	s.TotalScrapes++
	s.FailedScrapes++
	s.scheduleNext(now)
}

// DisableIfFailing turns off automatic scraping once the cumulative failure
// count reaches threshold. It reports whether the source was disabled.
func (s *NewsSource) DisableIfFailing(threshold int) bool {
	if threshold <= 0 || s.FailedScrapes < threshold || !s.AutoScrapingEnabled {
		return false
	}
	s.AutoScrapingEnabled = false
	s.NextScrapeAt = nil
	return true
}

// SuccessRate is the share of successful scrapes, in percent.
func (s *NewsSource) SuccessRate() float64 {
	if s.TotalScrapes == 0 {
		return 0
	}
	return float64(s.SuccessfulScrapes) / float64(s.TotalScrapes) * 100
}

// BaseURL returns scheme://host of the source URL.
func (s *NewsSource) BaseURL() string {
	u, err := url.Parse(s.URL)
	if err != nil || u.Host == "" {
		return s.URL
	}
	return u.Scheme + "://" + u.Host
}

func (s *NewsSource) scheduleNext(now time.Time) {
	if !s.AutoScrapingEnabled {
		s.NextScrapeAt = nil
		return
	}
	freq := s.ScrapingFrequency
	if freq <= 0 {
		freq = 60
	}
	next := now.Add(time.Duration(freq) * time.Minute)
	s.NextScrapeAt = &next
}
