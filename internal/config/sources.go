package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/SmillingSword/news-reynra/internal/types"
)

// SourceSpec is one entry of the sources file.
type SourceSpec struct {
	ID                int64                `mapstructure:"id"                 yaml:"id"`
	Name              string               `mapstructure:"name"               yaml:"name"`
	Slug              string               `mapstructure:"slug"               yaml:"slug"`
	URL               string               `mapstructure:"url"                yaml:"url"`
	RSSURL            string               `mapstructure:"rss_url"            yaml:"rss_url"`
	TrustScore        int                  `mapstructure:"trust_score"        yaml:"trust_score"`
	Active            *bool                `mapstructure:"active"             yaml:"active"`
	AutoScraping      *bool                `mapstructure:"auto_scraping"      yaml:"auto_scraping"`
	ScrapingFrequency int                  `mapstructure:"scraping_frequency" yaml:"scraping_frequency"`
	Gaming            bool                 `mapstructure:"gaming"             yaml:"gaming"`
	ScrapingConfig    types.ScrapingConfig `mapstructure:"scraping_config"    yaml:"scraping_config"`
}

// SelectorValidator compiles a source's selectors.
type SelectorValidator interface {
	ValidateSelectors(types.Selectors) error
}

// LoadSources reads the sources file, applies scraper defaults to each
// scraping_config and validates URLs and selectors. Unset IDs are assigned in
// file order.
func LoadSources(path string, defaults ScraperConfig, validator SelectorValidator) ([]types.NewsSource, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read sources file: %w", err)
	}

	var file struct {
		Sources []SourceSpec `mapstructure:"sources"`
	}
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sources: %w", err)
	}

	return BuildSources(file.Sources, defaults, validator)
}

// BuildSources converts specs into sources.
func BuildSources(specs []SourceSpec, defaults ScraperConfig, validator SelectorValidator) ([]types.NewsSource, error) {
	d := types.ScrapeDefaults{
		MaxArticlesPerScrape: defaults.MaxArticlesPerScrape,
		RequestDelay:         defaults.RequestDelay,
		MinContentLength:     defaults.MinContentLength,
	}

	sources := make([]types.NewsSource, 0, len(specs))
	seenSlug := make(map[string]bool)
	seenID := make(map[int64]bool)
	var nextID int64 = 1

	for i, spec := range specs {
		name := strings.TrimSpace(spec.Name)
		if name == "" {
			return nil, fmt.Errorf("sources[%d]: name is required", i)
		}
		if err := ValidateURL(spec.URL); err != nil {
			return nil, fmt.Errorf("sources[%d] %s: url: %w", i, name, err)
		}
		if spec.RSSURL != "" {
			if err := ValidateURL(spec.RSSURL); err != nil {
				return nil, fmt.Errorf("sources[%d] %s: rss_url: %w", i, name, err)
			}
		}
		if spec.TrustScore < 0 || spec.TrustScore > 10 {
			return nil, fmt.Errorf("sources[%d] %s: trust_score must be 0-10, got %d", i, name, spec.TrustScore)
		}

		sc := spec.ScrapingConfig.WithDefaults(d)
		if sc.Fetcher != types.FetcherHTTP && sc.Fetcher != types.FetcherBrowser {
			return nil, fmt.Errorf("sources[%d] %s: fetcher must be http or browser, got %q", i, name, sc.Fetcher)
		}
		if spec.RSSURL == "" && sc.Selectors.ArticleLinks == "" {
			return nil, fmt.Errorf("sources[%d] %s: either rss_url or selectors.article_links is required", i, name)
		}
		if validator != nil {
			if err := validator.ValidateSelectors(sc.Selectors); err != nil {
				return nil, fmt.Errorf("sources[%d] %s: selectors: %w", i, name, err)
			}
		}

		slug := spec.Slug
		if slug == "" {
			slug = types.Slugify(name)
		}
		if seenSlug[slug] {
			return nil, fmt.Errorf("sources[%d] %s: duplicate slug %q", i, name, slug)
		}
		seenSlug[slug] = true

		id := spec.ID
		if id == 0 {
			for seenID[nextID] {
				nextID++
			}
			id = nextID
		}
		if seenID[id] {
			return nil, fmt.Errorf("sources[%d] %s: duplicate id %d", i, name, id)
		}
		seenID[id] = true

		sources = append(sources, types.NewsSource{
			ID:                  id,
			Name:                name,
			Slug:                slug,
			URL:                 spec.URL,
			RSSURL:              spec.RSSURL,
			TrustScore:          spec.TrustScore,
			Active:              boolOr(spec.Active, true),
			AutoScrapingEnabled: boolOr(spec.AutoScraping, true),
			ScrapingConfig:      sc,
			ScrapingFrequency:   spec.ScrapingFrequency,
			IsGamingSource:      spec.Gaming,
		})
	}
	return sources, nil
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
