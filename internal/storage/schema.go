package storage

// schema creates the tables used by PostgresStore. Unique indexes on
// articles.slug, articles.title_key and articles.source_slug resolve
// duplicate races between concurrent scrapes.
const schema = `
CREATE TABLE IF NOT EXISTS news_sources (
	id                    BIGSERIAL PRIMARY KEY,
	name                  TEXT        NOT NULL,
	slug                  TEXT        NOT NULL UNIQUE,
	url                   TEXT        NOT NULL,
	rss_url               TEXT        NOT NULL DEFAULT '',
	trust_score           INTEGER     NOT NULL DEFAULT 5,
	is_active             BOOLEAN     NOT NULL DEFAULT TRUE,
	scraping_config       JSONB       NOT NULL DEFAULT '{}',
	scraping_frequency    INTEGER     NOT NULL DEFAULT 60,
	last_scraped_at       TIMESTAMPTZ,
	next_scrape_at        TIMESTAMPTZ,
	auto_scraping_enabled BOOLEAN     NOT NULL DEFAULT TRUE,
	total_scrapes         INTEGER     NOT NULL DEFAULT 0,
	successful_scrapes    INTEGER     NOT NULL DEFAULT 0,
	failed_scrapes        INTEGER     NOT NULL DEFAULT 0,
	is_gaming_source      BOOLEAN     NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS scraping_jobs (
	id                 BIGSERIAL PRIMARY KEY,
	news_source_id     BIGINT      NOT NULL REFERENCES news_sources(id),
	status             TEXT        NOT NULL,
	type               TEXT        NOT NULL,
	started_at         TIMESTAMPTZ,
	completed_at       TIMESTAMPTZ,
	duration_seconds   INTEGER,
	articles_found     INTEGER     NOT NULL DEFAULT 0,
	articles_processed INTEGER     NOT NULL DEFAULT 0,
	articles_created   INTEGER     NOT NULL DEFAULT 0,
	articles_updated   INTEGER     NOT NULL DEFAULT 0,
	articles_skipped   INTEGER     NOT NULL DEFAULT 0,
	error_message      TEXT        NOT NULL DEFAULT '',
	error_details      JSONB,
	retry_count        INTEGER     NOT NULL DEFAULT 0,
	next_retry_at      TIMESTAMPTZ,
	parent_job_id      BIGINT REFERENCES scraping_jobs(id),
	metadata           JSONB,
	performance        JSONB,
	created_at         TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS scraping_jobs_retry_idx ON scraping_jobs (status, next_retry_at);

CREATE TABLE IF NOT EXISTS authors (
	id   BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	slug TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS categories (
	id   BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	slug TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS articles (
	id             BIGSERIAL PRIMARY KEY,
	title          TEXT        NOT NULL,
	slug           TEXT        NOT NULL UNIQUE,
	title_key      TEXT        NOT NULL,
	source_slug    TEXT        NOT NULL DEFAULT '',
	content        TEXT        NOT NULL,
	excerpt        TEXT        NOT NULL DEFAULT '',
	image_url      TEXT        NOT NULL DEFAULT '',
	author_id      BIGINT      NOT NULL REFERENCES authors(id),
	news_source_id BIGINT      NOT NULL REFERENCES news_sources(id),
	source_url     TEXT        NOT NULL DEFAULT '',
	status         TEXT        NOT NULL,
	meta           JSONB,
	created_at     TIMESTAMPTZ NOT NULL,
	published_at   TIMESTAMPTZ
);

CREATE UNIQUE INDEX IF NOT EXISTS articles_title_key_idx ON articles (title_key) WHERE title_key <> '';
ALTER TABLE articles ADD COLUMN IF NOT EXISTS source_slug TEXT NOT NULL DEFAULT '';
CREATE UNIQUE INDEX IF NOT EXISTS articles_source_slug_idx ON articles (source_slug) WHERE source_slug <> '';
CREATE INDEX IF NOT EXISTS articles_publishable_idx ON articles (status, created_at);

CREATE TABLE IF NOT EXISTS article_categories (
	article_id  BIGINT NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
	category_id BIGINT NOT NULL REFERENCES categories(id),
	PRIMARY KEY (article_id, category_id)
);
`
