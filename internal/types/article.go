package types

import (
	"time"
)

// ArticleStatus is the editorial state of a persisted article.
type ArticleStatus string

const (
	ArticleDraft     ArticleStatus = "draft"
	ArticlePublished ArticleStatus = "published"
)

// Article is a persisted article produced by the pipeline.
type Article struct {
	ID    int64  `db:"id"             json:"id"                     bson:"_id"`
	Title string `db:"title"          json:"title"                  bson:"title"`
	Slug  string `db:"slug"           json:"slug"                   bson:"slug"`
	// TitleKey is the normalized source title used for duplicate detection.
	TitleKey string `db:"title_key"      json:"-"                      bson:"title_key"`
	// SourceSlug is the slug of the source title. It stays a duplicate key
	// when the rewrite changes the title.
	SourceSlug   string         `db:"source_slug"    json:"-"                      bson:"source_slug"`
	Content      string         `db:"content"        json:"content"                bson:"content"`
	Excerpt      string         `db:"excerpt"        json:"excerpt"                bson:"excerpt"`
	ImageURL     string         `db:"image_url"      json:"image_url,omitempty"    bson:"image_url,omitempty"`
	AuthorID     int64          `db:"author_id"      json:"author_id"              bson:"author_id"`
	NewsSourceID int64          `db:"news_source_id" json:"news_source_id"         bson:"news_source_id"`
	SourceURL    string         `db:"source_url"     json:"source_url"             bson:"source_url"`
	Status       ArticleStatus  `db:"status"         json:"status"                 bson:"status"`
	Categories   []string       `db:"-"              json:"categories,omitempty"   bson:"categories,omitempty"`
	Meta         map[string]any `db:"-"              json:"meta,omitempty"         bson:"meta,omitempty"`
	CreatedAt    time.Time      `db:"created_at"     json:"created_at"             bson:"created_at"`
	PublishedAt  *time.Time     `db:"published_at"   json:"published_at,omitempty" bson:"published_at,omitempty"`
}

// Author is an article byline.
type Author struct {
	ID   int64  `db:"id"   json:"id"   bson:"_id"`
	Name string `db:"name" json:"name" bson:"name"`
	Slug string `db:"slug" json:"slug" bson:"slug"`
}

// Category groups articles.
type Category struct {
	ID   int64  `db:"id"   json:"id"   bson:"_id"`
	Name string `db:"name" json:"name" bson:"name"`
	Slug string `db:"slug" json:"slug" bson:"slug"`
}

// Action is the outcome of processing one candidate.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionSkipped Action = "skipped"
)

// Skip reasons reported alongside ActionSkipped.
const (
	ReasonDuplicate = "duplicate"
	ReasonError     = "error"
)

// CandidateResult reports what happened to a single candidate.
type CandidateResult struct {
	Action    Action `json:"action"`
	Reason    string `json:"reason,omitempty"`
	ArticleID int64  `json:"article_id,omitempty"`
	Title     string `json:"title"`
	URL       string `json:"url"`
}
