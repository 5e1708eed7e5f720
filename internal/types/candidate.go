package types

import (
	"time"
)

// Candidate is an article extracted from a source but not yet filtered or
// persisted.
type Candidate struct {
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Content     string    `json:"content"`
	Excerpt     string    `json:"excerpt,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	AuthorName  string    `json:"author_name,omitempty"`

	// Origin records which extraction path produced the candidate ("rss" or "html").
	Origin string `json:"origin"`
}

// Clone creates a copy of the candidate.
func (c *Candidate) Clone() *Candidate {
	clone := *c
	return &clone
}

// Text is the title and content joined, used for keyword matching.
func (c *Candidate) Text() string {
	return c.Title + " " + c.Content
}

// RewriteResult is the output of the content rewriter.
type RewriteResult struct {
	Title          string `json:"title"`
	Excerpt        string `json:"excerpt"`
	Content        string `json:"content"`
	RewrittenBy    string `json:"rewritten_by"`
	OriginalLength int    `json:"original_length"`
	RewriteLength  int    `json:"rewritten_length"`
}

// Attribution values stored in RewriteResult.RewrittenBy.
const (
	RewrittenByModel    = "ai_model"
	RewrittenByFallback = "template_fallback"
)
