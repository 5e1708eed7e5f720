package pipeline

import (
	"log/slog"
	"strings"

	"github.com/SmillingSword/news-reynra/internal/types"
)

// TrimMiddleware trims whitespace from every text field.
type TrimMiddleware struct{}

func (m *TrimMiddleware) Name() string { return "trim" }

func (m *TrimMiddleware) Process(c *types.Candidate) (*types.Candidate, error) {
	c.Title = strings.TrimSpace(c.Title)
	c.URL = strings.TrimSpace(c.URL)
	c.Content = strings.TrimSpace(c.Content)
	c.Excerpt = strings.TrimSpace(c.Excerpt)
	c.ImageURL = strings.TrimSpace(c.ImageURL)
	c.AuthorName = strings.TrimSpace(c.AuthorName)
	return c, nil
}

// HTMLSanitizeMiddleware strips markup from the plain-text fields. Content
// keeps its markup for the rewriter.
type HTMLSanitizeMiddleware struct{}

func (m *HTMLSanitizeMiddleware) Name() string { return "html_sanitize" }

func (m *HTMLSanitizeMiddleware) Process(c *types.Candidate) (*types.Candidate, error) {
	c.Title = types.StripTags(c.Title)
	c.Excerpt = types.StripTags(c.Excerpt)
	c.AuthorName = types.StripTags(c.AuthorName)
	return c, nil
}

// RequiredFieldsMiddleware drops candidates without a title or URL.
type RequiredFieldsMiddleware struct{}

func (m *RequiredFieldsMiddleware) Name() string { return "required_fields" }

func (m *RequiredFieldsMiddleware) Process(c *types.Candidate) (*types.Candidate, error) {
	if c.Title == "" || c.URL == "" {
		return nil, nil
	}
	return c, nil
}

// MinLengthMiddleware drops candidates whose content, tags stripped, is
// shorter than Min characters.
type MinLengthMiddleware struct {
	Min int
}

func (m *MinLengthMiddleware) Name() string { return "min_length" }

func (m *MinLengthMiddleware) Process(c *types.Candidate) (*types.Candidate, error) {
	if m.Min > 0 && types.TextLength(c.Content) < m.Min {
		return nil, nil
	}
	return c, nil
}

// ExcludeMiddleware drops candidates whose title or content contains any of
// the patterns, case-insensitively.
type ExcludeMiddleware struct {
	patterns []string
}

// NewExcludeMiddleware lowercases patterns and discards blank ones.
func NewExcludeMiddleware(patterns []string) *ExcludeMiddleware {
	return &ExcludeMiddleware{patterns: lowerAll(patterns)}
}

func (m *ExcludeMiddleware) Name() string { return "exclude_patterns" }

func (m *ExcludeMiddleware) Process(c *types.Candidate) (*types.Candidate, error) {
	title := strings.ToLower(c.Title)
	content := strings.ToLower(c.Content)
	for _, p := range m.patterns {
		if strings.Contains(title, p) || strings.Contains(content, p) {
			return nil, nil
		}
	}
	return c, nil
}

// KeywordMiddleware keeps only candidates whose title plus content mention
// at least one keyword. An empty keyword list keeps everything.
type KeywordMiddleware struct {
	keywords []string
}

// NewKeywordMiddleware lowercases keywords and discards blank ones.
func NewKeywordMiddleware(keywords []string) *KeywordMiddleware {
	return &KeywordMiddleware{keywords: lowerAll(keywords)}
}

func (m *KeywordMiddleware) Name() string { return "required_keywords" }

func (m *KeywordMiddleware) Process(c *types.Candidate) (*types.Candidate, error) {
	if len(m.keywords) == 0 {
		return c, nil
	}
	text := strings.ToLower(c.Text())
	for _, k := range m.keywords {
		if strings.Contains(text, k) {
			return c, nil
		}
	}
	return nil, nil
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// NewFilter builds the content filter chain for a source's filters.
func NewFilter(f types.Filters, logger *slog.Logger) *Pipeline {
	p := New(logger)
	p.Use(&TrimMiddleware{})
	p.Use(&HTMLSanitizeMiddleware{})
	p.Use(&RequiredFieldsMiddleware{})
	p.Use(&MinLengthMiddleware{Min: f.MinContentLength})
	p.Use(NewExcludeMiddleware(f.ExcludePatterns))
	p.Use(NewKeywordMiddleware(f.RequiredKeywords))
	return p
}

// Filter applies f to candidates and returns the survivors in order. The
// input slice is left untouched.
func Filter(candidates []types.Candidate, f types.Filters) []types.Candidate {
	return NewFilter(f, slog.New(slog.DiscardHandler)).Run(candidates)
}
