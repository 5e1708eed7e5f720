package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/SmillingSword/news-reynra/internal/parser"
	"github.com/SmillingSword/news-reynra/internal/types"
)

// Deduplicator tracks the candidates of one scrape so a story listed twice,
// under the same link, title or title slug, is processed once.
type Deduplicator struct {
	mu     sync.Mutex
	urls   map[string]struct{}
	titles map[string]struct{}
	slugs  map[string]struct{}
}

// NewDeduplicator creates a new Deduplicator with the given estimated capacity.
func NewDeduplicator(estimatedCapacity int) *Deduplicator {
	return &Deduplicator{
		urls:   make(map[string]struct{}, estimatedCapacity),
		titles: make(map[string]struct{}, estimatedCapacity),
		slugs:  make(map[string]struct{}, estimatedCapacity),
	}
}

// Seen reports whether a candidate with the same canonical URL, normalized
// title or title slug was already marked.
func (d *Deduplicator) Seen(c *types.Candidate) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.urls[hashURL(parser.CanonicalizeURL(c.URL))]; ok && c.URL != "" {
		return true
	}
	if _, ok := d.titles[types.NormalizeTitle(c.Title)]; ok {
		return true
	}
	_, ok := d.slugs[types.Slugify(c.Title)]
	return ok
}

// Mark records a candidate's URL and title.
func (d *Deduplicator) Mark(c *types.Candidate) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if c.URL != "" {
		d.urls[hashURL(parser.CanonicalizeURL(c.URL))] = struct{}{}
	}
	if key := types.NormalizeTitle(c.Title); key != "" {
		d.titles[key] = struct{}{}
	}
	if slug := types.Slugify(c.Title); slug != "" {
		d.slugs[slug] = struct{}{}
	}
}

// Count returns the number of unique URLs marked.
func (d *Deduplicator) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

// hashURL creates a compact hash of a URL string.
func hashURL(canonicalURL string) string {
	h := sha256.Sum256([]byte(canonicalURL))
	return hex.EncodeToString(h[:16]) // 128-bit hash
}
