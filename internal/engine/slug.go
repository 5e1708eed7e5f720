package engine

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/SmillingSword/news-reynra/internal/types"
)

const (
	fallbackSlug  = "artikel"
	maxSlugAttempts = 5
)

// slugExister reports whether an article already uses a slug.
type slugExister interface {
	SlugExists(ctx context.Context, slug string) (bool, error)
}

// uniqueSlug slugifies title and, when another article already uses the
// slug, appends a short suffix derived from the source URL.
func uniqueSlug(ctx context.Context, store slugExister, title, sourceURL string) (string, error) {
	base := types.Slugify(title)
	if base == "" {
		base = fallbackSlug
	}

	candidate := base
	for i := 0; i < maxSlugAttempts; i++ {
		taken, err := store.SlugExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%s", base, slugSuffix(sourceURL, i))
	}
	return "", fmt.Errorf("%w: no free slug for %q", types.ErrDuplicate, base)
}

func slugSuffix(sourceURL string, attempt int) string {
	h := fnv.New32a()
	h.Write([]byte(sourceURL))
	fmt.Fprintf(h, "#%d", attempt)
	return fmt.Sprintf("%06x", h.Sum32()&0xffffff)
}
