package fetcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/SmillingSword/news-reynra/internal/types"
)

// Fetcher is the interface for all request fetcher implementations.
type Fetcher interface {
	// Fetch retrieves the content at the given request's URL.
	Fetch(ctx context.Context, req *types.Request) (*types.Response, error)

	// Close releases any resources held by the fetcher.
	Close() error

	// Type returns the fetcher type identifier.
	Type() string
}

// Router dispatches each request to the fetcher named by its FetcherType.
type Router struct {
	fetchers map[string]Fetcher
	fallback string
}

// NewRouter creates a Router. The first fetcher is used for requests whose
// type has no registered fetcher.
func NewRouter(fetchers ...Fetcher) *Router {
	r := &Router{fetchers: make(map[string]Fetcher)}
	for _, f := range fetchers {
		if f == nil {
			continue
		}
		if r.fallback == "" {
			r.fallback = f.Type()
		}
		r.fetchers[f.Type()] = f
	}
	return r
}

// Fetch implements Fetcher.
func (r *Router) Fetch(ctx context.Context, req *types.Request) (*types.Response, error) {
	f, ok := r.fetchers[req.FetcherType]
	if !ok {
		f, ok = r.fetchers[r.fallback]
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrNoFetcher, req.FetcherType)
	}
	return f.Fetch(ctx, req)
}

// Close closes every registered fetcher.
func (r *Router) Close() error {
	var errs []error
	for _, f := range r.fetchers {
		errs = append(errs, f.Close())
	}
	return errors.Join(errs...)
}

// Type returns the fetcher type identifier.
func (r *Router) Type() string { return "router" }
