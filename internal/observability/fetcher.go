package observability

import (
	"context"
	"time"

	"github.com/SmillingSword/news-reynra/internal/fetcher"
	"github.com/SmillingSword/news-reynra/internal/types"
)

// FetchObserver records fetch timings.
type FetchObserver interface {
	ObserveFetch(fetcher, outcome string, d time.Duration)
}

// InstrumentedFetcher times every fetch of the wrapped fetcher.
type InstrumentedFetcher struct {
	next     fetcher.Fetcher
	observer FetchObserver
}

// InstrumentFetcher wraps f so that every fetch is reported to obs.
func InstrumentFetcher(f fetcher.Fetcher, obs FetchObserver) *InstrumentedFetcher {
	return &InstrumentedFetcher{next: f, observer: obs}
}

func (f *InstrumentedFetcher) Fetch(ctx context.Context, req *types.Request) (*types.Response, error) {
	start := time.Now()
	resp, err := f.next.Fetch(ctx, req)

	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case resp.StatusCode >= 400:
		outcome = "http_error"
	}
	f.observer.ObserveFetch(f.next.Type(), outcome, time.Since(start))
	return resp, err
}

func (f *InstrumentedFetcher) Close() error { return f.next.Close() }

func (f *InstrumentedFetcher) Type() string { return f.next.Type() }
