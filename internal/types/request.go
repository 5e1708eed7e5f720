package types

import (
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Fetcher kinds a source can ask for.
const (
	FetcherHTTP    = "http"
	FetcherBrowser = "browser"
)

// Request describes one outbound page or feed fetch.
type Request struct {
	// URL is the target URL to fetch.
	URL *url.URL

	// Method is the HTTP method. Defaults to GET.
	Method string

	// Headers are extra HTTP headers sent with the request.
	Headers http.Header

	// Timeout overrides the fetcher's default timeout for this request.
	Timeout time.Duration

	// FetcherType selects the fetcher: "http" or "browser".
	FetcherType string

	// Tag categorizes the request ("listing", "article", "feed").
	Tag string

	// Meta stores arbitrary metadata attached to this request.
	Meta map[string]any

	// CreatedAt is when this request was created.
	CreatedAt time.Time
}

// NewRequest creates a GET Request for rawURL.
func NewRequest(rawURL string) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	return &Request{
		URL:         u,
		Method:      http.MethodGet,
		Headers:     make(http.Header),
		FetcherType: FetcherHTTP,
		Meta:        make(map[string]any),
		CreatedAt:   time.Now(),
	}, nil
}

// URLString returns the string representation of the request URL.
func (r *Request) URLString() string {
	if r.URL == nil {
		return ""
	}
	return r.URL.String()
}
