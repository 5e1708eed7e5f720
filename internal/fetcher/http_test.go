package fetcher

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SmillingSword/news-reynra/internal/config"
	"github.com/SmillingSword/news-reynra/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func newTestFetcher() *HTTPFetcher {
	return NewHTTPFetcher(config.DefaultConfig().Fetcher, testLogger)
}

func mustRequest(t *testing.T, url string) *types.Request {
	t.Helper()
	req, err := types.NewRequest(url)
	require.NoError(t, err)
	return req
}

func TestHTTPFetcherSendsBrowserHeaders(t *testing.T) {
	var gotUA, gotLang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotLang = r.Header.Get("Accept-Language")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer srv.Close()

	f := newTestFetcher()
	defer f.Close()

	resp, err := f.Fetch(context.Background(), mustRequest(t, srv.URL))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, string(resp.Body), "ok")
	assert.Equal(t, config.DefaultUserAgent, gotUA)
	assert.Equal(t, "id-ID,id;q=0.9,en-US;q=0.8,en;q=0.7", gotLang)
}

func TestHTTPFetcherDecompresses(t *testing.T) {
	encode := map[string]func([]byte) []byte{
		"gzip": func(b []byte) []byte {
			var buf bytes.Buffer
			w := gzip.NewWriter(&buf)
			_, _ = w.Write(b)
			_ = w.Close()
			return buf.Bytes()
		},
		"br": func(b []byte) []byte {
			var buf bytes.Buffer
			w := brotli.NewWriter(&buf)
			_, _ = w.Write(b)
			_ = w.Close()
			return buf.Bytes()
		},
	}

	for enc, fn := range encode {
		t.Run(enc, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Encoding", enc)
				_, _ = w.Write(fn([]byte("<p>berita</p>")))
			}))
			defer srv.Close()

			resp, err := newTestFetcher().Fetch(context.Background(), mustRequest(t, srv.URL))
			require.NoError(t, err)
			assert.Equal(t, "<p>berita</p>", string(resp.Body))
		})
	}
}

func TestHTTPFetcherNon2xxIsError(t *testing.T) {
	for _, status := range []int{
		http.StatusNotFound,
		http.StatusForbidden,
		http.StatusBadGateway,
		http.StatusTooManyRequests,
	} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
			}))
			defer srv.Close()

			_, err := newTestFetcher().Fetch(context.Background(), mustRequest(t, srv.URL))
			require.Error(t, err)

			var fe *types.FetchError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, status, fe.StatusCode)
		})
	}
}

func TestHTTPFetcherTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	req := mustRequest(t, srv.URL)
	req.Timeout = 50 * time.Millisecond

	_, err := newTestFetcher().Fetch(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrTimeout)
}

func TestHTTPFetcherEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := newTestFetcher().Fetch(context.Background(), mustRequest(t, srv.URL))
	assert.ErrorIs(t, err, types.ErrEmptyResponse)
}

type stubFetcher struct {
	kind  string
	calls int
}

func (s *stubFetcher) Fetch(ctx context.Context, req *types.Request) (*types.Response, error) {
	s.calls++
	return &types.Response{StatusCode: 200, Request: req}, nil
}
func (s *stubFetcher) Close() error { return nil }
func (s *stubFetcher) Type() string { return s.kind }

func TestRouterDispatch(t *testing.T) {
	h := &stubFetcher{kind: types.FetcherHTTP}
	b := &stubFetcher{kind: types.FetcherBrowser}
	r := NewRouter(h, nil, b)

	req := mustRequest(t, "https://a.example/")
	req.FetcherType = types.FetcherBrowser
	_, err := r.Fetch(context.Background(), req)
	require.NoError(t, err)

	req.FetcherType = "unknown"
	_, err = r.Fetch(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, b.calls)
	assert.Equal(t, 1, h.calls)

	_, err = NewRouter().Fetch(context.Background(), req)
	assert.ErrorIs(t, err, types.ErrNoFetcher)
}
