package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/SmillingSword/news-reynra/internal/config"
	"github.com/SmillingSword/news-reynra/internal/types"
)

// BrowserFetcher renders pages in headless Chromium via Rod. Sources whose
// listings are built client-side set `fetcher: browser`.
type BrowserFetcher struct {
	browser  *rod.Browser
	cfg      config.FetcherConfig
	logger   *slog.Logger
	pagePool chan *rod.Page
}

// NewBrowserFetcher launches a browser and connects to it.
func NewBrowserFetcher(cfg config.FetcherConfig, logger *slog.Logger) (*BrowserFetcher, error) {
	l := launcher.New().
		Headless(true).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Set("disable-blink-features", "AutomationControlled").
		Set("lang", "id-ID")

	launchURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(launchURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	pages := max(cfg.BrowserPages, 1)
	bf := &BrowserFetcher{
		browser:  browser,
		cfg:      cfg,
		logger:   logger.With("component", "browser_fetcher"),
		pagePool: make(chan *rod.Page, pages),
	}

	bf.logger.Info("browser fetcher ready", "max_pages", pages, "stealth", cfg.Stealth)
	return bf, nil
}

// Fetch navigates to a URL and returns the rendered page content.
func (bf *BrowserFetcher) Fetch(ctx context.Context, req *types.Request) (*types.Response, error) {
	start := time.Now()

	page, err := bf.getPage()
	if err != nil {
		return nil, &types.FetchError{URL: req.URLString(), Err: err}
	}
	defer bf.putPage(page)

	page = page.Context(ctx)

	ua := bf.cfg.UserAgent
	if ua == "" {
		ua = config.DefaultUserAgent
	}
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      ua,
		AcceptLanguage: bf.cfg.AcceptLanguage,
	}); err != nil {
		bf.logger.Warn("failed to set user agent", "error", err)
	}

	timeout := bf.cfg.Timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}

	if err := page.Timeout(timeout).Navigate(req.URLString()); err != nil {
		return nil, &types.FetchError{URL: req.URLString(), Err: err}
	}

	if err := page.Timeout(timeout).WaitStable(300 * time.Millisecond); err != nil {
		bf.logger.Warn("page stability timeout, continuing", "url", req.URLString(), "error", err)
	}

	html, err := page.HTML()
	if err != nil {
		return nil, &types.FetchError{URL: req.URLString(), Err: err}
	}
	if html == "" {
		return nil, &types.FetchError{URL: req.URLString(), Err: types.ErrEmptyResponse}
	}

	finalURL := req.URLString()
	if info, err := page.Info(); err == nil && info != nil {
		finalURL = info.URL
	}

	duration := time.Since(start)
	// Rod does not surface the document status code.
	resp := types.NewBrowserResponse(req, 200, []byte(html), finalURL, duration)

	bf.logger.Debug("browser fetch complete",
		"url", req.URLString(),
		"final_url", finalURL,
		"size", len(html),
		"duration", duration,
	)

	return resp, nil
}

// Close shuts down the browser and releases resources.
func (bf *BrowserFetcher) Close() error {
	close(bf.pagePool)
	for page := range bf.pagePool {
		_ = page.Close()
	}
	if bf.browser != nil {
		return bf.browser.Close()
	}
	return nil
}

// Type returns the fetcher type identifier.
func (bf *BrowserFetcher) Type() string {
	return types.FetcherBrowser
}

// getPage retrieves a page from the pool or opens a new one.
func (bf *BrowserFetcher) getPage() (*rod.Page, error) {
	select {
	case page := <-bf.pagePool:
		return page, nil
	default:
	}
	if bf.cfg.Stealth {
		return stealth.Page(bf.browser)
	}
	return bf.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
}

// putPage returns a page to the pool.
func (bf *BrowserFetcher) putPage(page *rod.Page) {
	_ = page.Navigate("about:blank")

	select {
	case bf.pagePool <- page:
	default:
		_ = page.Close()
	}
}
