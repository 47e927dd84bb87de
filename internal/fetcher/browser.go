package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maltedev/shop-scraper/internal/browser"
	"github.com/playwright-community/playwright-go"
)

// BrowserFetcher renders pages in headless Chromium so listings built by
// client-side scripts are present in the returned HTML.
type BrowserFetcher struct {
	browser *browser.Browser
	logger  *slog.Logger
}

func NewBrowserFetcher(b *browser.Browser, logger *slog.Logger) *BrowserFetcher {
	return &BrowserFetcher{
		browser: b,
		logger:  logger.With("component", "browser_fetcher"),
	}
}

func (f *BrowserFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, transportError(url, err)
	}

	timeout, ok := navigationTimeout(ctx, f.browser.Timeout())
	if !ok {
		return nil, &FetchError{Kind: KindTimeout, URL: url, Err: context.DeadlineExceeded}
	}

	page, err := f.browser.NewPage()
	if err != nil {
		return nil, &FetchError{Kind: KindNetwork, URL: url, Err: err}
	}
	defer page.Close()

	resp, err := f.browser.Navigate(page, url, timeout)
	if err != nil {
		return nil, navigationError(url, err)
	}

	if resp != nil {
		if statusErr := checkStatus(url, resp.Status()); statusErr != nil {
			return nil, statusErr
		}

		if !isHTML(resp.Headers()["content-type"]) {
			body, err := resp.Body()
			if err != nil {
				return nil, &FetchError{Kind: KindNetwork, URL: url, Err: err}
			}
			return body, nil
		}
	}

	content, err := page.Content()
	if err != nil {
		return nil, navigationError(url, err)
	}

	f.logger.Debug("rendered", "url", url, "bytes", len(content))

	return []byte(content), nil
}

// navigationTimeout caps limit by the ctx deadline. It reports false when
// less than a millisecond is left: playwright reads a zero timeout as none.
func navigationTimeout(ctx context.Context, limit time.Duration) (time.Duration, bool) {
	deadline, ok := ctx.Deadline()
	if !ok {
		return limit, true
	}

	remaining := time.Until(deadline)
	if remaining < time.Millisecond {
		return 0, false
	}
	if limit <= 0 || remaining < limit {
		limit = remaining
	}
	return limit, true
}

func navigationError(url string, err error) *FetchError {
	if errors.Is(err, playwright.ErrTimeout) {
		return &FetchError{Kind: KindTimeout, URL: url, Err: err}
	}
	return transportError(url, err)
}

func checkStatus(url string, status int) *FetchError {
	if status >= 200 && status < 300 {
		return nil
	}
	return &FetchError{
		Kind:       KindHTTPStatus,
		URL:        url,
		StatusCode: status,
		Err:        fmt.Errorf("unexpected status %d", status),
	}
}

func isHTML(contentType string) bool {
	return contentType == "" || strings.Contains(strings.ToLower(contentType), "html")
}
