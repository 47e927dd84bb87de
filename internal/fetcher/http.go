package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
)

type Options struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// HTTPFetcher issues plain GET requests and retries transient failures with
// exponential backoff.
type HTTPFetcher struct {
	client *resty.Client
	opts   Options
	logger *slog.Logger
}

func NewHTTPFetcher(opts Options, logger *slog.Logger) *HTTPFetcher {
	client := resty.New().
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	if opts.UserAgent != "" {
		client.SetHeader("User-Agent", opts.UserAgent)
	}

	return &HTTPFetcher{
		client: client,
		opts:   opts,
		logger: logger.With("component", "http_fetcher"),
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var body []byte

	operation := func() error {
		b, err := f.fetchOnce(ctx, url)
		if err != nil {
			if !err.Retryable() || ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		body = b
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = f.opts.RetryDelay
	policy.MaxElapsedTime = 0

	retries := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(f.opts.MaxRetries)), ctx)
	err := backoff.RetryNotify(operation, retries, func(err error, wait time.Duration) {
		f.logger.Warn("retrying fetch", "url", url, "error", err, "wait", wait)
	})
	if err != nil {
		var fetchErr *FetchError
		if errors.As(err, &fetchErr) {
			return nil, fetchErr
		}
		return nil, transportError(url, err)
	}

	return body, nil
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, url string) ([]byte, *FetchError) {
	start := time.Now()

	resp, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, transportError(url, err)
	}

	f.logger.Debug("fetched",
		"url", url,
		"status", resp.StatusCode(),
		"bytes", len(resp.Body()),
		"duration", time.Since(start),
	)

	if !resp.IsSuccess() {
		return nil, &FetchError{
			Kind:       KindHTTPStatus,
			URL:        url,
			StatusCode: resp.StatusCode(),
			Err:        fmt.Errorf("unexpected status %q", resp.Status()),
		}
	}

	return resp.Body(), nil
}
