package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Fetcher retrieves the body of a URL. Implementations return a *FetchError
// for every failure.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type Kind string

const (
	KindNetwork    Kind = "network"
	KindHTTPStatus Kind = "http_status"
	KindTimeout    Kind = "timeout"
)

type FetchError struct {
	Kind       Kind
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Kind == KindHTTPStatus {
		return fmt.Sprintf("fetch %s: http status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %s error: %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt could succeed: transport
// failures, timeouts, 429 and 5xx.
func (e *FetchError) Retryable() bool {
	switch e.Kind {
	case KindNetwork, KindTimeout:
		return true
	case KindHTTPStatus:
		return e.StatusCode == 429 || e.StatusCode >= 500
	default:
		return false
	}
}

// transportError classifies an error raised before a response was read.
func transportError(url string, err error) *FetchError {
	kind := KindNetwork

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = KindTimeout
	}

	return &FetchError{Kind: kind, URL: url, Err: err}
}
