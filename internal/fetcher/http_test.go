package fetcher

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions() Options {
	return Options{
		UserAgent:  "shop-scraper-test",
		Timeout:    2 * time.Second,
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
	}
}

func TestHTTPFetcherSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "shop-scraper-test", r.Header.Get("User-Agent"))
		w.Write([]byte("<html>ok</html>"))
	}))
	defer server.Close()

	f := NewHTTPFetcher(testOptions(), slog.Default())

	body, err := f.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "<html>ok</html>", string(body))
}

func TestHTTPFetcherRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("recovered"))
	}))
	defer server.Close()

	f := NewHTTPFetcher(testOptions(), slog.Default())

	body, err := f.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "recovered", string(body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPFetcherGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	f := NewHTTPFetcher(testOptions(), slog.Default())

	_, err := f.Fetch(context.Background(), server.URL)

	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, KindHTTPStatus, fetchErr.Kind)
	assert.Equal(t, http.StatusInternalServerError, fetchErr.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPFetcherDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	f := NewHTTPFetcher(testOptions(), slog.Default())

	_, err := f.Fetch(context.Background(), server.URL)

	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, KindHTTPStatus, fetchErr.Kind)
	assert.Equal(t, http.StatusNotFound, fetchErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPFetcherTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	opts := testOptions()
	opts.Timeout = 50 * time.Millisecond
	opts.MaxRetries = 0
	f := NewHTTPFetcher(opts, slog.Default())

	_, err := f.Fetch(context.Background(), server.URL)

	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, KindTimeout, fetchErr.Kind)
}

func TestHTTPFetcherNetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	opts := testOptions()
	opts.MaxRetries = 1
	f := NewHTTPFetcher(opts, slog.Default())

	_, err := f.Fetch(context.Background(), url)

	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, KindNetwork, fetchErr.Kind)
}

func TestFetchErrorRetryable(t *testing.T) {
	tests := []struct {
		err      FetchError
		expected bool
	}{
		{FetchError{Kind: KindNetwork}, true},
		{FetchError{Kind: KindTimeout}, true},
		{FetchError{Kind: KindHTTPStatus, StatusCode: 503}, true},
		{FetchError{Kind: KindHTTPStatus, StatusCode: 429}, true},
		{FetchError{Kind: KindHTTPStatus, StatusCode: 403}, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.err.Retryable(), "%+v", tt.err)
	}
}
