package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/maltedev/shop-scraper/internal/models"
	"github.com/maltedev/shop-scraper/internal/scraper"
	"github.com/maltedev/shop-scraper/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testToken int64 = 4242

type MockScraper struct {
	mock.Mock
}

func (m *MockScraper) Scrape(ctx context.Context, req models.ScrapeRequest) (*models.RunSummary, error) {
	args := m.Called(ctx, req)
	if s := args.Get(0); s != nil {
		return s.(*models.RunSummary), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockScraper) RunTimeout(pages int) time.Duration {
	args := m.Called(pages)
	return args.Get(0).(time.Duration)
}

type MockLoader struct {
	mock.Mock
}

func (m *MockLoader) Load(runID string) (*models.Artifact, error) {
	args := m.Called(runID)
	if a := args.Get(0); a != nil {
		return a.(*models.Artifact), args.Error(1)
	}
	return nil, args.Error(1)
}

func newTestRouter(s *MockScraper, l *MockLoader) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRouter(NewHandlers(s, l, logger), testToken)
}

func postScrape(t *testing.T, h http.Handler, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(TokenHeader, token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestScrape_Success(t *testing.T) {
	s := new(MockScraper)
	router := newTestRouter(s, new(MockLoader))

	summary := &models.RunSummary{
		RunID:          "20260101T000000Z-abc",
		Status:         models.RunCompleted,
		PagesRequested: 1,
		PagesSucceeded: 1,
		ProductCount:   2,
		FailedPages:    []models.PageFailure{},
	}
	s.On("RunTimeout", 1).Return(2 * time.Minute).Twice()
	s.On("Scrape", mock.Anything, models.ScrapeRequest{Pages: 1, URL: "https://shop.test/page/"}).
		Return(summary, nil).Twice()

	for _, path := range []string{"/scrape", "/api/v1/scrape"} {
		t.Run(path, func(t *testing.T) {
			rec := postScrape(t, router, path, fmt.Sprint(testToken), `{"pages": 1, "url": "https://shop.test/page/"}`)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var got models.RunSummary
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
			assert.Equal(t, summary.RunID, got.RunID)
			assert.Equal(t, 2, got.ProductCount)
			assert.Equal(t, models.RunCompleted, got.Status)
		})
	}

	s.AssertExpectations(t)
}

func TestScrape_Token(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"non-numeric", "abc"},
		{"mismatch", "1"},
		{"float", "4242.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := new(MockScraper)
			router := newTestRouter(s, new(MockLoader))

			rec := postScrape(t, router, "/scrape", tt.token, `{"pages": 1, "url": "https://shop.test/"}`)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			s.AssertNotCalled(t, "Scrape", mock.Anything, mock.Anything)
		})
	}
}

func TestScrape_BadBody(t *testing.T) {
	s := new(MockScraper)
	router := newTestRouter(s, new(MockLoader))

	rec := postScrape(t, router, "/scrape", fmt.Sprint(testToken), `{"pages": "two"`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	s.AssertNotCalled(t, "Scrape", mock.Anything, mock.Anything)
}

func TestScrape_BodyTooLarge(t *testing.T) {
	s := new(MockScraper)
	router := newTestRouter(s, new(MockLoader))

	body := `{"pages": 1, "url": "https://shop.test/", "pad": "` + strings.Repeat("x", maxRequestBody) + `"}`
	rec := postScrape(t, router, "/scrape", fmt.Sprint(testToken), body)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	s.AssertNotCalled(t, "Scrape", mock.Anything, mock.Anything)
}

func TestScrape_OutlivesServerWriteTimeout(t *testing.T) {
	s := new(MockScraper)
	summary := &models.RunSummary{RunID: "20260101T000000Z-slow", Status: models.RunCompleted, FailedPages: []models.PageFailure{}}
	s.On("RunTimeout", 1).Return(time.Second)
	s.On("Scrape", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { time.Sleep(300 * time.Millisecond) }).
		Return(summary, nil)

	srv := httptest.NewUnstartedServer(newTestRouter(s, new(MockLoader)))
	srv.Config.WriteTimeout = 100 * time.Millisecond
	srv.Start()
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/scrape", strings.NewReader(`{"pages": 1, "url": "https://shop.test/"}`))
	require.NoError(t, err)
	req.Header.Set(TokenHeader, fmt.Sprint(testToken))

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var got models.RunSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, summary.RunID, got.RunID)
}

func TestScrape_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantField  string
	}{
		{
			name:       "validation",
			err:        &scraper.ValidationError{Field: "pages", Reason: "must be a positive integer"},
			wantStatus: http.StatusBadRequest,
			wantField:  "pages",
		},
		{
			name:       "storage",
			err:        fmt.Errorf("persist run x: %w", &storage.StorageError{Op: "write", Path: "/x", Err: errors.New("disk full")}),
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "unexpected",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := new(MockScraper)
			router := newTestRouter(s, new(MockLoader))
			s.On("RunTimeout", mock.Anything).Return(time.Duration(0))
			s.On("Scrape", mock.Anything, mock.Anything).Return(nil, tt.err)

			rec := postScrape(t, router, "/scrape", fmt.Sprint(testToken), `{"pages": 0, "url": "https://shop.test/"}`)

			assert.Equal(t, tt.wantStatus, rec.Code)

			var body map[string]string
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.NotEmpty(t, body["error"])
			assert.Equal(t, tt.wantField, body["field"])
		})
	}
}

func TestGetRun(t *testing.T) {
	tests := []struct {
		name       string
		artifact   *models.Artifact
		err        error
		wantStatus int
	}{
		{"found", &models.Artifact{RunID: "run-1", Products: []models.Product{{Name: "Widget A"}}}, nil, http.StatusOK},
		{"not found", nil, storage.ErrNotFound, http.StatusNotFound},
		{"invalid id", nil, storage.ErrInvalidRunID, http.StatusBadRequest},
		{"read failure", nil, &storage.StorageError{Op: "read", Err: errors.New("io")}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := new(MockLoader)
			router := newTestRouter(new(MockScraper), l)
			l.On("Load", "run-1").Return(tt.artifact, tt.err)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/run-1", nil)
			req.Header.Set(TokenHeader, fmt.Sprint(testToken))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			l.AssertExpectations(t)
		})
	}
}

func TestGetRun_RequiresToken(t *testing.T) {
	l := new(MockLoader)
	router := newTestRouter(new(MockScraper), l)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/run-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	l.AssertNotCalled(t, "Load", mock.Anything)
}

func TestHealth(t *testing.T) {
	router := newTestRouter(new(MockScraper), new(MockLoader))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCheckToken(t *testing.T) {
	assert.NoError(t, checkToken("4242", testToken))
	assert.NoError(t, checkToken(" 4242 ", testToken))
	assert.ErrorIs(t, checkToken("", testToken), ErrUnauthorized)
	assert.ErrorIs(t, checkToken("4243", testToken), ErrUnauthorized)
	assert.ErrorIs(t, checkToken("99999999999999999999", testToken), ErrUnauthorized)
}
