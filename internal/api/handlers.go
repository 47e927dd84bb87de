package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/maltedev/shop-scraper/internal/models"
	"github.com/maltedev/shop-scraper/internal/scraper"
	"github.com/maltedev/shop-scraper/internal/storage"
)

const (
	maxRequestBody = 1 << 20

	// time allowed after the run deadline for images, the artifact write and
	// the response itself
	writeGrace = 2 * time.Minute
)

type Scraper interface {
	Scrape(ctx context.Context, req models.ScrapeRequest) (*models.RunSummary, error)
	RunTimeout(pages int) time.Duration
}

type ArtifactLoader interface {
	Load(runID string) (*models.Artifact, error)
}

type Handlers struct {
	scraper   Scraper
	artifacts ArtifactLoader
	logger    *slog.Logger
}

func NewHandlers(s Scraper, artifacts ArtifactLoader, logger *slog.Logger) *Handlers {
	return &Handlers{
		scraper:   s,
		artifacts: artifacts,
		logger:    logger.With("component", "api"),
	}
}

// Scrape runs one scrape for the posted {pages, url} request and responds
// with the run summary.
func (h *Handlers) Scrape(w http.ResponseWriter, r *http.Request) {
	var req models.ScrapeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.extendWriteDeadline(w, req.Pages)

	summary, err := h.scraper.Scrape(r.Context(), req)
	if err != nil {
		h.respondScrapeError(w, err, req)
		return
	}

	h.respondJSON(w, http.StatusOK, summary)
}

// extendWriteDeadline replaces the server's write timeout with one that
// covers the whole run, so a long scrape still gets its summary delivered.
func (h *Handlers) extendWriteDeadline(w http.ResponseWriter, pages int) {
	var deadline time.Time
	if timeout := h.scraper.RunTimeout(pages); timeout > 0 {
		deadline = time.Now().Add(timeout + writeGrace)
	}

	err := http.NewResponseController(w).SetWriteDeadline(deadline)
	if err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.logger.Warn("failed to extend write deadline", "error", err)
	}
}

// GetRun returns the stored artifact of a run.
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	artifact, err := h.artifacts.Load(runID)
	switch {
	case err == nil:
		h.respondJSON(w, http.StatusOK, artifact)
	case errors.Is(err, storage.ErrInvalidRunID):
		h.respondError(w, http.StatusBadRequest, "invalid run id")
	case errors.Is(err, storage.ErrNotFound):
		h.respondError(w, http.StatusNotFound, "run not found")
	default:
		h.logger.Error("failed to load run", "run_id", runID, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to load run")
	}
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) respondScrapeError(w http.ResponseWriter, err error, req models.ScrapeRequest) {
	var validationErr *scraper.ValidationError
	if errors.As(err, &validationErr) {
		h.respondJSON(w, http.StatusBadRequest, map[string]string{
			"error": validationErr.Error(),
			"field": validationErr.Field,
		})
		return
	}

	var storageErr *storage.StorageError
	if errors.As(err, &storageErr) {
		h.logger.Error("scrape could not be persisted", "url", req.URL, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to store scrape results")
		return
	}

	h.logger.Error("scrape failed", "url", req.URL, "error", err)
	h.respondError(w, http.StatusInternalServerError, "scrape failed")
}

// Helper methods
func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
