package models

import (
	"time"
)

// Unknown marks a field that could not be found on a listing node.
const Unknown = "unknown"

type ScrapeRequest struct {
	Pages int    `json:"pages"`
	URL   string `json:"url"`
}

type Product struct {
	Name      string `json:"name"`
	Price     string `json:"price"`
	ImageURL  string `json:"image_url"`
	ImagePath string `json:"image_path,omitempty"`
	Page      int    `json:"page"`
}

// PageResult holds the products of one listing page, in document order.
type PageResult struct {
	Index    int
	URL      string
	Products []Product
	Err      error
}

type FailureKind string

const (
	FailureNetwork    FailureKind = "network"
	FailureHTTPStatus FailureKind = "http_status"
	FailureTimeout    FailureKind = "timeout"
	FailureParse      FailureKind = "parse"
	FailureCancelled  FailureKind = "cancelled"
)

type PageFailure struct {
	Page  int         `json:"page"`
	URL   string      `json:"url"`
	Kind  FailureKind `json:"kind"`
	Error string      `json:"error"`
}

// Artifact is the persisted form of one scrape run.
type Artifact struct {
	RunID          string        `json:"run_id"`
	SourceURL      string        `json:"source_url"`
	PagesRequested int           `json:"pages_requested"`
	CreatedAt      time.Time     `json:"created_at"`
	Products       []Product     `json:"products"`
	FailedPages    []PageFailure `json:"failed_pages,omitempty"`
}

type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunPartial   RunStatus = "partial"
	RunFailed    RunStatus = "failed"
)

type RunSummary struct {
	RunID          string        `json:"run_id"`
	Status         RunStatus     `json:"status"`
	PagesRequested int           `json:"pages_requested"`
	PagesSucceeded int           `json:"pages_succeeded"`
	ProductCount   int           `json:"product_count"`
	ImagesSaved    int           `json:"images_saved"`
	ImagesFailed   int           `json:"images_failed"`
	ArtifactPath   string        `json:"artifact_path"`
	FailedPages    []PageFailure `json:"failed_pages"`
	StartedAt      time.Time     `json:"started_at"`
	FinishedAt     time.Time     `json:"finished_at"`
}

// Resolve derives the run status from the page counters.
func (s *RunSummary) Resolve() {
	switch {
	case s.PagesSucceeded == 0:
		s.Status = RunFailed
	case len(s.FailedPages) > 0:
		s.Status = RunPartial
	default:
		s.Status = RunCompleted
	}
}
