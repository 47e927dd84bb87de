package scraper

import (
	"context"
	"errors"
	"fmt"

	"github.com/maltedev/shop-scraper/internal/fetcher"
	"github.com/maltedev/shop-scraper/internal/models"
	"github.com/maltedev/shop-scraper/internal/parser"
)

// ValidationError rejects a request before any page is fetched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

var errPageSkipped = errors.New("page not fetched")

// classifyPageError maps a page error onto the failure kinds reported in
// run summaries.
func classifyPageError(err error) models.FailureKind {
	var fetchErr *fetcher.FetchError
	if errors.As(err, &fetchErr) {
		switch fetchErr.Kind {
		case fetcher.KindHTTPStatus:
			return models.FailureHTTPStatus
		case fetcher.KindTimeout:
			return models.FailureTimeout
		default:
			return models.FailureNetwork
		}
	}

	var parseErr *parser.ParseError
	if errors.As(err, &parseErr) {
		return models.FailureParse
	}

	if errors.Is(err, errPageSkipped) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return models.FailureCancelled
	}

	return models.FailureNetwork
}
