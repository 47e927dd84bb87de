package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunSummaryResolve(t *testing.T) {
	tests := []struct {
		name     string
		summary  RunSummary
		expected RunStatus
	}{
		{
			name:     "all pages succeeded",
			summary:  RunSummary{PagesRequested: 3, PagesSucceeded: 3},
			expected: RunCompleted,
		},
		{
			name: "one page failed",
			summary: RunSummary{
				PagesRequested: 3,
				PagesSucceeded: 2,
				FailedPages:    []PageFailure{{Page: 2, Kind: FailureHTTPStatus}},
			},
			expected: RunPartial,
		},
		{
			name:     "stopped early on an empty page",
			summary:  RunSummary{PagesRequested: 5, PagesSucceeded: 2},
			expected: RunCompleted,
		},
		{
			name: "nothing succeeded",
			summary: RunSummary{
				PagesRequested: 1,
				FailedPages:    []PageFailure{{Page: 1, Kind: FailureNetwork}},
			},
			expected: RunFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.summary.Resolve()
			assert.Equal(t, tt.expected, tt.summary.Status)
		})
	}
}
