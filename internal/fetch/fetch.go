// Package fetch acquires fresh sensor readings from an external historian.
//
// The orchestrator depends only on the Fetcher interface; HistorianClient
// is the production implementation against a REST historian. Fetches are
// expected to be slow and occasionally hang, so callers impose their own
// abandon timeouts around Fetch.
package fetch

import (
	"context"
	"time"

	"github.com/xtxerr/plantwatch/internal/store/types"
)

// TimeRange is a half-open fetch window [Start, End).
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Duration returns the window length.
func (r TimeRange) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Request identifies what to fetch for one unit.
type Request struct {
	// Plant and Unit identify the process unit.
	Plant string
	Unit  string

	// Tags is the list of sensor tags to fetch.
	Tags []string

	// Window is the time range to fetch.
	Window TimeRange
}

// Fetcher acquires readings from an external source.
type Fetcher interface {
	// Fetch returns all readings for the request. Implementations must
	// honor ctx cancellation but may otherwise block for the duration of
	// the upstream call.
	Fetch(ctx context.Context, req Request) ([]types.ReadingRecord, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, req Request) ([]types.ReadingRecord, error)

// Fetch implements Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, req Request) ([]types.ReadingRecord, error) {
	return f(ctx, req)
}
