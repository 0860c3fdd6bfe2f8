package types

import (
	"time"

	"github.com/google/uuid"
)

// SkipReason explains why a unit was skipped during a refresh pass.
type SkipReason string

const (
	// SkipNone means the unit was not skipped.
	SkipNone SkipReason = ""
	// SkipFresh means the unit's data was already fresh.
	SkipFresh SkipReason = "fresh"
	// SkipLowMemory means available memory was below the configured floor.
	SkipLowMemory SkipReason = "low_memory"
	// SkipNoData means the fetch returned no records, so there was
	// nothing to merge.
	SkipNoData SkipReason = "no_data"
)

// RefreshResult records the outcome of one unit's refresh attempt.
// A result is created when the attempt starts and finalized exactly once;
// it is never mutated after being appended to a PassResult.
type RefreshResult struct {
	// ID uniquely identifies this attempt.
	ID uuid.UUID

	// Unit is the unit that was refreshed.
	Unit string

	// Started is when the attempt began.
	Started time.Time

	// Success is true when the unit ended the attempt with a usable file.
	// Skipped units count as successful.
	Success bool

	// Skipped is non-empty when the unit was skipped without fetching
	// or without merging.
	Skipped SkipReason

	// Strategy names the merge strategy that produced the output.
	Strategy string

	// Degraded is true when the merge fell back to a lossy strategy.
	Degraded bool

	// Row counts before and after the refresh.
	RecordsBefore int64
	RecordsAfter  int64

	// FetchedRecords is the number of records the fetch returned.
	FetchedRecords int

	// Stage timings.
	FetchTime time.Duration
	MergeTime time.Duration
	WriteTime time.Duration
	Elapsed   time.Duration

	// Err holds the failure cause when Success is false.
	Err string
}

// NewRefreshResult creates a result for a unit attempt starting now.
func NewRefreshResult(unit string) *RefreshResult {
	return &RefreshResult{
		ID:      uuid.New(),
		Unit:    unit,
		Started: time.Now(),
	}
}

// PassResult aggregates the outcome of one refresh pass over all units.
type PassResult struct {
	// ID uniquely identifies the pass.
	ID uuid.UUID

	Started  time.Time
	Finished time.Time

	// Units holds one result per attempted unit, in processing order.
	Units []RefreshResult

	// Tallies.
	Succeeded int
	Failed    int
	Skipped   int

	// DedupSwept is the number of units deduplicated by the end-of-pass
	// sweep (zero in immediate dedup mode).
	DedupSwept int

	// Interrupted is true when the pass stopped early on cancellation.
	Interrupted bool
}

// NewPassResult creates a pass result starting now.
func NewPassResult() *PassResult {
	return &PassResult{
		ID:      uuid.New(),
		Started: time.Now(),
	}
}

// Record appends a unit result and updates the tallies.
func (p *PassResult) Record(r RefreshResult) {
	p.Units = append(p.Units, r)
	switch {
	case r.Skipped != SkipNone:
		p.Skipped++
	case r.Success:
		p.Succeeded++
	default:
		p.Failed++
	}
}

// StaleRemaining reports whether any attempted unit failed, which implies
// its data may still be stale after the pass.
func (p *PassResult) StaleRemaining() bool {
	return p.Failed > 0
}

// ScanEntry is one unit's freshness classification from a scan.
type ScanEntry struct {
	Unit string
	Info FreshnessInfo
	Err  string
}

// ScanSummary classifies all known units without fetching anything.
type ScanSummary struct {
	Scanned time.Time
	Entries []ScanEntry

	Total   int
	Fresh   int
	Stale   int
	Missing int
	Errors  int
}

// Record appends an entry and updates the tallies.
func (s *ScanSummary) Record(e ScanEntry) {
	s.Entries = append(s.Entries, e)
	s.Total++
	switch {
	case e.Err != "":
		s.Errors++
	case !e.Info.Exists:
		s.Missing++
	case e.Info.Stale:
		s.Stale++
	default:
		s.Fresh++
	}
}

// StaleUnits returns the units that need a refresh (stale or missing).
func (s *ScanSummary) StaleUnits() []string {
	var units []string
	for _, e := range s.Entries {
		if e.Err != "" {
			continue
		}
		if !e.Info.Exists || e.Info.Stale {
			units = append(units, e.Unit)
		}
	}
	return units
}
