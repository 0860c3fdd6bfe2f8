package types

import "time"

// StalenessLevel classifies how far behind a unit's data is.
type StalenessLevel int

const (
	// LevelFresh means the latest data is within the freshness window.
	LevelFresh StalenessLevel = iota
	// LevelMildlyStale means the data is up to 4x the freshness window old.
	LevelMildlyStale
	// LevelStale means the data is up to 24x the freshness window old.
	LevelStale
	// LevelSeverelyStale means the data is older than 24x the freshness window,
	// or missing entirely.
	LevelSeverelyStale
)

// String returns a human-readable representation of the StalenessLevel.
func (l StalenessLevel) String() string {
	switch l {
	case LevelFresh:
		return "fresh"
	case LevelMildlyStale:
		return "mildly_stale"
	case LevelStale:
		return "stale"
	case LevelSeverelyStale:
		return "severely_stale"
	default:
		return "unknown"
	}
}

// ClassifyAge maps a data age to a StalenessLevel given the freshness window.
func ClassifyAge(age, maxAge time.Duration) StalenessLevel {
	switch {
	case age <= maxAge:
		return LevelFresh
	case age <= 4*maxAge:
		return LevelMildlyStale
	case age <= 24*maxAge:
		return LevelStale
	default:
		return LevelSeverelyStale
	}
}

// FreshnessInfo describes the freshness state of one unit's stored data.
type FreshnessInfo struct {
	// Unit is the unit this info describes.
	Unit string

	// Exists is false when the unit has no stored file yet.
	// A missing unit is always considered stale.
	Exists bool

	// Path is the authoritative file the evaluation ran against.
	Path string

	// TotalRecords is the row count of the authoritative file.
	TotalRecords int64

	// EarliestTime and LatestTime bound the stored data.
	EarliestTime time.Time
	LatestTime   time.Time

	// DataAge is the evaluation time minus LatestTime.
	DataAge time.Duration

	// TotalTags is the number of distinct tags seen; FreshTags is how
	// many of them have data newer than the freshness cutoff.
	TotalTags int
	FreshTags int

	// Stale is the overall verdict. A unit is stale when fewer than the
	// configured fraction of its tags are fresh; a fraction exactly at
	// the threshold counts as fresh.
	Stale bool

	// Level classifies DataAge for reporting.
	Level StalenessLevel

	// Strategy names the evaluation path used ("pushdown" or "materialize").
	Strategy string
}

// FreshFraction returns the fraction of tags that are fresh, or 0 when
// no tags were observed.
func (f *FreshnessInfo) FreshFraction() float64 {
	if f.TotalTags == 0 {
		return 0
	}
	return float64(f.FreshTags) / float64(f.TotalTags)
}
