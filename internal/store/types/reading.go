package types

import (
	"fmt"
	"time"
)

// ReadingRecord represents a single sensor measurement for a plant unit.
// This is the primary data unit flowing through the store and merge engine.
type ReadingRecord struct {
	// Identity
	Plant string // Plant site (e.g., "KNPC")
	Unit  string // Process unit (e.g., "GT-1")
	Tag   string // Sensor tag (e.g., "GT-1.TIT-4001.PV")

	// Timestamp of the measurement
	Time time.Time

	// Measured value
	Value float64
}

// Key returns the deduplication key for this record.
// Records sharing a key are duplicates; the last-written one wins.
func (r *ReadingRecord) Key() string {
	return fmt.Sprintf("%s/%s/%s@%d", r.Plant, r.Unit, r.Tag, r.Time.UnixMilli())
}

// DedupKey is the comparable form of a record's deduplication key,
// suitable for use as a map key in merge paths.
type DedupKey struct {
	Plant  string
	Unit   string
	Tag    string
	TimeMs int64
}

// KeyOf returns the DedupKey for a record.
func KeyOf(r *ReadingRecord) DedupKey {
	return DedupKey{
		Plant:  r.Plant,
		Unit:   r.Unit,
		Tag:    r.Tag,
		TimeMs: r.Time.UnixMilli(),
	}
}

// RecordBatch represents a collection of records for batch processing.
type RecordBatch struct {
	Records []ReadingRecord
}

// NewRecordBatch creates a new batch with the given capacity.
func NewRecordBatch(capacity int) *RecordBatch {
	return &RecordBatch{
		Records: make([]ReadingRecord, 0, capacity),
	}
}

// Add appends a record to the batch.
func (b *RecordBatch) Add(r ReadingRecord) {
	b.Records = append(b.Records, r)
}

// Len returns the number of records in the batch.
func (b *RecordBatch) Len() int {
	return len(b.Records)
}

// TimeSpan returns the earliest and latest timestamps in the batch.
// Both are zero when the batch is empty.
func (b *RecordBatch) TimeSpan() (earliest, latest time.Time) {
	if len(b.Records) == 0 {
		return
	}
	earliest = b.Records[0].Time
	latest = b.Records[0].Time
	for _, r := range b.Records[1:] {
		if r.Time.Before(earliest) {
			earliest = r.Time
		}
		if r.Time.After(latest) {
			latest = r.Time
		}
	}
	return
}

// TimeSpan returns the earliest and latest timestamps in a record slice.
func TimeSpan(records []ReadingRecord) (earliest, latest time.Time) {
	b := RecordBatch{Records: records}
	return b.TimeSpan()
}
