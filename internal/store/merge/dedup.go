package merge

import (
	"sort"

	"github.com/xtxerr/plantwatch/internal/store/types"
)

// Dedup removes duplicate records by (plant, unit, tag, time) key.
// When keys collide, the record appearing later in the slice wins, so
// callers control precedence through concatenation order.
func Dedup(records []types.ReadingRecord) []types.ReadingRecord {
	if len(records) == 0 {
		return nil
	}

	last := make(map[types.DedupKey]int, len(records))
	for i := range records {
		last[types.KeyOf(&records[i])] = i
	}

	out := make([]types.ReadingRecord, 0, len(last))
	for i := range records {
		if last[types.KeyOf(&records[i])] == i {
			out = append(out, records[i])
		}
	}
	return out
}

// SortByTime orders records by (time, plant, unit, tag) ascending,
// matching the on-disk ordering the query engine produces.
func SortByTime(records []types.ReadingRecord) {
	sort.Slice(records, func(i, j int) bool {
		a, b := &records[i], &records[j]
		if !a.Time.Equal(b.Time) {
			return a.Time.Before(b.Time)
		}
		if a.Plant != b.Plant {
			return a.Plant < b.Plant
		}
		if a.Unit != b.Unit {
			return a.Unit < b.Unit
		}
		return a.Tag < b.Tag
	})
}

// DedupSorted is Dedup followed by SortByTime.
func DedupSorted(records []types.ReadingRecord) []types.ReadingRecord {
	out := Dedup(records)
	SortByTime(out)
	return out
}
