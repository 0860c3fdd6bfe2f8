package query

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/xtxerr/plantwatch/internal/errors"
	"github.com/xtxerr/plantwatch/internal/store/parquet"
	"github.com/xtxerr/plantwatch/internal/store/types"
)

var testTime = time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

func rec(tag string, offset time.Duration, value float64) types.ReadingRecord {
	return types.ReadingRecord{
		Plant: "NORTH",
		Unit:  "U1",
		Tag:   tag,
		Time:  testTime.Add(offset),
		Value: value,
	}
}

func writeReadings(t *testing.T, path string, records []types.ReadingRecord) {
	t.Helper()
	if _, err := parquet.WriteFile(path, records, parquet.DefaultOptions()); err != nil {
		t.Fatalf("WriteFile(%s): %v", path, err)
	}
}

func TestUnitAggregates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "u1.parquet")
	writeReadings(t, path, []types.ReadingRecord{
		rec("temp", 0, 1),
		rec("temp", time.Minute, 2),
		rec("pressure", 30*time.Second, 3),
	})

	h := New("512MB")
	defer h.Close()

	agg, err := h.UnitAggregates(context.Background(), path)
	if err != nil {
		t.Fatalf("UnitAggregates: %v", err)
	}
	if agg.Rows != 3 {
		t.Errorf("rows = %d, want 3", agg.Rows)
	}
	if agg.Tags != 2 {
		t.Errorf("tags = %d, want 2", agg.Tags)
	}
	if agg.MinTimeMs != testTime.UnixMilli() {
		t.Errorf("min = %d, want %d", agg.MinTimeMs, testTime.UnixMilli())
	}
	if want := testTime.Add(time.Minute).UnixMilli(); agg.MaxTimeMs != want {
		t.Errorf("max = %d, want %d", agg.MaxTimeMs, want)
	}

	if stats := h.Stats(); stats.QueriesExecuted != 1 {
		t.Errorf("queries executed = %d, want 1", stats.QueriesExecuted)
	}
}

func TestTagLatest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "u1.parquet")
	writeReadings(t, path, []types.ReadingRecord{
		rec("temp", 0, 1),
		rec("temp", time.Hour, 2),
		rec("pressure", 30*time.Minute, 3),
	})

	h := New("")
	defer h.Close()

	latest, err := h.TagLatest(context.Background(), path)
	if err != nil {
		t.Fatalf("TagLatest: %v", err)
	}
	if len(latest) != 2 {
		t.Fatalf("got %d tags, want 2", len(latest))
	}
	if want := testTime.Add(time.Hour).UnixMilli(); latest["temp"] != want {
		t.Errorf("temp latest = %d, want %d", latest["temp"], want)
	}
	if want := testTime.Add(30 * time.Minute).UnixMilli(); latest["pressure"] != want {
		t.Errorf("pressure latest = %d, want %d", latest["pressure"], want)
	}
}

func TestDedupFileLastRowWins(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.parquet")
	out := filepath.Join(dir, "out.parquet")

	// Two rows share a key; the physically later row must win.
	writeReadings(t, in, []types.ReadingRecord{
		rec("temp", 0, 1.0),
		rec("pressure", 0, 5.0),
		rec("temp", 0, 2.0),
	})

	h := New("")
	defer h.Close()

	if err := h.DedupFile(context.Background(), in, out); err != nil {
		t.Fatalf("DedupFile: %v", err)
	}

	records, err := parquet.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records after dedup, want 2", len(records))
	}
	for _, r := range records {
		if r.Tag == "temp" && r.Value != 2.0 {
			t.Errorf("dedup kept value %v for temp, want 2.0", r.Value)
		}
	}
}

func TestUnionDedupOrdered(t *testing.T) {
	dir := t.TempDir()
	basePath := filepath.Join(dir, "base.parquet")
	freshPath := filepath.Join(dir, "fresh.parquet")
	out := filepath.Join(dir, "out.parquet")

	writeReadings(t, basePath, []types.ReadingRecord{
		rec("temp", -48*time.Hour, 0.5), // below cutoff, dropped
		rec("temp", 0, 1.0),
		rec("temp", time.Minute, 2.0),
	})
	writeReadings(t, freshPath, []types.ReadingRecord{
		rec("temp", time.Minute, 20.0), // collides with base, wins
		rec("temp", 2*time.Minute, 3.0),
	})

	h := New("")
	defer h.Close()

	cutoffMs := testTime.Add(-24 * time.Hour).UnixMilli()
	if err := h.UnionDedupOrdered(context.Background(), basePath, freshPath, out, cutoffMs); err != nil {
		t.Fatalf("UnionDedupOrdered: %v", err)
	}

	records, err := parquet.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	for i := 1; i < len(records); i++ {
		if records[i].Time.Before(records[i-1].Time) {
			t.Fatalf("output not ordered at index %d", i)
		}
	}
	for _, r := range records {
		if r.Time.Equal(testTime.Add(time.Minute)) && r.Value != 20.0 {
			t.Errorf("fresh row lost collision: value %v", r.Value)
		}
		if r.Time.Equal(testTime.Add(-48 * time.Hour)) {
			t.Error("row below cutoff survived")
		}
	}
}

func TestUnionDedupOrderedDuplicatesWithinFile(t *testing.T) {
	dir := t.TempDir()
	basePath := filepath.Join(dir, "base.parquet")
	freshPath := filepath.Join(dir, "fresh.parquet")
	out := filepath.Join(dir, "out.parquet")

	// Duplicate keys inside a single input: the physically later row must
	// win, same as DedupFile's ingestion-order rule.
	writeReadings(t, basePath, []types.ReadingRecord{
		rec("temp", 0, 1.0),
		rec("temp", 0, 2.0),
		rec("flow", time.Minute, 3.0),
	})
	writeReadings(t, freshPath, []types.ReadingRecord{
		rec("flow", time.Minute, 30.0), // beats base across files
		rec("flow", time.Minute, 40.0), // beats its own earlier row
	})

	h := New("")
	defer h.Close()

	if err := h.UnionDedupOrdered(context.Background(), basePath, freshPath, out, 0); err != nil {
		t.Fatalf("UnionDedupOrdered: %v", err)
	}

	records, err := parquet.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	for _, r := range records {
		switch r.Tag {
		case "temp":
			if r.Value != 2.0 {
				t.Errorf("temp kept value %v, want 2.0 (later base row)", r.Value)
			}
		case "flow":
			if r.Value != 40.0 {
				t.Errorf("flow kept value %v, want 40.0 (later fresh row)", r.Value)
			}
		}
	}
}

func TestInvalidateReopens(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "u1.parquet")
	writeReadings(t, path, []types.ReadingRecord{rec("temp", 0, 1)})

	h := New("")
	defer h.Close()

	if _, err := h.CountRows(context.Background(), path); err != nil {
		t.Fatalf("CountRows: %v", err)
	}

	h.Invalidate()

	n, err := h.CountRows(context.Background(), path)
	if err != nil {
		t.Fatalf("CountRows after Invalidate: %v", err)
	}
	if n != 1 {
		t.Errorf("rows = %d, want 1", n)
	}
	if stats := h.Stats(); stats.Invalidations != 1 {
		t.Errorf("invalidations = %d, want 1", stats.Invalidations)
	}
}

func TestClosedHandle(t *testing.T) {
	h := New("")
	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	_, err := h.CountRows(context.Background(), "whatever.parquet")
	if !errors.Is(err, errors.ErrHandleClosed) {
		t.Errorf("expected handle-closed error, got %v", err)
	}
}

func TestQueryMissingFile(t *testing.T) {
	h := New("")
	defer h.Close()

	_, err := h.CountRows(context.Background(), filepath.Join(t.TempDir(), "nope.parquet"))
	if err == nil {
		t.Error("expected error for missing file")
	}
}
