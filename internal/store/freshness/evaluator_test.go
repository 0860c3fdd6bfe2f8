package freshness

import (
	"context"
	"testing"
	"time"

	"github.com/xtxerr/plantwatch/internal/store/fileset"
	"github.com/xtxerr/plantwatch/internal/store/parquet"
	"github.com/xtxerr/plantwatch/internal/store/query"
	"github.com/xtxerr/plantwatch/internal/store/types"
)

var now = time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

// writeUnit writes a master file where each tag's latest reading has the
// given age relative to the test clock.
func writeUnit(t *testing.T, fs *fileset.FileSet, unit string, tagAges map[string]time.Duration) {
	t.Helper()

	var records []types.ReadingRecord
	for tag, age := range tagAges {
		latest := now.Add(-age)
		// An older reading per tag too, so latest-per-tag matters.
		records = append(records,
			types.ReadingRecord{Plant: "NORTH", Unit: unit, Tag: tag, Time: latest.Add(-time.Hour), Value: 1},
			types.ReadingRecord{Plant: "NORTH", Unit: unit, Tag: tag, Time: latest, Value: 2},
		)
	}
	if _, err := parquet.WriteFile(fs.MasterPath(unit), records, parquet.DefaultOptions()); err != nil {
		t.Fatalf("write unit %s: %v", unit, err)
	}
}

// newMaterializing returns an evaluator whose query handle is closed, so
// every evaluation takes the direct file scan path.
func newMaterializing(t *testing.T, dir string, maxAge time.Duration, fraction float64) (*Evaluator, *fileset.FileSet) {
	t.Helper()

	fs, err := fileset.New(dir)
	if err != nil {
		t.Fatalf("fileset.New: %v", err)
	}
	handle := query.New("")
	handle.Close()
	t.Cleanup(func() { handle.Close() })

	eval := New(&Config{
		FileSet:  fs,
		Handle:   handle,
		MaxAge:   maxAge,
		Fraction: fraction,
		Now:      func() time.Time { return now },
	})
	return eval, fs
}

func TestEvaluateMissingUnit(t *testing.T) {
	eval, _ := newMaterializing(t, t.TempDir(), time.Hour, 0.5)

	info, err := eval.Evaluate(context.Background(), "U9")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if info.Exists {
		t.Error("missing unit reported as existing")
	}
	if !info.Stale {
		t.Error("missing unit must be stale")
	}
	if info.Level != types.LevelSeverelyStale {
		t.Errorf("missing unit level = %s, want %s", info.Level, types.LevelSeverelyStale)
	}
}

func TestEvaluateAllTagsFresh(t *testing.T) {
	dir := t.TempDir()
	eval, fs := newMaterializing(t, dir, time.Hour, 0.5)

	writeUnit(t, fs, "U1", map[string]time.Duration{
		"temp":     10 * time.Minute,
		"pressure": 20 * time.Minute,
	})

	info, err := eval.Evaluate(context.Background(), "U1")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !info.Exists {
		t.Fatal("unit should exist")
	}
	if info.Stale {
		t.Error("unit with all tags fresh reported stale")
	}
	if info.TotalTags != 2 || info.FreshTags != 2 {
		t.Errorf("tags = %d/%d, want 2/2", info.FreshTags, info.TotalTags)
	}
	if info.Strategy != StrategyMaterialize {
		t.Errorf("strategy = %q, want %q", info.Strategy, StrategyMaterialize)
	}
	if info.Level != types.LevelFresh {
		t.Errorf("level = %s, want %s", info.Level, types.LevelFresh)
	}
}

func TestEvaluateFractionBoundary(t *testing.T) {
	// Two of four tags fresh: exactly at a 0.5 threshold the unit counts
	// as fresh, while anything below the threshold is stale.
	tagAges := map[string]time.Duration{
		"a": 10 * time.Minute,
		"b": 30 * time.Minute,
		"c": 3 * time.Hour,
		"d": 5 * time.Hour,
	}

	tests := []struct {
		name      string
		fraction  float64
		wantStale bool
	}{
		{"exactly at threshold", 0.5, false},
		{"just above threshold", 0.51, true},
		{"below threshold", 0.25, false},
		{"requires all", 1.0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			eval, fs := newMaterializing(t, dir, time.Hour, tt.fraction)
			writeUnit(t, fs, "U1", tagAges)

			info, err := eval.Evaluate(context.Background(), "U1")
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if info.FreshTags != 2 || info.TotalTags != 4 {
				t.Fatalf("tags = %d/%d, want 2/4", info.FreshTags, info.TotalTags)
			}
			if info.Stale != tt.wantStale {
				t.Errorf("stale = %v, want %v (fraction %v)",
					info.Stale, tt.wantStale, tt.fraction)
			}
		})
	}
}

func TestEvaluateStalenessLevels(t *testing.T) {
	tests := []struct {
		name string
		age  time.Duration
		want types.StalenessLevel
	}{
		{"within max age", 30 * time.Minute, types.LevelFresh},
		{"mildly stale", 3 * time.Hour, types.LevelMildlyStale},
		{"stale", 12 * time.Hour, types.LevelStale},
		{"severely stale", 48 * time.Hour, types.LevelSeverelyStale},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			eval, fs := newMaterializing(t, dir, time.Hour, 0.5)
			writeUnit(t, fs, "U1", map[string]time.Duration{"temp": tt.age})

			info, err := eval.Evaluate(context.Background(), "U1")
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if info.Level != tt.want {
				t.Errorf("level = %s, want %s (age %v)", info.Level, tt.want, tt.age)
			}
		})
	}
}

func TestEvaluatePushdown(t *testing.T) {
	dir := t.TempDir()
	fs, err := fileset.New(dir)
	if err != nil {
		t.Fatalf("fileset.New: %v", err)
	}
	handle := query.New("")
	defer handle.Close()

	eval := New(&Config{
		FileSet:  fs,
		Handle:   handle,
		MaxAge:   time.Hour,
		Fraction: 0.5,
		Now:      func() time.Time { return now },
	})

	writeUnit(t, fs, "U1", map[string]time.Duration{
		"temp":     10 * time.Minute,
		"pressure": 3 * time.Hour,
	})

	info, err := eval.Evaluate(context.Background(), "U1")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if info.Strategy != StrategyPushdown {
		t.Fatalf("strategy = %q, want %q", info.Strategy, StrategyPushdown)
	}
	if info.TotalRecords != 4 {
		t.Errorf("total records = %d, want 4", info.TotalRecords)
	}
	if info.FreshTags != 1 || info.TotalTags != 2 {
		t.Errorf("tags = %d/%d, want 1/2", info.FreshTags, info.TotalTags)
	}
	// 1 of 2 fresh at fraction 0.5: exactly at threshold, so fresh.
	if info.Stale {
		t.Error("unit exactly at fraction threshold reported stale")
	}
}

func TestEvaluateMaxAgeMonotone(t *testing.T) {
	dir := t.TempDir()

	fs, err := fileset.New(dir)
	if err != nil {
		t.Fatalf("fileset.New: %v", err)
	}
	writeUnit(t, fs, "U1", map[string]time.Duration{
		"T1": 10 * time.Minute,
		"T2": 45 * time.Minute,
		"T3": 3 * time.Hour,
	})

	// Widening the window can only turn a stale unit fresh, never the
	// other way around.
	wasFresh := false
	for _, maxAge := range []time.Duration{
		5 * time.Minute,
		30 * time.Minute,
		time.Hour,
		4 * time.Hour,
	} {
		eval, _ := newMaterializing(t, dir, maxAge, 0.5)
		info, err := eval.Evaluate(context.Background(), "U1")
		if err != nil {
			t.Fatalf("Evaluate(maxAge=%v): %v", maxAge, err)
		}
		if wasFresh && info.Stale {
			t.Errorf("maxAge=%v: unit went fresh -> stale as the window widened", maxAge)
		}
		if !info.Stale {
			wasFresh = true
		}
	}
	if !wasFresh {
		t.Error("unit never became fresh even at the widest window")
	}
}

func TestEvaluateFreshnessMonotone(t *testing.T) {
	// Re-evaluating with a later clock never turns a stale unit fresh.
	dir := t.TempDir()
	fs, err := fileset.New(dir)
	if err != nil {
		t.Fatalf("fileset.New: %v", err)
	}
	handle := query.New("")
	handle.Close()

	clock := now
	eval := New(&Config{
		FileSet:  fs,
		Handle:   handle,
		MaxAge:   time.Hour,
		Fraction: 0.5,
		Now:      func() time.Time { return clock },
	})

	writeUnit(t, fs, "U1", map[string]time.Duration{
		"temp":     30 * time.Minute,
		"pressure": 45 * time.Minute,
	})

	wasStale := false
	for i := 0; i < 5; i++ {
		info, err := eval.Evaluate(context.Background(), "U1")
		if err != nil {
			t.Fatalf("Evaluate at step %d: %v", i, err)
		}
		if wasStale && !info.Stale {
			t.Fatalf("unit went stale then fresh again without new data at step %d", i)
		}
		wasStale = info.Stale
		clock = clock.Add(20 * time.Minute)
	}
	if !wasStale {
		t.Error("unit should have gone stale as the clock advanced")
	}
}
