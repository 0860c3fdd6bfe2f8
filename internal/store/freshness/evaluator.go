// Package freshness decides whether a unit's stored data is stale.
//
// A unit is judged by its tags: each tag whose latest timestamp is newer
// than the freshness cutoff counts as fresh, and the unit is stale when
// fewer than the configured fraction of its tags are fresh. A fraction
// exactly at the threshold counts as fresh. All comparisons happen in UTC
// epoch time, so the stored timezone never matters.
package freshness

import (
	"context"
	"io"
	"time"

	"github.com/xtxerr/plantwatch/internal/errors"
	"github.com/xtxerr/plantwatch/internal/logging"
	"github.com/xtxerr/plantwatch/internal/store/fileset"
	"github.com/xtxerr/plantwatch/internal/store/parquet"
	"github.com/xtxerr/plantwatch/internal/store/query"
	"github.com/xtxerr/plantwatch/internal/store/types"
)

var log = logging.Component("freshness")

// Strategy names for FreshnessInfo.Strategy.
const (
	StrategyPushdown    = "pushdown"
	StrategyMaterialize = "materialize"
)

// Config configures an Evaluator.
type Config struct {
	FileSet *fileset.FileSet
	Handle  *query.Handle

	// MaxAge is the freshness window.
	MaxAge time.Duration

	// Fraction is the fresh-tag fraction threshold (0.0-1.0).
	Fraction float64

	// Now overrides the clock for tests.
	Now func() time.Time
}

// Evaluator evaluates unit freshness against the stored files.
type Evaluator struct {
	fs       *fileset.FileSet
	handle   *query.Handle
	maxAge   time.Duration
	fraction float64
	now      func() time.Time
}

// New creates an evaluator.
func New(cfg *Config) *Evaluator {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Evaluator{
		fs:       cfg.FileSet,
		handle:   cfg.Handle,
		maxAge:   cfg.MaxAge,
		fraction: cfg.Fraction,
		now:      now,
	}
}

// Evaluate returns the freshness state of a unit. A unit with no stored
// file is reported as missing and stale, not as an error.
func (e *Evaluator) Evaluate(ctx context.Context, unit string) (types.FreshnessInfo, error) {
	info := types.FreshnessInfo{
		Unit:  unit,
		Stale: true,
		Level: types.LevelSeverelyStale,
	}

	file, err := e.fs.Resolve(unit)
	if err != nil {
		if errors.IsNotFound(err) {
			return info, nil
		}
		return info, err
	}

	info.Exists = true
	info.Path = file.Path

	// Try the query engine first; fall back to reading the file directly.
	// Both paths must produce identical verdicts.
	agg, tagLatest, err := e.pushdown(ctx, file.Path)
	if err != nil {
		log.Warn("pushdown evaluation failed, materializing", "unit", unit, "error", err)
		agg, tagLatest, err = e.materialize(file.Path)
		if err != nil {
			return info, errors.Wrapf(err, "evaluate unit '%s'", unit)
		}
		info.Strategy = StrategyMaterialize
	} else {
		info.Strategy = StrategyPushdown
	}

	e.finish(&info, agg, tagLatest)
	return info, nil
}

// pushdown computes aggregates inside the query engine.
func (e *Evaluator) pushdown(ctx context.Context, path string) (query.Aggregates, map[string]int64, error) {
	agg, err := e.handle.UnitAggregates(ctx, path)
	if err != nil {
		return query.Aggregates{}, nil, err
	}

	tagLatest, err := e.handle.TagLatest(ctx, path)
	if err != nil {
		return query.Aggregates{}, nil, err
	}

	return agg, tagLatest, nil
}

// materialize computes the same aggregates by scanning the file in chunks.
func (e *Evaluator) materialize(path string) (query.Aggregates, map[string]int64, error) {
	r, err := parquet.NewReadingReader(path)
	if err != nil {
		return query.Aggregates{}, nil, err
	}
	defer r.Close()

	var agg query.Aggregates
	tagLatest := make(map[string]int64)

	for {
		records, err := r.Read(100000)
		if err == io.EOF {
			break
		}
		if err != nil {
			return query.Aggregates{}, nil, err
		}

		for i := range records {
			ms := records[i].Time.UnixMilli()
			if agg.Rows == 0 {
				agg.MinTimeMs, agg.MaxTimeMs = ms, ms
			} else {
				if ms < agg.MinTimeMs {
					agg.MinTimeMs = ms
				}
				if ms > agg.MaxTimeMs {
					agg.MaxTimeMs = ms
				}
			}
			agg.Rows++

			if prev, ok := tagLatest[records[i].Tag]; !ok || ms > prev {
				tagLatest[records[i].Tag] = ms
			}
		}
	}

	agg.Tags = int64(len(tagLatest))
	return agg, tagLatest, nil
}

// finish fills in the verdict from the aggregates.
func (e *Evaluator) finish(info *types.FreshnessInfo, agg query.Aggregates, tagLatest map[string]int64) {
	now := e.now().UTC()
	cutoffMs := now.Add(-e.maxAge).UnixMilli()

	info.TotalRecords = agg.Rows
	info.TotalTags = len(tagLatest)

	if agg.Rows > 0 {
		info.EarliestTime = time.UnixMilli(agg.MinTimeMs).UTC()
		info.LatestTime = time.UnixMilli(agg.MaxTimeMs).UTC()
		info.DataAge = now.Sub(info.LatestTime)
	}

	if agg.Rows == 0 || info.TotalTags == 0 {
		info.Stale = true
		info.Level = types.LevelSeverelyStale
		return
	}

	for _, ms := range tagLatest {
		if ms > cutoffMs {
			info.FreshTags++
		}
	}

	info.Stale = info.FreshFraction() < e.fraction
	info.Level = types.ClassifyAge(info.DataAge, e.maxAge)
}

// Invalidate drops any engine state held on a unit's files. Call after
// replacing them.
func (e *Evaluator) Invalidate() {
	e.handle.Invalidate()
}
