package orchestrator

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xtxerr/plantwatch/internal/errors"
	"github.com/xtxerr/plantwatch/internal/fetch"
	"github.com/xtxerr/plantwatch/internal/logging"
	"github.com/xtxerr/plantwatch/internal/store/fileset"
	"github.com/xtxerr/plantwatch/internal/store/merge"
	"github.com/xtxerr/plantwatch/internal/store/parquet"
	"github.com/xtxerr/plantwatch/internal/store/types"
)

// refreshUnit runs the full refresh state machine for one unit:
// evaluate, memory check, fetch (with abandon timeout), merge, write,
// dedup, invalidate, verify. Every exit path finalizes the result.
func (o *Orchestrator) refreshUnit(ctx context.Context, unit string, force bool) *types.RefreshResult {
	res := types.NewRefreshResult(unit)
	ctx = logging.ContextWithUnit(ctx, unit)
	unitLog := logging.WithContext(ctx, log)
	defer func() {
		res.Elapsed = time.Since(res.Started)
	}()

	// 1. Freshness check.
	info, err := o.eval.Evaluate(ctx, unit)
	if err != nil {
		res.Err = err.Error()
		unitLog.Error("freshness evaluation failed", "error", err)
		return res
	}
	res.RecordsBefore = info.TotalRecords

	if !force && info.Exists && !info.Stale {
		res.Skipped = types.SkipFresh
		res.Success = true
		res.RecordsAfter = info.TotalRecords
		return res
	}

	// 2. Memory floor. Skipping leaves the unit's files untouched; a
	// later pass retries once memory recovers.
	if o.monitor.UnderPressure() {
		res.Skipped = types.SkipLowMemory
		res.Success = true
		res.RecordsAfter = info.TotalRecords
		unitLog.Warn("skipping refresh, memory below floor",
			"floor", o.monitor.Floor())
		return res
	}

	// 3. Unit must be configured to know its plant and tags.
	unitCfg, ok := o.units[unit]
	if !ok {
		res.Err = errors.NewNotFound("unit configuration", unit).Error()
		unitLog.Error("unit discovered on disk but not configured")
		return res
	}

	// 4. Fetch under the abandon timeout.
	window := o.fetchWindow(info)
	timeout := o.cfg.Fetch.Timeout
	if o.adv != nil {
		timeout = o.adv.Suggest(unit, timeout)
	}

	records, fetchTime, err := o.fetchWithTimeout(ctx, fetch.Request{
		Plant:  unitCfg.Plant,
		Unit:   unit,
		Tags:   unitCfg.Tags,
		Window: window,
	}, timeout)
	res.FetchTime = fetchTime
	if err != nil {
		res.Err = err.Error()
		unitLog.Error("fetch failed", "error", err, "timeout", timeout)
		return res
	}
	if o.adv != nil {
		o.adv.Record(unit, fetchTime)
	}

	res.FetchedRecords = len(records)
	if len(records) == 0 {
		res.Skipped = types.SkipNoData
		res.Success = true
		res.RecordsAfter = info.TotalRecords
		unitLog.Info("fetch returned no records, nothing to merge")
		return res
	}

	// 5. Merge into the master file atomically. The merge base is the
	// newest full-history file; an updated drop-off holds only a fresh
	// batch and is folded in ahead of the fetched records so the fetch
	// wins key collisions.
	basePath := ""
	if hist, err := o.fs.ResolveHistory(unit); err == nil {
		basePath = hist.Path
	} else if !errors.IsNotFound(err) {
		res.Err = err.Error()
		unitLog.Error("resolve history failed", "error", err)
		return res
	}

	if dropped, err := o.readUpdated(unit); err != nil {
		unitLog.Warn("reading updated drop-off failed, ignoring it", "error", err)
	} else if len(dropped) > 0 {
		records = append(dropped, records...)
	}

	var outcome merge.Outcome
	mergeStart := time.Now()
	err = o.fs.AtomicReplace(o.fs.MasterPath(unit), func(tmp string) error {
		var mergeErr error
		outcome, mergeErr = o.engine.Merge(ctx, basePath, records, tmp)
		return mergeErr
	})
	res.MergeTime = time.Since(mergeStart)
	if err != nil {
		res.Err = err.Error()
		unitLog.Error("merge failed", "error", err)
		return res
	}

	res.Strategy = string(outcome.Strategy)
	res.Degraded = outcome.Degraded
	res.RecordsAfter = outcome.RowsWritten
	if outcome.Degraded {
		unitLog.Warn("merge degraded", "strategy", res.Strategy,
			"records_before", res.RecordsBefore, "records_after", res.RecordsAfter)
	}

	// The updated drop-off file, if any, is now folded into the master.
	if err := o.fs.ConsumeUpdated(unit); err != nil {
		unitLog.Warn("consume updated file failed", "error", err)
	}

	// 6. Dedup now or leave it for the end-of-pass sweep.
	if !o.cfg.DedupDeferred() {
		writeStart := time.Now()
		if err := o.dedupUnit(ctx, unit); err != nil {
			unitLog.Warn("dedup failed", "error", err)
		}
		res.WriteTime = time.Since(writeStart)
	}

	// 7. Drop engine state on the replaced files, then verify.
	o.eval.Invalidate()

	verify, err := o.eval.Evaluate(ctx, unit)
	if err != nil {
		unitLog.Warn("post-refresh verification failed", "error", err)
	} else if verify.Stale {
		unitLog.Warn("unit still stale after refresh",
			"fresh_tags", verify.FreshTags, "total_tags", verify.TotalTags)
	}

	res.Success = true
	unitLog.Info("unit refreshed",
		"strategy", res.Strategy,
		"fetched", res.FetchedRecords,
		"records_before", res.RecordsBefore,
		"records_after", res.RecordsAfter,
		"fetch_time", res.FetchTime,
		"merge_time", res.MergeTime)
	return res
}

// fetchWindow chooses the time range to request: from the latest stored
// timestamp (or the retention window for a unit with no data) up to now,
// never exceeding the configured maximum window.
func (o *Orchestrator) fetchWindow(info types.FreshnessInfo) fetch.TimeRange {
	end := o.now().UTC()

	var start time.Time
	if info.Exists && !info.LatestTime.IsZero() {
		start = info.LatestTime
	} else {
		start = end.Add(-o.cfg.Merge.RetentionWindow)
	}

	if end.Sub(start) > o.cfg.Fetch.MaxWindow {
		start = end.Add(-o.cfg.Fetch.MaxWindow)
	}

	return fetch.TimeRange{Start: start, End: end}
}

type fetchOutcome struct {
	records []types.ReadingRecord
	err     error
}

// fetchWithTimeout runs the fetch on its own goroutine and abandons it at
// the timeout. Abandon, don't kill: the goroutine is left to finish its
// upstream call and its late result is discarded via the buffered channel,
// because tearing down a mid-flight historian session can wedge the client
// library. Pass cancellation also abandons the fetch.
func (o *Orchestrator) fetchWithTimeout(ctx context.Context, req fetch.Request, timeout time.Duration) ([]types.ReadingRecord, time.Duration, error) {
	ch := make(chan fetchOutcome, 1)
	start := time.Now()

	go func() {
		records, err := o.fetcher.Fetch(ctx, req)
		ch <- fetchOutcome{records: records, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-ch:
		elapsed := time.Since(start)
		if out.err != nil {
			return nil, elapsed, out.err
		}
		return out.records, elapsed, nil
	case <-timer.C:
		return nil, timeout, errors.NewFetchTimeout(req.Unit, timeout.Seconds())
	case <-ctx.Done():
		return nil, time.Since(start), ctx.Err()
	}
}

// readUpdated loads any updated drop-off files for a unit, oldest first.
func (o *Orchestrator) readUpdated(unit string) ([]types.ReadingRecord, error) {
	files, err := o.fs.List(unit)
	if err != nil {
		return nil, err
	}

	var records []types.ReadingRecord
	for _, f := range files {
		if f.Variant != fileset.VariantUpdated {
			continue
		}
		batch, err := parquet.ReadFile(f.Path)
		if err != nil {
			return nil, err
		}
		records = append(records, batch...)
	}
	return records, nil
}

// dedupUnit rewrites the unit's dedup file from its master atomically.
func (o *Orchestrator) dedupUnit(ctx context.Context, unit string) error {
	master := o.fs.MasterPath(unit)
	err := o.fs.AtomicReplace(o.fs.DedupPath(unit), func(tmp string) error {
		return o.handle.DedupFile(ctx, master, tmp)
	})
	if err != nil {
		return err
	}
	o.handle.Invalidate()
	return nil
}

// sweepDedup deduplicates the touched units with bounded parallelism.
// Individual failures are logged, not propagated; the sweep is repairable
// on the next pass.
func (o *Orchestrator) sweepDedup(ctx context.Context, units []string) int {
	var swept atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Orchestrator.SweepWorkers)

	for _, unit := range units {
		unit := unit
		g.Go(func() error {
			if err := o.dedupUnit(gctx, unit); err != nil {
				log.Warn("dedup sweep failed for unit", "unit", unit, "error", err)
				return nil
			}
			swept.Add(1)
			return nil
		})
	}

	g.Wait()
	log.Info("dedup sweep complete", "units", len(units), "swept", swept.Load())
	return int(swept.Load())
}
