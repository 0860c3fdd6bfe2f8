// Package orchestrator drives refresh passes over all plant units.
//
// A pass walks the units strictly sequentially in sorted order: evaluate
// freshness, check the memory floor, fetch from the historian under an
// abandon timeout, merge into the master file, and deduplicate either
// immediately or in an end-of-pass sweep. Every per-unit failure is
// captured in the pass result and never aborts the pass; cancellation is
// honored between units only, so a unit that started always finishes (or
// fails) cleanly.
package orchestrator

import (
	"context"
	"sort"
	"time"

	"github.com/xtxerr/plantwatch/internal/advisor"
	"github.com/xtxerr/plantwatch/internal/config"
	"github.com/xtxerr/plantwatch/internal/errors"
	"github.com/xtxerr/plantwatch/internal/fetch"
	"github.com/xtxerr/plantwatch/internal/logging"
	"github.com/xtxerr/plantwatch/internal/store/fileset"
	"github.com/xtxerr/plantwatch/internal/store/freshness"
	"github.com/xtxerr/plantwatch/internal/store/memory"
	"github.com/xtxerr/plantwatch/internal/store/merge"
	"github.com/xtxerr/plantwatch/internal/store/parquet"
	"github.com/xtxerr/plantwatch/internal/store/query"
	"github.com/xtxerr/plantwatch/internal/store/types"
)

var log = logging.Component("orchestrator")

// Config wires an Orchestrator together. Only Config and Fetcher are
// required; the rest exist for tests.
type Config struct {
	Config  *config.Config
	Fetcher fetch.Fetcher

	// MemorySampler overrides the system memory probe.
	MemorySampler memory.Sampler

	// Now overrides the clock.
	Now func() time.Time
}

// Orchestrator owns the store components and runs refresh passes.
type Orchestrator struct {
	cfg     *config.Config
	fetcher fetch.Fetcher

	// units is cfg.Units keyed by normalized unit name, so lookups work
	// however the config spells the unit.
	units map[string]config.UnitConfig

	fs      *fileset.FileSet
	handle  *query.Handle
	eval    *freshness.Evaluator
	engine  *merge.Engine
	monitor *memory.Monitor
	adv     *advisor.Advisor

	now func() time.Time
}

// New creates an orchestrator and its store components.
func New(c *Config) (*Orchestrator, error) {
	cfg := c.Config
	if cfg == nil {
		return nil, errors.NewValidation("config", "orchestrator requires a configuration")
	}
	if c.Fetcher == nil {
		return nil, errors.NewValidation("fetcher", "orchestrator requires a fetcher")
	}

	now := c.Now
	if now == nil {
		now = time.Now
	}

	fs, err := fileset.New(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	units := make(map[string]config.UnitConfig, len(cfg.Units))
	for name, uc := range cfg.Units {
		norm, err := fileset.NormalizeUnit(name)
		if err != nil {
			log.Warn("skipping invalid configured unit", "unit", name, "error", err)
			continue
		}
		units[norm] = uc
	}

	handle := query.New(cfg.Query.MemoryLimit)
	monitor := memory.New(cfg.Memory.FloorBytes, c.MemorySampler)

	eval := freshness.New(&freshness.Config{
		FileSet:  fs,
		Handle:   handle,
		MaxAge:   cfg.Freshness.MaxAge,
		Fraction: cfg.Freshness.FreshTagFraction,
		Now:      now,
	})

	engine := merge.New(merge.Config{
		Handle:             handle,
		Monitor:            monitor,
		BypassFileSize:     cfg.Merge.BypassFileSize,
		StreamingFileSize:  cfg.Merge.StreamingFileSize,
		RetentionWindow:    cfg.Merge.RetentionWindow,
		ShrinkWindow:       cfg.Merge.ShrinkWindow,
		ShrinkRowThreshold: cfg.Merge.ShrinkRowThreshold,
		ChunkSize:          cfg.Merge.ChunkSize,
		Parquet:            parquet.DefaultOptions(),
		Now:                now,
	})

	var adv *advisor.Advisor
	if cfg.Orchestrator.Advisor.Enabled {
		adv = advisor.New(advisor.Config{
			Quantile:   cfg.Orchestrator.Advisor.Quantile,
			Margin:     cfg.Orchestrator.Advisor.Margin,
			MinTimeout: cfg.Orchestrator.Advisor.MinTimeout,
			MaxTimeout: cfg.Orchestrator.Advisor.MaxTimeout,
			MinSamples: cfg.Orchestrator.Advisor.MinSamples,
			Accuracy:   cfg.Orchestrator.Advisor.Accuracy,
		})
	}

	return &Orchestrator{
		cfg:     cfg,
		fetcher: c.Fetcher,
		units:   units,
		fs:      fs,
		handle:  handle,
		eval:    eval,
		engine:  engine,
		monitor: monitor,
		adv:     adv,
		now:     now,
	}, nil
}

// Close releases the query engine session.
func (o *Orchestrator) Close() error {
	return o.handle.Close()
}

// FileSet exposes the underlying file set for status commands.
func (o *Orchestrator) FileSet() *fileset.FileSet {
	return o.fs
}

// MergeStats returns the merge engine statistics.
func (o *Orchestrator) MergeStats() merge.Stats {
	return o.engine.Stats()
}

// Units returns all known units: configured ones plus any discovered from
// files on disk, normalized and sorted.
func (o *Orchestrator) Units() ([]string, error) {
	seen := make(map[string]bool)
	var units []string

	for norm := range o.units {
		if !seen[norm] {
			seen[norm] = true
			units = append(units, norm)
		}
	}

	discovered, err := o.fs.Units()
	if err != nil {
		return nil, err
	}
	for _, u := range discovered {
		if !seen[u] {
			seen[u] = true
			units = append(units, u)
		}
	}

	sort.Strings(units)
	return units, nil
}

// Scan classifies all known units as fresh, stale, or missing without
// fetching anything. With force, every existing unit is reported stale.
func (o *Orchestrator) Scan(ctx context.Context, force bool) (*types.ScanSummary, error) {
	units, err := o.Units()
	if err != nil {
		return nil, err
	}

	summary := &types.ScanSummary{Scanned: o.now()}
	for _, unit := range units {
		entry := types.ScanEntry{Unit: unit}

		info, err := o.eval.Evaluate(ctx, unit)
		if err != nil {
			entry.Err = err.Error()
		} else {
			if force {
				info.Stale = true
			}
			entry.Info = info
		}

		summary.Record(entry)
	}

	log.Info("scan complete",
		"total", summary.Total, "fresh", summary.Fresh,
		"stale", summary.Stale, "missing", summary.Missing,
		"errors", summary.Errors)
	return summary, nil
}

// RefreshPass refreshes every stale unit once, strictly sequentially.
// Per-unit failures are recorded in the result; the only pass-level error
// is having no units at all. Cancellation stops the pass between units.
func (o *Orchestrator) RefreshPass(ctx context.Context, force bool) (*types.PassResult, error) {
	units, err := o.Units()
	if err != nil {
		return nil, err
	}
	if len(units) == 0 {
		return nil, errors.ErrNoUnits
	}

	if n, err := o.fs.ArchiveUnrecognized(); err != nil {
		log.Warn("archive sweep failed", "error", err)
	} else if n > 0 {
		log.Info("archived unrecognized files", "count", n)
	}

	pass := types.NewPassResult()
	ctx = logging.ContextWithPassID(ctx, pass.ID.String())
	passLog := logging.WithContext(ctx, log)
	passLog.Info("refresh pass started", "units", len(units), "force", force)

	var touched []string
	for _, unit := range units {
		select {
		case <-ctx.Done():
			pass.Interrupted = true
			passLog.Warn("pass interrupted", "remaining", len(units)-len(pass.Units))
		default:
		}
		if pass.Interrupted {
			break
		}

		res := o.refreshUnit(ctx, unit, force)
		pass.Record(*res)

		if res.Success && res.Skipped == types.SkipNone {
			touched = append(touched, unit)
		}
	}

	if o.cfg.DedupDeferred() && len(touched) > 0 {
		pass.DedupSwept = o.sweepDedup(ctx, touched)
	}

	pass.Finished = o.now()
	passLog.Info("refresh pass finished",
		"succeeded", pass.Succeeded, "failed", pass.Failed,
		"skipped", pass.Skipped, "swept", pass.DedupSwept,
		"elapsed", pass.Finished.Sub(pass.Started))
	return pass, nil
}

// RunUntilFresh runs passes until a scan shows no stale units, the pass
// budget is exhausted, or the context is cancelled. Force applies to the
// first pass only.
func (o *Orchestrator) RunUntilFresh(ctx context.Context, force bool) ([]*types.PassResult, error) {
	var results []*types.PassResult

	for i := 0; i < o.cfg.Orchestrator.MaxPasses; i++ {
		pass, err := o.RefreshPass(ctx, force && i == 0)
		if err != nil {
			return results, err
		}
		results = append(results, pass)

		if pass.Interrupted {
			return results, ctx.Err()
		}

		summary, err := o.Scan(ctx, false)
		if err != nil {
			return results, err
		}
		if len(summary.StaleUnits()) == 0 {
			return results, nil
		}

		if i < o.cfg.Orchestrator.MaxPasses-1 {
			log.Info("stale units remain, waiting before next pass",
				"stale", len(summary.StaleUnits()),
				"cooldown", o.cfg.Orchestrator.PassCooldown)
			select {
			case <-ctx.Done():
				return results, ctx.Err()
			case <-time.After(o.cfg.Orchestrator.PassCooldown):
			}
		}
	}

	return results, nil
}
