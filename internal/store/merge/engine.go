// Package merge combines a unit's existing history with a freshly fetched
// batch under a memory budget.
//
// The engine picks a strategy from file size and memory state:
//
//	bypass       existing file too large to merge at all; keep only the
//	             fresh batch (lossy, degraded)
//	streaming    external-memory union inside the query engine
//	standard     in-memory concat, dedup, sort
//	incremental  chunked scan keeping rows outside the fresh batch's span
//	fresh-only   last resort; keep only the fresh batch (degraded)
//
// A failed strategy falls through to the next one rather than failing the
// merge; the merge only errors when even the fresh batch cannot be written.
package merge

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/xtxerr/plantwatch/internal/errors"
	"github.com/xtxerr/plantwatch/internal/logging"
	"github.com/xtxerr/plantwatch/internal/store/memory"
	"github.com/xtxerr/plantwatch/internal/store/parquet"
	"github.com/xtxerr/plantwatch/internal/store/query"
	"github.com/xtxerr/plantwatch/internal/store/types"
)

var log = logging.Component("merge")

// Strategy names a merge strategy.
type Strategy string

const (
	StrategyBypass      Strategy = "bypass"
	StrategyStreaming   Strategy = "streaming"
	StrategyStandard    Strategy = "standard"
	StrategyIncremental Strategy = "incremental"
	StrategyFreshOnly   Strategy = "fresh-only"
)

// Config configures the merge engine.
type Config struct {
	Handle  *query.Handle
	Monitor *memory.Monitor

	// BypassFileSize triggers the lossy emergency bypass.
	BypassFileSize int64

	// StreamingFileSize triggers the external-memory streaming merge.
	StreamingFileSize int64

	// RetentionWindow bounds kept history from the existing file.
	RetentionWindow time.Duration

	// ShrinkWindow replaces RetentionWindow when the existing file holds
	// more than ShrinkRowThreshold rows.
	ShrinkWindow       time.Duration
	ShrinkRowThreshold int64

	// ChunkSize is rows-per-chunk for the incremental fallback.
	ChunkSize int

	// Parquet configures output files.
	Parquet parquet.Options

	// Now overrides the clock for tests.
	Now func() time.Time
}

// Outcome describes a completed merge.
type Outcome struct {
	// Strategy is the strategy that produced the output.
	Strategy Strategy

	// Degraded is true when existing history was discarded.
	Degraded bool

	// RowsWritten is the row count of the output file.
	RowsWritten int64

	// Fallbacks counts strategies that failed before one succeeded.
	Fallbacks int
}

// Stats holds merge engine statistics.
type Stats struct {
	Merges    int64
	Degraded  int64
	Fallbacks int64

	Standard    int64
	Streaming   int64
	Incremental int64
	Bypass      int64
	FreshOnly   int64
}

// Engine merges fresh batches into existing unit files.
type Engine struct {
	cfg Config
	now func() time.Time

	mu    sync.Mutex
	stats Stats
}

// New creates a merge engine.
func New(cfg Config) *Engine {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 100000
	}
	return &Engine{cfg: cfg, now: now}
}

// Stats returns a copy of the engine statistics.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Merge combines the existing file at basePath (may be empty for a unit
// with no history) with the fresh batch and writes the result to outPath.
// The output is always sorted by time and deduplicated with the fresh
// batch winning key collisions.
func (e *Engine) Merge(ctx context.Context, basePath string, fresh []types.ReadingRecord, outPath string) (Outcome, error) {
	var baseSize int64
	if basePath != "" {
		stat, err := os.Stat(basePath)
		if err != nil {
			log.Warn("stat existing file failed, treating as absent", "path", basePath, "error", err)
			basePath = ""
		} else {
			baseSize = stat.Size()
		}
	}

	outcome, err := e.merge(ctx, basePath, baseSize, fresh, outPath)

	e.mu.Lock()
	if err == nil {
		e.stats.Merges++
		if outcome.Degraded {
			e.stats.Degraded++
		}
		e.stats.Fallbacks += int64(outcome.Fallbacks)
		switch outcome.Strategy {
		case StrategyStandard:
			e.stats.Standard++
		case StrategyStreaming:
			e.stats.Streaming++
		case StrategyIncremental:
			e.stats.Incremental++
		case StrategyBypass:
			e.stats.Bypass++
		case StrategyFreshOnly:
			e.stats.FreshOnly++
		}
	}
	e.mu.Unlock()

	return outcome, err
}

func (e *Engine) merge(ctx context.Context, basePath string, baseSize int64, fresh []types.ReadingRecord, outPath string) (Outcome, error) {
	// No history: the fresh batch is the whole file. Not degraded, since
	// nothing was discarded.
	if basePath == "" {
		n, err := e.writeFreshOnly(fresh, outPath)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Strategy: StrategyStandard, RowsWritten: n}, nil
	}

	// Emergency bypass: the existing file is too large to merge at all.
	if baseSize > e.cfg.BypassFileSize {
		log.Warn("existing file exceeds bypass ceiling, keeping fresh batch only",
			"path", basePath, "size", baseSize, "ceiling", e.cfg.BypassFileSize)
		n, err := e.writeFreshOnly(fresh, outPath)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Strategy: StrategyBypass, Degraded: true, RowsWritten: n}, nil
	}

	// Build the fallback ladder from the preferred strategy down.
	var ladder []Strategy
	if baseSize > e.cfg.StreamingFileSize || e.underPressure() {
		ladder = []Strategy{StrategyStreaming, StrategyStandard, StrategyIncremental}
	} else {
		ladder = []Strategy{StrategyStandard, StrategyIncremental}
	}

	fallbacks := 0
	for _, strategy := range ladder {
		var n int64
		var err error

		switch strategy {
		case StrategyStreaming:
			n, err = e.streaming(ctx, basePath, fresh, outPath)
		case StrategyStandard:
			n, err = e.standard(basePath, fresh, outPath)
		case StrategyIncremental:
			n, err = e.incremental(basePath, fresh, outPath)
		}

		if err == nil {
			return Outcome{Strategy: strategy, RowsWritten: n, Fallbacks: fallbacks}, nil
		}

		log.Warn("merge strategy failed, falling back",
			"strategy", string(strategy), "path", basePath, "error", err)
		fallbacks++
	}

	// Last resort: keep only the fresh batch.
	n, err := e.writeFreshOnly(fresh, outPath)
	if err != nil {
		return Outcome{}, fmt.Errorf("all strategies failed: %v: %w", err, errors.ErrMergeFailed)
	}
	log.Error("merge degraded to fresh batch only", "path", basePath)
	return Outcome{Strategy: StrategyFreshOnly, Degraded: true, RowsWritten: n, Fallbacks: fallbacks}, nil
}

func (e *Engine) underPressure() bool {
	return e.cfg.Monitor != nil && e.cfg.Monitor.UnderPressure()
}

// retentionCutoffMs returns the epoch-ms cutoff below which existing rows
// are dropped, shrinking the window for oversized files.
func (e *Engine) retentionCutoffMs(baseRows int64) int64 {
	window := e.cfg.RetentionWindow
	if e.cfg.ShrinkRowThreshold > 0 && baseRows > e.cfg.ShrinkRowThreshold {
		window = e.cfg.ShrinkWindow
		log.Info("large file, shrinking retention window",
			"rows", baseRows, "window", window)
	}
	if window <= 0 {
		return 0
	}
	return e.now().UTC().Add(-window).UnixMilli()
}
