package merge

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/xtxerr/plantwatch/internal/store/parquet"
	"github.com/xtxerr/plantwatch/internal/store/types"
)

// writeFreshOnly writes the deduplicated fresh batch to outPath.
func (e *Engine) writeFreshOnly(fresh []types.ReadingRecord, outPath string) (int64, error) {
	return parquet.WriteFile(outPath, DedupSorted(fresh), e.cfg.Parquet)
}

// standard loads the retained part of the existing file, concatenates the
// fresh batch after it, and dedups in memory. Fresh rows win collisions
// because they come later in the concatenation.
func (e *Engine) standard(basePath string, fresh []types.ReadingRecord, outPath string) (int64, error) {
	cutoffMs := e.retentionCutoffMs(0)

	var cutoff time.Time
	if cutoffMs > 0 {
		cutoff = time.UnixMilli(cutoffMs).UTC()
	}

	base, err := parquet.ReadRange(basePath, cutoff, time.Time{}, e.cfg.ChunkSize)
	if err != nil {
		return 0, fmt.Errorf("read existing: %w", err)
	}

	combined := make([]types.ReadingRecord, 0, len(base)+len(fresh))
	combined = append(combined, base...)
	combined = append(combined, fresh...)

	return parquet.WriteFile(outPath, DedupSorted(combined), e.cfg.Parquet)
}

// streaming merges inside the query engine. The fresh batch is spilled to
// a temporary parquet file and the union, dedup, and ordering all happen
// externally, bounded by the engine's memory limit.
func (e *Engine) streaming(ctx context.Context, basePath string, fresh []types.ReadingRecord, outPath string) (int64, error) {
	if e.cfg.Handle == nil {
		return 0, fmt.Errorf("no query handle")
	}

	baseRows, err := e.cfg.Handle.CountRows(ctx, basePath)
	if err != nil {
		return 0, fmt.Errorf("count existing: %w", err)
	}
	cutoffMs := e.retentionCutoffMs(baseRows)

	spill := outPath + ".fresh"
	if _, err := parquet.WriteFile(spill, DedupSorted(fresh), e.cfg.Parquet); err != nil {
		return 0, fmt.Errorf("spill fresh batch: %w", err)
	}
	defer os.Remove(spill)

	if err := e.cfg.Handle.UnionDedupOrdered(ctx, basePath, spill, outPath, cutoffMs); err != nil {
		return 0, err
	}

	return e.cfg.Handle.CountRows(ctx, outPath)
}

// incremental is the chunked fallback for when the in-memory concat is too
// large. It scans the existing file chunk by chunk, keeping only retained
// rows that fall outside the fresh batch's time span, then appends the
// fresh batch. Rows inside the span are superseded wholesale, which is
// what makes the memory bound possible.
func (e *Engine) incremental(basePath string, fresh []types.ReadingRecord, outPath string) (int64, error) {
	spanLo, spanHi := types.TimeSpan(fresh)
	cutoffMs := e.retentionCutoffMs(0)

	r, err := parquet.NewReadingReader(basePath)
	if err != nil {
		return 0, fmt.Errorf("open existing: %w", err)
	}
	defer r.Close()

	var kept []types.ReadingRecord
	for {
		records, err := r.Read(e.cfg.ChunkSize)
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("read chunk: %w", err)
		}

		for i := range records {
			rec := &records[i]
			if cutoffMs > 0 && rec.Time.UnixMilli() < cutoffMs {
				continue
			}
			if len(fresh) > 0 && !rec.Time.Before(spanLo) && !rec.Time.After(spanHi) {
				continue
			}
			kept = append(kept, *rec)
		}
	}

	combined := append(kept, fresh...)
	return parquet.WriteFile(outPath, DedupSorted(combined), e.cfg.Parquet)
}
