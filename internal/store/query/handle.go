// Package query provides a handle over the embedded DuckDB engine.
//
// All SQL against the parquet files goes through a Handle. The handle owns
// its database session lazily: Invalidate closes the session, and the next
// query reopens it, so callers can force the engine to drop any state it
// holds on files that were just replaced.
package query

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/xtxerr/plantwatch/internal/errors"
	"github.com/xtxerr/plantwatch/internal/logging"
)

var log = logging.Component("query")

// Handle is a lazily opened DuckDB session over parquet files.
type Handle struct {
	mu          sync.Mutex
	db          *sql.DB
	memoryLimit string
	closed      bool

	stats Stats
}

// Stats holds query statistics.
type Stats struct {
	QueriesExecuted int64
	Invalidations   int64
	Errors          int64
}

// New creates a handle. The database session opens on first use.
// memoryLimit is a DuckDB size string like "2GB"; empty leaves the
// engine default.
func New(memoryLimit string) *Handle {
	return &Handle{memoryLimit: memoryLimit}
}

// ensureDB opens the session if needed. Caller must hold mu.
func (h *Handle) ensureDB() (*sql.DB, error) {
	if h.closed {
		return nil, errors.ErrHandleClosed
	}
	if h.db != nil {
		return h.db, nil
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	if h.memoryLimit != "" {
		if _, err := db.Exec(fmt.Sprintf("SET memory_limit='%s'", h.memoryLimit)); err != nil {
			db.Close()
			return nil, fmt.Errorf("set memory limit: %w", err)
		}
	}

	h.db = db
	return db, nil
}

// Invalidate closes the session. The next query reopens a fresh one.
// Call after replacing any file the engine may have read.
func (h *Handle) Invalidate() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.db != nil {
		h.db.Close()
		h.db = nil
		h.stats.Invalidations++
	}
}

// Close closes the handle permanently.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	if h.db != nil {
		err := h.db.Close()
		h.db = nil
		return err
	}
	return nil
}

// Stats returns a copy of the handle statistics.
func (h *Handle) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

// Aggregates summarizes one parquet file.
type Aggregates struct {
	Rows      int64
	MinTimeMs int64
	MaxTimeMs int64
	Tags      int64
}

// UnitAggregates returns row count, time bounds, and distinct tag count
// for a parquet file.
func (h *Handle) UnitAggregates(ctx context.Context, path string) (Aggregates, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	db, err := h.ensureDB()
	if err != nil {
		return Aggregates{}, err
	}

	query := `
		SELECT
			count(*),
			coalesce(min(time_ms), 0),
			coalesce(max(time_ms), 0),
			count(DISTINCT tag)
		FROM read_parquet($1)
	`

	var agg Aggregates
	err = db.QueryRowContext(ctx, query, path).Scan(
		&agg.Rows, &agg.MinTimeMs, &agg.MaxTimeMs, &agg.Tags,
	)
	if err != nil {
		h.stats.Errors++
		return Aggregates{}, errors.Wrap(err, "unit aggregates")
	}

	h.stats.QueriesExecuted++
	return agg, nil
}

// TagLatest returns the per-tag latest timestamp (epoch ms) in a parquet file.
func (h *Handle) TagLatest(ctx context.Context, path string) (map[string]int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	db, err := h.ensureDB()
	if err != nil {
		return nil, err
	}

	query := `
		SELECT tag, max(time_ms)
		FROM read_parquet($1)
		GROUP BY tag
	`

	rows, err := db.QueryContext(ctx, query, path)
	if err != nil {
		h.stats.Errors++
		return nil, errors.Wrap(err, "tag latest")
	}
	defer rows.Close()

	latest := make(map[string]int64)
	for rows.Next() {
		var tag string
		var ms int64
		if err := rows.Scan(&tag, &ms); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		latest[tag] = ms
	}

	h.stats.QueriesExecuted++
	return latest, rows.Err()
}

// CountRows returns the row count of a parquet file.
func (h *Handle) CountRows(ctx context.Context, path string) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	db, err := h.ensureDB()
	if err != nil {
		return 0, err
	}

	var n int64
	err = db.QueryRowContext(ctx, `SELECT count(*) FROM read_parquet($1)`, path).Scan(&n)
	if err != nil {
		h.stats.Errors++
		return 0, errors.Wrap(err, "count rows")
	}

	h.stats.QueriesExecuted++
	return n, nil
}

// quoteLiteral escapes a string for embedding in SQL. COPY targets cannot
// be bound as placeholders, so file paths are embedded as literals.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// UnionDedupOrdered merges two parquet files into outPath with
// deduplication and time ordering, entirely inside the query engine so
// memory stays bounded by its memory limit. Rows from freshPath win over
// rows from basePath on key collisions, and within one file the
// physically later row wins, so last-write-wins holds even for inputs
// that still carry duplicates. Base rows older than cutoffMs are dropped
// (pass 0 to keep everything).
func (h *Handle) UnionDedupOrdered(ctx context.Context, basePath, freshPath, outPath string, cutoffMs int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	db, err := h.ensureDB()
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		COPY (
			SELECT time_ms, value, plant, unit, tag
			FROM (
				SELECT time_ms, value, plant, unit, tag, 0 AS pri, file_row_number
				FROM read_parquet(%s, file_row_number=true)
				WHERE time_ms >= %d
				UNION ALL
				SELECT time_ms, value, plant, unit, tag, 1 AS pri, file_row_number
				FROM read_parquet(%s, file_row_number=true)
			)
			QUALIFY row_number() OVER (
				PARTITION BY time_ms, plant, unit, tag
				ORDER BY pri DESC, file_row_number DESC
			) = 1
			ORDER BY time_ms, plant, unit, tag
		) TO %s (FORMAT PARQUET, COMPRESSION ZSTD)
	`, quoteLiteral(basePath), cutoffMs, quoteLiteral(freshPath), quoteLiteral(outPath))

	if _, err := db.ExecContext(ctx, query); err != nil {
		h.stats.Errors++
		return errors.Wrap(err, "union dedup")
	}

	h.stats.QueriesExecuted++
	log.Debug("union dedup complete", "base", basePath, "fresh", freshPath, "out", outPath)
	return nil
}

// DedupFile rewrites a parquet file at outPath with duplicate keys removed.
// The physically last row for each (plant, unit, tag, time) key wins,
// preserving ingestion order semantics.
func (h *Handle) DedupFile(ctx context.Context, inPath, outPath string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	db, err := h.ensureDB()
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		COPY (
			SELECT time_ms, arg_max(value, file_row_number) AS value, plant, unit, tag
			FROM read_parquet(%s, file_row_number=true)
			GROUP BY time_ms, plant, unit, tag
			ORDER BY time_ms, plant, unit, tag
		) TO %s (FORMAT PARQUET, COMPRESSION ZSTD)
	`, quoteLiteral(inPath), quoteLiteral(outPath))

	if _, err := db.ExecContext(ctx, query); err != nil {
		h.stats.Errors++
		return errors.Wrap(err, "dedup file")
	}

	h.stats.QueriesExecuted++
	log.Debug("dedup complete", "in", inPath, "out", outPath)
	return nil
}
