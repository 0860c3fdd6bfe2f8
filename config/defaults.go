// Package config provides configuration defaults and utilities
// for the plantwatch application.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml or PW_* environment
// variables.
package config

import "time"

// =============================================================================
// Freshness Defaults
// =============================================================================

const (
	// DefaultMaxAge is the freshness window. Data older than this is a
	// candidate for refresh.
	// Override via config: freshness.max_age (env: PW_MAX_AGE_HOURS)
	DefaultMaxAge = 1 * time.Hour

	// DefaultFreshTagFraction is the fraction of a unit's tags that must be
	// fresh for the unit to count as fresh. A fraction exactly at the
	// threshold counts as fresh.
	// Override via config: freshness.fresh_tag_fraction (env: PW_FRESH_TAG_FRACTION)
	DefaultFreshTagFraction = 0.5
)

// =============================================================================
// Memory Defaults
// =============================================================================

const (
	// DefaultMemoryFloorBytes is the minimum free memory required before a
	// unit refresh is attempted. Units are skipped (not failed) below this.
	// Typical deployments use 1-2 GiB.
	// Override via config: memory.floor_bytes (env: PW_MIN_MEMORY_GB)
	DefaultMemoryFloorBytes = 1 << 30 // 1 GiB

	// DefaultDuckDBMemoryLimit caps memory used by the embedded query engine,
	// which does its own disk spilling above this.
	// Override via config: query.memory_limit
	DefaultDuckDBMemoryLimit = "2GB"
)

// =============================================================================
// Merge Defaults
// =============================================================================

const (
	// DefaultBypassFileSize is the existing-file size above which the merge
	// engine bypasses merging entirely and keeps only the fresh batch.
	// This is lossy and marks the result degraded.
	// Override via config: merge.bypass_file_size
	DefaultBypassFileSize = 200 * 1024 * 1024

	// DefaultStreamingFileSize is the existing-file size above which the
	// merge runs as an external-memory union in the query engine instead
	// of loading both sides into memory.
	// Override via config: merge.streaming_file_size
	DefaultStreamingFileSize = 100 * 1024 * 1024

	// DefaultRetentionWindow bounds how much history a merge keeps from the
	// existing file. The fresh batch is never truncated.
	// Override via config: merge.retention_window
	DefaultRetentionWindow = 90 * 24 * time.Hour

	// DefaultShrinkWindow replaces the retention window when the existing
	// file still holds more than DefaultShrinkRowThreshold rows after the
	// retention filter.
	// Override via config: merge.shrink_window
	DefaultShrinkWindow = 30 * 24 * time.Hour

	// DefaultShrinkRowThreshold is the row count that triggers the shrink
	// window in streaming merges.
	// Override via config: merge.shrink_row_threshold
	DefaultShrinkRowThreshold = 5_000_000

	// DefaultMergeChunkSize is the rows-per-chunk for the incremental
	// fallback merge.
	// Override via config: merge.chunk_size
	DefaultMergeChunkSize = 100_000
)

// =============================================================================
// Fetch Defaults
// =============================================================================

const (
	// DefaultFetchTimeout is how long a unit fetch may run before it is
	// abandoned. The fetch goroutine is left to finish on its own; its
	// late result is discarded.
	// Override via config: fetch.timeout (env: PW_FETCH_TIMEOUT_SEC)
	DefaultFetchTimeout = 300 * time.Second

	// DefaultFetchMaxWindow caps the time window requested from the
	// historian for a single unit fetch.
	// Override via config: fetch.max_window
	DefaultFetchMaxWindow = 30 * 24 * time.Hour
)

// =============================================================================
// Orchestrator Defaults
// =============================================================================

const (
	// DefaultDedupMode selects when master files are deduplicated:
	// "immediate" after each unit, or "deferred" in an end-of-pass sweep.
	// Override via config: orchestrator.dedup_mode (env: PW_DEDUP_MODE)
	DefaultDedupMode = "immediate"

	// DefaultSweepWorkers is the parallelism of the deferred dedup sweep.
	// Override via config: orchestrator.sweep_workers
	DefaultSweepWorkers = 4

	// DefaultPassCooldown is the wait between refresh passes when running
	// until all units are fresh.
	// Override via config: orchestrator.pass_cooldown
	DefaultPassCooldown = 60 * time.Second

	// DefaultMaxPasses bounds the run-until-fresh loop.
	// Override via config: orchestrator.max_passes
	DefaultMaxPasses = 3
)

// =============================================================================
// Timeout Advisor Defaults
// =============================================================================

const (
	// DefaultAdvisorQuantile is the fetch-latency quantile used to suggest
	// per-unit fetch timeouts.
	// Override via config: orchestrator.advisor.quantile
	DefaultAdvisorQuantile = 0.95

	// DefaultAdvisorMargin multiplies the observed quantile.
	// Override via config: orchestrator.advisor.margin
	DefaultAdvisorMargin = 1.5

	// DefaultAdvisorMinTimeout and DefaultAdvisorMaxTimeout clamp advisor
	// suggestions.
	// Override via config: orchestrator.advisor.min_timeout / max_timeout
	DefaultAdvisorMinTimeout = 30 * time.Second
	DefaultAdvisorMaxTimeout = 15 * time.Minute

	// DefaultAdvisorMinSamples is how many observations a unit needs before
	// the advisor overrides the configured timeout.
	// Override via config: orchestrator.advisor.min_samples
	DefaultAdvisorMinSamples = 5

	// DefaultAdvisorAccuracy is the sketch relative accuracy (0.01 = 1%).
	// Override via config: orchestrator.advisor.accuracy
	DefaultAdvisorAccuracy = 0.01
)
