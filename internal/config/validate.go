package config

import (
	"github.com/xtxerr/plantwatch/internal/errors"
)

// Validate checks the configuration for invalid or inconsistent values.
// All problems are collected and reported together.
func (c *Config) Validate() error {
	v := errors.NewValidationErrors()

	if c.DataDir == "" {
		v.AddMissing("data_dir")
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		v.AddField("logging.level", "must be one of debug, info, warn, error")
	}

	if c.Freshness.MaxAge <= 0 {
		v.AddField("freshness.max_age", "must be positive")
	}
	if c.Freshness.FreshTagFraction < 0 || c.Freshness.FreshTagFraction > 1 {
		v.AddField("freshness.fresh_tag_fraction", "must be in [0,1]")
	}

	if c.Memory.FloorBytes < 0 {
		v.AddField("memory.floor_bytes", "must not be negative")
	}

	if c.Merge.BypassFileSize <= 0 {
		v.AddField("merge.bypass_file_size", "must be positive")
	}
	if c.Merge.StreamingFileSize <= 0 {
		v.AddField("merge.streaming_file_size", "must be positive")
	}
	if c.Merge.StreamingFileSize > c.Merge.BypassFileSize {
		v.AddField("merge.streaming_file_size", "must not exceed merge.bypass_file_size")
	}
	if c.Merge.RetentionWindow <= 0 {
		v.AddField("merge.retention_window", "must be positive")
	}
	if c.Merge.ShrinkWindow <= 0 || c.Merge.ShrinkWindow > c.Merge.RetentionWindow {
		v.AddField("merge.shrink_window", "must be positive and within merge.retention_window")
	}
	if c.Merge.ChunkSize <= 0 {
		v.AddField("merge.chunk_size", "must be positive")
	}

	if c.Fetch.Timeout <= 0 {
		v.AddField("fetch.timeout", "must be positive")
	}
	if c.Fetch.MaxWindow <= 0 {
		v.AddField("fetch.max_window", "must be positive")
	}

	switch c.Orchestrator.DedupMode {
	case "immediate", "deferred":
	default:
		v.AddField("orchestrator.dedup_mode", "must be immediate or deferred")
	}
	if c.Orchestrator.SweepWorkers <= 0 {
		v.AddField("orchestrator.sweep_workers", "must be positive")
	}
	if c.Orchestrator.MaxPasses <= 0 {
		v.AddField("orchestrator.max_passes", "must be positive")
	}

	if c.Orchestrator.Advisor.Enabled {
		a := c.Orchestrator.Advisor
		if a.Quantile <= 0 || a.Quantile >= 1 {
			v.AddField("orchestrator.advisor.quantile", "must be in (0,1)")
		}
		if a.Margin < 1 {
			v.AddField("orchestrator.advisor.margin", "must be >= 1")
		}
		if a.MinTimeout <= 0 || a.MaxTimeout < a.MinTimeout {
			v.AddField("orchestrator.advisor.min_timeout", "must be positive and <= max_timeout")
		}
		if a.MinSamples <= 0 {
			v.AddField("orchestrator.advisor.min_samples", "must be positive")
		}
		if a.Accuracy <= 0 || a.Accuracy >= 1 {
			v.AddField("orchestrator.advisor.accuracy", "must be in (0,1)")
		}
	}

	for name, unit := range c.Units {
		if name == "" {
			v.Add(errors.NewValidation("units", "unit name must not be empty"))
			continue
		}
		if unit.Plant == "" {
			v.AddMissing("units." + name + ".plant")
		}
		if len(unit.Tags) == 0 {
			v.AddField("units."+name+".tags", "at least one tag required")
		}
	}

	return v.Err()
}
