// Package config defines the plantwatch runtime configuration.
//
// Configuration is loaded from a YAML file, then overridden by PW_*
// environment variables (optionally sourced from a .env file). Defaults
// come from the top-level config package.
package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	defaults "github.com/xtxerr/plantwatch/config"
)

// Config represents the complete plantwatch configuration.
type Config struct {
	// DataDir is the directory holding the per-unit parquet files.
	DataDir string `yaml:"data_dir"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`

	// Freshness configures staleness evaluation.
	Freshness FreshnessConfig `yaml:"freshness"`

	// Memory configures the free-memory floor.
	Memory MemoryConfig `yaml:"memory"`

	// Merge configures the merge engine.
	Merge MergeConfig `yaml:"merge"`

	// Fetch configures the historian fetcher.
	Fetch FetchConfig `yaml:"fetch"`

	// Query configures the embedded query engine.
	Query QueryConfig `yaml:"query"`

	// Orchestrator configures the refresh pass behavior.
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`

	// Units maps unit names to their plant and tag list.
	Units map[string]UnitConfig `yaml:"units"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is the log level: debug, info, warn, error.
	Level string `yaml:"level"`

	// JSON enables JSON log output.
	JSON bool `yaml:"json"`
}

// FreshnessConfig configures staleness evaluation.
type FreshnessConfig struct {
	// MaxAge is the freshness window.
	MaxAge time.Duration `yaml:"max_age"`

	// FreshTagFraction is the fraction of tags that must be fresh for a
	// unit to count as fresh (0.0-1.0). Exactly at the fraction is fresh.
	FreshTagFraction float64 `yaml:"fresh_tag_fraction"`
}

// MemoryConfig configures the free-memory floor.
type MemoryConfig struct {
	// FloorBytes is the minimum available memory required before a unit
	// refresh is attempted.
	FloorBytes int64 `yaml:"floor_bytes"`
}

// MergeConfig configures the merge engine.
type MergeConfig struct {
	// BypassFileSize is the existing-file size that triggers the lossy
	// emergency bypass.
	BypassFileSize int64 `yaml:"bypass_file_size"`

	// StreamingFileSize is the existing-file size that triggers the
	// external-memory streaming merge.
	StreamingFileSize int64 `yaml:"streaming_file_size"`

	// RetentionWindow bounds how much history a merge keeps from the
	// existing file.
	RetentionWindow time.Duration `yaml:"retention_window"`

	// ShrinkWindow replaces RetentionWindow when the existing file exceeds
	// ShrinkRowThreshold rows.
	ShrinkWindow       time.Duration `yaml:"shrink_window"`
	ShrinkRowThreshold int64         `yaml:"shrink_row_threshold"`

	// ChunkSize is the rows-per-chunk for the incremental fallback.
	ChunkSize int `yaml:"chunk_size"`
}

// FetchConfig configures the historian fetcher.
type FetchConfig struct {
	// Endpoint is the historian base URL.
	Endpoint string `yaml:"endpoint"`

	// Timeout is the per-unit fetch abandon timeout.
	Timeout time.Duration `yaml:"timeout"`

	// MaxWindow caps the requested time window for a single fetch.
	MaxWindow time.Duration `yaml:"max_window"`
}

// QueryConfig configures the embedded query engine.
type QueryConfig struct {
	// MemoryLimit is the DuckDB memory limit (e.g. "2GB").
	MemoryLimit string `yaml:"memory_limit"`
}

// OrchestratorConfig configures refresh pass behavior.
type OrchestratorConfig struct {
	// DedupMode is "immediate" or "deferred".
	DedupMode string `yaml:"dedup_mode"`

	// SweepWorkers is the parallelism of the deferred dedup sweep.
	SweepWorkers int `yaml:"sweep_workers"`

	// PassCooldown is the wait between passes in run-until-fresh mode.
	PassCooldown time.Duration `yaml:"pass_cooldown"`

	// MaxPasses bounds the run-until-fresh loop.
	MaxPasses int `yaml:"max_passes"`

	// Advisor configures per-unit fetch timeout suggestions.
	Advisor AdvisorConfig `yaml:"advisor"`
}

// AdvisorConfig configures the fetch timeout advisor.
type AdvisorConfig struct {
	// Enabled turns advisor-suggested timeouts on.
	Enabled bool `yaml:"enabled"`

	// Quantile is the latency quantile used for suggestions (0.0-1.0).
	Quantile float64 `yaml:"quantile"`

	// Margin multiplies the observed quantile.
	Margin float64 `yaml:"margin"`

	// MinTimeout and MaxTimeout clamp suggestions.
	MinTimeout time.Duration `yaml:"min_timeout"`
	MaxTimeout time.Duration `yaml:"max_timeout"`

	// MinSamples is how many observations a unit needs before the advisor
	// overrides the configured timeout.
	MinSamples int `yaml:"min_samples"`

	// Accuracy is the latency sketch relative accuracy (0.01 = 1%).
	Accuracy float64 `yaml:"accuracy"`
}

// UnitConfig describes one process unit.
type UnitConfig struct {
	// Plant is the plant site the unit belongs to.
	Plant string `yaml:"plant"`

	// Tags is the list of sensor tags fetched for this unit.
	Tags []string `yaml:"tags"`
}

// Load loads configuration from a YAML file and applies PW_* environment
// overrides. A missing .env file is not an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := config.ApplyEnv(); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "/var/lib/plantwatch/data",
		Logging: LoggingConfig{
			Level: "info",
		},
		Freshness: FreshnessConfig{
			MaxAge:           defaults.DefaultMaxAge,
			FreshTagFraction: defaults.DefaultFreshTagFraction,
		},
		Memory: MemoryConfig{
			FloorBytes: defaults.DefaultMemoryFloorBytes,
		},
		Merge: MergeConfig{
			BypassFileSize:     defaults.DefaultBypassFileSize,
			StreamingFileSize:  defaults.DefaultStreamingFileSize,
			RetentionWindow:    defaults.DefaultRetentionWindow,
			ShrinkWindow:       defaults.DefaultShrinkWindow,
			ShrinkRowThreshold: defaults.DefaultShrinkRowThreshold,
			ChunkSize:          defaults.DefaultMergeChunkSize,
		},
		Fetch: FetchConfig{
			Timeout:   defaults.DefaultFetchTimeout,
			MaxWindow: defaults.DefaultFetchMaxWindow,
		},
		Query: QueryConfig{
			MemoryLimit: defaults.DefaultDuckDBMemoryLimit,
		},
		Orchestrator: OrchestratorConfig{
			DedupMode:    defaults.DefaultDedupMode,
			SweepWorkers: defaults.DefaultSweepWorkers,
			PassCooldown: defaults.DefaultPassCooldown,
			MaxPasses:    defaults.DefaultMaxPasses,
			Advisor: AdvisorConfig{
				Enabled:    false,
				Quantile:   defaults.DefaultAdvisorQuantile,
				Margin:     defaults.DefaultAdvisorMargin,
				MinTimeout: defaults.DefaultAdvisorMinTimeout,
				MaxTimeout: defaults.DefaultAdvisorMaxTimeout,
				MinSamples: defaults.DefaultAdvisorMinSamples,
				Accuracy:   defaults.DefaultAdvisorAccuracy,
			},
		},
		Units: map[string]UnitConfig{},
	}
}

// UnitNames returns the configured unit names in sorted order.
func (c *Config) UnitNames() []string {
	names := make([]string, 0, len(c.Units))
	for name := range c.Units {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DedupDeferred reports whether dedup runs in the end-of-pass sweep.
func (c *Config) DedupDeferred() bool {
	return c.Orchestrator.DedupMode == "deferred"
}
