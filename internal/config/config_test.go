package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xtxerr/plantwatch/internal/errors"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plantwatch.yaml")

	yaml := `
data_dir: /data/plantwatch
logging:
  level: debug
freshness:
  max_age: 2h
  fresh_tag_fraction: 0.75
merge:
  retention_window: 720h
fetch:
  endpoint: http://historian:8080
orchestrator:
  dedup_mode: deferred
units:
  GT-1:
    plant: NORTH
    tags: [GT-1.TIT-4001.PV, GT-1.PIT-4002.PV]
  GT-2:
    plant: NORTH
    tags: [GT-2.TIT-4001.PV]
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.DataDir != "/data/plantwatch" {
		t.Errorf("data_dir = %q", cfg.DataDir)
	}
	if cfg.Freshness.MaxAge != 2*time.Hour {
		t.Errorf("max_age = %v, want 2h", cfg.Freshness.MaxAge)
	}
	if cfg.Freshness.FreshTagFraction != 0.75 {
		t.Errorf("fresh_tag_fraction = %v", cfg.Freshness.FreshTagFraction)
	}
	if cfg.Merge.RetentionWindow != 720*time.Hour {
		t.Errorf("retention_window = %v", cfg.Merge.RetentionWindow)
	}
	if !cfg.DedupDeferred() {
		t.Error("dedup_mode deferred not applied")
	}
	// Unspecified fields keep their defaults.
	if cfg.Merge.ChunkSize <= 0 {
		t.Error("default chunk_size lost")
	}
	if cfg.Fetch.Timeout != 300*time.Second {
		t.Errorf("default fetch timeout lost: %v", cfg.Fetch.Timeout)
	}

	units := cfg.UnitNames()
	if len(units) != 2 || units[0] != "GT-1" || units[1] != "GT-2" {
		t.Errorf("UnitNames = %v", units)
	}
	if got := cfg.Units["GT-1"]; got.Plant != "NORTH" || len(got.Tags) != 2 {
		t.Errorf("GT-1 = %+v", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	// Callers fall back to defaults on a missing file, so the os error
	// must stay detectable through the wrapping.
	if !stderrors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file not detectable: %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("PW_DATA_DIR", "/env/data")
	t.Setenv("PW_MAX_AGE_HOURS", "2.5")
	t.Setenv("PW_FRESH_TAG_FRACTION", "0.8")
	t.Setenv("PW_MIN_MEMORY_GB", "0.5")
	t.Setenv("PW_FETCH_TIMEOUT_SEC", "120")
	t.Setenv("PW_DEDUP_MODE", "deferred")

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}

	if cfg.DataDir != "/env/data" {
		t.Errorf("data_dir = %q", cfg.DataDir)
	}
	if want := time.Duration(2.5 * float64(time.Hour)); cfg.Freshness.MaxAge != want {
		t.Errorf("max_age = %v, want %v", cfg.Freshness.MaxAge, want)
	}
	if cfg.Freshness.FreshTagFraction != 0.8 {
		t.Errorf("fresh_tag_fraction = %v", cfg.Freshness.FreshTagFraction)
	}
	if want := int64(512 * 1024 * 1024); cfg.Memory.FloorBytes != want {
		t.Errorf("floor_bytes = %d, want %d", cfg.Memory.FloorBytes, want)
	}
	if cfg.Fetch.Timeout != 2*time.Minute {
		t.Errorf("fetch timeout = %v", cfg.Fetch.Timeout)
	}
	if !cfg.DedupDeferred() {
		t.Error("dedup_mode override lost")
	}
}

func TestApplyEnvBadValue(t *testing.T) {
	t.Setenv("PW_MAX_AGE_HOURS", "soon")

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err == nil {
		t.Error("expected error for unparseable PW_MAX_AGE_HOURS")
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = ""
	cfg.Logging.Level = "loud"
	cfg.Freshness.MaxAge = 0
	cfg.Freshness.FreshTagFraction = 1.5
	cfg.Orchestrator.DedupMode = "later"
	cfg.Units = map[string]UnitConfig{
		"GT-1": {Plant: "", Tags: nil},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	if !errors.IsValidation(err) {
		t.Errorf("expected a validation error, got %v", err)
	}

	msg := err.Error()
	for _, want := range []string{
		"data_dir",
		"logging.level",
		"freshness.max_age",
		"freshness.fresh_tag_fraction",
		"orchestrator.dedup_mode",
		"units.GT-1.plant",
		"units.GT-1.tags",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("validation message missing %q: %s", want, msg)
		}
	}
}

func TestValidateMergeThresholds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Merge.StreamingFileSize = cfg.Merge.BypassFileSize + 1

	if err := cfg.Validate(); err == nil {
		t.Error("streaming threshold above bypass ceiling should not validate")
	}

	cfg = DefaultConfig()
	cfg.Merge.ShrinkWindow = cfg.Merge.RetentionWindow + time.Hour
	if err := cfg.Validate(); err == nil {
		t.Error("shrink window beyond retention window should not validate")
	}
}

func TestValidateAdvisorOnlyWhenEnabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Orchestrator.Advisor.Quantile = 7 // nonsense, but advisor is off

	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled advisor should not be validated: %v", err)
	}

	cfg.Orchestrator.Advisor.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Error("enabled advisor with bad quantile should not validate")
	}
}

func TestAdvisorSamplingKnobs(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Orchestrator.Advisor.MinSamples != 5 {
		t.Errorf("default min_samples = %d, want 5", cfg.Orchestrator.Advisor.MinSamples)
	}
	if cfg.Orchestrator.Advisor.Accuracy != 0.01 {
		t.Errorf("default accuracy = %v, want 0.01", cfg.Orchestrator.Advisor.Accuracy)
	}

	cfg.Orchestrator.Advisor.Enabled = true
	cfg.Orchestrator.Advisor.MinSamples = 0
	cfg.Orchestrator.Advisor.Accuracy = 1.5
	err := cfg.Validate()
	if err == nil {
		t.Fatal("bad sampling knobs should not validate")
	}
	for _, field := range []string{"min_samples", "accuracy"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("validation error does not mention %s: %v", field, err)
		}
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("PW_DATA_DIR=/dotenv/data\n"), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv("PW_DATA_DIR", "") // ensure restored after the test
	os.Unsetenv("PW_DATA_DIR")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("PW_DATA_DIR"); got != "/dotenv/data" {
		t.Errorf("PW_DATA_DIR = %q after dotenv load", got)
	}

	// Missing file is not an error.
	if err := LoadDotEnv(filepath.Join(dir, "nope.env")); err != nil {
		t.Errorf("missing .env should be ignored: %v", err)
	}
}
