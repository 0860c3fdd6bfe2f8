package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads variables from a .env file into the process environment
// if the file exists. Already-set variables are not overwritten.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

// ApplyEnv overrides configuration fields from PW_* environment variables.
// Unset variables leave the loaded values in place.
func ApplyEnv(c *Config) error {
	return c.ApplyEnv()
}

// ApplyEnv overrides configuration fields from PW_* environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("PW_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("PW_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("PW_ENDPOINT"); v != "" {
		c.Fetch.Endpoint = v
	}
	if v := os.Getenv("PW_DEDUP_MODE"); v != "" {
		c.Orchestrator.DedupMode = v
	}

	if v := os.Getenv("PW_MAX_AGE_HOURS"); v != "" {
		hours, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("PW_MAX_AGE_HOURS: %w", err)
		}
		c.Freshness.MaxAge = time.Duration(hours * float64(time.Hour))
	}

	if v := os.Getenv("PW_FRESH_TAG_FRACTION"); v != "" {
		frac, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("PW_FRESH_TAG_FRACTION: %w", err)
		}
		c.Freshness.FreshTagFraction = frac
	}

	if v := os.Getenv("PW_MIN_MEMORY_GB"); v != "" {
		gb, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("PW_MIN_MEMORY_GB: %w", err)
		}
		c.Memory.FloorBytes = int64(gb * float64(1<<30))
	}

	if v := os.Getenv("PW_FETCH_TIMEOUT_SEC"); v != "" {
		sec, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("PW_FETCH_TIMEOUT_SEC: %w", err)
		}
		c.Fetch.Timeout = time.Duration(sec * float64(time.Second))
	}

	return nil
}
