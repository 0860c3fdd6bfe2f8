// plantwatchd is the freshness-aware time-series store and refresh daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xtxerr/plantwatch/internal/config"
	"github.com/xtxerr/plantwatch/internal/fetch"
	"github.com/xtxerr/plantwatch/internal/logging"
	"github.com/xtxerr/plantwatch/internal/orchestrator"
	"github.com/xtxerr/plantwatch/internal/store/fileset"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// CLI flags
	cfgPath := flag.String("config", "plantwatch.yaml", "config file path")
	envPath := flag.String("env", ".env", "dotenv file path")
	dataDir := flag.String("data-dir", "", "data directory (overrides config)")
	endpoint := flag.String("endpoint", "", "historian base URL (overrides config)")
	maxAge := flag.Duration("max-age", 0, "freshness max age (overrides config)")
	force := flag.Bool("force", false, "refresh all units regardless of freshness")
	scanOnly := flag.Bool("scan", false, "scan freshness and exit without refreshing")
	once := flag.Bool("once", false, "run a single refresh pass instead of passes until fresh")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error (overrides config)")
	jsonLogs := flag.Bool("json", false, "emit JSON logs")
	flag.Parse()

	// Dotenv before config so PW_* overrides see it
	if err := config.LoadDotEnv(*envPath); err != nil {
		fmt.Fprintf(os.Stderr, "load %s: %v\n", *envPath, err)
		os.Exit(1)
	}

	// Load config
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg = config.DefaultConfig()
			if err := cfg.ApplyEnv(); err != nil {
				fmt.Fprintf(os.Stderr, "apply env overrides: %v\n", err)
				os.Exit(1)
			}
		} else {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
	}

	// CLI overrides
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *endpoint != "" {
		cfg.Fetch.Endpoint = *endpoint
	}
	if *maxAge > 0 {
		cfg.Freshness.MaxAge = *maxAge
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "validate config: %v\n", err)
		os.Exit(1)
	}

	logging.Init(parseLevel(cfg.Logging.Level), *jsonLogs || cfg.Logging.JSON)
	log := logging.Component("main")
	log.Info("plantwatchd starting", "version", Version, "data_dir", cfg.DataDir)

	if !*scanOnly && cfg.Fetch.Endpoint == "" {
		log.Error("historian endpoint required (use -endpoint, PW_ENDPOINT, or fetch.endpoint)")
		os.Exit(1)
	}

	orch, err := orchestrator.New(&orchestrator.Config{
		Config:  cfg,
		Fetcher: fetch.NewHistorianClient(cfg.Fetch.Endpoint, cfg.Fetch.Timeout),
	})
	if err != nil {
		log.Error("create orchestrator", "error", err)
		os.Exit(1)
	}
	defer orch.Close()

	// SIGINT/SIGTERM cancel the context; in-flight fetches are abandoned,
	// the current unit finishes its write, and the pass reports interrupted.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *scanOnly {
		if err := runScan(ctx, orch, *force); err != nil {
			log.Error("scan failed", "error", err)
			os.Exit(1)
		}
		return
	}

	start := time.Now()
	var exitCode int
	if *once {
		pass, err := orch.RefreshPass(ctx, *force)
		if err != nil {
			log.Error("refresh pass failed", "error", err)
			os.Exit(1)
		}
		log.Info("refresh pass complete",
			"succeeded", pass.Succeeded,
			"failed", pass.Failed,
			"skipped", pass.Skipped,
			"interrupted", pass.Interrupted,
			"elapsed", time.Since(start).Round(time.Millisecond))
		if pass.Failed > 0 || pass.Interrupted {
			exitCode = 1
		}
	} else {
		passes, err := orch.RunUntilFresh(ctx, *force)
		if err != nil {
			log.Error("refresh failed", "error", err)
			os.Exit(1)
		}
		var succeeded, failed, skipped int
		interrupted := false
		for _, p := range passes {
			succeeded += p.Succeeded
			failed += p.Failed
			skipped += p.Skipped
			interrupted = interrupted || p.Interrupted
		}
		log.Info("refresh complete",
			"passes", len(passes),
			"succeeded", succeeded,
			"failed", failed,
			"skipped", skipped,
			"interrupted", interrupted,
			"elapsed", time.Since(start).Round(time.Millisecond))
		if interrupted {
			exitCode = 1
		}
	}

	if usage, err := orch.FileSet().GetDiskUsage(); err == nil {
		log.Info("store size",
			"files", usage.FileCount,
			"size", fileset.FormatBytes(usage.TotalSize))
	}
	os.Exit(exitCode)
}

// runScan prints a freshness report for every known unit.
func runScan(ctx context.Context, orch *orchestrator.Orchestrator, force bool) error {
	summary, err := orch.Scan(ctx, force)
	if err != nil {
		return err
	}

	fmt.Printf("%-12s %-8s %10s %14s %10s %6s\n",
		"UNIT", "STATE", "RECORDS", "DATA AGE", "FRESH TAGS", "LEVEL")
	for _, e := range summary.Entries {
		if e.Err != "" {
			fmt.Printf("%-12s %-8s %s\n", e.Unit, "ERROR", e.Err)
			continue
		}
		info := e.Info
		if !info.Exists {
			fmt.Printf("%-12s %-8s %10s %14s %10s %6s\n",
				e.Unit, "MISSING", "-", "-", "-", "-")
			continue
		}
		state := "fresh"
		if info.Stale {
			state = "stale"
		}
		fmt.Printf("%-12s %-8s %10d %14s %3d / %-4d %6s\n",
			e.Unit, state, info.TotalRecords,
			info.DataAge.Round(time.Second),
			info.FreshTags, info.TotalTags,
			info.Level)
	}
	fmt.Printf("\n%d units: %d fresh, %d stale, %d missing, %d errors\n",
		summary.Total, summary.Fresh, summary.Stale, summary.Missing, summary.Errors)
	return nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
