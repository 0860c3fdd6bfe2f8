// Package advisor suggests per-unit fetch timeouts from observed latency.
//
// Fetch latency varies wildly between units (tag count, historian load),
// so a single global abandon timeout either wastes time on fast units or
// kills slow ones. The advisor keeps a DDSketch of fetch durations per
// unit and suggests quantile-based timeouts with a safety margin.
package advisor

import (
	"sync"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"
	"github.com/xtxerr/plantwatch/internal/logging"
)

var log = logging.Component("advisor")

// Config configures an Advisor.
type Config struct {
	// Quantile is the latency quantile used for suggestions (0.0-1.0).
	Quantile float64

	// Margin multiplies the observed quantile.
	Margin float64

	// MinTimeout and MaxTimeout clamp suggestions.
	MinTimeout time.Duration
	MaxTimeout time.Duration

	// MinSamples is how many observations a unit needs before the
	// advisor overrides the fallback.
	MinSamples int

	// Accuracy is the sketch relative accuracy (0.01 = 1% error).
	Accuracy float64
}

// Advisor tracks fetch latency per unit and suggests timeouts.
type Advisor struct {
	mu       sync.Mutex
	sketches map[string]*ddsketch.DDSketch
	counts   map[string]int
	cfg      Config
}

// New creates an advisor.
func New(cfg Config) *Advisor {
	if cfg.Accuracy <= 0 {
		cfg.Accuracy = 0.01
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = 5
	}
	return &Advisor{
		sketches: make(map[string]*ddsketch.DDSketch),
		counts:   make(map[string]int),
		cfg:      cfg,
	}
}

// Record adds an observed fetch duration for a unit. Failed fetches
// should not be recorded; their duration says nothing about a healthy
// fetch.
func (a *Advisor) Record(unit string, d time.Duration) {
	if d <= 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	sketch, ok := a.sketches[unit]
	if !ok {
		var err error
		sketch, err = ddsketch.NewDefaultDDSketch(a.cfg.Accuracy)
		if err != nil {
			return
		}
		a.sketches[unit] = sketch
	}

	if err := sketch.Add(d.Seconds()); err != nil {
		log.Warn("sketch add failed", "unit", unit, "error", err)
		return
	}
	a.counts[unit]++
}

// Samples returns how many observations a unit has.
func (a *Advisor) Samples(unit string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.counts[unit]
}

// Suggest returns a timeout for a unit's next fetch. Units without enough
// observations get the fallback. Suggestions are the configured latency
// quantile times the margin, clamped to [MinTimeout, MaxTimeout].
func (a *Advisor) Suggest(unit string, fallback time.Duration) time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()

	sketch, ok := a.sketches[unit]
	if !ok || a.counts[unit] < a.cfg.MinSamples {
		return fallback
	}

	q, err := sketch.GetValueAtQuantile(a.cfg.Quantile)
	if err != nil {
		return fallback
	}

	suggested := time.Duration(q * a.cfg.Margin * float64(time.Second))
	if suggested < a.cfg.MinTimeout {
		suggested = a.cfg.MinTimeout
	}
	if a.cfg.MaxTimeout > 0 && suggested > a.cfg.MaxTimeout {
		suggested = a.cfg.MaxTimeout
	}

	log.Debug("timeout suggested", "unit", unit, "timeout", suggested)
	return suggested
}
