// Package memory checks free system memory against a configured floor.
//
// The orchestrator consults the monitor before each unit refresh and the
// merge engine consults it when choosing a strategy. A unit refresh below
// the floor is skipped rather than risking the whole process.
package memory

import (
	"time"

	"github.com/shirou/gopsutil/v4/mem"
	"github.com/xtxerr/plantwatch/internal/logging"
)

var log = logging.Component("memory")

// Snapshot is a point-in-time view of system memory.
type Snapshot struct {
	TotalBytes     uint64
	AvailableBytes uint64
	UsedPercent    float64
	Taken          time.Time
}

// Sampler produces memory snapshots. The default reads from the OS;
// tests inject their own.
type Sampler func() (Snapshot, error)

// SystemSampler reads memory state from the operating system.
func SystemSampler() (Snapshot, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		TotalBytes:     vm.Total,
		AvailableBytes: vm.Available,
		UsedPercent:    vm.UsedPercent,
		Taken:          time.Now(),
	}, nil
}

// Monitor evaluates memory snapshots against a floor.
type Monitor struct {
	floor  uint64
	sample Sampler
}

// New creates a monitor with the given floor in bytes. A nil sampler
// uses SystemSampler.
func New(floorBytes int64, sampler Sampler) *Monitor {
	if sampler == nil {
		sampler = SystemSampler
	}
	if floorBytes < 0 {
		floorBytes = 0
	}
	return &Monitor{
		floor:  uint64(floorBytes),
		sample: sampler,
	}
}

// Floor returns the configured floor in bytes.
func (m *Monitor) Floor() uint64 {
	return m.floor
}

// Snapshot returns the current memory state.
func (m *Monitor) Snapshot() (Snapshot, error) {
	return m.sample()
}

// UnderPressure reports whether available memory is below the floor.
// Sampling failures count as not under pressure: a broken probe must not
// stall every refresh.
func (m *Monitor) UnderPressure() bool {
	if m.floor == 0 {
		return false
	}

	snap, err := m.sample()
	if err != nil {
		log.Warn("memory sample failed, assuming ok", "error", err)
		return false
	}

	return snap.AvailableBytes < m.floor
}
