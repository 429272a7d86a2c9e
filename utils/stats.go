// Package utils has shared helpers for the hwcore packages.
package utils

import (
	"math"
	"sync"

	"github.com/montanaflynn/stats"
)

// DefaultStatsWindow is how many samples CycleStats keeps by default.
const DefaultStatsWindow = 100

// CycleStats tracks rolling statistics over a ring buffer of samples, such
// as per-cycle execution times or measured cycle periods. Min, max, and mean
// are NaN until the first sample arrives.
type CycleStats struct {
	mu    sync.Mutex
	data  []float64
	pos   int
	full  bool
	count int
}

// StatsSnapshot is a point-in-time copy of the rolling statistics.
type StatsSnapshot struct {
	Count int
	Min   float64
	Max   float64
	Mean  float64
}

// NewCycleStats makes rolling statistics over a window of windowSize samples.
// A non-positive size falls back to DefaultStatsWindow.
func NewCycleStats(windowSize int) *CycleStats {
	if windowSize <= 0 {
		windowSize = DefaultStatsWindow
	}
	return &CycleStats{data: make([]float64, windowSize)}
}

// AddSample records one sample.
func (cs *CycleStats) AddSample(v float64) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.data[cs.pos] = v
	cs.pos++
	if cs.pos >= len(cs.data) {
		cs.pos = 0
		cs.full = true
	}
	cs.count++
}

// Reset drops all samples.
func (cs *CycleStats) Reset() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.pos = 0
	cs.full = false
	cs.count = 0
}

func (cs *CycleStats) window() []float64 {
	if cs.full {
		return cs.data
	}
	return cs.data[:cs.pos]
}

// Count returns the total number of samples ever recorded.
func (cs *CycleStats) Count() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.count
}

// Snapshot copies out the current statistics.
func (cs *CycleStats) Snapshot() StatsSnapshot {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	snap := StatsSnapshot{
		Count: cs.count,
		Min:   math.NaN(),
		Max:   math.NaN(),
		Mean:  math.NaN(),
	}
	w := cs.window()
	if len(w) == 0 {
		return snap
	}
	if v, err := stats.Min(w); err == nil {
		snap.Min = v
	}
	if v, err := stats.Max(w); err == nil {
		snap.Max = v
	}
	if v, err := stats.Mean(w); err == nil {
		snap.Mean = v
	}
	return snap
}
