package telemetry

import (
	"math"

	"github.com/pthm-cable/particlelife/components"
)

// Collector accumulates per-tick counters within windows and produces WindowStats.
type Collector struct {
	windowDurationTicks int64

	// Current window tracking
	windowStartTick int64

	// Counters for current window
	cellOverflow     int64
	neighborOverflow int64
	contacts         int64

	// Reused sample buffers
	speeds    []float64
	neighbors []float64
}

// NewCollector creates a new stats collector flushing every windowTicks ticks.
func NewCollector(windowTicks int) *Collector {
	if windowTicks < 1 {
		windowTicks = 1
	}
	return &Collector{windowDurationTicks: int64(windowTicks)}
}

// RecordTick adds one tick's overflow and contact counts.
func (c *Collector) RecordTick(cellOverflow, neighborOverflow, contacts int) {
	c.cellOverflow += int64(cellOverflow)
	c.neighborOverflow += int64(neighborOverflow)
	c.contacts += int64(contacts)
}

// ShouldFlush returns true if enough ticks have passed to flush the window.
func (c *Collector) ShouldFlush(currentTick int64) bool {
	return currentTick-c.windowStartTick >= c.windowDurationTicks
}

// Flush produces a WindowStats from the state at the window end and resets
// counters for the next window. neighborCounts holds each particle's neighbor
// list length and may be empty before the first tick.
func (c *Collector) Flush(currentTick int64, ps []components.Particle, neighborCounts []int, fieldNorm float32) WindowStats {
	c.speeds = c.speeds[:0]
	for i := range ps {
		c.speeds = append(c.speeds, math.Hypot(float64(ps[i].VX), float64(ps[i].VY)))
	}
	speed := ComputeDistStats(c.speeds)

	c.neighbors = c.neighbors[:0]
	isolated := 0
	for _, n := range neighborCounts {
		c.neighbors = append(c.neighbors, float64(n))
		if n == 0 {
			isolated++
		}
	}
	nb := ComputeDistStats(c.neighbors)
	var isolatedFrac float64
	if len(neighborCounts) > 0 {
		isolatedFrac = float64(isolated) / float64(len(neighborCounts))
	}

	stats := WindowStats{
		WindowStartTick: c.windowStartTick,
		WindowEndTick:   currentTick,
		Particles:       len(ps),

		SpeedMean: speed.Mean,
		SpeedStd:  speed.Std,
		SpeedP10:  speed.P10,
		SpeedP50:  speed.P50,
		SpeedP90:  speed.P90,

		NeighborsMean: nb.Mean,
		NeighborsStd:  nb.Std,
		NeighborsP90:  nb.P90,
		IsolatedFrac:  isolatedFrac,

		CellOverflow:     c.cellOverflow,
		NeighborOverflow: c.neighborOverflow,
		Contacts:         c.contacts,

		FieldNorm: float64(fieldNorm),
	}

	// Reset for next window
	c.windowStartTick = currentTick
	c.cellOverflow = 0
	c.neighborOverflow = 0
	c.contacts = 0

	return stats
}

// WindowDurationTicks returns the number of ticks per window.
func (c *Collector) WindowDurationTicks() int64 {
	return c.windowDurationTicks
}
