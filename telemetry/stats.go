package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// WindowStats holds aggregated statistics for a window of ticks.
type WindowStats struct {
	WindowStartTick int64 `csv:"-"`
	WindowEndTick   int64 `csv:"window_end"`

	Particles int `csv:"particles"`

	// Speed distribution (sampled at window end)
	SpeedMean float64 `csv:"speed_mean"`
	SpeedStd  float64 `csv:"speed_std"`
	SpeedP10  float64 `csv:"speed_p10"`
	SpeedP50  float64 `csv:"speed_p50"`
	SpeedP90  float64 `csv:"speed_p90"`

	// Neighbor list lengths (sampled at window end)
	NeighborsMean float64 `csv:"neighbors_mean"`
	NeighborsStd  float64 `csv:"neighbors_std"`
	NeighborsP90  float64 `csv:"neighbors_p90"`
	IsolatedFrac  float64 `csv:"isolated_frac"` // Fraction with no neighbors

	// Capacity truncation and collisions during the window
	CellOverflow     int64 `csv:"cell_overflow"`
	NeighborOverflow int64 `csv:"neighbor_overflow"`
	Contacts         int64 `csv:"contacts"`

	FieldNorm float64 `csv:"field_norm"` // Influence field norm at window end
}

// Percentile calculates the p-th percentile of a sorted slice.
// p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	// Linear interpolation
	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// DistStats summarizes a sample.
type DistStats struct {
	Mean, Std     float64
	P10, P50, P90 float64
}

// ComputeDistStats calculates mean, population std, and percentiles.
func ComputeDistStats(values []float64) DistStats {
	if len(values) == 0 {
		return DistStats{}
	}

	mean, std := stat.PopMeanStdDev(values, nil)

	// Sort for percentiles
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	return DistStats{
		Mean: mean,
		Std:  std,
		P10:  Percentile(sorted, 0.10),
		P50:  Percentile(sorted, 0.50),
		P90:  Percentile(sorted, 0.90),
	}
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("window_start", s.WindowStartTick),
		slog.Int64("window_end", s.WindowEndTick),
		slog.Int("particles", s.Particles),
		slog.Float64("speed_mean", s.SpeedMean),
		slog.Float64("speed_std", s.SpeedStd),
		slog.Float64("speed_p10", s.SpeedP10),
		slog.Float64("speed_p50", s.SpeedP50),
		slog.Float64("speed_p90", s.SpeedP90),
		slog.Float64("neighbors_mean", s.NeighborsMean),
		slog.Float64("neighbors_std", s.NeighborsStd),
		slog.Float64("neighbors_p90", s.NeighborsP90),
		slog.Float64("isolated_frac", s.IsolatedFrac),
		slog.Int64("cell_overflow", s.CellOverflow),
		slog.Int64("neighbor_overflow", s.NeighborOverflow),
		slog.Int64("contacts", s.Contacts),
		slog.Float64("field_norm", s.FieldNorm),
	)
}

// LogStats logs the window stats using slog.
func (s WindowStats) LogStats() {
	slog.Info("stats",
		"window_end", s.WindowEndTick,
		"particles", s.Particles,
		"speed_mean", s.SpeedMean,
		"speed_p50", s.SpeedP50,
		"neighbors_mean", s.NeighborsMean,
		"isolated_frac", s.IsolatedFrac,
		"cell_overflow", s.CellOverflow,
		"neighbor_overflow", s.NeighborOverflow,
		"contacts", s.Contacts,
		"field_norm", s.FieldNorm,
	)
}
