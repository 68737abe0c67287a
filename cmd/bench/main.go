// Benchmark runner: steps the simulation headless for a fixed number of ticks
// or wall time and prints throughput, a phase breakdown and a tick-time chart.
//
// Usage: go run ./cmd/bench -ticks 2000 -particles 5000
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/guptarohit/asciigraph"

	"github.com/pthm-cable/particlelife/config"
	"github.com/pthm-cable/particlelife/game"
	"github.com/pthm-cable/particlelife/telemetry"
)

func main() {
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	seed := flag.Int64("seed", 1, "RNG seed")
	ticks := flag.Int("ticks", 1000, "Ticks to run (0 = use -duration)")
	duration := flag.Duration("duration", 10*time.Second, "Wall time to run when -ticks is 0")
	particles := flag.Int("particles", 0, "Override particle count (0 = config)")
	workers := flag.Int("workers", -1, "Override worker count (-1 = config)")
	chartWidth := flag.Int("width", 72, "Chart width in columns")
	chartHeight := flag.Int("height", 12, "Chart height in rows")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *particles > 0 {
		cfg.Particles.Count = *particles
	}
	if *workers >= 0 {
		cfg.Parallel.Workers = *workers
	}
	cfg.Telemetry.SnapshotEvery = 0
	cfg.ComputeDerived()

	g, err := game.NewGameWithOptions(cfg, game.Options{Seed: *seed})
	if err != nil {
		log.Fatalf("failed to start simulation: %v", err)
	}
	defer g.Unload()

	fmt.Printf("Benchmarking %d particles, %d colors, %.0fx%.0f world\n",
		cfg.Particles.Count, cfg.Particles.Colors, cfg.World.Width, cfg.World.Height)

	var tickTimes []float64
	start := time.Now()
	for {
		if *ticks > 0 && len(tickTimes) >= *ticks {
			break
		}
		if *ticks <= 0 && time.Since(start) >= *duration {
			break
		}
		g.UpdateHeadless()
		tickTimes = append(tickTimes, float64(g.Perf().LastTick().Microseconds()))
	}
	elapsed := time.Since(start)

	if len(tickTimes) == 0 {
		fmt.Fprintln(os.Stderr, "no ticks run")
		os.Exit(1)
	}

	fmt.Printf("\n%d ticks in %s (%.1f ticks/sec)\n\n",
		len(tickTimes), elapsed.Round(time.Millisecond), float64(len(tickTimes))/elapsed.Seconds())

	printPhases(g.Perf().Stats())

	series := downsample(tickTimes, *chartWidth)
	fmt.Println()
	fmt.Println(asciigraph.Plot(series,
		asciigraph.Height(*chartHeight),
		asciigraph.Width(*chartWidth),
		asciigraph.Precision(0),
		asciigraph.Caption("tick time (us)"),
	))

	c := g.Engine().Counters()
	fmt.Printf("\nCell overflow: %d, neighbor overflow: %d, contacts: %d\n",
		c.CellOverflow, c.NeighborOverflow, c.Contacts)
}

// printPhases prints the per-phase average over the perf window.
func printPhases(s telemetry.PerfStats) {
	fmt.Printf("Tick avg %s, min %s, max %s\n",
		s.AvgTickDuration.Round(time.Microsecond),
		s.MinTickDuration.Round(time.Microsecond),
		s.MaxTickDuration.Round(time.Microsecond))
	for _, phase := range telemetry.Phases {
		fmt.Printf("  %-18s %10s  %5.1f%%\n",
			phase, s.PhaseAvg[phase].Round(time.Microsecond), s.PhasePct[phase])
	}
}

// downsample averages series into at most n buckets.
func downsample(series []float64, n int) []float64 {
	if n <= 0 || len(series) <= n {
		return series
	}
	out := make([]float64, n)
	for b := 0; b < n; b++ {
		lo := b * len(series) / n
		hi := (b + 1) * len(series) / n
		var sum float64
		for _, v := range series[lo:hi] {
			sum += v
		}
		out[b] = sum / float64(hi-lo)
	}
	return out
}
