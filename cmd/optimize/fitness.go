package main

import (
	"context"
	"fmt"
	"math"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pthm-cable/particlelife/config"
	"github.com/pthm-cable/particlelife/game"
	"github.com/pthm-cable/particlelife/telemetry"
)

// qualityWarmupWindows windows are skipped while structure forms.
const qualityWarmupWindows = 2

// FitnessEvaluator runs headless simulations and computes fitness.
type FitnessEvaluator struct {
	params      *ParamVector
	maxTicks    int64
	seeds       []int64
	baseConfig  *config.Config
	statsWindow int
	parallel    int

	mu           sync.Mutex
	lastMean     float64 // mean neighbors from most recent Evaluate call
	lastOverflow int64   // neighbor overflow from most recent Evaluate call
}

// NewFitnessEvaluator creates a new evaluator. parallel bounds how many seeds
// run at once, 0 = all.
func NewFitnessEvaluator(params *ParamVector, maxTicks int64, seeds []int64, baseCfg *config.Config, parallel int) *FitnessEvaluator {
	window := int(maxTicks / 10)
	if window < 1 {
		window = 1
	}
	return &FitnessEvaluator{
		params:      params,
		maxTicks:    maxTicks,
		seeds:       seeds,
		baseConfig:  baseCfg,
		statsWindow: window,
		parallel:    parallel,
	}
}

// LastMeanNeighbors returns the structure score from the most recent evaluation.
func (fe *FitnessEvaluator) LastMeanNeighbors() float64 {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastMean
}

// LastNeighborOverflow returns the total truncated neighbor candidates from
// the most recent evaluation.
func (fe *FitnessEvaluator) LastNeighborOverflow() int64 {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastOverflow
}

// runResult holds the results from a single simulation run.
type runResult struct {
	windowStats []telemetry.WindowStats
}

// Evaluate computes fitness for a raw parameter vector (lower = better).
// Fitness is the negated mean neighbor count averaged over seeds.
func (fe *FitnessEvaluator) Evaluate(ctx context.Context, x []float64) (float64, error) {
	results := make([]*runResult, len(fe.seeds))

	eg, ctx := errgroup.WithContext(ctx)
	if fe.parallel > 0 {
		eg.SetLimit(fe.parallel)
	}
	for i, seed := range fe.seeds {
		i, seed := i, seed
		eg.Go(func() error {
			r, err := fe.runSimulation(ctx, x, seed)
			if err != nil {
				return fmt.Errorf("seed %d: %w", seed, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return 0, err
	}

	var total float64
	var overflow int64
	for _, r := range results {
		total += meanNeighbors(r.windowStats)
		for _, w := range r.windowStats {
			overflow += w.NeighborOverflow
		}
	}
	mean := total / float64(len(results))

	fe.mu.Lock()
	fe.lastMean = mean
	fe.lastOverflow = overflow
	fe.mu.Unlock()

	return -mean, nil
}

// runSimulation executes a single headless simulation run.
func (fe *FitnessEvaluator) runSimulation(ctx context.Context, x []float64, seed int64) (*runResult, error) {
	cfg := fe.copyConfig()
	fe.params.ApplyToConfig(cfg, x)
	// Seeds already run concurrently
	cfg.Parallel.Workers = 1

	result := &runResult{}

	g, err := game.NewGameWithOptions(cfg, game.Options{
		Seed:           seed,
		StatsWindow:    fe.statsWindow,
		StepsPerUpdate: 1,
	})
	if err != nil {
		return nil, err
	}
	defer g.Unload()
	g.SetStatsCallback(func(stats telemetry.WindowStats) {
		result.windowStats = append(result.windowStats, stats)
	})

	for g.Tick() < fe.maxTicks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		g.UpdateHeadless()
	}
	return result, nil
}

// copyConfig creates a copy of the base config with telemetry side effects
// disabled.
func (fe *FitnessEvaluator) copyConfig() *config.Config {
	cfg := *fe.baseConfig
	cfg.Evolution.Interval = 0
	cfg.Telemetry.SnapshotEvery = 0
	cfg.ComputeDerived()
	return &cfg
}

// meanNeighbors averages the per-window neighbor mean past warmup.
func meanNeighbors(windows []telemetry.WindowStats) float64 {
	if len(windows) == 0 {
		return 0
	}
	valid := windows
	if len(windows) > qualityWarmupWindows {
		valid = windows[qualityWarmupWindows:]
	}
	var sum float64
	for _, w := range valid {
		sum += w.NeighborsMean
	}
	mean := sum / float64(len(valid))
	if math.IsNaN(mean) {
		return 0
	}
	return mean
}
