// Package game runs the simulation loop: it owns the engine, telemetry,
// periodic particle dumps and optional matrix evolution.
package game

import (
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/pthm-cable/particlelife/config"
	"github.com/pthm-cable/particlelife/interaction"
	"github.com/pthm-cable/particlelife/sim"
	"github.com/pthm-cable/particlelife/telemetry"
)

// Options configures a run beyond the config file.
type Options struct {
	Seed           int64
	LogStats       bool
	StatsWindow    int    // Ticks per stats window, 0 = config
	SnapshotDir    string // Particle dumps go here when set
	OutputDir      string // CSV logs and config snapshot
	MatrixPath     string // Overrides interaction.file
	ParticlesPath  string // Restores a particle dump after creation
	StepsPerUpdate int
}

// Game drives one engine.
type Game struct {
	cfg    *config.Config
	engine *sim.Engine

	rngSeed int64
	rng     *rand.Rand // Matrix randomization and evolution

	collector        *telemetry.Collector
	perfCollector    *telemetry.PerfCollector
	outputManager    *telemetry.OutputManager
	bookmarkDetector *telemetry.BookmarkDetector

	logStats       bool
	snapshotDir    string
	snapshotEvery  int64
	evolveEvery    int64
	stepsPerUpdate int

	statsCallback func(telemetry.WindowStats)

	neighborBuf []int
}

// NewGameWithOptions builds the engine and telemetry for cfg.
func NewGameWithOptions(cfg *config.Config, opts Options) (*Game, error) {
	g := &Game{
		cfg:            cfg,
		rngSeed:        opts.Seed,
		rng:            rand.New(rand.NewSource(opts.Seed)),
		logStats:       opts.LogStats,
		snapshotDir:    opts.SnapshotDir,
		snapshotEvery:  int64(cfg.Telemetry.SnapshotEvery),
		evolveEvery:    int64(cfg.Evolution.Interval),
		stepsPerUpdate: opts.StepsPerUpdate,
	}
	if g.stepsPerUpdate < 1 {
		g.stepsPerUpdate = 1
	}

	simCfg := sim.FromConfig(cfg)
	simCfg.Seed = opts.Seed

	m, err := g.initialMatrix(opts.MatrixPath)
	if err != nil {
		return nil, err
	}
	if m != nil {
		simCfg.Matrix = m.Rows()
	}

	engine, err := sim.New(simCfg)
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	g.engine = engine

	if opts.ParticlesPath != "" {
		ps, err := telemetry.LoadParticles(opts.ParticlesPath)
		if err != nil {
			engine.Close()
			return nil, err
		}
		if err := engine.LoadParticles(ps); err != nil {
			engine.Close()
			return nil, fmt.Errorf("restoring %s: %w", opts.ParticlesPath, err)
		}
	}

	statsWindow := cfg.Telemetry.StatsWindow
	if opts.StatsWindow > 0 {
		statsWindow = opts.StatsWindow
	}
	g.collector = telemetry.NewCollector(statsWindow)
	g.perfCollector = telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow)
	g.bookmarkDetector = telemetry.NewBookmarkDetector(cfg.Telemetry.BookmarkHistorySize)
	engine.SetPerf(g.perfCollector)

	om, err := telemetry.NewOutputManager(opts.OutputDir)
	if err != nil {
		engine.Close()
		return nil, err
	}
	g.outputManager = om
	if err := om.WriteConfig(cfg); err != nil {
		slog.Error("failed to write config", "error", err)
	}
	if err := om.WriteMatrix(engine.Matrix(), "matrix.yaml"); err != nil {
		slog.Error("failed to write matrix", "error", err)
	}

	return g, nil
}

// initialMatrix resolves the starting matrix: an explicit path, then
// interaction.file, then an inline interaction.matrix (returned as nil and
// left to the engine config), then a random matrix from random_range.
func (g *Game) initialMatrix(path string) (*interaction.Matrix, error) {
	if path == "" {
		path = g.cfg.Interaction.File
	}
	if path != "" {
		m, err := interaction.Load(path)
		if err != nil {
			return nil, fmt.Errorf("loading interaction matrix: %w", err)
		}
		return m, nil
	}
	if len(g.cfg.Interaction.Matrix) > 0 {
		return nil, nil
	}

	m, err := interaction.New(g.cfg.Particles.Colors, 0)
	if err != nil {
		return nil, fmt.Errorf("creating random matrix: %w", err)
	}
	m.Randomize(g.rng, float32(g.cfg.Derived.RandomLo), float32(g.cfg.Derived.RandomHi))
	return m, nil
}

// SetStatsCallback registers fn to receive every flushed stats window.
func (g *Game) SetStatsCallback(fn func(telemetry.WindowStats)) {
	g.statsCallback = fn
}

// UpdateHeadless advances StepsPerUpdate ticks and runs the per-tick hooks.
func (g *Game) UpdateHeadless() {
	g.UpdateHeadlessUntil(0)
}

// UpdateHeadlessUntil is UpdateHeadless but stops once the engine reaches
// maxTick. maxTick <= 0 means no limit.
func (g *Game) UpdateHeadlessUntil(maxTick int64) {
	for i := 0; i < g.stepsPerUpdate; i++ {
		if maxTick > 0 && g.engine.Tick() >= maxTick {
			return
		}
		report := g.engine.Step()
		g.collector.RecordTick(report.CellOverflow, report.NeighborOverflow, report.Contacts)

		g.maybeEvolve()
		g.maybeSnapshot()
		g.flushTelemetry()
	}
}

// Engine returns the underlying engine.
func (g *Game) Engine() *sim.Engine {
	return g.engine
}

// Perf returns the phase timer attached to the engine.
func (g *Game) Perf() *telemetry.PerfCollector {
	return g.perfCollector
}

// Tick returns the current simulation tick.
func (g *Game) Tick() int64 {
	return g.engine.Tick()
}

// Unload stops the engine workers and closes output files.
func (g *Game) Unload() {
	g.engine.Close()
	if err := g.outputManager.Close(); err != nil {
		slog.Error("failed to close output", "error", err)
	}
}
