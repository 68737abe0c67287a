// Package sim sequences the particle-life passes into one deterministic tick.
package sim

import (
	"fmt"
	"math/rand"
	"sync/atomic"

	"github.com/pthm-cable/particlelife/components"
	"github.com/pthm-cable/particlelife/interaction"
	"github.com/pthm-cable/particlelife/systems"
	"github.com/pthm-cable/particlelife/telemetry"
)

// PhaseTimer receives tick and phase boundaries. *telemetry.PerfCollector
// implements it.
type PhaseTimer interface {
	StartTick()
	StartPhase(phase string)
	EndTick()
}

// StepReport summarizes one tick.
type StepReport struct {
	Tick             int64
	CellOverflow     int // Particles dropped from a full grid cell
	NeighborOverflow int // Neighbor candidates dropped from a full list
	Contacts         int // Collision contacts resolved
}

// Counters are cumulative since the engine was created.
type Counters struct {
	Ticks            int64
	CellOverflow     int64
	NeighborOverflow int64
	Contacts         int64
}

// matrices is the unit swapped on a matrix replace: the force matrix and the
// influence coefficient matrix derived from it.
type matrices struct {
	force *interaction.Matrix
	coef  *interaction.Matrix
}

// Engine owns a particle store and advances it one tick per Step.
//
// Step, GenerateParticles, LoadParticles and the state accessors must be
// called from one goroutine. SetInteractionMatrix may be called from any
// goroutine; the new matrix takes effect at the start of the next Step.
type Engine struct {
	cfg    Config
	params systems.Params

	store *components.Store
	grid  *systems.SpatialGrid
	field *systems.InfluenceField
	corr  systems.Corrections

	mats atomic.Pointer[matrices]

	rng  *rand.Rand
	pool *workerPool
	perf PhaseTimer

	tick     int64
	counters Counters
}

// New validates cfg, builds the engine and generates the initial particles.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Coefficient == "" {
		cfg.Coefficient = CoefficientDirect
	}
	if cfg.SpawnMode == "" {
		cfg.SpawnMode = components.SpawnUniform
	}

	m, err := interaction.New(cfg.NumColors, 0)
	if err != nil {
		return nil, &ConfigError{Field: "num_colors", Reason: "cannot build matrix", Err: err}
	}
	if cfg.Matrix != nil {
		if err := m.SetFull(cfg.Matrix); err != nil {
			return nil, &ConfigError{Field: "matrix", Reason: "does not match num_colors", Err: err}
		}
	}

	e := &Engine{
		cfg:    cfg,
		params: paramsFor(&cfg),
		grid:   systems.NewSpatialGrid(cfg.Width, cfg.Height, cfg.Radius, cfg.MaxParticlesPerCell, cfg.MaxNeighbors),
		field:  systems.NewInfluenceField(cfg.FieldGridSize, cfg.Width, cfg.Height),
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		pool:   newWorkerPool(cfg.Workers),
	}
	e.install(m)
	e.store = components.NewStore(components.Generate(e.rng, cfg.spawnParams()))
	e.corr.Resize(cfg.NumParticles)
	e.field.Prepare(cfg.NumParticles)

	return e, nil
}

// paramsFor derives the per-pass constants.
func paramsFor(cfg *Config) systems.Params {
	diameter := 2 * cfg.Radius
	fieldRadius := cfg.FieldRadius
	if fieldRadius <= 0 {
		fieldRadius = diameter
	}
	collision := cfg.CollisionDiameter
	if collision <= 0 {
		collision = cfg.Radius
	}

	return systems.Params{
		Width:               cfg.Width,
		Height:              cfg.Height,
		InteractionStrength: cfg.InteractionStrength,
		InteractionRadiusSq: diameter * diameter,
		Epsilon:             cfg.Epsilon,
		DampingStart:        cfg.DampingFraction * diameter,
		DampingExponent:     cfg.DampingExponent,
		FieldGain:           cfg.FieldGain,
		FieldRadiusSq:       fieldRadius * fieldRadius,
		MaxSpeed:            cfg.MaxSpeed,
		MinSpeed:            cfg.MinSpeed,
		Friction:            cfg.Friction,
		CollisionDiameter:   collision,
		AntiStick:           cfg.AntiStick,
	}
}

// install publishes m (which the engine then owns) for subsequent ticks.
func (e *Engine) install(m *interaction.Matrix) {
	coef := m
	if e.cfg.Coefficient == CoefficientSecondOrder {
		coef = m.SecondOrder()
	}
	e.mats.Store(&matrices{force: m, coef: coef})
}

// SetInteractionMatrix replaces the whole interaction matrix. A matrix whose
// shape is not num_colors x num_colors is rejected with an error wrapping
// interaction.ErrShapeMismatch and the current matrix stays in effect.
func (e *Engine) SetInteractionMatrix(rows [][]float32) error {
	m, err := interaction.New(e.cfg.NumColors, 0)
	if err != nil {
		return err
	}
	if err := m.SetFull(rows); err != nil {
		return fmt.Errorf("set interaction matrix: %w", err)
	}
	e.install(m)
	return nil
}

// SetMatrix is SetInteractionMatrix for an already built matrix. The engine
// keeps its own copy.
func (e *Engine) SetMatrix(m *interaction.Matrix) error {
	if m.Size() != e.cfg.NumColors {
		return fmt.Errorf("set matrix: %d colors, engine has %d: %w", m.Size(), e.cfg.NumColors, interaction.ErrShapeMismatch)
	}
	e.install(m.Clone())
	return nil
}

// Matrix returns a copy of the active interaction matrix.
func (e *Engine) Matrix() *interaction.Matrix {
	return e.mats.Load().force.Clone()
}

// GenerateParticles re-initializes the store with random state drawn from
// the engine's seeded generator.
func (e *Engine) GenerateParticles() {
	e.store.Reset(components.Generate(e.rng, e.cfg.spawnParams()))
}

// LoadParticles replaces the store with ps, which must hold num_particles
// records with valid colors. Positions are wrapped into the domain.
func (e *Engine) LoadParticles(ps []components.Particle) error {
	if len(ps) != e.store.Len() {
		return &ConfigError{Field: "particles", Reason: fmt.Sprintf("got %d records, want %d", len(ps), e.store.Len())}
	}
	loaded := make([]components.Particle, len(ps))
	for i, p := range ps {
		if p.Color < 0 || int(p.Color) >= e.cfg.NumColors {
			return &ConfigError{Field: "particles", Reason: fmt.Sprintf("record %d has color %d outside [0, %d)", i, p.Color, e.cfg.NumColors)}
		}
		p.X = systems.Wrap(p.X, e.cfg.Width)
		p.Y = systems.Wrap(p.Y, e.cfg.Height)
		loaded[i] = p
	}
	e.store.Reset(loaded)
	return nil
}

// SetPerf attaches a phase timer. Nil detaches it.
func (e *Engine) SetPerf(p PhaseTimer) {
	e.perf = p
}

func (e *Engine) phase(name string) {
	if e.perf != nil {
		e.perf.StartPhase(name)
	}
}

// Step advances the simulation one tick and publishes the new state.
//
// Every pass reads the tick-start state and writes only each particle's own
// slot in the next buffer, so the result does not depend on worker count or
// iteration order.
func (e *Engine) Step() StepReport {
	if e.perf != nil {
		e.perf.StartTick()
	}

	mats := e.mats.Load()
	cur := e.store.Current()
	next := e.store.Next()
	n := len(cur)
	p := &e.params

	e.phase(telemetry.PhaseSpatialIndex)
	cellOverflow := e.grid.Build(cur)
	neighborOverflow := e.pool.run(n, func(i0, i1 int) int {
		return e.grid.QueryRange(cur, i0, i1)
	})

	e.phase(telemetry.PhaseInfluenceField)
	e.field.Prepare(n)
	e.pool.run(n, func(i0, i1 int) int {
		e.field.ContributeRange(cur, e.grid, mats.coef, p, i0, i1)
		return 0
	})
	e.field.Reduce()

	e.phase(telemetry.PhasePreAdjust)
	e.pool.run(n, func(i0, i1 int) int {
		systems.PreAdjustRange(cur, next, e.field, p, i0, i1)
		return 0
	})

	e.phase(telemetry.PhasePairwise)
	e.pool.run(n, func(i0, i1 int) int {
		systems.PairwiseRange(cur, next, e.grid, mats.force, p, i0, i1)
		return 0
	})

	e.phase(telemetry.PhaseIntegrate)
	e.pool.run(n, func(i0, i1 int) int {
		systems.AdvanceRange(next, p, i0, i1)
		return 0
	})

	// Detection reads the advanced buffer read-only; application then
	// touches only each particle's own slot.
	e.phase(telemetry.PhaseCollision)
	e.corr.Resize(n)
	contacts := e.pool.run(n, func(i0, i1 int) int {
		return systems.CollideRange(next, e.grid, p, &e.corr, i0, i1)
	})
	e.pool.run(n, func(i0, i1 int) int {
		systems.ApplyCorrectionsRange(next, &e.corr, p, i0, i1)
		return 0
	})

	e.store.Swap()
	e.tick++

	report := StepReport{
		Tick:             e.tick,
		CellOverflow:     cellOverflow,
		NeighborOverflow: neighborOverflow,
		Contacts:         contacts,
	}
	e.counters.Ticks = e.tick
	e.counters.CellOverflow += int64(cellOverflow)
	e.counters.NeighborOverflow += int64(neighborOverflow)
	e.counters.Contacts += int64(contacts)

	if e.perf != nil {
		e.perf.EndTick()
	}
	return report
}

// PositionsAndColors appends (x, y, color) for every particle in index order.
func (e *Engine) PositionsAndColors(dst []components.PositionColor) []components.PositionColor {
	return e.store.PositionsAndColors(dst)
}

// Particles returns a copy of the current particle state.
func (e *Engine) Particles() []components.Particle {
	return e.store.Snapshot()
}

// NeighborCounts appends each particle's neighbor count from the last tick.
func (e *Engine) NeighborCounts(dst []int) []int {
	dst = dst[:0]
	if e.tick == 0 {
		return dst
	}
	for i := 0; i < e.store.Len(); i++ {
		dst = append(dst, e.grid.NeighborCount(i))
	}
	return dst
}

// FieldNorm returns the norm of the influence field from the last tick.
func (e *Engine) FieldNorm() float32 {
	return e.field.Norm()
}

// Tick returns the number of completed steps.
func (e *Engine) Tick() int64 {
	return e.tick
}

// Counters returns the cumulative counters.
func (e *Engine) Counters() Counters {
	return e.counters
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Close stops the worker pool. The engine must not be stepped afterwards.
func (e *Engine) Close() {
	e.pool.stop()
}
