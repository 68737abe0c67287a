package sim

import (
	"errors"
	"math"
	"testing"

	"github.com/pthm-cable/particlelife/components"
	"github.com/pthm-cable/particlelife/interaction"
)

// smallConfig returns a config for hand-placed scenario tests.
func smallConfig(n int) Config {
	cfg := DefaultConfig()
	cfg.NumParticles = n
	cfg.Width = 100
	cfg.Height = 100
	cfg.NumColors = 1
	cfg.Radius = 8
	cfg.InteractionStrength = 0.1
	cfg.CollisionDiameter = 0
	cfg.FieldRadius = 0
	cfg.Workers = 1
	return cfg
}

func newEngine(t testing.TB, cfg Config) *Engine {
	t.Helper()
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

func speed(p components.Particle) float64 {
	return math.Hypot(float64(p.VX), float64(p.VY))
}

func TestTwoParticleAttraction(t *testing.T) {
	e := newEngine(t, smallConfig(2))
	if err := e.SetInteractionMatrix([][]float32{{1.0}}); err != nil {
		t.Fatalf("SetInteractionMatrix: %v", err)
	}
	if err := e.LoadParticles([]components.Particle{
		{X: 10, Y: 50},
		{X: 20, Y: 50},
	}); err != nil {
		t.Fatalf("LoadParticles: %v", err)
	}

	e.Step()
	ps := e.Particles()

	sep := math.Abs(float64(ps[1].X - ps[0].X))
	if sep >= 10 {
		t.Errorf("separation = %v, want < 10", sep)
	}
	for i, p := range ps {
		if p.X < 0 || p.X >= 100 {
			t.Errorf("particle %d x = %v outside domain", i, p.X)
		}
	}
}

func TestRepulsionSeparatesOverlap(t *testing.T) {
	e := newEngine(t, smallConfig(2))
	if err := e.SetInteractionMatrix([][]float32{{0}}); err != nil {
		t.Fatalf("SetInteractionMatrix: %v", err)
	}
	if err := e.LoadParticles([]components.Particle{
		{X: 50, Y: 50},
		{X: 53, Y: 50},
	}); err != nil {
		t.Fatalf("LoadParticles: %v", err)
	}

	report := e.Step()
	ps := e.Particles()

	if report.Contacts != 2 {
		t.Errorf("Contacts = %d, want 2", report.Contacts)
	}
	sep := math.Abs(float64(ps[1].X - ps[0].X))
	if sep <= 3 {
		t.Errorf("separation = %v, want > 3", sep)
	}
	if sep < float64(e.params.CollisionDiameter) {
		t.Errorf("separation = %v, want >= contact diameter %v", sep, e.params.CollisionDiameter)
	}
}

func TestRepulsionSeparatesAtFullDiameter(t *testing.T) {
	cfg := smallConfig(2)
	cfg.CollisionDiameter = 2 * cfg.Radius
	e := newEngine(t, cfg)
	if err := e.SetInteractionMatrix([][]float32{{0}}); err != nil {
		t.Fatalf("SetInteractionMatrix: %v", err)
	}
	// r <= dist < 2r is outside the default contact distance
	if err := e.LoadParticles([]components.Particle{
		{X: 50, Y: 50},
		{X: 62, Y: 50},
	}); err != nil {
		t.Fatalf("LoadParticles: %v", err)
	}

	report := e.Step()
	ps := e.Particles()

	if report.Contacts != 2 {
		t.Errorf("Contacts = %d, want 2", report.Contacts)
	}
	sep := math.Abs(float64(ps[1].X - ps[0].X))
	if sep <= 12 {
		t.Errorf("separation = %v, want > 12", sep)
	}
	if sep < 16 {
		t.Errorf("separation = %v, want >= diameter 16", sep)
	}
}

func TestWraparound(t *testing.T) {
	e := newEngine(t, smallConfig(1))
	if err := e.LoadParticles([]components.Particle{{X: 99.5, Y: 50, VX: 1}}); err != nil {
		t.Fatalf("LoadParticles: %v", err)
	}

	e.Step()
	p := e.Particles()[0]

	if math.Abs(float64(p.X)-0.5) > 1e-3 {
		t.Errorf("x = %v, want ~0.5", p.X)
	}
}

func TestContainmentAndSpeedBounds(t *testing.T) {
	tests := []struct {
		name        string
		coefficient CoefficientMode
		spawn       string
	}{
		{"direct", CoefficientDirect, components.SpawnUniform},
		{"second order", CoefficientSecondOrder, components.SpawnUniform},
		{"perlin spawn", CoefficientDirect, components.SpawnPerlin},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.NumParticles = 800
			cfg.Width = 320
			cfg.Height = 240
			cfg.NumColors = 3
			cfg.Seed = 11
			cfg.Coefficient = tc.coefficient
			cfg.SpawnMode = tc.spawn
			cfg.Workers = 4
			cfg.Matrix = [][]float32{
				{1, -0.5, 0.3},
				{0.2, 0.8, -1},
				{-0.7, 0.4, 0.6},
			}
			e := newEngine(t, cfg)

			const tol = 1e-4
			for tick := 0; tick < 60; tick++ {
				e.Step()
				for i, p := range e.Particles() {
					if p.X < 0 || p.X >= cfg.Width || p.Y < 0 || p.Y >= cfg.Height {
						t.Fatalf("tick %d: particle %d at (%v, %v) outside domain", tick, i, p.X, p.Y)
					}
					s := speed(p)
					if s == 0 {
						continue
					}
					if s > float64(cfg.MaxSpeed)+tol || s < float64(cfg.MinSpeed)-tol {
						t.Fatalf("tick %d: particle %d speed %v outside [%v, %v]", tick, i, s, cfg.MinSpeed, cfg.MaxSpeed)
					}
				}
			}
		})
	}
}

func TestZeroVelocityStaysZero(t *testing.T) {
	e := newEngine(t, smallConfig(1))
	if err := e.LoadParticles([]components.Particle{{X: 30, Y: 30}}); err != nil {
		t.Fatalf("LoadParticles: %v", err)
	}
	for i := 0; i < 5; i++ {
		e.Step()
	}
	if p := e.Particles()[0]; p.VX != 0 || p.VY != 0 || p.X != 30 || p.Y != 30 {
		t.Errorf("isolated resting particle moved: %+v", p)
	}
}

func runTicks(t *testing.T, cfg Config, ticks int) []components.Particle {
	t.Helper()
	e := newEngine(t, cfg)
	for i := 0; i < ticks; i++ {
		e.Step()
	}
	return e.Particles()
}

func TestDeterminism(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NumParticles = 1500
	cfg.Width = 400
	cfg.Height = 300
	cfg.Seed = 42
	cfg.NumColors = 2
	cfg.Matrix = [][]float32{{0.5, -1}, {1, -0.2}}

	cfg.Workers = 1
	serial := runTicks(t, cfg, 40)

	for _, workers := range []int{2, 3, 8} {
		cfg.Workers = workers
		parallel := runTicks(t, cfg, 40)
		for i := range serial {
			if serial[i] != parallel[i] {
				t.Fatalf("workers=%d: particle %d differs: %+v vs %+v", workers, i, serial[i], parallel[i])
			}
		}
	}

	// Different seed, different run
	cfg.Seed = 43
	other := runTicks(t, cfg, 40)
	same := true
	for i := range other {
		if other[i] != serial[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different seeds produced identical state")
	}
}

func TestConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero width", func(c *Config) { c.Width = 0 }, "domain"},
		{"negative height", func(c *Config) { c.Height = -5 }, "domain"},
		{"no colors", func(c *Config) { c.NumColors = 0 }, "num_colors"},
		{"zero radius", func(c *Config) { c.Radius = 0 }, "radius"},
		{"min above max", func(c *Config) { c.MinSpeed = 3 }, "min_speed"},
		{"friction above one", func(c *Config) { c.Friction = 1.5 }, "friction"},
		{"no cell capacity", func(c *Config) { c.MaxParticlesPerCell = 0 }, "capacity.max_particles_per_cell"},
		{"unknown coefficient", func(c *Config) { c.Coefficient = "cubic" }, "influence.coefficient"},
		{"unknown spawn", func(c *Config) { c.SpawnMode = "grid" }, "spawn.mode"},
		{"matrix shape", func(c *Config) { c.Matrix = [][]float32{{1, 2}} }, "matrix"},
		{"nan width", func(c *Config) { c.Width = float32(math.NaN()) }, "domain"},
		{"infinite height", func(c *Config) { c.Height = float32(math.Inf(1)) }, "domain"},
		{"nan radius", func(c *Config) { c.Radius = float32(math.NaN()) }, "radius"},
		{"infinite max speed", func(c *Config) { c.MaxSpeed = float32(math.Inf(1)) }, "max_speed"},
		{"nan strength", func(c *Config) { c.InteractionStrength = float32(math.NaN()) }, "interaction_strength"},
		{"nan field radius", func(c *Config) { c.FieldRadius = float32(math.NaN()) }, "influence.radius"},
		{"infinite collision diameter", func(c *Config) { c.CollisionDiameter = float32(math.Inf(-1)) }, "collision.diameter"},
		{"grid too large", func(c *Config) {
			c.Width, c.Height, c.Radius = 1e7, 1e7, 0.5
		}, "capacity"},
		{"neighbor table too large", func(c *Config) {
			c.NumParticles, c.MaxNeighbors = 1<<20, 1<<10
		}, "capacity"},
		{"field too large", func(c *Config) { c.FieldGridSize = 1 << 15 }, "influence.grid_size"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)

			e, err := New(cfg)
			if err == nil {
				e.Close()
				t.Fatal("New succeeded, want configuration error")
			}
			if !errors.Is(err, ErrConfiguration) {
				t.Errorf("err = %v, want ErrConfiguration", err)
			}
			var cerr *ConfigError
			if !errors.As(err, &cerr) || cerr.Field != tc.field {
				t.Errorf("err = %v, want field %q", err, tc.field)
			}
		})
	}
}

func TestConfigMatrixShapeUnwraps(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Matrix = [][]float32{{1}}
	_, err := New(cfg)
	if !errors.Is(err, interaction.ErrShapeMismatch) {
		t.Errorf("err = %v, want ErrShapeMismatch in chain", err)
	}
}

func TestSetInteractionMatrixShapeMismatch(t *testing.T) {
	cfg := smallConfig(4)
	cfg.NumColors = 2
	cfg.Matrix = [][]float32{{1, 2}, {3, 4}}
	e := newEngine(t, cfg)

	err := e.SetInteractionMatrix([][]float32{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}})
	if !errors.Is(err, interaction.ErrShapeMismatch) {
		t.Fatalf("err = %v, want ErrShapeMismatch", err)
	}

	m := e.Matrix()
	if m.Get(1, 0) != 3 {
		t.Errorf("matrix changed after rejected replace: %v", m.Rows())
	}

	// Returned matrix is a copy
	_ = m.Set(1, 0, -9)
	if e.Matrix().Get(1, 0) != 3 {
		t.Error("Matrix() aliases engine state")
	}
}

func TestSetMatrixTakesEffect(t *testing.T) {
	e := newEngine(t, smallConfig(2))
	if err := e.LoadParticles([]components.Particle{{X: 10, Y: 50}, {X: 20, Y: 50}}); err != nil {
		t.Fatalf("LoadParticles: %v", err)
	}

	m, _ := interaction.New(1, -1)
	if err := e.SetMatrix(m); err != nil {
		t.Fatalf("SetMatrix: %v", err)
	}
	e.Step()
	ps := e.Particles()
	if sep := ps[1].X - ps[0].X; sep <= 10 {
		t.Errorf("separation = %v, want > 10 under repulsion", sep)
	}

	wrong, _ := interaction.New(3, 0)
	if err := e.SetMatrix(wrong); !errors.Is(err, interaction.ErrShapeMismatch) {
		t.Errorf("SetMatrix(3x3) err = %v, want ErrShapeMismatch", err)
	}
}

func TestLoadParticlesValidation(t *testing.T) {
	e := newEngine(t, smallConfig(2))

	if err := e.LoadParticles([]components.Particle{{}}); !errors.Is(err, ErrConfiguration) {
		t.Errorf("short dump err = %v, want ErrConfiguration", err)
	}
	if err := e.LoadParticles([]components.Particle{{}, {Color: 1}}); !errors.Is(err, ErrConfiguration) {
		t.Errorf("bad color err = %v, want ErrConfiguration", err)
	}
	if err := e.LoadParticles([]components.Particle{{X: 105, Y: -1}, {}}); err != nil {
		t.Fatalf("LoadParticles: %v", err)
	}
	p := e.Particles()[0]
	if math.Abs(float64(p.X)-5) > 1e-4 || math.Abs(float64(p.Y)-99) > 1e-4 {
		t.Errorf("loaded position not wrapped: (%v, %v)", p.X, p.Y)
	}
}

func TestGenerateParticles(t *testing.T) {
	cfg := smallConfig(50)
	cfg.NumColors = 4
	e := newEngine(t, cfg)

	before := e.Particles()
	e.GenerateParticles()
	after := e.PositionsAndColors(nil)

	if len(after) != 50 {
		t.Fatalf("len = %d, want 50", len(after))
	}
	changed := false
	for i := range after {
		if after[i].Color < 0 || after[i].Color >= 4 {
			t.Errorf("particle %d color %d out of range", i, after[i].Color)
		}
		if after[i].X != before[i].X {
			changed = true
		}
	}
	if !changed {
		t.Error("GenerateParticles did not reinitialize the store")
	}
}

type recordingTimer struct {
	ticks  int
	phases []string
}

func (r *recordingTimer) StartTick()          { r.ticks++; r.phases = r.phases[:0] }
func (r *recordingTimer) StartPhase(p string) { r.phases = append(r.phases, p) }
func (r *recordingTimer) EndTick()            {}

func TestStepReportsPhasesAndCounters(t *testing.T) {
	cfg := smallConfig(30)
	cfg.MaxNeighbors = 1
	e := newEngine(t, cfg)

	// All particles stacked in one spot overflow the neighbor lists
	ps := make([]components.Particle, 30)
	for i := range ps {
		ps[i] = components.Particle{X: 50 + float32(i)*0.01, Y: 50}
	}
	if err := e.LoadParticles(ps); err != nil {
		t.Fatalf("LoadParticles: %v", err)
	}

	timer := &recordingTimer{}
	e.SetPerf(timer)
	report := e.Step()

	if report.Tick != 1 || e.Tick() != 1 {
		t.Errorf("tick = %d/%d, want 1", report.Tick, e.Tick())
	}
	if report.NeighborOverflow != 30*28 {
		t.Errorf("NeighborOverflow = %d, want %d", report.NeighborOverflow, 30*28)
	}
	if got := e.Counters().NeighborOverflow; got != int64(report.NeighborOverflow) {
		t.Errorf("cumulative NeighborOverflow = %d", got)
	}
	if timer.ticks != 1 || len(timer.phases) != 6 {
		t.Errorf("timer saw %d ticks, phases %v", timer.ticks, timer.phases)
	}
	counts := e.NeighborCounts(nil)
	if len(counts) != 30 || counts[0] != 1 {
		t.Errorf("NeighborCounts = %v", counts)
	}
}

func BenchmarkStep(b *testing.B) {
	cfg := DefaultConfig()
	cfg.NumParticles = 10000
	e := newEngine(b, cfg)

	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		e.Step()
	}
}
