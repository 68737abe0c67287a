package sim

import (
	"errors"
	"fmt"
	"math"

	"github.com/pthm-cable/particlelife/components"
	"github.com/pthm-cable/particlelife/config"
	"github.com/pthm-cable/particlelife/systems"
)

// MaxGridEntries bounds each preallocated index table: grid cells times
// max_particles_per_cell, particles times max_neighbors, and influence
// field cells.
const MaxGridEntries = 1 << 28

// ErrConfiguration is the sentinel every configuration failure unwraps to.
var ErrConfiguration = errors.New("configuration error")

// ConfigError reports an invalid engine configuration field.
type ConfigError struct {
	Field  string
	Reason string
	Err    error // Optional underlying cause
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %s: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Unwrap exposes ErrConfiguration and the underlying cause to errors.Is.
func (e *ConfigError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrConfiguration, e.Err}
	}
	return []error{ErrConfiguration}
}

// CoefficientMode selects the coefficient used by the influence field.
type CoefficientMode string

const (
	// CoefficientDirect uses M[i,j].
	CoefficientDirect CoefficientMode = "direct"
	// CoefficientSecondOrder uses (M*M)[i,j] = sum_k M[i,k]*M[k,j].
	CoefficientSecondOrder CoefficientMode = "second_order"
)

// Config is the engine's explicitly owned configuration.
type Config struct {
	NumParticles int
	Width        float32
	Height       float32
	NumColors    int
	Radius       float32 // Neighbor reach is 2*Radius

	SpeedLo  float32 // Initial per-axis velocity range
	SpeedHi  float32
	MaxSpeed float32
	MinSpeed float32
	Friction float32 // 1 disables friction

	InteractionStrength float32
	Epsilon             float32
	DampingFraction     float32
	DampingExponent     float32

	FieldGridSize int
	FieldGain     float32
	FieldRadius   float32 // 0 = 2*Radius
	Coefficient   CoefficientMode

	CollisionDiameter float32 // 0 = Radius
	AntiStick         float32

	MaxParticlesPerCell int
	MaxNeighbors        int

	Workers int // 0 = GOMAXPROCS, 1 = single-threaded

	Seed            int64
	SpawnMode       string
	PerlinScale     float64
	PerlinThreshold float64

	// Matrix is the initial interaction matrix. Nil means all zeros.
	Matrix [][]float32
}

// DefaultConfig returns the engine configuration from the embedded defaults.
func DefaultConfig() Config {
	return FromConfig(config.Default())
}

// FromConfig converts a loaded configuration into an engine configuration.
// The interaction file and random range are resolved by the caller.
func FromConfig(c *config.Config) Config {
	cfg := Config{
		NumParticles: c.Particles.Count,
		Width:        c.Derived.Width32,
		Height:       c.Derived.Height32,
		NumColors:    c.Particles.Colors,
		Radius:       float32(c.Particles.Radius),

		SpeedLo:  float32(c.Derived.SpeedLo),
		SpeedHi:  float32(c.Derived.SpeedHi),
		MaxSpeed: float32(c.Motion.MaxSpeed),
		MinSpeed: float32(c.Motion.MinSpeed),
		Friction: float32(c.Motion.Friction),

		InteractionStrength: float32(c.Forces.InteractionStrength),
		Epsilon:             float32(c.Forces.Epsilon),
		DampingFraction:     float32(c.Forces.DampingFraction),
		DampingExponent:     float32(c.Forces.DampingExponent),

		FieldGridSize: c.Forces.Influence.GridSize,
		FieldGain:     float32(c.Forces.Influence.Gain),
		FieldRadius:   float32(c.Derived.InfluenceRadius),
		Coefficient:   CoefficientMode(c.Forces.Influence.Coefficient),

		CollisionDiameter: float32(c.Derived.CollisionDiameter),
		AntiStick:         float32(c.Collision.AntiStick),

		MaxParticlesPerCell: c.Capacity.MaxParticlesPerCell,
		MaxNeighbors:        c.Capacity.MaxNeighbors,

		Workers: c.Parallel.Workers,

		SpawnMode:       c.Particles.Spawn.Mode,
		PerlinScale:     c.Particles.Spawn.PerlinScale,
		PerlinThreshold: c.Particles.Spawn.PerlinThreshold,
	}

	if len(c.Interaction.Matrix) > 0 {
		cfg.Matrix = make([][]float32, len(c.Interaction.Matrix))
		for i, row := range c.Interaction.Matrix {
			cfg.Matrix[i] = make([]float32, len(row))
			for j, v := range row {
				cfg.Matrix[i][j] = float32(v)
			}
		}
	}
	return cfg
}

// Validate checks the configuration. The returned error is a *ConfigError.
func (c *Config) Validate() error {
	for _, f := range []struct {
		name string
		v    float32
	}{
		{"domain", c.Width},
		{"domain", c.Height},
		{"radius", c.Radius},
		{"speed_range", c.SpeedLo},
		{"speed_range", c.SpeedHi},
		{"max_speed", c.MaxSpeed},
		{"min_speed", c.MinSpeed},
		{"friction", c.Friction},
		{"interaction_strength", c.InteractionStrength},
		{"epsilon", c.Epsilon},
		{"influence.radius", c.FieldRadius},
		{"collision.diameter", c.CollisionDiameter},
	} {
		if !finite(f.v) {
			return &ConfigError{Field: f.name, Reason: fmt.Sprintf("%v is not finite", f.v)}
		}
	}

	switch {
	case c.NumParticles < 0:
		return &ConfigError{Field: "num_particles", Reason: fmt.Sprintf("%d is negative", c.NumParticles)}
	case c.Width <= 0 || c.Height <= 0:
		return &ConfigError{Field: "domain", Reason: fmt.Sprintf("%vx%v is not positive", c.Width, c.Height)}
	case c.NumColors <= 0:
		return &ConfigError{Field: "num_colors", Reason: fmt.Sprintf("%d is not positive", c.NumColors)}
	case c.Radius <= 0:
		return &ConfigError{Field: "radius", Reason: fmt.Sprintf("%v is not positive", c.Radius)}
	case c.SpeedLo > c.SpeedHi:
		return &ConfigError{Field: "speed_range", Reason: fmt.Sprintf("[%v, %v] is inverted", c.SpeedLo, c.SpeedHi)}
	case c.MaxSpeed <= 0:
		return &ConfigError{Field: "max_speed", Reason: fmt.Sprintf("%v is not positive", c.MaxSpeed)}
	case c.MinSpeed < 0 || c.MinSpeed > c.MaxSpeed:
		return &ConfigError{Field: "min_speed", Reason: fmt.Sprintf("%v is outside [0, max_speed]", c.MinSpeed)}
	case c.Friction <= 0 || c.Friction > 1:
		return &ConfigError{Field: "friction", Reason: fmt.Sprintf("%v is outside (0, 1]", c.Friction)}
	case c.Epsilon < 0:
		return &ConfigError{Field: "epsilon", Reason: fmt.Sprintf("%v is negative", c.Epsilon)}
	case c.FieldGridSize < 1:
		return &ConfigError{Field: "influence.grid_size", Reason: fmt.Sprintf("%d is below 1", c.FieldGridSize)}
	case c.FieldRadius < 0:
		return &ConfigError{Field: "influence.radius", Reason: fmt.Sprintf("%v is negative", c.FieldRadius)}
	case c.CollisionDiameter < 0:
		return &ConfigError{Field: "collision.diameter", Reason: fmt.Sprintf("%v is negative", c.CollisionDiameter)}
	case c.MaxParticlesPerCell < 1:
		return &ConfigError{Field: "capacity.max_particles_per_cell", Reason: fmt.Sprintf("%d is below 1", c.MaxParticlesPerCell)}
	case c.MaxNeighbors < 1:
		return &ConfigError{Field: "capacity.max_neighbors", Reason: fmt.Sprintf("%d is below 1", c.MaxNeighbors)}
	case c.Workers < 0:
		return &ConfigError{Field: "workers", Reason: fmt.Sprintf("%d is negative", c.Workers)}
	}

	_, cols, rows := systems.GridCells(c.Width, c.Height, c.Radius)
	if entries := cols * rows * float64(c.MaxParticlesPerCell); entries > MaxGridEntries {
		return &ConfigError{Field: "capacity", Reason: fmt.Sprintf("%.0fx%.0f cells of %d slots exceeds %d entries", cols, rows, c.MaxParticlesPerCell, MaxGridEntries)}
	}
	if entries := float64(c.NumParticles) * float64(c.MaxNeighbors); entries > MaxGridEntries {
		return &ConfigError{Field: "capacity", Reason: fmt.Sprintf("%d particles with %d neighbors exceeds %d entries", c.NumParticles, c.MaxNeighbors, MaxGridEntries)}
	}
	if entries := 2 * float64(c.FieldGridSize) * float64(c.FieldGridSize); entries > MaxGridEntries {
		return &ConfigError{Field: "influence.grid_size", Reason: fmt.Sprintf("%d exceeds %d entries", c.FieldGridSize, MaxGridEntries)}
	}

	switch c.Coefficient {
	case "", CoefficientDirect, CoefficientSecondOrder:
	default:
		return &ConfigError{Field: "influence.coefficient", Reason: fmt.Sprintf("unknown mode %q", c.Coefficient)}
	}

	switch c.SpawnMode {
	case "", components.SpawnUniform, components.SpawnPerlin:
	default:
		return &ConfigError{Field: "spawn.mode", Reason: fmt.Sprintf("unknown mode %q", c.SpawnMode)}
	}

	return nil
}

func finite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// spawnParams builds the particle generator parameters.
func (c *Config) spawnParams() components.SpawnParams {
	return components.SpawnParams{
		Count:           c.NumParticles,
		Width:           c.Width,
		Height:          c.Height,
		Radius:          c.Radius,
		SpeedLo:         c.SpeedLo,
		SpeedHi:         c.SpeedHi,
		NumColors:       c.NumColors,
		Mode:            c.SpawnMode,
		PerlinScale:     c.PerlinScale,
		PerlinThreshold: c.PerlinThreshold,
	}
}
