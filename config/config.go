// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all simulation configuration parameters.
type Config struct {
	World       WorldConfig       `yaml:"world"`
	Particles   ParticlesConfig   `yaml:"particles"`
	Motion      MotionConfig      `yaml:"motion"`
	Forces      ForcesConfig      `yaml:"forces"`
	Collision   CollisionConfig   `yaml:"collision"`
	Capacity    CapacityConfig    `yaml:"capacity"`
	Parallel    ParallelConfig    `yaml:"parallel"`
	Interaction InteractionConfig `yaml:"interaction"`
	Evolution   EvolutionConfig   `yaml:"evolution"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// WorldConfig holds the toroidal domain dimensions.
type WorldConfig struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}

// ParticlesConfig holds particle store creation parameters.
type ParticlesConfig struct {
	Count      int         `yaml:"count"`
	Colors     int         `yaml:"colors"`
	Radius     float64     `yaml:"radius"`      // Interaction reach; the neighbor threshold is 2*radius
	SpeedRange []float64   `yaml:"speed_range"` // [lo, hi] per-axis initial velocity
	Spawn      SpawnConfig `yaml:"spawn"`
}

// SpawnConfig selects how initial positions are drawn.
type SpawnConfig struct {
	Mode            string  `yaml:"mode"`             // uniform | perlin
	PerlinScale     float64 `yaml:"perlin_scale"`     // Noise frequency per world unit
	PerlinThreshold float64 `yaml:"perlin_threshold"` // Noise below this is rejected
}

// MotionConfig holds speed limits and friction.
type MotionConfig struct {
	MaxSpeed float64 `yaml:"max_speed"`
	MinSpeed float64 `yaml:"min_speed"`
	Friction float64 `yaml:"friction"` // Velocity multiplier per tick, 1 = off
}

// ForcesConfig holds the pairwise force and influence field parameters.
type ForcesConfig struct {
	InteractionStrength float64         `yaml:"interaction_strength"`
	Epsilon             float64         `yaml:"epsilon"`          // Squared-distance floor for singular pairs
	DampingFraction     float64         `yaml:"damping_fraction"` // Fraction of the diameter where damping starts
	DampingExponent     float64         `yaml:"damping_exponent"`
	Influence           InfluenceConfig `yaml:"influence"`
}

// InfluenceConfig holds the coarse influence field parameters.
type InfluenceConfig struct {
	GridSize    int     `yaml:"grid_size"`
	Gain        float64 `yaml:"gain"`
	Radius      float64 `yaml:"radius"`      // 0 = 2*radius
	Coefficient string  `yaml:"coefficient"` // direct | second_order
}

// CollisionConfig holds contact resolution parameters.
type CollisionConfig struct {
	Diameter  float64 `yaml:"diameter"`   // Contact distance, 0 = radius
	AntiStick float64 `yaml:"anti_stick"` // Fraction of own velocity re-added on contact
}

// CapacityConfig holds the bounded-cost limits of the spatial index.
type CapacityConfig struct {
	MaxParticlesPerCell int `yaml:"max_particles_per_cell"`
	MaxNeighbors        int `yaml:"max_neighbors"`
}

// ParallelConfig holds worker pool settings.
type ParallelConfig struct {
	Workers int `yaml:"workers"` // 0 = GOMAXPROCS
}

// InteractionConfig describes where the initial interaction matrix comes from.
// Precedence: file, then matrix, then a random matrix drawn from random_range.
type InteractionConfig struct {
	File        string      `yaml:"file"`
	RandomRange []float64   `yaml:"random_range"`
	Matrix      [][]float64 `yaml:"matrix"`
}

// EvolutionConfig holds optional periodic matrix mutation.
type EvolutionConfig struct {
	Interval int     `yaml:"interval"` // Ticks between mutations, 0 = off
	Sigma    float64 `yaml:"sigma"`
	Limit    float64 `yaml:"limit"` // Entries are clamped to [-limit, limit]
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	StatsWindow   int `yaml:"stats_window"`   // Ticks per stats window
	PerfWindow    int `yaml:"perf_window"`    // Ticks averaged by the perf collector
	SnapshotEvery int `yaml:"snapshot_every"` // Ticks between particle dumps, 0 = off

	BookmarkHistorySize int `yaml:"bookmark_history_size"` // Windows kept for bookmark detection
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	Width32           float32
	Height32          float32
	Diameter          float64 // 2 * radius
	InfluenceRadius   float64 // Effective influence field reach
	CollisionDiameter float64 // Effective contact distance
	SpeedLo, SpeedHi  float64
	RandomLo          float64
	RandomHi          float64
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Default returns a fresh copy of the embedded defaults.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults are invalid: %v", err))
	}
	return cfg
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.ComputeDerived()

	return cfg, nil
}

// ComputeDerived calculates values derived from loaded config.
// Call it again after editing a Config in code.
func (c *Config) ComputeDerived() {
	c.Derived.Width32 = float32(c.World.Width)
	c.Derived.Height32 = float32(c.World.Height)
	c.Derived.Diameter = 2 * c.Particles.Radius

	c.Derived.InfluenceRadius = c.Forces.Influence.Radius
	if c.Derived.InfluenceRadius <= 0 {
		c.Derived.InfluenceRadius = c.Derived.Diameter
	}

	c.Derived.CollisionDiameter = c.Collision.Diameter
	if c.Derived.CollisionDiameter <= 0 {
		c.Derived.CollisionDiameter = c.Particles.Radius
	}

	c.Derived.SpeedLo, c.Derived.SpeedHi = pair(c.Particles.SpeedRange, -1, 1)
	c.Derived.RandomLo, c.Derived.RandomHi = pair(c.Interaction.RandomRange, -1, 1)
}

// pair reads a two-element range, falling back to defaults when malformed.
func pair(v []float64, lo, hi float64) (float64, float64) {
	if len(v) != 2 {
		return lo, hi
	}
	return v[0], v[1]
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
