package components

import (
	"math/rand"

	"github.com/aquilax/go-perlin"
)

// Spawn modes for Generate.
const (
	SpawnUniform = "uniform"
	SpawnPerlin  = "perlin"
)

// perlinAttempts bounds rejection sampling per particle before falling back to uniform.
const perlinAttempts = 32

// SpawnParams describes how a particle store is randomly initialized.
type SpawnParams struct {
	Count         int
	Width, Height float32
	Radius        float32 // Positions keep this margin from the edges when the domain allows
	SpeedLo       float32 // Per-axis initial velocity range
	SpeedHi       float32
	NumColors     int
	Mode          string

	PerlinScale     float64
	PerlinThreshold float64
}

// Generate creates Count particles with uniform velocity in [SpeedLo, SpeedHi]
// per axis and uniform color in [0, NumColors). Positions are uniform, or
// clustered by Perlin noise when Mode is SpawnPerlin.
func Generate(rng *rand.Rand, p SpawnParams) []Particle {
	xlo, xhi := margin(p.Width, p.Radius)
	ylo, yhi := margin(p.Height, p.Radius)

	var noise *perlin.Perlin
	if p.Mode == SpawnPerlin {
		noise = perlin.NewPerlin(2, 2, 3, rng.Int63())
	}

	ps := make([]Particle, p.Count)
	for i := range ps {
		x, y := xlo+rng.Float32()*(xhi-xlo), ylo+rng.Float32()*(yhi-ylo)
		if noise != nil {
			for a := 0; a < perlinAttempts; a++ {
				if noise.Noise2D(float64(x)*p.PerlinScale, float64(y)*p.PerlinScale) >= p.PerlinThreshold {
					break
				}
				x, y = xlo+rng.Float32()*(xhi-xlo), ylo+rng.Float32()*(yhi-ylo)
			}
		}

		ps[i] = Particle{
			X:     clampBelow(x, p.Width),
			Y:     clampBelow(y, p.Height),
			VX:    p.SpeedLo + rng.Float32()*(p.SpeedHi-p.SpeedLo),
			VY:    p.SpeedLo + rng.Float32()*(p.SpeedHi-p.SpeedLo),
			Color: int32(rng.Intn(p.NumColors)),
		}
	}
	return ps
}

// margin returns the spawn interval along one axis.
func margin(size, radius float32) (float32, float32) {
	if radius > 0 && size > 2*radius {
		return radius, size - radius
	}
	return 0, size
}

// clampBelow keeps v strictly inside [0, size).
func clampBelow(v, size float32) float32 {
	if v >= size {
		return 0
	}
	return v
}
