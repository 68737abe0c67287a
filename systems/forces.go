package systems

import (
	"math"

	"github.com/pthm-cable/particlelife/components"
	"github.com/pthm-cable/particlelife/interaction"
)

// Params holds the constants the per-tick passes share.
type Params struct {
	Width, Height float32

	InteractionStrength float32
	InteractionRadiusSq float32 // (2*radius)^2
	Epsilon             float32 // Pairs at or below this squared distance are skipped
	DampingStart        float32 // Distance where proximity damping starts
	DampingExponent     float32

	FieldGain     float32
	FieldRadiusSq float32

	MaxSpeed float32
	MinSpeed float32
	Friction float32

	CollisionDiameter float32
	AntiStick         float32
}

// PreAdjustRange starts next[i] from cur[i] with the influence field applied
// to velocity. Each axis of the field nudge is clamped to +-MaxSpeed/2, then
// the speed limit is applied.
func PreAdjustRange(cur, next []components.Particle, field *InfluenceField, p *Params, i0, i1 int) {
	half := p.MaxSpeed / 2
	for i := i0; i < i1; i++ {
		fx, fy := field.ForParticle(i)
		vx := cur[i].VX + clampFloat(fx*p.FieldGain, -half, half)
		vy := cur[i].VY + clampFloat(fy*p.FieldGain, -half, half)
		vx, vy = ClampSpeed(vx, vy, p.MinSpeed, p.MaxSpeed)

		next[i] = components.Particle{
			X:     cur[i].X,
			Y:     cur[i].Y,
			VX:    vx,
			VY:    vy,
			Color: cur[i].Color,
		}
	}
}

// PairwiseRange adds the fine pairwise force of every neighbor within the
// interaction diameter to next[i]'s velocity. Positions and colors are read
// from cur; only next[i] of each particle in range is written.
func PairwiseRange(cur, next []components.Particle, grid *SpatialGrid, m *interaction.Matrix, p *Params, i0, i1 int) {
	for i := i0; i < i1; i++ {
		pi := &cur[i]
		ci := int(pi.Color)

		var dvx, dvy float32
		for _, j := range grid.Neighbors(i) {
			pj := &cur[j]
			dx := pj.X - pi.X
			dy := pj.Y - pi.Y
			d2 := dx*dx + dy*dy
			if d2 <= p.Epsilon || d2 >= p.InteractionRadiusSq {
				continue
			}
			dist := float32(math.Sqrt(float64(d2)))
			force := m.Get(ci, int(pj.Color)) * p.InteractionStrength
			force *= proximityDamping(dist, p.DampingStart, p.DampingExponent)

			dvx += force * dx / dist
			dvy += force * dy / dist
		}

		next[i].VX += dvx
		next[i].VY += dvy
	}
}
