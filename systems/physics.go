package systems

import (
	"math"

	"github.com/pthm-cable/particlelife/components"
)

// AdvanceRange applies friction and the speed limit to next[i]'s velocity and
// moves it, wrapping on both axes. It touches only next[i].
func AdvanceRange(next []components.Particle, p *Params, i0, i1 int) {
	for i := i0; i < i1; i++ {
		pt := &next[i]
		vx, vy := ClampSpeed(pt.VX*p.Friction, pt.VY*p.Friction, p.MinSpeed, p.MaxSpeed)
		pt.VX, pt.VY = vx, vy
		pt.X = Wrap(pt.X+vx, p.Width)
		pt.Y = Wrap(pt.Y+vy, p.Height)
	}
}

// Corrections holds per-particle positional corrections from collision
// resolution, so that detection reads a frozen buffer and application
// touches only each particle's own slot.
type Corrections struct {
	DX, DY   []float32
	Contacts []int32
}

// Resize makes room for n particles.
func (c *Corrections) Resize(n int) {
	if cap(c.DX) < n {
		c.DX = make([]float32, n)
		c.DY = make([]float32, n)
		c.Contacts = make([]int32, n)
	}
	c.DX = c.DX[:n]
	c.DY = c.DY[:n]
	c.Contacts = c.Contacts[:n]
}

// CollideRange computes the separation of particles [i0, i1) from their
// neighbors using advanced positions in ps, which must not be written
// concurrently. Each particle is pushed away from every neighbor closer than
// CollisionDiameter by the full overlap along the contact normal, plus
// AntiStick times its own velocity per contact. It returns the number of
// contacts seen by particles in range.
func CollideRange(ps []components.Particle, grid *SpatialGrid, p *Params, corr *Corrections, i0, i1 int) int {
	diam := p.CollisionDiameter
	diamSq := diam * diam
	total := 0

	for i := i0; i < i1; i++ {
		pi := &ps[i]
		var cx, cy float32
		var contacts int32

		for _, j := range grid.Neighbors(i) {
			pj := &ps[j]
			d2 := distanceSq(pi.X, pi.Y, pj.X, pj.Y)
			if d2 >= diamSq {
				continue
			}
			contacts++

			if d2 <= p.Epsilon {
				// Coincident: no normal exists, separate along x by index order
				if i < int(j) {
					cx -= diam / 2
				} else {
					cx += diam / 2
				}
				continue
			}

			dist := float32(math.Sqrt(float64(d2)))
			overlap := diam - dist
			cx += (pi.X - pj.X) / dist * overlap
			cy += (pi.Y - pj.Y) / dist * overlap
		}

		if contacts > 0 && p.AntiStick > 0 {
			cx += p.AntiStick * pi.VX * float32(contacts)
			cy += p.AntiStick * pi.VY * float32(contacts)
		}

		corr.DX[i] = cx
		corr.DY[i] = cy
		corr.Contacts[i] = contacts
		total += int(contacts)
	}
	return total
}

// ApplyCorrectionsRange moves particles [i0, i1) by their corrections and
// re-wraps them.
func ApplyCorrectionsRange(ps []components.Particle, corr *Corrections, p *Params, i0, i1 int) {
	for i := i0; i < i1; i++ {
		if corr.Contacts[i] == 0 {
			continue
		}
		ps[i].X = Wrap(ps[i].X+corr.DX[i], p.Width)
		ps[i].Y = Wrap(ps[i].Y+corr.DY[i], p.Height)
	}
}
