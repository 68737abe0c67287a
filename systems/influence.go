package systems

import (
	"math"

	"gonum.org/v1/gonum/blas/blas32"

	"github.com/pthm-cable/particlelife/components"
	"github.com/pthm-cable/particlelife/interaction"
)

// InfluenceField is a coarse size x size grid of 2-vectors holding the net
// directional pull of neighbor pairs on each cell. It is rebuilt every tick.
//
// Contributions are computed per particle (parallel-safe) and then reduced
// into cells sequentially in particle index order, so the field is
// bit-identical regardless of how the contribution pass was split.
type InfluenceField struct {
	size  int
	cellW float32
	cellH float32

	field   []float32 // interleaved (x, y), size*size cells
	contrib []float32 // interleaved (x, y), one per particle
	cellOf  []int32   // coarse cell per particle
}

// NewInfluenceField creates a field of size x size cells over width x height.
func NewInfluenceField(size int, width, height float32) *InfluenceField {
	return &InfluenceField{
		size:  size,
		cellW: width / float32(size),
		cellH: height / float32(size),
		field: make([]float32, 2*size*size),
	}
}

// Size returns the number of cells per axis.
func (f *InfluenceField) Size() int {
	return f.size
}

// Prepare sizes the per-particle buffers for n particles. Call it before any
// ContributeRange of a tick.
func (f *InfluenceField) Prepare(n int) {
	if cap(f.cellOf) < n {
		f.contrib = make([]float32, 2*n)
		f.cellOf = make([]int32, n)
	}
	f.contrib = f.contrib[:2*n]
	f.cellOf = f.cellOf[:n]
}

// ContributeRange computes the field contribution of particles [i0, i1):
// the sum over neighbors of coef(color_i, color_j) * unit(p_j - p_i), skipping
// pairs with dist^2 <= Epsilon or dist^2 >= FieldRadiusSq.
func (f *InfluenceField) ContributeRange(ps []components.Particle, grid *SpatialGrid, coef *interaction.Matrix, p *Params, i0, i1 int) {
	for i := i0; i < i1; i++ {
		pi := &ps[i]
		ci := int(pi.Color)

		var ax, ay float32
		for _, j := range grid.Neighbors(i) {
			pj := &ps[j]
			dx := pj.X - pi.X
			dy := pj.Y - pi.Y
			d2 := dx*dx + dy*dy
			if d2 <= p.Epsilon || d2 >= p.FieldRadiusSq {
				continue
			}
			inv := 1 / float32(math.Sqrt(float64(d2)))
			c := coef.Get(ci, int(pj.Color))
			ax += c * dx * inv
			ay += c * dy * inv
		}

		f.contrib[2*i] = ax
		f.contrib[2*i+1] = ay
		f.cellOf[i] = int32(f.cellIndex(pi.X, pi.Y))
	}
}

// Reduce sums the per-particle contributions into their cells.
func (f *InfluenceField) Reduce() {
	for i := range f.field {
		f.field[i] = 0
	}
	for i, c := range f.cellOf {
		f.field[2*c] += f.contrib[2*i]
		f.field[2*c+1] += f.contrib[2*i+1]
	}
}

// At returns the field vector of cell (cx, cy).
func (f *InfluenceField) At(cx, cy int) (float32, float32) {
	c := cy*f.size + cx
	return f.field[2*c], f.field[2*c+1]
}

// ForParticle returns the field vector of particle i's coarse cell.
func (f *InfluenceField) ForParticle(i int) (float32, float32) {
	c := f.cellOf[i]
	return f.field[2*c], f.field[2*c+1]
}

// Norm returns the Euclidean norm of the whole field.
func (f *InfluenceField) Norm() float32 {
	return blas32.Nrm2(blas32.Vector{N: len(f.field), Inc: 1, Data: f.field})
}

func (f *InfluenceField) cellIndex(x, y float32) int {
	cx := int(x / f.cellW)
	cy := int(y / f.cellH)
	if cx < 0 {
		cx = 0
	} else if cx >= f.size {
		cx = f.size - 1
	}
	if cy < 0 {
		cy = 0
	} else if cy >= f.size {
		cy = f.size - 1
	}
	return cy*f.size + cx
}
