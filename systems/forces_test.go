package systems

import (
	"math"
	"testing"

	"github.com/pthm-cable/particlelife/components"
	"github.com/pthm-cable/particlelife/interaction"
)

func approx(a, b, tol float32) bool {
	return float32(math.Abs(float64(a-b))) <= tol
}

func testParams() *Params {
	const radius = 8
	return &Params{
		Width:               100,
		Height:              100,
		InteractionStrength: 0.1,
		InteractionRadiusSq: (2 * radius) * (2 * radius),
		Epsilon:             1e-5,
		DampingStart:        0.6 * 2 * radius,
		DampingExponent:     1.5,
		FieldGain:           0.1,
		FieldRadiusSq:       (2 * radius) * (2 * radius),
		MaxSpeed:            2,
		MinSpeed:            0.5,
		Friction:            1,
		CollisionDiameter:   radius,
	}
}

func TestClampSpeed(t *testing.T) {
	tests := []struct {
		name      string
		vx, vy    float32
		wantSpeed float32
	}{
		{"too fast", 3, 4, 2},
		{"too slow", 0.3, 0, 0.5},
		{"in range", 1, 0, 1},
		{"zero stays zero", 0, 0, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			vx, vy := ClampSpeed(tc.vx, tc.vy, 0.5, 2)
			if got := velocityMagnitude(vx, vy); !approx(got, tc.wantSpeed, 1e-5) {
				t.Errorf("speed = %v, want %v", got, tc.wantSpeed)
			}
			// Direction is preserved
			if tc.vx != 0 && (vx > 0) != (tc.vx > 0) {
				t.Errorf("direction flipped: (%v, %v) -> (%v, %v)", tc.vx, tc.vy, vx, vy)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	tests := []struct {
		v, size, want float32
	}{
		{5, 10, 5},
		{10.5, 10, 0.5},
		{-0.5, 10, 9.5},
		{25, 10, 5},
		{0, 10, 0},
		{10, 10, 0},
		{-1e-9, 10, 0},
	}

	for _, tc := range tests {
		got := Wrap(tc.v, tc.size)
		if !approx(got, tc.want, 1e-5) {
			t.Errorf("Wrap(%v, %v) = %v, want %v", tc.v, tc.size, got, tc.want)
		}
		if got < 0 || got >= tc.size {
			t.Errorf("Wrap(%v, %v) = %v outside [0, %v)", tc.v, tc.size, got, tc.size)
		}
	}
}

func TestProximityDamping(t *testing.T) {
	tests := []struct {
		name       string
		dist, want float32
	}{
		{"beyond start", 12, 1},
		{"at start", 9.6, 1},
		{"quarter", 2.4, 0.125},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := proximityDamping(tc.dist, 9.6, 1.5); !approx(got, tc.want, 1e-5) {
				t.Errorf("damping = %v, want %v", got, tc.want)
			}
		})
	}

	// General exponent path agrees with the fast path
	if a, b := proximityDamping(3, 9.6, 1.5), proximityDamping(3, 9.6, 1.5000001); !approx(a, b, 1e-4) {
		t.Errorf("pow path %v disagrees with sqrt path %v", b, a)
	}
}

func TestPairwiseAttractRepel(t *testing.T) {
	tests := []struct {
		name     string
		coef     float32
		attracts bool
	}{
		{"positive attracts", 1, true},
		{"negative repels", -1, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := testParams()
			m, _ := interaction.New(1, tc.coef)
			cur := []components.Particle{{X: 10, Y: 50}, {X: 20, Y: 50}}
			next := make([]components.Particle, 2)
			copy(next, cur)

			g := NewSpatialGrid(p.Width, p.Height, 8, 16, 16)
			buildAll(g, cur)
			PairwiseRange(cur, next, g, m, p, 0, 2)

			// dist 10 > 9.6, so undamped: |dv| = strength
			if !approx(next[0].VX, 0.1*tc.coef, 1e-6) || !approx(next[1].VX, -0.1*tc.coef, 1e-6) {
				t.Errorf("dv = (%v, %v), want +-%v", next[0].VX, next[1].VX, 0.1*tc.coef)
			}
			if (next[0].VX > 0) != tc.attracts {
				t.Errorf("particle 0 VX = %v, attracts = %v", next[0].VX, tc.attracts)
			}
			if next[0].VY != 0 || next[1].VY != 0 {
				t.Errorf("unexpected vertical dv: %v, %v", next[0].VY, next[1].VY)
			}
		})
	}
}

func TestPairwiseAsymmetric(t *testing.T) {
	p := testParams()
	// Color 0 chases color 1, color 1 ignores color 0
	m, _ := interaction.FromRows([][]float32{{0, 1}, {0, 0}})
	cur := []components.Particle{{X: 10, Y: 50, Color: 0}, {X: 20, Y: 50, Color: 1}}
	next := make([]components.Particle, 2)
	copy(next, cur)

	g := NewSpatialGrid(p.Width, p.Height, 8, 16, 16)
	buildAll(g, cur)
	PairwiseRange(cur, next, g, m, p, 0, 2)

	if next[0].VX <= 0 {
		t.Errorf("chaser VX = %v, want > 0", next[0].VX)
	}
	if next[1].VX != 0 {
		t.Errorf("target VX = %v, want 0", next[1].VX)
	}
}

func TestPreAdjustClampsFieldNudge(t *testing.T) {
	p := testParams()
	p.MinSpeed = 0
	p.MaxSpeed = 1
	p.FieldGain = 10

	// Color 0 is pulled by five color-1 neighbors to the right; nothing
	// pulls back, so the single cell carries a field of (5, 0)
	cur := []components.Particle{{X: 10, Y: 10, Color: 0}}
	for i := 0; i < 5; i++ {
		cur = append(cur, components.Particle{X: 15 + float32(i), Y: 10, Color: 1})
	}
	next := make([]components.Particle, len(cur))
	m, _ := interaction.FromRows([][]float32{{0, 1}, {0, 0}})

	g := NewSpatialGrid(p.Width, p.Height, 8, 16, 16)
	buildAll(g, cur)
	f := NewInfluenceField(1, p.Width, p.Height)
	f.Prepare(len(cur))
	f.ContributeRange(cur, g, m, p, 0, len(cur))
	f.Reduce()
	PreAdjustRange(cur, next, f, p, 0, len(cur))

	if !approx(next[0].VX, 0.5, 1e-6) {
		t.Errorf("VX = %v, want nudge clamped to 0.5", next[0].VX)
	}
	for i := range next {
		if next[i].VX > 0.5+1e-6 || next[i].VX < -0.5-1e-6 {
			t.Errorf("particle %d VX = %v, nudge exceeds MaxSpeed/2", i, next[i].VX)
		}
		if next[i].X != cur[i].X || next[i].Color != cur[i].Color {
			t.Errorf("particle %d position or color changed in pre-adjust", i)
		}
	}
}

func TestInfluenceFieldCancelsForSymmetricPair(t *testing.T) {
	p := testParams()
	m, _ := interaction.New(1, 1)
	ps := []components.Particle{{X: 10, Y: 50}, {X: 20, Y: 50}}

	g := NewSpatialGrid(p.Width, p.Height, 8, 16, 16)
	buildAll(g, ps)
	f := NewInfluenceField(4, p.Width, p.Height)
	f.Prepare(len(ps))
	f.ContributeRange(ps, g, m, p, 0, len(ps))
	f.Reduce()

	// Both particles share cell (0, 2); unit pulls cancel
	fx, fy := f.At(0, 2)
	if !approx(fx, 0, 1e-6) || !approx(fy, 0, 1e-6) {
		t.Errorf("field = (%v, %v), want (0, 0)", fx, fy)
	}
}

func TestInfluenceFieldSplitInvariant(t *testing.T) {
	p := testParams()
	m, _ := interaction.FromRows([][]float32{{1, -0.5}, {0.25, -1}})
	ps := randomParticles(3, 400, p.Width, p.Height)
	for i := range ps {
		ps[i].Color = int32(i % 2)
	}

	g := NewSpatialGrid(p.Width, p.Height, 8, 64, 25)
	buildAll(g, ps)

	whole := NewInfluenceField(8, p.Width, p.Height)
	whole.Prepare(len(ps))
	whole.ContributeRange(ps, g, m, p, 0, len(ps))
	whole.Reduce()

	split := NewInfluenceField(8, p.Width, p.Height)
	split.Prepare(len(ps))
	for i0 := len(ps) - 37; i0 > -37; i0 -= 37 {
		lo := i0
		if lo < 0 {
			lo = 0
		}
		split.ContributeRange(ps, g, m, p, lo, lo+37)
	}
	split.Reduce()

	for cy := 0; cy < 8; cy++ {
		for cx := 0; cx < 8; cx++ {
			ax, ay := whole.At(cx, cy)
			bx, by := split.At(cx, cy)
			if ax != bx || ay != by {
				t.Fatalf("cell (%d, %d): (%v, %v) vs (%v, %v)", cx, cy, ax, ay, bx, by)
			}
		}
	}
	if whole.Norm() != split.Norm() {
		t.Errorf("norms differ: %v vs %v", whole.Norm(), split.Norm())
	}
}

func TestInfluenceFieldNorm(t *testing.T) {
	f := NewInfluenceField(2, 10, 10)
	f.field = []float32{3, 0, 0, 4, 0, 0, 0, 0}
	if got := f.Norm(); !approx(got, 5, 1e-6) {
		t.Errorf("Norm = %v, want 5", got)
	}
}

// Benchmark field norm with a scalar loop
func BenchmarkFieldNormScalar(b *testing.B) {
	f := NewInfluenceField(32, 1920, 1080)
	for i := range f.field {
		f.field[i] = float32(i) * 0.001
	}

	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		var sum float32
		for _, v := range f.field {
			sum += v * v
		}
		_ = float32(math.Sqrt(float64(sum)))
	}
}

// Benchmark field norm with blas32
func BenchmarkFieldNormBLAS(b *testing.B) {
	f := NewInfluenceField(32, 1920, 1080)
	for i := range f.field {
		f.field[i] = float32(i) * 0.001
	}

	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		_ = f.Norm()
	}
}
