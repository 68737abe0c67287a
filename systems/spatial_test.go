package systems

import (
	"math/rand"
	"testing"

	"github.com/pthm-cable/particlelife/components"
)

func randomParticles(seed int64, n int, w, h float32) []components.Particle {
	rng := rand.New(rand.NewSource(seed))
	ps := make([]components.Particle, n)
	for i := range ps {
		ps[i] = components.Particle{X: rng.Float32() * w, Y: rng.Float32() * h}
	}
	return ps
}

func buildAll(g *SpatialGrid, ps []components.Particle) (dropped, truncated int) {
	dropped = g.Build(ps)
	truncated = g.QueryRange(ps, 0, len(ps))
	return dropped, truncated
}

func TestGridDims(t *testing.T) {
	tests := []struct {
		name         string
		w, h, radius float32
		wantCell     float32
		wantCols     int
		wantRows     int
	}{
		{"standard", 1920, 1080, 8, 16, 121, 68},
		{"fractional radius floors", 100, 100, 2.7, 5, 21, 21},
		{"tiny radius uses unit cells", 10, 5, 0.2, 1, 11, 6},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g := NewSpatialGrid(tc.w, tc.h, tc.radius, 8, 8)
			if g.CellSize() != tc.wantCell {
				t.Errorf("CellSize = %v, want %v", g.CellSize(), tc.wantCell)
			}
			cols, rows := g.Dims()
			if cols != tc.wantCols || rows != tc.wantRows {
				t.Errorf("Dims = (%d, %d), want (%d, %d)", cols, rows, tc.wantCols, tc.wantRows)
			}
		})
	}
}

func TestNeighborSoundnessAndCompleteness(t *testing.T) {
	const (
		w, h   = 400, 300
		radius = 6
		n      = 600
	)
	ps := randomParticles(1, n, w, h)

	// Capacities large enough that nothing is truncated
	g := NewSpatialGrid(w, h, radius, n, n)
	dropped, truncated := buildAll(g, ps)
	if dropped != 0 || truncated != 0 {
		t.Fatalf("unexpected overflow: dropped=%d truncated=%d", dropped, truncated)
	}

	reachSq := float32(2*radius) * float32(2*radius)
	for i := range ps {
		got := make(map[int32]bool)
		for _, j := range g.Neighbors(i) {
			if int(j) == i {
				t.Fatalf("particle %d lists itself", i)
			}
			if d2 := distanceSq(ps[i].X, ps[i].Y, ps[j].X, ps[j].Y); d2 >= reachSq {
				t.Errorf("particle %d: neighbor %d at dist^2 %v >= %v", i, j, d2, reachSq)
			}
			got[j] = true
		}

		// Brute force
		for j := range ps {
			if j == i {
				continue
			}
			if distanceSq(ps[i].X, ps[i].Y, ps[j].X, ps[j].Y) < reachSq && !got[int32(j)] {
				t.Errorf("particle %d: missing neighbor %d", i, j)
			}
		}
	}
}

func TestNeighborsDoNotWrap(t *testing.T) {
	ps := []components.Particle{
		{X: 1, Y: 50},
		{X: 99, Y: 50}, // 2 units away across the seam
	}
	g := NewSpatialGrid(100, 100, 5, 8, 8)
	buildAll(g, ps)

	if n := g.NeighborCount(0); n != 0 {
		t.Errorf("particle 0 has %d neighbors across the edge, want 0", n)
	}
}

func TestNeighborCapTruncates(t *testing.T) {
	// Ten particles stacked within reach of each other
	ps := make([]components.Particle, 10)
	for i := range ps {
		ps[i] = components.Particle{X: 50 + float32(i)*0.1, Y: 50}
	}

	g := NewSpatialGrid(100, 100, 5, 64, 4)
	_, truncated := buildAll(g, ps)

	for i := range ps {
		if n := g.NeighborCount(i); n != 4 {
			t.Errorf("particle %d has %d neighbors, want cap 4", i, n)
		}
	}
	// Each particle sees 9 candidates and keeps 4
	if truncated != 10*5 {
		t.Errorf("truncated = %d, want 50", truncated)
	}
}

func TestCellCapDrops(t *testing.T) {
	ps := make([]components.Particle, 6)
	for i := range ps {
		ps[i] = components.Particle{X: 10, Y: 10}
	}

	g := NewSpatialGrid(100, 100, 5, 4, 16)
	dropped, _ := buildAll(g, ps)
	if dropped != 2 {
		t.Errorf("dropped = %d, want 2", dropped)
	}

	// Insertion is in index order, so the last two are the dropped ones and
	// nobody sees them
	for i := 0; i < 4; i++ {
		for _, j := range g.Neighbors(i) {
			if j >= 4 {
				t.Errorf("particle %d sees dropped particle %d", i, j)
			}
		}
	}
}

func TestGridRebuildClearsState(t *testing.T) {
	g := NewSpatialGrid(100, 100, 5, 8, 8)
	buildAll(g, []components.Particle{{X: 10, Y: 10}, {X: 12, Y: 10}})
	if g.NeighborCount(0) != 1 {
		t.Fatalf("first build: NeighborCount = %d, want 1", g.NeighborCount(0))
	}

	buildAll(g, []components.Particle{{X: 10, Y: 10}, {X: 80, Y: 80}})
	if g.NeighborCount(0) != 0 {
		t.Errorf("after rebuild: NeighborCount = %d, want 0", g.NeighborCount(0))
	}
}

func BenchmarkGridBuildQuery(b *testing.B) {
	ps := randomParticles(7, 10000, 1920, 1080)
	g := NewSpatialGrid(1920, 1080, 8, 64, 25)

	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		g.Build(ps)
		g.QueryRange(ps, 0, len(ps))
	}
}
