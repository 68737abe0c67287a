// Package components defines the particle state for the simulation.
package components

// Particle is one record of the particle store.
// Color is fixed at creation and indexes the interaction matrix.
type Particle struct {
	X, Y   float32
	VX, VY float32
	Color  int32
}

// PositionColor is the per-particle view handed to renderers.
type PositionColor struct {
	X, Y  float32
	Color int32
}

// Store is a fixed-length, double-buffered particle array.
// Index i is a particle's identity for the lifetime of the run.
// Reads for a tick come from Current; writes go to Next; Swap publishes.
type Store struct {
	cur  []Particle
	next []Particle
}

// NewStore creates a store holding a copy of ps.
func NewStore(ps []Particle) *Store {
	s := &Store{
		cur:  make([]Particle, len(ps)),
		next: make([]Particle, len(ps)),
	}
	copy(s.cur, ps)
	copy(s.next, ps)
	return s
}

// Len returns the number of particles.
func (s *Store) Len() int {
	return len(s.cur)
}

// Current returns the published state. Callers must treat it as read-only.
func (s *Store) Current() []Particle {
	return s.cur
}

// Next returns the write buffer for the tick in progress.
func (s *Store) Next() []Particle {
	return s.next
}

// Swap publishes the next buffer as the current state.
func (s *Store) Swap() {
	s.cur, s.next = s.next, s.cur
}

// Reset replaces the contents of both buffers. len(ps) must equal Len.
func (s *Store) Reset(ps []Particle) {
	copy(s.cur, ps)
	copy(s.next, ps)
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() []Particle {
	out := make([]Particle, len(s.cur))
	copy(out, s.cur)
	return out
}

// PositionsAndColors appends (x, y, color) for every particle in index order.
func (s *Store) PositionsAndColors(dst []PositionColor) []PositionColor {
	dst = dst[:0]
	for i := range s.cur {
		p := &s.cur[i]
		dst = append(dst, PositionColor{X: p.X, Y: p.Y, Color: p.Color})
	}
	return dst
}
