// Package interaction holds the color-pair interaction matrix.
package interaction

import (
	"errors"
	"fmt"
	"math/rand"
	"os"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

var (
	// ErrShapeMismatch is returned when a full matrix does not match num_colors x num_colors.
	ErrShapeMismatch = errors.New("interaction matrix shape mismatch")
	// ErrIndexOutOfRange is returned for a color index outside [0, num_colors).
	ErrIndexOutOfRange = errors.New("color index out of range")
)

// Matrix is a square table of force coefficients indexed by color.
// Entry (i, j) is the coefficient applied to a particle of color i due to a
// neighbor of color j. Asymmetric matrices are valid.
type Matrix struct {
	n    int
	data []float32 // row-major, n*n
}

// New creates an n x n matrix filled with def.
func New(n int, def float32) (*Matrix, error) {
	if n <= 0 {
		return nil, fmt.Errorf("creating matrix with %d colors: %w", n, ErrShapeMismatch)
	}
	m := &Matrix{n: n, data: make([]float32, n*n)}
	for i := range m.data {
		m.data[i] = def
	}
	return m, nil
}

// FromRows builds a matrix from rows, which must be square and non-empty.
func FromRows(rows [][]float32) (*Matrix, error) {
	m := &Matrix{n: len(rows), data: make([]float32, len(rows)*len(rows))}
	if err := m.SetFull(rows); err != nil {
		return nil, err
	}
	return m, nil
}

// Size returns num_colors.
func (m *Matrix) Size() int {
	return m.n
}

// Get returns the coefficient for color i acted on by color j.
// Indices are not checked; the hot path relies on colors being validated at creation.
func (m *Matrix) Get(i, j int) float32 {
	return m.data[i*m.n+j]
}

// Set replaces a single entry.
func (m *Matrix) Set(i, j int, v float32) error {
	if i < 0 || i >= m.n || j < 0 || j >= m.n {
		return fmt.Errorf("set (%d, %d) on %dx%d matrix: %w", i, j, m.n, m.n, ErrIndexOutOfRange)
	}
	m.data[i*m.n+j] = v
	return nil
}

// SetFull replaces every entry. On a shape mismatch the matrix is left unchanged.
func (m *Matrix) SetFull(rows [][]float32) error {
	if len(rows) != m.n || m.n == 0 {
		return fmt.Errorf("got %d rows, want %d: %w", len(rows), m.n, ErrShapeMismatch)
	}
	for i, row := range rows {
		if len(row) != m.n {
			return fmt.Errorf("row %d has %d columns, want %d: %w", i, len(row), m.n, ErrShapeMismatch)
		}
	}
	for i, row := range rows {
		copy(m.data[i*m.n:(i+1)*m.n], row)
	}
	return nil
}

// Rows returns a copy of the matrix as nested slices.
func (m *Matrix) Rows() [][]float32 {
	rows := make([][]float32, m.n)
	for i := range rows {
		rows[i] = make([]float32, m.n)
		copy(rows[i], m.data[i*m.n:(i+1)*m.n])
	}
	return rows
}

// Clone returns an independent copy.
func (m *Matrix) Clone() *Matrix {
	c := &Matrix{n: m.n, data: make([]float32, len(m.data))}
	copy(c.data, m.data)
	return c
}

// SecondOrder returns the self-composed matrix S with S[i,j] = sum_k M[i,k]*M[k,j].
// Used by the influence field's second-order color mixing rule.
func (m *Matrix) SecondOrder() *Matrix {
	a := mat.NewDense(m.n, m.n, m.float64s())

	var s mat.Dense
	s.Mul(a, a)

	out := &Matrix{n: m.n, data: make([]float32, len(m.data))}
	for i := 0; i < m.n; i++ {
		for j := 0; j < m.n; j++ {
			out.data[i*m.n+j] = float32(s.At(i, j))
		}
	}
	return out
}

func (m *Matrix) float64s() []float64 {
	f := make([]float64, len(m.data))
	for i, v := range m.data {
		f[i] = float64(v)
	}
	return f
}

// Randomize fills the matrix uniformly from [lo, hi).
func (m *Matrix) Randomize(rng *rand.Rand, lo, hi float32) {
	for i := range m.data {
		m.data[i] = lo + rng.Float32()*(hi-lo)
	}
}

// Mutate perturbs every entry with gaussian noise and clamps to [-limit, limit].
func (m *Matrix) Mutate(rng *rand.Rand, sigma, limit float32) {
	for i := range m.data {
		v := m.data[i] + float32(rng.NormFloat64())*sigma
		if v > limit {
			v = limit
		} else if v < -limit {
			v = -limit
		}
		m.data[i] = v
	}
}

// matrixFile is the on-disk YAML layout.
type matrixFile struct {
	Colors int         `yaml:"colors"`
	Rows   [][]float32 `yaml:"rows"`
}

// Save writes the matrix as YAML.
func (m *Matrix) Save(path string) error {
	data, err := yaml.Marshal(matrixFile{Colors: m.n, Rows: m.Rows()})
	if err != nil {
		return fmt.Errorf("marshaling matrix: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing matrix file: %w", err)
	}
	return nil
}

// Load reads a matrix written by Save.
func Load(path string) (*Matrix, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading matrix file: %w", err)
	}
	var f matrixFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing matrix file: %w", err)
	}
	if f.Colors != 0 && f.Colors != len(f.Rows) {
		return nil, fmt.Errorf("matrix file declares %d colors but has %d rows: %w", f.Colors, len(f.Rows), ErrShapeMismatch)
	}
	return FromRows(f.Rows)
}
