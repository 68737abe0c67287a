// Package systems provides the per-tick passes of the particle simulation.
package systems

import (
	"math"

	"github.com/pthm-cable/particlelife/components"
)

// SpatialGrid is a uniform grid rebuilt every tick from the particle store.
// Cells and neighbor lists have fixed capacity; entries beyond capacity are
// dropped for that tick and counted, which bounds worst-case tick cost.
//
// The grid does not wrap at domain edges even though particle motion does.
type SpatialGrid struct {
	cellSize float32
	cols     int
	rows     int
	reachSq  float32 // (2*radius)^2

	maxPerCell   int
	maxNeighbors int

	cellCounts []int32
	cells      []int32 // cols*rows*maxPerCell particle indices

	neighborCounts []int32
	neighbors      []int32 // n*maxNeighbors particle indices
}

// GridCells returns the cell side and the column and row counts of a grid
// covering width x height for the given radius. Counts are float64 so callers
// can bound them before converting to int.
func GridCells(width, height, radius float32) (cellSize float32, cols, rows float64) {
	cellSize = float32(math.Floor(float64(2 * radius)))
	if cellSize < 1 {
		cellSize = 1
	}
	cols = math.Floor(float64(width)/float64(cellSize)) + 1
	rows = math.Floor(float64(height)/float64(cellSize)) + 1
	return cellSize, cols, rows
}

// NewSpatialGrid creates a grid covering width x height for the given radius.
// Cell side is max(1, floor(2*radius)).
func NewSpatialGrid(width, height, radius float32, maxPerCell, maxNeighbors int) *SpatialGrid {
	cellSize, c, r := GridCells(width, height, radius)
	cols, rows := int(c), int(r)
	reach := 2 * radius

	return &SpatialGrid{
		cellSize:     cellSize,
		cols:         cols,
		rows:         rows,
		reachSq:      reach * reach,
		maxPerCell:   maxPerCell,
		maxNeighbors: maxNeighbors,
		cellCounts:   make([]int32, cols*rows),
		cells:        make([]int32, cols*rows*maxPerCell),
	}
}

// CellSize returns the side length of a cell.
func (g *SpatialGrid) CellSize() float32 {
	return g.cellSize
}

// Dims returns the number of columns and rows.
func (g *SpatialGrid) Dims() (cols, rows int) {
	return g.cols, g.rows
}

// MaxNeighbors returns the neighbor list capacity.
func (g *SpatialGrid) MaxNeighbors() int {
	return g.maxNeighbors
}

// Build buckets every particle into its cell. It returns the number of
// particles dropped from cell membership because their cell was full.
// Insertion runs in index order so membership is deterministic.
func (g *SpatialGrid) Build(ps []components.Particle) int {
	for i := range g.cellCounts {
		g.cellCounts[i] = 0
	}

	if cap(g.neighborCounts) < len(ps) {
		g.neighborCounts = make([]int32, len(ps))
		g.neighbors = make([]int32, len(ps)*g.maxNeighbors)
	}
	g.neighborCounts = g.neighborCounts[:len(ps)]
	g.neighbors = g.neighbors[:len(ps)*g.maxNeighbors]

	dropped := 0
	for i := range ps {
		idx := g.cellIndex(ps[i].X, ps[i].Y)
		count := g.cellCounts[idx]
		if int(count) >= g.maxPerCell {
			dropped++
			continue
		}
		g.cells[idx*g.maxPerCell+int(count)] = int32(i)
		g.cellCounts[idx] = count + 1
	}
	return dropped
}

// QueryRange fills the neighbor lists of particles [i0, i1) from the cells
// built by Build. Each list holds indices j != i with distance < 2*radius.
// It returns how many qualifying candidates did not fit in their list.
// Lists of different particles are independent, so ranges may run concurrently.
func (g *SpatialGrid) QueryRange(ps []components.Particle, i0, i1 int) int {
	truncated := 0
	for i := i0; i < i1; i++ {
		truncated += g.query(ps, i)
	}
	return truncated
}

func (g *SpatialGrid) query(ps []components.Particle, i int) int {
	x, y := ps[i].X, ps[i].Y
	col, row := g.cellCoords(x, y)

	base := i * g.maxNeighbors
	count := 0
	truncated := 0

	for dr := -1; dr <= 1; dr++ {
		r := row + dr
		if r < 0 || r >= g.rows {
			continue
		}
		for dc := -1; dc <= 1; dc++ {
			c := col + dc
			if c < 0 || c >= g.cols {
				continue
			}
			idx := r*g.cols + c
			members := g.cells[idx*g.maxPerCell : idx*g.maxPerCell+int(g.cellCounts[idx])]
			for _, j := range members {
				if int(j) == i {
					continue
				}
				dx := ps[j].X - x
				dy := ps[j].Y - y
				if dx*dx+dy*dy >= g.reachSq {
					continue
				}
				if count >= g.maxNeighbors {
					truncated++
					continue
				}
				g.neighbors[base+count] = j
				count++
			}
		}
	}

	g.neighborCounts[i] = int32(count)
	return truncated
}

// Neighbors returns the neighbor list of particle i built by the last query.
// The slice aliases grid storage and is valid until the next Build.
func (g *SpatialGrid) Neighbors(i int) []int32 {
	base := i * g.maxNeighbors
	return g.neighbors[base : base+int(g.neighborCounts[i])]
}

// NeighborCount returns the length of particle i's neighbor list.
func (g *SpatialGrid) NeighborCount(i int) int {
	return int(g.neighborCounts[i])
}

// cellCoords returns the clamped column and row for a position.
func (g *SpatialGrid) cellCoords(x, y float32) (int, int) {
	col := int(x / g.cellSize)
	row := int(y / g.cellSize)

	// Clamp to valid range
	if col < 0 {
		col = 0
	} else if col >= g.cols {
		col = g.cols - 1
	}
	if row < 0 {
		row = 0
	} else if row >= g.rows {
		row = g.rows - 1
	}

	return col, row
}

// cellIndex returns the flat index for a world position.
func (g *SpatialGrid) cellIndex(x, y float32) int {
	col, row := g.cellCoords(x, y)
	return row*g.cols + col
}
