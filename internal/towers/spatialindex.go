package towers

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

// estimatedPointsPerCell is used for initial spatial index capacity estimation.
const estimatedPointsPerCell = 4

// VoxelIndex provides efficient neighbor queries over a regular 3-D grid.
// Cell size should approximately match the DBSCAN eps parameter so a
// neighborhood query only has to visit the 27 surrounding cells.
type VoxelIndex struct {
	CellSize float64
	Grid     map[int64][]int // Cell ID → point indices
}

// NewVoxelIndex creates a voxel index with the specified cell size.
func NewVoxelIndex(cellSize float64) *VoxelIndex {
	return &VoxelIndex{
		CellSize: cellSize,
		Grid:     make(map[int64][]int),
	}
}

// Build populates the index from a point slice. Fails if any coordinate is
// NaN or infinite, since such values cannot be assigned a grid cell; callers
// treat that as a malformed chunk.
func (vi *VoxelIndex) Build(points []r3.Vector) error {
	vi.Grid = make(map[int64][]int, len(points)/estimatedPointsPerCell)

	for i, p := range points {
		if !isFinite(p) {
			return fmt.Errorf("point %d has non-finite coordinates (%v, %v, %v)", i, p.X, p.Y, p.Z)
		}
		cellID := vi.cellID(
			int64(math.Floor(p.X/vi.CellSize)),
			int64(math.Floor(p.Y/vi.CellSize)),
			int64(math.Floor(p.Z/vi.CellSize)),
		)
		vi.Grid[cellID] = append(vi.Grid[cellID], i)
	}
	return nil
}

// cellID maps integer cell coordinates to a single key. Each axis is zigzag
// encoded to fold negatives into the non-negative range, then Szudzik's
// pairing function combines x with y and the result with z. Clouds are
// centered near the origin before clustering, which keeps the intermediate
// products well inside int64 range.
func (vi *VoxelIndex) cellID(cellX, cellY, cellZ int64) int64 {
	return szudzik(szudzik(zigzag(cellX), zigzag(cellY)), zigzag(cellZ))
}

// zigzag maps signed integers to non-negative: 0,-1,1,-2,2 → 0,1,2,3,4.
func zigzag(v int64) int64 {
	if v >= 0 {
		return 2 * v
	}
	return -2*v - 1
}

// szudzik pairs two non-negative integers into one.
func szudzik(a, b int64) int64 {
	if a >= b {
		return a*a + a + b
	}
	return a + b*b
}

// RegionQuery returns indices of all points within eps of points[idx], using
// full 3-D Euclidean distance. Searches the 3x3x3 cell neighborhood around
// the query point's cell.
func (vi *VoxelIndex) RegionQuery(points []r3.Vector, idx int, eps float64) []int {
	p := points[idx]
	neighbors := []int{}
	eps2 := eps * eps // squared distance avoids sqrt in the hot loop

	cellX := int64(math.Floor(p.X / vi.CellSize))
	cellY := int64(math.Floor(p.Y / vi.CellSize))
	cellZ := int64(math.Floor(p.Z / vi.CellSize))

	for dx := int64(-1); dx <= 1; dx++ {
		for dy := int64(-1); dy <= 1; dy++ {
			for dz := int64(-1); dz <= 1; dz++ {
				cell := vi.cellID(cellX+dx, cellY+dy, cellZ+dz)
				for _, candidateIdx := range vi.Grid[cell] {
					d := points[candidateIdx].Sub(p)
					if d.Norm2() <= eps2 {
						neighbors = append(neighbors, candidateIdx)
					}
				}
			}
		}
	}

	return neighbors
}
