package towers

import (
	"math"

	"github.com/golang/geo/r3"
)

// Downsample thins a cloud with a regular voxel grid of the given edge length,
// keeping the first point encountered in each voxel. Input order is preserved
// for the survivors, so repeated runs over the same cloud produce the same
// output. A non-positive voxel size returns the input unchanged.
//
// Memory is bounded by the number of occupied voxels, not the cloud size,
// which keeps dense survey imports tractable.
func Downsample(points []r3.Vector, voxel float64) []r3.Vector {
	if voxel <= 0 || len(points) == 0 {
		return points
	}

	type cell struct{ x, y, z int64 }
	seen := make(map[cell]struct{}, len(points)/8)
	out := make([]r3.Vector, 0, len(points)/2)

	for _, p := range points {
		if !isFinite(p) {
			// Non-finite coordinates cannot be binned; drop them here so
			// later stages see a clean cloud.
			continue
		}
		c := cell{
			x: int64(math.Floor(p.X / voxel)),
			y: int64(math.Floor(p.Y / voxel)),
			z: int64(math.Floor(p.Z / voxel)),
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, p)
	}
	return out
}
