package towers

import (
	"math"

	"github.com/golang/geo/r3"
)

// NoiseLabel marks points left unassigned by clustering.
const NoiseLabel = -1

// Centroid returns the arithmetic mean of points. Returns the zero vector for
// an empty slice.
func Centroid(points []r3.Vector) r3.Vector {
	if len(points) == 0 {
		return r3.Vector{}
	}
	var sum r3.Vector
	for _, p := range points {
		sum = sum.Add(p)
	}
	return sum.Mul(1 / float64(len(points)))
}

// Translate returns a copy of points shifted by delta. The input slice is not
// modified; pipeline stages treat the loaded cloud as immutable.
func Translate(points []r3.Vector, delta r3.Vector) []r3.Vector {
	out := make([]r3.Vector, len(points))
	for i, p := range points {
		out[i] = p.Add(delta)
	}
	return out
}

// isFinite reports whether all three coordinates are finite numbers.
// Non-finite coordinates poison grid hashing and projections.
func isFinite(v r3.Vector) bool {
	return !math.IsNaN(v.X) && !math.IsInf(v.X, 0) &&
		!math.IsNaN(v.Y) && !math.IsInf(v.Y, 0) &&
		!math.IsNaN(v.Z) && !math.IsInf(v.Z, 0)
}
