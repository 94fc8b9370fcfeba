package towers

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// obbCovarianceEpsilon is the minimum threshold for numerical stability in
// covariance matrix operations during OBB estimation. Values below this are
// considered effectively zero for purposes of eigenvalue computation.
const obbCovarianceEpsilon = 1e-9

// OBB is a principal-axis-aligned oriented bounding box.
//
// Rotation holds the box axes as columns of an orthonormal, right-handed
// 3x3 matrix. Columns 0 and 1 are the horizontal-plane axes ordered by
// decreasing variance; column 2 is the axis closest to vertical, oriented
// with a non-negative z component. Extents are the full side lengths along
// the corresponding columns.
type OBB struct {
	Center   r3.Vector
	Rotation [3][3]float64
	Extents  [3]float64
}

// Axis returns the box axis stored in Rotation column i.
func (b OBB) Axis(i int) r3.Vector {
	return r3.Vector{X: b.Rotation[0][i], Y: b.Rotation[1][i], Z: b.Rotation[2][i]}
}

// Height is the box extent along the near-vertical axis.
func (b OBB) Height() float64 { return b.Extents[2] }

// Width is the larger of the two horizontal extents.
func (b OBB) Width() float64 { return math.Max(b.Extents[0], b.Extents[1]) }

// EstimateOBB computes an oriented bounding box for a cluster using PCA on
// the full 3-D covariance. Tower clusters are tall, mostly-vertical
// structures, so the eigenvector closest to vertical is assigned to the
// box's height axis regardless of its variance rank.
//
// Algorithm:
//  1. Compute the cluster mean
//  2. Build the 3x3 covariance matrix
//  3. Eigendecompose (gonum EigenSym)
//  4. Order axes: vertical-most eigenvector last, horizontals by variance
//  5. Project points onto the axes to find extents and the box center
//
// Degenerate clusters (too few points, coincident or collinear geometry)
// return an error and are skipped by the caller.
func EstimateOBB(points []r3.Vector) (OBB, error) {
	n := len(points)
	if n < 4 {
		return OBB{}, fmt.Errorf("cluster of %d points is too small for box estimation", n)
	}

	mean := Centroid(points)

	var cxx, cxy, cxz, cyy, cyz, czz float64
	for _, p := range points {
		d := p.Sub(mean)
		cxx += d.X * d.X
		cxy += d.X * d.Y
		cxz += d.X * d.Z
		cyy += d.Y * d.Y
		cyz += d.Y * d.Z
		czz += d.Z * d.Z
	}
	nf := float64(n)
	cxx /= nf
	cxy /= nf
	cxz /= nf
	cyy /= nf
	cyz /= nf
	czz /= nf

	if cxx+cyy+czz < obbCovarianceEpsilon {
		return OBB{}, fmt.Errorf("cluster has no spatial extent")
	}

	sym := mat.NewSymDense(3, []float64{
		cxx, cxy, cxz,
		cxy, cyy, cyz,
		cxz, cyz, czz,
	})
	var eig mat.EigenSym
	if !eig.Factorize(sym, true) {
		return OBB{}, fmt.Errorf("covariance eigendecomposition failed")
	}

	vals := eig.Values(nil) // ascending order
	if vals[1] < obbCovarianceEpsilon {
		// Only one direction of variance: a line has no usable footprint.
		return OBB{}, fmt.Errorf("cluster is collinear")
	}

	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	axes := [3]r3.Vector{}
	for i := 0; i < 3; i++ {
		axes[i] = r3.Vector{X: vecs.At(0, i), Y: vecs.At(1, i), Z: vecs.At(2, i)}
	}

	// Pick the eigenvector closest to vertical for the height axis.
	vert := 0
	for i := 1; i < 3; i++ {
		if math.Abs(axes[i].Z) > math.Abs(axes[vert].Z) {
			vert = i
		}
	}
	// The remaining two axes keep eigenvalue order: larger variance first.
	// vals is ascending, so the later index carries the larger eigenvalue.
	var rem []int
	for i := 2; i >= 0; i-- {
		if i != vert {
			rem = append(rem, i)
		}
	}
	col0, col1 := axes[rem[0]], axes[rem[1]]

	// Rebuild an exact right-handed triad, then canonicalize signs: the
	// vertical axis points up, the principal horizontal axis points toward
	// +x (ties toward +y). Eigenvector signs are arbitrary; pinning them
	// keeps repeated runs and mirrored inputs comparable.
	col2 := col0.Cross(col1)
	if col2.Z < 0 {
		col1 = col1.Mul(-1)
		col2 = col2.Mul(-1)
	}
	if col0.X < 0 || (col0.X == 0 && col0.Y < 0) {
		col0 = col0.Mul(-1)
		col1 = col1.Mul(-1)
	}

	cols := [3]r3.Vector{col0, col1, col2}
	var minP, maxP [3]float64
	for k := 0; k < 3; k++ {
		minP[k] = math.MaxFloat64
		maxP[k] = -math.MaxFloat64
	}
	for _, p := range points {
		d := p.Sub(mean)
		for k, axis := range cols {
			proj := d.Dot(axis)
			if proj < minP[k] {
				minP[k] = proj
			}
			if proj > maxP[k] {
				maxP[k] = proj
			}
		}
	}

	center := mean
	var extents [3]float64
	for k, axis := range cols {
		extents[k] = maxP[k] - minP[k]
		center = center.Add(axis.Mul((minP[k] + maxP[k]) / 2))
	}

	return OBB{
		Center: center,
		Rotation: [3][3]float64{
			{col0.X, col1.X, col2.X},
			{col0.Y, col1.Y, col2.Y},
			{col0.Z, col1.Z, col2.Z},
		},
		Extents: extents,
	}, nil
}
