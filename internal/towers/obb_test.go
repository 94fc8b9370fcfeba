package towers

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
)

// boxCorners returns the 8 corners of an axis-aligned box.
func boxCorners(center r3.Vector, hx, hy, hz float64) []r3.Vector {
	var points []r3.Vector
	for _, sx := range []float64{-1, 1} {
		for _, sy := range []float64{-1, 1} {
			for _, sz := range []float64{-1, 1} {
				points = append(points, r3.Vector{
					X: center.X + sx*hx,
					Y: center.Y + sy*hy,
					Z: center.Z + sz*hz,
				})
			}
		}
	}
	return points
}

func TestEstimateOBB_TooFewPoints(t *testing.T) {
	points := []r3.Vector{{X: 0}, {X: 1}, {X: 2}}
	if _, err := EstimateOBB(points); err == nil {
		t.Fatal("expected an error for fewer than 4 points")
	}
}

func TestEstimateOBB_AxisAlignedBox(t *testing.T) {
	points := boxCorners(r3.Vector{X: 10, Y: 20, Z: 5}, 2, 1, 5)

	box, err := EstimateOBB(points)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !floatEquals(box.Center.X, 10, 1e-6) || !floatEquals(box.Center.Y, 20, 1e-6) || !floatEquals(box.Center.Z, 5, 1e-6) {
		t.Errorf("expected center (10,20,5), got %v", box.Center)
	}
	if !floatEquals(box.Extents[0], 4, 1e-6) || !floatEquals(box.Extents[1], 2, 1e-6) || !floatEquals(box.Extents[2], 10, 1e-6) {
		t.Errorf("expected extents [4 2 10], got %v", box.Extents)
	}
	if !floatEquals(box.Height(), 10, 1e-6) {
		t.Errorf("expected height 10, got %f", box.Height())
	}
	if !floatEquals(box.Width(), 4, 1e-6) {
		t.Errorf("expected width 4, got %f", box.Width())
	}

	// Canonical axes: vertical points up, principal horizontal toward +x.
	up := box.Axis(2)
	if !floatEquals(up.Z, 1, 1e-6) {
		t.Errorf("expected vertical axis +z, got %v", up)
	}
	principal := box.Axis(0)
	if !floatEquals(principal.X, 1, 1e-6) {
		t.Errorf("expected principal axis +x, got %v", principal)
	}
}

func TestEstimateOBB_WidthIsLargerHorizontalExtent(t *testing.T) {
	// Footprint is longer along y; the principal horizontal axis must
	// follow the variance, not the coordinate order.
	points := boxCorners(r3.Vector{}, 1.5, 3, 10)

	box, err := EstimateOBB(points)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !floatEquals(box.Width(), 6, 1e-6) {
		t.Errorf("expected width 6, got %f", box.Width())
	}
	principal := box.Axis(0)
	if !floatEquals(principal.X, 0, 1e-6) || !floatEquals(principal.Y, 1, 1e-6) {
		t.Errorf("expected principal axis +y, got %v", principal)
	}
}

func TestEstimateOBB_RotatedBox(t *testing.T) {
	theta := 30 * math.Pi / 180
	cosT, sinT := math.Cos(theta), math.Sin(theta)

	base := boxCorners(r3.Vector{}, 2, 1, 5)
	points := make([]r3.Vector, len(base))
	for i, p := range base {
		points[i] = r3.Vector{
			X: 5 + p.X*cosT - p.Y*sinT,
			Y: 5 + p.X*sinT + p.Y*cosT,
			Z: p.Z,
		}
	}

	box, err := EstimateOBB(points)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !floatEquals(box.Extents[0], 4, 1e-6) || !floatEquals(box.Extents[1], 2, 1e-6) || !floatEquals(box.Extents[2], 10, 1e-6) {
		t.Errorf("expected extents [4 2 10], got %v", box.Extents)
	}
	if !floatEquals(box.Center.X, 5, 1e-6) || !floatEquals(box.Center.Y, 5, 1e-6) {
		t.Errorf("expected center (5,5,0), got %v", box.Center)
	}
	principal := box.Axis(0)
	if !floatEquals(principal.X, cosT, 1e-6) || !floatEquals(principal.Y, sinT, 1e-6) {
		t.Errorf("expected principal axis rotated 30 degrees, got %v", principal)
	}
}

func TestEstimateOBB_Coincident(t *testing.T) {
	points := make([]r3.Vector, 5)
	for i := range points {
		points[i] = r3.Vector{X: 3, Y: 4, Z: 5}
	}
	if _, err := EstimateOBB(points); err == nil {
		t.Fatal("expected an error for coincident points")
	}
}

func TestEstimateOBB_CollinearVertical(t *testing.T) {
	var points []r3.Vector
	for i := 0; i < 10; i++ {
		points = append(points, r3.Vector{Z: float64(i)})
	}
	if _, err := EstimateOBB(points); err == nil {
		t.Fatal("expected an error for a collinear cluster")
	}
}
