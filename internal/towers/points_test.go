package towers

import (
	"testing"

	"github.com/golang/geo/r3"
)

func TestCentroid(t *testing.T) {
	points := []r3.Vector{
		{X: 0, Y: 0, Z: 0},
		{X: 2, Y: 4, Z: 6},
		{X: 4, Y: 8, Z: 12},
	}

	c := Centroid(points)

	if !floatEquals(c.X, 2, 1e-9) || !floatEquals(c.Y, 4, 1e-9) || !floatEquals(c.Z, 6, 1e-9) {
		t.Errorf("Expected centroid (2,4,6), got %v", c)
	}
}

func TestCentroid_Empty(t *testing.T) {
	c := Centroid(nil)
	if c != (r3.Vector{}) {
		t.Errorf("Expected zero vector for empty input, got %v", c)
	}
}

func TestTranslate(t *testing.T) {
	points := []r3.Vector{
		{X: 1, Y: 2, Z: 3},
		{X: -1, Y: -2, Z: -3},
	}

	out := Translate(points, r3.Vector{X: 10, Y: 20, Z: 30})

	if out[0].X != 11 || out[0].Y != 22 || out[0].Z != 33 {
		t.Errorf("Expected (11,22,33), got %v", out[0])
	}
	if out[1].X != 9 || out[1].Y != 18 || out[1].Z != 27 {
		t.Errorf("Expected (9,18,27), got %v", out[1])
	}
	// The input must be left untouched.
	if points[0].X != 1 {
		t.Errorf("Translate modified its input: %v", points[0])
	}
}
