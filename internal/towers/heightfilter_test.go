package towers

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
)

func TestDefaultHeightFilter(t *testing.T) {
	filter := DefaultHeightFilter()

	if filter.OffsetM != 3.0 {
		t.Errorf("Expected OffsetM=3.0, got %f", filter.OffsetM)
	}
	if filter.FallbackOffsetM != 1.0 {
		t.Errorf("Expected FallbackOffsetM=1.0, got %f", filter.FallbackOffsetM)
	}
	if filter.MinViablePoints != 1000 {
		t.Errorf("Expected MinViablePoints=1000, got %d", filter.MinViablePoints)
	}
}

func TestHeightFilter_EmptyCloud(t *testing.T) {
	filter := DefaultHeightFilter()

	if result := filter.Filter(nil); result != nil {
		t.Errorf("Expected nil output for nil input, got %v", result)
	}
	if result := filter.Filter([]r3.Vector{}); result != nil {
		t.Errorf("Expected nil output for empty input, got %v", result)
	}
}

func TestHeightFilter_StrictCut(t *testing.T) {
	filter := NewHeightFilter(3.0, 1.0, 1)

	// 100 ground points pin the 25th percentile at z=0. Points exactly on
	// the cut height must be discarded.
	var input []r3.Vector
	for i := 0; i < 100; i++ {
		input = append(input, r3.Vector{X: float64(i), Y: 0, Z: 0})
	}
	for i := 0; i < 10; i++ {
		input = append(input, r3.Vector{X: float64(i), Y: 1, Z: 3.0}) // on the cut
	}
	for i := 0; i < 5; i++ {
		input = append(input, r3.Vector{X: float64(i), Y: 2, Z: 3.1}) // above the cut
	}

	output := filter.Filter(input)

	if len(output) != 5 {
		t.Fatalf("Expected 5 points above the cut, got %d", len(output))
	}
	for _, p := range output {
		if p.Z <= 3.0 {
			t.Errorf("Point with z=%f survived a strict cut at 3.0", p.Z)
		}
	}

	processed, kept, base, usedOffset, fellBack := filter.Stats()
	if processed != 115 || kept != 5 {
		t.Errorf("Stats: processed=%d kept=%d", processed, kept)
	}
	if !floatEquals(base, 0.0, 1e-9) {
		t.Errorf("Expected base height 0.0, got %f", base)
	}
	if !floatEquals(usedOffset, 3.0, 1e-9) {
		t.Errorf("Expected offset 3.0, got %f", usedOffset)
	}
	if fellBack {
		t.Error("Expected no fallback with MinViablePoints=1")
	}
}

func TestHeightFilter_PercentileBase(t *testing.T) {
	filter := NewHeightFilter(3.0, 1.0, 1)

	// z = 0..99: the interpolated 25th percentile is 24.75.
	var input []r3.Vector
	for i := 0; i < 100; i++ {
		input = append(input, r3.Vector{Z: float64(i)})
	}

	output := filter.Filter(input)

	_, _, base, _, _ := filter.Stats()
	if base < 24.0 || base > 25.0 {
		t.Errorf("Expected base height near the lower quartile, got %f", base)
	}
	// Any base in [24,25] cuts at base+3, keeping z in 28..99.
	if len(output) != 72 {
		t.Errorf("Expected 72 points above the cut, got %d", len(output))
	}
}

func TestHeightFilter_Fallback(t *testing.T) {
	filter := NewHeightFilter(3.0, 1.0, 10)

	var input []r3.Vector
	for i := 0; i < 100; i++ {
		input = append(input, r3.Vector{Z: 0})
	}
	for i := 0; i < 8; i++ {
		input = append(input, r3.Vector{Z: 2.0}) // below first cut, above fallback
	}

	output := filter.Filter(input)

	// First pass keeps nothing; the fallback keeps all eight elevated
	// points even though they still miss the viability target.
	if len(output) != 8 {
		t.Fatalf("Expected 8 points after fallback, got %d", len(output))
	}
	_, kept, _, usedOffset, fellBack := filter.Stats()
	if !fellBack {
		t.Error("Expected fallback to trigger")
	}
	if !floatEquals(usedOffset, 1.0, 1e-9) {
		t.Errorf("Expected used offset 1.0, got %f", usedOffset)
	}
	if kept != 8 {
		t.Errorf("Expected kept=8, got %d", kept)
	}
}

func TestHeightFilter_SameOffsetNoFallback(t *testing.T) {
	filter := NewHeightFilter(3.0, 3.0, 1000)

	var input []r3.Vector
	for i := 0; i < 50; i++ {
		input = append(input, r3.Vector{Z: 0})
	}

	output := filter.Filter(input)

	if len(output) != 0 {
		t.Errorf("Expected 0 points kept, got %d", len(output))
	}
	_, _, _, _, fellBack := filter.Stats()
	if fellBack {
		t.Error("Fallback must not trigger when both offsets are equal")
	}
}

// floatEquals compares two float64 values with a tolerance
func floatEquals(a, b, tolerance float64) bool {
	return math.Abs(a-b) < tolerance
}
