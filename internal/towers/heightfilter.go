package towers

import (
	"sort"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/stat"
)

// HeightFilter removes ground and low-vegetation returns before clustering.
// The ground level is estimated as the 25th percentile of z across the whole
// cloud; points at or below that level plus an offset are discarded. Corridor
// clouds are dominated by terrain returns, which keeps the percentile on the
// ground even when towers and spans are present.
type HeightFilter struct {
	// OffsetM is added to the percentile base to form the cut height.
	// Points must lie strictly above base+offset to survive.
	OffsetM float64

	// FallbackOffsetM replaces OffsetM for a single retry when fewer than
	// MinViablePoints survive the first pass (sparse or low-relief clouds).
	FallbackOffsetM float64

	// MinViablePoints is the survivor count below which the fallback
	// offset is tried.
	MinViablePoints int

	// Statistics (for logging and parameter tuning)
	pointsProcessed int64
	pointsKept      int64
	baseHeight      float64
	usedOffset      float64
	fellBack        bool
}

// NewHeightFilter constructs a height filter with the given offsets.
func NewHeightFilter(offsetM, fallbackOffsetM float64, minViablePoints int) *HeightFilter {
	return &HeightFilter{
		OffsetM:         offsetM,
		FallbackOffsetM: fallbackOffsetM,
		MinViablePoints: minViablePoints,
	}
}

// DefaultHeightFilter returns a filter configured for transmission-corridor
// survey clouds: cut 3m above the ground percentile, falling back to 1m when
// the cloud is too sparse to keep a workable population.
func DefaultHeightFilter() *HeightFilter {
	return NewHeightFilter(3.0, 1.0, 1000)
}

// Filter returns the points lying strictly above the estimated ground level
// plus the configured offset. When the survivor count falls below
// MinViablePoints the filter retries once with the fallback offset; Stats
// reports which offset was applied. Returns nil for an empty cloud.
func (f *HeightFilter) Filter(points []r3.Vector) []r3.Vector {
	f.resetStats()
	if len(points) == 0 {
		return nil
	}
	f.pointsProcessed = int64(len(points))

	zs := make([]float64, len(points))
	for i, p := range points {
		zs[i] = p.Z
	}
	sort.Float64s(zs)
	f.baseHeight = stat.Quantile(0.25, stat.LinInterp, zs, nil)

	f.usedOffset = f.OffsetM
	kept := f.keepAbove(points, f.baseHeight+f.OffsetM)
	if len(kept) < f.MinViablePoints && f.FallbackOffsetM != f.OffsetM {
		f.fellBack = true
		f.usedOffset = f.FallbackOffsetM
		kept = f.keepAbove(points, f.baseHeight+f.FallbackOffsetM)
	}
	f.pointsKept = int64(len(kept))
	return kept
}

// keepAbove copies out the points with z strictly above the cut height.
func (f *HeightFilter) keepAbove(points []r3.Vector, cut float64) []r3.Vector {
	kept := make([]r3.Vector, 0, len(points)/4)
	for _, p := range points {
		if p.Z > cut {
			kept = append(kept, p)
		}
	}
	return kept
}

// Stats returns the estimate and counters from the most recent Filter call.
func (f *HeightFilter) Stats() (processed, kept int64, baseHeight, usedOffset float64, fellBack bool) {
	return f.pointsProcessed, f.pointsKept, f.baseHeight, f.usedOffset, f.fellBack
}

func (f *HeightFilter) resetStats() {
	f.pointsProcessed = 0
	f.pointsKept = 0
	f.baseHeight = 0
	f.usedOffset = 0
	f.fellBack = false
}
