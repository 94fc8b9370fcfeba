package towers

import (
	"math"

	"github.com/golang/geo/r3"

	"github.com/gridline-data/corridor.report/internal/monitoring"
)

// Default duplicate-suppression distances (meters)
const (
	// DefaultDuplicateThreshold is the center distance below which two
	// candidates are considered the same structure
	DefaultDuplicateThreshold = 25.0
	// DefaultStrictThreshold bounds the replacement policy: only
	// near-coincident duplicates are eligible to replace an acceptance
	DefaultStrictThreshold = 2.0
)

// Quality orders near-coincident detections of the same structure: larger
// boxes backed by more points win. The log term keeps point count from
// swamping the geometric terms.
func Quality(heightM, widthM float64, pointCount int) float64 {
	return heightM * widthM * math.Log(float64(pointCount)+1)
}

// DuplicateSuppressor rejects candidates whose centers fall within
// ThresholdM of an already-accepted tower. The first acceptance wins. With
// ReplaceWithin set, a later candidate inside StrictThresholdM of an
// accepted tower takes its place when it has strictly higher Quality; the
// replacement keeps the original slot so downstream ordering is stable.
type DuplicateSuppressor struct {
	ThresholdM       float64
	StrictThresholdM float64
	ReplaceWithin    bool
	Logf             func(format string, args ...any)

	records      []TowerRecord
	members      [][]r3.Vector
	duplicates   int
	replacements int
}

// NewDuplicateSuppressor creates a suppressor with the given distances.
func NewDuplicateSuppressor(thresholdM, strictThresholdM float64, replaceWithin bool) *DuplicateSuppressor {
	return &DuplicateSuppressor{
		ThresholdM:       thresholdM,
		StrictThresholdM: strictThresholdM,
		ReplaceWithin:    replaceWithin,
	}
}

// Offer presents the next candidate in cluster-discovery order. centroid is
// the world offset saved before height filtering; the candidate's box is
// translated by it so distance checks run in world coordinates. Returns
// true when the candidate was accepted or replaced an accepted record.
func (ds *DuplicateSuppressor) Offer(cand TowerCandidate, centroid r3.Vector) bool {
	box := cand.Box
	box.Center = box.Center.Add(centroid)

	// Nearest accepted record; ties keep the earliest acceptance.
	nearest := -1
	nearestDist := 0.0
	for i := range ds.records {
		d := ds.records[i].Box.Center.Sub(box.Center).Norm()
		if nearest < 0 || d < nearestDist {
			nearest = i
			nearestDist = d
		}
	}

	if nearest >= 0 && nearestDist < ds.ThresholdM {
		prev := &ds.records[nearest]
		if ds.ReplaceWithin && nearestDist < ds.StrictThresholdM &&
			Quality(cand.HeightM, cand.WidthM, len(cand.Members)) > Quality(prev.HeightM, prev.WidthM, prev.PointCount) {
			ds.logf("cluster %d replaces duplicate cluster %d (%.2fm apart, higher quality)",
				cand.Label, prev.Label, nearestDist)
			*prev = newRecord(cand, box)
			ds.members[nearest] = cand.Members
			ds.replacements++
			return true
		}
		ds.logf("cluster %d suppressed as duplicate, %.2fm from accepted cluster %d",
			cand.Label, nearestDist, prev.Label)
		ds.duplicates++
		return false
	}

	ds.records = append(ds.records, newRecord(cand, box))
	ds.members = append(ds.members, cand.Members)
	return true
}

// newRecord builds the world-frame record for an accepted candidate. ID,
// sequence number and north angle are filled in by the assembler.
func newRecord(cand TowerCandidate, worldBox OBB) TowerRecord {
	return TowerRecord{
		Label:      cand.Label,
		Box:        worldBox,
		HeightM:    cand.HeightM,
		WidthM:     cand.WidthM,
		Aspect:     cand.Aspect,
		PointCount: len(cand.Members),
	}
}

// Records returns the accepted towers in acceptance order.
func (ds *DuplicateSuppressor) Records() []TowerRecord { return ds.records }

// Members returns the member points of each accepted tower, parallel to
// Records, still centroid-relative.
func (ds *DuplicateSuppressor) Members() [][]r3.Vector { return ds.members }

// Counts reports how many candidates were suppressed and how many replaced
// an earlier acceptance.
func (ds *DuplicateSuppressor) Counts() (duplicates, replacements int) {
	return ds.duplicates, ds.replacements
}

func (ds *DuplicateSuppressor) logf(format string, args ...any) {
	if ds.Logf != nil {
		ds.Logf(format, args...)
		return
	}
	monitoring.Logf(format, args...)
}
