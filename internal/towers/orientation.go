package towers

import "math"

// orientationEpsilon is the minimum horizontal length for a box axis to
// define a bearing.
const orientationEpsilon = 1e-6

// EstimateNorthAngle derives the compass bearing of a box's dominant
// horizontal axis. Among the three rotation columns it picks the one with
// the largest horizontal projection, so a leaning box still reports the
// direction its footprint faces rather than the tilt of its height axis.
//
// The bearing is measured clockwise from north in degrees, in [0, 360).
// ok is false when no axis has a usable horizontal component; callers
// should log that and record the angle as 0.
func EstimateNorthAngle(box OBB) (angle float64, ok bool) {
	best := -1.0
	var bx, by float64
	for i := 0; i < 3; i++ {
		axis := box.Axis(i)
		h := math.Hypot(axis.X, axis.Y)
		if h > best {
			best = h
			bx, by = axis.X, axis.Y
		}
	}
	if best < orientationEpsilon {
		return 0, false
	}
	deg := math.Atan2(by, bx) * 180 / math.Pi
	north := math.Mod(90-deg, 360)
	if north < 0 {
		north += 360
	}
	return north, true
}
