package towers

import "fmt"

// Tower shape thresholds (meters, configurable for tuning)
const (
	// DefaultMinHeight rejects vegetation and low structures
	DefaultMinHeight = 15.0
	// DefaultMinWidth rejects poles and narrow masts
	DefaultMinWidth = 8.0
	// DefaultMaxWidth rejects buildings and merged clusters
	DefaultMaxWidth = 50.0
	// DefaultAspectRatio is the minimum height/width proportion
	DefaultAspectRatio = 0.8

	// widthEpsilon guards the aspect-ratio division
	widthEpsilon = 1e-9
)

// ShapeClassifier applies rule-based geometric screening to cluster
// bounding boxes. All comparisons are strict: a box sitting exactly on a
// threshold is rejected.
type ShapeClassifier struct {
	MinHeightM     float64
	MinWidthM      float64
	MaxWidthM      float64
	MinAspectRatio float64
}

// NewShapeClassifier creates a classifier with the given thresholds.
func NewShapeClassifier(minHeight, minWidth, maxWidth, minAspect float64) ShapeClassifier {
	return ShapeClassifier{
		MinHeightM:     minHeight,
		MinWidthM:      minWidth,
		MaxWidthM:      maxWidth,
		MinAspectRatio: minAspect,
	}
}

// DefaultShapeClassifier creates a classifier tuned for transmission towers.
func DefaultShapeClassifier() ShapeClassifier {
	return NewShapeClassifier(DefaultMinHeight, DefaultMinWidth, DefaultMaxWidth, DefaultAspectRatio)
}

// Classify decides whether a bounding box has tower proportions. When the
// box is rejected the returned reason names the failing rule so callers can
// log it against the cluster label.
func (sc ShapeClassifier) Classify(box OBB) (bool, string) {
	height := box.Height()
	width := box.Width()

	// Rules in priority order: degenerate footprints first so the aspect
	// ratio is never computed against a near-zero width.
	if width < widthEpsilon {
		return false, fmt.Sprintf("degenerate footprint (width %.6fm)", width)
	}
	if height <= sc.MinHeightM {
		return false, fmt.Sprintf("height %.2fm not above %.2fm", height, sc.MinHeightM)
	}
	if width <= sc.MinWidthM || width >= sc.MaxWidthM {
		return false, fmt.Sprintf("width %.2fm outside (%.2fm, %.2fm)", width, sc.MinWidthM, sc.MaxWidthM)
	}
	aspect := height / width
	if aspect <= sc.MinAspectRatio {
		return false, fmt.Sprintf("aspect ratio %.2f not above %.2f", aspect, sc.MinAspectRatio)
	}
	return true, ""
}
