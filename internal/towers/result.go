package towers

import "github.com/golang/geo/r3"

// TowerCandidate is a cluster that passed geometric screening, still in the
// centroid-relative frame used by the pipeline internals.
type TowerCandidate struct {
	Label   int
	Box     OBB
	HeightM float64
	WidthM  float64
	Aspect  float64
	Members []r3.Vector
}

// TowerRecord is one accepted tower in world coordinates.
type TowerRecord struct {
	ID            string  `json:"id"`
	Seq           int     `json:"seq"`
	Label         int     `json:"label"`
	Box           OBB     `json:"box"`
	HeightM       float64 `json:"height_m"`
	WidthM        float64 `json:"width_m"`
	Aspect        float64 `json:"aspect"`
	NorthAngleDeg float64 `json:"north_angle_deg"`
	PointCount    int     `json:"point_count"`
	CloudPath     string  `json:"cloud_path,omitempty"`
}

// Fault stages.
const (
	FaultClustering = "clustering"
	FaultGeometry   = "geometry"
	FaultExport     = "export"
)

// Fault records a recoverable stage failure the pipeline skipped over.
// Ref identifies what failed: the chunk index for clustering faults, the
// cluster label for geometry faults, the tower sequence for export faults.
type Fault struct {
	Stage string `json:"stage"`
	Ref   int    `json:"ref"`
	Err   string `json:"err"`
}

// RunStats summarizes one extraction pass for logging and run persistence.
type RunStats struct {
	PointsIn          int       `json:"points_in"`
	PointsDownsampled int       `json:"points_downsampled"`
	PointsFiltered    int       `json:"points_filtered"`
	Chunks            int       `json:"chunks"`
	Clusters          int       `json:"clusters"`
	Candidates        int       `json:"candidates"`
	Duplicates        int       `json:"duplicates"`
	Replacements      int       `json:"replacements"`
	BaseHeight        float64   `json:"base_height"`
	UsedOffset        float64   `json:"used_offset"`
	FellBack          bool      `json:"fell_back"`
	Centroid          r3.Vector `json:"centroid"`
}

// Result is the outcome of one extraction run. Towers are ordered by
// acceptance; Faults carry the recoverable failures that were logged and
// skipped so callers can inspect them without parsing log output.
type Result struct {
	Towers []TowerRecord `json:"towers"`
	Faults []Fault       `json:"faults,omitempty"`
	Stats  RunStats      `json:"stats"`
}
