package towers

import (
	"context"
	"fmt"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"

	"github.com/gridline-data/corridor.report/internal/monitoring"
)

// CloudSink stores the world-coordinate member points of an accepted tower.
// Implementations return the stored location, which is recorded on the
// tower's CloudPath. Export failures never remove the tower from the result.
type CloudSink interface {
	ExportCloud(rec TowerRecord, points []r3.Vector) (string, error)
}

// SummarySink writes a per-run summary of the accepted towers. It runs
// after extraction, so a summary failure never affects the result.
type SummarySink interface {
	WriteSummary(recs []TowerRecord) error
}

// Params are the tuning values for one extraction run. The zero value is
// not runnable; start from DefaultParams and override selectively.
type Params struct {
	VoxelSize          float64 `json:"voxel_size"`
	HeightOffset       float64 `json:"height_offset"`
	FallbackOffset     float64 `json:"fallback_offset"`
	MinViablePoints    int     `json:"min_viable_points"`
	Eps                float64 `json:"eps"`
	MinPoints          int     `json:"min_points"`
	ChunkSize          int     `json:"chunk_size"`
	Workers            int     `json:"workers"`
	MinHeight          float64 `json:"min_height"`
	MinWidth           float64 `json:"min_width"`
	MaxWidth           float64 `json:"max_width"`
	AspectRatio        float64 `json:"aspect_ratio_threshold"`
	DuplicateThreshold float64 `json:"duplicate_threshold"`
	StrictThreshold    float64 `json:"strict_threshold"`
	ReplaceWithin      bool    `json:"replace_within"`
}

// DefaultParams returns the tuning used for dense corridor survey clouds.
func DefaultParams() Params {
	return Params{
		HeightOffset:       3.0,
		FallbackOffset:     1.0,
		MinViablePoints:    1000,
		Eps:                DefaultClusterEps,
		MinPoints:          DefaultClusterMinPts,
		ChunkSize:          DefaultChunkSize,
		Workers:            1,
		MinHeight:          DefaultMinHeight,
		MinWidth:           DefaultMinWidth,
		MaxWidth:           DefaultMaxWidth,
		AspectRatio:        DefaultAspectRatio,
		DuplicateThreshold: DefaultDuplicateThreshold,
		StrictThreshold:    DefaultStrictThreshold,
	}
}

// Extractor runs the tower-extraction pipeline: optional voxel thinning,
// height filtering in a centroid-local frame, chunked clustering, per-cluster
// box estimation and shape screening, duplicate suppression, and world-frame
// assembly.
type Extractor struct {
	Params Params

	// Progress receives percentage milestones in [0,100], synchronously
	// from the calling goroutine. Nil disables reporting.
	Progress func(percent int)

	// Logf receives run diagnostics. Defaults to the package logger.
	Logf func(format string, args ...any)

	// Sink, when set, receives each accepted tower's sub-cloud.
	Sink CloudSink
}

// NewExtractor creates an extractor with the given tuning.
func NewExtractor(params Params) *Extractor {
	return &Extractor{Params: params}
}

// Extract runs the full pipeline over cloud. The returned error is non-nil
// only when the run could not complete at all: empty input or context
// cancellation. Recoverable stage failures are logged and carried in
// Result.Faults instead. Towers is empty whenever the error is non-nil.
func (ex *Extractor) Extract(ctx context.Context, cloud []r3.Vector) (*Result, error) {
	p := ex.Params
	stats := RunStats{PointsIn: len(cloud)}

	if len(cloud) == 0 {
		ex.logf("extraction aborted: point cloud is empty")
		return &Result{Stats: stats}, fmt.Errorf("point cloud is empty")
	}
	if err := ctx.Err(); err != nil {
		return &Result{Stats: stats}, err
	}

	points := cloud
	if p.VoxelSize > 0 {
		points = Downsample(cloud, p.VoxelSize)
		ex.logf("voxel downsample %.2fm kept %d of %d points", p.VoxelSize, len(points), len(cloud))
		if len(points) == 0 {
			ex.logf("extraction aborted: no usable points after downsampling")
			return &Result{Stats: stats}, fmt.Errorf("no usable points after downsampling")
		}
	}
	stats.PointsDownsampled = len(points)
	ex.progress(5)

	// Work in a centroid-local frame; the offset is restored on assembly.
	centroid := Centroid(points)
	stats.Centroid = centroid
	local := Translate(points, centroid.Mul(-1))

	hf := NewHeightFilter(p.HeightOffset, p.FallbackOffset, p.MinViablePoints)
	filtered := hf.Filter(local)
	_, _, base, usedOffset, fellBack := hf.Stats()
	stats.PointsFiltered = len(filtered)
	stats.BaseHeight = base
	stats.UsedOffset = usedOffset
	stats.FellBack = fellBack
	if fellBack {
		ex.logf("height filter fell back to offset %.2fm (first pass kept under %d points)",
			usedOffset, p.MinViablePoints)
	}
	ex.logf("height filter kept %d of %d points (ground %.2fm, cut +%.2fm)",
		len(filtered), len(points), base, usedOffset)
	ex.progress(10)

	if err := ctx.Err(); err != nil {
		return &Result{Stats: stats}, err
	}

	ex.progress(20)
	cc := NewChunkedClusterer(ClusterParams{Eps: p.Eps, MinPts: p.MinPoints}, p.ChunkSize, p.Workers)
	cc.Logf = monitoring.Prefixed("cluster:", ex.Logf)
	cc.OnChunk = func(done, total int) { ex.progress(20 + 50*done/total) }
	labels, clusters, faults, err := cc.Cluster(ctx, filtered)
	if err != nil {
		return &Result{Stats: stats, Faults: faults}, err
	}
	if len(filtered) > 0 {
		stats.Chunks = (len(filtered) + cc.ChunkSize - 1) / cc.ChunkSize
	}
	stats.Clusters = clusters
	ex.logf("clustering found %d clusters in %d chunks", clusters, stats.Chunks)

	ex.progress(75)
	ga := NewGeometryAnalyzer(NewShapeClassifier(p.MinHeight, p.MinWidth, p.MaxWidth, p.AspectRatio), p.Workers)
	ga.Logf = monitoring.Prefixed("geometry:", ex.Logf)
	ga.OnCluster = func(done, total int) { ex.progress(75 + 15*done/total) }
	candidates, geoFaults, err := ga.Analyze(ctx, filtered, labels, clusters)
	faults = append(faults, geoFaults...)
	if err != nil {
		return &Result{Stats: stats, Faults: faults}, err
	}
	stats.Candidates = len(candidates)

	sup := NewDuplicateSuppressor(p.DuplicateThreshold, p.StrictThreshold, p.ReplaceWithin)
	sup.Logf = monitoring.Prefixed("dedupe:", ex.Logf)
	for _, cand := range candidates {
		sup.Offer(cand, centroid)
	}
	stats.Duplicates, stats.Replacements = sup.Counts()

	ex.progress(90)
	records := sup.Records()
	members := sup.Members()
	for i := range records {
		rec := &records[i]
		rec.ID = uuid.New().String()
		rec.Seq = i + 1
		angle, ok := EstimateNorthAngle(rec.Box)
		if !ok {
			ex.logf("tower %d has no horizontal orientation; recording 0", rec.Seq)
		}
		rec.NorthAngleDeg = angle
		if ex.Sink != nil {
			path, expErr := ex.Sink.ExportCloud(*rec, Translate(members[i], centroid))
			if expErr != nil {
				ex.logf("tower %d cloud export failed: %v", rec.Seq, expErr)
				faults = append(faults, Fault{Stage: FaultExport, Ref: rec.Seq, Err: expErr.Error()})
			} else {
				rec.CloudPath = path
			}
		}
	}

	ex.progress(100)
	ex.logf("extraction complete: %d towers from %d candidates, %d clusters, %d faults",
		len(records), stats.Candidates, clusters, len(faults))
	return &Result{Towers: records, Faults: faults, Stats: stats}, nil
}

func (ex *Extractor) progress(percent int) {
	if ex.Progress != nil {
		ex.Progress(percent)
	}
}

func (ex *Extractor) logf(format string, args ...any) {
	if ex.Logf != nil {
		ex.Logf(format, args...)
		return
	}
	monitoring.Logf(format, args...)
}
