package towers

import (
	"context"
	"fmt"
	"sync"

	"github.com/golang/geo/r3"

	"github.com/gridline-data/corridor.report/internal/monitoring"
)

// GeometryAnalyzer turns a labeled cloud into classified tower candidates.
// Box estimation is independent per cluster and may run on Workers
// goroutines; classification and candidate collection are a single serial
// pass in label order, so output order never depends on the worker count.
type GeometryAnalyzer struct {
	Classifier ShapeClassifier
	Workers    int
	OnCluster  func(done, total int)
	Logf       func(format string, args ...any)
}

// NewGeometryAnalyzer creates an analyzer with the given shape rules.
func NewGeometryAnalyzer(classifier ShapeClassifier, workers int) *GeometryAnalyzer {
	if workers < 1 {
		workers = 1
	}
	return &GeometryAnalyzer{Classifier: classifier, Workers: workers}
}

type boxResult struct {
	box OBB
	err error
}

// Analyze gathers members per cluster label, estimates each cluster's
// bounding box and applies the shape rules. labels must be parallel to
// points with noise marked NoiseLabel; clusters is the label count.
// Candidates are returned in label order. Degenerate geometry is logged,
// reported as a fault and skipped; rule rejections are only logged.
func (ga *GeometryAnalyzer) Analyze(ctx context.Context, points []r3.Vector, labels []int, clusters int) ([]TowerCandidate, []Fault, error) {
	if clusters <= 0 {
		return nil, nil, nil
	}

	members := make([][]r3.Vector, clusters)
	for i, label := range labels {
		if label == NoiseLabel {
			continue
		}
		members[label] = append(members[label], points[i])
	}

	boxes := make([]boxResult, clusters)
	if ga.Workers > 1 {
		if err := ga.estimateParallel(ctx, members, boxes); err != nil {
			return nil, nil, err
		}
	} else {
		for label := range members {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
			boxes[label] = estimateClusterBox(members[label])
		}
	}

	var candidates []TowerCandidate
	var faults []Fault
	for label := range boxes {
		res := boxes[label]
		if res.err != nil {
			ga.logf("cluster %d geometry failed: %v; skipping", label, res.err)
			faults = append(faults, Fault{Stage: FaultGeometry, Ref: label, Err: res.err.Error()})
		} else {
			height := res.box.Height()
			width := res.box.Width()
			if ok, reason := ga.Classifier.Classify(res.box); !ok {
				ga.logf("cluster %d rejected: %s", label, reason)
			} else {
				candidates = append(candidates, TowerCandidate{
					Label:   label,
					Box:     res.box,
					HeightM: height,
					WidthM:  width,
					Aspect:  height / width,
					Members: members[label],
				})
			}
		}
		if ga.OnCluster != nil {
			ga.OnCluster(label+1, clusters)
		}
	}
	return candidates, faults, nil
}

// estimateClusterBox wraps EstimateOBB so a panic inside the numeric path
// degrades to a skipped cluster instead of tearing down the run.
func estimateClusterBox(members []r3.Vector) (res boxResult) {
	defer func() {
		if r := recover(); r != nil {
			res = boxResult{err: fmt.Errorf("geometry panic: %v", r)}
		}
	}()
	box, err := EstimateOBB(members)
	return boxResult{box: box, err: err}
}

func (ga *GeometryAnalyzer) estimateParallel(ctx context.Context, members [][]r3.Vector, boxes []boxResult) error {
	work := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < ga.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for label := range work {
				boxes[label] = estimateClusterBox(members[label])
			}
		}()
	}

	cancelled := false
feed:
	for label := range members {
		select {
		case <-ctx.Done():
			cancelled = true
			break feed
		case work <- label:
		}
	}
	close(work)
	wg.Wait()
	if cancelled {
		return ctx.Err()
	}
	return nil
}

func (ga *GeometryAnalyzer) logf(format string, args ...any) {
	if ga.Logf != nil {
		ga.Logf(format, args...)
		return
	}
	monitoring.Logf(format, args...)
}
