package towers

import (
	"context"
	"fmt"
	"sync"

	"github.com/golang/geo/r3"

	"github.com/gridline-data/corridor.report/internal/monitoring"
)

// DefaultChunkSize bounds per-pass clustering cost and peak index memory.
// A tower straddling a chunk boundary is split into two smaller clusters;
// that memory/latency tradeoff is accepted rather than corrected.
const DefaultChunkSize = 50000

// ChunkedClusterer splits a filtered cloud into consecutive fixed-size chunks,
// clusters each chunk independently, and remaps chunk-local labels into one
// global label space.
type ChunkedClusterer struct {
	Params    ClusterParams
	ChunkSize int
	// Workers sets how many chunks cluster concurrently. 1 reproduces the
	// strictly sequential reference pass; any value yields identical labels
	// because unification is a serial pass in chunk order.
	Workers int

	// OnChunk, when set, is called after each chunk's labels join the global
	// space, in chunk order. Used for progress reporting.
	OnChunk func(done, total int)

	// Logf receives per-chunk diagnostics. Defaults to the package logger.
	Logf func(format string, v ...interface{})
}

// NewChunkedClusterer creates a clusterer with the given parameters, applying
// defaults for out-of-range sizes and worker counts.
func NewChunkedClusterer(params ClusterParams, chunkSize, workers int) *ChunkedClusterer {
	if chunkSize < 1 {
		chunkSize = DefaultChunkSize
	}
	if workers < 1 {
		workers = 1
	}
	return &ChunkedClusterer{
		Params:    params,
		ChunkSize: chunkSize,
		Workers:   workers,
	}
}

// chunkResult carries one chunk's local labels to the unification pass.
type chunkResult struct {
	labels   []int
	clusters int
	err      error
}

// Cluster labels every point of the filtered cloud. Non-noise labels are
// globally unique 0-based ids assigned in chunk order; noise keeps NoiseLabel.
// The second return is the total cluster count (the final value of the label
// accumulator).
//
// A chunk that fails to cluster is logged, reported as a clustering fault
// and marked all-noise; the remaining chunks still run. Only context
// cancellation aborts the whole call.
func (c *ChunkedClusterer) Cluster(ctx context.Context, points []r3.Vector) ([]int, int, []Fault, error) {
	logf := c.Logf
	if logf == nil {
		logf = monitoring.Logf
	}
	if len(points) == 0 {
		return nil, 0, nil, nil
	}

	chunkSize := c.ChunkSize
	if chunkSize < 1 {
		chunkSize = DefaultChunkSize
	}
	numChunks := (len(points) + chunkSize - 1) / chunkSize

	results := make([]chunkResult, numChunks)
	if c.Workers <= 1 || numChunks == 1 {
		for ci := 0; ci < numChunks; ci++ {
			if err := ctx.Err(); err != nil {
				return nil, 0, nil, err
			}
			start := ci * chunkSize
			end := min(start+chunkSize, len(points))
			results[ci] = c.clusterChunk(points[start:end])
		}
	} else {
		if err := c.clusterParallel(ctx, points, chunkSize, results); err != nil {
			return nil, 0, nil, err
		}
	}

	// Label unification: a single-writer serial pass in chunk order. The
	// offset is an explicit accumulator, never shared state, so the result
	// is identical for any worker count.
	global := make([]int, len(points))
	var faults []Fault
	nextLabel := 0
	for ci := 0; ci < numChunks; ci++ {
		start := ci * chunkSize
		end := min(start+chunkSize, len(points))
		res := results[ci]

		if res.err != nil {
			logf("chunk %d/%d clustering failed: %v; marking %d points as noise",
				ci+1, numChunks, res.err, end-start)
			faults = append(faults, Fault{Stage: FaultClustering, Ref: ci, Err: res.err.Error()})
			for i := start; i < end; i++ {
				global[i] = NoiseLabel
			}
		} else {
			for i, l := range res.labels {
				if l == NoiseLabel {
					global[start+i] = NoiseLabel
				} else {
					global[start+i] = l + nextLabel
				}
			}
			nextLabel += res.clusters
		}

		if c.OnChunk != nil {
			c.OnChunk(ci+1, numChunks)
		}
	}

	return global, nextLabel, faults, nil
}

// clusterChunk runs one chunk's clustering pass, converting panics into chunk
// failures so a single bad chunk never aborts the run.
func (c *ChunkedClusterer) clusterChunk(chunk []r3.Vector) (res chunkResult) {
	defer func() {
		if r := recover(); r != nil {
			res = chunkResult{err: fmt.Errorf("clustering panic: %v", r)}
		}
	}()
	labels, clusters, err := Cluster(chunk, c.Params)
	return chunkResult{labels: labels, clusters: clusters, err: err}
}

// clusterParallel distributes chunks over a worker pool. Results land in
// their chunk's slot, preserving chunk order for the unification pass.
func (c *ChunkedClusterer) clusterParallel(ctx context.Context, points []r3.Vector, chunkSize int, results []chunkResult) error {
	numChunks := len(results)
	workers := min(c.Workers, numChunks)

	work := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ci := range work {
				start := ci * chunkSize
				end := min(start+chunkSize, len(points))
				results[ci] = c.clusterChunk(points[start:end])
			}
		}()
	}

	var cancelled error
feed:
	for ci := 0; ci < numChunks; ci++ {
		select {
		case work <- ci:
		case <-ctx.Done():
			cancelled = ctx.Err()
			break feed
		}
	}
	close(work)
	wg.Wait()

	if cancelled != nil {
		return cancelled
	}
	return ctx.Err()
}
