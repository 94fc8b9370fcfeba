package towers

import "github.com/golang/geo/r3"

// Constants for clustering configuration
const (
	// DefaultClusterEps is the default neighborhood radius in meters.
	// Transmission-tower lattices are sparse structures; a wide radius keeps
	// legs and body connected as one cluster.
	DefaultClusterEps = 8.0
	// DefaultClusterMinPts is the default minimum neighbor count to form a
	// dense region.
	DefaultClusterMinPts = 80
)

// ClusterParams contains parameters for the density clustering pass.
type ClusterParams struct {
	Eps    float64 // Neighborhood radius in meters
	MinPts int     // Minimum points to form a cluster
}

// DefaultClusterParams returns parameters suitable for dense corridor clouds.
func DefaultClusterParams() ClusterParams {
	return ClusterParams{
		Eps:    DefaultClusterEps,
		MinPts: DefaultClusterMinPts,
	}
}

// Cluster performs density-based clustering over points using full 3-D
// distances. It returns a label per point (0-based cluster ids in first-
// discovery order, NoiseLabel for unassigned points) and the number of
// clusters found. Fails without labeling anything when the chunk cannot be
// indexed (non-finite coordinates).
func Cluster(points []r3.Vector, params ClusterParams) ([]int, int, error) {
	if len(points) == 0 {
		return nil, 0, nil
	}

	n := len(points)
	labels := make([]int, n) // 0=unvisited, -1=noise, >0=clusterID
	clusterID := 0

	index := NewVoxelIndex(params.Eps)
	if err := index.Build(points); err != nil {
		return nil, 0, err
	}

	for i := 0; i < n; i++ {
		if labels[i] != 0 {
			continue // Already processed
		}

		neighbors := index.RegionQuery(points, i, params.Eps)

		if len(neighbors) < params.MinPts {
			labels[i] = -1 // Mark as noise
			continue
		}

		clusterID++
		expandCluster(points, index, labels, i, neighbors, clusterID, params.Eps, params.MinPts)
	}

	// Shift to the public label space: clusters 0-based, noise NoiseLabel.
	for i, l := range labels {
		if l > 0 {
			labels[i] = l - 1
		} else {
			labels[i] = NoiseLabel
		}
	}

	return labels, clusterID, nil
}

// expandCluster expands a cluster from a core point.
func expandCluster(points []r3.Vector, index *VoxelIndex, labels []int,
	seedIdx int, neighbors []int, clusterID int, eps float64, minPts int) {

	labels[seedIdx] = clusterID

	// Queue-based expansion; neighbors grows as core points are found
	for j := 0; j < len(neighbors); j++ {
		idx := neighbors[j]

		if labels[idx] == -1 {
			labels[idx] = clusterID // Noise becomes border point
		}

		if labels[idx] != 0 {
			continue // Already processed
		}

		labels[idx] = clusterID
		newNeighbors := index.RegionQuery(points, idx, eps)

		if len(newNeighbors) >= minPts {
			// Core point - add its neighbors to the queue
			neighbors = append(neighbors, newNeighbors...)
		}
	}
}
