// Package similarity provides density-based clustering of embedding vectors.
package similarity

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Default clustering parameters for article embeddings.
const (
	DefaultEps        = 0.53
	DefaultMinSamples = 2
)

var (
	// ErrDimensionMismatch is returned when the input vectors differ in length.
	ErrDimensionMismatch = errors.New("similarity: vectors have different dimensions")

	// ErrInvalidParams is returned for a non-positive eps or min samples.
	ErrInvalidParams = errors.New("similarity: eps and min samples must be positive")
)

// ClusterID identifies a cluster within one clustering run. Values carry no
// meaning beyond grouping and are not stable across runs with different input.
type ClusterID int

// Assignment is the cluster membership of one input vector: either a cluster
// or noise.
type Assignment struct {
	id        ClusterID
	clustered bool
}

// Clustered returns an assignment to the given cluster.
func Clustered(id ClusterID) Assignment {
	return Assignment{id: id, clustered: true}
}

// Noise returns the unclustered assignment.
func Noise() Assignment {
	return Assignment{}
}

// Cluster returns the cluster id and true, or false for noise.
func (a Assignment) Cluster() (ClusterID, bool) {
	return a.id, a.clustered
}

func (a Assignment) String() string {
	if !a.clustered {
		return "noise"
	}
	return fmt.Sprintf("cluster(%d)", a.id)
}

// DBSCAN clusters vectors by density. Two points are neighbors when their
// Euclidean distance is at most Eps. A point whose neighborhood, itself
// included, holds at least MinSamples points is a core point; clusters are
// the core points reachable from each other plus their border neighbors.
type DBSCAN struct {
	Eps        float64
	MinSamples int
}

// NewDBSCAN returns a clusterer with the default article parameters.
func NewDBSCAN() *DBSCAN {
	return &DBSCAN{Eps: DefaultEps, MinSamples: DefaultMinSamples}
}

// Cluster assigns every vector to a cluster or to noise. The result has the
// same length and order as vectors. Points are visited in input order and
// clusters are numbered from 0 in discovery order, so the output is fully
// determined by the input.
func (d *DBSCAN) Cluster(vectors [][]float64) ([]Assignment, error) {
	if d.Eps <= 0 || d.MinSamples < 1 {
		return nil, ErrInvalidParams
	}
	n := len(vectors)
	if n == 0 {
		return []Assignment{}, nil
	}
	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: vector %d has %d, want %d", ErrDimensionMismatch, i, len(v), dim)
		}
	}

	// Find neighborhoods and core points
	neighbors := d.neighborhoods(vectors)
	core := make([]bool, n)
	for i, nb := range neighbors {
		core[i] = len(nb) >= d.MinSamples
	}

	const unvisited = -1
	labels := make([]int, n)
	for i := range labels {
		labels[i] = unvisited
	}

	// Expand clusters from core points in input order
	next := 0
	for i := 0; i < n; i++ {
		if labels[i] != unvisited || !core[i] {
			continue
		}
		stack := []int{i}
		for len(stack) > 0 {
			p := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if labels[p] != unvisited {
				continue
			}
			labels[p] = next
			if !core[p] {
				continue
			}
			for _, q := range neighbors[p] {
				if labels[q] == unvisited {
					stack = append(stack, q)
				}
			}
		}
		next++
	}

	// Convert to assignments
	out := make([]Assignment, n)
	for i, l := range labels {
		if l == unvisited {
			out[i] = Noise()
		} else {
			out[i] = Clustered(ClusterID(l))
		}
	}
	return out, nil
}

// neighborhoods returns, for each point, the indices within Eps of it,
// including the point itself.
func (d *DBSCAN) neighborhoods(vectors [][]float64) [][]int {
	n := len(vectors)
	out := make([][]int, n)
	for i := 0; i < n; i++ {
		out[i] = append(out[i], i)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if floats.Distance(vectors[i], vectors[j], 2) <= d.Eps {
				out[i] = append(out[i], j)
				out[j] = append(out[j], i)
			}
		}
	}
	return out
}

// Groups collects the member indices of every cluster, in input order.
// Noise points are not included.
func Groups(assignments []Assignment) map[ClusterID][]int {
	groups := make(map[ClusterID][]int)
	for i, a := range assignments {
		if id, ok := a.Cluster(); ok {
			groups[id] = append(groups[id], i)
		}
	}
	return groups
}
