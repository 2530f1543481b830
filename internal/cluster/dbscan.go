package cluster

import "github.com/coder/hnsw"

// Noise labels a point that belongs to no cluster.
const Noise = -1

// DBSCAN labels vectors by density under cosine distance. A point with at
// least minSamples neighbours within eps (itself included) is a core point;
// clusters grow from core points and are numbered 0..k-1 in the order their
// first point appears. Points reachable from no core point are Noise.
// Region queries are exhaustive, so labels depend only on the input.
func DBSCAN(vectors [][]float32, eps float64, minSamples int) []int {
	n := len(vectors)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = Noise
	}
	if n == 0 {
		return labels
	}
	if minSamples < 1 {
		minSamples = 1
	}

	neighbors := make([][]int, n)
	for i := 0; i < n; i++ {
		neighbors[i] = append(neighbors[i], i)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if within(vectors[i], vectors[j], eps) {
				neighbors[i] = append(neighbors[i], j)
				neighbors[j] = append(neighbors[j], i)
			}
		}
	}

	visited := make([]bool, n)
	next := 0
	for i := 0; i < n; i++ {
		if visited[i] || len(neighbors[i]) < minSamples {
			continue
		}
		// breadth-first expansion from core point i
		queue := []int{i}
		visited[i] = true
		labels[i] = next
		for len(queue) > 0 {
			p := queue[0]
			queue = queue[1:]
			if len(neighbors[p]) < minSamples {
				continue
			}
			for _, q := range neighbors[p] {
				if labels[q] == Noise {
					labels[q] = next
				}
				if !visited[q] {
					visited[q] = true
					queue = append(queue, q)
				}
			}
		}
		next++
	}
	return labels
}

func within(a, b []float32, eps float64) bool {
	if len(a) == 0 || len(a) != len(b) {
		return false
	}
	d := hnsw.CosineDistance(a, b)
	// NaN from zero vectors compares false
	return float64(d) <= eps
}
