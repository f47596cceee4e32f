// Package cluster implements the clustering estimators.
package cluster

import (
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/synaptica-ai/automl/pkg/ml"
)

// KMeans partitions rows into NClusters groups around centroids seeded with
// k-means++. The best of NInit seeded runs by inertia is kept.
type KMeans struct {
	NClusters   int
	MaxIter     int
	NInit       int
	Tol         float64
	RandomState int64

	Centroids [][]float64
	Inertia   float64
}

func NewKMeans(p ml.Params) (*KMeans, error) {
	m := &KMeans{
		NClusters:   p.Int("n_clusters", 3),
		MaxIter:     p.Int("max_iter", 300),
		NInit:       p.Int("n_init", 10),
		Tol:         p.Get("tol", 1e-4),
		RandomState: int64(p.Int("random_state", 42)),
	}
	if err := checkClusters(m.NClusters, m.MaxIter); err != nil {
		return nil, err
	}
	if m.NInit < 1 {
		return nil, ml.InvalidParam("n_init", float64(m.NInit), ">= 1")
	}
	return m, nil
}

func (m *KMeans) Params() ml.Params {
	return ml.Params{
		"n_clusters":   float64(m.NClusters),
		"max_iter":     float64(m.MaxIter),
		"n_init":       float64(m.NInit),
		"tol":          m.Tol,
		"random_state": float64(m.RandomState),
	}
}

func (m *KMeans) FitPredict(x mat.Matrix) ([]int, error) {
	rows, err := checkRows(x, m.NClusters)
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(m.RandomState))
	var best []int
	m.Inertia = math.Inf(1)
	for run := 0; run < m.NInit; run++ {
		centers := plusPlus(rows, m.NClusters, rng)
		labels, inertia := lloyd(rows, centers, m.MaxIter, m.Tol)
		if inertia < m.Inertia {
			m.Inertia, m.Centroids, best = inertia, centers, labels
		}
	}
	return best, nil
}

func (m *KMeans) Predict(x mat.Matrix) ([]float64, error) {
	return predictNearest(m.Centroids, x)
}

func checkClusters(k, maxIter int) error {
	if k < 1 {
		return ml.InvalidParam("n_clusters", float64(k), ">= 1")
	}
	if maxIter < 1 {
		return ml.InvalidParam("max_iter", float64(maxIter), ">= 1")
	}
	return nil
}

func checkRows(x mat.Matrix, k int) ([][]float64, error) {
	n, _, err := ml.CheckXY(x, nil)
	if err != nil {
		return nil, err
	}
	if n < k {
		return nil, fmt.Errorf("n_samples=%d should be >= n_clusters=%d", n, k)
	}
	return ml.Rows(x), nil
}

// plusPlus picks k initial centers, each with probability proportional to its
// squared distance from the centers chosen so far.
func plusPlus(rows [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(rows)
	centers := make([][]float64, 0, k)
	centers = append(centers, append([]float64(nil), rows[rng.Intn(n)]...))
	dist := make([]float64, n)
	for i, r := range rows {
		dist[i] = ml.SquaredDistance(r, centers[0])
	}
	for len(centers) < k {
		var total float64
		for _, d := range dist {
			total += d
		}
		pick := rng.Intn(n)
		if total > 0 {
			target := rng.Float64() * total
			for i, d := range dist {
				target -= d
				if target <= 0 {
					pick = i
					break
				}
			}
		}
		c := append([]float64(nil), rows[pick]...)
		centers = append(centers, c)
		for i, r := range rows {
			dist[i] = math.Min(dist[i], ml.SquaredDistance(r, c))
		}
	}
	return centers
}

// lloyd refines centers in place and returns the final labels and inertia.
func lloyd(rows [][]float64, centers [][]float64, maxIter int, tol float64) ([]int, float64) {
	n, p, k := len(rows), len(rows[0]), len(centers)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}
	for it := 0; it < maxIter; it++ {
		changed := assign(rows, centers, labels)

		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, p)
		}
		for i, c := range labels {
			counts[c]++
			for j, v := range rows[i] {
				sums[c][j] += v
			}
		}
		var shift float64
		for c := range centers {
			if counts[c] == 0 {
				continue
			}
			for j := range centers[c] {
				next := sums[c][j] / float64(counts[c])
				shift += (next - centers[c][j]) * (next - centers[c][j])
				centers[c][j] = next
			}
		}
		if !changed || shift <= tol {
			break
		}
	}
	assign(rows, centers, labels)
	var inertia float64
	for i, c := range labels {
		inertia += ml.SquaredDistance(rows[i], centers[c])
	}
	return labels, inertia
}

// assign labels every row with its nearest center, splitting rows across
// GOMAXPROCS workers. It reports whether any label changed.
func assign(rows [][]float64, centers [][]float64, labels []int) bool {
	n := len(rows)
	workers := runtime.GOMAXPROCS(0)
	chunk := (n + workers - 1) / workers
	changed := make([]bool, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start, end := w*chunk, (w+1)*chunk
		if end > n {
			end = n
		}
		if start >= end {
			continue
		}
		wg.Add(1)
		go func(w, start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				best := nearest(rows[i], centers)
				if labels[i] != best {
					changed[w] = true
					labels[i] = best
				}
			}
		}(w, start, end)
	}
	wg.Wait()

	for _, c := range changed {
		if c {
			return true
		}
	}
	return false
}

func nearest(row []float64, centers [][]float64) int {
	best, bestDist := 0, math.Inf(1)
	for c, center := range centers {
		if d := ml.SquaredDistance(row, center); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func predictNearest(centers [][]float64, x mat.Matrix) ([]float64, error) {
	if centers == nil {
		return nil, ml.ErrNotFitted
	}
	if _, err := ml.CheckWidth(x, len(centers[0])); err != nil {
		return nil, err
	}
	rows := ml.Rows(x)
	out := make([]float64, len(rows))
	for i, row := range rows {
		out[i] = float64(nearest(row, centers))
	}
	return out, nil
}
