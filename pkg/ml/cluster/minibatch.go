package cluster

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/synaptica-ai/automl/pkg/ml"
)

// MiniBatchKMeans updates centers from random batches with per-center
// learning rates of 1/count.
type MiniBatchKMeans struct {
	NClusters   int
	MaxIter     int
	BatchSize   int
	RandomState int64

	Centroids [][]float64
	Inertia   float64
}

func NewMiniBatchKMeans(p ml.Params) (*MiniBatchKMeans, error) {
	m := &MiniBatchKMeans{
		NClusters:   p.Int("n_clusters", 3),
		MaxIter:     p.Int("max_iter", 100),
		BatchSize:   p.Int("batch_size", 1024),
		RandomState: int64(p.Int("random_state", 42)),
	}
	if err := checkClusters(m.NClusters, m.MaxIter); err != nil {
		return nil, err
	}
	if m.BatchSize < 1 {
		return nil, ml.InvalidParam("batch_size", float64(m.BatchSize), ">= 1")
	}
	return m, nil
}

func (m *MiniBatchKMeans) Params() ml.Params {
	return ml.Params{
		"n_clusters":   float64(m.NClusters),
		"max_iter":     float64(m.MaxIter),
		"batch_size":   float64(m.BatchSize),
		"random_state": float64(m.RandomState),
	}
}

func (m *MiniBatchKMeans) FitPredict(x mat.Matrix) ([]int, error) {
	rows, err := checkRows(x, m.NClusters)
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(m.RandomState))
	n := len(rows)
	batch := m.BatchSize
	if batch > n {
		batch = n
	}
	centers := plusPlus(rows, m.NClusters, rng)
	counts := make([]float64, m.NClusters)

	steps := m.MaxIter * ((n + batch - 1) / batch)
	for s := 0; s < steps; s++ {
		for b := 0; b < batch; b++ {
			row := rows[rng.Intn(n)]
			c := nearest(row, centers)
			counts[c]++
			eta := 1 / counts[c]
			for j, v := range row {
				centers[c][j] += eta * (v - centers[c][j])
			}
		}
	}

	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}
	assign(rows, centers, labels)
	m.Centroids, m.Inertia = centers, 0
	for i, c := range labels {
		m.Inertia += ml.SquaredDistance(rows[i], centers[c])
	}
	return labels, nil
}

func (m *MiniBatchKMeans) Predict(x mat.Matrix) ([]float64, error) {
	return predictNearest(m.Centroids, x)
}
