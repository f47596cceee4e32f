package cluster

import (
	"gonum.org/v1/gonum/mat"

	"github.com/synaptica-ai/automl/pkg/ml"
)

// Noise is the label DBSCAN gives to rows outside every cluster.
const Noise = -1

// DBSCAN grows clusters from core rows that have at least MinSamples rows,
// themselves included, within Eps.
type DBSCAN struct {
	Eps        float64
	MinSamples int
}

func NewDBSCAN(p ml.Params) (*DBSCAN, error) {
	m := &DBSCAN{Eps: p.Get("eps", 0.5), MinSamples: p.Int("min_samples", 5)}
	if !(m.Eps > 0) {
		return nil, ml.InvalidParam("eps", m.Eps, "> 0")
	}
	if m.MinSamples < 1 {
		return nil, ml.InvalidParam("min_samples", float64(m.MinSamples), ">= 1")
	}
	return m, nil
}

func (m *DBSCAN) Params() ml.Params {
	return ml.Params{"eps": m.Eps, "min_samples": float64(m.MinSamples)}
}

func (m *DBSCAN) FitPredict(x mat.Matrix) ([]int, error) {
	rows, err := checkRows(x, 1)
	if err != nil {
		return nil, err
	}
	n := len(rows)
	eps2 := m.Eps * m.Eps
	neighbours := make([][]int, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if ml.SquaredDistance(rows[i], rows[j]) <= eps2 {
				neighbours[i] = append(neighbours[i], j)
			}
		}
	}

	labels := make([]int, n)
	for i := range labels {
		labels[i] = Noise
	}
	visited := make([]bool, n)
	cluster := 0
	for i := 0; i < n; i++ {
		if visited[i] || len(neighbours[i]) < m.MinSamples {
			continue
		}
		queue := []int{i}
		visited[i] = true
		for len(queue) > 0 {
			p := queue[0]
			queue = queue[1:]
			labels[p] = cluster
			if len(neighbours[p]) < m.MinSamples {
				continue
			}
			for _, q := range neighbours[p] {
				if !visited[q] {
					visited[q] = true
					queue = append(queue, q)
				}
			}
		}
		cluster++
	}
	return labels, nil
}
