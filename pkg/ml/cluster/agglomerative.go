package cluster

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/synaptica-ai/automl/pkg/ml"
)

// MaxAgglomerativeRows caps the pairwise distance matrix.
const MaxAgglomerativeRows = 5000

// AgglomerativeClustering merges clusters bottom-up with Ward linkage using
// the nearest-neighbour chain algorithm. It labels the training rows only.
type AgglomerativeClustering struct {
	NClusters int
}

func NewAgglomerativeClustering(p ml.Params) (*AgglomerativeClustering, error) {
	m := &AgglomerativeClustering{NClusters: p.Int("n_clusters", 3)}
	if m.NClusters < 1 {
		return nil, ml.InvalidParam("n_clusters", float64(m.NClusters), ">= 1")
	}
	return m, nil
}

func (m *AgglomerativeClustering) Params() ml.Params {
	return ml.Params{"n_clusters": float64(m.NClusters)}
}

type merge struct {
	a, b int
	dist float64
}

func (m *AgglomerativeClustering) FitPredict(x mat.Matrix) ([]int, error) {
	rows, err := checkRows(x, m.NClusters)
	if err != nil {
		return nil, err
	}
	n := len(rows)
	if n > MaxAgglomerativeRows {
		return nil, fmt.Errorf("agglomerative clustering supports at most %d rows, got %d", MaxAgglomerativeRows, n)
	}

	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
		for j := 0; j < i; j++ {
			d := ml.SquaredDistance(rows[i], rows[j])
			dist[i][j], dist[j][i] = d, d
		}
	}
	size := make([]float64, n)
	active := make([]bool, n)
	for i := range size {
		size[i], active[i] = 1, true
	}

	merges := make([]merge, 0, n-1)
	var chain []int
	for remaining := n; remaining > 1; remaining-- {
		if len(chain) == 0 {
			for i, ok := range active {
				if ok {
					chain = append(chain, i)
					break
				}
			}
		}
		for {
			a := chain[len(chain)-1]
			best, bestDist := -1, math.Inf(1)
			if len(chain) > 1 {
				best = chain[len(chain)-2]
				bestDist = dist[a][best]
			}
			for c, ok := range active {
				if ok && c != a && dist[a][c] < bestDist {
					best, bestDist = c, dist[a][c]
				}
			}
			if len(chain) > 1 && best == chain[len(chain)-2] {
				break
			}
			chain = append(chain, best)
		}

		a, b := chain[len(chain)-1], chain[len(chain)-2]
		chain = chain[:len(chain)-2]
		if a > b {
			a, b = b, a
		}
		merges = append(merges, merge{a: a, b: b, dist: dist[a][b]})

		// Lance-Williams update for Ward linkage; the merged cluster lives in slot a.
		for k, ok := range active {
			if !ok || k == a || k == b {
				continue
			}
			total := size[a] + size[b] + size[k]
			d := ((size[a]+size[k])*dist[k][a] + (size[b]+size[k])*dist[k][b] - size[k]*dist[a][b]) / total
			dist[k][a], dist[a][k] = d, d
		}
		size[a] += size[b]
		active[b] = false
	}

	sort.SliceStable(merges, func(i, j int) bool { return merges[i].dist < merges[j].dist })
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	for _, mg := range merges[:n-m.NClusters] {
		parent[find(mg.b)] = find(mg.a)
	}

	labels := make([]int, n)
	ids := make(map[int]int)
	for i := range labels {
		root := find(i)
		id, ok := ids[root]
		if !ok {
			id = len(ids)
			ids[root] = id
		}
		labels[i] = id
	}
	return labels, nil
}
