package evaluation

import (
	"errors"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/synaptica-ai/automl/pkg/ml"
)

// ErrDegenerateClusters is returned when a labelling has fewer than two
// clusters or puts every row in its own cluster.
var ErrDegenerateClusters = errors.New("number of clusters must be between 2 and n_samples-1")

type ClusteringMetrics struct {
	Silhouette       Score `json:"silhouette_score"`
	CalinskiHarabasz Score `json:"calinski_harabasz_score"`
	DaviesBouldin    Score `json:"davies_bouldin_score"`
	NClusters        int   `json:"n_clusters"`
}

// groups maps each distinct label (noise included) to a dense index.
type groups struct {
	index []int
	sizes []int
}

func groupLabels(n int, labels []int) (*groups, error) {
	if n == 0 {
		return nil, ml.ErrEmptyInput
	}
	if len(labels) != n {
		return nil, fmt.Errorf("%w: %d rows but %d labels", ml.ErrShapeMismatch, n, len(labels))
	}
	ids := make(map[int]int)
	g := &groups{index: make([]int, n)}
	for i, l := range labels {
		id, ok := ids[l]
		if !ok {
			id = len(ids)
			ids[l] = id
			g.sizes = append(g.sizes, 0)
		}
		g.index[i] = id
		g.sizes[id]++
	}
	if k := len(g.sizes); k < 2 || k > n-1 {
		return nil, fmt.Errorf("%w: got %d clusters for %d rows", ErrDegenerateClusters, k, n)
	}
	return g, nil
}

func centroids(rows [][]float64, g *groups) [][]float64 {
	width := len(rows[0])
	out := make([][]float64, len(g.sizes))
	for c := range out {
		out[c] = make([]float64, width)
	}
	for i, row := range rows {
		c := out[g.index[i]]
		for j, v := range row {
			c[j] += v
		}
	}
	for c, size := range g.sizes {
		for j := range out[c] {
			out[c][j] /= float64(size)
		}
	}
	return out
}

// Silhouette returns the mean silhouette coefficient over all rows using
// Euclidean distance. Rows alone in their cluster score 0.
func Silhouette(x mat.Matrix, labels []int) (float64, error) {
	n, _ := x.Dims()
	g, err := groupLabels(n, labels)
	if err != nil {
		return 0, err
	}
	rows := ml.Rows(x)
	k := len(g.sizes)
	scores := make([]float64, n)

	workers := runtime.GOMAXPROCS(0)
	chunk := (n + workers - 1) / workers
	var eg errgroup.Group
	for start := 0; start < n; start += chunk {
		start, end := start, min(start+chunk, n)
		eg.Go(func() error {
			sums := make([]float64, k)
			for i := start; i < end; i++ {
				for c := range sums {
					sums[c] = 0
				}
				for j := 0; j < n; j++ {
					if i != j {
						sums[g.index[j]] += math.Sqrt(ml.SquaredDistance(rows[i], rows[j]))
					}
				}
				own := g.index[i]
				if g.sizes[own] == 1 {
					continue
				}
				a := sums[own] / float64(g.sizes[own]-1)
				b := math.Inf(1)
				for c := 0; c < k; c++ {
					if c != own {
						b = math.Min(b, sums[c]/float64(g.sizes[c]))
					}
				}
				if m := math.Max(a, b); m > 0 {
					scores[i] = (b - a) / m
				}
			}
			return nil
		})
	}
	_ = eg.Wait()

	var total float64
	for _, s := range scores {
		total += s
	}
	return total / float64(n), nil
}

// CalinskiHarabasz is the ratio of between-cluster to within-cluster
// dispersion, each normalised by its degrees of freedom.
func CalinskiHarabasz(x mat.Matrix, labels []int) (float64, error) {
	n, _ := x.Dims()
	g, err := groupLabels(n, labels)
	if err != nil {
		return 0, err
	}
	rows := ml.Rows(x)
	cents := centroids(rows, g)

	overall := make([]float64, len(rows[0]))
	for _, row := range rows {
		for j, v := range row {
			overall[j] += v / float64(n)
		}
	}

	var between, within float64
	for c, cent := range cents {
		between += float64(g.sizes[c]) * ml.SquaredDistance(cent, overall)
	}
	for i, row := range rows {
		within += ml.SquaredDistance(row, cents[g.index[i]])
	}
	if within == 0 {
		return 1, nil
	}
	k := float64(len(cents))
	return between * (float64(n) - k) / (within * (k - 1)), nil
}

// DaviesBouldin averages, over clusters, the worst ratio of summed
// intra-cluster spread to centroid separation. Lower is better.
func DaviesBouldin(x mat.Matrix, labels []int) (float64, error) {
	n, _ := x.Dims()
	g, err := groupLabels(n, labels)
	if err != nil {
		return 0, err
	}
	rows := ml.Rows(x)
	cents := centroids(rows, g)
	k := len(cents)

	spread := make([]float64, k)
	for i, row := range rows {
		c := g.index[i]
		spread[c] += math.Sqrt(ml.SquaredDistance(row, cents[c])) / float64(g.sizes[c])
	}

	var total float64
	for a := 0; a < k; a++ {
		var worst float64
		for b := 0; b < k; b++ {
			if a == b {
				continue
			}
			d := math.Sqrt(ml.SquaredDistance(cents[a], cents[b]))
			if d == 0 {
				continue
			}
			worst = math.Max(worst, (spread[a]+spread[b])/d)
		}
		total += worst
	}
	return total / float64(k), nil
}

// Clustering computes every clustering score for a labelling of x. Noise
// (negative labels) is scored as a cluster but not counted in NClusters.
func Clustering(x mat.Matrix, labels []int) (*ClusteringMetrics, error) {
	sil, err := Silhouette(x, labels)
	if err != nil {
		return nil, err
	}
	ch, err := CalinskiHarabasz(x, labels)
	if err != nil {
		return nil, err
	}
	db, err := DaviesBouldin(x, labels)
	if err != nil {
		return nil, err
	}
	distinct := make(map[int]struct{})
	for _, l := range labels {
		if l >= 0 {
			distinct[l] = struct{}{}
		}
	}
	return &ClusteringMetrics{
		Silhouette:       Score(sil),
		CalinskiHarabasz: Score(ch),
		DaviesBouldin:    Score(db),
		NClusters:        len(distinct),
	}, nil
}
