package cluster

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/synaptica-ai/automl/pkg/ml"
)

// blobs returns three tight, well separated groups; row i belongs to group i%3.
func blobs(n int) *mat.Dense {
	rng := rand.New(rand.NewSource(4))
	centers := [][]float64{{0, 0}, {10, 10}, {-10, 10}}
	x := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		c := centers[i%3]
		x.SetRow(i, []float64{c[0] + rng.NormFloat64()*0.3, c[1] + rng.NormFloat64()*0.3})
	}
	return x
}

// assertRecoversBlobs checks labels agree with the generating groups up to renaming.
func assertRecoversBlobs(t *testing.T, labels []int) {
	t.Helper()
	mapping := make(map[int]int)
	for i, l := range labels {
		group := i % 3
		if want, ok := mapping[group]; ok {
			require.Equal(t, want, l, "row %d", i)
			continue
		}
		mapping[group] = l
	}
	seen := make(map[int]bool)
	for _, l := range mapping {
		seen[l] = true
	}
	assert.Len(t, seen, 3)
}

func TestClusterersRecoverBlobs(t *testing.T) {
	x := blobs(90)
	build := map[string]func() (ml.Clusterer, error){
		"KMeans":                  func() (ml.Clusterer, error) { return NewKMeans(nil) },
		"MiniBatchKMeans":         func() (ml.Clusterer, error) { return NewMiniBatchKMeans(ml.Params{"batch_size": 16}) },
		"AgglomerativeClustering": func() (ml.Clusterer, error) { return NewAgglomerativeClustering(nil) },
		"DBSCAN":                  func() (ml.Clusterer, error) { return NewDBSCAN(ml.Params{"eps": 2}) },
		"GaussianMixture":         func() (ml.Clusterer, error) { return NewGaussianMixture(nil) },
	}
	for name, newModel := range build {
		t.Run(name, func(t *testing.T) {
			m, err := newModel()
			require.NoError(t, err)
			labels, err := m.FitPredict(x)
			require.NoError(t, err)
			require.Len(t, labels, 90)
			assertRecoversBlobs(t, labels)
		})
	}
}

func TestKMeansPredictMatchesTrainingLabels(t *testing.T) {
	x := blobs(60)
	m, err := NewKMeans(ml.Params{"n_clusters": 3})
	require.NoError(t, err)
	labels, err := m.FitPredict(x)
	require.NoError(t, err)

	pred, err := m.Predict(x)
	require.NoError(t, err)
	for i := range labels {
		assert.Equal(t, float64(labels[i]), pred[i])
	}
	assert.Greater(t, m.Inertia, 0.0)

	again, _ := NewKMeans(ml.Params{"n_clusters": 3})
	labels2, err := again.FitPredict(x)
	require.NoError(t, err)
	assert.Equal(t, labels, labels2)
}

func TestDBSCANMarksNoise(t *testing.T) {
	x := mat.NewDense(7, 1, []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 50})
	m, err := NewDBSCAN(ml.Params{"eps": 0.5, "min_samples": 3})
	require.NoError(t, err)
	labels, err := m.FitPredict(x)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 0, 0, 0, 0, Noise}, labels)
}

func TestTooFewRows(t *testing.T) {
	m, err := NewKMeans(ml.Params{"n_clusters": 5})
	require.NoError(t, err)
	_, err = m.FitPredict(blobs(3))
	assert.Error(t, err)

	_, err = NewKMeans(ml.Params{"n_clusters": 0})
	assert.ErrorIs(t, err, ml.ErrInvalidParam)
}
