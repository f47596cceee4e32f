package bayes

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestGaussianNB(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	n := 60
	x := mat.NewDense(n, 2, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		c := float64(i % 2)
		x.SetRow(i, []float64{c*6 + rng.NormFloat64(), rng.NormFloat64()})
		y[i] = c
	}
	m, err := NewGaussianNB(nil)
	require.NoError(t, err)
	require.NoError(t, m.Fit(x, y))
	assert.Equal(t, []float64{0.5, 0.5}, m.Priors)

	pred, err := m.Predict(mat.NewDense(2, 2, []float64{-0.5, 0, 6.5, 0}))
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1}, pred)

	proba, err := m.PredictProba(x.Slice(0, 1, 0, 2))
	require.NoError(t, err)
	assert.InDelta(t, 1, proba.At(0, 0)+proba.At(0, 1), 1e-12)
}
