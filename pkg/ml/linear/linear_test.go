package linear

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/synaptica-ai/automl/pkg/ml"
)

func regressionData(n int) (*mat.Dense, []float64) {
	rng := rand.New(rand.NewSource(3))
	x := mat.NewDense(n, 3, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		a, b := rng.NormFloat64(), rng.NormFloat64()
		x.SetRow(i, []float64{a, b, a + b})
		y[i] = 2*a - 3*b + 5
	}
	return x, y
}

func TestLinearRegressionHandlesCollinearFeatures(t *testing.T) {
	x, y := regressionData(50)
	m, err := NewLinearRegression(nil)
	require.NoError(t, err)
	require.NoError(t, m.Fit(x, y))

	pred, err := m.Predict(x)
	require.NoError(t, err)
	for i := range y {
		assert.InDelta(t, y[i], pred[i], 1e-8)
	}
	assert.InDelta(t, 5, m.Weights.Bias, 1e-8)
}

func TestRidgeShrinks(t *testing.T) {
	x, y := regressionData(50)
	weak, _ := NewRidge(ml.Params{"alpha": 0.001})
	strong, _ := NewRidge(ml.Params{"alpha": 1000})
	require.NoError(t, weak.Fit(x, y))
	require.NoError(t, strong.Fit(x, y))

	norm := func(w Weights) float64 {
		var s float64
		for _, c := range w.Coefficients {
			s += c * c
		}
		return s
	}
	assert.Less(t, norm(strong.Weights), norm(weak.Weights))

	_, err := NewRidge(ml.Params{"alpha": -1})
	assert.ErrorIs(t, err, ml.ErrInvalidParam)
}

func TestLassoZeroesCoefficients(t *testing.T) {
	x, y := regressionData(80)
	m, err := NewLasso(ml.Params{"alpha": 100})
	require.NoError(t, err)
	require.NoError(t, m.Fit(x, y))
	for _, c := range m.Weights.Coefficients {
		assert.Zero(t, c)
	}

	m, _ = NewLasso(ml.Params{"alpha": 0.01})
	require.NoError(t, m.Fit(x, y))
	pred, err := m.Predict(x)
	require.NoError(t, err)
	assert.InDelta(t, y[0], pred[0], 0.2)
}

func TestLogisticRegressionSeparatesClasses(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	n := 90
	x := mat.NewDense(n, 2, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		c := float64(i % 3)
		x.SetRow(i, []float64{c*4 + rng.NormFloat64()*0.3, -c*4 + rng.NormFloat64()*0.3})
		y[i] = c * 10
	}
	m, err := NewLogisticRegression(nil)
	require.NoError(t, err)
	require.NoError(t, m.Fit(x, y))
	assert.Equal(t, []float64{0, 10, 20}, m.Classes())

	pred, err := m.Predict(x)
	require.NoError(t, err)
	correct := 0
	for i := range y {
		if pred[i] == y[i] {
			correct++
		}
	}
	assert.GreaterOrEqual(t, correct, 85)

	proba, err := m.PredictProba(x.Slice(0, 1, 0, 2))
	require.NoError(t, err)
	row := proba.RawRowView(0)
	assert.InDelta(t, 1, row[0]+row[1]+row[2], 1e-9)

	_, err = m.Predict(mat.NewDense(1, 3, nil))
	assert.ErrorIs(t, err, ml.ErrShapeMismatch)

	_, err = NewLogisticRegression(ml.Params{"C": 0})
	assert.ErrorIs(t, err, ml.ErrInvalidParam)
}
