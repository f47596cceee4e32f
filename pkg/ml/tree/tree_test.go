package tree

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/synaptica-ai/automl/pkg/ml"
)

// stepData has a target that depends only on the first feature.
func stepData(n int) (*mat.Dense, []float64, []float64) {
	rng := rand.New(rand.NewSource(11))
	x := mat.NewDense(n, 3, nil)
	reg := make([]float64, n)
	cls := make([]float64, n)
	for i := 0; i < n; i++ {
		a := rng.Float64() * 3
		x.SetRow(i, []float64{a, rng.NormFloat64(), rng.NormFloat64()})
		reg[i] = math.Floor(a) * 10
		cls[i] = math.Floor(a) + 1
	}
	return x, reg, cls
}

func accuracy(pred, y []float64) float64 {
	correct := 0
	for i := range y {
		if pred[i] == y[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(y))
}

func TestDecisionTreeRegressor(t *testing.T) {
	x, y, _ := stepData(120)
	m, err := NewDecisionTreeRegressor(nil)
	require.NoError(t, err)
	assert.Equal(t, 5.0, m.Params()["max_depth"])
	require.NoError(t, m.Fit(x, y))

	pred, err := m.Predict(x)
	require.NoError(t, err)
	for i := range y {
		assert.InDelta(t, y[i], pred[i], 1e-9)
	}
	imp := m.FeatureImportances()
	assert.InDelta(t, 1, imp[0], 1e-9)
}

func TestDecisionTreeClassifier(t *testing.T) {
	x, _, y := stepData(120)
	m, err := NewDecisionTreeClassifier(ml.Params{"max_depth": 3})
	require.NoError(t, err)
	require.NoError(t, m.Fit(x, y))
	assert.Equal(t, []float64{1, 2, 3}, m.Classes())

	pred, err := m.Predict(x)
	require.NoError(t, err)
	assert.Equal(t, 1.0, accuracy(pred, y))

	proba, err := m.PredictProba(x)
	require.NoError(t, err)
	_, cols := proba.Dims()
	assert.Equal(t, 3, cols)

	_, err = NewDecisionTreeClassifier(ml.Params{"min_samples_split": 1})
	assert.ErrorIs(t, err, ml.ErrInvalidParam)
}

func TestRandomForestIsDeterministic(t *testing.T) {
	x, _, y := stepData(150)
	a, err := NewRandomForestClassifier(ml.Params{"n_estimators": 10})
	require.NoError(t, err)
	b, _ := NewRandomForestClassifier(ml.Params{"n_estimators": 10})
	require.NoError(t, a.Fit(x, y))
	require.NoError(t, b.Fit(x, y))

	pa, err := a.PredictProba(x)
	require.NoError(t, err)
	pb, _ := b.PredictProba(x)
	assert.True(t, mat.Equal(pa, pb))

	pred, _ := a.Predict(x)
	assert.Greater(t, accuracy(pred, y), 0.95)
	assert.Len(t, a.FeatureImportances(), 3)
}

func TestRandomForestRegressor(t *testing.T) {
	x, y, _ := stepData(150)
	m, err := NewRandomForestRegressor(ml.Params{"n_estimators": 15})
	require.NoError(t, err)
	require.NoError(t, m.Fit(x, y))
	pred, err := m.Predict(x)
	require.NoError(t, err)

	var sse float64
	for i := range y {
		sse += (y[i] - pred[i]) * (y[i] - pred[i])
	}
	assert.Less(t, sse/float64(len(y)), 10.0)
}

func TestGradientBoostingRegressor(t *testing.T) {
	x, y, _ := stepData(100)
	m, err := NewGradientBoostingRegressor(nil)
	require.NoError(t, err)
	require.NoError(t, m.Fit(x, y))
	pred, err := m.Predict(x)
	require.NoError(t, err)
	for i := range y {
		assert.InDelta(t, y[i], pred[i], 0.5)
	}

	_, err = NewGradientBoostingRegressor(ml.Params{"learning_rate": -0.1})
	assert.ErrorIs(t, err, ml.ErrInvalidParam)
}

func TestGradientBoostingClassifier(t *testing.T) {
	x, _, y := stepData(120)
	for _, labels := range [][]float64{y, binary(y)} {
		m, err := NewGradientBoostingClassifier(ml.Params{"n_estimators": 30})
		require.NoError(t, err)
		require.NoError(t, m.Fit(x, labels))

		pred, err := m.Predict(x)
		require.NoError(t, err)
		assert.Greater(t, accuracy(pred, labels), 0.95)

		proba, err := m.PredictProba(x)
		require.NoError(t, err)
		row := proba.RawRowView(0)
		var sum float64
		for _, p := range row {
			sum += p
		}
		assert.InDelta(t, 1, sum, 1e-9)
	}
}

func binary(y []float64) []float64 {
	out := make([]float64, len(y))
	for i, v := range y {
		if v > 1 {
			out[i] = 1
		}
	}
	return out
}
