package neighbors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/synaptica-ai/automl/pkg/ml"
)

func TestKNeighborsClassifier(t *testing.T) {
	x := mat.NewDense(6, 1, []float64{0, 0.1, 0.2, 5, 5.1, 5.2})
	y := []float64{7, 7, 7, 9, 9, 9}
	m, err := NewKNeighborsClassifier(ml.Params{"n_neighbors": 3})
	require.NoError(t, err)
	require.NoError(t, m.Fit(x, y))

	pred, err := m.Predict(mat.NewDense(2, 1, []float64{0.05, 4.9}))
	require.NoError(t, err)
	assert.Equal(t, []float64{7, 9}, pred)

	proba, err := m.PredictProba(mat.NewDense(1, 1, []float64{2.6}))
	require.NoError(t, err)
	assert.InDelta(t, 1, proba.At(0, 0)+proba.At(0, 1), 1e-12)

	_, err = NewKNeighborsClassifier(ml.Params{"n_neighbors": 0})
	assert.ErrorIs(t, err, ml.ErrInvalidParam)
}

func TestKNeighborsRegressor(t *testing.T) {
	x := mat.NewDense(4, 1, []float64{0, 1, 2, 3})
	m, err := NewKNeighborsRegressor(ml.Params{"n_neighbors": 2})
	require.NoError(t, err)
	require.NoError(t, m.Fit(x, []float64{0, 10, 20, 30}))

	pred, err := m.Predict(mat.NewDense(1, 1, []float64{0.4}))
	require.NoError(t, err)
	assert.Equal(t, []float64{5}, pred)

	var empty KNeighborsRegressor
	_, err = empty.Predict(x)
	assert.ErrorIs(t, err, ml.ErrNotFitted)
}
