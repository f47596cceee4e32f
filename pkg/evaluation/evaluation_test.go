package evaluation

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/synaptica-ai/automl/pkg/dataset"
	"github.com/synaptica-ai/automl/pkg/ml"
)

func TestRegressionMetrics(t *testing.T) {
	yTrue := []float64{0, 2, 4, 8}
	yPred := []float64{1, 2, 5, 6}

	m, err := Regression(yTrue, yPred)
	require.NoError(t, err)

	assert.InDelta(t, 1.5, float64(m.MSE), 1e-12)
	assert.InDelta(t, math.Sqrt(1.5), float64(m.RMSE), 1e-12)
	assert.InDelta(t, 1.0, float64(m.MAE), 1e-12)
	// mean 3.5, ss_tot = 12.25+2.25+0.25+20.25 = 35, ss_res = 6
	assert.InDelta(t, 1-6.0/35, float64(m.R2), 1e-12)
	// the zero target is excluded: (0 + 0.25 + 0.25) / 3
	assert.InDelta(t, 50.0/3, float64(m.MAPE), 1e-9)
}

func TestMAPEUndefinedWhenAllTargetsZero(t *testing.T) {
	m, err := Regression([]float64{0, 0}, []float64{1, -1})
	require.NoError(t, err)
	assert.True(t, math.IsNaN(float64(m.MAPE)))

	raw, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"mape":null`)
}

func TestRegressionShapeMismatch(t *testing.T) {
	_, err := Regression([]float64{1, 2}, []float64{1})
	assert.ErrorIs(t, err, ml.ErrShapeMismatch)
	_, err = Regression(nil, nil)
	assert.ErrorIs(t, err, ml.ErrEmptyInput)
}

func TestClassificationMetrics(t *testing.T) {
	yTrue := []float64{0, 0, 1, 1, 2, 2}
	yPred := []float64{0, 1, 1, 1, 0, 2}
	names := []string{"cat", "dog", "owl"}

	m, err := Classification(yTrue, yPred, func(v float64) string { return names[int(v)] })
	require.NoError(t, err)

	assert.InDelta(t, 4.0/6, float64(m.Accuracy), 1e-12)
	assert.Equal(t, names, m.Labels)
	assert.Equal(t, [][]int{{1, 1, 0}, {0, 2, 0}, {1, 0, 1}}, m.ConfusionMatrix)

	dog := m.Report["dog"]
	assert.InDelta(t, 2.0/3, float64(dog.Precision), 1e-12)
	assert.InDelta(t, 1.0, float64(dog.Recall), 1e-12)
	assert.Equal(t, 2, dog.Support)

	// every class has support 2, so weighted equals macro
	assert.InDelta(t, float64(m.Report["macro avg"].F1), float64(m.F1), 1e-12)
	assert.InDelta(t, (0.5+2.0/3+1)/3, float64(m.Precision), 1e-12)
}

func TestClassificationZeroDivision(t *testing.T) {
	m, err := Classification([]float64{0, 0, 1}, []float64{0, 0, 0}, nil)
	require.NoError(t, err)

	assert.Equal(t, Score(0), m.Report["1"].Precision)
	assert.Equal(t, Score(0), m.Report["1"].F1)
	assert.False(t, math.IsNaN(float64(m.F1)))
}

func blobs() (*mat.Dense, []int) {
	x := mat.NewDense(6, 2, []float64{
		0, 0, 0, 1, 1, 0,
		10, 10, 10, 11, 11, 10,
	})
	return x, []int{0, 0, 0, 1, 1, 1}
}

func TestClusteringScores(t *testing.T) {
	x, labels := blobs()

	m, err := Clustering(x, labels)
	require.NoError(t, err)

	assert.Greater(t, float64(m.Silhouette), 0.9)
	assert.Greater(t, float64(m.CalinskiHarabasz), 100.0)
	assert.Less(t, float64(m.DaviesBouldin), 0.2)
	assert.Equal(t, 2, m.NClusters)

	swapped := []int{0, 1, 0, 1, 0, 1}
	bad, err := Clustering(x, swapped)
	require.NoError(t, err)
	assert.Less(t, float64(bad.Silhouette), 0.0)
}

func TestDegenerateClustering(t *testing.T) {
	x, _ := blobs()
	_, err := Silhouette(x, []int{0, 0, 0, 0, 0, 0})
	assert.ErrorIs(t, err, ErrDegenerateClusters)
	_, err = Silhouette(x, []int{0, 1, 2, 3, 4, 5})
	assert.ErrorIs(t, err, ErrDegenerateClusters)
}

type fixed struct {
	out []float64
	err error
}

func (f fixed) Params() ml.Params { return nil }

func (f fixed) Predict(mat.Matrix) ([]float64, error) { return f.out, f.err }

func TestEvaluatePicksFirstBestAndSkipsFailures(t *testing.T) {
	x := mat.NewDense(4, 1, []float64{1, 2, 3, 4})
	y := []float64{1, 2, 3, 4}

	models := []*ml.Model{
		ml.NewModel("Broken", fixed{err: errors.New("boom")}),
		ml.NewModel("Good", fixed{out: []float64{1, 2, 3, 5}}),
		ml.NewModel("Perfect", fixed{out: []float64{1, 2, 3, 4}}),
		ml.NewModel("AlsoPerfect", fixed{out: []float64{1, 2, 3, 4}}),
	}
	history := map[string]Record{"Good": {TrainingTime: 0.5, CVScores: []float64{1, 3}, CVMean: 2, CVStd: 1}}

	res := Evaluate(dataset.Regression, models, x, y, history, Options{})

	assert.Equal(t, "Perfect", res.BestModel)
	assert.InDelta(t, 1.0, float64(res.BestScore), 1e-12)
	require.Len(t, res.Models, 3)
	assert.Equal(t, "Good", res.Models[0].Name)
	assert.Contains(t, res.Failed, "Broken")

	good, ok := res.Model("Good")
	require.True(t, ok)
	assert.Equal(t, 0.5, good.TrainingTime)
	require.NotNil(t, good.CVMean)
	assert.Equal(t, 2.0, *good.CVMean)

	perfect, _ := res.Model("Perfect")
	assert.Nil(t, perfect.CVMean)
}

func TestEvaluateNamesBestClassifierWithZeroF1(t *testing.T) {
	x := mat.NewDense(4, 1, []float64{1, 2, 3, 4})
	y := []float64{0, 0, 1, 1}

	models := []*ml.Model{
		ml.NewModel("Inverted", fixed{out: []float64{1, 1, 0, 0}}),
		ml.NewModel("AlsoInverted", fixed{out: []float64{1, 1, 0, 0}}),
	}
	res := Evaluate(dataset.Classification, models, x, y, nil, Options{})

	assert.Equal(t, "Inverted", res.BestModel)
	assert.Equal(t, 0.0, float64(res.BestScore))
}

func TestEvaluateClusteringUsesTrainingLabels(t *testing.T) {
	x, labels := blobs()
	good := &ml.Model{Name: "KMeans", Labels: labels}
	poor := &ml.Model{Name: "Other", Labels: []int{0, 1, 0, 1, 0, 1}}

	res := Evaluate(dataset.Clustering, []*ml.Model{poor, good}, x, nil, nil, Options{})

	assert.Equal(t, "KMeans", res.BestModel)
	m, _ := res.Model("KMeans")
	assert.Equal(t, 2, m.Metrics.NClusters)
}

func TestMetricsJSONIsFlat(t *testing.T) {
	m, err := Regression([]float64{1, 2}, []float64{1, 2})
	require.NoError(t, err)

	raw, err := json.Marshal(ModelResult{Name: "LinearRegression", Metrics: Metrics{RegressionMetrics: m}})
	require.NoError(t, err)

	var generic map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &generic))
	metrics := generic["metrics"].(map[string]interface{})
	assert.Equal(t, 1.0, metrics["r2"])
	assert.NotContains(t, metrics, "accuracy")
}

func TestTopImportances(t *testing.T) {
	m := &ml.Model{Name: "RandomForestRegressor", Importances: []float64{0.1, 0.5, 0.1, 0.3}}
	names := []string{"a", "b", "c", "d"}

	top := TopImportances(m, names, 2)
	assert.Equal(t, map[string]float64{"b": 0.5, "d": 0.3}, top)

	ranked := RankImportances(m, names)
	assert.Equal(t, "a", ranked[2].Feature)
	assert.Equal(t, "c", ranked[3].Feature)

	assert.Nil(t, TopImportances(&ml.Model{}, names, 10))
	assert.Nil(t, TopImportances(m, names[:2], 10))
}
