package onnx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synaptica-ai/automl/pkg/dataset"
	"github.com/synaptica-ai/automl/pkg/dataset/datasettest"
	"github.com/synaptica-ai/automl/pkg/ml"
	"github.com/synaptica-ai/automl/pkg/ml/linear"
	"github.com/synaptica-ai/automl/pkg/ml/tree"
	"github.com/synaptica-ai/automl/pkg/preprocessing"
)

func fitSource(t *testing.T, table *dataset.Table, target string, est ml.Supervised) Source {
	t.Helper()
	features := []string{}
	for _, name := range table.Names() {
		if name != target {
			features = append(features, name)
		}
	}
	plan, err := preprocessing.FitPlan(table, features)
	require.NoError(t, err)
	x, err := plan.Transform(table)
	require.NoError(t, err)

	col, _ := table.Column(target)
	y := make([]float64, table.Rows())
	var labels []string
	if col.Kind == dataset.KindNumeric {
		copy(y, col.Numbers)
	} else {
		enc := preprocessing.FitLabelEncoder(col.Labels)
		for i, l := range col.Labels {
			code, _ := enc.Encode(l)
			y[i] = float64(code)
		}
		labels = enc.Classes
	}
	require.NoError(t, est.Fit(x, y))

	schema, err := dataset.SchemaOf(table, features)
	require.NoError(t, err)
	return Source{
		Name:        "test",
		Plan:        plan,
		Schema:      schema,
		RawFeatures: features,
		Estimator:   est,
		ClassLabels: labels,
		Metadata:    map[string]string{"model_name": "test", "problem_type": "regression"},
	}
}

func TestConvertRegressionPipeline(t *testing.T) {
	est, _ := linear.NewLinearRegression(nil)
	src := fitSource(t, datasettest.Regression(50, 1), "target", est)

	data, err := Convert(src)
	require.NoError(t, err)

	s, err := Inspect(data)
	require.NoError(t, err)
	assert.EqualValues(t, irVersion, s.IRVersion)
	assert.Equal(t, map[string]int64{"": defaultOpset, MLDomain: mlOpset}, s.Opsets)
	assert.Equal(t, []Value{{"a", Float}, {"b", Float}, {"grp", String}}, s.Inputs)
	assert.Equal(t, []Value{{"variable", Float}}, s.Outputs)
	assert.Equal(t, src.Metadata, s.Metadata)

	assert.Contains(t, s.Ops, "Imputer")
	assert.Contains(t, s.Ops, "Scaler")
	assert.Contains(t, s.Ops, "OneHotEncoder")
	assert.Equal(t, "LinearRegressor", s.Ops[len(s.Ops)-1])
	assert.Equal(t, "Concat", s.Ops[len(s.Ops)-2])
}

func TestConvertClassifierUsesOriginalLabels(t *testing.T) {
	est, _ := linear.NewLogisticRegression(ml.Params{"max_iter": 50})
	src := fitSource(t, datasettest.Classification(60, 2), "label", est)

	data, err := Convert(src)
	require.NoError(t, err)
	s, err := Inspect(data)
	require.NoError(t, err)

	assert.Equal(t, []Value{{"label", String}, {"probabilities", Float}}, s.Outputs)
	assert.Equal(t, "LinearClassifier", s.Ops[len(s.Ops)-1])
}

func TestConvertWithoutSchemaUsesNumericPlaceholders(t *testing.T) {
	est, _ := linear.NewRidge(ml.Params{"alpha": 1})
	src := fitSource(t, datasettest.Regression(50, 1), "target", est)
	src.Schema = nil

	data, err := Convert(src)
	require.NoError(t, err)
	s, err := Inspect(data)
	require.NoError(t, err)
	for _, in := range s.Inputs {
		assert.Equal(t, Float, in.Elem, in.Name)
	}
	assert.Contains(t, s.Ops, "Cast")
}

func TestConvertUnsupportedModel(t *testing.T) {
	est, _ := tree.NewDecisionTreeClassifier(ml.Params{"max_depth": 3})
	src := fitSource(t, datasettest.Classification(60, 2), "label", est)

	_, err := Convert(src)
	assert.ErrorIs(t, err, ErrNoConverter)
}

func TestMarshalIsDeterministic(t *testing.T) {
	g := &Graph{Name: "g"}
	g.Input("x", Float, -1, 1)
	g.Node("Identity", "", []string{"x"}, []string{"y"})
	g.Output("y", Float, -1, 1)
	meta := map[string]string{"b": "2", "a": "1", "c": "3"}

	first := (&Model{Graph: g, Metadata: meta}).Marshal()
	second := (&Model{Graph: g, Metadata: meta}).Marshal()
	assert.Equal(t, first, second)
	assert.Equal(t, []string{"Identity"}, g.Ops())
}
