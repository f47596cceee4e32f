package tree

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/synaptica-ai/automl/pkg/ml"
)

// Options are the hyperparameters shared by trees and tree ensembles.
// MaxDepth <= 0 grows until leaves are pure.
type Options struct {
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	RandomState     int64
}

func optionsFrom(p ml.Params, maxDepth int) (Options, error) {
	o := Options{
		MaxDepth:        p.Int("max_depth", maxDepth),
		MinSamplesSplit: p.Int("min_samples_split", 2),
		MinSamplesLeaf:  p.Int("min_samples_leaf", 1),
		RandomState:     int64(p.Int("random_state", 42)),
	}
	if o.MinSamplesSplit < 2 {
		return o, ml.InvalidParam("min_samples_split", float64(o.MinSamplesSplit), ">= 2")
	}
	if o.MinSamplesLeaf < 1 {
		return o, ml.InvalidParam("min_samples_leaf", float64(o.MinSamplesLeaf), ">= 1")
	}
	return o, nil
}

func (o Options) params() ml.Params {
	return ml.Params{
		"max_depth":         float64(o.MaxDepth),
		"min_samples_split": float64(o.MinSamplesSplit),
		"min_samples_leaf":  float64(o.MinSamplesLeaf),
		"random_state":      float64(o.RandomState),
	}
}

func (o Options) config(maxFeatures, nClasses int, rng *rand.Rand) growConfig {
	return growConfig{
		maxDepth:        o.MaxDepth,
		minSamplesSplit: o.MinSamplesSplit,
		minSamplesLeaf:  o.MinSamplesLeaf,
		maxFeatures:     maxFeatures,
		nClasses:        nClasses,
		rng:             rng,
	}
}

type DecisionTreeRegressor struct {
	Options
	Tree        *Tree
	Importances []float64
}

func NewDecisionTreeRegressor(p ml.Params) (*DecisionTreeRegressor, error) {
	o, err := optionsFrom(p, 5)
	if err != nil {
		return nil, err
	}
	return &DecisionTreeRegressor{Options: o}, nil
}

func (m *DecisionTreeRegressor) Params() ml.Params { return m.params() }

func (m *DecisionTreeRegressor) FeatureImportances() []float64 { return m.Importances }

func (m *DecisionTreeRegressor) Fit(x mat.Matrix, y []float64) error {
	n, _, err := ml.CheckXY(x, y)
	if err != nil {
		return err
	}
	tree, imp := grow(ml.Rows(x), y, allRows(n), m.config(0, 0, rand.New(rand.NewSource(m.RandomState))))
	m.Tree, m.Importances = tree, normalize(imp)
	return nil
}

func (m *DecisionTreeRegressor) Predict(x mat.Matrix) ([]float64, error) {
	if m.Tree == nil {
		return nil, ml.ErrNotFitted
	}
	if _, err := ml.CheckWidth(x, m.Tree.NFeatures); err != nil {
		return nil, err
	}
	rows := ml.Rows(x)
	out := make([]float64, len(rows))
	for i, row := range rows {
		out[i] = m.Tree.Value(row)[0]
	}
	return out, nil
}

type DecisionTreeClassifier struct {
	Options
	Labels      []float64
	Tree        *Tree
	Importances []float64
}

func NewDecisionTreeClassifier(p ml.Params) (*DecisionTreeClassifier, error) {
	o, err := optionsFrom(p, 5)
	if err != nil {
		return nil, err
	}
	return &DecisionTreeClassifier{Options: o}, nil
}

func (m *DecisionTreeClassifier) Params() ml.Params { return m.params() }

func (m *DecisionTreeClassifier) Classes() []float64 { return m.Labels }

func (m *DecisionTreeClassifier) FeatureImportances() []float64 { return m.Importances }

func (m *DecisionTreeClassifier) Fit(x mat.Matrix, y []float64) error {
	n, _, err := ml.CheckXY(x, y)
	if err != nil {
		return err
	}
	m.Labels = ml.Classes(y)
	codes := classCodes(m.Labels, y)
	tree, imp := grow(ml.Rows(x), codes, allRows(n), m.config(0, len(m.Labels), rand.New(rand.NewSource(m.RandomState))))
	m.Tree, m.Importances = tree, normalize(imp)
	return nil
}

func (m *DecisionTreeClassifier) PredictProba(x mat.Matrix) (*mat.Dense, error) {
	if m.Tree == nil {
		return nil, ml.ErrNotFitted
	}
	return probaFrom([]*Tree{m.Tree}, len(m.Labels), x)
}

func (m *DecisionTreeClassifier) Predict(x mat.Matrix) ([]float64, error) {
	proba, err := m.PredictProba(x)
	if err != nil {
		return nil, err
	}
	return ml.PredictFromProba(proba, m.Labels), nil
}

func classCodes(classes, y []float64) []float64 {
	idx := ml.ClassIndex(classes, y)
	codes := make([]float64, len(idx))
	for i, c := range idx {
		codes[i] = float64(c)
	}
	return codes
}

// probaFrom averages the leaf class distributions of trees.
func probaFrom(trees []*Tree, nClasses int, x mat.Matrix) (*mat.Dense, error) {
	r, err := ml.CheckWidth(x, trees[0].NFeatures)
	if err != nil {
		return nil, err
	}
	out := mat.NewDense(r, nClasses, nil)
	rows := ml.Rows(x)
	for i, row := range rows {
		dst := out.RawRowView(i)
		for _, t := range trees {
			for k, p := range t.Value(row) {
				dst[k] += p
			}
		}
		for k := range dst {
			dst[k] /= float64(len(trees))
		}
	}
	return out, nil
}
