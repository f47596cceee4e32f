package tree

import (
	"math"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/synaptica-ai/automl/pkg/ml"
)

// Forest is a bagged ensemble of trees grown on bootstrap samples.
type Forest struct {
	Options
	NEstimators int
	// MaxFeatures is the fraction of features tried per split; 0 means sqrt(n).
	MaxFeatures float64
	Trees       []*Tree
	Importances []float64
}

func forestFrom(p ml.Params, maxFeatures float64) (Forest, error) {
	o, err := optionsFrom(p, 12)
	if err != nil {
		return Forest{}, err
	}
	f := Forest{Options: o, NEstimators: p.Int("n_estimators", 50), MaxFeatures: p.Get("max_features", maxFeatures)}
	if f.NEstimators < 1 {
		return f, ml.InvalidParam("n_estimators", float64(f.NEstimators), ">= 1")
	}
	if f.MaxFeatures < 0 || f.MaxFeatures > 1 {
		return f, ml.InvalidParam("max_features", f.MaxFeatures, "in [0, 1]")
	}
	return f, nil
}

func (f *Forest) params() ml.Params {
	p := f.Options.params()
	p["n_estimators"] = float64(f.NEstimators)
	p["max_features"] = f.MaxFeatures
	return p
}

func (f *Forest) fit(x [][]float64, y []float64, nClasses int) error {
	n, width := len(x), len(x[0])
	var maxFeatures int
	if f.MaxFeatures == 0 {
		maxFeatures = int(math.Max(1, math.Floor(math.Sqrt(float64(width)))))
	} else {
		maxFeatures = int(math.Max(1, math.Floor(f.MaxFeatures*float64(width))))
	}

	seeds := rand.New(rand.NewSource(f.RandomState))
	treeSeeds := make([]int64, f.NEstimators)
	for i := range treeSeeds {
		treeSeeds[i] = seeds.Int63()
	}

	trees := make([]*Tree, f.NEstimators)
	imps := make([][]float64, f.NEstimators)
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range trees {
		i := i
		g.Go(func() error {
			rng := rand.New(rand.NewSource(treeSeeds[i]))
			sample := make([]int, n)
			for j := range sample {
				sample[j] = rng.Intn(n)
			}
			trees[i], imps[i] = grow(x, y, sample, f.config(maxFeatures, nClasses, rng))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	f.Trees = trees
	f.Importances = make([]float64, width)
	for _, imp := range imps {
		for j, v := range normalize(imp) {
			f.Importances[j] += v / float64(len(imps))
		}
	}
	return nil
}

type RandomForestRegressor struct {
	Forest
}

func NewRandomForestRegressor(p ml.Params) (*RandomForestRegressor, error) {
	f, err := forestFrom(p, 1)
	if err != nil {
		return nil, err
	}
	return &RandomForestRegressor{Forest: f}, nil
}

func (m *RandomForestRegressor) Params() ml.Params { return m.params() }

func (m *RandomForestRegressor) FeatureImportances() []float64 { return m.Importances }

func (m *RandomForestRegressor) Fit(x mat.Matrix, y []float64) error {
	if _, _, err := ml.CheckXY(x, y); err != nil {
		return err
	}
	return m.fit(ml.Rows(x), y, 0)
}

func (m *RandomForestRegressor) Predict(x mat.Matrix) ([]float64, error) {
	if m.Trees == nil {
		return nil, ml.ErrNotFitted
	}
	if _, err := ml.CheckWidth(x, m.Trees[0].NFeatures); err != nil {
		return nil, err
	}
	rows := ml.Rows(x)
	out := make([]float64, len(rows))
	for i, row := range rows {
		for _, t := range m.Trees {
			out[i] += t.Value(row)[0]
		}
		out[i] /= float64(len(m.Trees))
	}
	return out, nil
}

type RandomForestClassifier struct {
	Forest
	Labels []float64
}

func NewRandomForestClassifier(p ml.Params) (*RandomForestClassifier, error) {
	f, err := forestFrom(p, 0)
	if err != nil {
		return nil, err
	}
	return &RandomForestClassifier{Forest: f}, nil
}

func (m *RandomForestClassifier) Params() ml.Params { return m.params() }

func (m *RandomForestClassifier) Classes() []float64 { return m.Labels }

func (m *RandomForestClassifier) FeatureImportances() []float64 { return m.Importances }

func (m *RandomForestClassifier) Fit(x mat.Matrix, y []float64) error {
	if _, _, err := ml.CheckXY(x, y); err != nil {
		return err
	}
	m.Labels = ml.Classes(y)
	return m.fit(ml.Rows(x), classCodes(m.Labels, y), len(m.Labels))
}

func (m *RandomForestClassifier) PredictProba(x mat.Matrix) (*mat.Dense, error) {
	if m.Trees == nil {
		return nil, ml.ErrNotFitted
	}
	return probaFrom(m.Trees, len(m.Labels), x)
}

func (m *RandomForestClassifier) Predict(x mat.Matrix) ([]float64, error) {
	proba, err := m.PredictProba(x)
	if err != nil {
		return nil, err
	}
	return ml.PredictFromProba(proba, m.Labels), nil
}
