package tree

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/synaptica-ai/automl/pkg/ml"
)

// Boosting holds the shared stage-wise state. Stages[s][k] is the tree for
// output k at stage s.
type Boosting struct {
	Options
	NEstimators  int
	LearningRate float64
	Init         []float64
	Stages       [][]*Tree
	Importances  []float64
	NFeatures    int
}

func boostingFrom(p ml.Params) (Boosting, error) {
	o, err := optionsFrom(p, 3)
	if err != nil {
		return Boosting{}, err
	}
	b := Boosting{Options: o, NEstimators: p.Int("n_estimators", 100), LearningRate: p.Get("learning_rate", 0.1)}
	if b.NEstimators < 1 {
		return b, ml.InvalidParam("n_estimators", float64(b.NEstimators), ">= 1")
	}
	if !(b.LearningRate > 0) {
		return b, ml.InvalidParam("learning_rate", b.LearningRate, "> 0")
	}
	return b, nil
}

func (b *Boosting) params() ml.Params {
	p := b.Options.params()
	p["n_estimators"] = float64(b.NEstimators)
	p["learning_rate"] = b.LearningRate
	return p
}

// raw returns the additive scores for one row.
func (b *Boosting) raw(row []float64) []float64 {
	out := append([]float64(nil), b.Init...)
	for _, stage := range b.Stages {
		for k, t := range stage {
			out[k] += b.LearningRate * t.Value(row)[0]
		}
	}
	return out
}

func (b *Boosting) finishImportances(total []float64) {
	b.Importances = normalize(total)
}

type GradientBoostingRegressor struct {
	Boosting
}

func NewGradientBoostingRegressor(p ml.Params) (*GradientBoostingRegressor, error) {
	b, err := boostingFrom(p)
	if err != nil {
		return nil, err
	}
	return &GradientBoostingRegressor{Boosting: b}, nil
}

func (m *GradientBoostingRegressor) Params() ml.Params { return m.params() }

func (m *GradientBoostingRegressor) FeatureImportances() []float64 { return m.Importances }

func (m *GradientBoostingRegressor) Fit(x mat.Matrix, y []float64) error {
	n, width, err := ml.CheckXY(x, y)
	if err != nil {
		return err
	}
	rows := ml.Rows(x)
	rng := rand.New(rand.NewSource(m.RandomState))
	cfg := m.config(0, 0, rng)

	var mean float64
	for _, v := range y {
		mean += v
	}
	mean /= float64(n)
	m.Init, m.NFeatures = []float64{mean}, width
	m.Stages = make([][]*Tree, 0, m.NEstimators)

	pred := make([]float64, n)
	for i := range pred {
		pred[i] = mean
	}
	residual := make([]float64, n)
	total := make([]float64, width)
	for s := 0; s < m.NEstimators; s++ {
		for i := range residual {
			residual[i] = y[i] - pred[i]
		}
		t, imp := grow(rows, residual, allRows(n), cfg)
		for j, v := range imp {
			total[j] += v
		}
		for i, row := range rows {
			pred[i] += m.LearningRate * t.Value(row)[0]
		}
		m.Stages = append(m.Stages, []*Tree{t})
	}
	m.finishImportances(total)
	return nil
}

func (m *GradientBoostingRegressor) Predict(x mat.Matrix) ([]float64, error) {
	if m.Stages == nil {
		return nil, ml.ErrNotFitted
	}
	if _, err := ml.CheckWidth(x, m.NFeatures); err != nil {
		return nil, err
	}
	rows := ml.Rows(x)
	out := make([]float64, len(rows))
	for i, row := range rows {
		out[i] = m.raw(row)[0]
	}
	return out, nil
}

// GradientBoostingClassifier minimises log loss: one tree per stage on the
// log-odds for two classes, one tree per class under softmax otherwise.
type GradientBoostingClassifier struct {
	Boosting
	Labels []float64
}

func NewGradientBoostingClassifier(p ml.Params) (*GradientBoostingClassifier, error) {
	b, err := boostingFrom(p)
	if err != nil {
		return nil, err
	}
	return &GradientBoostingClassifier{Boosting: b}, nil
}

func (m *GradientBoostingClassifier) Params() ml.Params { return m.params() }

func (m *GradientBoostingClassifier) Classes() []float64 { return m.Labels }

func (m *GradientBoostingClassifier) FeatureImportances() []float64 { return m.Importances }

func (m *GradientBoostingClassifier) outputs() int {
	if len(m.Labels) == 2 {
		return 1
	}
	return len(m.Labels)
}

func (m *GradientBoostingClassifier) Fit(x mat.Matrix, y []float64) error {
	n, width, err := ml.CheckXY(x, y)
	if err != nil {
		return err
	}
	rows := ml.Rows(x)
	m.Labels = ml.Classes(y)
	m.NFeatures = width
	codes := ml.ClassIndex(m.Labels, y)
	k := m.outputs()

	m.Stages = make([][]*Tree, 0, m.NEstimators)
	if len(m.Labels) < 2 {
		m.Init = []float64{0}
		m.finishImportances(make([]float64, width))
		return nil
	}

	prior := make([]float64, len(m.Labels))
	for _, c := range codes {
		prior[c] += 1 / float64(n)
	}
	if k == 1 {
		m.Init = []float64{math.Log(prior[1] / prior[0])}
	} else {
		m.Init = make([]float64, k)
		for j := range m.Init {
			m.Init[j] = math.Log(prior[j])
		}
	}
	rng := rand.New(rand.NewSource(m.RandomState))
	cfg := m.config(0, 0, rng)
	scores := make([][]float64, n)
	for i := range scores {
		scores[i] = append([]float64(nil), m.Init...)
	}
	residual := make([][]float64, k)
	for j := range residual {
		residual[j] = make([]float64, n)
	}
	total := make([]float64, width)

	for s := 0; s < m.NEstimators; s++ {
		for i := range scores {
			p := m.link(scores[i])
			for j := 0; j < k; j++ {
				target := 0.0
				if (k == 1 && codes[i] == 1) || (k > 1 && codes[i] == j) {
					target = 1
				}
				residual[j][i] = target - p[j]
			}
		}
		stage := make([]*Tree, k)
		for j := 0; j < k; j++ {
			t, imp := grow(rows, residual[j], allRows(n), cfg)
			newtonLeaves(t, rows, residual[j], k)
			for f, v := range imp {
				total[f] += v
			}
			stage[j] = t
		}
		for i, row := range rows {
			for j, t := range stage {
				scores[i][j] += m.LearningRate * t.Value(row)[0]
			}
		}
		m.Stages = append(m.Stages, stage)
	}
	m.finishImportances(total)
	return nil
}

// link maps raw scores to per-output probabilities (positive class for k == 1).
func (m *GradientBoostingClassifier) link(raw []float64) []float64 {
	if len(raw) == 1 {
		return []float64{1 / (1 + math.Exp(-raw[0]))}
	}
	p := append([]float64(nil), raw...)
	ml.Softmax(p)
	return p
}

// newtonLeaves replaces each leaf mean with a one-step Newton estimate.
func newtonLeaves(t *Tree, rows [][]float64, residual []float64, k int) {
	num := make(map[int]float64)
	den := make(map[int]float64)
	for i, row := range rows {
		leaf := t.Apply(row)
		r := residual[i]
		num[leaf] += r
		den[leaf] += math.Abs(r) * (1 - math.Abs(r))
	}
	scale := 1.0
	if k > 1 {
		scale = float64(k-1) / float64(k)
	}
	for leaf, s := range num {
		v := 0.0
		if den[leaf] > 1e-150 {
			v = scale * s / den[leaf]
		}
		t.Nodes[leaf].Value = []float64{v}
	}
}

func (m *GradientBoostingClassifier) PredictProba(x mat.Matrix) (*mat.Dense, error) {
	if m.Stages == nil {
		return nil, ml.ErrNotFitted
	}
	r, err := ml.CheckWidth(x, m.NFeatures)
	if err != nil {
		return nil, err
	}
	out := mat.NewDense(r, len(m.Labels), nil)
	for i, row := range ml.Rows(x) {
		if len(m.Labels) == 1 {
			out.Set(i, 0, 1)
			continue
		}
		p := m.link(m.raw(row))
		if len(p) == 1 {
			out.SetRow(i, []float64{1 - p[0], p[0]})
			continue
		}
		out.SetRow(i, p)
	}
	return out, nil
}

func (m *GradientBoostingClassifier) Predict(x mat.Matrix) ([]float64, error) {
	proba, err := m.PredictProba(x)
	if err != nil {
		return nil, err
	}
	return ml.PredictFromProba(proba, m.Labels), nil
}
