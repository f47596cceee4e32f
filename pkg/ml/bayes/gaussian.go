// Package bayes implements Gaussian naive Bayes.
package bayes

import (
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/synaptica-ai/automl/pkg/ml"
)

type GaussianNB struct {
	VarSmoothing float64

	Labels    []float64
	Priors    []float64
	Means     [][]float64
	Variances [][]float64
}

func NewGaussianNB(p ml.Params) (*GaussianNB, error) {
	m := &GaussianNB{VarSmoothing: p.Get("var_smoothing", 1e-9)}
	if m.VarSmoothing < 0 {
		return nil, ml.InvalidParam("var_smoothing", m.VarSmoothing, ">= 0")
	}
	return m, nil
}

func (m *GaussianNB) Params() ml.Params { return ml.Params{"var_smoothing": m.VarSmoothing} }

func (m *GaussianNB) Classes() []float64 { return m.Labels }

func (m *GaussianNB) Fit(x mat.Matrix, y []float64) error {
	n, c, err := ml.CheckXY(x, y)
	if err != nil {
		return err
	}
	m.Labels = ml.Classes(y)
	codes := ml.ClassIndex(m.Labels, y)
	k := len(m.Labels)

	var maxVar float64
	for j := 0; j < c; j++ {
		v, _ := stats.PopulationVariance(mat.Col(nil, j, x))
		maxVar = math.Max(maxVar, v)
	}
	epsilon := m.VarSmoothing * maxVar

	members := make([][]int, k)
	for i, code := range codes {
		members[code] = append(members[code], i)
	}
	m.Priors = make([]float64, k)
	m.Means = make([][]float64, k)
	m.Variances = make([][]float64, k)
	for cls, rows := range members {
		m.Priors[cls] = float64(len(rows)) / float64(n)
		m.Means[cls] = make([]float64, c)
		m.Variances[cls] = make([]float64, c)
		values := make([]float64, len(rows))
		for j := 0; j < c; j++ {
			for r, i := range rows {
				values[r] = x.At(i, j)
			}
			m.Means[cls][j], _ = stats.Mean(values)
			v, _ := stats.PopulationVariance(values)
			m.Variances[cls][j] = v + epsilon
		}
	}
	return nil
}

func (m *GaussianNB) PredictProba(x mat.Matrix) (*mat.Dense, error) {
	if m.Means == nil {
		return nil, ml.ErrNotFitted
	}
	r, err := ml.CheckWidth(x, len(m.Means[0]))
	if err != nil {
		return nil, err
	}
	out := mat.NewDense(r, len(m.Labels), nil)
	joint := make([]float64, len(m.Labels))
	for i := 0; i < r; i++ {
		for cls := range m.Labels {
			ll := math.Log(m.Priors[cls])
			for j, mean := range m.Means[cls] {
				v := m.Variances[cls][j]
				if v == 0 {
					v = math.SmallestNonzeroFloat64
				}
				d := x.At(i, j) - mean
				ll -= 0.5 * (math.Log(2*math.Pi*v) + d*d/v)
			}
			joint[cls] = ll
		}
		norm := floats.LogSumExp(joint)
		for cls, ll := range joint {
			out.Set(i, cls, math.Exp(ll-norm))
		}
	}
	return out, nil
}

func (m *GaussianNB) Predict(x mat.Matrix) ([]float64, error) {
	proba, err := m.PredictProba(x)
	if err != nil {
		return nil, err
	}
	return ml.PredictFromProba(proba, m.Labels), nil
}
