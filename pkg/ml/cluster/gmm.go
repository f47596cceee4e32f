package cluster

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/synaptica-ai/automl/pkg/ml"
)

// GaussianMixture fits diagonal-covariance components by expectation
// maximisation, starting from a k-means partition.
type GaussianMixture struct {
	NComponents int
	MaxIter     int
	Tol         float64
	RegCovar    float64
	RandomState int64

	Weights   []float64
	Means     [][]float64
	Variances [][]float64
	Converged bool
}

func NewGaussianMixture(p ml.Params) (*GaussianMixture, error) {
	m := &GaussianMixture{
		NComponents: p.Int("n_components", 3),
		MaxIter:     p.Int("max_iter", 100),
		Tol:         p.Get("tol", 1e-3),
		RegCovar:    p.Get("reg_covar", 1e-6),
		RandomState: int64(p.Int("random_state", 42)),
	}
	if err := checkClusters(m.NComponents, m.MaxIter); err != nil {
		return nil, err
	}
	if m.RegCovar < 0 {
		return nil, ml.InvalidParam("reg_covar", m.RegCovar, ">= 0")
	}
	return m, nil
}

func (m *GaussianMixture) Params() ml.Params {
	return ml.Params{
		"n_components": float64(m.NComponents),
		"max_iter":     float64(m.MaxIter),
		"tol":          m.Tol,
		"reg_covar":    m.RegCovar,
		"random_state": float64(m.RandomState),
	}
}

func (m *GaussianMixture) FitPredict(x mat.Matrix) ([]int, error) {
	rows, err := checkRows(x, m.NComponents)
	if err != nil {
		return nil, err
	}
	n, k := len(rows), m.NComponents

	rng := rand.New(rand.NewSource(m.RandomState))
	init, _ := lloyd(rows, plusPlus(rows, k, rng), 300, 1e-4)
	resp := make([][]float64, n)
	for i := range resp {
		resp[i] = make([]float64, k)
		resp[i][init[i]] = 1
	}
	m.mStep(rows, resp)

	prev := math.Inf(-1)
	m.Converged = false
	for it := 0; it < m.MaxIter; it++ {
		ll := m.eStep(rows, resp)
		m.mStep(rows, resp)
		if math.Abs(ll-prev) < m.Tol {
			m.Converged = true
			break
		}
		prev = ll
	}
	m.eStep(rows, resp)

	labels := make([]int, n)
	for i, r := range resp {
		labels[i] = ml.ArgMax(r)
	}
	return labels, nil
}

// eStep fills resp with posterior responsibilities and returns the mean log likelihood.
func (m *GaussianMixture) eStep(rows [][]float64, resp [][]float64) float64 {
	var total float64
	for i, row := range rows {
		m.logJoint(row, resp[i])
		norm := floats.LogSumExp(resp[i])
		for c := range resp[i] {
			resp[i][c] = math.Exp(resp[i][c] - norm)
		}
		total += norm
	}
	return total / float64(len(rows))
}

func (m *GaussianMixture) mStep(rows [][]float64, resp [][]float64) {
	n, p, k := len(rows), len(rows[0]), m.NComponents
	m.Weights = make([]float64, k)
	m.Means = make([][]float64, k)
	m.Variances = make([][]float64, k)
	for c := 0; c < k; c++ {
		var nk float64
		mean := make([]float64, p)
		for i, row := range rows {
			nk += resp[i][c]
			floats.AddScaled(mean, resp[i][c], row)
		}
		nk += 10 * math.SmallestNonzeroFloat64
		floats.Scale(1/nk, mean)

		variance := make([]float64, p)
		for i, row := range rows {
			for j, v := range row {
				d := v - mean[j]
				variance[j] += resp[i][c] * d * d
			}
		}
		for j := range variance {
			variance[j] = variance[j]/nk + m.RegCovar
		}
		m.Weights[c] = nk / float64(n)
		m.Means[c] = mean
		m.Variances[c] = variance
	}
}

func (m *GaussianMixture) logJoint(row []float64, dst []float64) {
	for c := range m.Means {
		ll := math.Log(m.Weights[c])
		for j, v := range row {
			variance := m.Variances[c][j]
			d := v - m.Means[c][j]
			ll -= 0.5 * (math.Log(2*math.Pi*variance) + d*d/variance)
		}
		dst[c] = ll
	}
}

func (m *GaussianMixture) Predict(x mat.Matrix) ([]float64, error) {
	if m.Means == nil {
		return nil, ml.ErrNotFitted
	}
	if _, err := ml.CheckWidth(x, len(m.Means[0])); err != nil {
		return nil, err
	}
	rows := ml.Rows(x)
	out := make([]float64, len(rows))
	joint := make([]float64, m.NComponents)
	for i, row := range rows {
		m.logJoint(row, joint)
		out[i] = float64(ml.ArgMax(joint))
	}
	return out, nil
}
