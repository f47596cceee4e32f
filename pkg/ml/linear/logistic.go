package linear

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/synaptica-ai/automl/pkg/ml"
)

// LogisticRegression is a multinomial (softmax) classifier with an L2 penalty
// of strength 1/C, trained by full-batch gradient descent.
type LogisticRegression struct {
	C      float64
	Epochs int
	// LearningRate of 0 derives a stable step from the data.
	LearningRate float64
	Tol          float64

	Labels    []float64
	Weights   []Weights
	Converged bool
}

func NewLogisticRegression(p ml.Params) (*LogisticRegression, error) {
	m := &LogisticRegression{
		C:            p.Get("C", 1.0),
		Epochs:       p.Int("max_iter", 1000),
		LearningRate: p.Get("learning_rate", 0),
		Tol:          p.Get("tol", 1e-6),
	}
	if !(m.C > 0) {
		return nil, ml.InvalidParam("C", m.C, "> 0")
	}
	if m.Epochs <= 0 {
		return nil, ml.InvalidParam("max_iter", float64(m.Epochs), "> 0")
	}
	if m.LearningRate < 0 {
		return nil, ml.InvalidParam("learning_rate", m.LearningRate, ">= 0")
	}
	return m, nil
}

func (m *LogisticRegression) Params() ml.Params {
	return ml.Params{"C": m.C, "max_iter": float64(m.Epochs), "learning_rate": m.LearningRate, "tol": m.Tol}
}

func (m *LogisticRegression) Classes() []float64 { return m.Labels }

func (m *LogisticRegression) Fit(x mat.Matrix, y []float64) error {
	n, c, err := ml.CheckXY(x, y)
	if err != nil {
		return err
	}
	m.Labels = ml.Classes(y)
	k := len(m.Labels)
	target := ml.ClassIndex(m.Labels, y)
	samples := ml.Rows(x)
	nf := float64(n)
	penalty := 1 / (m.C * nf)

	lr := m.LearningRate
	if lr == 0 {
		var maxNorm float64
		for _, s := range samples {
			var norm float64
			for _, v := range s {
				norm += v * v
			}
			maxNorm = math.Max(maxNorm, norm+1)
		}
		lr = 1 / (0.5*maxNorm + penalty)
	}

	coef := mat.NewDense(k, c, nil)
	bias := make([]float64, k)
	grad := mat.NewDense(k, c, nil)
	biasGrad := make([]float64, k)
	prob := make([]float64, k)

	m.Converged = false
	for epoch := 0; epoch < m.Epochs; epoch++ {
		grad.Zero()
		for j := range biasGrad {
			biasGrad[j] = 0
		}
		for i, sample := range samples {
			for j := 0; j < k; j++ {
				prob[j] = bias[j] + floats.Dot(coef.RawRowView(j), sample)
			}
			ml.Softmax(prob)
			prob[target[i]] -= 1
			for j := 0; j < k; j++ {
				row := grad.RawRowView(j)
				for f, v := range sample {
					row[f] += prob[j] * v
				}
				biasGrad[j] += prob[j]
			}
		}

		var maxGrad float64
		for j := 0; j < k; j++ {
			row, w := grad.RawRowView(j), coef.RawRowView(j)
			for f := range row {
				g := row[f]/nf + penalty*w[f]
				w[f] -= lr * g
				maxGrad = math.Max(maxGrad, math.Abs(g))
			}
			g := biasGrad[j] / nf
			bias[j] -= lr * g
			maxGrad = math.Max(maxGrad, math.Abs(g))
		}
		if maxGrad < m.Tol {
			m.Converged = true
			break
		}
	}

	m.Weights = make([]Weights, k)
	for j := 0; j < k; j++ {
		m.Weights[j] = Weights{Bias: bias[j], Coefficients: append([]float64(nil), coef.RawRowView(j)...)}
	}
	return nil
}

func (m *LogisticRegression) PredictProba(x mat.Matrix) (*mat.Dense, error) {
	if m.Weights == nil {
		return nil, ml.ErrNotFitted
	}
	r, err := ml.CheckWidth(x, len(m.Weights[0].Coefficients))
	if err != nil {
		return nil, err
	}
	out := mat.NewDense(r, len(m.Weights), nil)
	for j, w := range m.Weights {
		scores, err := w.predict(x)
		if err != nil {
			return nil, err
		}
		out.SetCol(j, scores)
	}
	for i := 0; i < r; i++ {
		ml.Softmax(out.RawRowView(i))
	}
	return out, nil
}

func (m *LogisticRegression) Predict(x mat.Matrix) ([]float64, error) {
	proba, err := m.PredictProba(x)
	if err != nil {
		return nil, err
	}
	return ml.PredictFromProba(proba, m.Labels), nil
}
