// Package linear implements least-squares regressors and a multinomial
// logistic classifier on gonum matrices.
package linear

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/synaptica-ai/automl/pkg/ml"
)

// Weights is a fitted linear function y = Coefficients.x + Bias.
type Weights struct {
	Bias         float64   `json:"bias"`
	Coefficients []float64 `json:"coefficients"`
}

func (w Weights) predict(x mat.Matrix) ([]float64, error) {
	if w.Coefficients == nil {
		return nil, ml.ErrNotFitted
	}
	r, err := ml.CheckWidth(x, len(w.Coefficients))
	if err != nil {
		return nil, err
	}
	out := make([]float64, r)
	for i := range out {
		v := w.Bias
		for j, c := range w.Coefficients {
			v += c * x.At(i, j)
		}
		out[i] = v
	}
	return out, nil
}

// LinearRegression is ordinary least squares solved by SVD, so collinear
// features such as a full one-hot block get the minimum-norm solution.
type LinearRegression struct {
	Weights Weights
}

func NewLinearRegression(ml.Params) (*LinearRegression, error) {
	return &LinearRegression{}, nil
}

func (m *LinearRegression) Params() ml.Params { return ml.Params{} }

func (m *LinearRegression) Fit(x mat.Matrix, y []float64) error {
	xc, yc, xMean, yMean, err := center(x, y)
	if err != nil {
		return err
	}
	_, c := xc.Dims()
	coef := make([]float64, c)

	var svd mat.SVD
	if !svd.Factorize(xc, mat.SVDThin) {
		return fmt.Errorf("linear regression: SVD did not converge")
	}
	if rank := svd.Rank(1e-12); rank > 0 {
		beta := mat.NewVecDense(c, nil)
		svd.SolveVecTo(beta, yc, rank)
		copy(coef, beta.RawVector().Data)
	}
	m.Weights = finish(coef, xMean, yMean)
	return nil
}

func (m *LinearRegression) Predict(x mat.Matrix) ([]float64, error) {
	return m.Weights.predict(x)
}

// Ridge minimises ||y - Xw||^2 + alpha*||w||^2.
type Ridge struct {
	Alpha   float64
	Weights Weights
}

func NewRidge(p ml.Params) (*Ridge, error) {
	m := &Ridge{Alpha: p.Get("alpha", 1.0)}
	if m.Alpha < 0 || math.IsNaN(m.Alpha) {
		return nil, ml.InvalidParam("alpha", m.Alpha, ">= 0")
	}
	return m, nil
}

func (m *Ridge) Params() ml.Params { return ml.Params{"alpha": m.Alpha} }

func (m *Ridge) Fit(x mat.Matrix, y []float64) error {
	if m.Alpha == 0 {
		var ols LinearRegression
		if err := ols.Fit(x, y); err != nil {
			return err
		}
		m.Weights = ols.Weights
		return nil
	}
	xc, yc, xMean, yMean, err := center(x, y)
	if err != nil {
		return err
	}
	_, c := xc.Dims()

	gram := mat.NewSymDense(c, nil)
	gram.SymOuterK(1, xc.T())
	for j := 0; j < c; j++ {
		gram.SetSym(j, j, gram.At(j, j)+m.Alpha)
	}
	rhs := mat.NewVecDense(c, nil)
	rhs.MulVec(xc.T(), yc)

	var chol mat.Cholesky
	if !chol.Factorize(gram) {
		return fmt.Errorf("ridge: normal equations are not positive definite")
	}
	beta := mat.NewVecDense(c, nil)
	if err := chol.SolveVecTo(beta, rhs); err != nil {
		return fmt.Errorf("ridge: %w", err)
	}
	m.Weights = finish(beta.RawVector().Data, xMean, yMean)
	return nil
}

func (m *Ridge) Predict(x mat.Matrix) ([]float64, error) {
	return m.Weights.predict(x)
}

// Lasso minimises (1/2n)||y - Xw||^2 + alpha*||w||_1 by cyclic coordinate descent.
type Lasso struct {
	Alpha   float64
	MaxIter int
	Tol     float64
	Weights Weights
}

func NewLasso(p ml.Params) (*Lasso, error) {
	m := &Lasso{Alpha: p.Get("alpha", 1.0), MaxIter: p.Int("max_iter", 1000), Tol: p.Get("tol", 1e-4)}
	if m.Alpha < 0 || math.IsNaN(m.Alpha) {
		return nil, ml.InvalidParam("alpha", m.Alpha, ">= 0")
	}
	if m.MaxIter <= 0 {
		return nil, ml.InvalidParam("max_iter", float64(m.MaxIter), "> 0")
	}
	return m, nil
}

func (m *Lasso) Params() ml.Params {
	return ml.Params{"alpha": m.Alpha, "max_iter": float64(m.MaxIter), "tol": m.Tol}
}

func (m *Lasso) Fit(x mat.Matrix, y []float64) error {
	xc, yc, xMean, yMean, err := center(x, y)
	if err != nil {
		return err
	}
	n, c := xc.Dims()
	nf := float64(n)

	norms := make([]float64, c)
	for j := 0; j < c; j++ {
		col := mat.Col(nil, j, xc)
		norms[j] = floats.Dot(col, col) / nf
	}
	residual := append([]float64(nil), yc.RawVector().Data...)
	beta := make([]float64, c)

	for iter := 0; iter < m.MaxIter; iter++ {
		var maxDelta, maxBeta float64
		for j := 0; j < c; j++ {
			if norms[j] == 0 {
				continue
			}
			var rho float64
			for i := 0; i < n; i++ {
				rho += xc.At(i, j) * residual[i]
			}
			rho = rho/nf + norms[j]*beta[j]
			next := softThreshold(rho, m.Alpha) / norms[j]
			if delta := next - beta[j]; delta != 0 {
				for i := 0; i < n; i++ {
					residual[i] -= xc.At(i, j) * delta
				}
				maxDelta = math.Max(maxDelta, math.Abs(delta))
				beta[j] = next
			}
			maxBeta = math.Max(maxBeta, math.Abs(beta[j]))
		}
		if maxDelta <= m.Tol*math.Max(maxBeta, 1) {
			break
		}
	}
	m.Weights = finish(beta, xMean, yMean)
	return nil
}

func (m *Lasso) Predict(x mat.Matrix) ([]float64, error) {
	return m.Weights.predict(x)
}

func softThreshold(v, t float64) float64 {
	switch {
	case v > t:
		return v - t
	case v < -t:
		return v + t
	default:
		return 0
	}
}

// center subtracts column means from x and the mean from y.
func center(x mat.Matrix, y []float64) (*mat.Dense, *mat.VecDense, []float64, float64, error) {
	n, c, err := ml.CheckXY(x, y)
	if err != nil {
		return nil, nil, nil, 0, err
	}
	xc := mat.DenseCopyOf(x)
	means := make([]float64, c)
	for j := 0; j < c; j++ {
		var sum float64
		for i := 0; i < n; i++ {
			sum += xc.At(i, j)
		}
		means[j] = sum / float64(n)
		for i := 0; i < n; i++ {
			xc.Set(i, j, xc.At(i, j)-means[j])
		}
	}
	var yMean float64
	for _, v := range y {
		yMean += v
	}
	yMean /= float64(n)
	yc := mat.NewVecDense(n, nil)
	for i, v := range y {
		yc.SetVec(i, v-yMean)
	}
	return xc, yc, means, yMean, nil
}

func finish(coef, xMean []float64, yMean float64) Weights {
	return Weights{Coefficients: coef, Bias: yMean - floats.Dot(coef, xMean)}
}
