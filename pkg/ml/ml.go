// Package ml defines the estimator contracts shared by the model families and
// the capability record the trainer builds for every fitted model.
package ml

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrNotFitted     = errors.New("model is not fitted")
	ErrEmptyInput    = errors.New("empty input")
	ErrShapeMismatch = errors.New("shape mismatch")
	ErrInvalidParam  = errors.New("invalid hyperparameter")
)

// InvalidParam reports a hyperparameter outside its domain.
func InvalidParam(name string, value float64, want string) error {
	return fmt.Errorf("%w: %s=%g, must be %s", ErrInvalidParam, name, value, want)
}

// Params holds numeric hyperparameters by name.
type Params map[string]float64

func (p Params) Get(name string, dflt float64) float64 {
	if v, ok := p[name]; ok {
		return v
	}
	return dflt
}

func (p Params) Int(name string, dflt int) int {
	if v, ok := p[name]; ok {
		return int(v)
	}
	return dflt
}

// Merge returns a copy of p with the entries of over applied on top.
func (p Params) Merge(over Params) Params {
	out := make(Params, len(p)+len(over))
	for k, v := range p {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}

// Estimator is any model family instance.
type Estimator interface {
	Params() Params
}

// Predictor scores new rows. Classifiers return class values, clusterers
// return cluster ids.
type Predictor interface {
	Predict(x mat.Matrix) ([]float64, error)
}

// Supervised estimators learn from features and a target.
type Supervised interface {
	Estimator
	Predictor
	Fit(x mat.Matrix, y []float64) error
}

// Prober is implemented by classifiers that produce class probabilities.
// Columns of the returned matrix follow Classes.
type Prober interface {
	PredictProba(x mat.Matrix) (*mat.Dense, error)
	Classes() []float64
}

type Importancer interface {
	FeatureImportances() []float64
}

// Clusterer estimators learn from features alone and label every training row.
type Clusterer interface {
	Estimator
	FitPredict(x mat.Matrix) ([]int, error)
}

// Model is a fitted estimator together with the capabilities it supports.
// Optional capabilities are nil when the family does not provide them.
type Model struct {
	Name        string
	Estimator   Estimator
	Predictor   Predictor
	Prober      Prober
	Importances []float64
	Labels      []int
}

// NewModel records the capabilities of a fitted estimator.
func NewModel(name string, est Estimator) *Model {
	m := &Model{Name: name, Estimator: est}
	if p, ok := est.(Predictor); ok {
		m.Predictor = p
	}
	if p, ok := est.(Prober); ok {
		m.Prober = p
	}
	if imp, ok := est.(Importancer); ok {
		m.Importances = imp.FeatureImportances()
	}
	return m
}

// CheckXY validates a training pair and returns the row and column counts.
func CheckXY(x mat.Matrix, y []float64) (int, int, error) {
	r, c := x.Dims()
	if r == 0 || c == 0 {
		return 0, 0, ErrEmptyInput
	}
	if y != nil && len(y) != r {
		return 0, 0, fmt.Errorf("%w: %d rows but %d targets", ErrShapeMismatch, r, len(y))
	}
	return r, c, nil
}

// CheckWidth validates that x has the fitted feature count.
func CheckWidth(x mat.Matrix, want int) (int, error) {
	r, c := x.Dims()
	if c != want {
		return 0, fmt.Errorf("%w: got %d features, fitted with %d", ErrShapeMismatch, c, want)
	}
	return r, nil
}

// Rows copies x into row slices.
func Rows(x mat.Matrix) [][]float64 {
	r, c := x.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = make([]float64, c)
		for j := range out[i] {
			out[i][j] = x.At(i, j)
		}
	}
	return out
}

// Classes returns the sorted distinct values of y.
func Classes(y []float64) []float64 {
	seen := make(map[float64]struct{})
	var out []float64
	for _, v := range y {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Float64s(out)
	return out
}

// ClassIndex maps every y to its position in classes.
func ClassIndex(classes, y []float64) []int {
	idx := make(map[float64]int, len(classes))
	for i, c := range classes {
		idx[c] = i
	}
	out := make([]int, len(y))
	for i, v := range y {
		out[i] = idx[v]
	}
	return out
}

// ArgMax returns the index of the largest value; ties go to the lowest index.
func ArgMax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}

// Softmax normalises logits in place.
func Softmax(logits []float64) {
	peak := math.Inf(-1)
	for _, v := range logits {
		peak = math.Max(peak, v)
	}
	var sum float64
	for i, v := range logits {
		logits[i] = math.Exp(v - peak)
		sum += logits[i]
	}
	for i := range logits {
		logits[i] /= sum
	}
}

// PredictFromProba picks the most probable class per row.
func PredictFromProba(proba *mat.Dense, classes []float64) []float64 {
	r, _ := proba.Dims()
	out := make([]float64, r)
	for i := 0; i < r; i++ {
		out[i] = classes[ArgMax(proba.RawRowView(i))]
	}
	return out
}

func SquaredDistance(a, b []float64) float64 {
	var d float64
	for i := range a {
		diff := a[i] - b[i]
		d += diff * diff
	}
	return d
}
