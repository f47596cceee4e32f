// Package neighbors implements brute-force k-nearest-neighbour estimators.
package neighbors

import (
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/synaptica-ai/automl/pkg/ml"
)

// Memory is the stored training set shared by both estimators.
type Memory struct {
	K       int
	Samples [][]float64
	Targets []float64
}

func memoryFrom(p ml.Params) (Memory, error) {
	k := p.Int("n_neighbors", 5)
	if k < 1 {
		return Memory{}, ml.InvalidParam("n_neighbors", float64(k), ">= 1")
	}
	return Memory{K: k}, nil
}

func (m *Memory) fit(x mat.Matrix, y []float64) error {
	if _, _, err := ml.CheckXY(x, y); err != nil {
		return err
	}
	m.Samples = ml.Rows(x)
	m.Targets = append([]float64(nil), y...)
	return nil
}

// nearest returns the indexes of the k closest samples; equal distances keep
// training order.
func (m *Memory) nearest(row []float64) []int {
	type hit struct {
		idx  int
		dist float64
	}
	hits := make([]hit, len(m.Samples))
	for i, s := range m.Samples {
		hits[i] = hit{i, ml.SquaredDistance(row, s)}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].dist < hits[b].dist })
	k := m.K
	if k > len(hits) {
		k = len(hits)
	}
	out := make([]int, k)
	for i := range out {
		out[i] = hits[i].idx
	}
	return out
}

func (m *Memory) rows(x mat.Matrix) ([][]float64, error) {
	if m.Samples == nil {
		return nil, ml.ErrNotFitted
	}
	if _, err := ml.CheckWidth(x, len(m.Samples[0])); err != nil {
		return nil, err
	}
	return ml.Rows(x), nil
}

type KNeighborsRegressor struct {
	Memory
}

func NewKNeighborsRegressor(p ml.Params) (*KNeighborsRegressor, error) {
	mem, err := memoryFrom(p)
	if err != nil {
		return nil, err
	}
	return &KNeighborsRegressor{Memory: mem}, nil
}

func (m *KNeighborsRegressor) Params() ml.Params { return ml.Params{"n_neighbors": float64(m.K)} }

func (m *KNeighborsRegressor) Fit(x mat.Matrix, y []float64) error { return m.fit(x, y) }

func (m *KNeighborsRegressor) Predict(x mat.Matrix) ([]float64, error) {
	rows, err := m.rows(x)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(rows))
	for i, row := range rows {
		idx := m.nearest(row)
		for _, j := range idx {
			out[i] += m.Targets[j]
		}
		out[i] /= float64(len(idx))
	}
	return out, nil
}

type KNeighborsClassifier struct {
	Memory
	Labels []float64
}

func NewKNeighborsClassifier(p ml.Params) (*KNeighborsClassifier, error) {
	mem, err := memoryFrom(p)
	if err != nil {
		return nil, err
	}
	return &KNeighborsClassifier{Memory: mem}, nil
}

func (m *KNeighborsClassifier) Params() ml.Params { return ml.Params{"n_neighbors": float64(m.K)} }

func (m *KNeighborsClassifier) Classes() []float64 { return m.Labels }

func (m *KNeighborsClassifier) Fit(x mat.Matrix, y []float64) error {
	if err := m.fit(x, y); err != nil {
		return err
	}
	m.Labels = ml.Classes(y)
	return nil
}

func (m *KNeighborsClassifier) PredictProba(x mat.Matrix) (*mat.Dense, error) {
	rows, err := m.rows(x)
	if err != nil {
		return nil, err
	}
	codes := ml.ClassIndex(m.Labels, m.Targets)
	out := mat.NewDense(len(rows), len(m.Labels), nil)
	for i, row := range rows {
		idx := m.nearest(row)
		for _, j := range idx {
			out.Set(i, codes[j], out.At(i, codes[j])+1/float64(len(idx)))
		}
	}
	return out, nil
}

func (m *KNeighborsClassifier) Predict(x mat.Matrix) ([]float64, error) {
	proba, err := m.PredictProba(x)
	if err != nil {
		return nil, err
	}
	return ml.PredictFromProba(proba, m.Labels), nil
}
