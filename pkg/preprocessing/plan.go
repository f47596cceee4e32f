package preprocessing

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/mat"

	"github.com/synaptica-ai/automl/pkg/common/apperrors"
	"github.com/synaptica-ai/automl/pkg/dataset"
)

// OutlierFactor is the IQR multiplier for numeric capping.
const OutlierFactor = 1.5

// NumericStep is a fitted median-impute, IQR-cap, standardize chain for one column.
type NumericStep struct {
	Column string
	Median float64
	Lower  float64
	Upper  float64
	Mean   float64
	Scale  float64
}

func (s NumericStep) Apply(v float64) float64 {
	if math.IsNaN(v) {
		v = s.Median
	}
	v = math.Max(s.Lower, math.Min(s.Upper, v))
	return (v - s.Mean) / s.Scale
}

// CategoricalStep is a fitted mode-impute, one-hot chain for one column.
// Categories are sorted; an unseen category encodes to all zeros.
type CategoricalStep struct {
	Column     string
	Mode       string
	Categories []string
}

func (s CategoricalStep) index(label string) int {
	i := sort.SearchStrings(s.Categories, label)
	if i < len(s.Categories) && s.Categories[i] == label {
		return i
	}
	return -1
}

// Plan is a fitted column-wise transform from a raw table to a numeric matrix.
// Numeric outputs come first, then the one-hot blocks, in column order.
type Plan struct {
	Numeric     []NumericStep
	Categorical []CategoricalStep
	Features    []string
}

// FitPlan fits a plan over the given columns. Columns with no observed values
// carry no information and are left out.
func FitPlan(t *dataset.Table, columns []string) (*Plan, error) {
	p := &Plan{}
	for _, name := range columns {
		col, ok := t.Column(name)
		if !ok {
			return nil, apperrors.BadRequest("column %q not found in dataset", name)
		}
		observed := col.Len() - col.MissingCount()
		if observed == 0 {
			continue
		}
		switch col.Kind {
		case dataset.KindNumeric:
			p.Numeric = append(p.Numeric, fitNumeric(col))
		case dataset.KindCategorical:
			p.Categorical = append(p.Categorical, fitCategorical(col))
		}
	}
	for _, s := range p.Numeric {
		p.Features = append(p.Features, s.Column)
	}
	for _, s := range p.Categorical {
		for _, c := range s.Categories {
			p.Features = append(p.Features, s.Column+"_"+c)
		}
	}
	if len(p.Features) == 0 {
		return nil, apperrors.BadRequest("no usable feature columns")
	}
	return p, nil
}

func fitNumeric(col *dataset.Column) NumericStep {
	step := NumericStep{Column: col.Name, Scale: 1}
	step.Median, _ = stats.Median(col.Observed())

	imputed := make([]float64, col.Len())
	for i, v := range col.Numbers {
		if math.IsNaN(v) {
			v = step.Median
		}
		imputed[i] = v
	}
	step.Lower, step.Upper = math.Inf(-1), math.Inf(1)
	if len(imputed) >= 2 {
		// A zero IQR would collapse every non-median value onto the median.
		if q, err := stats.Quartile(imputed); err == nil && q.Q3 > q.Q1 {
			iqr := q.Q3 - q.Q1
			step.Lower, step.Upper = q.Q1-OutlierFactor*iqr, q.Q3+OutlierFactor*iqr
		}
	}
	for i, v := range imputed {
		imputed[i] = math.Max(step.Lower, math.Min(step.Upper, v))
	}
	step.Mean, _ = stats.Mean(imputed)
	if sd, err := stats.StandardDeviationPopulation(imputed); err == nil && sd > 0 {
		step.Scale = sd
	}
	return step
}

func fitCategorical(col *dataset.Column) CategoricalStep {
	mode, _ := col.Mode()
	counts := col.ValueCounts()
	categories := make([]string, 0, len(counts))
	for c := range counts {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	return CategoricalStep{Column: col.Name, Mode: mode, Categories: categories}
}

// Transform applies the fitted plan. It never refits.
func (p *Plan) Transform(t *dataset.Table) (*mat.Dense, error) {
	rows := t.Rows()
	if rows == 0 {
		return nil, apperrors.BadRequest("cannot transform an empty table")
	}
	out := mat.NewDense(rows, len(p.Features), nil)

	j := 0
	for _, s := range p.Numeric {
		col, ok := t.Column(s.Column)
		if !ok {
			return nil, apperrors.BadRequest("column %q not found in input", s.Column)
		}
		if col.Kind != dataset.KindNumeric {
			return nil, apperrors.BadRequest("column %q must be numeric", s.Column)
		}
		for i := 0; i < rows; i++ {
			out.Set(i, j, s.Apply(col.Numbers[i]))
		}
		j++
	}
	for _, s := range p.Categorical {
		col, ok := t.Column(s.Column)
		if !ok {
			return nil, apperrors.BadRequest("column %q not found in input", s.Column)
		}
		for i := 0; i < rows; i++ {
			label := s.Mode
			if !col.IsMissing(i) {
				label = col.Key(i)
			}
			if k := s.index(label); k >= 0 {
				out.Set(i, j+k, 1)
			}
		}
		j += len(s.Categories)
	}
	return out, nil
}
