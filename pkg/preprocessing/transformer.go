package preprocessing

import (
	"errors"

	"gonum.org/v1/gonum/mat"

	"github.com/synaptica-ai/automl/pkg/common/apperrors"
	"github.com/synaptica-ai/automl/pkg/dataset"
)

var ErrNotFitted = errors.New("preprocessor not fitted yet")

type Options struct {
	TestSize    float64
	RandomState int64
	// SelectedFeatures restricts the raw feature columns; empty means all.
	SelectedFeatures []string
}

// Output is the result of FitTransform. Test fields and targets are nil for clustering.
type Output struct {
	XTrain *mat.Dense
	XTest  *mat.Dense
	YTrain []float64
	YTest  []float64
}

// Transformer turns a raw table into model-ready matrices and reapplies the
// same fitted plan to new rows.
type Transformer struct {
	Target      string
	ProblemType dataset.ProblemType
	Options     Options

	Plan        *Plan
	Labels      *LabelEncoder
	RawFeatures []string
	Schema      []dataset.Field
}

func NewTransformer(target string, problemType dataset.ProblemType, opts Options) *Transformer {
	if opts.TestSize == 0 {
		opts.TestSize = 0.2
	}
	return &Transformer{Target: target, ProblemType: problemType, Options: opts}
}

func (t *Transformer) FitTransform(table *dataset.Table) (*Output, error) {
	features, err := t.featureColumns(table)
	if err != nil {
		return nil, err
	}

	if t.ProblemType == dataset.Clustering {
		plan, err := FitPlan(table, features)
		if err != nil {
			return nil, err
		}
		x, err := plan.Transform(table)
		if err != nil {
			return nil, err
		}
		t.fitted(table, plan, features)
		return &Output{XTrain: x}, nil
	}

	target, ok := table.Column(t.Target)
	if !ok {
		return nil, apperrors.BadRequest("target column '%s' not found in dataset", t.Target)
	}
	var labelled []int
	for i := 0; i < table.Rows(); i++ {
		if !target.IsMissing(i) {
			labelled = append(labelled, i)
		}
	}
	if len(labelled) < table.Rows() {
		table = table.Take(labelled)
		target, _ = table.Column(t.Target)
	}

	y, err := t.encodeTarget(target)
	if err != nil {
		return nil, err
	}
	var strata []float64
	if t.ProblemType == dataset.Classification {
		strata = y
	}
	trainRows, testRows, err := TrainTestSplit(table.Rows(), t.Options.TestSize, t.Options.RandomState, strata)
	if err != nil {
		return nil, err
	}

	train, test := table.Take(trainRows), table.Take(testRows)
	plan, err := FitPlan(train, features)
	if err != nil {
		return nil, err
	}
	out := &Output{YTrain: pick(y, trainRows), YTest: pick(y, testRows)}
	if out.XTrain, err = plan.Transform(train); err != nil {
		return nil, err
	}
	if out.XTest, err = plan.Transform(test); err != nil {
		return nil, err
	}
	t.fitted(train, plan, features)
	return out, nil
}

// TransformNewData applies the already fitted plan to new rows.
func (t *Transformer) TransformNewData(table *dataset.Table) (*mat.Dense, error) {
	if t.Plan == nil {
		return nil, apperrors.State("transform: %w", ErrNotFitted)
	}
	return t.Plan.Transform(table)
}

func (t *Transformer) FeatureNames() ([]string, error) {
	if t.Plan == nil {
		return nil, apperrors.State("feature names: %w", ErrNotFitted)
	}
	return t.Plan.Features, nil
}

func (t *Transformer) RawFeatureNames() []string {
	return t.RawFeatures
}

// InputSchema describes each raw feature with its dtype and one example value.
func (t *Transformer) InputSchema() []dataset.Field {
	return t.Schema
}

func (t *Transformer) featureColumns(table *dataset.Table) ([]string, error) {
	if t.ProblemType.Supervised() && t.Target == "" {
		return nil, apperrors.BadRequest("target column is required for %s", t.ProblemType)
	}
	candidates := table.Names()
	if len(t.Options.SelectedFeatures) > 0 {
		candidates = t.Options.SelectedFeatures
	}
	var features []string
	for _, name := range candidates {
		if name == t.Target {
			continue
		}
		col, ok := table.Column(name)
		if !ok {
			return nil, apperrors.BadRequest("selected feature %q not found in dataset", name)
		}
		if col.Kind == dataset.KindTemporal {
			continue
		}
		features = append(features, name)
	}
	if len(features) == 0 {
		return nil, apperrors.BadRequest("dataset has no usable feature columns")
	}
	return features, nil
}

func (t *Transformer) encodeTarget(col *dataset.Column) ([]float64, error) {
	y := make([]float64, col.Len())
	if col.Kind == dataset.KindNumeric {
		copy(y, col.Numbers)
		return y, nil
	}
	if t.ProblemType != dataset.Classification {
		return nil, apperrors.BadRequest("target column '%s' must be numeric for %s", col.Name, t.ProblemType)
	}
	t.Labels = FitLabelEncoder(col.Labels)
	for i, l := range col.Labels {
		code, _ := t.Labels.Encode(l)
		y[i] = float64(code)
	}
	return y, nil
}

func (t *Transformer) fitted(table *dataset.Table, plan *Plan, features []string) {
	t.Plan = plan
	t.RawFeatures = features
	t.Schema, _ = dataset.SchemaOf(table, features)
}

func pick(values []float64, rows []int) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = values[r]
	}
	return out
}
