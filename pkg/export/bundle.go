package export

import (
	"encoding/gob"
	"io"
	"os"

	"github.com/synaptica-ai/automl/pkg/common/apperrors"
	"github.com/synaptica-ai/automl/pkg/dataset"
	"github.com/synaptica-ai/automl/pkg/evaluation"
	"github.com/synaptica-ai/automl/pkg/ml"
	"github.com/synaptica-ai/automl/pkg/ml/bayes"
	"github.com/synaptica-ai/automl/pkg/ml/cluster"
	"github.com/synaptica-ai/automl/pkg/ml/linear"
	"github.com/synaptica-ai/automl/pkg/ml/neighbors"
	"github.com/synaptica-ai/automl/pkg/ml/tree"
	"github.com/synaptica-ai/automl/pkg/preprocessing"
)

func init() {
	gob.Register(&linear.LinearRegression{})
	gob.Register(&linear.Ridge{})
	gob.Register(&linear.Lasso{})
	gob.Register(&linear.LogisticRegression{})
	gob.Register(&tree.DecisionTreeRegressor{})
	gob.Register(&tree.DecisionTreeClassifier{})
	gob.Register(&tree.RandomForestRegressor{})
	gob.Register(&tree.RandomForestClassifier{})
	gob.Register(&tree.GradientBoostingRegressor{})
	gob.Register(&tree.GradientBoostingClassifier{})
	gob.Register(&neighbors.KNeighborsRegressor{})
	gob.Register(&neighbors.KNeighborsClassifier{})
	gob.Register(&bayes.GaussianNB{})
	gob.Register(&cluster.KMeans{})
	gob.Register(&cluster.MiniBatchKMeans{})
	gob.Register(&cluster.GaussianMixture{})
	gob.Register(&cluster.AgglomerativeClustering{})
	gob.Register(&cluster.DBSCAN{})
}

// Bundle is the native export: the fitted plan and model together with
// everything needed to score raw rows without the training session.
type Bundle struct {
	ModelName   string
	ProblemType dataset.ProblemType
	Plan        *preprocessing.Plan
	Model       ml.Estimator
	Labels      *preprocessing.LabelEncoder
	RawFeatures []string
	Schema      []dataset.Field
	Metadata    map[string]string
}

func (b *Bundle) Encode(w io.Writer) error {
	return gob.NewEncoder(w).Encode(b)
}

// LoadBundle decodes a bundle written by Encode.
func LoadBundle(r io.Reader) (*Bundle, error) {
	var b Bundle
	if err := gob.NewDecoder(r).Decode(&b); err != nil {
		return nil, apperrors.BadRequest("decode model bundle: %w", err)
	}
	if b.Plan == nil || b.Model == nil {
		return nil, apperrors.BadRequest("model bundle is incomplete")
	}
	for i, f := range b.Schema {
		b.Schema[i].Kind = dataset.ParseKind(f.DType)
	}
	return &b, nil
}

func ReadBundle(path string) (*Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadBundle(f)
}

// Prediction is the scored output of one raw row.
type Prediction struct {
	Value         interface{}
	Probabilities map[string]float64
	MissingInputs []string
}

// Predict scores one row of raw inputs. Absent features are null-filled and
// reported, the same as session predictions.
func (b *Bundle) Predict(inputs map[string]interface{}) (*Prediction, error) {
	if len(b.Schema) == 0 {
		return nil, apperrors.BadRequest("model bundle has no input schema")
	}
	model := ml.NewModel(b.ModelName, b.Model)
	if model.Predictor == nil {
		return nil, apperrors.BadRequest("model '%s' cannot score new rows", b.ModelName)
	}
	row, missing, err := dataset.RowTable(b.Schema, inputs)
	if err != nil {
		return nil, err
	}
	x, err := b.Plan.Transform(row)
	if err != nil {
		return nil, err
	}
	pred, err := model.Predictor.Predict(x)
	if err != nil {
		return nil, apperrors.Internal("%s predict: %w", b.ModelName, err)
	}

	out := &Prediction{Value: pred[0], MissingInputs: missing}
	switch {
	case b.ProblemType == dataset.Clustering:
		out.Value = int(pred[0])
	case b.Labels != nil:
		if out.Value, err = b.Labels.Decode(int(pred[0])); err != nil {
			return nil, err
		}
	}
	if model.Prober != nil {
		proba, err := model.Prober.PredictProba(x)
		if err != nil {
			return nil, apperrors.Internal("%s predict_proba: %w", b.ModelName, err)
		}
		out.Probabilities = make(map[string]float64)
		for j, c := range model.Prober.Classes() {
			out.Probabilities[b.className(c)] = proba.At(0, j)
		}
	}
	return out, nil
}

func (b *Bundle) className(c float64) string {
	if b.Labels != nil {
		if label, err := b.Labels.Decode(int(c)); err == nil {
			return label
		}
	}
	return evaluation.NumericLabel(c)
}
