// Package session holds the outcome of finished training runs: the fitted
// transformer, the trained models and their evaluation.
package session

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/synaptica-ai/automl/pkg/common/apperrors"
	"github.com/synaptica-ai/automl/pkg/dataset"
	"github.com/synaptica-ai/automl/pkg/evaluation"
	"github.com/synaptica-ai/automl/pkg/ml"
	"github.com/synaptica-ai/automl/pkg/preprocessing"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrModelNotFound   = errors.New("model not found")
)

// Request is the input of a training run.
type Request struct {
	DatasetID          string               `json:"file_id"`
	TargetColumn       string               `json:"target_column,omitempty"`
	SelectedFeatures   []string             `json:"selected_features,omitempty"`
	ProblemType        dataset.ProblemType  `json:"problem_type,omitempty"`
	SelectedAlgorithms []string             `json:"selected_algorithms"`
	TestSize           float64              `json:"test_size"`
	RandomState        int64                `json:"random_state"`
	CVFolds            int                  `json:"cv_folds"`
	Hyperparameters    map[string]ml.Params `json:"hyperparameters,omitempty"`
}

// DefaultRequest returns a request carrying the configured split and
// cross-validation defaults, ready to be overlaid by a decoded body.
func DefaultRequest(testSize float64, randomState int64, cvFolds int) Request {
	return Request{TestSize: testSize, RandomState: randomState, CVFolds: cvFolds}
}

func (r Request) Validate() error {
	if r.DatasetID == "" {
		return apperrors.BadRequest("file_id is required")
	}
	if len(r.SelectedAlgorithms) == 0 {
		return apperrors.BadRequest("at least one algorithm must be selected")
	}
	if r.TestSize < 0.1 || r.TestSize > 0.5 {
		return apperrors.BadRequest("test_size must be between 0.1 and 0.5, got %g", r.TestSize)
	}
	if r.CVFolds < 2 || r.CVFolds > 10 {
		return apperrors.BadRequest("cv_folds must be between 2 and 10, got %d", r.CVFolds)
	}
	if r.ProblemType != "" {
		if _, err := dataset.ParseProblemType(string(r.ProblemType)); err != nil {
			return err
		}
	}
	return nil
}

// Session is one completed training run. Everything except the input schema
// is fixed once the session is stored.
type Session struct {
	ID                string
	Request           Request
	ProblemType       dataset.ProblemType
	Transformer       *preprocessing.Transformer
	Models            []*ml.Model
	Records           map[string]evaluation.Record
	Results           *evaluation.Result
	FeatureNames      []string
	FeatureImportance map[string]float64
	CreatedAt         time.Time

	mu sync.Mutex
}

// Model returns the named model, or the best model when name is empty.
func (s *Session) Model(name string) (*ml.Model, error) {
	if name == "" {
		if s.Results == nil || s.Results.BestModel == "" {
			return nil, apperrors.NotFound("session %s has no best model: %w", s.ID, ErrModelNotFound)
		}
		name = s.Results.BestModel
	}
	for _, m := range s.Models {
		if m.Name == name {
			return m, nil
		}
	}
	return nil, apperrors.NotFound("model '%s' in session %s: %w", name, s.ID, ErrModelNotFound)
}

func (s *Session) ModelNames() []string {
	names := make([]string, len(s.Models))
	for i, m := range s.Models {
		names[i] = m.Name
	}
	return names
}

// RawFeatureNames lists the input columns the transformer was fitted on.
func (s *Session) RawFeatureNames() ([]string, error) {
	if s.Transformer == nil || len(s.Transformer.RawFeatures) == 0 {
		return nil, apperrors.BadRequest("session %s has no raw feature names", s.ID)
	}
	return append([]string(nil), s.Transformer.RawFeatures...), nil
}

func (s *Session) InputSchema() []dataset.Field {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Transformer == nil {
		return nil
	}
	return append([]dataset.Field(nil), s.Transformer.Schema...)
}

// BackfillSchema fills in an input schema that is absent or was decoded
// without column kinds. The table is only consulted when no schema exists;
// it may be nil. It reports whether anything changed.
func (s *Session) BackfillSchema(t *dataset.Table) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tr := s.Transformer
	if tr == nil || len(tr.RawFeatures) == 0 {
		return false, nil
	}

	if len(tr.Schema) == 0 {
		if t == nil {
			return false, apperrors.State("session %s has no input schema and its dataset is unavailable", s.ID)
		}
		schema, err := dataset.SchemaOf(t, tr.RawFeatures)
		if err != nil {
			return false, err
		}
		tr.Schema = schema
		return true, nil
	}

	changed := false
	for i, f := range tr.Schema {
		if k := dataset.ParseKind(f.DType); k != f.Kind {
			tr.Schema[i].Kind = k
			changed = true
		}
	}
	return changed, nil
}

// LabelName renders class codes with their original labels when the target
// was label-encoded.
func (s *Session) LabelName() evaluation.LabelName {
	if s.Transformer == nil || s.Transformer.Labels == nil {
		return evaluation.NumericLabel
	}
	enc := s.Transformer.Labels
	return func(v float64) string {
		if label, err := enc.Decode(int(v)); err == nil {
			return label
		}
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
}

// Summary is the serializable view of a session.
type Summary struct {
	SessionID         string                   `json:"session_id"`
	ProblemType       dataset.ProblemType      `json:"problem_type"`
	TargetColumn      string                   `json:"target_column"`
	Models            []evaluation.ModelResult `json:"models"`
	BestModel         string                   `json:"best_model"`
	FeatureNames      []string                 `json:"feature_names"`
	FeatureImportance map[string]float64       `json:"feature_importance,omitempty"`
	InputSchema       []dataset.Field          `json:"input_schema"`
	Timestamp         time.Time                `json:"timestamp"`
}

func (s *Session) Summary() Summary {
	out := Summary{
		SessionID:         s.ID,
		ProblemType:       s.ProblemType,
		TargetColumn:      s.Request.TargetColumn,
		FeatureNames:      s.FeatureNames,
		FeatureImportance: s.FeatureImportance,
		InputSchema:       s.InputSchema(),
		Timestamp:         s.CreatedAt,
	}
	if out.TargetColumn == "" {
		out.TargetColumn = "N/A (Clustering)"
	}
	if s.Results != nil {
		out.Models = s.Results.Models
		out.BestModel = s.Results.BestModel
	}
	return out
}
