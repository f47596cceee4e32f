// Package evaluation scores fitted models on held-out data and picks the
// session's best model.
package evaluation

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/synaptica-ai/automl/pkg/common/logger"
	"github.com/synaptica-ai/automl/pkg/dataset"
	"github.com/synaptica-ai/automl/pkg/ml"
)

// FeatureImportanceLimit caps the importance mapping attached to results.
const FeatureImportanceLimit = 10

// Record is the training history of one model.
type Record struct {
	TrainingTime float64   `json:"training_time"`
	CVScores     []float64 `json:"cv_scores"`
	CVMean       float64   `json:"cv_mean"`
	CVStd        float64   `json:"cv_std"`
	Timestamp    time.Time `json:"timestamp"`
}

// Metrics holds the scores for one problem type; the others stay nil and
// the populated set is flattened into a single JSON object.
type Metrics struct {
	*RegressionMetrics
	*ClassificationMetrics
	*ClusteringMetrics
}

type ModelResult struct {
	Name         string    `json:"name"`
	Metrics      Metrics   `json:"metrics"`
	TrainingTime float64   `json:"training_time"`
	CVScores     []float64 `json:"cv_scores,omitempty"`
	CVMean       *float64  `json:"cv_mean"`
	CVStd        *float64  `json:"cv_std"`
}

// Result is the evaluation of every model in training order.
type Result struct {
	ProblemType dataset.ProblemType `json:"problem_type"`
	Models      []ModelResult       `json:"models"`
	BestModel   string              `json:"best_model,omitempty"`
	BestScore   Score               `json:"best_score"`
	Failed      map[string]string   `json:"failed,omitempty"`
}

// Model returns the result for name.
func (r *Result) Model(name string) (ModelResult, bool) {
	for _, m := range r.Models {
		if m.Name == name {
			return m, true
		}
	}
	return ModelResult{}, false
}

type Options struct {
	// LabelName renders class values in classification reports.
	LabelName LabelName
}

// SelectionScore is the value the best model maximises: R² for regression,
// weighted F1 for classification, silhouette for clustering.
func (m Metrics) SelectionScore(pt dataset.ProblemType) float64 {
	switch {
	case pt == dataset.Regression && m.RegressionMetrics != nil:
		return float64(m.R2)
	case pt == dataset.Classification && m.ClassificationMetrics != nil:
		return float64(m.ClassificationMetrics.F1)
	case pt == dataset.Clustering && m.ClusteringMetrics != nil:
		return float64(m.Silhouette)
	}
	return math.NaN()
}

// Evaluate scores each model against x and y (clusterers are scored on the
// labels they assigned to x during fitting, and y is ignored). Models are
// scanned in the given order and the first to reach the highest selection
// score wins, even when that score is zero. A model that fails to evaluate is
// logged, listed under Failed and never chosen.
func Evaluate(pt dataset.ProblemType, models []*ml.Model, x mat.Matrix, y []float64, history map[string]Record, opts Options) *Result {
	res := &Result{ProblemType: pt, BestScore: Score(math.NaN())}
	best := math.Inf(-1)

	for _, m := range models {
		metrics, err := score(pt, m, x, y, opts)
		if err != nil {
			logger.WithField("model", m.Name).WithError(err).Warn("Failed to evaluate model")
			if res.Failed == nil {
				res.Failed = make(map[string]string)
			}
			res.Failed[m.Name] = err.Error()
			continue
		}

		entry := ModelResult{Name: m.Name, Metrics: metrics}
		if rec, ok := history[m.Name]; ok {
			mean, std := rec.CVMean, rec.CVStd
			entry.TrainingTime = rec.TrainingTime
			entry.CVScores = rec.CVScores
			entry.CVMean, entry.CVStd = &mean, &std
		}
		res.Models = append(res.Models, entry)

		if s := metrics.SelectionScore(pt); s > best {
			best = s
			res.BestModel = m.Name
			res.BestScore = Score(s)
		}
	}
	return res
}

func score(pt dataset.ProblemType, m *ml.Model, x mat.Matrix, y []float64, opts Options) (Metrics, error) {
	if pt == dataset.Clustering {
		c, err := Clustering(x, m.Labels)
		return Metrics{ClusteringMetrics: c}, err
	}
	if m.Predictor == nil {
		return Metrics{}, fmt.Errorf("%s: %w", m.Name, ml.ErrNotFitted)
	}
	pred, err := m.Predictor.Predict(x)
	if err != nil {
		return Metrics{}, err
	}
	if pt == dataset.Regression {
		r, err := Regression(y, pred)
		return Metrics{RegressionMetrics: r}, err
	}
	c, err := Classification(y, pred, opts.LabelName)
	return Metrics{ClassificationMetrics: c}, err
}
