package training

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/montanaflynn/stats"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/synaptica-ai/automl/pkg/common/apperrors"
	"github.com/synaptica-ai/automl/pkg/common/logger"
	"github.com/synaptica-ai/automl/pkg/dataset"
	"github.com/synaptica-ai/automl/pkg/evaluation"
	"github.com/synaptica-ai/automl/pkg/ml"
	"github.com/synaptica-ai/automl/pkg/observability/metrics"
	"github.com/synaptica-ai/automl/pkg/registry"
)

// Record is the per-model training history.
type Record = evaluation.Record

// Outcome is the result of training one algorithm: a model or the error that
// stopped it.
type Outcome struct {
	Name  string
	Model *ml.Model
	Err   error
}

// Result holds outcomes in selection order and the records of the models that
// trained.
type Result struct {
	Outcomes []Outcome
	Records  map[string]Record
}

// Models returns the trained models in selection order.
func (r *Result) Models() []*ml.Model {
	var out []*ml.Model
	for _, o := range r.Outcomes {
		if o.Err == nil {
			out = append(out, o.Model)
		}
	}
	return out
}

// Err aggregates the failures when no algorithm trained. It is nil if at
// least one model is available.
func (r *Result) Err() error {
	var result *multierror.Error
	for _, o := range r.Outcomes {
		if o.Err == nil {
			return nil
		}
		result = multierror.Append(result, fmt.Errorf("%s: %w", o.Name, o.Err))
	}
	if result == nil {
		return apperrors.BadRequest("no algorithms selected")
	}
	return apperrors.External("all algorithms failed: %w", result.ErrorOrNil())
}

type Trainer struct {
	Registry    *registry.Registry
	ProblemType dataset.ProblemType
	CVFolds     int
	RandomState int64
	// Hyperparameters overrides registry defaults per algorithm name.
	Hyperparameters map[string]ml.Params
	// OnModelTrained, if set, is called after each model trains successfully.
	OnModelTrained func(name string)
	Log            *logrus.Entry
}

// Train fits every named algorithm in turn. A failing algorithm is logged and
// recorded in its Outcome; the rest still train. The returned error is only
// for problems that affect every algorithm, such as a cancelled context or
// data too small for the requested folds.
func (t *Trainer) Train(ctx context.Context, names []string, x *mat.Dense, y []float64) (*Result, error) {
	log := t.Log
	if log == nil {
		log = logrus.NewEntry(logger.Log)
	}
	if x == nil {
		return nil, apperrors.BadRequest("no feature rows to train on")
	}

	var folds [][]int
	if t.ProblemType.Supervised() {
		if len(y) == 0 {
			return nil, apperrors.BadRequest("%s requires a target", t.ProblemType)
		}
		var err error
		if folds, err = t.folds(y); err != nil {
			return nil, apperrors.BadRequest("cross-validation: %w", err)
		}
	}

	res := &Result{Records: make(map[string]Record, len(names))}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		entry := log.WithField("algorithm", name)
		entry.Info("Training model")

		start := time.Now()
		model, scores, err := t.trainOne(ctx, name, x, y, folds)
		elapsed := time.Since(start)

		if err != nil {
			entry.WithError(err).Warn("Failed to train model")
			metrics.ModelsFailed.WithLabelValues(name).Inc()
			res.Outcomes = append(res.Outcomes, Outcome{Name: name, Err: err})
			continue
		}

		rec := Record{TrainingTime: elapsed.Seconds(), CVScores: scores, Timestamp: time.Now().UTC()}
		rec.CVMean, _ = stats.Mean(scores)
		rec.CVStd, _ = stats.StandardDeviationPopulation(scores)
		res.Records[name] = rec
		res.Outcomes = append(res.Outcomes, Outcome{Name: name, Model: model})

		metrics.ModelsTrained.WithLabelValues(name).Inc()
		metrics.FitDuration.WithLabelValues(name).Observe(elapsed.Seconds())
		entry.WithFields(logrus.Fields{
			"training_time": rec.TrainingTime,
			"cv_mean":       rec.CVMean,
		}).Info("Model trained")

		if t.OnModelTrained != nil {
			t.OnModelTrained(name)
		}
	}
	return res, nil
}

func (t *Trainer) folds(y []float64) ([][]int, error) {
	k := t.CVFolds
	if k == 0 {
		k = 5
	}
	if t.ProblemType == dataset.Classification {
		return StratifiedKFold(y, k, t.RandomState)
	}
	return KFold(len(y), k, t.RandomState)
}

// trainOne returns the fitted model and its cross-validation scores. For
// clusterers the single score is the silhouette of the fitted labelling.
func (t *Trainer) trainOne(ctx context.Context, name string, x *mat.Dense, y []float64, folds [][]int) (model *ml.Model, scores []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			model, scores, err = nil, nil, apperrors.External("%s panicked: %v", name, r)
		}
	}()

	alg, err := t.Registry.Get(t.ProblemType, name)
	if err != nil {
		return nil, nil, err
	}
	overrides := t.Hyperparameters[name]
	est, err := alg.Build(overrides)
	if err != nil {
		return nil, nil, apperrors.BadRequest("%s: %w", name, err)
	}

	if t.ProblemType == dataset.Clustering {
		c, ok := est.(ml.Clusterer)
		if !ok {
			return nil, nil, fmt.Errorf("%s does not support clustering", name)
		}
		labels, err := c.FitPredict(x)
		if err != nil {
			return nil, nil, apperrors.External("%s fit: %w", name, err)
		}
		score, err := evaluation.Silhouette(x, labels)
		if err != nil {
			return nil, nil, apperrors.External("%s silhouette: %w", name, err)
		}
		fitted := ml.NewModel(name, est)
		fitted.Labels = labels
		return fitted, []float64{score}, nil
	}

	sup, ok := est.(ml.Supervised)
	if !ok {
		return nil, nil, fmt.Errorf("%s does not support %s", name, t.ProblemType)
	}
	build := func() (ml.Supervised, error) {
		fresh, err := alg.Build(overrides)
		if err != nil {
			return nil, err
		}
		return fresh.(ml.Supervised), nil
	}
	scores, err = CrossValidate(ctx, build, x, y, folds, t.scorer())
	if err != nil {
		return nil, nil, apperrors.External("%s cross-validation: %w", name, err)
	}
	if err := sup.Fit(x, y); err != nil {
		return nil, nil, apperrors.External("%s fit: %w", name, err)
	}
	return ml.NewModel(name, sup), scores, nil
}

// scorer is MSE (reported positive) for regression and accuracy for
// classification.
func (t *Trainer) scorer() Scorer {
	if t.ProblemType == dataset.Regression {
		return evaluation.MeanSquaredError
	}
	return evaluation.Accuracy
}
