// Package serving answers single-row prediction requests against stored
// training sessions.
package serving

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/synaptica-ai/automl/pkg/common/apperrors"
	"github.com/synaptica-ai/automl/pkg/common/logger"
	"github.com/synaptica-ai/automl/pkg/common/models"
	"github.com/synaptica-ai/automl/pkg/dataset"
	"github.com/synaptica-ai/automl/pkg/ml"
	"github.com/synaptica-ai/automl/pkg/observability/metrics"
	"github.com/synaptica-ai/automl/pkg/session"
)

// PredictionLogger records served predictions. Repository implements it.
type PredictionLogger interface {
	RecordPrediction(ctx context.Context, req models.PredictionRequest, resp models.PredictionResponse) error
}

type Predictor struct {
	sessions session.Store
	datasets dataset.Store
	audit    PredictionLogger
}

type Option func(*Predictor)

// WithDatasets lets the predictor rebuild a missing input schema from the
// session's training dataset.
func WithDatasets(store dataset.Store) Option {
	return func(p *Predictor) { p.datasets = store }
}

func WithAudit(audit PredictionLogger) Option {
	return func(p *Predictor) { p.audit = audit }
}

func NewPredictor(sessions session.Store, opts ...Option) *Predictor {
	p := &Predictor{sessions: sessions}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Predict scores one row of raw inputs with the requested model, or the
// session's best model when none is named. Every raw feature the session was
// trained on is sent through the transformer; absent ones are null-filled and
// reported in MissingInputs.
func (p *Predictor) Predict(ctx context.Context, req models.PredictionRequest) (*models.PredictionResponse, error) {
	start := time.Now()
	resp, err := p.predict(ctx, req)
	if err != nil {
		metrics.PredictionFailures.Inc()
		return nil, err
	}
	resp.Latency = time.Since(start)
	metrics.Predictions.WithLabelValues(resp.ModelName).Inc()

	if p.audit != nil {
		if err := p.audit.RecordPrediction(ctx, req, *resp); err != nil {
			logger.ForSession(req.SessionID).WithError(err).Warn("failed to record prediction")
		}
	}
	return resp, nil
}

func (p *Predictor) predict(ctx context.Context, req models.PredictionRequest) (*models.PredictionResponse, error) {
	sess, err := p.sessions.Get(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	model, err := sess.Model(req.ModelName)
	if err != nil {
		return nil, err
	}
	if _, err := sess.RawFeatureNames(); err != nil {
		return nil, err
	}
	if model.Predictor == nil {
		return nil, apperrors.BadRequest("model '%s' cannot score new rows", model.Name)
	}

	schema, err := p.schema(ctx, sess)
	if err != nil {
		return nil, err
	}
	row, missing, err := dataset.RowTable(schema, req.Inputs)
	if err != nil {
		return nil, err
	}
	x, err := sess.Transformer.TransformNewData(row)
	if err != nil {
		return nil, err
	}
	pred, err := model.Predictor.Predict(x)
	if err != nil {
		return nil, apperrors.Internal("%s predict: %w", model.Name, err)
	}
	if len(pred) != 1 {
		return nil, apperrors.Internal("%s returned %d predictions for one row", model.Name, len(pred))
	}

	resp := &models.PredictionResponse{
		SessionID:     sess.ID,
		ModelName:     model.Name,
		MissingInputs: missing,
	}
	if resp.MissingInputs == nil {
		resp.MissingInputs = []string{}
	}
	if resp.Prediction, err = decode(sess, pred[0]); err != nil {
		return nil, err
	}
	if model.Prober != nil {
		if resp.Probabilities, err = probabilities(sess, model, x); err != nil {
			return nil, err
		}
	}

	if len(missing) > 0 {
		logger.ForSession(sess.ID).WithFields(logrus.Fields{
			"model":          model.Name,
			"missing_inputs": missing,
		}).Debug("Prediction used null-filled inputs")
	}
	return resp, nil
}

// schema returns the session's input schema, rebuilding it from the training
// dataset when the session was stored without one.
func (p *Predictor) schema(ctx context.Context, sess *session.Session) ([]dataset.Field, error) {
	var table *dataset.Table
	if len(sess.InputSchema()) == 0 && p.datasets != nil {
		entry, err := p.datasets.Get(ctx, sess.Request.DatasetID)
		if err == nil {
			table = entry.Table
		}
	}
	changed, err := sess.BackfillSchema(table)
	if err != nil {
		return nil, err
	}
	if changed {
		if err := p.sessions.Put(ctx, sess); err != nil {
			return nil, err
		}
	}
	return sess.InputSchema(), nil
}

// decode turns a raw model output into the response value: the original class
// label for label-encoded classification, a cluster id for clustering and the
// number itself otherwise.
func decode(sess *session.Session, v float64) (interface{}, error) {
	switch sess.ProblemType {
	case dataset.Clustering:
		return int(v), nil
	case dataset.Classification:
		if sess.Transformer.Labels == nil {
			return v, nil
		}
		label, err := sess.Transformer.Labels.Decode(int(v))
		if err != nil {
			return nil, apperrors.Internal("decode class %v: %w", v, err)
		}
		return label, nil
	}
	return v, nil
}

func probabilities(sess *session.Session, model *ml.Model, x *mat.Dense) (map[string]float64, error) {
	proba, err := model.Prober.PredictProba(x)
	if err != nil {
		return nil, apperrors.Internal("%s predict_proba: %w", model.Name, err)
	}
	name := sess.LabelName()
	classes := model.Prober.Classes()
	out := make(map[string]float64, len(classes))
	for j, c := range classes {
		out[name(c)] = proba.At(0, j)
	}
	return out, nil
}
