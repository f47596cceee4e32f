// Package export writes a session's fitted pipeline to disk, either as an
// ONNX graph or as a native gob bundle.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/synaptica-ai/automl/pkg/common/apperrors"
	"github.com/synaptica-ai/automl/pkg/common/logger"
	"github.com/synaptica-ai/automl/pkg/common/models"
	"github.com/synaptica-ai/automl/pkg/dataset"
	"github.com/synaptica-ai/automl/pkg/export/onnx"
	"github.com/synaptica-ai/automl/pkg/ml"
	"github.com/synaptica-ai/automl/pkg/observability/metrics"
	"github.com/synaptica-ai/automl/pkg/session"
)

const (
	FormatONNX   = "onnx"
	FormatNative = "native"
)

var ErrNoConverter = onnx.ErrNoConverter

// Artifact describes a written export. Format is what was actually written;
// Fallback is set when an ONNX request was served as a native bundle.
type Artifact struct {
	SessionID string            `json:"session_id"`
	ModelName string            `json:"model_name"`
	Format    string            `json:"format"`
	Requested string            `json:"requested_format"`
	Fallback  bool              `json:"fallback"`
	Path      string            `json:"path"`
	FileName  string            `json:"file_name"`
	Size      int64             `json:"size"`
	Metadata  map[string]string `json:"metadata"`
}

type Exporter struct {
	dir      string
	sessions session.Store
	datasets dataset.Store
}

type Option func(*Exporter)

// WithDatasets lets the exporter rebuild a missing input schema from the
// session's training dataset.
func WithDatasets(store dataset.Store) Option {
	return func(e *Exporter) { e.datasets = store }
}

func NewExporter(dir string, sessions session.Store, opts ...Option) *Exporter {
	e := &Exporter{dir: dir, sessions: sessions}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Export writes the pipeline of the requested model, the session's best
// model by default. An ONNX conversion failure is returned as an external
// error unless req.AllowFallback is set, in which case a native bundle is
// written instead. A failed export leaves no file behind.
func (e *Exporter) Export(ctx context.Context, req models.DownloadRequest) (*Artifact, error) {
	format := strings.ToLower(strings.TrimSpace(req.Format))
	if format == "" {
		format = FormatONNX
	}
	if format != FormatONNX && format != FormatNative {
		return nil, apperrors.BadRequest("unsupported export format %q", req.Format)
	}

	sess, err := e.sessions.Get(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	model, err := sess.Model(req.ModelName)
	if err != nil {
		return nil, err
	}
	if sess.Transformer == nil || sess.Transformer.Plan == nil {
		return nil, apperrors.State("session %s has no fitted preprocessing plan", sess.ID)
	}
	raw, err := sess.RawFeatureNames()
	if err != nil {
		return nil, err
	}
	if err := e.backfill(ctx, sess); err != nil {
		return nil, err
	}

	meta, err := metadata(sess, model, raw)
	if err != nil {
		return nil, err
	}
	log := logger.ForSession(sess.ID).WithFields(logrus.Fields{"model": model.Name, "format": format})

	art := &Artifact{SessionID: sess.ID, ModelName: model.Name, Requested: format, Metadata: meta}
	var data []byte
	if format == FormatONNX {
		data, err = e.convert(sess, model, raw, meta)
		if err != nil {
			if !req.AllowFallback {
				return nil, apperrors.External("onnx export of %s: %w", model.Name, err)
			}
			log.WithError(err).Warn("ONNX export failed, falling back to native bundle")
			art.Fallback = true
			format = FormatNative
		}
	}
	if format == FormatNative {
		if data, err = e.bundle(sess, model, raw, meta); err != nil {
			return nil, apperrors.Internal("native export of %s: %w", model.Name, err)
		}
	}

	art.Format = format
	art.FileName = FileName(sess.ID, model.Name, format)
	if art.Path, err = writeFile(e.dir, art.FileName, data); err != nil {
		return nil, err
	}
	art.Size = int64(len(data))
	metrics.Exports.WithLabelValues(art.Requested, art.Format).Inc()
	log.WithFields(logrus.Fields{"path": art.Path, "fallback": art.Fallback}).Info("Model exported")
	return art, nil
}

// FileName is the artifact name of a session's model in a format.
func FileName(sessionID, modelName, format string) string {
	ext := ".gob"
	if format == FormatONNX {
		ext = ".onnx"
	}
	return fmt.Sprintf("%s_%s%s", sessionID, modelName, ext)
}

func (e *Exporter) backfill(ctx context.Context, sess *session.Session) error {
	var table *dataset.Table
	if len(sess.InputSchema()) == 0 && e.datasets != nil {
		if entry, err := e.datasets.Get(ctx, sess.Request.DatasetID); err == nil {
			table = entry.Table
		}
	}
	changed, err := sess.BackfillSchema(table)
	if err != nil {
		// The ONNX graph falls back to numeric placeholders without a schema.
		if apperrors.Is(err, apperrors.KindState) {
			return nil
		}
		return err
	}
	if changed {
		return e.sessions.Put(ctx, sess)
	}
	return nil
}

func (e *Exporter) convert(sess *session.Session, model *ml.Model, raw []string, meta map[string]string) ([]byte, error) {
	src := onnx.Source{
		Name:        model.Name,
		Plan:        sess.Transformer.Plan,
		Schema:      sess.InputSchema(),
		RawFeatures: raw,
		Estimator:   model.Estimator,
		Metadata:    meta,
	}
	if sess.Transformer.Labels != nil {
		src.ClassLabels = sess.Transformer.Labels.Classes
	}
	return onnx.Convert(src)
}

func (e *Exporter) bundle(sess *session.Session, model *ml.Model, raw []string, meta map[string]string) ([]byte, error) {
	b := &Bundle{
		ModelName:   model.Name,
		ProblemType: sess.ProblemType,
		Plan:        sess.Transformer.Plan,
		Model:       model.Estimator,
		Labels:      sess.Transformer.Labels,
		RawFeatures: raw,
		Schema:      sess.InputSchema(),
		Metadata:    meta,
	}
	var buf bytes.Buffer
	if err := b.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// metadata is the string map embedded in every export.
func metadata(sess *session.Session, model *ml.Model, raw []string) (map[string]string, error) {
	schema, err := json.Marshal(sess.InputSchema())
	if err != nil {
		return nil, err
	}
	features, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	meta := map[string]string{
		"session_id":        sess.ID,
		"model_name":        model.Name,
		"problem_type":      string(sess.ProblemType),
		"target_column":     sess.Request.TargetColumn,
		"training_date":     sess.CreatedAt.UTC().Format(time.RFC3339),
		"input_schema":      string(schema),
		"raw_feature_names": string(features),
	}
	if sess.ProblemType == dataset.Classification && sess.Transformer.Labels != nil {
		mapping, err := json.Marshal(sess.Transformer.Labels.Mapping())
		if err != nil {
			return nil, err
		}
		meta["label_mapping"] = string(mapping)
	}
	return meta, nil
}

// writeFile writes data to dir/name through a temporary file in the same
// directory, so a reader never sees a partial artifact.
func writeFile(dir, name string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", apperrors.Internal("create model dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+name+".*")
	if err != nil {
		return "", apperrors.Internal("create temp artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", apperrors.Internal("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", apperrors.Internal("write artifact: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", apperrors.Internal("publish artifact: %w", err)
	}
	return path, nil
}
