package export

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synaptica-ai/automl/pkg/common/apperrors"
	"github.com/synaptica-ai/automl/pkg/common/models"
	"github.com/synaptica-ai/automl/pkg/dataset"
	"github.com/synaptica-ai/automl/pkg/dataset/datasettest"
	"github.com/synaptica-ai/automl/pkg/export/onnx"
	"github.com/synaptica-ai/automl/pkg/registry"
	"github.com/synaptica-ai/automl/pkg/session"
	"github.com/synaptica-ai/automl/pkg/training"
)

func trained(t *testing.T, table *dataset.Table, target string, algorithms ...string) (session.Store, *session.Session) {
	t.Helper()
	ctx := context.Background()
	datasets := dataset.NewMemoryStore()
	require.NoError(t, datasets.Put(ctx, &dataset.Entry{ID: "ds", FileName: "data.csv", Table: table, UploadedAt: time.Now()}))
	sessions := session.NewMemoryStore()

	svc := training.NewService(datasets, sessions, registry.New(), training.NewProgressBoard(nil), 1)
	req := session.DefaultRequest(0.2, 42, 3)
	req.DatasetID = "ds"
	req.TargetColumn = target
	req.SelectedAlgorithms = algorithms
	sess, err := svc.Run(ctx, req)
	require.NoError(t, err)
	return sessions, sess
}

func files(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestExportWithoutConverterFails(t *testing.T) {
	sessions, sess := trained(t, datasettest.Classification(90, 1), "label", "RandomForestClassifier")
	dir := filepath.Join(t.TempDir(), "models")

	_, err := NewExporter(dir, sessions).Export(context.Background(), models.DownloadRequest{
		SessionID: sess.ID,
		Format:    "onnx",
	})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindExternal))
	assert.ErrorIs(t, err, ErrNoConverter)
	assert.Empty(t, files(t, dir))
}

func TestExportFallsBackToNativeBundle(t *testing.T) {
	sessions, sess := trained(t, datasettest.Classification(90, 1), "label", "RandomForestClassifier")
	dir := t.TempDir()

	art, err := NewExporter(dir, sessions).Export(context.Background(), models.DownloadRequest{
		SessionID:     sess.ID,
		Format:        "onnx",
		AllowFallback: true,
	})
	require.NoError(t, err)
	assert.True(t, art.Fallback)
	assert.Equal(t, FormatNative, art.Format)
	assert.Equal(t, FormatONNX, art.Requested)
	assert.Equal(t, []string{sess.ID + "_RandomForestClassifier.gob"}, files(t, dir))

	b, err := ReadBundle(art.Path)
	require.NoError(t, err)
	assert.Equal(t, []string{"x1", "x2", "color"}, b.RawFeatures)
	assert.Equal(t, art.Metadata, b.Metadata)

	pred, err := b.Predict(map[string]interface{}{"x1": 6.0, "x2": -4.0})
	require.NoError(t, err)
	assert.Equal(t, []string{"color"}, pred.MissingInputs)
	assert.Contains(t, []interface{}{"setosa", "versicolor", "virginica"}, pred.Value)
	assert.Len(t, pred.Probabilities, 3)
}

func TestExportONNXEmbedsMetadata(t *testing.T) {
	sessions, sess := trained(t, datasettest.Classification(90, 1), "label", "LogisticRegression")
	dir := t.TempDir()

	art, err := NewExporter(dir, sessions).Export(context.Background(), models.DownloadRequest{SessionID: sess.ID})
	require.NoError(t, err)
	assert.Equal(t, FormatONNX, art.Format)
	assert.False(t, art.Fallback)

	data, err := os.ReadFile(art.Path)
	require.NoError(t, err)
	summary, err := onnx.Inspect(data)
	require.NoError(t, err)

	for _, key := range []string{"session_id", "model_name", "problem_type", "target_column", "training_date", "input_schema", "raw_feature_names", "label_mapping"} {
		assert.Contains(t, summary.Metadata, key)
	}
	assert.Equal(t, "LogisticRegression", summary.Metadata["model_name"])

	var mapping map[string]int
	require.NoError(t, json.Unmarshal([]byte(summary.Metadata["label_mapping"]), &mapping))
	assert.Equal(t, map[string]int{"setosa": 0, "versicolor": 1, "virginica": 2}, mapping)

	var raw []string
	require.NoError(t, json.Unmarshal([]byte(summary.Metadata["raw_feature_names"]), &raw))
	assert.Equal(t, []string{"x1", "x2", "color"}, raw)
	assert.Equal(t, onnx.String, summary.Inputs[2].Elem)
}

func TestExportRegressionHasNoLabelMapping(t *testing.T) {
	sessions, sess := trained(t, datasettest.Regression(60, 2), "target", "Ridge")

	art, err := NewExporter(t.TempDir(), sessions).Export(context.Background(), models.DownloadRequest{
		SessionID: sess.ID,
		Format:    "native",
	})
	require.NoError(t, err)
	assert.NotContains(t, art.Metadata, "label_mapping")

	b, err := ReadBundle(art.Path)
	require.NoError(t, err)
	pred, err := b.Predict(map[string]interface{}{"a": 1.0, "b": 0.0, "grp": "g0"})
	require.NoError(t, err)
	_, ok := pred.Value.(float64)
	assert.True(t, ok)
	assert.Nil(t, pred.Probabilities)
}

func TestExportRejectsBadRequests(t *testing.T) {
	sessions, sess := trained(t, datasettest.Regression(60, 2), "target", "Ridge")
	e := NewExporter(t.TempDir(), sessions)
	ctx := context.Background()

	_, err := e.Export(ctx, models.DownloadRequest{SessionID: sess.ID, Format: "pickle"})
	assert.True(t, apperrors.Is(err, apperrors.KindBadRequest))

	_, err = e.Export(ctx, models.DownloadRequest{SessionID: "missing"})
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))

	_, err = e.Export(ctx, models.DownloadRequest{SessionID: sess.ID, ModelName: "Lasso"})
	assert.ErrorIs(t, err, session.ErrModelNotFound)
}
