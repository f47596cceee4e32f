package predictor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synaptica-ai/automl/pkg/common/apperrors"
	"github.com/synaptica-ai/automl/pkg/common/models"
	"github.com/synaptica-ai/automl/pkg/dataset"
	"github.com/synaptica-ai/automl/pkg/dataset/datasettest"
	"github.com/synaptica-ai/automl/pkg/export"
	"github.com/synaptica-ai/automl/pkg/registry"
	"github.com/synaptica-ai/automl/pkg/session"
	"github.com/synaptica-ai/automl/pkg/training"
)

func TestPredictFromExportedBundle(t *testing.T) {
	ctx := context.Background()
	datasets := dataset.NewMemoryStore()
	require.NoError(t, datasets.Put(ctx, &dataset.Entry{ID: "ds", Table: datasettest.Regression(60, 3), UploadedAt: time.Now()}))
	sessions := session.NewMemoryStore()

	req := session.DefaultRequest(0.2, 42, 3)
	req.DatasetID = "ds"
	req.TargetColumn = "target"
	req.SelectedAlgorithms = []string{"LinearRegression"}
	sess, err := training.NewService(datasets, sessions, registry.New(), training.NewProgressBoard(nil), 1).Run(ctx, req)
	require.NoError(t, err)

	dir := t.TempDir()
	_, err = export.NewExporter(dir, sessions).Export(ctx, models.DownloadRequest{SessionID: sess.ID, Format: "native"})
	require.NoError(t, err)

	p := NewPredictor(dir)
	first, err := p.Predict(sess.ID, "LinearRegression", map[string]interface{}{"a": 4.0, "b": 1.0, "grp": "g2"})
	require.NoError(t, err)
	assert.InDelta(t, 3*4.0-2*1.0+2, first.Value.(float64), 1.5)
	assert.Len(t, p.cache, 1)

	second, err := p.Predict(sess.ID, "LinearRegression", map[string]interface{}{"a": 4.0, "b": 1.0, "grp": "g2"})
	require.NoError(t, err)
	assert.Equal(t, first.Value, second.Value)

	_, err = p.Predict(sess.ID, "Ridge", nil)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
}
