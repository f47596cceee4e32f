package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/synaptica-ai/automl/pkg/common/apperrors"
	"github.com/synaptica-ai/automl/pkg/common/models"
	"github.com/synaptica-ai/automl/pkg/dataset"
	"github.com/synaptica-ai/automl/pkg/export"
	"github.com/synaptica-ai/automl/pkg/registry"
	"github.com/synaptica-ai/automl/pkg/serving"
	"github.com/synaptica-ai/automl/pkg/session"
	"github.com/synaptica-ai/automl/pkg/training"
)

type harness struct {
	server  *httptest.Server
	service *training.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	datasets := dataset.NewMemoryStore()
	sessions := session.NewMemoryStore()
	reg := registry.New()
	svc := training.NewService(datasets, sessions, reg, training.NewProgressBoard(nil), 1)
	h := NewHandler(datasets, sessions, reg, svc,
		serving.NewPredictor(sessions, serving.WithDatasets(datasets)),
		export.NewExporter(t.TempDir(), sessions, export.WithDatasets(datasets)),
		Defaults{TestSize: 0.2, RandomState: 42, CVFolds: 3})
	srv := httptest.NewServer(h.Router(1 << 20))
	t.Cleanup(srv.Close)
	return &harness{server: srv, service: svc}
}

func irisCSV() string {
	var b strings.Builder
	b.WriteString("x1,x2,color,label\n")
	classes := []string{"setosa", "versicolor", "virginica"}
	colors := []string{"red", "green", "blue"}
	for i := 0; i < 60; i++ {
		c := i % 3
		fmt.Fprintf(&b, "%.2f,%.2f,%s,%s\n", float64(c)*3+float64(i%5)*0.1, float64(-c)*2-float64(i%4)*0.1, colors[(c+i%2)%3], classes[c])
	}
	return b.String()
}

func (h *harness) upload(t *testing.T, name, content string) models.UploadResponse {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(h.server.URL+"/api/upload", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out models.UploadResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (h *harness) call(t *testing.T, method, path string, body interface{}, out interface{}) int {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, h.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestWorkflow(t *testing.T) {
	h := newHarness(t)
	up := h.upload(t, "iris.csv", irisCSV())
	assert.Equal(t, 60, up.Rows)
	assert.Equal(t, 4, up.Columns)

	var detect models.DetectResponse
	require.Equal(t, http.StatusOK, h.call(t, http.MethodPost, "/api/detect/"+up.FileID+"?target_column=label", nil, &detect))
	assert.Equal(t, "classification", detect.ProblemType)

	var started models.TrainingStarted
	status := h.call(t, http.MethodPost, "/api/train", map[string]interface{}{
		"file_id":             up.FileID,
		"target_column":       "label",
		"selected_algorithms": []string{"LogisticRegression", "DecisionTreeClassifier"},
	}, &started)
	require.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, "started", started.Status)
	h.service.Wait()

	var progress training.Progress
	require.Equal(t, http.StatusOK, h.call(t, http.MethodGet, "/api/train/"+started.SessionID+"/progress", nil, &progress))
	assert.Equal(t, training.StatusCompleted, progress.Status)
	assert.Equal(t, []string{"LogisticRegression", "DecisionTreeClassifier"}, progress.CompletedModels)

	var summary map[string]interface{}
	require.Equal(t, http.StatusOK, h.call(t, http.MethodGet, "/api/results/"+started.SessionID, nil, &summary))
	assert.Equal(t, "label", summary["target_column"])
	assert.Len(t, summary["input_schema"], 3)

	var pred models.PredictionResponse
	require.Equal(t, http.StatusOK, h.call(t, http.MethodPost, "/api/predict", map[string]interface{}{
		"session_id": started.SessionID,
		"model_name": "LogisticRegression",
		"inputs":     map[string]interface{}{"x1": 6.2, "x2": -4.1},
	}, &pred))
	assert.Equal(t, []string{"color"}, pred.MissingInputs)
	assert.NotEmpty(t, pred.Probabilities)

	resp, err := http.Post(h.server.URL+"/api/download-model", "application/json", strings.NewReader(
		fmt.Sprintf(`{"session_id":%q,"model_name":"LogisticRegression","format":"onnx"}`, started.SessionID)))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "onnx", resp.Header.Get("X-Model-Format"))
	assert.Equal(t, "false", resp.Header.Get("X-Export-Fallback"))

	var failed map[string]string
	status = h.call(t, http.MethodPost, "/api/download-model", map[string]interface{}{
		"session_id": started.SessionID,
		"model_name": "DecisionTreeClassifier",
		"format":     "onnx",
	}, &failed)
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Contains(t, failed["detail"], "no ONNX converter")
}

func TestErrorsMapToStatus(t *testing.T) {
	h := newHarness(t)

	var body map[string]string
	assert.Equal(t, http.StatusNotFound, h.call(t, http.MethodGet, "/api/session/missing", nil, &body))
	assert.Contains(t, body["detail"], "session not found")

	assert.Equal(t, http.StatusNotFound, h.call(t, http.MethodGet, "/api/columns/missing", nil, nil))
	assert.Equal(t, http.StatusBadRequest, h.call(t, http.MethodGet, "/api/algorithms/ranking", nil, nil))
	assert.Equal(t, http.StatusBadRequest, h.call(t, http.MethodPost, "/api/train", map[string]interface{}{
		"file_id": "x", "selected_algorithms": []string{}}, nil))

	up := h.upload(t, "iris.csv", irisCSV())
	assert.Equal(t, http.StatusBadRequest, h.call(t, http.MethodPost, "/api/train", map[string]interface{}{
		"file_id":             up.FileID,
		"target_column":       "nope",
		"problem_type":        "classification",
		"selected_algorithms": []string{"LogisticRegression"},
	}, nil))
}

func TestDatasetEndpoints(t *testing.T) {
	h := newHarness(t)
	up := h.upload(t, "iris.csv", irisCSV())

	var list struct {
		Datasets []models.DatasetSummary `json:"datasets"`
	}
	require.Equal(t, http.StatusOK, h.call(t, http.MethodGet, "/api/datasets", nil, &list))
	require.Len(t, list.Datasets, 1)
	assert.Equal(t, "iris.csv", list.Datasets[0].Filename)

	var preview dataset.Preview
	require.Equal(t, http.StatusOK, h.call(t, http.MethodGet, "/api/dataset/"+up.FileID+"/preview?rows=5", nil, &preview))
	assert.Equal(t, 5, preview.PreviewRows)
	assert.Equal(t, 60, preview.TotalRows)

	var algs map[string]interface{}
	require.Equal(t, http.StatusOK, h.call(t, http.MethodGet, "/api/algorithms/clustering", nil, &algs))
	assert.EqualValues(t, 5, algs["count"])

	var validated map[string]interface{}
	require.Equal(t, http.StatusOK, h.call(t, http.MethodPost, "/api/validate/"+up.FileID+"?target_column=label", nil, &validated))
	assert.Equal(t, true, validated["is_valid"])

	var health map[string]string
	require.Equal(t, http.StatusOK, h.call(t, http.MethodGet, "/health", nil, &health))
	assert.Equal(t, "healthy", health["status"])
}

type fakeRuns struct{ runs []training.RunModel }

func (f *fakeRuns) Get(_ context.Context, id uuid.UUID) (*training.RunModel, error) {
	for i := range f.runs {
		if f.runs[i].ID == id {
			return &f.runs[i], nil
		}
	}
	return nil, apperrors.NotFound("training run %s: %w", id, training.ErrRunNotFound)
}

func (f *fakeRuns) List(_ context.Context, limit int) ([]training.RunModel, error) {
	return f.runs, nil
}

func TestAuditEndpoints(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, http.StatusNotFound, h.call(t, http.MethodGet, "/api/runs", nil, nil))

	run := training.RunModel{
		ID:         uuid.New(),
		DatasetID:  "ds",
		Algorithms: datatypes.JSON(`["Ridge","Lasso"]`),
		Status:     string(training.StatusCompleted),
		BestModel:  "Ridge",
	}
	sessions := session.NewMemoryStore()
	handler := NewHandler(dataset.NewMemoryStore(), sessions, registry.New(), nil, nil, nil, Defaults{},
		WithRunLog(&fakeRuns{runs: []training.RunModel{run}}))
	srv := httptest.NewServer(handler.Router(0))
	defer srv.Close()
	h.server = srv

	var list struct {
		Runs []models.TrainingRun `json:"runs"`
	}
	require.Equal(t, http.StatusOK, h.call(t, http.MethodGet, "/api/runs?limit=5", nil, &list))
	require.Len(t, list.Runs, 1)
	assert.Equal(t, []string{"Ridge", "Lasso"}, list.Runs[0].Algorithms)

	assert.Equal(t, http.StatusOK, h.call(t, http.MethodGet, "/api/runs/"+run.ID.String(), nil, nil))
	assert.Equal(t, http.StatusNotFound, h.call(t, http.MethodGet, "/api/runs/"+uuid.New().String(), nil, nil))
	assert.Equal(t, http.StatusBadRequest, h.call(t, http.MethodGet, "/api/runs/not-a-uuid", nil, nil))
}
