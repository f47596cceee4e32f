// Package api exposes the AutoML workflow over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/synaptica-ai/automl/pkg/common/apperrors"
	"github.com/synaptica-ai/automl/pkg/common/logger"
	"github.com/synaptica-ai/automl/pkg/common/models"
	"github.com/synaptica-ai/automl/pkg/dataset"
	"github.com/synaptica-ai/automl/pkg/export"
	"github.com/synaptica-ai/automl/pkg/observability/metrics"
	"github.com/synaptica-ai/automl/pkg/registry"
	"github.com/synaptica-ai/automl/pkg/serving"
	"github.com/synaptica-ai/automl/pkg/session"
	"github.com/synaptica-ai/automl/pkg/training"
	"github.com/synaptica-ai/automl/pkg/validation"
)

// Defaults seed every training request before the body is decoded over them.
type Defaults struct {
	TestSize    float64
	RandomState int64
	CVFolds     int
}

type Handler struct {
	datasets  dataset.Store
	sessions  session.Store
	registry  *registry.Registry
	training  *training.Service
	predictor *serving.Predictor
	exporter  *export.Exporter
	defaults  Defaults

	runs        RunLog
	predictions PredictionLog
}

func NewHandler(datasets dataset.Store, sessions session.Store, reg *registry.Registry, svc *training.Service,
	predictor *serving.Predictor, exporter *export.Exporter, defaults Defaults, opts ...Option) *Handler {
	h := &Handler{
		datasets:  datasets,
		sessions:  sessions,
		registry:  reg,
		training:  svc,
		predictor: predictor,
		exporter:  exporter,
		defaults:  defaults,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Register(router *mux.Router) {
	router.HandleFunc("/health", healthCheck).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/upload", h.handleUpload).Methods(http.MethodPost)
	api.HandleFunc("/datasets", h.handleDatasets).Methods(http.MethodGet)
	api.HandleFunc("/columns/{id}", h.handleColumns).Methods(http.MethodGet)
	api.HandleFunc("/dataset/{id}/preview", h.handlePreview).Methods(http.MethodGet)
	api.HandleFunc("/validate/{id}", h.handleValidate).Methods(http.MethodPost)
	api.HandleFunc("/clean/{id}", h.handleClean).Methods(http.MethodPost)
	api.HandleFunc("/detect/{id}", h.handleDetect).Methods(http.MethodPost)
	api.HandleFunc("/algorithms/{type}", h.handleAlgorithms).Methods(http.MethodGet)
	api.HandleFunc("/train", h.handleTrain).Methods(http.MethodPost)
	api.HandleFunc("/train/{id}/progress", h.handleProgress).Methods(http.MethodGet)
	api.HandleFunc("/session/{id}", h.handleSession).Methods(http.MethodGet)
	api.HandleFunc("/results/{id}", h.handleResults).Methods(http.MethodGet)
	api.HandleFunc("/predict", h.handlePredict).Methods(http.MethodPost)
	api.HandleFunc("/download-model", h.handleDownload).Methods(http.MethodPost)
	h.registerAudit(api)
}

// Router returns the full handler chain: routes wrapped in recovery,
// request logging, CORS and the body size limit.
func (h *Handler) Router(maxBody int64) http.Handler {
	router := mux.NewRouter()
	h.Register(router)
	return Recovery(Logging(CORS(BodyLimit(maxBody)(router))))
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, apperrors.BadRequest("multipart field 'file' is required: %w", err))
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".csv") {
		writeError(w, apperrors.BadRequest("only CSV files are supported, got %q", header.Filename))
		return
	}
	table, err := dataset.ReadCSV(file)
	if err != nil {
		writeError(w, err)
		return
	}

	entry := &dataset.Entry{
		ID:         uuid.New().String(),
		FileName:   header.Filename,
		Table:      table,
		UploadedAt: time.Now().UTC(),
	}
	if err := h.datasets.Put(r.Context(), entry); err != nil {
		writeError(w, err)
		return
	}
	logger.WithField("file_id", entry.ID).WithField("rows", table.Rows()).Info("Dataset uploaded")

	writeJSON(w, http.StatusOK, models.UploadResponse{
		Filename: header.Filename,
		FileID:   entry.ID,
		Rows:     table.Rows(),
		Columns:  table.Width(),
		Message:  "Dataset uploaded successfully",
	})
}

func (h *Handler) handleDatasets(w http.ResponseWriter, r *http.Request) {
	entries, err := h.datasets.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]models.DatasetSummary, 0, len(entries))
	for _, e := range entries {
		out = append(out, models.DatasetSummary{
			FileID:     e.ID,
			Filename:   e.FileName,
			Rows:       e.Table.Rows(),
			Columns:    e.Table.Width(),
			UploadedAt: e.UploadedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"datasets": out})
}

func (h *Handler) handleColumns(w http.ResponseWriter, r *http.Request) {
	entry, err := h.dataset(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dataset.Describe(entry.ID, entry.Table))
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	entry, err := h.dataset(r)
	if err != nil {
		writeError(w, err)
		return
	}
	rows := 100
	if raw := r.URL.Query().Get("rows"); raw != "" {
		if rows, err = strconv.Atoi(raw); err != nil || rows < 0 {
			writeError(w, apperrors.BadRequest("rows must be a non-negative integer"))
			return
		}
	}
	writeJSON(w, http.StatusOK, dataset.MakePreview(entry.ID, entry.Table, rows))
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	entry, err := h.dataset(r)
	if err != nil {
		writeError(w, err)
		return
	}
	report, err := validation.Validate(entry.Table, r.URL.Query().Get("target_column"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"file_id":           entry.ID,
		"is_valid":          report.IsValid,
		"validation_report": report,
		"warnings":          report.Warnings,
	})
}

// handleClean applies the dataset's cleaning plan and replaces the stored
// table with the cleaned one.
func (h *Handler) handleClean(w http.ResponseWriter, r *http.Request) {
	entry, err := h.dataset(r)
	if err != nil {
		writeError(w, err)
		return
	}
	report, err := validation.Validate(entry.Table, r.URL.Query().Get("target_column"))
	if err != nil {
		writeError(w, err)
		return
	}
	cleaned, summary := validation.ApplyCleaning(entry.Table, report.CleaningPlan)
	if report.CleaningPlan.ChangesRequired {
		next := *entry
		next.Table = cleaned
		if err := h.datasets.Put(r.Context(), &next); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"file_id":          entry.ID,
		"changes_required": report.CleaningPlan.ChangesRequired,
		"cleaning_plan":    report.CleaningPlan,
		"summary":          summary,
	})
}

func (h *Handler) handleDetect(w http.ResponseWriter, r *http.Request) {
	entry, err := h.dataset(r)
	if err != nil {
		writeError(w, err)
		return
	}
	target := r.URL.Query().Get("target_column")
	pt, err := dataset.DetectProblemType(entry.Table, target)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.DetectResponse{FileID: entry.ID, TargetColumn: target, ProblemType: string(pt)})
}

func (h *Handler) handleAlgorithms(w http.ResponseWriter, r *http.Request) {
	pt, err := dataset.ParseProblemType(mux.Vars(r)["type"])
	if err != nil {
		writeError(w, err)
		return
	}
	algorithms := make(map[string]interface{})
	for _, d := range h.registry.Describe(pt) {
		algorithms[d.Name] = map[string]interface{}{
			"description": d.Description,
			"parameters":  d.Parameters,
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"problem_type": pt,
		"algorithms":   algorithms,
		"order":        h.registry.Names(pt),
		"count":        len(algorithms),
	})
}

func (h *Handler) handleTrain(w http.ResponseWriter, r *http.Request) {
	req := session.DefaultRequest(h.defaults.TestSize, h.defaults.RandomState, h.defaults.CVFolds)
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	id, err := h.training.Start(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, models.TrainingStarted{
		SessionID: id,
		Status:    training.StatusStarted,
		Message:   "Training started in background",
	})
}

func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	p, err := h.training.Progress(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Summary())
}

func (h *Handler) handleResults(w http.ResponseWriter, r *http.Request) {
	sess, err := h.training.Results(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Summary())
}

func (h *Handler) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req models.PredictionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	resp, err := h.predictor.Predict(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDownload exports the model and streams the artifact. X-Model-Format
// names the format actually written and X-Export-Fallback reports whether a
// native bundle replaced a failed ONNX export.
func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	var req models.DownloadRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	art, err := h.exporter.Export(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	f, err := os.Open(art.Path)
	if err != nil {
		writeError(w, apperrors.Internal("open artifact: %w", err))
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", art.FileName))
	w.Header().Set("Content-Length", strconv.FormatInt(art.Size, 10))
	w.Header().Set("X-Model-Format", art.Format)
	w.Header().Set("X-Export-Fallback", strconv.FormatBool(art.Fallback))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		logger.ForSession(art.SessionID).WithError(err).Warn("failed to stream artifact")
	}
}

func (h *Handler) dataset(r *http.Request) (*dataset.Entry, error) {
	return h.datasets.Get(r.Context(), mux.Vars(r)["id"])
}

func decode(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperrors.BadRequest("request body exceeds %d bytes", tooLarge.Limit)
		}
		return apperrors.BadRequest("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Log.WithError(err).Error("failed to encode response")
	}
}

// writeError maps the error kind to a status. Internal failures are logged
// and reported without detail.
func writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatus(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		logger.Log.WithError(err).Error("request failed")
		detail = "internal error"
	}
	writeJSON(w, status, map[string]string{"detail": detail})
}
