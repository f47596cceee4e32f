package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/synaptica-ai/automl/pkg/common/apperrors"
	"github.com/synaptica-ai/automl/pkg/common/models"
	"github.com/synaptica-ai/automl/pkg/serving"
	"github.com/synaptica-ai/automl/pkg/training"
)

// RunLog reads training run audit rows. training.Repository implements it.
type RunLog interface {
	Get(ctx context.Context, runID uuid.UUID) (*training.RunModel, error)
	List(ctx context.Context, limit int) ([]training.RunModel, error)
}

// PredictionLog reads prediction audit rows. serving.Repository implements it.
type PredictionLog interface {
	Recent(ctx context.Context, sessionID string, limit int) ([]serving.PredictionLog, error)
}

type Option func(*Handler)

func WithRunLog(runs RunLog) Option {
	return func(h *Handler) { h.runs = runs }
}

func WithPredictionLog(predictions PredictionLog) Option {
	return func(h *Handler) { h.predictions = predictions }
}

func (h *Handler) registerAudit(api *mux.Router) {
	api.HandleFunc("/runs", h.handleRuns).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}", h.handleRun).Methods(http.MethodGet)
	api.HandleFunc("/predictions", h.handlePredictions).Methods(http.MethodGet)
}

var errAuditDisabled = apperrors.NotFound("audit log is disabled")

func (h *Handler) handleRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeError(w, errAuditDisabled)
		return
	}
	runs, err := h.runs.List(r.Context(), limit(r))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]models.TrainingRun, 0, len(runs))
	for _, run := range runs {
		out = append(out, run.View())
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": out})
}

func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeError(w, errAuditDisabled)
		return
	}
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, apperrors.BadRequest("invalid run id: %w", err))
		return
	}
	run, err := h.runs.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run.View())
}

func (h *Handler) handlePredictions(w http.ResponseWriter, r *http.Request) {
	if h.predictions == nil {
		writeError(w, errAuditDisabled)
		return
	}
	logs, err := h.predictions.Recent(r.Context(), r.URL.Query().Get("session_id"), limit(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"predictions": logs})
}

func limit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return n
}
