package models

import (
	"time"

	"github.com/google/uuid"
)

// Event Bus models
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"` // training.started, training.model_completed, training.completed, training.failed
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}

// Upload
type UploadResponse struct {
	Filename string `json:"filename"`
	FileID   string `json:"file_id"`
	Rows     int    `json:"rows"`
	Columns  int    `json:"columns"`
	Message  string `json:"message"`
}

type DatasetSummary struct {
	FileID     string    `json:"file_id"`
	Filename   string    `json:"filename"`
	Rows       int       `json:"rows"`
	Columns    int       `json:"columns"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type DetectResponse struct {
	FileID       string `json:"file_id"`
	TargetColumn string `json:"target_column,omitempty"`
	ProblemType  string `json:"problem_type"`
}

// Model Training
type TrainingStarted struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

type TrainingProgress struct {
	SessionID       string    `json:"session_id"`
	Status          string    `json:"status"`
	CompletedModels []string  `json:"completed_models"`
	TotalModels     int       `json:"total_models"`
	CurrentModel    string    `json:"current_model,omitempty"`
	Error           string    `json:"error,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TrainingRun is the audit view of a finished or failed run.
type TrainingRun struct {
	ID           uuid.UUID              `json:"id"`
	DatasetID    string                 `json:"file_id"`
	ProblemType  string                 `json:"problem_type"`
	TargetColumn string                 `json:"target_column,omitempty"`
	Algorithms   []string               `json:"algorithms"`
	Status       string                 `json:"status"`
	BestModel    string                 `json:"best_model,omitempty"`
	Metrics      map[string]interface{} `json:"metrics,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	StartedAt    *time.Time             `json:"started_at,omitempty"`
	CompletedAt  *time.Time             `json:"completed_at,omitempty"`
}

// Model Serving
type PredictionRequest struct {
	SessionID string                 `json:"session_id"`
	ModelName string                 `json:"model_name,omitempty"`
	Inputs    map[string]interface{} `json:"inputs"`
}

type PredictionResponse struct {
	SessionID     string             `json:"session_id"`
	ModelName     string             `json:"model_name"`
	Prediction    interface{}        `json:"prediction"`
	Probabilities map[string]float64 `json:"probabilities,omitempty"`
	MissingInputs []string           `json:"missing_inputs"`
	Latency       time.Duration      `json:"latency"`
}

// Export
type DownloadRequest struct {
	SessionID     string `json:"session_id"`
	ModelName     string `json:"model_name"`
	Format        string `json:"format"`
	AllowFallback bool   `json:"allow_fallback"`
}
