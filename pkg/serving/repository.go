package serving

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/synaptica-ai/automl/pkg/common/models"
)

// PredictionLog is the persistence model for serving analytics.
type PredictionLog struct {
	ID            uuid.UUID         `gorm:"primaryKey;column:id"`
	SessionID     string            `gorm:"column:session_id;index"`
	ModelName     string            `gorm:"column:model_name"`
	Request       datatypes.JSONMap `gorm:"column:request"`
	Prediction    datatypes.JSONMap `gorm:"column:prediction"`
	MissingInputs datatypes.JSON    `gorm:"column:missing_inputs"`
	LatencyMs     float64           `gorm:"column:latency_ms"`
	CreatedAt     time.Time         `gorm:"column:created_at"`
}

// TableName overrides gorm naming.
func (PredictionLog) TableName() string {
	return "prediction_logs"
}

// Repository handles prediction logs queries.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&PredictionLog{})
}

func (r *Repository) RecordPrediction(ctx context.Context, req models.PredictionRequest, resp models.PredictionResponse) error {
	prediction := map[string]interface{}{"value": resp.Prediction}
	if resp.Probabilities != nil {
		prediction["probabilities"] = resp.Probabilities
	}
	missing, err := datatypes.NewJSONType(resp.MissingInputs).Value()
	if err != nil {
		return err
	}
	log := PredictionLog{
		ID:            uuid.New(),
		SessionID:     req.SessionID,
		ModelName:     resp.ModelName,
		Request:       datatypes.JSONMap(req.Inputs),
		Prediction:    datatypes.JSONMap(prediction),
		MissingInputs: datatypes.JSON(missing.([]byte)),
		LatencyMs:     float64(resp.Latency.Microseconds()) / 1000.0,
		CreatedAt:     time.Now().UTC(),
	}
	return r.db.WithContext(ctx).Create(&log).Error
}

// Recent returns the most recent prediction logs of a session, or of every
// session when sessionID is empty, up to limit.
func (r *Repository) Recent(ctx context.Context, sessionID string, limit int) ([]PredictionLog, error) {
	if limit <= 0 {
		limit = 50
	}
	query := r.db.WithContext(ctx)
	if sessionID != "" {
		query = query.Where("session_id = ?", sessionID)
	}
	var logs []PredictionLog
	err := query.
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}
