package training

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/synaptica-ai/automl/pkg/common/models"
)

// RunModel is the audit row of one training session. Rows are written for
// observers only; sessions are never rebuilt from them.
type RunModel struct {
	ID           uuid.UUID         `gorm:"type:uuid;primaryKey;column:id"`
	DatasetID    string            `gorm:"column:dataset_id;index"`
	ProblemType  string            `gorm:"column:problem_type"`
	TargetColumn string            `gorm:"column:target_column"`
	Algorithms   datatypes.JSON    `gorm:"column:algorithms"`
	Config       datatypes.JSONMap `gorm:"column:config"`
	Status       string            `gorm:"column:status"`
	BestModel    string            `gorm:"column:best_model"`
	Metrics      datatypes.JSONMap `gorm:"column:metrics"`
	ErrorMessage string            `gorm:"column:error_message"`
	CreatedAt    time.Time         `gorm:"column:created_at"`
	UpdatedAt    time.Time         `gorm:"column:updated_at"`
	StartedAt    *time.Time        `gorm:"column:started_at"`
	CompletedAt  *time.Time        `gorm:"column:completed_at"`
}

func (RunModel) TableName() string {
	return "training_runs"
}

// View converts the row to its API shape.
func (r RunModel) View() models.TrainingRun {
	view := models.TrainingRun{
		ID:           r.ID,
		DatasetID:    r.DatasetID,
		ProblemType:  r.ProblemType,
		TargetColumn: r.TargetColumn,
		Status:       r.Status,
		BestModel:    r.BestModel,
		Metrics:      r.Metrics,
		ErrorMessage: r.ErrorMessage,
		CreatedAt:    r.CreatedAt,
		StartedAt:    r.StartedAt,
		CompletedAt:  r.CompletedAt,
	}
	_ = json.Unmarshal(r.Algorithms, &view.Algorithms)
	return view
}
