package training

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/synaptica-ai/automl/pkg/common/apperrors"
	"github.com/synaptica-ai/automl/pkg/common/logger"
)

var ErrProgressNotFound = errors.New("training progress not found")

type Status string

const (
	StatusTraining  Status = "training"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Event types published for every session.
const (
	EventStarted        = "training.started"
	EventModelCompleted = "training.model_completed"
	EventModelFailed    = "training.model_failed"
	EventCompleted      = "training.completed"
	EventFailed         = "training.failed"
)

type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	Model     string    `json:"model,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Progress is a snapshot of one session's training run. Snapshots are never
// mutated after they are stored.
type Progress struct {
	SessionID       string    `json:"session_id"`
	Status          Status    `json:"status"`
	Models          []string  `json:"models"`
	CompletedModels []string  `json:"completed_models"`
	FailedModels    []string  `json:"failed_models,omitempty"`
	TotalModels     int       `json:"total_models"`
	CurrentModel    string    `json:"current_model,omitempty"`
	Error           string    `json:"error,omitempty"`
	Events          []Event   `json:"events,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (p Progress) Done() bool {
	return p.Status == StatusCompleted || p.Status == StatusFailed
}

func (p Progress) clone() Progress {
	p.Models = append([]string(nil), p.Models...)
	p.CompletedModels = append([]string(nil), p.CompletedModels...)
	p.FailedModels = append([]string(nil), p.FailedModels...)
	p.Events = append([]Event(nil), p.Events...)
	return p
}

// following returns the selected model after name, or "" when name is last.
func (p Progress) following(name string) string {
	for i, n := range p.Models {
		if n == name && i+1 < len(p.Models) {
			return p.Models[i+1]
		}
	}
	return ""
}

// ProgressBoard tracks every session's progress for the life of the process.
// Each update replaces the stored snapshot with a modified copy, so readers
// never see a partially applied update.
type ProgressBoard struct {
	entries cmap.ConcurrentMap[string, Progress]
	sink    EventSink
}

func NewProgressBoard(sink EventSink) *ProgressBoard {
	return &ProgressBoard{entries: cmap.New[Progress](), sink: sink}
}

func (b *ProgressBoard) Get(id string) (Progress, error) {
	p, ok := b.entries.Get(id)
	if !ok {
		return Progress{}, apperrors.NotFound("training session %s: %w", id, ErrProgressNotFound)
	}
	return p.clone(), nil
}

// Register records a new session as training. CurrentModel stays empty
// until the run takes a worker slot.
func (b *ProgressBoard) Register(id string, models []string) {
	b.entries.Set(id, Progress{
		SessionID:   id,
		Status:      StatusTraining,
		Models:      append([]string(nil), models...),
		TotalModels: len(models),
		UpdatedAt:   time.Now().UTC(),
	})
}

func (b *ProgressBoard) Start(id string) {
	b.update(id, EventStarted, "", "", func(p *Progress) {
		p.Status = StatusTraining
		if len(p.Models) > 0 {
			p.CurrentModel = p.Models[0]
		}
	})
}

func (b *ProgressBoard) ModelCompleted(id, model string) {
	b.update(id, EventModelCompleted, model, "", func(p *Progress) {
		p.CompletedModels = append(p.CompletedModels, model)
		p.CurrentModel = p.following(model)
	})
}

func (b *ProgressBoard) ModelFailed(id, model string, err error) {
	b.update(id, EventModelFailed, model, err.Error(), func(p *Progress) {
		p.FailedModels = append(p.FailedModels, model)
	})
}

func (b *ProgressBoard) Complete(id string) {
	b.update(id, EventCompleted, "", "", func(p *Progress) {
		p.Status = StatusCompleted
		p.CurrentModel = ""
	})
}

func (b *ProgressBoard) Fail(id string, err error) {
	b.update(id, EventFailed, "", err.Error(), func(p *Progress) {
		p.Status = StatusFailed
		p.CurrentModel = ""
		p.Error = err.Error()
	})
}

func (b *ProgressBoard) update(id, eventType, model, errMsg string, apply func(*Progress)) {
	event := Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		SessionID: id,
		Model:     model,
		Error:     errMsg,
		Timestamp: time.Now().UTC(),
	}

	var snapshot Progress
	b.entries.Upsert(id, Progress{}, func(exist bool, current, _ Progress) Progress {
		next := Progress{SessionID: id}
		if exist {
			next = current.clone()
		}
		apply(&next)
		next.Events = append(next.Events, event)
		next.UpdatedAt = event.Timestamp
		snapshot = next
		return next
	})

	if b.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.sink.Publish(ctx, snapshot.clone(), event); err != nil {
		logger.ForSession(id).WithError(err).WithField("event_type", eventType).Warn("Failed to publish training event")
	}
}
