package training

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/redis/go-redis/v9"

	"github.com/synaptica-ai/automl/pkg/common/apperrors"
	"github.com/synaptica-ai/automl/pkg/common/kafka"
	"github.com/synaptica-ai/automl/pkg/common/models"
)

// EventSink receives every progress event together with the snapshot it
// produced.
type EventSink interface {
	Publish(ctx context.Context, snapshot Progress, event Event) error
}

// MultiSink fans an event out to every sink and reports all failures.
type MultiSink []EventSink

func (m MultiSink) Publish(ctx context.Context, snapshot Progress, event Event) error {
	var result *multierror.Error
	for _, s := range m {
		if err := s.Publish(ctx, snapshot, event); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

const eventSource = "automl-training"

// KafkaEventSink publishes lifecycle events keyed by session id.
type KafkaEventSink struct {
	producer *kafka.Producer
}

func NewKafkaEventSink(producer *kafka.Producer) *KafkaEventSink {
	return &KafkaEventSink{producer: producer}
}

func (k *KafkaEventSink) Publish(ctx context.Context, snapshot Progress, event Event) error {
	data := map[string]interface{}{
		"session_id":       event.SessionID,
		"status":           string(snapshot.Status),
		"completed_models": snapshot.CompletedModels,
		"total_models":     snapshot.TotalModels,
	}
	if event.Model != "" {
		data["model"] = event.Model
	}
	if event.Error != "" {
		data["error"] = event.Error
	}
	return k.producer.Publish(ctx, event.SessionID, models.Event{
		ID:        event.ID,
		Type:      event.Type,
		Source:    eventSource,
		Data:      data,
		Timestamp: event.Timestamp,
	})
}

// RedisProgressSink mirrors snapshots into Redis so other replicas can answer
// progress polls. Keys are prefix:<session id> and expire after ttl.
type RedisProgressSink struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisProgressSink(client *redis.Client, prefix string, ttl time.Duration) *RedisProgressSink {
	return &RedisProgressSink{client: client, prefix: strings.TrimSuffix(prefix, ":"), ttl: ttl}
}

func (r *RedisProgressSink) key(id string) string {
	if r.prefix == "" {
		return id
	}
	return r.prefix + ":" + id
}

func (r *RedisProgressSink) Publish(ctx context.Context, snapshot Progress, _ Event) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(snapshot.SessionID), payload, r.ttl).Err()
}

// Load reads a mirrored snapshot.
func (r *RedisProgressSink) Load(ctx context.Context, id string) (Progress, error) {
	payload, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Progress{}, apperrors.NotFound("training session %s: %w", id, ErrProgressNotFound)
	}
	if err != nil {
		return Progress{}, apperrors.External("read progress for %s: %w", id, err)
	}
	var p Progress
	if err := json.Unmarshal(payload, &p); err != nil {
		return Progress{}, fmt.Errorf("decode progress for %s: %w", id, err)
	}
	return p, nil
}
