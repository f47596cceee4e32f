package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/synaptica-ai/automl/pkg/common/config"
	"github.com/synaptica-ai/automl/pkg/common/logger"
	"github.com/synaptica-ai/automl/pkg/common/models"
)

// Producer writes training events to one topic.
type Producer struct {
	writer *kafka.Writer
}

func NewProducer(cfg *config.Config, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.KafkaBrokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchSize:              1,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           cfg.KafkaWriteTimeout,
		AllowAutoTopicCreation: true,
	}

	return &Producer{writer: writer}
}

// Publish writes event under key. Events sharing a key, such as every event
// of one training session, land on one partition and keep their order.
func (p *Producer) Publish(ctx context.Context, key string, event models.Event) error {
	msg, err := newMessage(key, event)
	if err != nil {
		return err
	}

	log := logger.WithFields(map[string]interface{}{
		"key":        string(msg.Key),
		"event_type": event.Type,
		"topic":      p.writer.Topic,
	})
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		log.WithError(err).Error("Failed to publish event")
		return err
	}
	log.Debug("Event published")
	return nil
}

// newMessage stamps missing ids and timestamps and encodes the envelope.
func newMessage(key string, event models.Event) (kafka.Message, error) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if key == "" {
		key = event.ID
	}

	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal event %s: %w", event.Type, err)
	}

	return kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
			{Key: "source", Value: []byte(event.Source)},
		},
	}, nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
