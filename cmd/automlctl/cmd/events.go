package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/synaptica-ai/automl/pkg/common/kafka"
	"github.com/synaptica-ai/automl/pkg/common/logger"
	"github.com/synaptica-ai/automl/pkg/common/models"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "inspect training events",
}

var tailOpts struct {
	topic string
	group string
}

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "log training events from Kafka until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		consumer := kafka.NewConsumer(cfg, tailOpts.topic, tailOpts.group)
		defer consumer.Close()

		logger.Log.WithField("topic", tailOpts.topic).Info("Tailing training events")
		err := consumer.Consume(ctx, func(_ context.Context, event models.Event) error {
			logger.Log.WithFields(logrus.Fields{
				"type":       event.Type,
				"session_id": event.Data["session_id"],
				"status":     event.Data["status"],
				"model":      event.Data["model"],
				"error":      event.Data["error"],
			}).Info("Training event")
			return nil
		})
		if ctx.Err() != nil {
			return nil
		}
		return err
	},
}

func init() {
	flags := tailCmd.Flags()
	flags.StringVar(&tailOpts.topic, "topic", cfg.KafkaTrainingTopic, "Kafka topic of training events")
	flags.StringVar(&tailOpts.group, "group", "", "consumer group; defaults to KAFKA_GROUP_ID")
	eventsCmd.AddCommand(tailCmd)
}
