package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/synaptica-ai/automl/pkg/api"
	"github.com/synaptica-ai/automl/pkg/common/config"
	"github.com/synaptica-ai/automl/pkg/common/database"
	"github.com/synaptica-ai/automl/pkg/common/kafka"
	"github.com/synaptica-ai/automl/pkg/common/logger"
	"github.com/synaptica-ai/automl/pkg/dataset"
	"github.com/synaptica-ai/automl/pkg/export"
	"github.com/synaptica-ai/automl/pkg/registry"
	"github.com/synaptica-ai/automl/pkg/serving"
	"github.com/synaptica-ai/automl/pkg/session"
	"github.com/synaptica-ai/automl/pkg/training"
)

func main() {
	logger.Init()
	cfg := config.Load()

	var regOpts []registry.Option
	if cfg.RegistryDefaultsFile != "" {
		opt, err := registry.LoadDefaults(cfg.RegistryDefaultsFile)
		if err != nil {
			logger.Log.WithError(err).Fatal("Failed to load registry defaults")
		}
		regOpts = append(regOpts, opt)
	}
	reg := registry.New(regOpts...)

	datasets := dataset.NewMemoryStore()
	sessions := session.NewMemoryStore()

	var (
		sinks       training.MultiSink
		trainOpts   []training.ServiceOption
		servingOpts = []serving.Option{serving.WithDatasets(datasets)}
		apiOpts     []api.Option
		closers     []func() error
	)

	if cfg.KafkaEnabled {
		producer := kafka.NewProducer(cfg, cfg.KafkaTrainingTopic)
		sinks = append(sinks, training.NewKafkaEventSink(producer))
		closers = append(closers, producer.Close)
	}
	if cfg.RedisEnabled {
		client, err := database.ProgressClient(context.Background(), cfg)
		if err != nil {
			logger.Log.WithError(err).Warn("Redis unavailable, training progress stays local")
		} else {
			mirror := training.NewRedisProgressSink(client, cfg.ProgressKeyPrefix, cfg.ProgressTTL)
			sinks = append(sinks, mirror)
			trainOpts = append(trainOpts, training.WithRemoteProgress(mirror))
			closers = append(closers, database.CloseProgressClient)
		}
	}
	if cfg.AuditEnabled {
		db, err := database.GetPostgres(cfg)
		if err != nil {
			logger.Log.WithError(err).Fatal("Failed to connect to database")
		}
		runs := training.NewRepository(db)
		predictions := serving.NewRepository(db)
		if err := runs.AutoMigrate(); err != nil {
			logger.Log.WithError(err).Fatal("Failed to migrate training runs")
		}
		if err := predictions.AutoMigrate(); err != nil {
			logger.Log.WithError(err).Fatal("Failed to migrate prediction logs")
		}
		trainOpts = append(trainOpts, training.WithAudit(runs))
		servingOpts = append(servingOpts, serving.WithAudit(predictions))
		apiOpts = append(apiOpts, api.WithRunLog(runs), api.WithPredictionLog(predictions))
		closers = append(closers, database.ClosePostgres)
	}

	var sink training.EventSink
	if len(sinks) > 0 {
		sink = sinks
	}
	svc := training.NewService(datasets, sessions, reg, training.NewProgressBoard(sink), cfg.TrainingWorkers, trainOpts...)

	handler := api.NewHandler(datasets, sessions, reg, svc,
		serving.NewPredictor(sessions, servingOpts...),
		export.NewExporter(cfg.ModelDir, sessions, export.WithDatasets(datasets)),
		api.Defaults{TestSize: cfg.TestSize, RandomState: cfg.RandomState, CVFolds: cfg.CVFolds},
		apiOpts...)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      handler.Router(cfg.MaxRequestBody),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Log.WithFields(logrus.Fields{
			"host":      cfg.ServerHost,
			"port":      cfg.ServerPort,
			"model_dir": cfg.ModelDir,
			"workers":   cfg.TrainingWorkers,
			"kafka":     cfg.KafkaEnabled,
			"redis":     cfg.RedisEnabled,
			"audit":     cfg.AuditEnabled,
		}).Info("AutoML Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down AutoML Service...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Log.WithError(err).Error("Server forced to shutdown")
	}

	// Background trainings run to completion; they cannot be cancelled.
	done := make(chan struct{})
	go func() {
		svc.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logger.Log.Warn("Training sessions still running at shutdown")
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Log.WithError(err).Warn("Failed to close client")
		}
	}
	logger.Log.Info("AutoML Service stopped")
}
