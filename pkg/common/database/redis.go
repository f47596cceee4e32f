package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/synaptica-ai/automl/pkg/common/config"
	"github.com/synaptica-ai/automl/pkg/common/logger"
)

const progressClientName = "automl-progress"

var (
	progressClient *redis.Client
	progressErr    error
	progressOnce   sync.Once
)

// ProgressClient returns the client that mirrors training progress for other
// replicas. The first call pings the server; when that fails the error is
// returned on every call and the caller keeps progress local.
func ProgressClient(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	progressOnce.Do(func() {
		client := redis.NewClient(progressOptions(cfg))

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			progressErr = fmt.Errorf("ping redis at %s: %w", client.Options().Addr, err)
			return
		}

		progressClient = client
		logger.WithFields(map[string]interface{}{
			"addr": client.Options().Addr,
			"db":   cfg.RedisDB,
		}).Info("Mirroring training progress to Redis")
	})
	return progressClient, progressErr
}

func progressOptions(cfg *config.Config) *redis.Options {
	return &redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		ClientName:   progressClientName,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	}
}

func CloseProgressClient() error {
	if progressClient != nil {
		return progressClient.Close()
	}
	return nil
}
