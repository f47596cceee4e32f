package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64

	// Artifacts
	ModelDir string

	// Training defaults
	TestSize             float64
	RandomState          int64
	CVFolds              int
	TrainingWorkers      int
	RegistryDefaultsFile string

	// Database (run and prediction audit)
	AuditEnabled     bool
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis (progress mirror)
	RedisEnabled  bool
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	ProgressTTL   time.Duration
	// ProgressKeyPrefix namespaces mirrored snapshots when the Redis
	// database is shared with other services.
	ProgressKeyPrefix string

	// Kafka (training events)
	KafkaEnabled       bool
	KafkaBrokers       []string
	KafkaGroupID       string
	KafkaTrainingTopic string
	KafkaWriteTimeout  time.Duration
}

func Load() *Config {
	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8000"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 60*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 64*1024*1024)),

		ModelDir: getEnv("MODEL_DIR", "models"),

		TestSize:             getFloatEnv("TEST_SIZE", 0.2),
		RandomState:          int64(getIntEnv("RANDOM_STATE", 42)),
		CVFolds:              getIntEnv("CV_FOLDS", 5),
		TrainingWorkers:      getIntEnv("TRAINING_WORKERS", 2),
		RegistryDefaultsFile: getEnv("REGISTRY_DEFAULTS_FILE", ""),

		AuditEnabled:     getBoolEnv("AUDIT_ENABLED", false),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "automl"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "automl"),
		PostgresDB:       getEnv("POSTGRES_DB", "automl"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisEnabled:  getBoolEnv("REDIS_ENABLED", false),
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),
		ProgressTTL:   getDuration("PROGRESS_TTL", 24*time.Hour),

		ProgressKeyPrefix: getEnv("PROGRESS_KEY_PREFIX", "automl:progress"),

		KafkaEnabled:       getBoolEnv("KAFKA_ENABLED", false),
		KafkaBrokers:       getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaGroupID:       getEnv("KAFKA_GROUP_ID", "automl"),
		KafkaTrainingTopic: getEnv("KAFKA_TRAINING_TOPIC", "automl.training"),
		KafkaWriteTimeout:  getDuration("KAFKA_WRITE_TIMEOUT", 10*time.Second),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
