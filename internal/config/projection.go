package config

import (
	"os"
	"strconv"
	"time"
)

type ProjectionConfig struct {
	WindowDays        int
	RefreshQueueKey   string
	WorkerPollTimeout time.Duration
	BatchSize         int
}

func LoadProjectionConfig() *ProjectionConfig {
	return &ProjectionConfig{
		WindowDays:        getEnvAsInt("PROJECTION_WINDOW_DAYS", 90),
		RefreshQueueKey:   getEnv("PROJECTION_REFRESH_QUEUE", "projection_refresh_queue"),
		WorkerPollTimeout: getEnvAsDuration("PROJECTION_WORKER_POLL_TIMEOUT", 5*time.Second),
		BatchSize:         getEnvAsInt("PROJECTION_BATCH_SIZE", 100),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}
