// Package config loads process configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the full process configuration.
type Config struct {
	Redis        Redis
	DatabaseURL  string
	APIAddr      string
	MetricsAddr  string
	OTLPEndpoint string
	Queue        Queue
	PollInterval time.Duration
}

// Redis configures the backing store connection. An empty URL means no
// store is configured and the queue runs degraded.
type Redis struct {
	URL          string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	MinIdleConns int
}

// Queue carries queue overrides; zero values defer to the queue defaults.
type Queue struct {
	BatchSize         int
	MaxAttempts       int
	JobTTLSeconds     int
	BaseBackoff       time.Duration
	ProcessingTimeout time.Duration
}

// Load reads the configuration from environment variables.
func Load() Config {
	return Config{
		Redis: Redis{
			URL:          os.Getenv("REDIS_URL"),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 2*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", time.Second),
			PoolSize:     getInt("REDIS_POOL_SIZE", 50),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 5),
		},
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		APIAddr:      getEnv("API_ADDR", ":8080"),
		MetricsAddr:  getEnv("METRICS_ADDR", ":9091"),
		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		Queue: Queue{
			BatchSize:         getInt("QUEUE_BATCH_SIZE", 0),
			MaxAttempts:       getInt("QUEUE_MAX_ATTEMPTS", 0),
			JobTTLSeconds:     getInt("QUEUE_JOB_TTL_SECONDS", 0),
			BaseBackoff:       getDuration("QUEUE_BASE_BACKOFF", 0),
			ProcessingTimeout: getDuration("QUEUE_PROCESSING_TIMEOUT", 0),
		},
		PollInterval: getDuration("WORKER_POLL_INTERVAL", 5*time.Second),
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	d, err := time.ParseDuration(val)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}
