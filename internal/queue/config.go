package queue

import (
	"time"

	"github.com/leejennwah/compliance-queue/internal/config"
)

// Queue defaults applied to every field the caller leaves at zero.
const (
	DefaultBatchSize         = 10
	DefaultMaxAttempts       = 3
	DefaultJobTTLSeconds     = 7 * 24 * 60 * 60
	DefaultBaseBackoff       = time.Second
	DefaultProcessingTimeout = 5 * time.Minute
)

// Config holds queue client settings. It is never mutated after the
// client is constructed.
type Config struct {
	BatchSize         int
	MaxAttempts       int
	JobTTLSeconds     int
	BaseBackoff       time.Duration
	ProcessingTimeout time.Duration
}

// DefaultConfig returns the queue defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:         DefaultBatchSize,
		MaxAttempts:       DefaultMaxAttempts,
		JobTTLSeconds:     DefaultJobTTLSeconds,
		BaseBackoff:       DefaultBaseBackoff,
		ProcessingTimeout: DefaultProcessingTimeout,
	}
}

// WithDefaults overlays the non-zero fields of c onto DefaultConfig.
func (c Config) WithDefaults() Config {
	out := DefaultConfig()
	if c.BatchSize > 0 {
		out.BatchSize = c.BatchSize
	}
	if c.MaxAttempts > 0 {
		out.MaxAttempts = c.MaxAttempts
	}
	if c.JobTTLSeconds > 0 {
		out.JobTTLSeconds = c.JobTTLSeconds
	}
	if c.BaseBackoff > 0 {
		out.BaseBackoff = c.BaseBackoff
	}
	if c.ProcessingTimeout > 0 {
		out.ProcessingTimeout = c.ProcessingTimeout
	}
	return out
}

// ConfigFrom converts environment overrides into a queue Config.
func ConfigFrom(q config.Queue) Config {
	return Config{
		BatchSize:         q.BatchSize,
		MaxAttempts:       q.MaxAttempts,
		JobTTLSeconds:     q.JobTTLSeconds,
		BaseBackoff:       q.BaseBackoff,
		ProcessingTimeout: q.ProcessingTimeout,
	}
}
