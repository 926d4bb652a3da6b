// Package retry computes requeue delays for failed jobs.
package retry

import (
	"math"
	"math/rand"
	"time"
)

// Policy defines exponential backoff with optional jitter.
type Policy struct {
	BaseDelay   time.Duration `json:"base_delay"`
	MaxDelay    time.Duration `json:"max_delay"`
	Multiplier  float64       `json:"multiplier"`
	JitterRatio float64       `json:"jitter_ratio"` // 0.0 to 1.0
}

// DefaultPolicy doubles from base with no jitter and caps at one hour.
func DefaultPolicy(base time.Duration) *Policy {
	return &Policy{
		BaseDelay:   base,
		MaxDelay:    time.Hour,
		Multiplier:  2.0,
		JitterRatio: 0,
	}
}

// NextDelay returns the delay before the next run of a job that has
// already been attempted the given number of times: base × multiplier^attempts.
func (p *Policy) NextDelay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}

	delay := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempts))

	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	if p.JitterRatio > 0 {
		delay += delay * p.JitterRatio * (2*rand.Float64() - 1)
	}

	if delay < 0 {
		delay = float64(p.BaseDelay)
	}

	return time.Duration(delay)
}
