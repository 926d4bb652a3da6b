// Package job defines the queued job model and its lifecycle state machine.
package job

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// IDPrefix marks every job id so it is recognizable in logs and URLs.
const IDPrefix = "job_"

// State represents the current state of a job in its lifecycle.
type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateDead       State = "dead"
)

// validTransitions defines the allowed state machine transitions.
var validTransitions = map[State][]State{
	StatePending:    {StateProcessing},
	StateProcessing: {StateCompleted, StateFailed},
	StateFailed:     {StatePending, StateDead},
	StateDead:       {StatePending},
	StateCompleted:  {},
}

// Job represents a unit of deferred work held in the queue.
type Job struct {
	ID             string          `json:"id"`
	Type           Type            `json:"type"`
	State          State           `json:"state"`
	Payload        Payload         `json:"payload"`
	CreatedAt      time.Time       `json:"createdAt"`
	ScheduledAt    time.Time       `json:"scheduledAt"`
	Attempts       int             `json:"attempts"`
	MaxAttempts    int             `json:"maxAttempts"`
	TTLSeconds     int             `json:"ttlSeconds"`
	OrganizationID string          `json:"organizationId,omitempty"`
	StartedAt      *time.Time      `json:"startedAt,omitempty"`
	CompletedAt    *time.Time      `json:"completedAt,omitempty"`
	FailedAt       *time.Time      `json:"failedAt,omitempty"`
	LastError      string          `json:"lastError,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
}

// NewID returns a fresh job id. The suffix is a UUIDv7, so ids sort roughly
// by creation time and stay unique across processes.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return IDPrefix + strings.ReplaceAll(id.String(), "-", "")
}

// New creates a pending job for the given payload. A scheduledAt earlier than
// now is moved up to now.
func New(payload Payload, now, scheduledAt time.Time, maxAttempts, ttlSeconds int) *Job {
	now = now.UTC()
	if scheduledAt.IsZero() || scheduledAt.Before(now) {
		scheduledAt = now
	}
	return &Job{
		ID:          NewID(),
		Type:        payload.JobType(),
		State:       StatePending,
		Payload:     payload,
		CreatedAt:   now,
		ScheduledAt: scheduledAt.UTC(),
		Attempts:    0,
		MaxAttempts: maxAttempts,
		TTLSeconds:  ttlSeconds,
	}
}

// TTL returns the record retention period.
func (j *Job) TTL() time.Duration {
	return time.Duration(j.TTLSeconds) * time.Second
}

// TransitionTo validates and performs a state transition.
func (j *Job) TransitionTo(newState State) error {
	allowed, ok := validTransitions[j.State]
	if !ok {
		return fmt.Errorf("unknown current state: %s", j.State)
	}

	for _, s := range allowed {
		if s == newState {
			j.State = newState
			return nil
		}
	}

	return fmt.Errorf("invalid transition from %s to %s", j.State, newState)
}

// CanRetry reports whether the job has remaining attempts.
func (j *Job) CanRetry() bool {
	return j.Attempts < j.MaxAttempts
}

// MarkProcessing claims the job for execution and counts the attempt.
func (j *Job) MarkProcessing(now time.Time) error {
	if err := j.TransitionTo(StateProcessing); err != nil {
		return err
	}
	now = now.UTC()
	j.StartedAt = &now
	j.Attempts++
	return nil
}

// MarkCompleted transitions the job to completed and stores the handler result.
func (j *Job) MarkCompleted(now time.Time, result json.RawMessage) error {
	if err := j.TransitionTo(StateCompleted); err != nil {
		return err
	}
	now = now.UTC()
	j.CompletedAt = &now
	j.Result = result
	return nil
}

// MarkFailed transitions the job to failed with an error message.
func (j *Job) MarkFailed(now time.Time, errMsg string) error {
	if err := j.TransitionTo(StateFailed); err != nil {
		return err
	}
	now = now.UTC()
	j.FailedAt = &now
	j.LastError = errMsg
	return nil
}

// Requeue moves a failed job back to pending for another attempt at runAt.
func (j *Job) Requeue(runAt time.Time) error {
	if err := j.TransitionTo(StatePending); err != nil {
		return err
	}
	j.ScheduledAt = runAt.UTC()
	return nil
}

// SendToDeadLetter transitions a failed job to dead.
func (j *Job) SendToDeadLetter() error {
	return j.TransitionTo(StateDead)
}

// Revive resets a dead job so it can run again from scratch.
func (j *Job) Revive(now time.Time) error {
	if j.State != StateDead {
		return fmt.Errorf("job %s is not dead (state: %s)", j.ID, j.State)
	}
	if err := j.TransitionTo(StatePending); err != nil {
		return err
	}
	j.Attempts = 0
	j.LastError = ""
	j.FailedAt = nil
	j.ScheduledAt = now.UTC()
	return nil
}

// UnmarshalJSON decodes the envelope and then the payload according to Type.
func (j *Job) UnmarshalJSON(data []byte) error {
	type envelope Job
	var raw struct {
		envelope
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	payload, err := DecodePayload(raw.Type, raw.Payload)
	if err != nil {
		return err
	}

	*j = Job(raw.envelope)
	j.Payload = payload
	return nil
}
