// Package audit records queue activity triggered through the admin API.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType names an audited queue action.
type EventType string

const (
	EventEnqueued      EventType = "queue_job.enqueued"
	EventEnqueueFailed EventType = "queue_job.enqueue_failed"
	EventRetried       EventType = "queue_job.retried"
)

// Event is one audited queue action.
type Event struct {
	ID             uuid.UUID `json:"id"`
	Type           EventType `json:"type"`
	JobID          string    `json:"jobId"`
	JobType        string    `json:"jobType,omitempty"`
	OrganizationID string    `json:"organizationId,omitempty"`
	Actor          string    `json:"actor,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// NewEvent creates an event stamped with a fresh id and the current time.
func NewEvent(t EventType, jobID, jobType string) *Event {
	return &Event{
		ID:        uuid.New(),
		Type:      t,
		JobID:     jobID,
		JobType:   jobType,
		CreatedAt: time.Now().UTC(),
	}
}

// Repository persists audit events.
type Repository interface {
	// Record stores a single event.
	Record(ctx context.Context, e *Event) error

	// ListRecent returns up to limit events, newest first.
	ListRecent(ctx context.Context, limit int) ([]*Event, error)
}

// Nop discards events. Used when no database is configured.
type Nop struct{}

func (Nop) Record(context.Context, *Event) error { return nil }

func (Nop) ListRecent(context.Context, int) ([]*Event, error) { return []*Event{}, nil }
