// Package storage provides Postgres-backed implementations of domain repositories.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/leejennwah/compliance-queue/internal/audit"
)

// DefaultEventLimit bounds ListRecent when no positive limit is given.
const DefaultEventLimit = 50

// DB is the subset of pgxpool.Pool used by the repositories.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

var _ DB = (*pgxpool.Pool)(nil)

// PostgresEventRepository implements audit.Repository using PostgreSQL.
type PostgresEventRepository struct {
	db     DB
	logger *zap.Logger
}

// NewPostgresEventRepository creates a new Postgres-backed audit event repository.
func NewPostgresEventRepository(db DB, logger *zap.Logger) *PostgresEventRepository {
	return &PostgresEventRepository{db: db, logger: logger}
}

// Record inserts an event. Re-recording the same event id is a no-op.
func (r *PostgresEventRepository) Record(ctx context.Context, e *audit.Event) error {
	if e == nil {
		return errors.New("nil event")
	}

	query := `
		INSERT INTO queue_events (id, type, job_id, job_type, organization_id, actor, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`

	_, err := r.db.Exec(ctx, query,
		e.ID, string(e.Type), e.JobID, e.JobType, e.OrganizationID, e.Actor, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// ListRecent returns the newest events first.
func (r *PostgresEventRepository) ListRecent(ctx context.Context, limit int) ([]*audit.Event, error) {
	if limit <= 0 {
		limit = DefaultEventLimit
	}

	query := `
		SELECT id, type, job_id, job_type, organization_id, actor, created_at
		FROM queue_events ORDER BY created_at DESC LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows pgx.Rows) ([]*audit.Event, error) {
	events := []*audit.Event{}
	for rows.Next() {
		e := &audit.Event{}
		var typ string
		if err := rows.Scan(
			&e.ID, &typ, &e.JobID, &e.JobType, &e.OrganizationID, &e.Actor, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Type = audit.EventType(typ)
		events = append(events, e)
	}
	return events, rows.Err()
}
