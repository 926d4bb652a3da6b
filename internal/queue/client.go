package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/leejennwah/compliance-queue/internal/job"
	"github.com/leejennwah/compliance-queue/internal/metrics"
	"github.com/leejennwah/compliance-queue/internal/retry"
	"github.com/leejennwah/compliance-queue/internal/store"
)

var tracer = otel.Tracer("compliance-queue/queue")

// Client is the queue API used by producers, workers and admin tooling.
//
// No method returns an error. A missing store or a failed store call
// degrades to a neutral result (unsuccessful enqueue, zero stats, nil job)
// so request paths never fail because background bookkeeping did.
// A Client is safe for concurrent use.
type Client struct {
	cfg     Config
	store   store.Provider
	retry   *retry.Policy
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// Option customizes a Client.
type Option func(*Client)

// WithStore sets the backing store provider. The default has no store.
func WithStore(p store.Provider) Option {
	return func(c *Client) { c.store = p }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a queue client. Zero fields of cfg take their defaults.
func New(cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg:    cfg.WithDefaults(),
		store:  store.None,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = metrics.NewUnregistered()
	}
	c.retry = retry.DefaultPolicy(c.cfg.BaseBackoff)
	return c
}

// Config returns the effective configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// Metrics returns the collectors the client reports to.
func (c *Client) Metrics() *metrics.Metrics {
	return c.metrics
}

// EnqueueOptions are per-call overrides. Zero fields use the client defaults.
type EnqueueOptions struct {
	ScheduledAt    time.Time
	MaxAttempts    int
	TTLSeconds     int
	OrganizationID string
}

// EnqueueResult reports the outcome of Enqueue. JobID and ScheduledAt are
// always populated, even when Success is false.
type EnqueueResult struct {
	Success     bool      `json:"success"`
	JobID       string    `json:"jobId"`
	ScheduledAt time.Time `json:"scheduledAt"`
}

// Stats is a point-in-time snapshot of the queue.
type Stats struct {
	Pending        int64 `json:"pending"`
	Processing     int64 `json:"processing"`
	Dead           int64 `json:"dead"`
	TotalProcessed int64 `json:"totalProcessed"`
	TotalFailed    int64 `json:"totalFailed"`
}

// Enqueue adds a job for payload to the pending set.
//
// The record write and the pending-set insert go out in one pipeline. That
// saves round trips and narrows the window in which they can diverge, but
// it is not a transaction: a crash mid-batch can leave a record with no
// pending entry.
//
// A zero ScheduledAt means now. A ScheduledAt earlier than now is moved up
// to now, so the returned ScheduledAt is never before the job's createdAt.
// A nil payload, or one whose type is not a known job type, yields an
// unsuccessful result without touching the store.
func (c *Client) Enqueue(ctx context.Context, payload job.Payload, opts EnqueueOptions) EnqueueResult {
	now := c.now()
	if err := job.ValidatePayload(payload); err != nil {
		id := job.NewID()
		c.logger.Error("rejected enqueue", zap.String("job_id", id), zap.Error(err))
		c.metrics.JobsEnqueuedTotal.WithLabelValues("unknown", metrics.OutcomeFailed).Inc()
		return EnqueueResult{Success: false, JobID: id, ScheduledAt: now.UTC()}
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = c.cfg.MaxAttempts
	}
	ttlSeconds := opts.TTLSeconds
	if ttlSeconds <= 0 {
		ttlSeconds = c.cfg.JobTTLSeconds
	}

	j := job.New(payload, now, opts.ScheduledAt, maxAttempts, ttlSeconds)
	j.OrganizationID = opts.OrganizationID
	result := EnqueueResult{Success: false, JobID: j.ID, ScheduledAt: j.ScheduledAt}
	jobType := string(j.Type)

	ctx, span := tracer.Start(ctx, "queue.enqueue",
		trace.WithAttributes(
			attribute.String("job.id", j.ID),
			attribute.String("job.type", jobType),
		),
	)
	defer span.End()

	rdb := c.store()
	if rdb == nil {
		c.logger.Warn("redis not available, job will not be persisted",
			zap.String("job_id", j.ID),
			zap.String("type", jobType),
		)
		c.metrics.JobsEnqueuedTotal.WithLabelValues(jobType, metrics.OutcomeSkipped).Inc()
		return result
	}

	if err := c.persistNew(ctx, rdb, j); err != nil {
		span.RecordError(err)
		c.logger.Error("enqueue failed",
			zap.String("job_id", j.ID),
			zap.String("type", jobType),
			zap.Error(err),
		)
		c.metrics.StoreErrorsTotal.WithLabelValues("enqueue").Inc()
		c.metrics.JobsEnqueuedTotal.WithLabelValues(jobType, metrics.OutcomeFailed).Inc()
		return result
	}

	c.logger.Info("enqueued job",
		zap.String("job_id", j.ID),
		zap.String("type", jobType),
		zap.Time("scheduled_at", j.ScheduledAt),
	)
	c.metrics.JobsEnqueuedTotal.WithLabelValues(jobType, metrics.OutcomePersisted).Inc()
	result.Success = true
	return result
}

func (c *Client) persistNew(ctx context.Context, rdb redis.Cmdable, j *job.Job) error {
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	key := JobKey(j.ID)
	pipe := rdb.Pipeline()
	pipe.Set(ctx, key, data, j.TTL())
	pipe.ZAdd(ctx, PendingKey, redis.Z{
		Score:  score(j.ScheduledAt),
		Member: j.ID,
	})
	pipe.Expire(ctx, key, j.TTL())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("exec enqueue pipeline: %w", err)
	}
	return nil
}

// GetStats returns current set sizes and lifetime counters. Any store
// problem yields the zero snapshot.
func (c *Client) GetStats(ctx context.Context) Stats {
	ctx, span := tracer.Start(ctx, "queue.stats")
	defer span.End()

	rdb := c.store()
	if rdb == nil {
		return Stats{}
	}

	pipe := rdb.Pipeline()
	pipe.ZCard(ctx, PendingKey)
	pipe.ZCard(ctx, ProcessingKey)
	pipe.ZCard(ctx, DeadKey)
	pipe.Get(ctx, ProcessedCounterKey)
	pipe.Get(ctx, FailedCounterKey)
	cmds, err := pipe.Exec(ctx)
	// A counter that was never incremented reads as redis.Nil.
	if err != nil && !errors.Is(err, redis.Nil) {
		span.RecordError(err)
		c.logger.Error("failed to get queue stats", zap.Error(err))
		c.metrics.StoreErrorsTotal.WithLabelValues("stats").Inc()
		return Stats{}
	}

	stats, err := statsFromResults(cmds)
	if err != nil {
		span.RecordError(err)
		c.logger.Error("unexpected queue stats reply", zap.Error(err))
		c.metrics.StoreErrorsTotal.WithLabelValues("stats").Inc()
		return Stats{}
	}

	c.metrics.PendingDepth.Set(float64(stats.Pending))
	c.metrics.ProcessingDepth.Set(float64(stats.Processing))
	c.metrics.DeadLetterDepth.Set(float64(stats.Dead))
	return stats
}

// statsFromResults maps the five stats replies positionally: pending,
// processing and dead cardinalities, then the processed and failed counters.
func statsFromResults(cmds []redis.Cmder) (Stats, error) {
	if len(cmds) != 5 {
		return Stats{}, fmt.Errorf("expected 5 replies, got %d", len(cmds))
	}

	vals := make([]int64, len(cmds))
	for i, cmd := range cmds {
		v, err := replyInt(cmd)
		if err != nil {
			return Stats{}, fmt.Errorf("reply %d: %w", i, err)
		}
		vals[i] = v
	}

	return Stats{
		Pending:        vals[0],
		Processing:     vals[1],
		Dead:           vals[2],
		TotalProcessed: vals[3],
		TotalFailed:    vals[4],
	}, nil
}

// replyInt reads an integer reply. Missing or non-numeric counters count
// as zero; negative values are clamped to zero.
func replyInt(cmd redis.Cmder) (int64, error) {
	var n int64
	switch c := cmd.(type) {
	case *redis.IntCmd:
		if err := c.Err(); err != nil {
			return 0, err
		}
		n = c.Val()
	case *redis.StringCmd:
		if err := c.Err(); err != nil {
			if errors.Is(err, redis.Nil) {
				return 0, nil
			}
			return 0, err
		}
		parsed, err := strconv.ParseInt(c.Val(), 10, 64)
		if err != nil {
			return 0, nil
		}
		n = parsed
	default:
		return 0, fmt.Errorf("unexpected reply type %T", cmd)
	}

	if n < 0 {
		return 0, nil
	}
	return n, nil
}

// GetJob returns the stored job, or nil when the store is unavailable, the
// record is missing, or the record cannot be decoded.
func (c *Client) GetJob(ctx context.Context, id string) *job.Job {
	ctx, span := tracer.Start(ctx, "queue.get_job",
		trace.WithAttributes(attribute.String("job.id", id)),
	)
	defer span.End()

	rdb := c.store()
	if rdb == nil || id == "" {
		return nil
	}

	j, err := loadJob(ctx, rdb, id)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, errCorruptRecord) {
			c.logger.Warn("unreadable job record", zap.String("job_id", id), zap.Error(err))
			return nil
		}
		c.logger.Error("failed to get job", zap.String("job_id", id), zap.Error(err))
		c.metrics.StoreErrorsTotal.WithLabelValues("get_job").Inc()
		return nil
	}
	return j
}

// errCorruptRecord marks a stored record that could not be decoded.
var errCorruptRecord = errors.New("corrupt job record")

// loadJob fetches and decodes a job record. A missing key returns nil, nil.
func loadJob(ctx context.Context, rdb redis.Cmdable, id string) (*job.Job, error) {
	raw, err := rdb.Get(ctx, JobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get job record: %w", err)
	}

	var j job.Job
	if err := json.Unmarshal(raw, &j); err != nil {
		return nil, fmt.Errorf("%w: %v", errCorruptRecord, err)
	}
	return &j, nil
}

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}
