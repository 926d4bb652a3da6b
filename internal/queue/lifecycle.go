package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/leejennwah/compliance-queue/internal/job"
)

// Outcome is the result of recording a failed attempt.
type Outcome string

const (
	OutcomeRetrying Outcome = "retrying"
	OutcomeDead     Outcome = "dead"
)

const defaultDeadListLimit = 20

// FetchPendingJobs claims up to batchSize due jobs, earliest first, and
// moves them to the processing set. A non-positive batchSize uses the
// configured default.
//
// Each job is claimed by removing it from the pending set; a job another
// worker already removed is skipped.
func (c *Client) FetchPendingJobs(ctx context.Context, batchSize int) []*job.Job {
	ctx, span := tracer.Start(ctx, "queue.fetch_pending")
	defer span.End()

	rdb := c.store()
	if rdb == nil {
		return nil
	}

	limit := batchSize
	if limit <= 0 {
		limit = c.cfg.BatchSize
	}
	now := c.now()

	ids, err := rdb.ZRangeByScore(ctx, PendingKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		span.RecordError(err)
		c.logger.Error("failed to fetch pending jobs", zap.Error(err))
		c.metrics.StoreErrorsTotal.WithLabelValues("fetch").Inc()
		return nil
	}

	var jobs []*job.Job
	for _, id := range ids {
		removed, err := rdb.ZRem(ctx, PendingKey, id).Result()
		if err != nil {
			c.logger.Error("failed to claim job", zap.String("job_id", id), zap.Error(err))
			c.metrics.StoreErrorsTotal.WithLabelValues("fetch").Inc()
			return jobs
		}
		if removed == 0 {
			continue
		}

		j, err := loadJob(ctx, rdb, id)
		if err != nil {
			c.logger.Error("dropping unreadable job", zap.String("job_id", id), zap.Error(err))
			continue
		}
		if j == nil {
			c.logger.Warn("pending job record expired", zap.String("job_id", id))
			continue
		}

		if err := j.MarkProcessing(c.now()); err != nil {
			c.logger.Error("cannot start job", zap.String("job_id", id), zap.Error(err))
			continue
		}

		if err := c.saveState(ctx, rdb, j, func(pipe redis.Pipeliner) {
			pipe.ZAdd(ctx, ProcessingKey, redis.Z{Score: score(*j.StartedAt), Member: id})
		}); err != nil {
			c.logger.Error("failed to mark job processing", zap.String("job_id", id), zap.Error(err))
			c.metrics.StoreErrorsTotal.WithLabelValues("fetch").Inc()
			c.releaseClaim(ctx, rdb, id, j.ScheduledAt)
			return jobs
		}

		jobs = append(jobs, j)
	}

	return jobs
}

// CompleteJob records a successful run, stores result on the job and
// reports whether the update was persisted.
func (c *Client) CompleteJob(ctx context.Context, id string, result json.RawMessage) bool {
	ctx, span := tracer.Start(ctx, "queue.complete",
		trace.WithAttributes(attribute.String("job.id", id)),
	)
	defer span.End()

	rdb := c.store()
	if rdb == nil {
		return false
	}

	j, err := loadJob(ctx, rdb, id)
	if err != nil || j == nil {
		c.logger.Error("cannot complete job", zap.String("job_id", id), zap.Error(err))
		return false
	}

	if err := j.MarkCompleted(c.now(), result); err != nil {
		c.logger.Error("cannot complete job", zap.String("job_id", id), zap.Error(err))
		return false
	}

	if err := c.saveState(ctx, rdb, j, func(pipe redis.Pipeliner) {
		pipe.ZRem(ctx, ProcessingKey, id)
		pipe.Expire(ctx, JobKey(id), j.TTL())
		pipe.Incr(ctx, ProcessedCounterKey)
	}); err != nil {
		span.RecordError(err)
		c.logger.Error("failed to complete job", zap.String("job_id", id), zap.Error(err))
		c.metrics.StoreErrorsTotal.WithLabelValues("complete").Inc()
		return false
	}

	c.metrics.JobsCompletedTotal.Inc()
	c.logger.Info("job completed", zap.String("job_id", id))
	return true
}

// FailJob records a failed attempt. Jobs with attempts left are requeued
// with exponential backoff; the rest move to the dead set. Without a store
// or on any store error the job is reported as dead.
func (c *Client) FailJob(ctx context.Context, id, errMsg string) Outcome {
	ctx, span := tracer.Start(ctx, "queue.fail",
		trace.WithAttributes(attribute.String("job.id", id)),
	)
	defer span.End()

	rdb := c.store()
	if rdb == nil {
		return OutcomeDead
	}

	j, err := loadJob(ctx, rdb, id)
	if err != nil || j == nil {
		// Nothing left to retry; drop the processing entry so recovery
		// does not revisit it.
		if zerr := rdb.ZRem(ctx, ProcessingKey, id).Err(); zerr != nil {
			c.logger.Error("failed to drop processing entry", zap.String("job_id", id), zap.Error(zerr))
		}
		if err != nil {
			c.logger.Error("cannot record job failure", zap.String("job_id", id), zap.Error(err))
		}
		return OutcomeDead
	}

	now := c.now()
	if err := j.MarkFailed(now, errMsg); err != nil {
		c.logger.Error("cannot record job failure", zap.String("job_id", id), zap.Error(err))
		return OutcomeDead
	}

	if j.CanRetry() {
		delay := c.retry.NextDelay(j.Attempts)
		if err := j.Requeue(now.Add(delay)); err != nil {
			c.logger.Error("cannot requeue job", zap.String("job_id", id), zap.Error(err))
			return OutcomeDead
		}

		if err := c.saveState(ctx, rdb, j, func(pipe redis.Pipeliner) {
			pipe.ZRem(ctx, ProcessingKey, id)
			pipe.ZAdd(ctx, PendingKey, redis.Z{Score: score(j.ScheduledAt), Member: id})
			pipe.Incr(ctx, RetriedCounterKey)
		}); err != nil {
			span.RecordError(err)
			c.logger.Error("failed to requeue job", zap.String("job_id", id), zap.Error(err))
			c.metrics.StoreErrorsTotal.WithLabelValues("fail").Inc()
			return OutcomeDead
		}

		c.metrics.JobsRetriedTotal.Inc()
		c.logger.Info("job failed, retrying",
			zap.String("job_id", id),
			zap.Int("attempt", j.Attempts),
			zap.Int("max_attempts", j.MaxAttempts),
			zap.Duration("delay", delay),
		)
		return OutcomeRetrying
	}

	if err := j.SendToDeadLetter(); err != nil {
		c.logger.Error("cannot dead-letter job", zap.String("job_id", id), zap.Error(err))
		return OutcomeDead
	}

	if err := c.saveState(ctx, rdb, j, func(pipe redis.Pipeliner) {
		pipe.ZRem(ctx, ProcessingKey, id)
		pipe.ZAdd(ctx, DeadKey, redis.Z{Score: score(now), Member: id})
		pipe.Expire(ctx, JobKey(id), j.TTL())
		pipe.Incr(ctx, FailedCounterKey)
	}); err != nil {
		span.RecordError(err)
		c.logger.Error("failed to dead-letter job", zap.String("job_id", id), zap.Error(err))
		c.metrics.StoreErrorsTotal.WithLabelValues("fail").Inc()
		return OutcomeDead
	}

	c.metrics.JobsDeadTotal.Inc()
	c.logger.Warn("job moved to dead letter set",
		zap.String("job_id", id),
		zap.Int("attempts", j.Attempts),
		zap.String("last_error", errMsg),
	)
	return OutcomeDead
}

// RecoverStaleJobs fails every job that has been processing longer than
// the processing timeout and returns how many were requeued.
func (c *Client) RecoverStaleJobs(ctx context.Context) int {
	rdb := c.store()
	if rdb == nil {
		return 0
	}

	threshold := c.now().Add(-c.cfg.ProcessingTimeout)
	ids, err := rdb.ZRangeByScore(ctx, ProcessingKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(threshold.UnixMilli(), 10),
	}).Result()
	if err != nil {
		c.logger.Error("failed to recover stale jobs", zap.Error(err))
		c.metrics.StoreErrorsTotal.WithLabelValues("recover").Inc()
		return 0
	}

	recovered := 0
	for _, id := range ids {
		if c.FailJob(ctx, id, "processing timeout: job was stale") == OutcomeRetrying {
			recovered++
		}
	}

	if len(ids) > 0 {
		c.logger.Info("recovered stale jobs",
			zap.Int("stale", len(ids)),
			zap.Int("requeued", recovered),
		)
	}
	return recovered
}

// ListDeadJobs returns up to limit dead jobs, most recently failed first.
func (c *Client) ListDeadJobs(ctx context.Context, limit int) []*job.Job {
	rdb := c.store()
	if rdb == nil {
		return nil
	}
	if limit <= 0 {
		limit = defaultDeadListLimit
	}

	ids, err := rdb.ZRevRange(ctx, DeadKey, 0, int64(limit-1)).Result()
	if err != nil {
		c.logger.Error("failed to list dead jobs", zap.Error(err))
		c.metrics.StoreErrorsTotal.WithLabelValues("list_dead").Inc()
		return nil
	}
	if len(ids) == 0 {
		return nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = JobKey(id)
	}
	raws, err := rdb.MGet(ctx, keys...).Result()
	if err != nil {
		c.logger.Error("failed to load dead jobs", zap.Error(err))
		c.metrics.StoreErrorsTotal.WithLabelValues("list_dead").Inc()
		return nil
	}

	jobs := make([]*job.Job, 0, len(raws))
	for i, raw := range raws {
		s, ok := raw.(string)
		if !ok {
			continue
		}
		var j job.Job
		if err := json.Unmarshal([]byte(s), &j); err != nil {
			c.logger.Warn("skipping unreadable dead job", zap.String("job_id", ids[i]), zap.Error(err))
			continue
		}
		jobs = append(jobs, &j)
	}
	return jobs
}

// RetryDeadJob moves a dead job back to pending with its attempts reset.
// It reports false when the job is missing, not dead, or the store fails.
func (c *Client) RetryDeadJob(ctx context.Context, id string) bool {
	rdb := c.store()
	if rdb == nil {
		return false
	}

	j, err := loadJob(ctx, rdb, id)
	if err != nil || j == nil {
		if err != nil {
			c.logger.Error("cannot retry dead job", zap.String("job_id", id), zap.Error(err))
		}
		return false
	}

	if err := j.Revive(c.now()); err != nil {
		c.logger.Warn("cannot retry job", zap.String("job_id", id), zap.Error(err))
		return false
	}

	data, err := json.Marshal(j)
	if err != nil {
		c.logger.Error("cannot retry dead job", zap.String("job_id", id), zap.Error(err))
		return false
	}

	pipe := rdb.Pipeline()
	pipe.ZRem(ctx, DeadKey, id)
	pipe.Set(ctx, JobKey(id), data, j.TTL())
	pipe.ZAdd(ctx, PendingKey, redis.Z{Score: score(j.ScheduledAt), Member: id})
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Error("failed to retry dead job", zap.String("job_id", id), zap.Error(err))
		c.metrics.StoreErrorsTotal.WithLabelValues("retry_dead").Inc()
		return false
	}

	c.logger.Info("dead job requeued", zap.String("job_id", id))
	return true
}

// CleanupExpiredDeadJobs removes dead-set members whose records have
// expired and returns how many were removed.
func (c *Client) CleanupExpiredDeadJobs(ctx context.Context) int {
	rdb := c.store()
	if rdb == nil {
		return 0
	}

	ids, err := rdb.ZRange(ctx, DeadKey, 0, -1).Result()
	if err != nil {
		c.logger.Error("failed to cleanup dead jobs", zap.Error(err))
		c.metrics.StoreErrorsTotal.WithLabelValues("cleanup").Inc()
		return 0
	}
	if len(ids) == 0 {
		return 0
	}

	pipe := rdb.Pipeline()
	exists := make([]*redis.IntCmd, len(ids))
	for i, id := range ids {
		exists[i] = pipe.Exists(ctx, JobKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Error("failed to cleanup dead jobs", zap.Error(err))
		c.metrics.StoreErrorsTotal.WithLabelValues("cleanup").Inc()
		return 0
	}

	var expired []any
	for i, cmd := range exists {
		if cmd.Val() == 0 {
			expired = append(expired, ids[i])
		}
	}
	if len(expired) == 0 {
		return 0
	}

	removed, err := rdb.ZRem(ctx, DeadKey, expired...).Result()
	if err != nil {
		c.logger.Error("failed to cleanup dead jobs", zap.Error(err))
		c.metrics.StoreErrorsTotal.WithLabelValues("cleanup").Inc()
		return 0
	}

	c.logger.Info("cleaned up expired dead-letter entries", zap.Int64("count", removed))
	return int(removed)
}

// saveState rewrites the job record, keeping its current expiry, and
// runs extra in the same pipeline.
func (c *Client) saveState(ctx context.Context, rdb redis.Cmdable, j *job.Job, extra func(redis.Pipeliner)) error {
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	pipe := rdb.Pipeline()
	pipe.Set(ctx, JobKey(j.ID), data, redis.KeepTTL)
	extra(pipe)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("exec pipeline: %w", err)
	}
	return nil
}

// releaseClaim returns a claimed job to the pending set at its original
// score after its processing state could not be written. Without it the
// job would sit in neither set and nothing would pick it up again.
func (c *Client) releaseClaim(ctx context.Context, rdb redis.Cmdable, id string, scheduledAt time.Time) {
	if err := rdb.ZAdd(ctx, PendingKey, redis.Z{Score: score(scheduledAt), Member: id}).Err(); err != nil {
		c.logger.Error("failed to release job claim", zap.String("job_id", id), zap.Error(err))
		return
	}
	c.logger.Warn("released job claim", zap.String("job_id", id))
}
