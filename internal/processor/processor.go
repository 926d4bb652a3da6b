// Package processor runs due queue jobs through registered handlers and
// records their outcome back on the queue.
package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/leejennwah/compliance-queue/internal/job"
	"github.com/leejennwah/compliance-queue/internal/metrics"
	"github.com/leejennwah/compliance-queue/internal/queue"
)

var tracer = otel.Tracer("compliance-queue/processor")

// Handler executes a job and returns a JSON-serializable result.
type Handler func(ctx context.Context, j *job.Job) (any, error)

// Queue is the subset of the queue client the processor drives.
type Queue interface {
	RecoverStaleJobs(ctx context.Context) int
	FetchPendingJobs(ctx context.Context, batchSize int) []*job.Job
	CompleteJob(ctx context.Context, id string, result json.RawMessage) bool
	FailJob(ctx context.Context, id, errMsg string) queue.Outcome
	CleanupExpiredDeadJobs(ctx context.Context) int
}

// Result summarizes one ProcessJobs batch.
type Result struct {
	Processed   int      `json:"processed"`
	Succeeded   int      `json:"succeeded"`
	Failed      int      `json:"failed"`
	MovedToDead int      `json:"movedToDead"`
	Errors      []string `json:"errors"`
}

// Processor dispatches fetched jobs to handlers by type.
type Processor struct {
	queue    Queue
	metrics  *metrics.Metrics
	logger   *zap.Logger
	mu       sync.RWMutex
	handlers map[job.Type]Handler
}

// New creates a processor with no handlers registered.
func New(q Queue, m *metrics.Metrics, logger *zap.Logger) *Processor {
	return &Processor{
		queue:    q,
		metrics:  m,
		logger:   logger,
		handlers: make(map[job.Type]Handler),
	}
}

// RegisterHandler registers the handler for a job type, replacing any
// previous one.
func (p *Processor) RegisterHandler(t job.Type, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[t] = h
}

// RegisterHandlers registers several handlers at once. Nil handlers are ignored.
func (p *Processor) RegisterHandlers(handlers map[job.Type]Handler) {
	for t, h := range handlers {
		if h != nil {
			p.RegisterHandler(t, h)
		}
	}
}

func (p *Processor) handler(t job.Type) (Handler, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	h, ok := p.handlers[t]
	return h, ok
}

// ProcessJobs runs one batch: recover stale jobs, fetch due jobs, execute
// each, record the outcome, then clean up expired dead-letter entries.
func (p *Processor) ProcessJobs(ctx context.Context, batchSize int) Result {
	result := Result{Errors: []string{}}

	p.metrics.ProcessorBusy.Set(1)
	defer p.metrics.ProcessorBusy.Set(0)

	if recovered := p.queue.RecoverStaleJobs(ctx); recovered > 0 {
		p.logger.Info("recovered stale jobs", zap.Int("count", recovered))
	}

	jobs := p.queue.FetchPendingJobs(ctx, batchSize)
	if len(jobs) == 0 {
		return result
	}

	p.logger.Info("processing jobs", zap.Int("count", len(jobs)))

	for _, j := range jobs {
		result.Processed++

		if err := p.execute(ctx, j); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("job %s (%s): %s", j.ID, j.Type, err))

			if p.queue.FailJob(ctx, j.ID, err.Error()) == queue.OutcomeDead {
				result.MovedToDead++
			}
			continue
		}
		result.Succeeded++
	}

	p.queue.CleanupExpiredDeadJobs(ctx)

	p.logger.Info("batch complete",
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
		zap.Int("moved_to_dead", result.MovedToDead),
	)
	return result
}

// execute runs the handler for j and records completion. The returned
// error is the handler failure to report through FailJob.
func (p *Processor) execute(ctx context.Context, j *job.Job) error {
	ctx, span := tracer.Start(ctx, "job.execute",
		trace.WithAttributes(
			attribute.String("job.id", j.ID),
			attribute.String("job.type", string(j.Type)),
			attribute.Int("job.attempt", j.Attempts),
		),
	)
	defer span.End()

	h, ok := p.handler(j.Type)
	if !ok {
		p.logger.Error("no handler registered", zap.String("type", string(j.Type)))
		return fmt.Errorf("no handler registered for job type: %s", j.Type)
	}

	p.logger.Info("executing job",
		zap.String("job_id", j.ID),
		zap.String("type", string(j.Type)),
		zap.Int("attempt", j.Attempts),
		zap.Int("max_attempts", j.MaxAttempts),
	)

	start := time.Now()
	out, err := runHandler(ctx, h, j)
	p.metrics.JobLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		p.logger.Warn("job failed",
			zap.String("job_id", j.ID),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return err
	}

	var raw json.RawMessage
	if out != nil {
		data, err := json.Marshal(out)
		if err != nil {
			p.logger.Warn("dropping unserializable job result", zap.String("job_id", j.ID), zap.Error(err))
		} else {
			raw = data
		}
	}

	if !p.queue.CompleteJob(ctx, j.ID, raw) {
		p.logger.Warn("job ran but completion was not recorded", zap.String("job_id", j.ID))
	}
	return nil
}

// runHandler converts a handler panic into an error so one bad job cannot
// take the worker down.
func runHandler(ctx context.Context, h Handler, j *job.Job) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, j)
}

// DefaultInterval is the poll interval used when Run is given none.
const DefaultInterval = 5 * time.Second

// Run processes batches every interval until ctx is cancelled.
func (p *Processor) Run(ctx context.Context, interval time.Duration, batchSize int) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	p.logger.Info("processor started", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		p.ProcessJobs(ctx, batchSize)

		select {
		case <-ctx.Done():
			p.logger.Info("processor shutting down")
			return nil
		case <-ticker.C:
		}
	}
}
