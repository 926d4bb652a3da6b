// Package api exposes the queue's admin HTTP endpoints.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/leejennwah/compliance-queue/internal/audit"
	"github.com/leejennwah/compliance-queue/internal/job"
	"github.com/leejennwah/compliance-queue/internal/processor"
	"github.com/leejennwah/compliance-queue/internal/queue"
)

const defaultActor = "api"

// Queue is the queue surface served over HTTP.
type Queue interface {
	Enqueue(ctx context.Context, payload job.Payload, opts queue.EnqueueOptions) queue.EnqueueResult
	GetJob(ctx context.Context, id string) *job.Job
	GetStats(ctx context.Context) queue.Stats
	ListDeadJobs(ctx context.Context, limit int) []*job.Job
	RetryDeadJob(ctx context.Context, id string) bool
}

// Processor runs one batch on demand.
type Processor interface {
	ProcessJobs(ctx context.Context, batchSize int) processor.Result
}

// Handler serves the admin API.
type Handler struct {
	queue     Queue
	processor Processor
	events    audit.Repository
	batchSize int
	logger    *zap.Logger
}

// NewHandler creates a handler. A nil events repository disables auditing.
func NewHandler(q Queue, p Processor, events audit.Repository, batchSize int, logger *zap.Logger) *Handler {
	if events == nil {
		events = audit.Nop{}
	}
	return &Handler{
		queue:     q,
		processor: p,
		events:    events,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Router returns the routes, including /metrics.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", h.health).Methods("GET")
	r.HandleFunc("/api/v1/jobs", h.enqueueJob).Methods("POST")
	r.HandleFunc("/api/v1/jobs/{id}", h.getJob).Methods("GET")
	r.HandleFunc("/api/v1/queue/stats", h.stats).Methods("GET")
	r.HandleFunc("/api/v1/queue/dead", h.listDead).Methods("GET")
	r.HandleFunc("/api/v1/queue/dead/{id}/retry", h.retryDead).Methods("POST")
	r.HandleFunc("/api/v1/queue/process", h.process).Methods("POST")
	r.HandleFunc("/api/v1/queue/events", h.listEvents).Methods("GET")
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// EnqueueRequest is the body of POST /api/v1/jobs.
type EnqueueRequest struct {
	Type           job.Type        `json:"type"`
	Payload        json.RawMessage `json:"payload"`
	ScheduledAt    *time.Time      `json:"scheduledAt,omitempty"`
	MaxAttempts    int             `json:"maxAttempts,omitempty"`
	TTLSeconds     int             `json:"ttlSeconds,omitempty"`
	OrganizationID string          `json:"organizationId,omitempty"`
}

func (h *Handler) enqueueJob(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %s", err))
		return
	}

	if req.Type == "" {
		writeError(w, http.StatusBadRequest, "type is required")
		return
	}
	if !req.Type.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown job type: %s", req.Type))
		return
	}

	payload, err := job.DecodePayload(req.Type, req.Payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	opts := queue.EnqueueOptions{
		MaxAttempts:    req.MaxAttempts,
		TTLSeconds:     req.TTLSeconds,
		OrganizationID: req.OrganizationID,
	}
	if req.ScheduledAt != nil {
		opts.ScheduledAt = *req.ScheduledAt
	}

	ctx := r.Context()
	res := h.queue.Enqueue(ctx, payload, opts)

	eventType := audit.EventEnqueued
	if !res.Success {
		eventType = audit.EventEnqueueFailed
	}
	e := audit.NewEvent(eventType, res.JobID, string(req.Type))
	e.OrganizationID = req.OrganizationID
	e.Actor = actor(r)
	h.record(ctx, e)

	// Enqueue is fire-and-forget for callers; a degraded store is reported
	// in the body, not the status.
	writeJSON(w, http.StatusAccepted, res)
}

func (h *Handler) getJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	j := h.queue.GetJob(r.Context(), id)
	if j == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("job not found: %s", id))
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.queue.GetStats(r.Context()))
}

func (h *Handler) listDead(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	jobs := h.queue.ListDeadJobs(r.Context(), limit)
	if jobs == nil {
		jobs = []*job.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (h *Handler) retryDead(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ctx := r.Context()

	if !h.queue.RetryDeadJob(ctx, id) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("dead job not found: %s", id))
		return
	}

	e := audit.NewEvent(audit.EventRetried, id, "")
	if j := h.queue.GetJob(ctx, id); j != nil {
		e.JobType = string(j.Type)
		e.OrganizationID = j.OrganizationID
	}
	e.Actor = actor(r)
	h.record(ctx, e)

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "jobId": id})
}

func (h *Handler) process(w http.ResponseWriter, r *http.Request) {
	batchSize, err := intParam(r, "batchSize")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if batchSize <= 0 {
		batchSize = h.batchSize
	}

	writeJSON(w, http.StatusOK, h.processor.ProcessJobs(r.Context(), batchSize))
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	events, err := h.events.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.Error("list events failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// record stores an audit event. Failures are logged and never surface to
// the caller.
func (h *Handler) record(ctx context.Context, e *audit.Event) {
	if err := h.events.Record(ctx, e); err != nil {
		h.logger.Warn("failed to record queue event",
			zap.String("type", string(e.Type)),
			zap.String("job_id", e.JobID),
			zap.Error(err),
		)
	}
}

func actor(r *http.Request) string {
	if a := r.Header.Get("X-Actor"); a != "" {
		return a
	}
	return defaultActor
}

func intParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %s", name, raw)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
