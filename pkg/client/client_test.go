package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEnqueueJob(t *testing.T) {
	var got EnqueueJobRequest
	var actor string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/jobs" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		actor = r.Header.Get("X-Actor")
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"success":false,"jobId":"job_1","scheduledAt":"2026-05-01T09:00:00Z"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, WithActor("seed"))
	resp, err := c.EnqueueJob(context.Background(), &EnqueueJobRequest{
		Type:        "email-send",
		Payload:     json.RawMessage(`{"to":"a@b.c"}`),
		MaxAttempts: 2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Success || resp.JobID != "job_1" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if got.Type != "email-send" || got.MaxAttempts != 2 {
		t.Errorf("unexpected request body: %+v", got)
	}
	if actor != "seed" {
		t.Errorf("expected actor header, got %q", actor)
	}
}

func TestGetJob_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"job not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New(srv.URL).GetJob(context.Background(), "job_missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"pending":5,"processing":2,"dead":1,"totalProcessed":42,"totalFailed":3}`))
	}))
	defer srv.Close()

	stats, err := New(srv.URL).GetStats(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := StatsResponse{Pending: 5, Processing: 2, Dead: 1, TotalProcessed: 42, TotalFailed: 3}
	if *stats != want {
		t.Errorf("expected %+v, got %+v", want, *stats)
	}
}

func TestListDeadJobs(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		w.Write([]byte(`[{"id":"job_a","type":"webhook-delivery","state":"dead","attempts":3}]`))
	}))
	defer srv.Close()

	jobs, err := New(srv.URL).ListDeadJobs(context.Background(), 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if query != "limit=5" {
		t.Errorf("expected limit query, got %q", query)
	}
	if len(jobs) != 1 || jobs[0].ID != "job_a" || jobs[0].State != "dead" {
		t.Errorf("unexpected jobs: %+v", jobs)
	}
}

func TestListEvents(t *testing.T) {
	var path, query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path, query = r.URL.Path, r.URL.RawQuery
		w.Write([]byte(`[{"id":"0b7f6c2e-8a1d-4c1e-9f7a-2d3c4b5a6978","type":"queue_job.retried","jobId":"job_a","jobType":"email-send","actor":"admin","createdAt":"2026-05-01T09:00:00Z"}]`))
	}))
	defer srv.Close()

	events, err := New(srv.URL).ListEvents(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "/api/v1/queue/events" || query != "limit=10" {
		t.Errorf("unexpected request %s?%s", path, query)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if e := events[0]; e.Type != "queue_job.retried" || e.JobID != "job_a" || e.Actor != "admin" || e.CreatedAt.IsZero() {
		t.Errorf("unexpected event: %+v", e)
	}
}

func TestRetryDeadJob(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		if r.URL.Path == "/api/v1/queue/dead/job_gone/retry" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	if err := c.RetryDeadJob(context.Background(), "job_a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "/api/v1/queue/dead/job_a/retry" {
		t.Errorf("unexpected path %q", path)
	}
	if err := c.RetryDeadJob(context.Background(), "job_gone"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestProcessQueue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.RawQuery != "batchSize=3" {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		w.Write([]byte(`{"processed":3,"succeeded":2,"failed":1,"movedToDead":1,"errors":["boom"]}`))
	}))
	defer srv.Close()

	res, err := New(srv.URL).ProcessQueue(context.Background(), 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Processed != 3 || res.MovedToDead != 1 || len(res.Errors) != 1 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestUnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := New(srv.URL).GetStats(context.Background())
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("expected status error, got %v", err)
	}
}
