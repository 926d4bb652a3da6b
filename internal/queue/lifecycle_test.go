package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/leejennwah/compliance-queue/internal/job"
)

func newClockedFixture(t *testing.T, cfg Config) (*fixture, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	return newFixture(t, cfg, WithClock(clock.Now)), clock
}

func TestFetchPendingJobs(t *testing.T) {
	f, clock := newClockedFixture(t, Config{})
	ctx := context.Background()
	now := clock.Now()

	late := f.client.Enqueue(ctx, emailPayload(), EnqueueOptions{ScheduledAt: now.Add(2 * time.Second)})
	early := f.client.Enqueue(ctx, emailPayload(), EnqueueOptions{ScheduledAt: now.Add(time.Second)})
	future := f.client.Enqueue(ctx, emailPayload(), EnqueueOptions{ScheduledAt: now.Add(time.Hour)})

	if jobs := f.client.FetchPendingJobs(ctx, 0); len(jobs) != 0 {
		t.Fatalf("expected nothing due yet, got %d jobs", len(jobs))
	}

	clock.Advance(5 * time.Second)
	jobs := f.client.FetchPendingJobs(ctx, 0)
	if len(jobs) != 2 {
		t.Fatalf("expected 2 due jobs, got %d", len(jobs))
	}
	if jobs[0].ID != early.JobID || jobs[1].ID != late.JobID {
		t.Errorf("expected earliest first, got %s, %s", jobs[0].ID, jobs[1].ID)
	}
	for _, j := range jobs {
		if j.State != job.StateProcessing || j.Attempts != 1 || j.StartedAt == nil {
			t.Errorf("expected claimed job, got %+v", j)
		}
	}

	stats := f.client.GetStats(ctx)
	if stats.Pending != 1 || stats.Processing != 2 {
		t.Errorf("expected 1 pending / 2 processing, got %+v", stats)
	}
	if stored := f.client.GetJob(ctx, early.JobID); stored == nil || stored.State != job.StateProcessing {
		t.Errorf("expected stored state processing, got %+v", stored)
	}
	if ttl := f.mr.TTL(JobKey(early.JobID)); ttl <= 0 {
		t.Errorf("expected record ttl to survive the claim, got %s", ttl)
	}
	if members, _ := f.mr.ZMembers(PendingKey); len(members) != 1 || members[0] != future.JobID {
		t.Errorf("expected only the future job pending, got %v", members)
	}
}

func TestFetchPendingJobs_ReleasesClaimOnSaveFailure(t *testing.T) {
	f, clock := newClockedFixture(t, Config{})
	ctx := context.Background()

	res := f.client.Enqueue(ctx, emailPayload(), EnqueueOptions{})
	clock.Advance(time.Second)

	f.rec.failWith(errors.New("blip"))
	if jobs := f.client.FetchPendingJobs(ctx, 0); len(jobs) != 0 {
		t.Fatalf("expected no claimed jobs, got %d", len(jobs))
	}

	members, _ := f.mr.ZMembers(PendingKey)
	if len(members) != 1 || members[0] != res.JobID {
		t.Errorf("expected job back in pending, got %v", members)
	}
	if got, _ := f.mr.ZScore(PendingKey, res.JobID); got != score(res.ScheduledAt) {
		t.Errorf("expected original score %v, got %v", score(res.ScheduledAt), got)
	}
	if f.mr.Exists(ProcessingKey) {
		t.Error("expected nothing processing")
	}

	f.rec.failWith(nil)
	jobs := f.client.FetchPendingJobs(ctx, 0)
	if len(jobs) != 1 || jobs[0].ID != res.JobID {
		t.Errorf("expected the job to be claimable again, got %v", jobs)
	}
}

func TestFetchPendingJobs_BatchSize(t *testing.T) {
	f, clock := newClockedFixture(t, Config{BatchSize: 2})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		f.client.Enqueue(ctx, emailPayload(), EnqueueOptions{})
	}
	clock.Advance(time.Second)

	if jobs := f.client.FetchPendingJobs(ctx, 0); len(jobs) != 2 {
		t.Errorf("expected configured batch of 2, got %d", len(jobs))
	}
	if jobs := f.client.FetchPendingJobs(ctx, 3); len(jobs) != 3 {
		t.Errorf("expected explicit batch of 3, got %d", len(jobs))
	}
}

func TestFetchPendingJobs_SkipsExpiredRecords(t *testing.T) {
	f, clock := newClockedFixture(t, Config{})
	ctx := context.Background()

	res := f.client.Enqueue(ctx, emailPayload(), EnqueueOptions{})
	f.mr.Del(JobKey(res.JobID))
	clock.Advance(time.Second)

	if jobs := f.client.FetchPendingJobs(ctx, 0); len(jobs) != 0 {
		t.Errorf("expected no jobs, got %d", len(jobs))
	}
	if n, _ := f.rdb.ZCard(ctx, PendingKey).Result(); n != 0 {
		t.Errorf("expected orphan pending entry removed, got %d", n)
	}
}

func TestCompleteJob(t *testing.T) {
	f, clock := newClockedFixture(t, Config{})
	ctx := context.Background()

	res := f.client.Enqueue(ctx, exportPayload(), EnqueueOptions{TTLSeconds: 600})
	clock.Advance(time.Second)
	f.client.FetchPendingJobs(ctx, 0)

	if ok := f.client.CompleteJob(ctx, res.JobID, json.RawMessage(`{"status":"exported"}`)); !ok {
		t.Fatal("expected completion to be recorded")
	}

	j := f.client.GetJob(ctx, res.JobID)
	if j == nil || j.State != job.StateCompleted || j.CompletedAt == nil {
		t.Fatalf("expected completed job, got %+v", j)
	}
	if string(j.Result) != `{"status":"exported"}` {
		t.Errorf("unexpected result %s", j.Result)
	}
	if ttl := f.mr.TTL(JobKey(res.JobID)); ttl != 600*time.Second {
		t.Errorf("expected ttl reset to 600s, got %s", ttl)
	}

	stats := f.client.GetStats(ctx)
	if stats.Processing != 0 || stats.TotalProcessed != 1 {
		t.Errorf("expected processed counter bumped, got %+v", stats)
	}

	if ok := f.client.CompleteJob(ctx, res.JobID, nil); ok {
		t.Error("expected completing a completed job to be rejected")
	}
	if ok := f.client.CompleteJob(ctx, "job_missing", nil); ok {
		t.Error("expected completing a missing job to be rejected")
	}
}

func TestFailJob_RetriesWithBackoff(t *testing.T) {
	f, clock := newClockedFixture(t, Config{MaxAttempts: 3, BaseBackoff: time.Second})
	ctx := context.Background()

	res := f.client.Enqueue(ctx, emailPayload(), EnqueueOptions{})
	clock.Advance(time.Second)
	f.client.FetchPendingJobs(ctx, 0)

	if got := f.client.FailJob(ctx, res.JobID, "smtp timeout"); got != OutcomeRetrying {
		t.Fatalf("expected retrying, got %s", got)
	}

	j := f.client.GetJob(ctx, res.JobID)
	if j == nil || j.State != job.StatePending || j.LastError != "smtp timeout" {
		t.Fatalf("expected requeued job, got %+v", j)
	}

	// One attempt so far: base * 2^1.
	wantRunAt := clock.Now().Add(2 * time.Second)
	score, err := f.mr.ZScore(PendingKey, res.JobID)
	if err != nil {
		t.Fatalf("expected job back in pending: %v", err)
	}
	if int64(score) != wantRunAt.UnixMilli() {
		t.Errorf("expected score %d, got %d", wantRunAt.UnixMilli(), int64(score))
	}
	if got, _ := f.mr.Get(RetriedCounterKey); got != "1" {
		t.Errorf("expected retried counter 1, got %q", got)
	}
	if n, _ := f.rdb.ZCard(ctx, ProcessingKey).Result(); n != 0 {
		t.Errorf("expected processing set empty, got %d", n)
	}
}

func TestFailJob_DeadLetterAfterMaxAttempts(t *testing.T) {
	f, clock := newClockedFixture(t, Config{MaxAttempts: 1})
	ctx := context.Background()

	res := f.client.Enqueue(ctx, emailPayload(), EnqueueOptions{})
	clock.Advance(time.Second)
	f.client.FetchPendingJobs(ctx, 0)

	if got := f.client.FailJob(ctx, res.JobID, "bounced"); got != OutcomeDead {
		t.Fatalf("expected dead, got %s", got)
	}

	j := f.client.GetJob(ctx, res.JobID)
	if j == nil || j.State != job.StateDead {
		t.Fatalf("expected dead job, got %+v", j)
	}

	stats := f.client.GetStats(ctx)
	want := Stats{Dead: 1, TotalFailed: 1}
	if stats != want {
		t.Errorf("expected %+v, got %+v", want, stats)
	}
}

func TestFailJob_MissingRecord(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	f.mr.ZAdd(ProcessingKey, 1, "job_gone")

	if got := f.client.FailJob(ctx, "job_gone", "boom"); got != OutcomeDead {
		t.Errorf("expected dead, got %s", got)
	}
	if n, _ := f.rdb.ZCard(ctx, ProcessingKey).Result(); n != 0 {
		t.Errorf("expected processing entry dropped, got %d", n)
	}
}

func TestRecoverStaleJobs(t *testing.T) {
	f, clock := newClockedFixture(t, Config{ProcessingTimeout: time.Minute})
	ctx := context.Background()

	stale := f.client.Enqueue(ctx, emailPayload(), EnqueueOptions{})
	clock.Advance(time.Second)
	f.client.FetchPendingJobs(ctx, 0)

	clock.Advance(30 * time.Second)
	fresh := f.client.Enqueue(ctx, emailPayload(), EnqueueOptions{})
	clock.Advance(time.Second)
	f.client.FetchPendingJobs(ctx, 0)

	if n := f.client.RecoverStaleJobs(ctx); n != 0 {
		t.Fatalf("expected nothing stale yet, got %d", n)
	}

	clock.Advance(40 * time.Second)
	if n := f.client.RecoverStaleJobs(ctx); n != 1 {
		t.Fatalf("expected 1 recovered job, got %d", n)
	}

	if j := f.client.GetJob(ctx, stale.JobID); j == nil || j.State != job.StatePending {
		t.Errorf("expected stale job requeued, got %+v", j)
	}
	if j := f.client.GetJob(ctx, fresh.JobID); j == nil || j.State != job.StateProcessing {
		t.Errorf("expected fresh job still processing, got %+v", j)
	}
}

func TestDeadLetterAdmin(t *testing.T) {
	f, clock := newClockedFixture(t, Config{MaxAttempts: 1})
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		res := f.client.Enqueue(ctx, emailPayload(), EnqueueOptions{})
		clock.Advance(time.Second)
		f.client.FetchPendingJobs(ctx, 0)
		f.client.FailJob(ctx, res.JobID, "bounced")
		ids = append(ids, res.JobID)
	}

	dead := f.client.ListDeadJobs(ctx, 0)
	if len(dead) != 3 {
		t.Fatalf("expected 3 dead jobs, got %d", len(dead))
	}
	if dead[0].ID != ids[2] {
		t.Errorf("expected newest first, got %s", dead[0].ID)
	}
	if limited := f.client.ListDeadJobs(ctx, 2); len(limited) != 2 {
		t.Errorf("expected limit 2, got %d", len(limited))
	}

	if ok := f.client.RetryDeadJob(ctx, ids[0]); !ok {
		t.Fatal("expected dead job to be retried")
	}
	j := f.client.GetJob(ctx, ids[0])
	if j == nil || j.State != job.StatePending || j.Attempts != 0 || j.LastError != "" {
		t.Errorf("expected reset pending job, got %+v", j)
	}
	if ok := f.client.RetryDeadJob(ctx, ids[0]); ok {
		t.Error("expected retrying a pending job to be rejected")
	}
	if ok := f.client.RetryDeadJob(ctx, "job_missing"); ok {
		t.Error("expected retrying a missing job to be rejected")
	}

	f.mr.Del(JobKey(ids[1]))
	if n := f.client.CleanupExpiredDeadJobs(ctx); n != 1 {
		t.Errorf("expected 1 cleaned entry, got %d", n)
	}
	if n := f.client.CleanupExpiredDeadJobs(ctx); n != 0 {
		t.Errorf("expected nothing left to clean, got %d", n)
	}

	stats := f.client.GetStats(ctx)
	if stats.Dead != 1 || stats.Pending != 1 {
		t.Errorf("expected 1 dead / 1 pending, got %+v", stats)
	}
}

func TestLifecycle_NoStore(t *testing.T) {
	c := New(Config{})
	ctx := context.Background()

	if jobs := c.FetchPendingJobs(ctx, 5); jobs != nil {
		t.Errorf("expected no jobs, got %v", jobs)
	}
	if c.CompleteJob(ctx, "job_a", nil) {
		t.Error("expected complete to report false")
	}
	if got := c.FailJob(ctx, "job_a", "x"); got != OutcomeDead {
		t.Errorf("expected dead, got %s", got)
	}
	if n := c.RecoverStaleJobs(ctx); n != 0 {
		t.Errorf("expected 0, got %d", n)
	}
	if jobs := c.ListDeadJobs(ctx, 5); jobs != nil {
		t.Errorf("expected no dead jobs, got %v", jobs)
	}
	if c.RetryDeadJob(ctx, "job_a") {
		t.Error("expected retry to report false")
	}
	if n := c.CleanupExpiredDeadJobs(ctx); n != 0 {
		t.Errorf("expected 0, got %d", n)
	}
}

func TestLifecycle_StoreErrors(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	f.mr.SetError("ERR down")

	if jobs := f.client.FetchPendingJobs(ctx, 5); jobs != nil {
		t.Errorf("expected no jobs, got %v", jobs)
	}
	if got := f.client.FailJob(ctx, "job_a", "x"); got != OutcomeDead {
		t.Errorf("expected dead, got %s", got)
	}
	if n := f.client.RecoverStaleJobs(ctx); n != 0 {
		t.Errorf("expected 0, got %d", n)
	}
	if jobs := f.client.ListDeadJobs(ctx, 5); jobs != nil {
		t.Errorf("expected no dead jobs, got %v", jobs)
	}
	if n := f.client.CleanupExpiredDeadJobs(ctx); n != 0 {
		t.Errorf("expected 0, got %d", n)
	}
}
