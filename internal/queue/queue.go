// Package queue implements the job queue client over a Redis sorted-set
// layout shared with the workers.
//
// Layout:
//
//	queue:pending     ZSET  member = job id, score = scheduledAt (epoch ms)
//	queue:processing  ZSET  member = job id, score = startedAt (epoch ms)
//	queue:dead        ZSET  member = job id, score = failedAt (epoch ms)
//	queue:job:{id}    STRING  JSON job record, expires after its TTL
//	queue:metrics:*   STRING  monotonic counters
//
// These keys are the contract between producers and workers and must not
// change without a migration.
package queue

const (
	PendingKey    = "queue:pending"
	ProcessingKey = "queue:processing"
	DeadKey       = "queue:dead"
	JobKeyPrefix  = "queue:job:"

	MetricsKeyPrefix    = "queue:metrics:"
	ProcessedCounterKey = MetricsKeyPrefix + "completed"
	FailedCounterKey    = MetricsKeyPrefix + "dead"
	RetriedCounterKey   = MetricsKeyPrefix + "retried"
)

// JobKey returns the record key for a job id.
func JobKey(id string) string {
	return JobKeyPrefix + id
}
