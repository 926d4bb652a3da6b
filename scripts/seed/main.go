// Script seed pushes sample jobs of every type to the API for development.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/leejennwah/compliance-queue/pkg/client"
)

func main() {
	apiURL := getEnv("API_URL", "http://localhost:8080")
	c := client.New(apiURL, client.WithActor("seed"))
	ctx := context.Background()

	samples := []struct {
		Type    string
		Payload map[string]any
	}{
		{"email-send", map[string]any{"to": "user@example.com", "subject": "Welcome", "templateId": "welcome", "templateData": map[string]any{"name": "Sam"}}},
		{"compliance-export", map[string]any{"organizationId": "org-demo", "frameworkId": "soc2", "format": "pdf", "requestedBy": "user-1"}},
		{"report-export", map[string]any{"organizationId": "org-demo", "reportId": "rpt-controls", "format": "csv", "requestedBy": "user-1"}},
		{"webhook-delivery", map[string]any{"url": "https://example.com/hooks/queue", "event": "control.updated", "body": map[string]any{"controlId": "ctl-1"}}},
		{"automation-trigger", map[string]any{"organizationId": "org-demo", "automationId": "auto-1", "triggerEvent": "evidence.expired"}},
	}

	enqueued := 0
	for i := 0; i < 20; i++ {
		s := samples[i%len(samples)]
		payload, _ := json.Marshal(s.Payload)

		req := &client.EnqueueJobRequest{
			Type:           s.Type,
			Payload:        payload,
			OrganizationID: "org-demo",
		}
		// Every fourth job is delayed to exercise scheduling.
		if i%4 == 3 {
			at := time.Now().Add(time.Duration(i) * time.Second)
			req.ScheduledAt = &at
		}

		resp, err := c.EnqueueJob(ctx, req)
		if err != nil {
			log.Printf("failed to enqueue job %d: %v", i, err)
			continue
		}
		if !resp.Success {
			log.Printf("job %s (type=%s) was not persisted", resp.JobID, s.Type)
			continue
		}
		enqueued++
		fmt.Printf("enqueued job %s (type=%s, scheduledAt=%s)\n", resp.JobID, s.Type, resp.ScheduledAt.Format(time.RFC3339))
	}

	stats, err := c.GetStats(ctx)
	if err != nil {
		log.Fatalf("failed to read stats: %v", err)
	}
	fmt.Printf("\nseed complete: %d jobs enqueued, %d pending\n", enqueued, stats.Pending)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
