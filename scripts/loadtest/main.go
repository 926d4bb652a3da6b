// Script loadtest pushes a high volume of jobs through the API to benchmark
// enqueue throughput. Jobs rotate through every job type.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leejennwah/compliance-queue/pkg/client"
)

const (
	defaultJobCount    = 50000
	defaultConcurrency = 100
	maxHTTPRetries     = 3
)

var jobTypes = []string{"email-send", "compliance-export", "report-export", "webhook-delivery", "automation-trigger"}

func main() {
	apiURL := getEnv("API_URL", "http://localhost:8080")
	jobCount := getInt("JOB_COUNT", defaultJobCount)
	concurrency := getInt("CONCURRENCY", defaultConcurrency)

	fmt.Printf("=== Queue Load Test ===\n")
	fmt.Printf("Target:      %s\n", apiURL)
	fmt.Printf("Total Jobs:  %d\n", jobCount)
	fmt.Printf("Concurrency: %d\n\n", concurrency)

	ctx := context.Background()
	c := client.New(apiURL,
		client.WithActor("loadtest"),
		client.WithHTTPClient(&http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        concurrency * 2,
				MaxIdleConnsPerHost: concurrency * 2,
				MaxConnsPerHost:     concurrency * 2,
				IdleConnTimeout:     90 * time.Second,
			},
		}),
	)

	var (
		persisted   int64
		notStored   int64
		httpFail    int64
		httpRetries int64
		byType      sync.Map
		wg          sync.WaitGroup
		sem         = make(chan struct{}, concurrency)
	)

	start := time.Now()

	for i := 0; i < jobCount; i++ {
		wg.Add(1)
		sem <- struct{}{}

		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			jobType := jobTypes[idx%len(jobTypes)]
			req := &client.EnqueueJobRequest{
				Type:           jobType,
				Payload:        samplePayload(jobType, idx),
				OrganizationID: fmt.Sprintf("org-%d", idx%10),
			}

			var (
				resp    *client.EnqueueResponse
				lastErr error
			)
			for attempt := 0; attempt <= maxHTTPRetries; attempt++ {
				if attempt > 0 {
					atomic.AddInt64(&httpRetries, 1)
					time.Sleep(time.Duration(attempt*50) * time.Millisecond)
				}
				resp, lastErr = c.EnqueueJob(ctx, req)
				if lastErr == nil {
					break
				}
			}

			switch {
			case lastErr != nil:
				atomic.AddInt64(&httpFail, 1)
			case resp.Success:
				atomic.AddInt64(&persisted, 1)
				n, _ := byType.LoadOrStore(jobType, new(int64))
				atomic.AddInt64(n.(*int64), 1)
			default:
				atomic.AddInt64(&notStored, 1)
			}

			count := atomic.LoadInt64(&persisted) + atomic.LoadInt64(&notStored) + atomic.LoadInt64(&httpFail)
			if count%10000 == 0 {
				elapsed := time.Since(start)
				rate := float64(count) / elapsed.Seconds() * 60
				fmt.Printf("  Progress: %d/%d jobs sent (%.0f jobs/min)\n", count, jobCount, rate)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	fmt.Printf("\n=== Enqueue Results ===\n")
	fmt.Printf("Duration:       %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("Persisted:      %d / %d\n", persisted, jobCount)
	fmt.Printf("Not persisted:  %d\n", notStored)
	fmt.Printf("HTTP failures:  %d\n", httpFail)
	fmt.Printf("HTTP retries:   %d\n", httpRetries)
	fmt.Printf("Throughput:     %.0f jobs/min\n", float64(persisted)/elapsed.Seconds()*60)

	fmt.Printf("\n--- By type ---\n")
	for _, t := range jobTypes {
		if n, ok := byType.Load(t); ok {
			fmt.Printf("%-20s %d\n", t, atomic.LoadInt64(n.(*int64)))
		}
	}

	if stats, err := c.GetStats(ctx); err == nil {
		fmt.Printf("\n--- Queue ---\n")
		fmt.Printf("Pending:        %d\n", stats.Pending)
		fmt.Printf("Processing:     %d\n", stats.Processing)
		fmt.Printf("Dead:           %d\n", stats.Dead)
	}

	if httpFail > 0 || notStored > 0 {
		fmt.Printf("\nWARNING: %d jobs were not stored\n", httpFail+notStored)
		os.Exit(1)
	}
}

func samplePayload(jobType string, idx int) json.RawMessage {
	var p map[string]any
	switch jobType {
	case "email-send":
		p = map[string]any{"to": fmt.Sprintf("user%d@example.com", idx), "subject": "Load test", "templateId": "digest"}
	case "compliance-export":
		p = map[string]any{"organizationId": "org-load", "frameworkId": "iso27001", "format": "pdf", "requestedBy": "loadtest"}
	case "report-export":
		p = map[string]any{"organizationId": "org-load", "reportId": fmt.Sprintf("rpt-%d", idx), "format": "json", "requestedBy": "loadtest"}
	case "webhook-delivery":
		p = map[string]any{"url": "https://example.com/hooks/load", "event": "load.test", "body": map[string]any{"index": idx}}
	default:
		p = map[string]any{"organizationId": "org-load", "automationId": "auto-load", "triggerEvent": "load.test"}
	}
	data, _ := json.Marshal(p)
	return data
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil && n > 0 {
		return n
	}
	return fallback
}
