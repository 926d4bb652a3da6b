package processor

import (
	"context"

	"go.uber.org/zap"

	"github.com/leejennwah/compliance-queue/internal/job"
)

// StatusResult is the result recorded by the default handlers.
type StatusResult struct {
	Status string `json:"status"`
}

// DefaultHandlers returns placeholder handlers for every job type. They log
// the job and report a fixed status; real integrations replace them with
// RegisterHandler.
func DefaultHandlers(logger *zap.Logger) map[job.Type]Handler {
	stub := func(status string) Handler {
		return func(_ context.Context, j *job.Job) (any, error) {
			logger.Info("handled job",
				zap.String("job_id", j.ID),
				zap.String("type", string(j.Type)),
				zap.Any("payload", j.Payload),
			)
			return StatusResult{Status: status}, nil
		}
	}

	return map[job.Type]Handler{
		job.TypeComplianceExport:  stub("exported"),
		job.TypeReportExport:      stub("exported"),
		job.TypeEmailSend:         stub("sent"),
		job.TypeWebhookDelivery:   stub("delivered"),
		job.TypeAutomationTrigger: stub("triggered"),
	}
}
