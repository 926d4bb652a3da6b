package job

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
)

// Type identifies the payload shape of a job and the handler that runs it.
type Type string

const (
	TypeEmailSend         Type = "email-send"
	TypeComplianceExport  Type = "compliance-export"
	TypeReportExport      Type = "report-export"
	TypeWebhookDelivery   Type = "webhook-delivery"
	TypeAutomationTrigger Type = "automation-trigger"
)

// Types lists every known job type.
var Types = []Type{
	TypeEmailSend,
	TypeComplianceExport,
	TypeReportExport,
	TypeWebhookDelivery,
	TypeAutomationTrigger,
}

// Valid reports whether t is a known job type.
func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// Payload is implemented by one struct per job type. The queue stores
// payloads verbatim and never inspects them.
type Payload interface {
	JobType() Type
}

// EmailSendPayload carries a transactional email send.
type EmailSendPayload struct {
	To           string         `json:"to"`
	Subject      string         `json:"subject"`
	TemplateID   string         `json:"templateId"`
	TemplateData map[string]any `json:"templateData"`
}

func (EmailSendPayload) JobType() Type { return TypeEmailSend }

// ExportFormat is the output format of an export job.
type ExportFormat string

const (
	FormatPDF  ExportFormat = "pdf"
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
)

// ComplianceExportPayload requests generation of a framework compliance export.
type ComplianceExportPayload struct {
	OrganizationID string       `json:"organizationId"`
	FrameworkID    string       `json:"frameworkId"`
	Format         ExportFormat `json:"format"`
	RequestedBy    string       `json:"requestedBy"`
}

func (ComplianceExportPayload) JobType() Type { return TypeComplianceExport }

// ReportExportPayload requests a rendered report.
type ReportExportPayload struct {
	OrganizationID string         `json:"organizationId"`
	ReportID       string         `json:"reportId"`
	Format         ExportFormat   `json:"format"`
	RequestedBy    string         `json:"requestedBy"`
	Filters        map[string]any `json:"filters,omitempty"`
}

func (ReportExportPayload) JobType() Type { return TypeReportExport }

// WebhookDeliveryPayload is an outbound webhook call.
type WebhookDeliveryPayload struct {
	URL       string            `json:"url"`
	Event     string            `json:"event"`
	Body      json.RawMessage   `json:"body"`
	Headers   map[string]string `json:"headers,omitempty"`
	WebhookID string            `json:"webhookId,omitempty"`
}

func (WebhookDeliveryPayload) JobType() Type { return TypeWebhookDelivery }

// AutomationTriggerPayload fires a configured automation rule.
type AutomationTriggerPayload struct {
	OrganizationID string         `json:"organizationId"`
	AutomationID   string         `json:"automationId"`
	TriggerEvent   string         `json:"triggerEvent"`
	Context        map[string]any `json:"context,omitempty"`
}

func (AutomationTriggerPayload) JobType() Type { return TypeAutomationTrigger }

// ValidatePayload reports why p cannot be enqueued: it is nil, a nil
// pointer, or tagged with a type outside the closed set.
func ValidatePayload(p Payload) error {
	if p == nil {
		return errors.New("missing payload")
	}
	if v := reflect.ValueOf(p); v.Kind() == reflect.Pointer && v.IsNil() {
		return fmt.Errorf("nil %T payload", p)
	}
	if t := p.JobType(); !t.Valid() {
		return fmt.Errorf("unknown job type: %q", t)
	}
	return nil
}

// DecodePayload decodes raw into the payload struct registered for t.
func DecodePayload(t Type, raw json.RawMessage) (Payload, error) {
	var (
		p   Payload
		err error
	)
	switch t {
	case TypeEmailSend:
		var v EmailSendPayload
		err = decodeInto(raw, &v)
		p = v
	case TypeComplianceExport:
		var v ComplianceExportPayload
		err = decodeInto(raw, &v)
		p = v
	case TypeReportExport:
		var v ReportExportPayload
		err = decodeInto(raw, &v)
		p = v
	case TypeWebhookDelivery:
		var v WebhookDeliveryPayload
		err = decodeInto(raw, &v)
		p = v
	case TypeAutomationTrigger:
		var v AutomationTriggerPayload
		err = decodeInto(raw, &v)
		p = v
	default:
		return nil, fmt.Errorf("unknown job type: %q", t)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", t, err)
	}
	return p, nil
}

func decodeInto(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("empty payload")
	}
	return json.Unmarshal(raw, v)
}
