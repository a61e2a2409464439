package notify

import (
	"context"
	"time"
)

// Severity constants recognised by downstream sinks.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

// AbuseAlertPayload captures the data emitted when one client keeps hitting rate limits.
type AbuseAlertPayload struct {
	ClientKey      string
	Classification string
	Endpoint       string
	Violations     int
	Window         time.Duration
	Severity       string
	OccurredAt     time.Time
	Metadata       map[string]string
}

// Sink describes a destination capable of consuming abuse alerts.
type Sink interface {
	SendAbuseAlert(ctx context.Context, payload AbuseAlertPayload) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, payload AbuseAlertPayload) error

// SendAbuseAlert implements the Sink interface.
func (f SinkFunc) SendAbuseAlert(ctx context.Context, payload AbuseAlertPayload) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}
