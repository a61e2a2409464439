package metrics

import (
	obserrors "github.com/dernekportal/portal-api/internal/observability/errors"
	"github.com/dernekportal/portal-api/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultAllow = "allow"
	ResultDeny  = "deny"
)

// AuthMetric captures one guard decision.
type AuthMetric struct {
	Result string
	Kind   string
	Err    error
}

// EmitAuthDecision emits the auth.decision counter.
func EmitAuthDecision(sink statsd.Sink, in AuthMetric) {
	if sink == nil {
		return
	}
	tags := map[string]string{"result": in.Result}
	if in.Kind != "" {
		tags["kind"] = in.Kind
	}
	if in.Err != nil {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}
	sink.Count("auth.decision", 1, tags)
}

// EmitViolation emits the ratelimit.violation counter.
func EmitViolation(sink statsd.Sink, classification, outcome string) {
	if sink == nil {
		return
	}
	sink.Count("ratelimit.violation", 1, map[string]string{
		"classification": classification,
		"outcome":        outcome,
	})
}
