package metrics

import (
	"time"

	apperrors "github.com/datamed/datamed-api/internal/errors"
	obserrors "github.com/datamed/datamed-api/internal/observability/errors"
	"github.com/datamed/datamed-api/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess  = "success"
	ResultError    = "error"
	ResultRejected = "rejected"
)

// AuthMetric describes one authentication decision.
type AuthMetric struct {
	Mode string // local | keycloak
	Err  error
}

// EmitAuthDecision counts an authentication attempt, tagged with the failure code.
func EmitAuthDecision(sink statsd.Sink, in AuthMetric) {
	if sink == nil {
		return
	}
	tags := map[string]string{"mode": in.Mode, "result": ResultSuccess}
	if in.Err != nil {
		tags["result"] = ResultRejected
		tags["code"] = errorCode(in.Err)
	}
	sink.Count("auth.decision", 1, tags)
}

// RateLimitMetric describes one rate limit check.
type RateLimitMetric struct {
	Scope   string // policy name, e.g. "default" or "auth"
	Allowed bool
	Err     error
}

// EmitRateLimit counts a rate limit decision.
func EmitRateLimit(sink statsd.Sink, in RateLimitMetric) {
	if sink == nil {
		return
	}
	result := ResultSuccess
	switch {
	case in.Err != nil:
		result = ResultError
	case !in.Allowed:
		result = ResultRejected
	}
	sink.Count("ratelimit.decision", 1, map[string]string{"scope": in.Scope, "result": result})
}

// AccountMetric describes an account lifecycle operation.
type AccountMetric struct {
	Operation string // register | login | change_password | delete | find
	Duration  time.Duration
	Err       error
}

// EmitAccountOp emits a counter and, when known, a timing for an account operation.
func EmitAccountOp(sink statsd.Sink, in AccountMetric) {
	if sink == nil {
		return
	}
	tags := map[string]string{"operation": in.Operation, "result": ResultSuccess}
	if in.Err != nil {
		tags["result"] = ResultError
		tags["code"] = errorCode(in.Err)
	}
	sink.Count("account.operation", 1, tags)
	if in.Duration > 0 {
		sink.Timing("account.duration", in.Duration, CloneTags(tags))
	}
}

// CloneTags creates a shallow copy of a tag map, filtering out empty keys.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		if k == "" {
			continue
		}
		out[k] = v
	}
	return out
}

func errorCode(err error) string {
	if code := apperrors.GetCode(err); code != "" {
		return string(code)
	}
	return obserrors.Classify(err)
}
