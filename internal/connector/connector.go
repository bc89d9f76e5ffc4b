// Package connector defines the engine's external integration points: the
// diagnosis provider, action connectors that mutate production systems, and
// the metric feed that guardrail evaluation reads from.
package connector

import (
	"context"

	"github.com/observeo/remedy-engine/internal/domain"
)

// DiagnosisProvider produces a root-cause analysis for an intent. The engine
// calls it at most once per diagnosis request, bounded by a timeout; failures
// surface to the caller rather than being retried.
type DiagnosisProvider interface {
	Diagnose(ctx context.Context, intent domain.Intent) (domain.Diagnosis, error)
}

// ActionConnector applies and reverts remediation steps against an external
// system. Implementations must be idempotent per step: the engine retries
// failed applications with backoff.
type ActionConnector interface {
	Name() string
	ApplyStep(ctx context.Context, step string) error
	SetRollout(ctx context.Context, target string, percent float64) error
	RevertStep(ctx context.Context, step string) error
}

// MetricFeed returns current values for the named metrics. A metric absent
// from the result is treated as a guardrail breach by the evaluator.
type MetricFeed interface {
	Snapshot(ctx context.Context, metrics []string) (domain.MetricSnapshot, error)
}
