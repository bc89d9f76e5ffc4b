// Package guardrail evaluates metric snapshots against plan guardrail
// thresholds. Evaluation is pure and deterministic: the same thresholds and
// snapshot always yield the same verdict.
package guardrail

import (
	"sort"

	"github.com/observeo/remedy-engine/internal/domain"
)

// Evaluate checks every threshold against the snapshot and returns the
// verdict with all breached keys, not just the first. A metric missing from
// the snapshot fails closed: its threshold counts as breached.
func Evaluate(thresholds []domain.Threshold, snapshot domain.MetricSnapshot) domain.EvalResult {
	var breached []string
	for _, th := range thresholds {
		value, ok := snapshot.Values[th.Metric]
		if !ok {
			breached = append(breached, th.Key)
			continue
		}
		if breachesThreshold(th, value) {
			breached = append(breached, th.Key)
		}
	}

	if len(breached) == 0 {
		return domain.EvalResult{Verdict: domain.VerdictPass}
	}
	sort.Strings(breached)
	return domain.EvalResult{Verdict: domain.VerdictBreach, BreachedKeys: breached}
}

func breachesThreshold(th domain.Threshold, value float64) bool {
	switch th.Kind {
	case domain.KindMax:
		return value > th.Bound
	case domain.KindMin:
		return value < th.Bound
	default:
		// Unknown threshold kinds fail closed too.
		return true
	}
}
