package guardrail

import (
	"reflect"
	"testing"

	"github.com/observeo/remedy-engine/internal/domain"
)

func thresholds() []domain.Threshold {
	return []domain.Threshold{
		{Key: "error_rate_max", Metric: "error_rate", Kind: domain.KindMax, Bound: 2.0},
		{Key: "latency_p95_delta_max", Metric: "latency_p95_delta", Kind: domain.KindMax, Bound: 50},
		{Key: "conversion_rate_min", Metric: "conversion_rate", Kind: domain.KindMin, Bound: 3.0},
	}
}

func TestEvaluate_AllWithinBounds(t *testing.T) {
	snapshot := domain.MetricSnapshot{Values: map[string]float64{
		"error_rate":        1.2,
		"latency_p95_delta": 12,
		"conversion_rate":   3.4,
	}}

	result := Evaluate(thresholds(), snapshot)
	if result.Verdict != domain.VerdictPass {
		t.Errorf("Verdict = %q, want %q", result.Verdict, domain.VerdictPass)
	}
	if len(result.BreachedKeys) != 0 {
		t.Errorf("BreachedKeys = %v, want empty", result.BreachedKeys)
	}
}

func TestEvaluate_ExactBoundPasses(t *testing.T) {
	snapshot := domain.MetricSnapshot{Values: map[string]float64{
		"error_rate":        2.0,
		"latency_p95_delta": 50,
		"conversion_rate":   3.0,
	}}

	result := Evaluate(thresholds(), snapshot)
	if result.Verdict != domain.VerdictPass {
		t.Errorf("value at bound breached: %v", result.BreachedKeys)
	}
}

func TestEvaluate_RecordsAllBreaches(t *testing.T) {
	snapshot := domain.MetricSnapshot{Values: map[string]float64{
		"error_rate":        4.5,
		"latency_p95_delta": 120,
		"conversion_rate":   2.1,
	}}

	result := Evaluate(thresholds(), snapshot)
	if result.Verdict != domain.VerdictBreach {
		t.Fatalf("Verdict = %q, want %q", result.Verdict, domain.VerdictBreach)
	}
	want := []string{"conversion_rate_min", "error_rate_max", "latency_p95_delta_max"}
	if !reflect.DeepEqual(result.BreachedKeys, want) {
		t.Errorf("BreachedKeys = %v, want %v", result.BreachedKeys, want)
	}
}

func TestEvaluate_MissingMetricFailsClosed(t *testing.T) {
	snapshot := domain.MetricSnapshot{Values: map[string]float64{
		"error_rate":      1.0,
		"conversion_rate": 3.5,
	}}

	result := Evaluate(thresholds(), snapshot)
	if result.Verdict != domain.VerdictBreach {
		t.Fatalf("Verdict = %q, want breach on missing metric", result.Verdict)
	}
	if !reflect.DeepEqual(result.BreachedKeys, []string{"latency_p95_delta_max"}) {
		t.Errorf("BreachedKeys = %v, want [latency_p95_delta_max]", result.BreachedKeys)
	}
}

func TestEvaluate_NoThresholds(t *testing.T) {
	result := Evaluate(nil, domain.MetricSnapshot{Values: map[string]float64{"error_rate": 99}})
	if result.Verdict != domain.VerdictPass {
		t.Errorf("Verdict = %q, want pass with no thresholds", result.Verdict)
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	snapshot := domain.MetricSnapshot{Values: map[string]float64{
		"error_rate":        4.5,
		"latency_p95_delta": 120,
		"conversion_rate":   2.1,
	}}

	first := Evaluate(thresholds(), snapshot)
	for i := 0; i < 10; i++ {
		got := Evaluate(thresholds(), snapshot)
		if !reflect.DeepEqual(got, first) {
			t.Fatalf("evaluation %d = %+v, want %+v", i, got, first)
		}
	}
}
