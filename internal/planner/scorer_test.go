package planner

import (
	"reflect"
	"testing"
	"time"

	"github.com/observeo/remedy-engine/internal/domain"
)

func testDiagnosis() domain.Diagnosis {
	return domain.Diagnosis{
		ID:       "diag-001",
		IntentID: "intent-001",
		Hypotheses: []domain.Hypothesis{
			{Hypothesis: "Payment provider error rate is filtering out completions", Evidence: "5xx doubled", Confidence: 0.31},
			{Hypothesis: "Flag gradual_onboarding_v2 ramp coincides with the drop", Evidence: "50% rollout", Confidence: 0.72},
			{Hypothesis: "Checkout latency increase suppresses conversion", Evidence: "p95 rose 40ms", Confidence: 0.55},
		},
	}
}

func TestBuildPlans_OrderedByRisk(t *testing.T) {
	intent := domain.Intent{ID: "intent-001", GoalMetric: "conversion_rate"}
	plans := BuildPlans(intent, testDiagnosis(), time.Unix(1700000000, 0))

	if len(plans) != 3 {
		t.Fatalf("len(plans) = %d, want 3", len(plans))
	}
	for i := 1; i < len(plans); i++ {
		if plans[i].RiskScore < plans[i-1].RiskScore {
			t.Errorf("plans not ordered by risk: %d before %d", plans[i-1].RiskScore, plans[i].RiskScore)
		}
	}
	if plans[0].Type != domain.TypeRollbackFlag {
		t.Errorf("lowest-risk plan = %q, want %q", plans[0].Type, domain.TypeRollbackFlag)
	}
	for _, p := range plans {
		if p.Status != domain.PlanProposed {
			t.Errorf("plan %s status = %q, want Proposed", p.ID, p.Status)
		}
		if p.IntentID != "intent-001" {
			t.Errorf("plan %s IntentID = %q", p.ID, p.IntentID)
		}
		if len(p.RollbackSteps) == 0 {
			t.Errorf("plan %s has no rollback steps", p.ID)
		}
	}
}

func TestBuildPlans_ConfidenceAdjustsRisk(t *testing.T) {
	intent := domain.Intent{ID: "intent-001"}
	diag := domain.Diagnosis{Hypotheses: []domain.Hypothesis{
		{Hypothesis: "Flag ramp caused the drop", Confidence: 0.9},
	}}
	high := BuildPlans(intent, diag, time.Unix(1700000000, 0))

	diag.Hypotheses[0].Confidence = 0.3
	low := BuildPlans(intent, diag, time.Unix(1700000000, 0))

	if len(high) != 1 || len(low) != 1 {
		t.Fatalf("expected one plan each, got %d and %d", len(high), len(low))
	}
	if low[0].RiskScore <= high[0].RiskScore {
		t.Errorf("low-confidence risk %d should exceed high-confidence risk %d", low[0].RiskScore, high[0].RiskScore)
	}
}

func TestBuildPlans_TemplateUsedOnce(t *testing.T) {
	intent := domain.Intent{ID: "intent-001"}
	diag := domain.Diagnosis{Hypotheses: []domain.Hypothesis{
		{Hypothesis: "Flag A ramp", Confidence: 0.8},
		{Hypothesis: "Flag B ramp", Confidence: 0.7},
	}}
	plans := BuildPlans(intent, diag, time.Unix(1700000000, 0))
	if len(plans) != 1 {
		t.Errorf("len(plans) = %d, want 1 (one plan per template)", len(plans))
	}
}

func TestBuildPlans_IntentThresholdWins(t *testing.T) {
	intent := domain.Intent{
		ID: "intent-001",
		Constraints: domain.ConstraintSet{Thresholds: []domain.Threshold{
			{Key: "error_rate_max", Metric: "error_rate", Kind: domain.KindMax, Bound: 1.0},
		}},
	}
	diag := domain.Diagnosis{Hypotheses: []domain.Hypothesis{
		{Hypothesis: "Flag ramp caused the drop", Confidence: 0.8},
	}}
	plans := BuildPlans(intent, diag, time.Unix(1700000000, 0))
	if len(plans) != 1 {
		t.Fatalf("len(plans) = %d, want 1", len(plans))
	}

	var bound float64
	for _, th := range plans[0].Guardrails {
		if th.Key == "error_rate_max" {
			bound = th.Bound
		}
	}
	if bound != 1.0 {
		t.Errorf("error_rate_max bound = %v, want intent's 1.0 over default 2.0", bound)
	}
	if err := domain.ValidateNarrowing(intent.Constraints.Thresholds, plans[0].Guardrails); err != nil {
		t.Errorf("plan guardrails loosen intent constraints: %v", err)
	}
}

func TestBuildPlans_Deterministic(t *testing.T) {
	intent := domain.Intent{ID: "intent-001"}
	now := time.Unix(1700000000, 0)
	first := BuildPlans(intent, testDiagnosis(), now)
	second := BuildPlans(intent, testDiagnosis(), now)

	if len(first) != len(second) {
		t.Fatalf("plan counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		// IDs are fresh each call; everything else must match.
		a, b := first[i], second[i]
		a.ID, b.ID = "", ""
		if !reflect.DeepEqual(a, b) {
			t.Errorf("plan %d differs between runs:\n%+v\n%+v", i, a, b)
		}
	}
}

func TestIsValidTransition(t *testing.T) {
	cases := []struct {
		from, to domain.PlanStatus
		want     bool
	}{
		{domain.PlanProposed, domain.PlanSimulating, true},
		{domain.PlanProposed, domain.PlanExecuting, true},
		{domain.PlanProposed, domain.PlanRejected, true},
		{domain.PlanSimulating, domain.PlanApproved, true},
		{domain.PlanSimulating, domain.PlanProposed, true},
		{domain.PlanApproved, domain.PlanExecuting, true},
		{domain.PlanExecuting, domain.PlanCompleted, true},
		{domain.PlanExecuting, domain.PlanRolledBack, true},
		{domain.PlanProposed, domain.PlanCompleted, false},
		{domain.PlanRejected, domain.PlanProposed, false},
		{domain.PlanCompleted, domain.PlanExecuting, false},
		{domain.PlanRolledBack, domain.PlanProposed, false},
	}
	for _, c := range cases {
		if got := IsValidTransition(c.from, c.to); got != c.want {
			t.Errorf("IsValidTransition(%q, %q) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestCanStartRun(t *testing.T) {
	if !CanStartRun(domain.PlanProposed, domain.ModeSimulation) {
		t.Error("simulation should start from Proposed")
	}
	if CanStartRun(domain.PlanApproved, domain.ModeSimulation) {
		t.Error("simulation must not restart from Approved")
	}
	if !CanStartRun(domain.PlanApproved, domain.ModeCanary) {
		t.Error("canary should start from Approved")
	}
	if CanStartRun(domain.PlanRejected, domain.ModeCanary) {
		t.Error("no run may start from Rejected")
	}
	if CanStartRun(domain.PlanExecuting, domain.ModeCanary) {
		t.Error("no new run may start while Executing")
	}
}

func TestNextCandidate(t *testing.T) {
	plans := []domain.FixPlan{
		{ID: "plan-a", RiskScore: 15, Status: domain.PlanRejected},
		{ID: "plan-b", RiskScore: 35, Status: domain.PlanProposed},
		{ID: "plan-c", RiskScore: 45, Status: domain.PlanProposed},
	}
	got := NextCandidate(plans)
	if got == nil || got.ID != "plan-b" {
		t.Errorf("NextCandidate = %+v, want plan-b", got)
	}

	if NextCandidate(nil) != nil {
		t.Error("NextCandidate(nil) should be nil")
	}
	if NextCandidate([]domain.FixPlan{{Status: domain.PlanCompleted}}) != nil {
		t.Error("no Proposed plan should yield nil")
	}
}
