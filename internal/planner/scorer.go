package planner

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/observeo/remedy-engine/internal/domain"
)

// planTemplate is a remediation pattern matched against hypothesis text.
type planTemplate struct {
	planType  domain.PlanType
	name      string
	baseRisk  int
	baseCost  int
	impact    domain.ImpactRange
	execSteps []string
	rollback  []string
	keywords  []string
}

var templates = []planTemplate{
	{
		planType: domain.TypeRollbackFlag,
		name:     "Roll back suspect feature flag",
		baseRisk: 15,
		baseCost: 10,
		impact:   domain.ImpactRange{MinPct: 0.8, MaxPct: 1.5},
		execSteps: []string{
			"Reduce flag rollout to 0% for the affected cohort",
			"Verify funnel metrics recover in the affected segment",
		},
		rollback: []string{
			"Restore flag rollout to its previous percentage",
		},
		keywords: []string{"flag", "rollout", "ramp", "release"},
	},
	{
		planType: domain.TypeConfigTweak,
		name:     "Tune checkout latency configuration",
		baseRisk: 35,
		baseCost: 20,
		impact:   domain.ImpactRange{MinPct: 0.4, MaxPct: 1.0},
		execSteps: []string{
			"Raise checkout service cache TTL",
			"Increase payment client timeout headroom",
		},
		rollback: []string{
			"Restore previous cache TTL and timeout values",
		},
		keywords: []string{"latency", "timeout", "slow", "p95", "p99"},
	},
	{
		planType: domain.TypeExperiment,
		name:     "Run targeted recovery experiment",
		baseRisk: 45,
		baseCost: 55,
		impact:   domain.ImpactRange{MinPct: 0.5, MaxPct: 2.5},
		execSteps: []string{
			"Launch holdout experiment on the impacted segment",
			"Compare treatment funnel completion against holdout",
		},
		rollback: []string{
			"Stop the experiment and route all traffic to control",
		},
		keywords: []string{"error", "provider", "pricing", "payment", "experiment"},
	},
}

// BuildPlans derives candidate fix plans from a diagnosis. Plan generation is
// deterministic: hypotheses are considered in descending confidence order,
// each matching template is used at most once, and the result is ordered by
// ascending risk score.
func BuildPlans(intent domain.Intent, diag domain.Diagnosis, now time.Time) []domain.FixPlan {
	hypotheses := append([]domain.Hypothesis(nil), diag.Hypotheses...)
	sort.SliceStable(hypotheses, func(i, j int) bool {
		return hypotheses[i].Confidence > hypotheses[j].Confidence
	})

	used := make(map[domain.PlanType]bool)
	var plans []domain.FixPlan
	for _, h := range hypotheses {
		tpl, ok := matchTemplate(h)
		if !ok || used[tpl.planType] {
			continue
		}
		used[tpl.planType] = true

		// Low-confidence hypotheses make their plan riskier.
		risk := tpl.baseRisk + int((1.0-h.Confidence)*10)

		plans = append(plans, domain.FixPlan{
			ID:             uuid.NewString(),
			IntentID:       intent.ID,
			Name:           tpl.name,
			Type:           tpl.planType,
			ExpectedImpact: tpl.impact,
			RiskScore:      risk,
			CostScore:      tpl.baseCost,
			Guardrails:     guardrailsFor(intent),
			ExecutionSteps: append([]string(nil), tpl.execSteps...),
			RollbackSteps:  append([]string(nil), tpl.rollback...),
			Status:         domain.PlanProposed,
			StateVersion:   1,
			CreatedAtUnix:  now.Unix(),
			UpdatedAtUnix:  now.Unix(),
		})
	}

	sort.SliceStable(plans, func(i, j int) bool {
		return plans[i].RiskScore < plans[j].RiskScore
	})
	return plans
}

func matchTemplate(h domain.Hypothesis) (planTemplate, bool) {
	text := strings.ToLower(h.Hypothesis + " " + h.Evidence)
	for _, tpl := range templates {
		for _, kw := range tpl.keywords {
			if strings.Contains(text, kw) {
				return tpl, true
			}
		}
	}
	return planTemplate{}, false
}

// defaultGuardrails apply to every plan unless the intent already constrains
// the same key at least as tightly.
var defaultGuardrails = []domain.Threshold{
	{Key: "error_rate_max", Metric: "error_rate", Kind: domain.KindMax, Bound: 2.0},
	{Key: "latency_p95_delta_max", Metric: "latency_p95_delta", Kind: domain.KindMax, Bound: 50},
}

// guardrailsFor merges the intent's constraint thresholds with the engine
// defaults. An intent threshold always wins for its key, so plan guardrails
// never loosen what the intent demands.
func guardrailsFor(intent domain.Intent) []domain.Threshold {
	merged := append([]domain.Threshold(nil), intent.Constraints.Thresholds...)
	for _, def := range defaultGuardrails {
		if _, ok := intent.Constraints.ThresholdByKey(def.Key); !ok {
			merged = append(merged, def)
		}
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Key < merged[j].Key })
	return merged
}
