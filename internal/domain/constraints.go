package domain

import (
	"fmt"
	"sort"
	"strings"
)

// ThresholdKind says which direction of excursion breaches a threshold.
type ThresholdKind string

const (
	// KindMax breaches when the observed value exceeds the bound.
	KindMax ThresholdKind = "max"
	// KindMin breaches when the observed value falls below the bound.
	KindMin ThresholdKind = "min"
)

// Threshold is a single guardrail bound on an observed metric.
type Threshold struct {
	// Key is the configured constraint key, e.g. "error_rate_max".
	Key string `json:"key"`
	// Metric is the snapshot metric name the bound applies to, e.g. "error_rate".
	Metric string        `json:"metric"`
	Kind   ThresholdKind `json:"kind"`
	Bound  float64       `json:"bound"`
}

// recognizedThresholdKeys is the closed set of constraint keys the engine
// accepts. Unrecognized keys are rejected at the boundary rather than passed
// through the state machine as opaque blobs.
var recognizedThresholdKeys = map[string]ThresholdKind{
	"error_rate_max":        KindMax,
	"crash_rate_max":        KindMax,
	"latency_p95_delta_max": KindMax,
	"latency_p99_delta_max": KindMax,
	"cpu_utilization_max":   KindMax,
	"conversion_rate_min":   KindMin,
	"availability_min":      KindMin,
	"min_sample_size":       KindMin,
}

// recognizedFlagKeys is the closed set of boolean constraint flags.
var recognizedFlagKeys = map[string]bool{
	"require_approval":    true,
	"block_during_freeze": true,
	"notify_on_breach":    true,
}

// ConstraintSet is an Intent's structured guardrail envelope: thresholds
// plus boolean policy flags.
type ConstraintSet struct {
	Thresholds []Threshold     `json:"thresholds,omitempty"`
	Flags      map[string]bool `json:"flags,omitempty"`
}

// ThresholdByKey returns the threshold with the given key, if present.
func (c ConstraintSet) ThresholdByKey(key string) (Threshold, bool) {
	for _, t := range c.Thresholds {
		if t.Key == key {
			return t, true
		}
	}
	return Threshold{}, false
}

// ParseThresholds converts a raw key/bound map into thresholds, rejecting
// unrecognized keys. Output is sorted by key so callers get a stable order.
func ParseThresholds(raw map[string]float64) ([]Threshold, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	thresholds := make([]Threshold, 0, len(keys))
	for _, key := range keys {
		kind, ok := recognizedThresholdKeys[key]
		if !ok {
			return nil, NewValidationError(fmt.Sprintf("unrecognized constraint key %q", key))
		}
		thresholds = append(thresholds, Threshold{
			Key:    key,
			Metric: metricForKey(key, kind),
			Kind:   kind,
			Bound:  raw[key],
		})
	}
	return thresholds, nil
}

// ParseConstraintSet validates a raw constraint payload against the closed
// key sets and returns the structured form.
func ParseConstraintSet(thresholds map[string]float64, flags map[string]bool) (ConstraintSet, error) {
	parsed, err := ParseThresholds(thresholds)
	if err != nil {
		return ConstraintSet{}, err
	}
	for k := range flags {
		if !recognizedFlagKeys[k] {
			return ConstraintSet{}, NewValidationError(fmt.Sprintf("unrecognized constraint flag %q", k))
		}
	}
	var copied map[string]bool
	if len(flags) > 0 {
		copied = make(map[string]bool, len(flags))
		for k, v := range flags {
			copied[k] = v
		}
	}
	return ConstraintSet{Thresholds: parsed, Flags: copied}, nil
}

// ValidateNarrowing checks that child guardrails never widen the parent
// constraints: for each parent threshold present in the child, a max-type
// bound must not increase and a min-type bound must not decrease.
func ValidateNarrowing(parent []Threshold, child []Threshold) error {
	byKey := make(map[string]Threshold, len(parent))
	for _, t := range parent {
		byKey[t.Key] = t
	}
	for _, c := range child {
		p, ok := byKey[c.Key]
		if !ok {
			continue
		}
		widened := (c.Kind == KindMax && c.Bound > p.Bound) ||
			(c.Kind == KindMin && c.Bound < p.Bound)
		if widened {
			return NewValidationError(fmt.Sprintf(
				"guardrail %q widens the intent constraint: %v vs %v", c.Key, c.Bound, p.Bound))
		}
	}
	return nil
}

// metricForKey strips the kind suffix to derive the snapshot metric name.
// "min_sample_size" has no suffix form and maps to "sample_size".
func metricForKey(key string, kind ThresholdKind) string {
	if key == "min_sample_size" {
		return "sample_size"
	}
	return strings.TrimSuffix(key, "_"+string(kind))
}

// ValidateBlastRadius checks a blast-radius plan: non-empty, strictly
// increasing, each value in (0, 100].
func ValidateBlastRadius(plan []float64) error {
	if len(plan) == 0 {
		return NewValidationError("blast radius plan must not be empty")
	}
	prev := 0.0
	for _, p := range plan {
		if p <= 0 || p > 100 {
			return NewValidationError(fmt.Sprintf("blast radius value %v outside (0, 100]", p))
		}
		if p <= prev {
			return NewValidationError("blast radius plan must be strictly increasing")
		}
		prev = p
	}
	return nil
}
