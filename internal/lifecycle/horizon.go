package lifecycle

import (
	"time"

	"github.com/observeo/remedy-engine/internal/domain"
)

// HorizonAction is the governor's verdict on further ramp-up.
type HorizonAction string

const (
	HorizonContinue HorizonAction = "continue"
	HorizonWarn     HorizonAction = "warn"
	HorizonHalt     HorizonAction = "halt"
)

// HorizonGovernor enforces an intent's time horizon. Past the horizon the
// engine refuses to widen blast radius; near it (WarnRatio) it keeps going
// but flags the intent.
type HorizonGovernor struct {
	// WarnRatio is the fraction of the horizon at which a warning is issued (default 0.8).
	WarnRatio float64

	now func() time.Time
}

// NewHorizonGovernor creates a governor with standard thresholds.
func NewHorizonGovernor() *HorizonGovernor {
	return &HorizonGovernor{
		WarnRatio: 0.8,
		now:       time.Now,
	}
}

// Check evaluates how much of the intent's horizon has elapsed.
func (g *HorizonGovernor) Check(intent domain.Intent) HorizonAction {
	if intent.TimeHorizonDays <= 0 {
		return HorizonContinue
	}
	horizon := time.Duration(intent.TimeHorizonDays) * 24 * time.Hour
	elapsed := g.now().Sub(time.Unix(intent.CreatedAtUnix, 0))

	ratio := float64(elapsed) / float64(horizon)
	if ratio >= 1.0 {
		return HorizonHalt
	}
	if ratio >= g.WarnRatio {
		return HorizonWarn
	}
	return HorizonContinue
}
