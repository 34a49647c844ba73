// Package override arbitrates crisis preemption against the normal graph flow
// and resolves the final strategy tag.
package override

import (
	"github.com/danielpatrickdp/affect-triage/internal/graph"
	"github.com/danielpatrickdp/affect-triage/internal/triage"
)

// #region trigger

// Trigger names which classifier forced a crisis override.
type Trigger string

const (
	TriggerNone   Trigger = ""
	TriggerRisk   Trigger = "risk"
	TriggerThreat Trigger = "threat"
	TriggerBoth   Trigger = "risk+threat"
)

// TriggerFor reports which classifiers demand a crisis override. Either one
// alone is sufficient.
func TriggerFor(risk triage.RiskAssessment, threat triage.ThreatAssessment) Trigger {
	riskFired := risk.Level == triage.RiskCritical
	threatFired := threat.Category == triage.ThreatImminentDanger
	switch {
	case riskFired && threatFired:
		return TriggerBoth
	case riskFired:
		return TriggerRisk
	case threatFired:
		return TriggerThreat
	default:
		return TriggerNone
	}
}

// #endregion trigger

// #region coordinator

// Coordinator sits above the transition manager. It is stateless.
type Coordinator struct{}

// NewCoordinator creates a Coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{}
}

// Resolve applies crisis override priority to the transition manager's
// decision and fills in the strategy tag.
func (c *Coordinator) Resolve(risk triage.RiskAssessment, threat triage.ThreatAssessment, d triage.Decision, g *graph.StateGraph) triage.Decision {
	d.RiskLevel = risk.Level
	d.ThreatCategory = threat.Category

	trigger := TriggerFor(risk, threat)
	if trigger == TriggerNone {
		tag, ok := g.Strategy(d.NextState, risk.Level)
		if !ok {
			// NextState is validated again at commit; keep the turn answerable.
			tag, _ = g.Strategy(d.PreviousState, risk.Level)
		}
		d.StrategyTag = tag
		d.Note("strategy %s for %s at %s", tag, d.NextState, risk.Level)
		return d
	}

	crisis := g.Crisis()
	if d.PreviousState == crisis {
		d.Note("override (%s): already in %s, strategy re-evaluated", trigger, crisis)
	} else {
		d.Note("override (%s): %s -> %s forced, tm proposed %s", trigger, d.PreviousState, crisis, d.NextState)
	}
	d.NextState = crisis
	d.OverrideApplied = true

	switch trigger {
	case TriggerThreat:
		d.StrategyTag = g.ThreatStrategy()
		d.Note("override conflict: threat %s without critical risk (%s), resolved by union", threat.Category, risk.Level)
	case TriggerRisk:
		d.StrategyTag, _ = g.Strategy(crisis, risk.Level)
		d.Note("override conflict: critical risk without imminent threat (%s), resolved by union", threat.Category)
	default:
		d.StrategyTag, _ = g.Strategy(crisis, risk.Level)
	}
	d.Note("strategy %s for %s at %s", d.StrategyTag, crisis, risk.Level)
	return d
}

// #endregion coordinator
