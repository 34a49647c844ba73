// Package threat separates cathartic venting from credible or imminent
// violence using two independent axes: specificity and emotional intensity.
package threat

import (
	"math"

	"github.com/danielpatrickdp/affect-triage/internal/signals"
	"github.com/danielpatrickdp/affect-triage/internal/triage"
)

// #region config

// Config holds the specificity weights and category thresholds.
type Config struct {
	TargetWeight        float64 `yaml:"target_weight"`
	WeaponWeight        float64 `yaml:"weapon_weight"`
	PlanWeight          float64 `yaml:"plan_weight"`
	ImmediacyWeight     float64 `yaml:"immediacy_weight"`
	ImminentSpecificity float64 `yaml:"imminent_specificity"` // also requires an immediacy marker
	PlanSpecificity     float64 `yaml:"plan_specificity"`     // also requires a plan or weapon
	AngerBoost          float64 `yaml:"anger_boost"`          // added to intensity when anger is present
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TargetWeight:        0.25,
		WeaponWeight:        0.25,
		PlanWeight:          0.25,
		ImmediacyWeight:     0.25,
		ImminentSpecificity: 0.75,
		PlanSpecificity:     0.5,
		AngerBoost:          0.15,
	}
}

// #endregion config

// #region differentiator

// Differentiator produces ThreatAssessments. It never mutates the context.
type Differentiator struct {
	config Config
}

// New creates a Differentiator.
func New(config Config) *Differentiator {
	return &Differentiator{config: config}
}

// Assess classifies the turn. Intensity never raises the category on its own.
func (d *Differentiator) Assess(sig signals.SignalSet, ctx *triage.ConversationContext) triage.ThreatAssessment {
	v := withCarry(sig, ctx)

	a := triage.ThreatAssessment{
		EmotionalIntensity: d.intensity(sig),
	}
	if v.Has(signals.ViolenceIntent) {
		a.Specificity = math.Min(1,
			weightIf(v.Has(signals.ViolenceTarget), d.config.TargetWeight)+
				weightIf(v.Has(signals.ViolenceWeapon), d.config.WeaponWeight)+
				weightIf(v.Has(signals.ViolencePlan), d.config.PlanWeight)+
				weightIf(v.Has(signals.ViolenceImmediacy), d.config.ImmediacyWeight))
	}

	// A threat needs someone to be threatened; without a target only the
	// discharge category is reachable.
	targeted := v.Has(signals.ViolenceTarget)
	switch {
	case !targeted:
		a.Category = triage.ThreatEmotionalDischarge
		a.Confidence = 1 - a.Specificity
	case a.Specificity >= d.config.ImminentSpecificity && v.Has(signals.ViolenceImmediacy):
		a.Category = triage.ThreatImminentDanger
		a.Confidence = a.Specificity
	case a.Specificity >= d.config.PlanSpecificity && v.HasAny(signals.SetOf(signals.ViolencePlan, signals.ViolenceWeapon)):
		a.Category = triage.ThreatWithPlan
		a.Confidence = a.Specificity
	default:
		a.Category = triage.ThreatEmotionalDischarge
		a.Confidence = 1 - a.Specificity
	}
	return a
}

// Fast is the indicator-only fallback for degraded turns. It reaches
// IMMINENT_DANGER whenever Assess would under the default weights.
func (d *Differentiator) Fast(sig signals.SignalSet, ctx *triage.ConversationContext) triage.ThreatAssessment {
	v := withCarry(sig, ctx)
	a := triage.ThreatAssessment{
		EmotionalIntensity: sig.Intensity,
		Fallback:           true,
		Confidence:         0.5,
	}
	armed := v.HasAny(signals.SetOf(signals.ViolencePlan, signals.ViolenceWeapon))
	switch {
	case !v.Has(signals.ViolenceIntent) || !v.Has(signals.ViolenceTarget):
		a.Category = triage.ThreatEmotionalDischarge
	case armed && v.Has(signals.ViolenceImmediacy):
		a.Category = triage.ThreatImminentDanger
	case armed:
		a.Category = triage.ThreatWithPlan
	default:
		a.Category = triage.ThreatEmotionalDischarge
	}
	return a
}

func (d *Differentiator) intensity(sig signals.SignalSet) float64 {
	v := sig.Intensity
	if sig.Categories.Has(signals.CategoryAnger) {
		v += d.config.AngerBoost
	}
	return math.Max(0, math.Min(1, v))
}

// #endregion differentiator

// #region helpers

// withCarry unions the previous turn's violence markers when the current turn
// still expresses violent intent, so details spread over two messages add up.
func withCarry(sig signals.SignalSet, ctx *triage.ConversationContext) signals.ViolenceSet {
	v := sig.ViolenceIndicators
	if !v.Has(signals.ViolenceIntent) || ctx == nil || ctx.RecentSignals == nil {
		return v
	}
	if prev, ok := ctx.RecentSignals.Last(); ok && prev.ViolenceIndicators.Has(signals.ViolenceIntent) {
		v = v.Union(prev.ViolenceIndicators)
	}
	return v
}

func weightIf(ok bool, w float64) float64 {
	if ok {
		return w
	}
	return 0
}

// #endregion helpers
