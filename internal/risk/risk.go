// Package risk scores self-harm risk into the five ordinal levels. Recall is
// favoured over precision and session-level vigilance never relaxes on a
// single reassuring turn.
package risk

import (
	"github.com/danielpatrickdp/affect-triage/internal/signals"
	"github.com/danielpatrickdp/affect-triage/internal/triage"
)

// #region config

// Config holds scoring weights and level thresholds. The values are policy,
// not engineering constants, and are meant to be calibrated.
type Config struct {
	AmbiguousWeight int `yaml:"ambiguous_weight"`
	PassiveWeight   int `yaml:"passive_weight"`
	SelfHarmWeight  int `yaml:"self_harm_weight"`
	ActiveWeight    int `yaml:"active_weight"`

	PlanWeight     int `yaml:"plan_weight"`
	MeansWeight    int `yaml:"means_weight"`
	IntentWeight   int `yaml:"intent_weight"`
	TimelineWeight int `yaml:"timeline_weight"`

	RiskFactorWeight    int `yaml:"risk_factor_weight"`
	MaxRiskFactorBonus  int `yaml:"max_risk_factor_bonus"`
	ProtectiveWeight    int `yaml:"protective_weight"`
	MaxProtectiveCredit int `yaml:"max_protective_credit"`

	LowAt      int `yaml:"low_at"`      // score at which LOW begins
	ModerateAt int `yaml:"moderate_at"` // score at which MODERATE begins
	HighAt     int `yaml:"high_at"`     // score at which HIGH (or CRITICAL with a timeline) begins

	DeescalationTurns int `yaml:"deescalation_turns"` // consecutive protective turns needed to relax a HIGH session
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		AmbiguousWeight:     2,
		PassiveWeight:       3,
		SelfHarmWeight:      4,
		ActiveWeight:        5,
		PlanWeight:          2,
		MeansWeight:         2,
		IntentWeight:        2,
		TimelineWeight:      2,
		RiskFactorWeight:    1,
		MaxRiskFactorBonus:  3,
		ProtectiveWeight:    1,
		MaxProtectiveCredit: 2,
		LowAt:               2,
		ModerateAt:          5,
		HighAt:              8,
		DeescalationTurns:   2,
	}
}

// #endregion config

// #region stratifier

// Stratifier produces RiskAssessments. It never mutates the context.
type Stratifier struct {
	config Config
}

// New creates a Stratifier.
func New(config Config) *Stratifier {
	return &Stratifier{config: config}
}

// Assess scores the turn's signals against the session context.
func (s *Stratifier) Assess(sig signals.SignalSet, ctx *triage.ConversationContext) triage.RiskAssessment {
	a := s.base(sig)
	ind := sig.RiskIndicators

	if a.Ideation != triage.IdeationNone {
		a.RiskFactors = ind.Intersect(signals.RiskFactors)
		a.Score += min(a.RiskFactors.Len()*s.config.RiskFactorWeight, s.config.MaxRiskFactorBonus)
	}
	a.ProtectiveFactors = ind.Intersect(signals.ProtectiveFactors)
	a.Score -= min(a.ProtectiveFactors.Len()*s.config.ProtectiveWeight, s.config.MaxProtectiveCredit)
	a.Score = max(a.Score, 0)

	s.finish(&a, sig, ctx)
	return a
}

// Fast is the keyword-level fallback used when the full assessment did not
// finish in time. It scores ideation and specificity only and takes no
// protective credit, so it never rates a turn lower than Assess would.
func (s *Stratifier) Fast(sig signals.SignalSet, ctx *triage.ConversationContext) triage.RiskAssessment {
	a := s.base(sig)
	a.ProtectiveFactors = sig.RiskIndicators.Intersect(signals.ProtectiveFactors)
	a.Fallback = true
	s.finish(&a, sig, ctx)
	return a
}

// base fills ideation, specificity flags and their score contribution.
func (s *Stratifier) base(sig signals.SignalSet) triage.RiskAssessment {
	ind := sig.RiskIndicators
	var a triage.RiskAssessment

	switch {
	case ind.Has(signals.IndicatorActiveIdeation):
		a.Ideation, a.Score = triage.IdeationActive, s.config.ActiveWeight
	case ind.Has(signals.IndicatorSelfHarm):
		a.Ideation, a.Score = triage.IdeationSelfHarm, s.config.SelfHarmWeight
	case ind.Has(signals.IndicatorPassiveIdeation):
		a.Ideation, a.Score = triage.IdeationPassive, s.config.PassiveWeight
	case ind.Has(signals.IndicatorAmbiguousIdeation):
		a.Ideation, a.Score = triage.IdeationAmbiguous, s.config.AmbiguousWeight
	default:
		a.Ideation = triage.IdeationNone
	}

	// Specificity only counts when there is something for it to be specific about.
	if a.Ideation != triage.IdeationNone {
		a.HasPlan = ind.Has(signals.IndicatorPlan)
		a.HasMeans = ind.Has(signals.IndicatorMeans)
		a.HasIntent = ind.Has(signals.IndicatorIntent)
		a.HasTimeline = ind.Has(signals.IndicatorTimeline)
		a.Score += weightIf(a.HasPlan, s.config.PlanWeight) +
			weightIf(a.HasMeans, s.config.MeansWeight) +
			weightIf(a.HasIntent, s.config.IntentWeight) +
			weightIf(a.HasTimeline, s.config.TimelineWeight)
	}
	return a
}

// finish maps the score to a level and applies the recall floor and
// session vigilance.
func (s *Stratifier) finish(a *triage.RiskAssessment, sig signals.SignalSet, ctx *triage.ConversationContext) {
	a.Level = s.level(a.Score, a.HasTimeline)
	if a.Ideation != triage.IdeationNone {
		a.Level = triage.MaxRisk(a.Level, triage.RiskLow)
	}

	if ctx != nil && ctx.SessionRisk >= triage.RiskHigh {
		floor := ctx.SessionRisk
		if ProtectiveStreak(sig, ctx) >= s.config.DeescalationTurns {
			floor = ctx.SessionRisk.Lower()
		}
		if a.Level < floor {
			a.Level = floor
			a.HeldBySession = true
		}
	}
	a.RecommendedAction = triage.ActionFor(a.Level)
}

func (s *Stratifier) level(score int, timeline bool) triage.RiskLevel {
	switch {
	case score < s.config.LowAt:
		return triage.RiskNone
	case score < s.config.ModerateAt:
		return triage.RiskLow
	case score < s.config.HighAt:
		return triage.RiskModerate
	case timeline:
		return triage.RiskCritical
	default:
		return triage.RiskHigh
	}
}

// #endregion stratifier

// #region helpers

// ProtectiveStreak is the number of consecutive protective turns ending with
// this one.
func ProtectiveStreak(sig signals.SignalSet, ctx *triage.ConversationContext) int {
	if !sig.Protective() {
		return 0
	}
	if ctx == nil {
		return 1
	}
	return ctx.ProtectiveStreak + 1
}

func weightIf(ok bool, w int) int {
	if ok {
		return w
	}
	return 0
}

// #endregion helpers
