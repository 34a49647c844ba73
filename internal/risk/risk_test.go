package risk

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/danielpatrickdp/affect-triage/internal/signals"
	"github.com/danielpatrickdp/affect-triage/internal/triage"
)

func indicators(ind ...signals.Indicator) signals.SignalSet {
	return signals.SignalSet{RiskIndicators: signals.SetOf(ind...)}
}

func freshCtx() *triage.ConversationContext {
	return triage.NewConversationContext("onboarding")
}

func TestSadnessWithoutPlanIsLowOrModerate(t *testing.T) {
	s := New(DefaultConfig())
	sig := signals.SignalSet{
		Polarity:       -0.7,
		Categories:     signals.SetOf(signals.CategorySadness, signals.CategoryHopelessness),
		RiskIndicators: signals.SetOf(signals.IndicatorAmbiguousIdeation),
	}
	a := s.Assess(sig, freshCtx())
	assert.Contains(t, []triage.RiskLevel{triage.RiskLow, triage.RiskModerate}, a.Level)
	assert.Equal(t, triage.IdeationAmbiguous, a.Ideation)
	assert.False(t, a.HasPlan)
	assert.Equal(t, triage.ActionMonitor, a.RecommendedAction)
}

func TestCommonIdeationWordingRaisesRisk(t *testing.T) {
	s := New(DefaultConfig())
	x := signals.NewExtractor(signals.DefaultExtractorConfig())
	for _, text := range []string{
		"I don't want to be here anymore",
		"I wish I was dead",
		"I want to disappear",
		"I'd rather be dead",
		"I want to end it",
		"everyone would be better off if I was gone",
	} {
		t.Run(text, func(t *testing.T) {
			a := s.Assess(x.Extract(text, nil), freshCtx())
			assert.GreaterOrEqual(t, a.Level, triage.RiskLow)
			assert.NotEqual(t, triage.IdeationNone, a.Ideation)
		})
	}
}

func TestPlanMeansTimelineIsCritical(t *testing.T) {
	s := New(DefaultConfig())
	a := s.Assess(indicators(
		signals.IndicatorActiveIdeation, signals.IndicatorPlan,
		signals.IndicatorMeans, signals.IndicatorTimeline,
	), freshCtx())

	assert.Equal(t, triage.RiskCritical, a.Level)
	assert.Equal(t, 11, a.Score)
	assert.True(t, a.HasPlan && a.HasMeans && a.HasTimeline)
	assert.Equal(t, triage.ActionEmergencyEscalation, a.RecommendedAction)
}

func TestHighWithoutTimeline(t *testing.T) {
	s := New(DefaultConfig())
	a := s.Assess(indicators(signals.IndicatorActiveIdeation, signals.IndicatorPlan, signals.IndicatorMeans), freshCtx())
	assert.Equal(t, triage.RiskHigh, a.Level)
	assert.Equal(t, 9, a.Score)
}

func TestScoreThresholds(t *testing.T) {
	s := New(DefaultConfig())
	cases := []struct {
		name  string
		ind   []signals.Indicator
		level triage.RiskLevel
	}{
		{"nothing", nil, triage.RiskNone},
		{"passive", []signals.Indicator{signals.IndicatorPassiveIdeation}, triage.RiskLow},
		{"self harm", []signals.Indicator{signals.IndicatorSelfHarm}, triage.RiskLow},
		{"active", []signals.Indicator{signals.IndicatorActiveIdeation}, triage.RiskModerate},
		{"passive with plan", []signals.Indicator{signals.IndicatorPassiveIdeation, signals.IndicatorPlan}, triage.RiskModerate},
		{"active with intent and plan", []signals.Indicator{signals.IndicatorActiveIdeation, signals.IndicatorIntent, signals.IndicatorPlan}, triage.RiskHigh},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.level, s.Assess(indicators(tc.ind...), freshCtx()).Level)
		})
	}
}

func TestSpecificityIgnoredWithoutIdeation(t *testing.T) {
	s := New(DefaultConfig())
	a := s.Assess(indicators(signals.IndicatorPlan, signals.IndicatorTimeline, signals.IndicatorSubstance), freshCtx())
	assert.Equal(t, triage.RiskNone, a.Level)
	assert.False(t, a.HasPlan)
	assert.True(t, a.RiskFactors.Empty())
}

func TestRecallFloor(t *testing.T) {
	s := New(DefaultConfig())
	a := s.Assess(indicators(
		signals.IndicatorAmbiguousIdeation,
		signals.IndicatorProtectiveConnection, signals.IndicatorProtectiveFuture,
	), freshCtx())
	assert.Equal(t, 0, a.Score)
	assert.Equal(t, triage.RiskLow, a.Level)
}

func TestRiskFactorBonusIsCapped(t *testing.T) {
	s := New(DefaultConfig())
	a := s.Assess(indicators(
		signals.IndicatorActiveIdeation,
		signals.IndicatorPriorAttempt, signals.IndicatorSubstance,
		signals.IndicatorIsolation, signals.IndicatorBurden,
	), freshCtx())
	assert.Equal(t, 8, a.Score)
	assert.Equal(t, 4, a.RiskFactors.Len())
}

func TestVigilanceHoldsHighSession(t *testing.T) {
	s := New(DefaultConfig())
	ctx := freshCtx()
	ctx.SessionRisk = triage.RiskHigh

	a := s.Assess(signals.Neutral(), ctx)
	assert.Equal(t, triage.RiskHigh, a.Level)
	assert.True(t, a.HeldBySession)

	// One protective turn is not enough.
	protective := indicators(signals.IndicatorProtectiveHelpSeeking)
	a = s.Assess(protective, ctx)
	assert.Equal(t, triage.RiskHigh, a.Level)

	// The second consecutive one relaxes the floor by one level.
	ctx.ProtectiveStreak = 1
	a = s.Assess(protective, ctx)
	assert.Equal(t, triage.RiskModerate, a.Level)
	assert.True(t, a.HeldBySession)

	// A streak broken by a non-protective turn holds again.
	a = s.Assess(signals.Neutral(), ctx)
	assert.Equal(t, triage.RiskHigh, a.Level)
}

func TestVigilanceRelaxesOneLevelAtATime(t *testing.T) {
	s := New(DefaultConfig())
	ctx := freshCtx()
	ctx.SessionRisk = triage.RiskCritical
	ctx.ProtectiveStreak = 1

	a := s.Assess(indicators(signals.IndicatorProtectiveCommitment), ctx)
	assert.Equal(t, triage.RiskHigh, a.Level)
}

func TestVigilanceDoesNotCapEscalation(t *testing.T) {
	s := New(DefaultConfig())
	ctx := freshCtx()
	ctx.SessionRisk = triage.RiskHigh
	a := s.Assess(indicators(
		signals.IndicatorActiveIdeation, signals.IndicatorPlan,
		signals.IndicatorMeans, signals.IndicatorTimeline,
	), ctx)
	assert.Equal(t, triage.RiskCritical, a.Level)
	assert.False(t, a.HeldBySession)
}

func TestFastNeverBelowFull(t *testing.T) {
	s := New(DefaultConfig())
	sets := []signals.SignalSet{
		signals.Neutral(),
		indicators(signals.IndicatorAmbiguousIdeation, signals.IndicatorProtectiveConnection),
		indicators(signals.IndicatorPassiveIdeation, signals.IndicatorPlan, signals.IndicatorProtectiveFuture, signals.IndicatorProtectiveCommitment),
		indicators(signals.IndicatorActiveIdeation, signals.IndicatorPlan, signals.IndicatorMeans, signals.IndicatorTimeline),
		indicators(signals.IndicatorSelfHarm, signals.IndicatorMeans),
	}
	for _, sig := range sets {
		full := s.Assess(sig, freshCtx())
		fast := s.Fast(sig, freshCtx())
		assert.True(t, fast.Fallback)
		assert.GreaterOrEqual(t, int(fast.Level), int(full.Level), "signals %v", sig.RiskIndicators.Strings())
	}
}

func TestAssessIsDeterministic(t *testing.T) {
	s := New(DefaultConfig())
	ctx := freshCtx()
	ctx.SessionRisk = triage.RiskModerate
	sig := indicators(signals.IndicatorPassiveIdeation, signals.IndicatorIsolation, signals.IndicatorProtectiveConnection)

	if diff := cmp.Diff(s.Assess(sig, ctx), s.Assess(sig, ctx)); diff != "" {
		t.Fatalf("assessment not deterministic:\n%s", diff)
	}
}
