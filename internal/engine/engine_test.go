package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/danielpatrickdp/affect-triage/internal/audit"
	"github.com/danielpatrickdp/affect-triage/internal/graph"
	"github.com/danielpatrickdp/affect-triage/internal/metrics"
	"github.com/danielpatrickdp/affect-triage/internal/risk"
	"github.com/danielpatrickdp/affect-triage/internal/signals"
	"github.com/danielpatrickdp/affect-triage/internal/triage"
)

const (
	sadText      = "I feel so sad and hopeless lately."
	happyText    = "Thanks, I had a good day and I feel happy."
	crisisText   = "I'm going to kill myself tonight. I have a plan and the pills are ready."
	ventingText  = "I'm so ANGRY at my boss right now!!! He humiliated me in front of everyone"
	imminentText = "I'm going to kill my boss today. I know where he lives."
)

func newEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	return New(DefaultConfig(), graph.MustBuild(graph.DefaultSpec()), opts...)
}

func say(e *Engine, session, text string) triage.Decision {
	return e.ProcessTurn(context.Background(), Turn{SessionID: session, Utterance: text})
}

// placeAt moves a session to state without running a turn.
func placeAt(e *Engine, session string, state triage.StateID) {
	sess, release := e.Sessions().Acquire(session)
	sess.Ctx.CurrentState = state
	release()
}

// #region test-scenarios

func TestSadnessMovesTowardGrief(t *testing.T) {
	e := newEngine(t)
	d := say(e, "a", sadText)

	assert.Contains(t, []triage.RiskLevel{triage.RiskLow, triage.RiskModerate}, d.RiskLevel)
	assert.Equal(t, triage.StateID(graph.GriefDespair), d.NextState)
	assert.Equal(t, triage.StateID(graph.Onboarding), d.PreviousState)
	assert.False(t, d.OverrideApplied)
	assert.False(t, d.Degraded)
	assert.Equal(t, "grief_validation", d.StrategyTag)
	assert.NotEmpty(t, d.ID)
	assert.Equal(t, "a", d.SessionID)
	assert.Equal(t, 1, d.Turn)
}

func TestPlanMeansTimelineOverridesFromPositive(t *testing.T) {
	e := newEngine(t)
	first := say(e, "b", happyText)
	require.Equal(t, triage.StateID(graph.PositiveReflection), first.NextState)

	d := say(e, "b", crisisText)
	assert.Equal(t, triage.RiskCritical, d.RiskLevel)
	assert.True(t, d.OverrideApplied)
	assert.Equal(t, triage.StateID(graph.Crisis), d.NextState)
	assert.Equal(t, triage.StateID(graph.PositiveReflection), d.PreviousState)
	assert.Equal(t, "crisis_protocol_emergency_resources", d.StrategyTag)
}

func TestAngryVentingProcessesAnger(t *testing.T) {
	e := newEngine(t)
	d := say(e, "c", ventingText)

	assert.Equal(t, triage.ThreatEmotionalDischarge, d.ThreatCategory)
	assert.False(t, d.OverrideApplied)
	assert.Equal(t, triage.StateID(graph.AngerProcessing), d.NextState)
	assert.Equal(t, "anger_deescalation_validation", d.StrategyTag)
}

func TestImminentThreatForcesCrisis(t *testing.T) {
	e := newEngine(t)
	placeAt(e, "d", graph.PositiveReflection)

	d := say(e, "d", imminentText)
	assert.Equal(t, triage.ThreatImminentDanger, d.ThreatCategory)
	assert.True(t, d.OverrideApplied)
	assert.Equal(t, triage.StateID(graph.Crisis), d.NextState)
	assert.Equal(t, "crisis_protocol_violence", d.StrategyTag)
}

func TestEverydayGoalsNeverReachCrisis(t *testing.T) {
	e := newEngine(t)
	for i, text := range []string{
		"I'm going to beat the traffic tonight",
		"I'm gonna kill this exam tomorrow",
		"I'm going to hurt my back at the gym today",
	} {
		session := fmt.Sprintf("goal-%d", i)
		placeAt(e, session, graph.PositiveReflection)
		d := say(e, session, text)
		assert.Equal(t, triage.ThreatEmotionalDischarge, d.ThreatCategory, text)
		assert.False(t, d.OverrideApplied, text)
		assert.NotEqual(t, triage.StateID(graph.Crisis), d.NextState, text)
	}
}

func TestCommonIdeationWordingIsNotIgnored(t *testing.T) {
	e := newEngine(t)
	for i, text := range []string{"I don't want to be here anymore", "I wish I was dead", "I'd rather be dead"} {
		d := say(e, fmt.Sprintf("recall-%d", i), text)
		assert.GreaterOrEqual(t, d.RiskLevel, triage.RiskLow, text)
	}
}

func TestRepetitionEndsInRedirect(t *testing.T) {
	e := newEngine(t)
	for i := 1; i <= 5; i++ {
		d := say(e, "e", sadText)
		require.Equal(t, triage.StateID(graph.GriefDespair), d.NextState, "turn %d", i)
	}

	d := say(e, "e", sadText)
	assert.Equal(t, triage.StateID(graph.Redirect), d.NextState)
	assert.Equal(t, "reflective_redirect", d.StrategyTag)
	assert.False(t, d.OverrideApplied)
}

// #endregion test-scenarios

// #region test-properties

func TestNextStateAlwaysInGraph(t *testing.T) {
	e := newEngine(t)
	g := e.Graph()
	script := []string{
		"hello there", sadText, "", "\xff\xfe", happyText, ventingText, "not sure how I feel, confused",
		crisisText, "I talked to my therapist and I'm safe", "I'm safe, I have reasons to live",
		"I feel calm now", "bye", imminentText, strings.Repeat("so ", 500),
	}
	for s := 0; s < 3; s++ {
		session := fmt.Sprintf("prop-%d", s)
		for i := range script {
			d := say(e, session, script[(i+s)%len(script)])
			assert.True(t, g.Has(d.NextState), "session %s turn %d: %s", session, i, d.NextState)
			assert.NotEmpty(t, d.StrategyTag)
		}
	}
}

func TestCriticalOverridesFromEveryState(t *testing.T) {
	e := newEngine(t)
	for _, node := range e.Graph().Nodes() {
		session := "crit-" + string(node.ID)
		placeAt(e, session, node.ID)

		d := say(e, session, crisisText)
		assert.True(t, d.OverrideApplied, "from %s", node.ID)
		assert.Equal(t, triage.StateID(graph.Crisis), d.NextState, "from %s", node.ID)
		assert.Equal(t, triage.RiskCritical, d.RiskLevel, "from %s", node.ID)
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	e := newEngine(t)
	var wg sync.WaitGroup
	results := make([]triage.Decision, 2)
	for i, text := range []string{sadText, ventingText} {
		wg.Add(1)
		go func(i int, text string) {
			defer wg.Done()
			results[i] = say(e, fmt.Sprintf("iso-%d", i), text)
		}(i, text)
	}
	wg.Wait()

	assert.Equal(t, triage.StateID(graph.GriefDespair), results[0].NextState)
	assert.Equal(t, triage.StateID(graph.AngerProcessing), results[1].NextState)
}

func TestConcurrentTurnsInOneSessionAreSerialized(t *testing.T) {
	e := newEngine(t)
	const n = 20
	var wg sync.WaitGroup
	turns := make(chan int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			turns <- say(e, "serial", sadText).Turn
		}()
	}
	wg.Wait()
	close(turns)

	seen := make(map[int]bool)
	for turn := range turns {
		assert.False(t, seen[turn], "turn %d decided twice", turn)
		seen[turn] = true
	}
	assert.Len(t, seen, n)
}

func TestHistoryIsBounded(t *testing.T) {
	assert.Equal(t, []string{"c", "d"}, boundHistory([]string{"a", "b", "c", "d"}, 2))
	assert.Equal(t, []string{"a"}, boundHistory([]string{"a"}, 5))
	assert.Nil(t, boundHistory(nil, 5))
}

func TestMissingSessionIDGetsOneOffSession(t *testing.T) {
	e := newEngine(t)
	a := e.ProcessTurn(context.Background(), Turn{Utterance: sadText})
	b := e.ProcessTurn(context.Background(), Turn{Utterance: sadText})
	assert.NotEmpty(t, a.SessionID)
	assert.NotEqual(t, a.SessionID, b.SessionID)
	assert.Equal(t, 1, b.Turn)
}

func TestCancelledCallerStillGetsFullDecision(t *testing.T) {
	e := newEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := e.ProcessTurn(ctx, Turn{SessionID: "gone", Utterance: sadText})
	assert.False(t, d.Degraded)
	assert.Equal(t, triage.StateID(graph.GriefDespair), d.NextState)
	state, ok := e.SessionState("gone")
	require.True(t, ok)
	assert.Equal(t, triage.StateID(graph.GriefDespair), state)
}

func TestDecisionNotesMatchedPatterns(t *testing.T) {
	e := newEngine(t)
	d := say(e, "ev", crisisText)
	require.NotEmpty(t, d.AuditTrail)
	last := d.AuditTrail[len(d.AuditTrail)-1]
	assert.True(t, strings.HasPrefix(last, "matched "), last)
	assert.Contains(t, last, "kill myself")

	hello := say(e, "ev2", "hello there")
	for _, line := range hello.AuditTrail {
		assert.False(t, strings.HasPrefix(line, "matched "), line)
	}
}

// #endregion test-properties

// #region test-degraded

type slowRisk struct {
	*risk.Stratifier
	release chan struct{}
}

func (s slowRisk) Assess(sig signals.SignalSet, ctx *triage.ConversationContext) triage.RiskAssessment {
	<-s.release
	return s.Stratifier.Assess(sig, ctx)
}

type panickingRisk struct{}

func (panickingRisk) Assess(signals.SignalSet, *triage.ConversationContext) triage.RiskAssessment {
	panic("assess exploded")
}

func (panickingRisk) Fast(signals.SignalSet, *triage.ConversationContext) triage.RiskAssessment {
	panic("fast exploded")
}

type panickingEstimator struct{}

func (panickingEstimator) Estimate(signals.SignalSet, *triage.ConversationContext, *graph.StateGraph) triage.StateEstimate {
	panic("estimate exploded")
}

func TestTimeoutStillReachesCrisis(t *testing.T) {
	release := make(chan struct{})
	reg := prometheus.NewRegistry()
	config := DefaultConfig()
	config.TurnTimeout = 20 * time.Millisecond
	e := New(config, graph.MustBuild(graph.DefaultSpec()),
		WithRiskScorer(slowRisk{Stratifier: risk.New(config.Risk), release: release}),
		WithMetrics(metrics.New(reg)),
		WithLogger(zaptest.NewLogger(t)))

	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	defer close(release)

	d := say(e, "slow", crisisText)
	assert.True(t, d.Degraded)
	assert.True(t, d.OverrideApplied)
	assert.Equal(t, triage.StateID(graph.Crisis), d.NextState)
	assert.Equal(t, triage.RiskCritical, d.RiskLevel)

	expected := `
# HELP triage_engine_degraded_turns_total Turns decided in degraded mode, by reason
# TYPE triage_engine_degraded_turns_total counter
triage_engine_degraded_turns_total{reason="timeout"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "triage_engine_degraded_turns_total"))
}

func TestTimeoutHoldsCurrentState(t *testing.T) {
	release := make(chan struct{})
	config := DefaultConfig()
	config.TurnTimeout = 20 * time.Millisecond
	e := New(config, graph.MustBuild(graph.DefaultSpec()),
		WithRiskScorer(slowRisk{Stratifier: risk.New(config.Risk), release: release}))
	defer close(release)
	placeAt(e, "hold", graph.CheckIn)

	d := say(e, "hold", ventingText)
	assert.True(t, d.Degraded)
	assert.False(t, d.OverrideApplied)
	assert.Equal(t, triage.StateID(graph.CheckIn), d.NextState)
	assert.Contains(t, d.AuditTrail[0], "degraded (timeout)")
}

func TestScorerPanicDegrades(t *testing.T) {
	e := newEngine(t, WithEstimator(panickingEstimator{}))
	d := say(e, "p", sadText)
	assert.True(t, d.Degraded)
	assert.Equal(t, triage.StateID(graph.Onboarding), d.NextState)
	assert.Equal(t, triage.RiskLow, d.RiskLevel)
}

func TestPanicFallbackKeepsOverride(t *testing.T) {
	e := newEngine(t, WithRiskScorer(panickingRisk{}))
	d := say(e, "pp", crisisText)
	assert.True(t, d.Degraded)
	assert.True(t, d.OverrideApplied)
	assert.Equal(t, triage.StateID(graph.Crisis), d.NextState)

	next := say(e, "pp", "I feel calm now")
	assert.Equal(t, 2, next.Turn)
	assert.True(t, e.Graph().Has(next.NextState))
}

// #endregion test-degraded

// #region test-audit

type failingSink struct{}

func (failingSink) Name() string                             { return "broken" }
func (failingSink) Emit(context.Context, audit.Record) error { return errors.New("unavailable") }

func TestDecisionsAreAudited(t *testing.T) {
	store, err := audit.OpenSQLite(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	defer store.Close()

	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := newEngine(t, WithAuditSink(store), WithClock(func() time.Time { return fixed }))
	first := say(e, "aud", sadText)
	second := say(e, "aud", crisisText)

	records, err := store.Recent(context.Background(), audit.Query{SessionID: "aud"})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, second.ID, records[0].DecisionID)
	assert.Equal(t, first.ID, records[1].DecisionID)
	assert.Equal(t, e.Graph().Version(), records[0].GraphVersion)
	assert.True(t, records[0].OverrideApplied)
	assert.Equal(t, fixed, records[0].CreatedAt)
	for _, line := range records[0].Trail {
		assert.NotContains(t, line, "pills")
	}
}

func TestAuditFailureNeverFailsTurn(t *testing.T) {
	reg := prometheus.NewRegistry()
	e := newEngine(t, WithAuditSink(audit.NewMulti(failingSink{})), WithMetrics(metrics.New(reg)))

	d := say(e, "af", sadText)
	assert.Equal(t, triage.StateID(graph.GriefDespair), d.NextState)

	expected := `
# HELP triage_audit_errors_total Audit records a sink failed to write
# TYPE triage_audit_errors_total counter
triage_audit_errors_total{sink="broken"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "triage_audit_errors_total"))
}

// #endregion test-audit

// #region test-reload

func TestSwapGraphAffectsNewSessionsOnly(t *testing.T) {
	e := newEngine(t)
	say(e, "before", sadText)
	oldVersion := e.Graph().Version()

	spec := graph.DefaultSpec()
	spec.Strategies[graph.GriefDespair] = graph.StrategySpec{Default: "grief_companioning"}
	e.SwapGraph(graph.MustBuild(spec))
	require.NotEqual(t, oldVersion, e.Graph().Version())

	assert.Equal(t, "grief_validation", say(e, "before", sadText).StrategyTag)
	assert.Equal(t, "grief_companioning", say(e, "after", sadText).StrategyTag)
}

// #endregion test-reload
