// Package replay runs recorded conversations through the engine and compares
// every decision with the outcome the fixture expects.
package replay

import (
	"context"
	"fmt"
	"strings"

	"github.com/danielpatrickdp/affect-triage/internal/engine"
	"github.com/danielpatrickdp/affect-triage/internal/session"
	"github.com/danielpatrickdp/affect-triage/internal/triage"
)

// #region types

// Runner is the engine surface replay needs.
type Runner interface {
	ProcessTurn(ctx context.Context, turn engine.Turn) triage.Decision
	Sessions() *session.Store
}

// Result is the outcome of replaying one turn.
type Result struct {
	Turn       int
	Utterance  string
	Decision   triage.Decision
	Mismatches []string
}

// Matched reports whether the decision met every expectation.
func (r Result) Matched() bool { return len(r.Mismatches) == 0 }

// Summary provides aggregate stats from a replay run.
type Summary struct {
	TotalTurns int
	Matched    int
	Diverged   int
	Overrides  int
	Degraded   int
	FinalState triage.StateID
}

// #endregion types

// #region replay

// Replay feeds the fixture's turns to r in order under the fixture's session
// id. A non-empty StartState is applied before the first turn.
func Replay(ctx context.Context, r Runner, f *Fixture) ([]Result, error) {
	if f.StartState != "" {
		sess, release := r.Sessions().Acquire(f.SessionID)
		if !sess.Graph.Has(f.StartState) {
			release()
			return nil, fmt.Errorf("start state %q not in graph %s", f.StartState, sess.Graph.Version())
		}
		sess.Ctx.CurrentState = f.StartState
		release()
	}

	results := make([]Result, 0, len(f.Turns))
	for i, ft := range f.Turns {
		d := r.ProcessTurn(ctx, engine.Turn{SessionID: f.SessionID, Utterance: ft.Utterance, History: ft.History})
		results = append(results, Result{
			Turn:       i + 1,
			Utterance:  ft.Utterance,
			Decision:   d,
			Mismatches: compare(ft.Expect, d),
		})
	}
	return results, nil
}

func compare(want Expectation, d triage.Decision) []string {
	var diffs []string
	diff := func(field string, want, got any) {
		diffs = append(diffs, fmt.Sprintf("%s: want %v, got %v", field, want, got))
	}
	if want.NextState != "" && want.NextState != d.NextState {
		diff("next_state", want.NextState, d.NextState)
	}
	if want.RiskLevel != "" && !strings.EqualFold(want.RiskLevel, d.RiskLevel.String()) {
		diff("risk_level", want.RiskLevel, d.RiskLevel)
	}
	if want.MinRiskLevel != "" {
		floor, err := triage.ParseRiskLevel(want.MinRiskLevel)
		switch {
		case err != nil:
			diffs = append(diffs, fmt.Sprintf("min_risk_level: %v", err))
		case d.RiskLevel < floor:
			diff("min_risk_level", floor, d.RiskLevel)
		}
	}
	if want.ThreatCategory != "" && !strings.EqualFold(want.ThreatCategory, d.ThreatCategory.String()) {
		diff("threat_category", want.ThreatCategory, d.ThreatCategory)
	}
	if want.StrategyTag != "" && want.StrategyTag != d.StrategyTag {
		diff("strategy_tag", want.StrategyTag, d.StrategyTag)
	}
	if want.Override != nil && *want.Override != d.OverrideApplied {
		diff("override", *want.Override, d.OverrideApplied)
	}
	return diffs
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []Result) Summary {
	s := Summary{TotalTurns: len(results)}
	for _, r := range results {
		if r.Matched() {
			s.Matched++
		} else {
			s.Diverged++
		}
		if r.Decision.OverrideApplied {
			s.Overrides++
		}
		if r.Decision.Degraded {
			s.Degraded++
		}
	}
	if n := len(results); n > 0 {
		s.FinalState = results[n-1].Decision.NextState
	}
	return s
}

// #endregion replay
