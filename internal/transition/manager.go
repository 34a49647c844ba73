// Package transition validates candidate next states against the state
// graph and commits finalized decisions to the conversation context.
package transition

import (
	"fmt"

	"github.com/danielpatrickdp/affect-triage/internal/graph"
	"github.com/danielpatrickdp/affect-triage/internal/signals"
	"github.com/danielpatrickdp/affect-triage/internal/triage"
)

// #region config

// Config holds transition thresholds.
type Config struct {
	MinTransitionConfidence float64 `yaml:"min_transition_confidence"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{MinTransitionConfidence: 0.25}
}

// #endregion config

// #region types

// Input is everything a single turn's decision is made from.
type Input struct {
	Ctx      *triage.ConversationContext
	Signals  signals.SignalSet
	Estimate triage.StateEstimate
	Risk     triage.RiskAssessment
	Threat   triage.ThreatAssessment
}

func (in Input) env(target triage.StateID) graph.Env {
	return graph.Env{
		Target:   target,
		Estimate: in.Estimate,
		Ctx:      in.Ctx,
		Risk:     in.Risk,
		Threat:   in.Threat,
		Signals:  in.Signals,
	}
}

// Manager is the graph-driven state machine. It holds no per-session state.
type Manager struct {
	config Config
}

// NewManager creates a Manager.
func NewManager(config Config) *Manager {
	return &Manager{config: config}
}

// #endregion types

// #region decide

// Decide picks the pre-override next state. It reads the context but never
// mutates it; see Commit.
func (m *Manager) Decide(in Input, g *graph.StateGraph) triage.Decision {
	ctx := in.Ctx
	cur := ctx.CurrentState
	d := triage.Decision{
		Turn:           ctx.Turn + 1,
		PreviousState:  cur,
		NextState:      cur,
		RiskLevel:      in.Risk.Level,
		ThreatCategory: in.Threat.Category,
	}

	if in.Estimate.Ambiguous {
		m.decideAmbiguous(in, g, &d)
		return d
	}

	for _, c := range in.Estimate.Candidates {
		if c.State == cur {
			d.Note("stay %s: current state ranks highest (%.2f)", cur, c.Confidence)
			return d
		}
		if reason := m.blocked(in, g, c); reason != "" {
			d.Note("skip %s: %s", c.State, reason)
			continue
		}
		e, _ := g.Edge(cur, c.State)
		d.NextState = c.State
		d.Note("transition %s -> %s via guard %s (%.2f)", cur, c.State, e.Guard.Name(), c.Confidence)
		return d
	}

	d.Note("stay %s: no candidate passed its edge", cur)
	return d
}

// Hold returns a decision that keeps the current state. The engine uses it
// for degraded turns, where the estimate cannot be trusted.
func (m *Manager) Hold(in Input, why string) triage.Decision {
	cur := in.Ctx.CurrentState
	d := triage.Decision{
		Turn:           in.Ctx.Turn + 1,
		PreviousState:  cur,
		NextState:      cur,
		RiskLevel:      in.Risk.Level,
		ThreatCategory: in.Threat.Category,
	}
	d.Note("hold %s: %s", cur, why)
	return d
}

func (m *Manager) decideAmbiguous(in Input, g *graph.StateGraph, d *triage.Decision) {
	cur := in.Ctx.CurrentState
	if in.Ctx.LastAmbiguous {
		d.Note("hold %s: second consecutive ambiguous estimate", cur)
		return
	}
	for _, e := range g.Outgoing(cur) {
		if !e.Clarify {
			continue
		}
		target, _ := g.Node(e.To)
		if !target.Admits(cur) || cooling(e, in.Ctx) || !e.Guard.Eval(in.env(e.To)) {
			continue
		}
		d.NextState = e.To
		d.Note("clarify %s -> %s: ambiguous estimate", cur, e.To)
		return
	}
	d.Note("hold %s: ambiguous estimate, no clarify edge available", cur)
}

// blocked returns why a candidate cannot be entered this turn, or "".
func (m *Manager) blocked(in Input, g *graph.StateGraph, c triage.Candidate) string {
	cur := in.Ctx.CurrentState
	e, ok := g.Edge(cur, c.State)
	if !ok {
		return "no edge"
	}
	if target, _ := g.Node(c.State); !target.Admits(cur) {
		return "not allowed from " + string(cur)
	}
	if cooling(e, in.Ctx) {
		return fmt.Sprintf("edge cooling down (%d turns)", e.CooldownTurns)
	}
	if c.Confidence < m.config.MinTransitionConfidence {
		return fmt.Sprintf("confidence %.2f below %.2f", c.Confidence, m.config.MinTransitionConfidence)
	}
	if !e.Guard.Eval(in.env(c.State)) {
		return "guard " + e.Guard.Name() + " failed"
	}
	return ""
}

// cooling reports whether e was used too recently to fire on the next turn.
func cooling(e graph.Edge, ctx *triage.ConversationContext) bool {
	last, ok := ctx.EdgeLastUsed[e.Key()]
	if !ok || e.CooldownTurns == 0 {
		return false
	}
	return last+e.CooldownTurns > ctx.Turn+1
}

// #endregion decide

// #region commit

// Commit applies a finalized decision to the context. A NextState missing
// from the graph is refused: the context stays put and an error is returned,
// but the turn is still counted.
func (m *Manager) Commit(in Input, d triage.Decision, g *graph.StateGraph) error {
	ctx := in.Ctx
	turn := ctx.Turn + 1
	next := d.NextState

	var err error
	if !g.Has(next) {
		err = fmt.Errorf("commit turn %d: unknown state %q", turn, next)
		next = ctx.CurrentState
	}

	if next != ctx.CurrentState {
		if !d.OverrideApplied {
			ctx.EdgeLastUsed[triage.EdgeKey(ctx.CurrentState, next)] = turn
		}
		ctx.CurrentState = next
		ctx.StateEnteredAtTurn = turn
		ctx.TurnsInState = 0
	} else {
		ctx.TurnsInState++
	}

	ctx.RecentSignals.Push(in.Signals)
	ctx.RecentStates.Push(next)
	ctx.SessionRisk = d.RiskLevel
	if in.Signals.Protective() {
		ctx.ProtectiveStreak++
	} else {
		ctx.ProtectiveStreak = 0
	}
	ctx.LastAmbiguous = in.Estimate.Ambiguous
	ctx.Turn = turn
	return err
}

// #endregion commit
