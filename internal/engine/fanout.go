package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/affect-triage/internal/graph"
	"github.com/danielpatrickdp/affect-triage/internal/signals"
	"github.com/danielpatrickdp/affect-triage/internal/triage"
)

// Degraded-mode reasons, used as metric labels.
const (
	reasonTimeout = "timeout"
	reasonPanic   = "panic"
)

type scores struct {
	estimate triage.StateEstimate
	risk     triage.RiskAssessment
	threat   triage.ThreatAssessment
	degraded string
}

// score runs the three classifiers concurrently over the same signal set and
// a private context snapshot. Results that miss the turn deadline, or whose
// scorer panicked, are replaced: the estimate holds the current state and
// the classifiers fall back to their fast paths. The deadline is the
// engine's own; a caller that goes away still gets a full decision recorded.
func (e *Engine) score(ctx context.Context, snap *triage.ConversationContext, sig signals.SignalSet, g *graph.StateGraph) scores {
	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.config.TurnTimeout)
	defer cancel()

	// Buffered so late scorers never block after the deadline.
	estCh := make(chan triage.StateEstimate, 1)
	riskCh := make(chan triage.RiskAssessment, 1)
	threatCh := make(chan triage.ThreatAssessment, 1)

	var grp errgroup.Group
	grp.Go(guard("estimator", func() { estCh <- e.estimator.Estimate(sig, snap, g) }))
	grp.Go(guard("risk", func() { riskCh <- e.risk.Assess(sig, snap) }))
	grp.Go(guard("threat", func() { threatCh <- e.threat.Assess(sig, snap) }))

	done := make(chan error, 1)
	go func() { done <- grp.Wait() }()

	var out scores
	select {
	case err := <-done:
		if err != nil {
			out.degraded = reasonPanic
			e.logger.Error("scorer failed", zap.Error(err))
		}
	case <-tctx.Done():
		out.degraded = reasonTimeout
	}

	if out.degraded == "" {
		out.estimate, out.risk, out.threat = <-estCh, <-riskCh, <-threatCh
		return out
	}

	// A full assessment that did arrive is kept; the estimate never is.
	select {
	case out.risk = <-riskCh:
	default:
		out.risk = e.risk.Fast(sig, snap)
	}
	select {
	case out.threat = <-threatCh:
	default:
		out.threat = e.threat.Fast(sig, snap)
	}
	out.estimate = triage.StateEstimate{
		Candidates: []triage.Candidate{{State: snap.CurrentState}},
		Ambiguous:  true,
		Reasoning:  "degraded: " + out.degraded,
	}
	return out
}

// guard converts a scorer panic into an error.
func guard(name string, fn func()) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%s scorer panic: %v", name, r)
			}
		}()
		fn()
		return nil
	}
}
