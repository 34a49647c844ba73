// Package engine runs one conversation turn end to end: signal extraction,
// concurrent scoring, transition, crisis override, commit and audit.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/affect-triage/internal/audit"
	"github.com/danielpatrickdp/affect-triage/internal/estimator"
	"github.com/danielpatrickdp/affect-triage/internal/graph"
	"github.com/danielpatrickdp/affect-triage/internal/metrics"
	"github.com/danielpatrickdp/affect-triage/internal/override"
	"github.com/danielpatrickdp/affect-triage/internal/risk"
	"github.com/danielpatrickdp/affect-triage/internal/session"
	"github.com/danielpatrickdp/affect-triage/internal/signals"
	"github.com/danielpatrickdp/affect-triage/internal/threat"
	"github.com/danielpatrickdp/affect-triage/internal/transition"
	"github.com/danielpatrickdp/affect-triage/internal/triage"
)

// #region config

// Config gathers every tunable the engine and its components read.
type Config struct {
	Signals    signals.ExtractorConfig `yaml:"signals"`
	Estimator  estimator.Config        `yaml:"estimator"`
	Risk       risk.Config             `yaml:"risk"`
	Threat     threat.Config           `yaml:"threat"`
	Transition transition.Config       `yaml:"transition"`
	Session    session.Config          `yaml:"session"`

	TurnTimeout  time.Duration `yaml:"turn_timeout"`  // upper bound for the scorer fan-out
	HistoryLimit int           `yaml:"history_limit"` // most recent history lines kept per turn
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Signals:      signals.DefaultExtractorConfig(),
		Estimator:    estimator.DefaultConfig(),
		Risk:         risk.DefaultConfig(),
		Threat:       threat.DefaultConfig(),
		Transition:   transition.DefaultConfig(),
		Session:      session.DefaultConfig(),
		TurnTimeout:  300 * time.Millisecond,
		HistoryLimit: 5,
	}
}

// #endregion config

// #region types

// Turn is one inbound utterance.
type Turn struct {
	SessionID string   `json:"session_id"`
	Utterance string   `json:"utterance"`
	History   []string `json:"history,omitempty"`
}

// StateEstimator scores candidate next states.
type StateEstimator interface {
	Estimate(sig signals.SignalSet, ctx *triage.ConversationContext, g *graph.StateGraph) triage.StateEstimate
}

// RiskScorer is the self-harm classifier. Fast must never block.
type RiskScorer interface {
	Assess(sig signals.SignalSet, ctx *triage.ConversationContext) triage.RiskAssessment
	Fast(sig signals.SignalSet, ctx *triage.ConversationContext) triage.RiskAssessment
}

// ThreatScorer is the violence classifier. Fast must never block.
type ThreatScorer interface {
	Assess(sig signals.SignalSet, ctx *triage.ConversationContext) triage.ThreatAssessment
	Fast(sig signals.SignalSet, ctx *triage.ConversationContext) triage.ThreatAssessment
}

// #endregion types

// #region engine

// Engine is safe for concurrent use across sessions. Turns within a session
// are serialized in arrival order by the session store.
type Engine struct {
	config   Config
	graph    atomic.Pointer[graph.StateGraph]
	sessions *session.Store

	extractor *signals.Extractor
	estimator StateEstimator
	risk      RiskScorer
	threat    ThreatScorer
	manager   *transition.Manager
	override  *override.Coordinator

	// baseline classifiers for the panic fallback
	safeRisk   *risk.Stratifier
	safeThreat *threat.Differentiator

	sink    audit.Sink
	logger  *zap.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	now     func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithAuditSink sets where decisions are recorded.
func WithAuditSink(s audit.Sink) Option {
	return func(e *Engine) { e.sink = s }
}

// WithEstimator replaces the state estimator.
func WithEstimator(s StateEstimator) Option {
	return func(e *Engine) { e.estimator = s }
}

// WithRiskScorer replaces the risk classifier.
func WithRiskScorer(s RiskScorer) Option {
	return func(e *Engine) { e.risk = s }
}

// WithThreatScorer replaces the threat classifier.
func WithThreatScorer(s ThreatScorer) Option {
	return func(e *Engine) { e.threat = s }
}

// WithClock overrides the audit timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine serving g.
func New(config Config, g *graph.StateGraph, opts ...Option) *Engine {
	if config.TurnTimeout <= 0 {
		config.TurnTimeout = DefaultConfig().TurnTimeout
	}
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = DefaultConfig().HistoryLimit
	}
	e := &Engine{
		config:     config,
		extractor:  signals.NewExtractor(config.Signals),
		estimator:  estimator.New(config.Estimator),
		risk:       risk.New(config.Risk),
		threat:     threat.New(config.Threat),
		manager:    transition.NewManager(config.Transition),
		override:   override.NewCoordinator(),
		safeRisk:   risk.New(config.Risk),
		safeThreat: threat.New(config.Threat),
		logger:     zap.NewNop(),
		tracer:     otel.Tracer("github.com/danielpatrickdp/affect-triage/internal/engine"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.graph.Store(g)
	e.sessions = session.NewStore(config.Session, e.graph.Load, e.logger.Named("session"))
	e.logger = e.logger.Named("engine")
	return e
}

// Graph returns the graph new sessions start from.
func (e *Engine) Graph() *graph.StateGraph {
	return e.graph.Load()
}

// SwapGraph replaces the graph for sessions created from now on. Existing
// sessions keep the snapshot they started with.
func (e *Engine) SwapGraph(g *graph.StateGraph) {
	old := e.graph.Swap(g)
	e.logger.Info("graph swapped",
		zap.String("from_version", old.Version()),
		zap.String("to_version", g.Version()))
}

// Sessions exposes the session store for read-only inspection.
func (e *Engine) Sessions() *session.Store {
	return e.sessions
}

// SessionState reports where an idle session currently is. Unknown sessions
// and sessions with a turn in flight report false.
func (e *Engine) SessionState(id string) (triage.StateID, bool) {
	return e.sessions.State(id)
}

// #endregion engine

// #region process-turn

// ProcessTurn decides one turn. It never returns an error: timeouts and
// internal failures degrade to a safe decision that still honours crisis
// overrides.
func (e *Engine) ProcessTurn(ctx context.Context, turn Turn) triage.Decision {
	start := time.Now()
	if turn.SessionID == "" {
		turn.SessionID = uuid.NewString()
		e.logger.Debug("turn without session id, using a one-off session", zap.String("session_id", turn.SessionID))
	}

	ctx, span := e.tracer.Start(ctx, "triage.turn", trace.WithAttributes(attribute.String("session_id", turn.SessionID)))
	defer span.End()

	sess, release := e.sessions.Acquire(turn.SessionID)
	defer release()

	sig := e.extractor.Extract(turn.Utterance, boundHistory(turn.History, e.config.HistoryLimit))
	if sig == signals.Neutral() {
		e.logger.Debug("neutral signal set", zap.String("session_id", turn.SessionID), zap.Int("utterance_bytes", len(turn.Utterance)))
	}

	d, degraded := e.decide(ctx, sess, sig)
	d.ID = uuid.NewString()
	d.SessionID = turn.SessionID
	if evidence := e.extractor.Evidence(turn.Utterance); len(evidence) > 0 {
		d.Note("matched %s", strings.Join(evidence, ", "))
		span.SetAttributes(attribute.StringSlice("evidence", evidence))
	}

	span.SetAttributes(
		attribute.String("next_state", string(d.NextState)),
		attribute.String("risk_level", d.RiskLevel.String()),
		attribute.String("threat_category", d.ThreatCategory.String()),
		attribute.Bool("override", d.OverrideApplied),
	)
	if degraded != "" {
		span.AddEvent("degraded", trace.WithAttributes(attribute.String("reason", degraded)))
	}

	e.record(ctx, sess, d)
	e.observe(d, degraded, time.Since(start))
	return d
}

// decide runs the pipeline under the held session and commits the result.
// It returns the degraded-mode reason, or "".
func (e *Engine) decide(ctx context.Context, sess *session.Session, sig signals.SignalSet) (d triage.Decision, degraded string) {
	g := sess.Graph
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("turn panicked, using fallback decision",
				zap.String("session_id", sess.ID), zap.Any("panic", r))
			d, degraded = e.fallback(sess, sig, fmt.Sprint(r)), reasonPanic
		}
	}()

	s := e.score(ctx, sess.Ctx.Clone(), sig, g)
	in := transition.Input{
		Ctx:      sess.Ctx,
		Signals:  sig,
		Estimate: s.estimate,
		Risk:     s.risk,
		Threat:   s.threat,
	}

	if s.degraded != "" {
		e.logger.Warn("degraded turn",
			zap.String("session_id", sess.ID),
			zap.String("reason", s.degraded),
			zap.Bool("risk_fallback", s.risk.Fallback),
			zap.Bool("threat_fallback", s.threat.Fallback))
		d = e.manager.Hold(in, "degraded ("+s.degraded+")")
	} else {
		d = e.manager.Decide(in, g)
	}
	d = e.override.Resolve(s.risk, s.threat, d, g)
	d.Degraded = s.degraded != ""

	if err := e.manager.Commit(in, d, g); err != nil {
		e.logger.Error("commit refused", zap.String("session_id", sess.ID), zap.Error(err))
		d.NextState = sess.Ctx.CurrentState
		d.Note("commit refused: %v", err)
	}
	return d, s.degraded
}

// fallback builds a decision from the baseline fast classifiers only. It
// stays in the current state unless a crisis override applies.
func (e *Engine) fallback(sess *session.Session, sig signals.SignalSet, cause string) triage.Decision {
	g := sess.Graph
	in := transition.Input{
		Ctx:      sess.Ctx,
		Signals:  sig,
		Estimate: triage.StateEstimate{Candidates: []triage.Candidate{{State: sess.Ctx.CurrentState}}, Ambiguous: true},
		Risk:     e.safeRisk.Fast(sig, sess.Ctx),
		Threat:   e.safeThreat.Fast(sig, sess.Ctx),
	}
	d := e.manager.Hold(in, "internal error: "+cause)
	d = e.override.Resolve(in.Risk, in.Threat, d, g)
	d.Degraded = true
	if err := e.manager.Commit(in, d, g); err != nil {
		d.NextState = sess.Ctx.CurrentState
	}
	return d
}

// record emits the audit record. Sink failures are logged and counted only.
func (e *Engine) record(ctx context.Context, sess *session.Session, d triage.Decision) {
	if e.sink == nil {
		return
	}
	rec := audit.FromDecision(d, sess.Graph.Version(), e.now())
	err := e.sink.Emit(context.WithoutCancel(ctx), rec)
	if err == nil {
		return
	}
	e.logger.Warn("audit emit failed", zap.String("decision_id", d.ID), zap.Error(err))
	failed := audit.FailedSinks(err)
	if len(failed) == 0 {
		failed = []string{e.sink.Name()}
	}
	for _, name := range failed {
		e.metrics.ObserveAuditError(name)
	}
}

func (e *Engine) observe(d triage.Decision, degraded string, took time.Duration) {
	e.metrics.ObserveDecision(string(d.NextState), d.RiskLevel.String(), d.OverrideApplied)
	if d.OverrideApplied {
		trigger := override.TriggerFor(triage.RiskAssessment{Level: d.RiskLevel}, triage.ThreatAssessment{Category: d.ThreatCategory})
		e.metrics.ObserveOverride(string(trigger))
		e.logger.Warn("crisis override",
			zap.String("session_id", d.SessionID),
			zap.Int("turn", d.Turn),
			zap.String("trigger", string(trigger)),
			zap.String("previous_state", string(d.PreviousState)),
			zap.String("strategy", d.StrategyTag))
	}
	if degraded != "" {
		e.metrics.ObserveDegraded(degraded)
	}
	e.metrics.ObserveTurnDuration(took.Seconds())
	e.metrics.SetSessions(e.sessions.Len())

	e.logger.Debug("decision",
		zap.String("session_id", d.SessionID),
		zap.Int("turn", d.Turn),
		zap.String("previous_state", string(d.PreviousState)),
		zap.String("next_state", string(d.NextState)),
		zap.String("risk_level", d.RiskLevel.String()),
		zap.String("strategy", d.StrategyTag),
		zap.Duration("took", took))
}

// boundHistory keeps the newest limit entries.
func boundHistory(history []string, limit int) []string {
	if len(history) <= limit {
		return history
	}
	return history[len(history)-limit:]
}

// #endregion process-turn
