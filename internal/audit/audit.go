// Package audit is the per-decision diagnostic channel. Records carry
// structural decision metadata only; utterance text never reaches a sink.
package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/affect-triage/internal/triage"
)

// #region record

// Record is one audited decision.
type Record struct {
	DecisionID      string    `json:"decision_id"`
	SessionID       string    `json:"session_id"`
	Turn            int       `json:"turn"`
	GraphVersion    string    `json:"graph_version"`
	PreviousState   string    `json:"previous_state"`
	NextState       string    `json:"next_state"`
	RiskLevel       string    `json:"risk_level"`
	ThreatCategory  string    `json:"threat_category"`
	StrategyTag     string    `json:"strategy_tag"`
	OverrideApplied bool      `json:"override_applied"`
	Degraded        bool      `json:"degraded"`
	Trail           []string  `json:"trail"`
	CreatedAt       time.Time `json:"created_at"`
}

// FromDecision builds the audit record for d.
func FromDecision(d triage.Decision, graphVersion string, at time.Time) Record {
	trail := make([]string, len(d.AuditTrail))
	copy(trail, d.AuditTrail)
	return Record{
		DecisionID:      d.ID,
		SessionID:       d.SessionID,
		Turn:            d.Turn,
		GraphVersion:    graphVersion,
		PreviousState:   string(d.PreviousState),
		NextState:       string(d.NextState),
		RiskLevel:       d.RiskLevel.String(),
		ThreatCategory:  d.ThreatCategory.String(),
		StrategyTag:     d.StrategyTag,
		OverrideApplied: d.OverrideApplied,
		Degraded:        d.Degraded,
		Trail:           trail,
		CreatedAt:       at.UTC(),
	}
}

// #endregion record

// #region sink

// Sink receives audit records. Emit must be safe for concurrent use.
type Sink interface {
	Name() string
	Emit(ctx context.Context, r Record) error
}

// SinkError attributes a failure to the sink that produced it.
type SinkError struct {
	Sink string
	Err  error
}

func (e *SinkError) Error() string { return fmt.Sprintf("audit sink %s: %v", e.Sink, e.Err) }
func (e *SinkError) Unwrap() error { return e.Err }

// FailedSinks lists the sinks named by SinkErrors inside err.
func FailedSinks(err error) []string {
	var out []string
	var walk func(error)
	walk = func(e error) {
		switch v := e.(type) {
		case nil:
		case *SinkError:
			out = append(out, v.Sink)
		case interface{ Unwrap() []error }:
			for _, inner := range v.Unwrap() {
				walk(inner)
			}
		case interface{ Unwrap() error }:
			walk(v.Unwrap())
		}
	}
	walk(err)
	return out
}

// #endregion sink

// #region multi

// Multi fans a record out to every sink. One failing sink does not stop the
// others; all failures are joined.
type Multi struct {
	sinks []Sink
}

// NewMulti creates a fan-out sink.
func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks}
}

func (m *Multi) Name() string { return "multi" }

// Emit writes r to every sink.
func (m *Multi) Emit(ctx context.Context, r Record) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Emit(ctx, r); err != nil {
			errs = append(errs, &SinkError{Sink: s.Name(), Err: err})
		}
	}
	return errors.Join(errs...)
}

// #endregion multi

// #region log-sink

// LogSink writes records as structured log lines.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

// Emit logs r at info level, or warn when an override fired.
func (s *LogSink) Emit(_ context.Context, r Record) error {
	fields := []zap.Field{
		zap.String("decision_id", r.DecisionID),
		zap.String("session_id", r.SessionID),
		zap.Int("turn", r.Turn),
		zap.String("graph_version", r.GraphVersion),
		zap.String("previous_state", r.PreviousState),
		zap.String("next_state", r.NextState),
		zap.String("risk_level", r.RiskLevel),
		zap.String("threat_category", r.ThreatCategory),
		zap.String("strategy", r.StrategyTag),
		zap.Bool("override", r.OverrideApplied),
		zap.Bool("degraded", r.Degraded),
		zap.Strings("trail", r.Trail),
	}
	if r.OverrideApplied {
		s.logger.Warn("decision", fields...)
		return nil
	}
	s.logger.Info("decision", fields...)
	return nil
}

// #endregion log-sink
