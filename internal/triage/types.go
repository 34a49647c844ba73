// Package triage holds the data model shared by every stage of the per-turn
// decision: risk/threat enums, assessments, estimates, the per-session
// conversation context and the externally visible Decision.
package triage

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/danielpatrickdp/affect-triage/internal/signals"
)

// #region state-id

// StateID names a node of the state graph.
type StateID string

// #endregion state-id

// #region risk-level

// RiskLevel is the ordinal self-harm risk level. Order matters: comparisons
// like level >= RiskHigh are used throughout.
type RiskLevel int

const (
	RiskNone RiskLevel = iota
	RiskLow
	RiskModerate
	RiskHigh
	RiskCritical
)

var riskLevelNames = [...]string{"NONE", "LOW", "MODERATE", "HIGH", "CRITICAL"}

func (l RiskLevel) String() string {
	if l >= RiskNone && l <= RiskCritical {
		return riskLevelNames[l]
	}
	return fmt.Sprintf("RiskLevel(%d)", int(l))
}

// ParseRiskLevel resolves a level by name, case-insensitively.
func ParseRiskLevel(s string) (RiskLevel, error) {
	for i, n := range riskLevelNames {
		if strings.EqualFold(n, s) {
			return RiskLevel(i), nil
		}
	}
	return RiskNone, fmt.Errorf("unknown risk level %q", s)
}

// MarshalJSON encodes the level by name.
func (l RiskLevel) MarshalJSON() ([]byte, error) { return json.Marshal(l.String()) }

// UnmarshalJSON decodes a level name.
func (l *RiskLevel) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseRiskLevel(s)
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// Lower returns the next level down, stopping at RiskNone.
func (l RiskLevel) Lower() RiskLevel {
	if l <= RiskNone {
		return RiskNone
	}
	return l - 1
}

// MaxRisk returns the higher of two levels.
func MaxRisk(a, b RiskLevel) RiskLevel {
	if a > b {
		return a
	}
	return b
}

// #endregion risk-level

// #region ideation

// IdeationType classifies self-harm thoughts by specificity.
type IdeationType string

const (
	IdeationNone      IdeationType = "none"
	IdeationAmbiguous IdeationType = "ambiguous"
	IdeationPassive   IdeationType = "passive"
	IdeationSelfHarm  IdeationType = "self_harm"
	IdeationActive    IdeationType = "active"
)

// RecommendedAction is the stratifier's suggested handling for a risk level.
type RecommendedAction string

const (
	ActionContinue            RecommendedAction = "continue"
	ActionMonitor             RecommendedAction = "monitor"
	ActionSafetyCheck         RecommendedAction = "safety_check"
	ActionSafetyPlan          RecommendedAction = "safety_plan"
	ActionEmergencyEscalation RecommendedAction = "emergency_escalation"
)

// ActionFor maps a risk level to its recommended action.
func ActionFor(level RiskLevel) RecommendedAction {
	switch level {
	case RiskLow:
		return ActionMonitor
	case RiskModerate:
		return ActionSafetyCheck
	case RiskHigh:
		return ActionSafetyPlan
	case RiskCritical:
		return ActionEmergencyEscalation
	default:
		return ActionContinue
	}
}

// #endregion ideation

// #region risk-assessment

// RiskAssessment is the Risk Stratifier's output.
type RiskAssessment struct {
	Level             RiskLevel            `json:"level"`
	Score             int                  `json:"score"`
	Ideation          IdeationType         `json:"ideation_type"`
	HasPlan           bool                 `json:"has_plan"`
	HasMeans          bool                 `json:"has_means"`
	HasIntent         bool                 `json:"has_intent"`
	HasTimeline       bool                 `json:"has_timeline"`
	ProtectiveFactors signals.IndicatorSet `json:"protective_factors"`
	RiskFactors       signals.IndicatorSet `json:"risk_factors"`
	RecommendedAction RecommendedAction    `json:"recommended_action"`
	HeldBySession     bool                 `json:"held_by_session"` // level floored by monotonic vigilance
	Fallback          bool                 `json:"fallback"`        // produced by the fast keyword path
}

// #endregion risk-assessment

// #region threat

// ThreatCategory separates venting from credible or imminent threats.
// Order matters: higher values are more severe.
type ThreatCategory int

const (
	ThreatEmotionalDischarge ThreatCategory = iota
	ThreatWithPlan
	ThreatImminentDanger
)

var threatNames = [...]string{"EMOTIONAL_DISCHARGE", "THREAT_WITH_PLAN", "IMMINENT_DANGER"}

func (c ThreatCategory) String() string {
	if c >= ThreatEmotionalDischarge && c <= ThreatImminentDanger {
		return threatNames[c]
	}
	return fmt.Sprintf("ThreatCategory(%d)", int(c))
}

// ParseThreatCategory resolves a category by name, case-insensitively.
func ParseThreatCategory(s string) (ThreatCategory, error) {
	for i, n := range threatNames {
		if strings.EqualFold(n, s) {
			return ThreatCategory(i), nil
		}
	}
	return ThreatEmotionalDischarge, fmt.Errorf("unknown threat category %q", s)
}

// MarshalJSON encodes the category by name.
func (c ThreatCategory) MarshalJSON() ([]byte, error) { return json.Marshal(c.String()) }

// UnmarshalJSON decodes a category name.
func (c *ThreatCategory) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseThreatCategory(s)
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// ThreatAssessment is the Violence Threat Differentiator's output.
type ThreatAssessment struct {
	Category           ThreatCategory `json:"category"`
	Specificity        float64        `json:"specificity"`
	EmotionalIntensity float64        `json:"emotional_intensity"`
	Confidence         float64        `json:"confidence"`
	Fallback           bool           `json:"fallback"`
}

// #endregion threat

// #region estimate

// Candidate is one scored next state.
type Candidate struct {
	State      StateID `json:"state"`
	Confidence float64 `json:"confidence"`
}

// StateEstimate is the State Estimator's ranked output.
type StateEstimate struct {
	Candidates []Candidate `json:"candidates"`
	Ambiguous  bool        `json:"ambiguous"`
	Stuck      bool        `json:"stuck"`
	Reasoning  string      `json:"reasoning"`
}

// Top returns the highest-ranked candidate.
func (e StateEstimate) Top() (Candidate, bool) {
	if len(e.Candidates) == 0 {
		return Candidate{}, false
	}
	return e.Candidates[0], true
}

// ConfidenceOf returns the candidate confidence for state, or 0.
func (e StateEstimate) ConfidenceOf(state StateID) float64 {
	for _, c := range e.Candidates {
		if c.State == state {
			return c.Confidence
		}
	}
	return 0
}

// #endregion estimate

// #region decision

// Decision is the engine's only externally visible output.
type Decision struct {
	ID              string         `json:"id,omitempty"`
	SessionID       string         `json:"session_id,omitempty"`
	Turn            int            `json:"turn"`
	PreviousState   StateID        `json:"previous_state"`
	NextState       StateID        `json:"next_state"`
	RiskLevel       RiskLevel      `json:"risk_level"`
	ThreatCategory  ThreatCategory `json:"threat_category"`
	StrategyTag     string         `json:"strategy_tag"`
	OverrideApplied bool           `json:"override_applied"`
	Degraded        bool           `json:"degraded"`
	AuditTrail      []string       `json:"audit_trail"`
}

// Note appends a formatted line to the audit trail.
func (d *Decision) Note(format string, args ...any) {
	d.AuditTrail = append(d.AuditTrail, fmt.Sprintf(format, args...))
}

// #endregion decision
