package graph

// #region spec

// Spec is the declarative configuration artifact describing the state graph
// and its strategy table. It is decoded from YAML and compiled by Build.
type Spec struct {
	Nodes                []NodeSpec              `yaml:"nodes" json:"nodes"`
	Edges                []EdgeSpec              `yaml:"edges" json:"edges"`
	Guards               map[string]GuardSpec    `yaml:"guards,omitempty" json:"guards,omitempty"`
	Strategies           map[string]StrategySpec `yaml:"strategies" json:"strategies"`
	ThreatCrisisStrategy string                  `yaml:"threat_crisis_strategy,omitempty" json:"threat_crisis_strategy,omitempty"`
}

// NodeSpec declares a state. Declaration order is the tie-break priority.
type NodeSpec struct {
	ID          string       `yaml:"id" json:"id"`
	Kind        Kind         `yaml:"kind" json:"kind"`
	Markers     []MarkerSpec `yaml:"markers,omitempty" json:"markers,omitempty"`
	AllowedFrom []string     `yaml:"allowed_from,omitempty" json:"allowed_from,omitempty"`
}

// MarkerSpec is one scoring rule. Every field that is set must hold for the
// rule to match; Weight is added to the node's match strength when it does.
type MarkerSpec struct {
	Category     string   `yaml:"category,omitempty" json:"category,omitempty"`
	Indicator    string   `yaml:"indicator,omitempty" json:"indicator,omitempty"`
	Violence     string   `yaml:"violence,omitempty" json:"violence,omitempty"`
	MinPolarity  *float64 `yaml:"min_polarity,omitempty" json:"min_polarity,omitempty"`
	MaxPolarity  *float64 `yaml:"max_polarity,omitempty" json:"max_polarity,omitempty"`
	MinIntensity *float64 `yaml:"min_intensity,omitempty" json:"min_intensity,omitempty"`
	Stuck        bool     `yaml:"stuck,omitempty" json:"stuck,omitempty"`
	Weight       float64  `yaml:"weight" json:"weight"`
}

// EdgeSpec declares a guarded transition.
type EdgeSpec struct {
	From          string `yaml:"from" json:"from"`
	To            string `yaml:"to" json:"to"`
	Guard         string `yaml:"guard,omitempty" json:"guard,omitempty"`
	CooldownTurns int    `yaml:"cooldown_turns,omitempty" json:"cooldown_turns,omitempty"`
	Clarify       bool   `yaml:"clarify,omitempty" json:"clarify,omitempty"`
}

// GuardSpec is a named condition. All set fields must hold.
type GuardSpec struct {
	MinConfidence   *float64 `yaml:"min_confidence,omitempty" json:"min_confidence,omitempty"`
	MinTurnsInState *int     `yaml:"min_turns_in_state,omitempty" json:"min_turns_in_state,omitempty"`
	MaxTurnsInState *int     `yaml:"max_turns_in_state,omitempty" json:"max_turns_in_state,omitempty"`
	RiskAtLeast     string   `yaml:"risk_at_least,omitempty" json:"risk_at_least,omitempty"`
	RiskBelow       string   `yaml:"risk_below,omitempty" json:"risk_below,omitempty"`
	ThreatAtLeast   string   `yaml:"threat_at_least,omitempty" json:"threat_at_least,omitempty"`
	Ambiguous       *bool    `yaml:"ambiguous,omitempty" json:"ambiguous,omitempty"`
	AnyCategory     []string `yaml:"any_category,omitempty" json:"any_category,omitempty"`
	AllOf           []string `yaml:"all_of,omitempty" json:"all_of,omitempty"`
	AnyOf           []string `yaml:"any_of,omitempty" json:"any_of,omitempty"`
	Not             string   `yaml:"not,omitempty" json:"not,omitempty"`
}

// StrategySpec maps a state to its strategy tag, optionally per risk level.
type StrategySpec struct {
	Default string            `yaml:"default" json:"default"`
	Levels  map[string]string `yaml:"levels,omitempty" json:"levels,omitempty"`
}

// #endregion spec

// #region kind

// Kind is the tagged variant of a state node.
type Kind string

const (
	KindEntry     Kind = "entry"
	KindNormal    Kind = "normal"
	KindClarify   Kind = "clarify"
	KindRedirect  Kind = "redirect"
	KindCrisis    Kind = "crisis"
	KindStabilize Kind = "stabilize"
	KindEnd       Kind = "end"
)

func (k Kind) valid() bool {
	switch k {
	case KindEntry, KindNormal, KindClarify, KindRedirect, KindCrisis, KindStabilize, KindEnd:
		return true
	}
	return false
}

// #endregion kind
