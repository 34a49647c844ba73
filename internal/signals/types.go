package signals

import (
	"encoding/json"
	"math/bits"
)

// #region flag-set

// Flag is any small enumerated marker that can live in a Set.
type Flag interface {
	~uint8
	String() string
}

// Set is an immutable bitmask of flags. The zero value is the empty set.
type Set[T Flag] uint64

// SetOf builds a set from the given flags.
func SetOf[T Flag](flags ...T) Set[T] {
	var s Set[T]
	for _, f := range flags {
		s = s.With(f)
	}
	return s
}

// Has reports whether f is in the set.
func (s Set[T]) Has(f T) bool { return s&(1<<uint(f)) != 0 }

// With returns a copy of the set with f added.
func (s Set[T]) With(f T) Set[T] { return s | 1<<uint(f) }

// Union returns the flags present in either set.
func (s Set[T]) Union(o Set[T]) Set[T] { return s | o }

// Intersect returns the flags present in both sets.
func (s Set[T]) Intersect(o Set[T]) Set[T] { return s & o }

// HasAny reports whether any flag of o is in s.
func (s Set[T]) HasAny(o Set[T]) bool { return s&o != 0 }

// Len returns the number of flags in the set.
func (s Set[T]) Len() int { return bits.OnesCount64(uint64(s)) }

// Empty reports whether the set has no flags.
func (s Set[T]) Empty() bool { return s == 0 }

// Items returns the flags in ascending declaration order.
func (s Set[T]) Items() []T {
	out := make([]T, 0, s.Len())
	for i := 0; i < 64; i++ {
		if s&(1<<uint(i)) != 0 {
			out = append(out, T(i))
		}
	}
	return out
}

// Strings returns the flag names in ascending declaration order.
func (s Set[T]) Strings() []string {
	items := s.Items()
	out := make([]string, len(items))
	for i, f := range items {
		out[i] = f.String()
	}
	return out
}

// MarshalJSON encodes the set as a list of names.
func (s Set[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Strings())
}

// #endregion flag-set

// #region category

// Category is an emotional content category matched in an utterance.
type Category uint8

const (
	CategorySadness Category = iota
	CategoryHopelessness
	CategoryGrief
	CategoryAnger
	CategoryAnxiety
	CategoryFear
	CategoryLoneliness
	CategoryShame
	CategoryCalm
	CategoryGratitude
	CategoryJoy
	CategoryConfusion
	CategoryGreeting
	CategoryFarewell
	categoryCount
)

var categoryNames = [categoryCount]string{
	"sadness", "hopelessness", "grief", "anger", "anxiety", "fear", "loneliness",
	"shame", "calm", "gratitude", "joy", "confusion", "greeting", "farewell",
}

func (c Category) String() string {
	if c < categoryCount {
		return categoryNames[c]
	}
	return "unknown"
}

// ParseCategory resolves a category by name.
func ParseCategory(name string) (Category, bool) {
	for i, n := range categoryNames {
		if n == name {
			return Category(i), true
		}
	}
	return 0, false
}

// CategorySet is the set of matched categories for a turn.
type CategorySet = Set[Category]

// #endregion category

// #region indicator

// Indicator is a self-harm / suicide risk marker. Violence markers live in a
// separate type so the two are never conflated.
type Indicator uint8

const (
	IndicatorPassiveIdeation Indicator = iota
	IndicatorActiveIdeation
	IndicatorAmbiguousIdeation
	IndicatorSelfHarm
	IndicatorPlan
	IndicatorMeans
	IndicatorIntent
	IndicatorTimeline
	IndicatorPriorAttempt
	IndicatorSubstance
	IndicatorIsolation
	IndicatorBurden
	IndicatorFinalActs
	IndicatorProtectiveConnection
	IndicatorProtectiveHelpSeeking
	IndicatorProtectiveCommitment
	IndicatorProtectiveFuture
	IndicatorHistoryCarry
	indicatorCount
)

var indicatorNames = [indicatorCount]string{
	"passive_ideation", "active_ideation", "ambiguous_ideation", "self_harm",
	"plan", "means", "intent", "timeline",
	"prior_attempt", "substance", "isolation", "burden", "final_acts",
	"protective_connection", "protective_help_seeking", "protective_commitment", "protective_future",
	"history_carry",
}

func (i Indicator) String() string {
	if i < indicatorCount {
		return indicatorNames[i]
	}
	return "unknown"
}

// ParseIndicator resolves a self-harm indicator by name.
func ParseIndicator(name string) (Indicator, bool) {
	for i, n := range indicatorNames {
		if n == name {
			return Indicator(i), true
		}
	}
	return 0, false
}

// IndicatorSet is the set of self-harm indicators for a turn.
type IndicatorSet = Set[Indicator]

var (
	// IdeationAnchors are the self-directed markers that make specificity
	// markers (plan, means, intent, timeline) count toward self-harm risk.
	IdeationAnchors = SetOf(IndicatorPassiveIdeation, IndicatorActiveIdeation, IndicatorAmbiguousIdeation, IndicatorSelfHarm)

	// SpecificityMarkers are the shared plan/means/intent/timeline markers.
	SpecificityMarkers = SetOf(IndicatorPlan, IndicatorMeans, IndicatorIntent, IndicatorTimeline)

	// RiskFactors raise the risk score when ideation is present.
	RiskFactors = SetOf(IndicatorPriorAttempt, IndicatorSubstance, IndicatorIsolation, IndicatorBurden, IndicatorFinalActs)

	// ProtectiveFactors lower the risk score and drive de-escalation.
	ProtectiveFactors = SetOf(IndicatorProtectiveConnection, IndicatorProtectiveHelpSeeking, IndicatorProtectiveCommitment, IndicatorProtectiveFuture)

	escalationIndicators = SetOf(
		IndicatorPassiveIdeation, IndicatorActiveIdeation, IndicatorSelfHarm,
		IndicatorPlan, IndicatorMeans, IndicatorIntent, IndicatorTimeline, IndicatorFinalActs,
	)
)

// #endregion indicator

// #region violence

// ViolenceIndicator is an other-directed violence marker.
type ViolenceIndicator uint8

const (
	ViolenceIntent ViolenceIndicator = iota
	ViolenceTarget
	ViolenceWeapon
	ViolencePlan
	ViolenceImmediacy
	ViolenceHistoryCarry
	violenceCount
)

var violenceNames = [violenceCount]string{
	"violent_intent", "target", "weapon", "plan", "immediacy", "history_carry",
}

func (v ViolenceIndicator) String() string {
	if v < violenceCount {
		return violenceNames[v]
	}
	return "unknown"
}

// ParseViolence resolves a violence indicator by name.
func ParseViolence(name string) (ViolenceIndicator, bool) {
	for i, n := range violenceNames {
		if n == name {
			return ViolenceIndicator(i), true
		}
	}
	return 0, false
}

// ViolenceSet is the set of violence indicators for a turn.
type ViolenceSet = Set[ViolenceIndicator]

// #endregion violence

// #region signal-set

// SignalSet is the structured per-turn extraction. It is a value type and is
// never mutated after Extract returns.
type SignalSet struct {
	Polarity           float64      `json:"polarity"`  // [-1, 1]
	Intensity          float64      `json:"intensity"` // [0, 1]
	Categories         CategorySet  `json:"categories"`
	RiskIndicators     IndicatorSet `json:"risk_indicators"`
	ViolenceIndicators ViolenceSet  `json:"violence_indicators"`
}

// Neutral returns the signal set used for empty or malformed input.
func Neutral() SignalSet {
	return SignalSet{}
}

// Escalating reports whether any self-harm or violence escalation marker is present.
func (s SignalSet) Escalating() bool {
	return s.RiskIndicators.HasAny(escalationIndicators) || s.ViolenceIndicators.Has(ViolenceIntent)
}

// Protective reports whether any protective-factor marker is present.
func (s SignalSet) Protective() bool {
	return s.RiskIndicators.HasAny(ProtectiveFactors)
}

// #endregion signal-set

// #region config

// ExtractorConfig holds tuning knobs for signal extraction.
type ExtractorConfig struct {
	MinPatternWeight    float64 `yaml:"min_pattern_weight"`    // summed pattern weight needed to flag a category/indicator
	IntensifierBoost    float64 `yaml:"intensifier_boost"`     // per intensifier word
	MaxIntensifierBoost float64 `yaml:"max_intensifier_boost"` // cap across intensifiers
	ExclamationBoost    float64 `yaml:"exclamation_boost"`     // per '!'
	MaxExclamationBoost float64 `yaml:"max_exclamation_boost"`
	CapsBoost           float64 `yaml:"caps_boost"` // per all-caps word
	MaxCapsBoost        float64 `yaml:"max_caps_boost"`
	HistoryWindow       int     `yaml:"history_window"` // history lines scanned for anchor carry
}

// DefaultExtractorConfig returns sensible defaults.
func DefaultExtractorConfig() ExtractorConfig {
	return ExtractorConfig{
		MinPatternWeight:    0.5,
		IntensifierBoost:    0.1,
		MaxIntensifierBoost: 0.3,
		ExclamationBoost:    0.05,
		MaxExclamationBoost: 0.2,
		CapsBoost:           0.1,
		MaxCapsBoost:        0.2,
		HistoryWindow:       5,
	}
}

// #endregion config
