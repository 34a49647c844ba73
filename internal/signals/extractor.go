package signals

import (
	"math"
	"strings"
	"unicode"
)

// #region extractor

// Extractor converts an utterance and its short rolling history into a
// SignalSet. It holds no mutable state and is safe for concurrent use.
type Extractor struct {
	config ExtractorConfig
}

// NewExtractor creates an Extractor with the given configuration.
func NewExtractor(config ExtractorConfig) *Extractor {
	return &Extractor{config: config}
}

// #endregion extractor

// #region extract

// Extract computes the signal set for one turn. Invalid UTF-8 bytes are
// dropped before matching; empty or whitespace-only input yields the
// neutral set rather than an error.
func (e *Extractor) Extract(utterance string, history []string) SignalSet {
	utterance = strings.ToValidUTF8(utterance, "")
	if strings.TrimSpace(utterance) == "" {
		return Neutral()
	}
	text := strings.ToLower(utterance)
	minWeight := e.config.MinPatternWeight

	polarity, magnitude := e.polarity(text)

	out := SignalSet{
		Polarity:   polarity,
		Intensity:  e.intensity(utterance, text, magnitude),
		Categories: scan(categoryRules, text, minWeight),
	}

	// Self-directed risk.
	anchors := scan(ideationRules, text, minWeight)
	if out.Categories.Has(CategoryHopelessness) {
		// Recall over precision: hopeless wording could indicate ideation.
		anchors = anchors.With(IndicatorAmbiguousIdeation)
	}
	specifics := scan(specificityRules, text, minWeight)
	if anchors.Empty() && !specifics.Empty() {
		if carried := e.carriedIdeation(history); !carried.Empty() {
			anchors = carried.With(IndicatorHistoryCarry)
		}
	}
	risk := anchors
	if !anchors.Empty() {
		risk = risk.Union(specifics)
	}
	risk = risk.Union(scan(riskFactorRules, text, minWeight)).Union(scan(protectiveRules, text, minWeight))
	if out.Categories.Has(CategoryLoneliness) && !anchors.Empty() {
		risk = risk.With(IndicatorIsolation)
	}
	out.RiskIndicators = risk

	// Other-directed violence. Intent needs a person as the object; the
	// target marker comes from the target rules, or from the carried line.
	violent := violentIntentRe.MatchString(text)
	var violence ViolenceSet
	if violent {
		violence = violence.With(ViolenceIntent)
	}
	details := scan(violenceRules, text, minWeight)
	if !violent && details.HasAny(SetOf(ViolenceWeapon, ViolencePlan, ViolenceImmediacy)) && e.carriedViolence(history) {
		violent = true
		violence = violence.With(ViolenceIntent).With(ViolenceTarget).With(ViolenceHistoryCarry)
	}
	if violent {
		violence = violence.Union(details)
	}
	out.ViolenceIndicators = violence

	return out
}

// Evidence names the risk and violence patterns the utterance matched, in
// rule order. It explains a decision; Extract alone drives it.
func (e *Extractor) Evidence(utterance string) []string {
	text := strings.ToLower(strings.ToValidUTF8(utterance, ""))
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var out []string
	out = appendMatched(out, ideationRules, text)
	out = appendMatched(out, specificityRules, text)
	out = appendMatched(out, riskFactorRules, text)
	out = appendMatched(out, protectiveRules, text)
	out = appendMatched(out, violenceRules, text)
	return out
}

// #endregion extract

// #region history-carry

// carriedIdeation returns the ideation anchors found in recent history lines.
// Only explicit anchors carry; ambiguous wording does not.
func (e *Extractor) carriedIdeation(history []string) IndicatorSet {
	explicit := SetOf(IndicatorPassiveIdeation, IndicatorActiveIdeation, IndicatorSelfHarm)
	var out IndicatorSet
	for _, line := range recent(history, e.config.HistoryWindow) {
		line = strings.ToLower(strings.ToValidUTF8(line, ""))
		out = out.Union(scan(ideationRules, line, e.config.MinPatternWeight).Intersect(explicit))
	}
	return out
}

func (e *Extractor) carriedViolence(history []string) bool {
	for _, line := range recent(history, e.config.HistoryWindow) {
		if violentIntentRe.MatchString(strings.ToLower(strings.ToValidUTF8(line, ""))) {
			return true
		}
	}
	return false
}

func recent(history []string, n int) []string {
	if n <= 0 || len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

// #endregion history-carry

// #region polarity

// polarity returns tanh-squashed summed valence and the summed magnitude.
// A negator flips the next valence word within three tokens.
func (e *Extractor) polarity(text string) (float64, float64) {
	tokens := tokenize(text)
	var sum, magnitude float64
	negateFor := 0
	for _, tok := range tokens {
		if negators[tok] {
			negateFor = 3
			continue
		}
		if v, ok := valence[tok]; ok {
			if negateFor > 0 {
				v = -v * 0.5
				negateFor = 0
			}
			sum += v
			magnitude += math.Abs(v)
			continue
		}
		if negateFor > 0 {
			negateFor--
		}
	}
	return math.Tanh(sum / 2), magnitude
}

// #endregion polarity

// #region intensity

func (e *Extractor) intensity(original, lower string, magnitude float64) float64 {
	score := 1 - math.Exp(-magnitude/2)

	var boost float64
	for _, tok := range tokenize(lower) {
		if intensifiers[tok] {
			boost += e.config.IntensifierBoost
		}
	}
	score += math.Min(boost, e.config.MaxIntensifierBoost)

	score += math.Min(float64(strings.Count(original, "!"))*e.config.ExclamationBoost, e.config.MaxExclamationBoost)

	var caps float64
	for _, w := range strings.Fields(original) {
		if isShouted(w) {
			caps += e.config.CapsBoost
		}
	}
	score += math.Min(caps, e.config.MaxCapsBoost)

	return clamp01(score)
}

// isShouted reports whether a word is two or more letters, all upper case.
func isShouted(word string) bool {
	letters := 0
	for _, ch := range word {
		if unicode.IsLetter(ch) {
			if !unicode.IsUpper(ch) {
				return false
			}
			letters++
		}
	}
	return letters >= 2
}

// #endregion intensity

// #region helpers

// tokenize splits lowercase text into words, keeping apostrophes.
func tokenize(text string) []string {
	return strings.FieldsFunc(text, func(ch rune) bool {
		return !unicode.IsLetter(ch) && ch != '\''
	})
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// #endregion helpers
