package signals

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func extract(text string, history ...string) SignalSet {
	return NewExtractor(DefaultExtractorConfig()).Extract(text, history)
}

func TestExtractCategories(t *testing.T) {
	cases := []struct {
		name string
		text string
		want []Category
	}{
		{"sadness", "I feel so sad and hopeless lately.", []Category{CategorySadness, CategoryHopelessness}},
		{"anger", "I'm so ANGRY at my boss right now!!!", []Category{CategoryAnger}},
		{"grief", "My dad passed away last month and I'm grieving", []Category{CategoryGrief}},
		{"greeting", "hello there", []Category{CategoryGreeting}},
		{"joy", "Thanks, I had a good day and I feel happy.", []Category{CategoryGratitude, CategoryJoy}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := extract(tc.text).Categories
			assert.Equal(t, SetOf(tc.want...), got, "got %v", got.Strings())
		})
	}
}

func TestExtractEmptyAndInvalidAreNeutral(t *testing.T) {
	for _, text := range []string{"", "   \t\n", "\xff\xfe\xfd"} {
		assert.Equal(t, Neutral(), extract(text), "%q", text)
	}
}

func TestInvalidBytesAreDropped(t *testing.T) {
	sig := extract("I'm going to kill myself tonight\xff")
	assert.True(t, sig.RiskIndicators.Has(IndicatorActiveIdeation))
	assert.True(t, sig.RiskIndicators.Has(IndicatorTimeline))

	carried := extract("I have the pills and I'll do it tonight", "I want to die\xfe")
	assert.True(t, carried.RiskIndicators.Has(IndicatorHistoryCarry))
}

func TestCommonIdeationWordingIsRecognised(t *testing.T) {
	for _, text := range []string{
		"I don't want to be here anymore",
		"I wish I was dead",
		"I want to disappear",
		"I'd rather be dead",
		"I want to end it",
		"everyone would be better off if I was gone",
	} {
		t.Run(text, func(t *testing.T) {
			sig := extract(text)
			assert.False(t, sig.RiskIndicators.Intersect(IdeationAnchors).Empty(), "indicators %v", sig.RiskIndicators.Strings())
		})
	}
}

func TestHopelessnessFlagsAmbiguousIdeation(t *testing.T) {
	sig := extract("I feel so sad and hopeless lately.")
	assert.True(t, sig.RiskIndicators.Has(IndicatorAmbiguousIdeation))
	assert.False(t, sig.RiskIndicators.Has(IndicatorActiveIdeation))
	assert.False(t, sig.Escalating())
}

func TestSpecificityNeedsAnAnchor(t *testing.T) {
	crisis := extract("I'm going to kill myself tonight. I have a plan and the pills are ready.")
	want := SetOf(IndicatorActiveIdeation, IndicatorIntent, IndicatorTimeline, IndicatorPlan, IndicatorMeans)
	assert.Equal(t, want, crisis.RiskIndicators.Intersect(want))
	assert.True(t, crisis.Escalating())
	assert.True(t, crisis.ViolenceIndicators.Empty(), "self-directed wording is not violence")

	errand := extract("I'm going to the pharmacy tonight to pick up my pills.")
	assert.True(t, errand.RiskIndicators.Intersect(SpecificityMarkers).Empty())
}

func TestIdeationCarriesFromHistory(t *testing.T) {
	text := "I have the pills and I'll do it tonight"

	alone := extract(text)
	assert.False(t, alone.RiskIndicators.Has(IndicatorMeans))

	carried := extract(text, "how was work", "honestly I want to die")
	assert.True(t, carried.RiskIndicators.Has(IndicatorActiveIdeation))
	assert.True(t, carried.RiskIndicators.Has(IndicatorHistoryCarry))
	assert.True(t, carried.RiskIndicators.Has(IndicatorMeans))
	assert.True(t, carried.RiskIndicators.Has(IndicatorTimeline))
}

func TestHistoryWindowBoundsCarry(t *testing.T) {
	config := DefaultExtractorConfig()
	config.HistoryWindow = 1
	sig := NewExtractor(config).Extract("I have the pills and I'll do it tonight", []string{"I want to die", "anyway"})
	assert.False(t, sig.RiskIndicators.Has(IndicatorHistoryCarry))
}

func TestViolenceIndicators(t *testing.T) {
	sig := extract("I'm going to kill my boss today. I know where he lives.")
	want := SetOf(ViolenceIntent, ViolenceTarget, ViolencePlan, ViolenceImmediacy)
	assert.Equal(t, want, sig.ViolenceIndicators.Intersect(want))
	assert.False(t, sig.ViolenceIndicators.Has(ViolenceWeapon))
	assert.True(t, sig.Escalating())

	venting := extract("My boss is so annoying, I could scream")
	assert.False(t, venting.ViolenceIndicators.Has(ViolenceIntent))

	errand := extract("I'm going to beat the traffic tonight")
	assert.True(t, errand.ViolenceIndicators.Empty(), "indicators %v", errand.ViolenceIndicators.Strings())
}

func TestCarriedViolenceKeepsTarget(t *testing.T) {
	sig := extract("I've got a knife and it's happening tonight", "I want to stab my ex")
	want := SetOf(ViolenceIntent, ViolenceTarget, ViolenceWeapon, ViolenceImmediacy, ViolenceHistoryCarry)
	assert.Equal(t, want, sig.ViolenceIndicators.Intersect(want))
}

func TestEvidenceNamesMatchedPatterns(t *testing.T) {
	e := NewExtractor(DefaultExtractorConfig())
	got := e.Evidence("I'm going to kill myself tonight. I have a plan and the pills are ready.")
	assert.Contains(t, got, "kill myself")
	assert.Contains(t, got, "immediacy")
	assert.Empty(t, e.Evidence("hello there"))
	assert.Nil(t, e.Evidence("\xff"))
}

func TestPolarityNegation(t *testing.T) {
	assert.Greater(t, extract("I am happy").Polarity, 0.0)
	assert.Less(t, extract("I am not happy").Polarity, 0.0)
	assert.Greater(t, extract("I am not sad").Polarity, 0.0)
}

func TestIntensityBoosts(t *testing.T) {
	plain := extract("I'm angry").Intensity
	shouted := extract("I'm so ANGRY!!!").Intensity
	assert.Greater(t, shouted, plain)
	assert.LessOrEqual(t, shouted, 1.0)
}

func TestProtectiveFactors(t *testing.T) {
	sig := extract("I talked to my therapist and I'm safe")
	assert.True(t, sig.Protective())
	assert.True(t, sig.RiskIndicators.Has(IndicatorProtectiveHelpSeeking))
	assert.True(t, sig.RiskIndicators.Has(IndicatorProtectiveCommitment))
}

func TestSetMarshalsNames(t *testing.T) {
	raw, err := json.Marshal(SetOf(IndicatorPlan, IndicatorActiveIdeation))
	require.NoError(t, err)
	assert.JSONEq(t, `["active_ideation","plan"]`, string(raw))

	raw, err = json.Marshal(CategorySet(0))
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))
}

func TestParseNames(t *testing.T) {
	c, ok := ParseCategory("anger")
	assert.True(t, ok)
	assert.Equal(t, CategoryAnger, c)

	i, ok := ParseIndicator("history_carry")
	assert.True(t, ok)
	assert.Equal(t, IndicatorHistoryCarry, i)

	_, ok = ParseViolence("sword")
	assert.False(t, ok)
}
