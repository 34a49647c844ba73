package graph

// #region ids

// State ids of the default graph.
const (
	Onboarding         = "onboarding"
	CheckIn            = "check_in"
	PositiveReflection = "positive_reflection"
	GriefDespair       = "grief_despair"
	AngerProcessing    = "anger_processing"
	AnxietyGrounding   = "anxiety_grounding"
	Clarify            = "clarify"
	Redirect           = "redirect"
	Crisis             = "crisis"
	Stabilization      = "stabilization"
	SessionEnd         = "session_end"
)

// #endregion ids

// #region default-spec

// DefaultSpec returns the built-in graph used when no graph file is
// configured. It always passes Build.
func DefaultSpec() Spec {
	flowStates := []string{CheckIn, PositiveReflection, GriefDespair, AngerProcessing, AnxietyGrounding, Redirect}

	spec := Spec{
		Nodes: []NodeSpec{
			{ID: Onboarding, Kind: KindEntry, Markers: []MarkerSpec{
				{Category: "greeting", Weight: 0.6},
			}},
			{ID: Crisis, Kind: KindCrisis, Markers: []MarkerSpec{
				{Indicator: "active_ideation", Weight: 0.6},
				{Indicator: "self_harm", Weight: 0.4},
				{Indicator: "plan", Weight: 0.3},
				{Indicator: "means", Weight: 0.3},
				{Indicator: "final_acts", Weight: 0.4},
			}},
			{ID: Stabilization, Kind: KindStabilize, AllowedFrom: []string{Crisis}, Markers: []MarkerSpec{
				{Indicator: "protective_help_seeking", Weight: 0.5},
				{Indicator: "protective_connection", Weight: 0.5},
				{Indicator: "protective_commitment", Weight: 0.5},
				{Indicator: "protective_future", Weight: 0.4},
				{Category: "calm", Weight: 0.3},
			}},
			{ID: GriefDespair, Kind: KindNormal, Markers: []MarkerSpec{
				{Category: "sadness", Weight: 0.4},
				{Category: "hopelessness", Weight: 0.4},
				{Category: "grief", Weight: 0.5},
				{Category: "loneliness", Weight: 0.3},
				{MaxPolarity: floatp(-0.3), Weight: 0.2},
			}},
			{ID: AnxietyGrounding, Kind: KindNormal, Markers: []MarkerSpec{
				{Category: "anxiety", Weight: 0.6},
				{Category: "fear", Weight: 0.4},
			}},
			{ID: AngerProcessing, Kind: KindNormal, Markers: []MarkerSpec{
				{Category: "anger", Weight: 0.6},
				{Violence: "violent_intent", Weight: 0.3},
				{MaxPolarity: floatp(-0.2), Category: "anger", Weight: 0.1},
				{MinIntensity: floatp(0.6), Category: "anger", Weight: 0.2},
			}},
			{ID: PositiveReflection, Kind: KindNormal, Markers: []MarkerSpec{
				{Category: "joy", Weight: 0.5},
				{Category: "gratitude", Weight: 0.5},
				{Category: "calm", Weight: 0.4},
				{MinPolarity: floatp(0.3), Weight: 0.3},
			}},
			{ID: CheckIn, Kind: KindNormal, Markers: []MarkerSpec{
				{MinPolarity: floatp(-0.25), MaxPolarity: floatp(0.25), Weight: 0.35},
			}},
			{ID: Redirect, Kind: KindRedirect, Markers: []MarkerSpec{
				{Stuck: true, Weight: 1.0},
			}},
			{ID: Clarify, Kind: KindClarify, Markers: []MarkerSpec{
				{Category: "confusion", Weight: 0.5},
			}},
			{ID: SessionEnd, Kind: KindEnd, Markers: []MarkerSpec{
				{Category: "farewell", Weight: 0.7},
			}},
		},
		Guards: map[string]GuardSpec{
			"confident":   {MinConfidence: floatp(0.3)},
			"risk_high":   {RiskAtLeast: "HIGH"},
			"threat_plan": {ThreatAtLeast: "THREAT_WITH_PLAN"},
			"escalated":   {AnyOf: []string{"risk_high", "threat_plan"}},
			"below_high":  {RiskBelow: "HIGH"},
			"calmed":      {AllOf: []string{"below_high"}, MinTurnsInState: intp(1), Not: "threat_plan"},
			"settled":     {AllOf: []string{"confident"}, RiskBelow: "MODERATE", MinTurnsInState: intp(1)},
			"closing":     {AllOf: []string{"confident", "below_high"}},
			"unsure":      {Ambiguous: boolp(true)},
		},
		Strategies: map[string]StrategySpec{
			Onboarding:         {Default: "welcome_orientation", Levels: map[string]string{"MODERATE": "supportive_safety_check", "HIGH": "safety_assessment"}},
			CheckIn:            {Default: "open_exploration", Levels: map[string]string{"MODERATE": "supportive_safety_check", "HIGH": "safety_assessment"}},
			PositiveReflection: {Default: "strengths_reinforcement", Levels: map[string]string{"HIGH": "safety_assessment"}},
			GriefDespair:       {Default: "grief_validation", Levels: map[string]string{"MODERATE": "grief_validation_safety_check", "HIGH": "safety_assessment"}},
			AngerProcessing:    {Default: "anger_deescalation_validation", Levels: map[string]string{"HIGH": "safety_assessment"}},
			AnxietyGrounding:   {Default: "grounding_breathing", Levels: map[string]string{"HIGH": "safety_assessment"}},
			Clarify:            {Default: "gentle_clarification", Levels: map[string]string{"HIGH": "safety_assessment"}},
			Redirect:           {Default: "reflective_redirect", Levels: map[string]string{"HIGH": "safety_assessment"}},
			Crisis:             {Default: "crisis_protocol", Levels: map[string]string{"CRITICAL": "crisis_protocol_emergency_resources"}},
			Stabilization:      {Default: "safety_planning"},
			SessionEnd:         {Default: "warm_closure", Levels: map[string]string{"MODERATE": "safety_plan_handoff", "HIGH": "safety_plan_handoff"}},
		},
		ThreatCrisisStrategy: "crisis_protocol_violence",
	}

	for _, from := range append([]string{Onboarding, Clarify}, flowStates...) {
		for _, to := range flowStates {
			if from == to {
				continue
			}
			e := EdgeSpec{From: from, To: to, Guard: "confident"}
			if from != Onboarding && from != Clarify {
				e.CooldownTurns = 2
			}
			spec.Edges = append(spec.Edges, e)
		}
		spec.Edges = append(spec.Edges,
			EdgeSpec{From: from, To: Crisis, Guard: "escalated"},
			EdgeSpec{From: from, To: SessionEnd, Guard: "closing"},
		)
	}
	spec.Edges = append(spec.Edges,
		EdgeSpec{From: Onboarding, To: Clarify, Guard: "unsure", Clarify: true, CooldownTurns: 3},
		EdgeSpec{From: CheckIn, To: Clarify, Guard: "unsure", Clarify: true, CooldownTurns: 3},
		EdgeSpec{From: Crisis, To: Stabilization, Guard: "calmed"},
		EdgeSpec{From: Stabilization, To: Crisis, Guard: "escalated"},
		EdgeSpec{From: Stabilization, To: SessionEnd, Guard: "closing"},
	)
	for _, to := range flowStates {
		spec.Edges = append(spec.Edges, EdgeSpec{From: Stabilization, To: to, Guard: "settled", CooldownTurns: 2})
	}
	return spec
}

// #endregion default-spec

func floatp(v float64) *float64 { return &v }
func intp(v int) *int { return &v }
func boolp(v bool) *bool { return &v }
