package signals

import "regexp"

// #region rule

type rule[T Flag] struct {
	flag    T
	regex   *regexp.Regexp
	weight  float64
	keyword string
}

func r[T Flag](flag T, weight float64, keyword, expr string) rule[T] {
	return rule[T]{flag: flag, regex: regexp.MustCompile(`(?i)` + expr), weight: weight, keyword: keyword}
}

// scan sums pattern weights per flag and returns the flags whose total reaches min.
func scan[T Flag](rules []rule[T], text string, minWeight float64) Set[T] {
	totals := make(map[T]float64)
	for _, p := range rules {
		if p.regex.MatchString(text) {
			totals[p.flag] += p.weight
		}
	}
	var out Set[T]
	for f, w := range totals {
		if w >= minWeight {
			out = out.With(f)
		}
	}
	return out
}

func appendMatched[T Flag](out []string, rules []rule[T], text string) []string {
	for _, p := range rules {
		if p.regex.MatchString(text) {
			out = append(out, p.keyword)
		}
	}
	return out
}

// #endregion rule

// #region category-rules

var categoryRules = []rule[Category]{
	r(CategorySadness, 0.9, "sad", `\b(sad|miserable|heartbroken|depressed|unhappy|devastated)\b`),
	r(CategorySadness, 0.6, "crying", `\b(crying|cried|cry myself|in tears)\b`),
	r(CategorySadness, 0.5, "empty", `\b(empty|numb|feel(ing)? (so )?down)\b`),

	r(CategoryHopelessness, 0.9, "hopeless", `\b(hopeless|no hope|lost (all )?hope)\b`),
	r(CategoryHopelessness, 0.8, "no point", `\b(no point|what'?s the point|pointless)\b`),
	r(CategoryHopelessness, 0.8, "never better", `\b(never (gets?|going to get) better|nothing (will ever|ever) (gets?|get) better|will never change)\b`),
	r(CategoryHopelessness, 0.6, "give up", `\b(give up|giving up|gave up)\b`),

	r(CategoryGrief, 0.9, "passed away", `\b(passed away|died|funeral|death of)\b`),
	r(CategoryGrief, 0.8, "grieving", `\b(griev(e|ing)|grief|mourning)\b`),
	r(CategoryGrief, 0.5, "lost my", `\blost my (mom|mother|dad|father|wife|husband|partner|son|daughter|child|baby|brother|sister|friend|dog|cat)\b`),

	r(CategoryAnger, 0.9, "angry", `\b(angry|furious|livid|enraged|rage|pissed( off)?)\b`),
	r(CategoryAnger, 0.6, "hate", `\b(hate|can'?t stand|sick of|fed up)\b`),
	r(CategoryAnger, 0.5, "mad", `\b(so mad|mad at|want to scream|makes me scream)\b`),

	r(CategoryAnxiety, 0.9, "anxious", `\b(anxious|anxiety|panic(king)?|panic attack)\b`),
	r(CategoryAnxiety, 0.6, "worried", `\b(worried|nervous|on edge|overwhelmed|can'?t stop worrying)\b`),
	r(CategoryAnxiety, 0.6, "can't breathe", `\b(can'?t breathe|heart (is )?racing)\b`),

	r(CategoryFear, 0.8, "scared", `\b(scared|afraid|terrified|frightened)\b`),

	r(CategoryLoneliness, 0.9, "lonely", `\b(lonely|isolated)\b`),
	r(CategoryLoneliness, 0.6, "no one", `\b(no ?one|nobody) (cares|understands|gets it|is there)\b`),
	r(CategoryLoneliness, 0.4, "alone", `\b(all )?alone\b`),

	r(CategoryShame, 0.8, "ashamed", `\b(ashamed|worthless|disgusting|pathetic)\b`),
	r(CategoryShame, 0.7, "failure", `\b(i'?m a failure|hate myself|i'?m useless)\b`),

	r(CategoryCalm, 0.8, "calm", `\b(calm|relaxed|peaceful|at ease)\b`),
	r(CategoryCalm, 0.6, "better", `\b(feel(ing)? better|better today|a bit better|okay now|doing ok(ay)?)\b`),

	r(CategoryGratitude, 0.8, "thanks", `\b(thank you|thanks|grateful|appreciate)\b`),

	r(CategoryJoy, 0.8, "happy", `\b(happy|glad|excited|wonderful|amazing|proud)\b`),
	r(CategoryJoy, 0.5, "good", `\b(good day|great day|went well)\b`),

	r(CategoryConfusion, 0.7, "confused", `\b(confused|mixed feelings|don'?t know (what|how) (i|to) feel)\b`),
	r(CategoryConfusion, 0.5, "not sure", `\b(not sure|unsure|i don'?t know)\b`),

	r(CategoryGreeting, 0.8, "hello", `^\s*(hi|hello|hey|good (morning|afternoon|evening))\b`),

	r(CategoryFarewell, 0.8, "bye", `\b(bye|goodbye|gotta go|talk (to you )?later|that'?s all for (today|now)|see you)\b`),
}

// #endregion category-rules

// #region risk-rules

// ideationRules anchor self-directed risk.
var ideationRules = []rule[Indicator]{
	r(IndicatorActiveIdeation, 1.0, "kill myself", `\b(kill(ing)? myself|end(ing)? my (own )?life|take my (own )?life|suicid(e|al)|commit suicide)\b`),
	r(IndicatorActiveIdeation, 0.9, "want to die", `\b(want(ed)? to die|don'?t want to (live|be alive)|end it all)\b`),

	r(IndicatorPassiveIdeation, 0.9, "wish i wasn't here", `\bwish i (was|were)(n'?t| not) (here|alive|born)\b`),
	r(IndicatorPassiveIdeation, 0.9, "better off dead", `\b(better off dead|better off without me)\b`),
	r(IndicatorPassiveIdeation, 0.8, "never wake up", `\b((not|never) wake up|go to sleep (and|forever)|disappear forever)\b`),
	r(IndicatorPassiveIdeation, 0.9, "wish i was dead", `\b(wish (i|i'?d) (was|were|had) (dead|died|never been born)|(i'?d|i would) rather (be dead|not (be here|exist|be alive)))\b`),
	r(IndicatorPassiveIdeation, 0.8, "don't want to be here", `\b(don'?t|do not) want to (be here|exist|wake up)( any ?more)?\b`),
	r(IndicatorPassiveIdeation, 0.8, "want to disappear", `\b(want|wish i could|just want) to (disappear|vanish|not exist|stop existing)\b`),
	r(IndicatorPassiveIdeation, 0.9, "better off gone", `\bbetter off (if i (was|were|wasn'?t|weren'?t) (gone|dead|here|around|alive)|if i'?m gone|with me gone)\b`),

	r(IndicatorSelfHarm, 1.0, "cut myself", `\b(cut(ting)?|burn(ing)?|hurt(ing)?|harm(ing)?) myself\b`),
	r(IndicatorSelfHarm, 0.9, "self harm", `\bself[- ]?harm`),

	r(IndicatorAmbiguousIdeation, 0.8, "can't do this anymore", `\bcan'?t (do|take|handle) (this|it) any ?more\b`),
	r(IndicatorAmbiguousIdeation, 0.8, "tired of living", `\btired of (everything|living|it all|being alive)\b`),
	r(IndicatorAmbiguousIdeation, 0.7, "want it to stop", `\b(want|need) (it|everything|the pain) to stop\b`),
	r(IndicatorAmbiguousIdeation, 0.7, "no way out", `\b(no way out|trapped|no reason to (go on|keep going))\b`),
	r(IndicatorAmbiguousIdeation, 0.8, "end it", `\bend it( all)?\b`),
}

// specificityRules are only kept when an ideation anchor is present.
var specificityRules = []rule[Indicator]{
	r(IndicatorPlan, 0.9, "have a plan", `\b(i have a plan|made a plan|planned (it|everything)|figured out how|know (exactly )?how i'?d do it|wrote (a|my) note)\b`),
	r(IndicatorMeans, 0.9, "means", `\b(pills|overdose|gun|rifle|pistol|rope|noose|razor|blade|knife|bridge|jump off|stockpil\w*|bottle of)\b`),
	r(IndicatorIntent, 0.9, "going to", `\b(i'?m going to|i am going to|i'?m gonna|i will|i'?ll do it|made up my mind|decided to)\b`),
	r(IndicatorTimeline, 1.0, "timeline", timelineExpr),
}

var riskFactorRules = []rule[Indicator]{
	r(IndicatorPriorAttempt, 0.9, "tried before", `\b(tried (to )?(before|last time)|last time i tried|attempted (suicide|before)|my (last|previous) attempt)\b`),
	r(IndicatorSubstance, 0.7, "drinking", `\b(drunk|drinking|wasted|high right now|using again|relapsed)\b`),
	r(IndicatorIsolation, 0.7, "isolation", `\b(no ?one (would|will) (notice|care|miss me)|nobody (would|will) (notice|care|miss me)|completely alone|all alone)\b`),
	r(IndicatorBurden, 0.9, "burden", `\b(burden|better off without me)\b`),
	r(IndicatorFinalActs, 1.0, "final acts", `\b(gave away|giving away) my\b|\b(said|saying) (my )?goodbyes\b|\bgoodbye forever\b|\bwrote (a|my) (note|letter|will)\b`),
}

var protectiveRules = []rule[Indicator]{
	r(IndicatorProtectiveConnection, 0.8, "my kids", `\b(my (kids|children|daughter|son|family|partner|dog|cat)|people who love me)\b`),
	r(IndicatorProtectiveHelpSeeking, 0.9, "therapist", `\b(talk(ed|ing)? to|call(ed|ing)?|see(ing)?|told) (my |a |the )?(therapist|counselor|counsellor|doctor|hotline|crisis line|friend)\b`),
	r(IndicatorProtectiveCommitment, 1.0, "i'm safe", `\b(i'?m safe|i am safe|won'?t (act on|do) (it|anything)|wouldn'?t (actually )?do (it|anything)|not going to hurt myself|safety plan)\b`),
	r(IndicatorProtectiveFuture, 0.8, "reasons to live", `\b(reasons? to (live|keep going|stay)|looking forward to|want to get better|feeling safer)\b`),
}

// #endregion risk-rules

// #region violence-rules

const timelineExpr = `\b(today|tonight|right now|this (morning|afternoon|evening|weekend)|tomorrow|in an hour|in a few hours|after (work|school)|when (he|she|they) gets? home)\b`

// personExpr matches a person as the object of a violent verb: a pronoun or
// a possessive/demonstrative followed by a person noun. Things ("the traffic",
// "this exam", "my back") never match.
const personExpr = `(?:him|her|them|you|everyone|everybody|someone|somebody|people|` +
	`(?:my|his|her|their|our|that|the|this)\s+(?:` + personNouns + `))`

const personNouns = `boss|ex|wife|husband|partner|boyfriend|girlfriend|coworker|co-worker|neighbou?r|teacher|` +
	`dad|mom|father|mother|brother|sister|son|daughter|manager|landlord|roommate|classmate|friend|family|` +
	`kids?|guy|man|woman|girl|boy|cop|officer`

const violentVerbs = `(?:kill|shoot|stab|hurt|beat(?: up)?|punch|strangle|choke|attack|murder|run over)`

// violentIntentRe requires an other-directed person so "hurt myself" and
// "kill this exam" never match.
var violentIntentRe = regexp.MustCompile(`(?i)\b` + violentVerbs + `\s+` + personExpr + `\b|\bmake (him|her|them) pay\b`)

var violenceRules = []rule[ViolenceIndicator]{
	r(ViolenceTarget, 0.9, "named target", `\b(my|that|the|his|her|their|our) (`+personNouns+`)\b`),
	r(ViolenceTarget, 0.9, "pronoun target", `\b`+violentVerbs+`\s+(him|her|them|you|everyone|everybody|someone|somebody|people)\b|\bmake (him|her|them) pay\b`),
	r(ViolenceWeapon, 1.0, "weapon", `\b(gun|rifle|pistol|shotgun|knife|machete|bat|bomb|explosives?|weapon|ammo|bullets)\b`),
	r(ViolencePlan, 0.9, "knows where", `\bi know where (he|she|they) (lives?|works?|parks?|sleeps?)\b`),
	r(ViolencePlan, 0.9, "planned", `\b(i'?ve planned|i have a plan|plan(ning)? to|waiting for (him|her|them)|worked out how)\b`),
	r(ViolenceImmediacy, 1.0, "immediacy", timelineExpr),
}

// #endregion violence-rules

// #region lexicon

// valence scores individual words for polarity. Magnitudes also drive intensity.
var valence = map[string]float64{
	"happy": 0.8, "glad": 0.6, "good": 0.5, "great": 0.7, "wonderful": 0.9, "amazing": 0.9,
	"calm": 0.5, "relaxed": 0.5, "peaceful": 0.6, "better": 0.4, "okay": 0.2, "fine": 0.2,
	"grateful": 0.7, "thankful": 0.7, "thanks": 0.4, "love": 0.6, "proud": 0.7, "hopeful": 0.6,
	"excited": 0.7, "safe": 0.4, "relieved": 0.6,

	"sad": -0.7, "miserable": -0.9, "depressed": -0.8, "unhappy": -0.6, "devastated": -0.9,
	"heartbroken": -0.9, "empty": -0.6, "numb": -0.5, "crying": -0.6, "lonely": -0.7,
	"alone": -0.4, "hopeless": -0.9, "pointless": -0.7, "worthless": -0.9, "ashamed": -0.7,
	"angry": -0.8, "furious": -0.9, "livid": -0.9, "rage": -0.9, "hate": -0.9, "stupid": -0.5,
	"pissed": -0.8, "mad": -0.6, "anxious": -0.7, "scared": -0.7, "afraid": -0.7,
	"terrified": -0.9, "worried": -0.5, "nervous": -0.5, "overwhelmed": -0.7, "panic": -0.8,
	"tired": -0.4, "exhausted": -0.6, "hurt": -0.6, "pain": -0.7, "awful": -0.8, "terrible": -0.8,
	"horrible": -0.8, "die": -0.9, "dead": -0.8, "kill": -0.9, "suicide": -1.0, "trapped": -0.7,
	"broken": -0.7, "lost": -0.5, "failure": -0.8, "disgusting": -0.8, "pathetic": -0.7,
	"grief": -0.7, "died": -0.7, "funeral": -0.6,
}

var negators = map[string]bool{
	"not": true, "no": true, "never": true, "without": true, "hardly": true,
	"don't": true, "dont": true, "isn't": true, "isnt": true, "can't": true, "cant": true,
	"won't": true, "wont": true, "wasn't": true, "wasnt": true, "didn't": true, "didnt": true,
	"doesn't": true, "doesnt": true, "aren't": true, "arent": true,
}

var intensifiers = map[string]bool{
	"so": true, "very": true, "really": true, "extremely": true, "totally": true,
	"completely": true, "incredibly": true, "absolutely": true, "fucking": true,
	"super": true, "utterly": true, "too": true,
}

// #endregion lexicon
