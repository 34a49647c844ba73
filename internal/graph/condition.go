package graph

import (
	"fmt"

	"github.com/danielpatrickdp/affect-triage/internal/signals"
	"github.com/danielpatrickdp/affect-triage/internal/triage"
)

// #region env

// Env is everything a guard may look at when an edge is evaluated.
type Env struct {
	Target   triage.StateID
	Estimate triage.StateEstimate
	Ctx      *triage.ConversationContext
	Risk     triage.RiskAssessment
	Threat   triage.ThreatAssessment
	Signals  signals.SignalSet
}

// #endregion env

// #region condition

// Condition is a compiled guard. A nil Condition always holds.
type Condition struct {
	name            string
	minConfidence   *float64
	minTurnsInState *int
	maxTurnsInState *int
	riskAtLeast     *triage.RiskLevel
	riskBelow       *triage.RiskLevel
	threatAtLeast   *triage.ThreatCategory
	ambiguous       *bool
	anyCategory     signals.CategorySet
	allOf           []*Condition
	anyOf           []*Condition
	not             *Condition
}

// Name returns the guard name the condition was compiled from.
func (c *Condition) Name() string {
	if c == nil {
		return "always"
	}
	return c.name
}

// Eval reports whether the condition holds in env.
func (c *Condition) Eval(env Env) bool {
	if c == nil {
		return true
	}
	if c.minConfidence != nil && env.Estimate.ConfidenceOf(env.Target) < *c.minConfidence {
		return false
	}
	if env.Ctx != nil {
		if c.minTurnsInState != nil && env.Ctx.TurnsInState < *c.minTurnsInState {
			return false
		}
		if c.maxTurnsInState != nil && env.Ctx.TurnsInState > *c.maxTurnsInState {
			return false
		}
	}
	if c.riskAtLeast != nil && env.Risk.Level < *c.riskAtLeast {
		return false
	}
	if c.riskBelow != nil && env.Risk.Level >= *c.riskBelow {
		return false
	}
	if c.threatAtLeast != nil && env.Threat.Category < *c.threatAtLeast {
		return false
	}
	if c.ambiguous != nil && env.Estimate.Ambiguous != *c.ambiguous {
		return false
	}
	if !c.anyCategory.Empty() && !env.Signals.Categories.HasAny(c.anyCategory) {
		return false
	}
	for _, sub := range c.allOf {
		if !sub.Eval(env) {
			return false
		}
	}
	if len(c.anyOf) > 0 {
		ok := false
		for _, sub := range c.anyOf {
			if sub.Eval(env) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if c.not != nil && c.not.Eval(env) {
		return false
	}
	return true
}

// #endregion condition

// #region compile

// guardCompiler compiles named guards, detecting unknown and cyclic references.
type guardCompiler struct {
	specs    map[string]GuardSpec
	done     map[string]*Condition
	visiting map[string]bool
	problems []string
}

func newGuardCompiler(specs map[string]GuardSpec) *guardCompiler {
	return &guardCompiler{
		specs:    specs,
		done:     make(map[string]*Condition),
		visiting: make(map[string]bool),
	}
}

func (gc *guardCompiler) problem(format string, args ...any) {
	gc.problems = append(gc.problems, fmt.Sprintf(format, args...))
}

// compile returns the condition for name, or nil after recording a problem.
func (gc *guardCompiler) compile(name string) *Condition {
	if c, ok := gc.done[name]; ok {
		return c
	}
	spec, ok := gc.specs[name]
	if !ok {
		gc.problem("unknown guard %q", name)
		return nil
	}
	if gc.visiting[name] {
		gc.problem("cyclic guard dependency through %q", name)
		return nil
	}
	gc.visiting[name] = true
	defer delete(gc.visiting, name)

	c := &Condition{
		name:            name,
		minConfidence:   spec.MinConfidence,
		minTurnsInState: spec.MinTurnsInState,
		maxTurnsInState: spec.MaxTurnsInState,
		ambiguous:       spec.Ambiguous,
	}
	if spec.RiskAtLeast != "" {
		lvl, err := triage.ParseRiskLevel(spec.RiskAtLeast)
		if err != nil {
			gc.problem("guard %q: %v", name, err)
		} else {
			c.riskAtLeast = &lvl
		}
	}
	if spec.RiskBelow != "" {
		lvl, err := triage.ParseRiskLevel(spec.RiskBelow)
		if err != nil {
			gc.problem("guard %q: %v", name, err)
		} else {
			c.riskBelow = &lvl
		}
	}
	if spec.ThreatAtLeast != "" {
		cat, err := triage.ParseThreatCategory(spec.ThreatAtLeast)
		if err != nil {
			gc.problem("guard %q: %v", name, err)
		} else {
			c.threatAtLeast = &cat
		}
	}
	for _, catName := range spec.AnyCategory {
		cat, ok := signals.ParseCategory(catName)
		if !ok {
			gc.problem("guard %q: unknown category %q", name, catName)
			continue
		}
		c.anyCategory = c.anyCategory.With(cat)
	}
	for _, ref := range spec.AllOf {
		if sub := gc.compile(ref); sub != nil {
			c.allOf = append(c.allOf, sub)
		}
	}
	for _, ref := range spec.AnyOf {
		if sub := gc.compile(ref); sub != nil {
			c.anyOf = append(c.anyOf, sub)
		}
	}
	if spec.Not != "" {
		c.not = gc.compile(spec.Not)
	}

	gc.done[name] = c
	return c
}

// #endregion compile
