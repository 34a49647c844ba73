// Package graph compiles the declarative state-graph configuration into an
// immutable StateGraph: nodes, guarded edges, scoring markers and the
// strategy table. Build rejects any configuration that could let the engine
// reach an undeclared or strategy-less state.
package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/danielpatrickdp/affect-triage/internal/signals"
	"github.com/danielpatrickdp/affect-triage/internal/triage"
)

// #region errors

// ConfigError lists every problem found while validating a Spec.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	if len(e.Problems) == 1 {
		return "graph config: " + e.Problems[0]
	}
	return fmt.Sprintf("graph config: %d problems: %s", len(e.Problems), strings.Join(e.Problems, "; "))
}

// #endregion errors

// #region types

// Marker is a compiled scoring rule.
type Marker struct {
	hasCategory  bool
	category     signals.Category
	hasIndicator bool
	indicator    signals.Indicator
	hasViolence  bool
	violence     signals.ViolenceIndicator
	minPolarity  *float64
	maxPolarity  *float64
	minIntensity *float64
	stuck        bool
	Weight       float64
}

// Match reports whether the marker holds for the turn's signals. stuck is
// true when the conversation has lingered in its current state.
func (m Marker) Match(sig signals.SignalSet, stuck bool) bool {
	if m.hasCategory && !sig.Categories.Has(m.category) {
		return false
	}
	if m.hasIndicator && !sig.RiskIndicators.Has(m.indicator) {
		return false
	}
	if m.hasViolence && !sig.ViolenceIndicators.Has(m.violence) {
		return false
	}
	if m.minPolarity != nil && sig.Polarity < *m.minPolarity {
		return false
	}
	if m.maxPolarity != nil && sig.Polarity > *m.maxPolarity {
		return false
	}
	if m.minIntensity != nil && sig.Intensity < *m.minIntensity {
		return false
	}
	if m.stuck && !stuck {
		return false
	}
	return true
}

// Node is a compiled state.
type Node struct {
	ID          triage.StateID
	Kind        Kind
	Priority    int // declaration index, lower wins ties
	Markers     []Marker
	allowedFrom map[triage.StateID]bool
}

// Admits reports whether the node may be entered from the given state.
// A node without an allowedFrom list admits every predecessor.
func (n Node) Admits(from triage.StateID) bool {
	if len(n.allowedFrom) == 0 {
		return true
	}
	return n.allowedFrom[from]
}

// Edge is a compiled, guarded transition.
type Edge struct {
	From          triage.StateID
	To            triage.StateID
	Guard         *Condition
	CooldownTurns int
	Clarify       bool
}

// Key is the cooldown bookkeeping key for the edge.
func (e Edge) Key() string { return triage.EdgeKey(e.From, e.To) }

type strategy struct {
	fallback string
	levels   map[triage.RiskLevel]string
}

// StateGraph is the immutable compiled graph. It is safe for concurrent use.
type StateGraph struct {
	spec       Spec
	nodes      []Node
	index      map[triage.StateID]int
	outgoing   map[triage.StateID][]Edge
	strategies map[triage.StateID]strategy
	threatTag  string
	entry      triage.StateID
	crisis     triage.StateID
	end        triage.StateID
	version    string
}

// #endregion types

// #region build

// Build validates spec and compiles it. Every problem found is reported in a
// single *ConfigError.
func Build(spec Spec) (*StateGraph, error) {
	b := &builder{
		g: &StateGraph{
			spec:       spec,
			index:      make(map[triage.StateID]int),
			outgoing:   make(map[triage.StateID][]Edge),
			strategies: make(map[triage.StateID]strategy),
		},
	}
	b.nodes()
	b.edges()
	b.allowedFrom()
	reachable := b.reachable()
	b.strategies(reachable)
	if len(b.problems) > 0 {
		return nil, &ConfigError{Problems: b.problems}
	}
	b.g.version = versionOf(spec)
	return b.g, nil
}

// MustBuild is Build for known-good literals such as DefaultSpec.
func MustBuild(spec Spec) *StateGraph {
	g, err := Build(spec)
	if err != nil {
		panic(err)
	}
	return g
}

type builder struct {
	g        *StateGraph
	guards   *guardCompiler
	problems []string
}

func (b *builder) problem(format string, args ...any) {
	b.problems = append(b.problems, fmt.Sprintf(format, args...))
}

func (b *builder) nodes() {
	var entries, crises, ends []triage.StateID
	for i, ns := range b.g.spec.Nodes {
		id := triage.StateID(ns.ID)
		if ns.ID == "" {
			b.problem("node %d: empty id", i)
			continue
		}
		if _, dup := b.g.index[id]; dup {
			b.problem("node %q: declared twice", ns.ID)
			continue
		}
		if !ns.Kind.valid() {
			b.problem("node %q: unknown kind %q", ns.ID, ns.Kind)
		}
		switch ns.Kind {
		case KindEntry:
			entries = append(entries, id)
		case KindCrisis:
			crises = append(crises, id)
		case KindEnd:
			ends = append(ends, id)
		}
		node := Node{ID: id, Kind: ns.Kind, Priority: len(b.g.nodes)}
		for j, ms := range ns.Markers {
			if m, ok := b.marker(ns.ID, j, ms); ok {
				node.Markers = append(node.Markers, m)
			}
		}
		b.g.index[id] = len(b.g.nodes)
		b.g.nodes = append(b.g.nodes, node)
	}

	if len(entries) != 1 {
		b.problem("expected exactly one entry node, found %d", len(entries))
	} else {
		b.g.entry = entries[0]
	}
	if len(crises) != 1 {
		b.problem("expected exactly one crisis node, found %d", len(crises))
	} else {
		b.g.crisis = crises[0]
	}
	if len(ends) > 1 {
		b.problem("expected at most one end node, found %d", len(ends))
	} else if len(ends) == 1 {
		b.g.end = ends[0]
	}
}

func (b *builder) marker(node string, i int, ms MarkerSpec) (Marker, bool) {
	m := Marker{
		minPolarity:  ms.MinPolarity,
		maxPolarity:  ms.MaxPolarity,
		minIntensity: ms.MinIntensity,
		stuck:        ms.Stuck,
		Weight:       ms.Weight,
	}
	ok := true
	if ms.Category != "" {
		m.category, m.hasCategory = signals.ParseCategory(ms.Category)
		if !m.hasCategory {
			b.problem("node %q marker %d: unknown category %q", node, i, ms.Category)
			ok = false
		}
	}
	if ms.Indicator != "" {
		m.indicator, m.hasIndicator = signals.ParseIndicator(ms.Indicator)
		if !m.hasIndicator {
			b.problem("node %q marker %d: unknown indicator %q", node, i, ms.Indicator)
			ok = false
		}
	}
	if ms.Violence != "" {
		m.violence, m.hasViolence = signals.ParseViolence(ms.Violence)
		if !m.hasViolence {
			b.problem("node %q marker %d: unknown violence indicator %q", node, i, ms.Violence)
			ok = false
		}
	}
	if ms.Weight <= 0 || ms.Weight > 1 {
		b.problem("node %q marker %d: weight %.2f outside (0,1]", node, i, ms.Weight)
		ok = false
	}
	if !m.hasCategory && !m.hasIndicator && !m.hasViolence &&
		m.minPolarity == nil && m.maxPolarity == nil && m.minIntensity == nil && !m.stuck {
		b.problem("node %q marker %d: matches unconditionally", node, i)
		ok = false
	}
	return m, ok
}

func (b *builder) edges() {
	b.guards = newGuardCompiler(b.g.spec.Guards)
	// Compile every named guard, referenced or not, so cycles surface.
	names := make([]string, 0, len(b.g.spec.Guards))
	for name := range b.g.spec.Guards {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		b.guards.compile(name)
	}

	seen := make(map[string]bool)
	for i, es := range b.g.spec.Edges {
		from, to := triage.StateID(es.From), triage.StateID(es.To)
		fromIdx, okFrom := b.g.index[from]
		toIdx, okTo := b.g.index[to]
		if !okFrom {
			b.problem("edge %d: unknown source %q", i, es.From)
		}
		if !okTo {
			b.problem("edge %d: unknown target %q", i, es.To)
		}
		if !okFrom || !okTo {
			continue
		}
		if from == to {
			b.problem("edge %d: self loop on %q", i, es.From)
			continue
		}
		key := triage.EdgeKey(from, to)
		if seen[key] {
			b.problem("edge %s: declared twice", key)
			continue
		}
		seen[key] = true
		if b.g.nodes[fromIdx].Kind == KindEnd {
			b.problem("edge %s: end node %q has outgoing edges", key, es.From)
		}
		if es.CooldownTurns < 0 {
			b.problem("edge %s: negative cooldown", key)
		}
		if es.Clarify && b.g.nodes[toIdx].Kind != KindClarify {
			b.problem("edge %s: clarify edge must target a clarify node", key)
		}
		e := Edge{From: from, To: to, CooldownTurns: es.CooldownTurns, Clarify: es.Clarify}
		if es.Guard != "" {
			e.Guard = b.guards.compile(es.Guard)
		}
		b.g.outgoing[from] = append(b.g.outgoing[from], e)
	}
	b.problems = append(b.problems, b.guards.problems...)
}

func (b *builder) allowedFrom() {
	for _, ns := range b.g.spec.Nodes {
		idx, ok := b.g.index[triage.StateID(ns.ID)]
		if !ok || len(ns.AllowedFrom) == 0 {
			continue
		}
		node := &b.g.nodes[idx]
		node.allowedFrom = make(map[triage.StateID]bool, len(ns.AllowedFrom))
		for _, src := range ns.AllowedFrom {
			if _, known := b.g.index[triage.StateID(src)]; !known {
				b.problem("node %q: allowed_from references unknown node %q", ns.ID, src)
				continue
			}
			node.allowedFrom[triage.StateID(src)] = true
		}
	}
	// An edge whose target never admits its source can never fire.
	for _, edges := range b.g.outgoing {
		for _, e := range edges {
			if !b.g.nodes[b.g.index[e.To]].Admits(e.From) {
				b.problem("edge %s: target %q does not allow entry from %q", e.Key(), e.To, e.From)
			}
		}
	}
}

// reachable walks edges breadth-first from the entry node. The crisis node
// is always reachable through the override path, so it seeds the walk too.
func (b *builder) reachable() map[triage.StateID]bool {
	seen := make(map[triage.StateID]bool)
	var queue []triage.StateID
	for _, seed := range []triage.StateID{b.g.entry, b.g.crisis} {
		if seed != "" && !seen[seed] {
			seen[seed] = true
			queue = append(queue, seed)
		}
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range b.g.outgoing[cur] {
			if !seen[e.To] {
				seen[e.To] = true
				queue = append(queue, e.To)
			}
		}
	}
	if b.g.entry != "" {
		for _, n := range b.g.nodes {
			if !seen[n.ID] {
				b.problem("node %q: unreachable from entry %q", n.ID, b.g.entry)
			}
		}
	}
	return seen
}

func (b *builder) strategies(reachable map[triage.StateID]bool) {
	for name, ss := range b.g.spec.Strategies {
		id := triage.StateID(name)
		if _, ok := b.g.index[id]; !ok {
			b.problem("strategy for unknown node %q", name)
			continue
		}
		if ss.Default == "" {
			b.problem("strategy for %q: empty default tag", name)
		}
		st := strategy{fallback: ss.Default, levels: make(map[triage.RiskLevel]string, len(ss.Levels))}
		for lvlName, tag := range ss.Levels {
			lvl, err := triage.ParseRiskLevel(lvlName)
			if err != nil {
				b.problem("strategy for %q: %v", name, err)
				continue
			}
			if tag == "" {
				b.problem("strategy for %q: empty tag for level %s", name, lvl)
				continue
			}
			st.levels[lvl] = tag
		}
		b.g.strategies[id] = st
	}
	for _, n := range b.g.nodes {
		if !reachable[n.ID] {
			continue
		}
		if _, ok := b.g.spec.Strategies[string(n.ID)]; !ok {
			b.problem("node %q: no strategy mapping", n.ID)
		}
	}
	b.g.threatTag = b.g.spec.ThreatCrisisStrategy
	if b.g.threatTag == "" && b.g.crisis != "" {
		b.g.threatTag = b.g.spec.Strategies[string(b.g.crisis)].Default
	}
}

func versionOf(spec Spec) string {
	raw, err := json.Marshal(spec)
	if err != nil {
		return "unversioned"
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:6])
}

// #endregion build

// #region accessors

// Entry returns the entry state.
func (g *StateGraph) Entry() triage.StateID { return g.entry }

// Crisis returns the crisis state.
func (g *StateGraph) Crisis() triage.StateID { return g.crisis }

// End returns the session-end state, if one is declared.
func (g *StateGraph) End() (triage.StateID, bool) { return g.end, g.end != "" }

// Version is a content hash of the configuration the graph was built from.
func (g *StateGraph) Version() string { return g.version }

// Spec returns the configuration the graph was compiled from.
func (g *StateGraph) Spec() Spec { return g.spec }

// Has reports whether id is a declared node.
func (g *StateGraph) Has(id triage.StateID) bool {
	_, ok := g.index[id]
	return ok
}

// Node returns the node for id.
func (g *StateGraph) Node(id triage.StateID) (Node, bool) {
	idx, ok := g.index[id]
	if !ok {
		return Node{}, false
	}
	return g.nodes[idx], true
}

// Nodes returns all nodes in priority order.
func (g *StateGraph) Nodes() []Node {
	out := make([]Node, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// Priority returns the tie-break rank of id. Unknown ids rank last.
func (g *StateGraph) Priority(id triage.StateID) int {
	if idx, ok := g.index[id]; ok {
		return idx
	}
	return len(g.nodes)
}

// Outgoing returns the edges leaving from, in declaration order.
func (g *StateGraph) Outgoing(from triage.StateID) []Edge {
	return g.outgoing[from]
}

// Edge returns the edge from -> to.
func (g *StateGraph) Edge(from, to triage.StateID) (Edge, bool) {
	for _, e := range g.outgoing[from] {
		if e.To == to {
			return e, true
		}
	}
	return Edge{}, false
}

// Strategy resolves the strategy tag for a state at a risk level, falling
// back to the state's default tag.
func (g *StateGraph) Strategy(state triage.StateID, level triage.RiskLevel) (string, bool) {
	st, ok := g.strategies[state]
	if !ok {
		return "", false
	}
	if tag, ok := st.levels[level]; ok {
		return tag, true
	}
	return st.fallback, true
}

// ThreatStrategy is the crisis tag used when only the threat classifier
// forced the override.
func (g *StateGraph) ThreatStrategy() string { return g.threatTag }

// #endregion accessors
