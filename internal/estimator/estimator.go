// Package estimator ranks candidate next states for a turn by fusing the
// signal set with the current state and short-term history.
package estimator

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/danielpatrickdp/affect-triage/internal/graph"
	"github.com/danielpatrickdp/affect-triage/internal/signals"
	"github.com/danielpatrickdp/affect-triage/internal/triage"
)

// #region config

// Config holds the estimator's scoring constants.
type Config struct {
	MatchWeight         float64 `yaml:"match_weight"`           // scale applied to summed marker weight
	AdjacencyBonus      float64 `yaml:"adjacency_bonus"`        // added when the state is the current one or one edge away
	DecayAfterTurns     int     `yaml:"decay_after_turns"`      // trailing run length tolerated before decay
	DecayPenaltyPerTurn float64 `yaml:"decay_penalty_per_turn"` // subtracted per turn beyond DecayAfterTurns
	Epsilon             float64 `yaml:"epsilon"`                // top-two gap below which the estimate is ambiguous
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MatchWeight:         0.8,
		AdjacencyBonus:      0.15,
		DecayAfterTurns:     4,
		DecayPenaltyPerTurn: 0.15,
		Epsilon:             0.05,
	}
}

// #endregion config

// #region estimator

// Estimator scores graph states against a turn's signals. It is pure: the
// same inputs always produce the same estimate.
type Estimator struct {
	config Config
}

// New creates an Estimator.
func New(config Config) *Estimator {
	return &Estimator{config: config}
}

// Estimate ranks every state whose marker rules match sig.
func (e *Estimator) Estimate(sig signals.SignalSet, ctx *triage.ConversationContext, g *graph.StateGraph) triage.StateEstimate {
	current := ctx.CurrentState

	run := ctx.TrailingRun(current)
	var decay float64
	stuck := false
	if node, ok := g.Node(current); ok && node.Kind != graph.KindCrisis &&
		run > e.config.DecayAfterTurns && !sig.Escalating() {
		stuck = true
		decay = e.config.DecayPenaltyPerTurn * float64(run-e.config.DecayAfterTurns)
	}

	var candidates []triage.Candidate
	for _, node := range g.Nodes() {
		var strength float64
		for _, m := range node.Markers {
			if m.Match(sig, stuck) {
				strength += m.Weight
			}
		}
		if strength <= 0 {
			continue
		}
		conf := math.Min(1, strength) * e.config.MatchWeight
		if node.ID == current {
			conf += e.config.AdjacencyBonus - decay
		} else if _, ok := g.Edge(current, node.ID); ok {
			conf += e.config.AdjacencyBonus
		}
		candidates = append(candidates, triage.Candidate{State: node.ID, Confidence: round(clamp01(conf))})
	}

	if len(candidates) == 0 {
		return triage.StateEstimate{
			Candidates: []triage.Candidate{{State: current, Confidence: 0}},
			Stuck:      stuck,
			Reasoning:  fmt.Sprintf("no marker matched; holding %s", current),
		}
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		if candidates[a].Confidence != candidates[b].Confidence {
			return candidates[a].Confidence > candidates[b].Confidence
		}
		return g.Priority(candidates[a].State) < g.Priority(candidates[b].State)
	})

	est := triage.StateEstimate{Candidates: candidates, Stuck: stuck}
	if len(candidates) > 1 && candidates[0].Confidence-candidates[1].Confidence < e.config.Epsilon {
		est.Ambiguous = true
	}
	est.Reasoning = reasoning(est, run, decay)
	return est
}

// #endregion estimator

// #region helpers

func reasoning(est triage.StateEstimate, run int, decay float64) string {
	var sb strings.Builder
	for i, c := range est.Candidates {
		if i == 3 {
			fmt.Fprintf(&sb, " +%d more", len(est.Candidates)-3)
			break
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s=%.2f", c.State, c.Confidence)
	}
	if est.Stuck {
		fmt.Fprintf(&sb, "; stuck run=%d decay=%.2f", run, decay)
	}
	if est.Ambiguous {
		sb.WriteString("; ambiguous")
	}
	return sb.String()
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// round trims float noise so equal scores tie exactly.
func round(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// #endregion helpers
