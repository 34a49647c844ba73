package triage

import "github.com/danielpatrickdp/affect-triage/internal/signals"

// #region sizes

const (
	// RecentSignalsSize is the ring size of per-turn signal history (N).
	RecentSignalsSize = 5
	// RecentStatesSize is the ring size of committed-state history (M).
	RecentStatesSize = 10
)

// #endregion sizes

// #region ring

// Ring is a fixed-capacity buffer that overwrites its oldest item when full.
type Ring[T any] struct {
	items []T
	start int
	size  int
}

// NewRing creates an empty ring with the given capacity.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{items: make([]T, capacity)}
}

// Push appends v, evicting the oldest item when at capacity.
func (r *Ring[T]) Push(v T) {
	if r.size < len(r.items) {
		r.items[(r.start+r.size)%len(r.items)] = v
		r.size++
		return
	}
	r.items[r.start] = v
	r.start = (r.start + 1) % len(r.items)
}

// Len returns the number of items held.
func (r *Ring[T]) Len() int { return r.size }

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int { return len(r.items) }

// Items returns the held items, oldest first.
func (r *Ring[T]) Items() []T {
	out := make([]T, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.items[(r.start+i)%len(r.items)]
	}
	return out
}

// Last returns the newest item.
func (r *Ring[T]) Last() (T, bool) {
	var zero T
	if r.size == 0 {
		return zero, false
	}
	return r.items[(r.start+r.size-1)%len(r.items)], true
}

// Clone returns an independent copy.
func (r *Ring[T]) Clone() *Ring[T] {
	c := &Ring[T]{items: make([]T, len(r.items)), start: r.start, size: r.size}
	copy(c.items, r.items)
	return c
}

// #endregion ring

// #region conversation-context

// ConversationContext is the mutable per-session state. It is owned by one
// conversation, read by the scorers and mutated only by the transition
// manager's Commit once a decision is final.
type ConversationContext struct {
	CurrentState       StateID
	StateEnteredAtTurn int
	TurnsInState       int
	RecentSignals      *Ring[signals.SignalSet]
	RecentStates       *Ring[StateID]

	Turn             int            // committed turns so far
	EdgeLastUsed     map[string]int // edge key -> turn the edge was last traversed
	SessionRisk      RiskLevel      // level carried for monotonic vigilance
	ProtectiveStreak int            // consecutive committed turns with protective signals
	LastAmbiguous    bool           // previous turn's estimate was ambiguous
}

// NewConversationContext creates a context positioned at the entry state.
func NewConversationContext(entry StateID) *ConversationContext {
	return &ConversationContext{
		CurrentState:  entry,
		RecentSignals: NewRing[signals.SignalSet](RecentSignalsSize),
		RecentStates:  NewRing[StateID](RecentStatesSize),
		EdgeLastUsed:  make(map[string]int),
	}
}

// Clone returns a deep copy, used to evaluate a turn without committing it.
func (c *ConversationContext) Clone() *ConversationContext {
	cp := *c
	cp.RecentSignals = c.RecentSignals.Clone()
	cp.RecentStates = c.RecentStates.Clone()
	cp.EdgeLastUsed = make(map[string]int, len(c.EdgeLastUsed))
	for k, v := range c.EdgeLastUsed {
		cp.EdgeLastUsed[k] = v
	}
	return &cp
}

// TrailingRun counts how many of the newest recentStates equal state,
// stopping at the first different one.
func (c *ConversationContext) TrailingRun(state StateID) int {
	items := c.RecentStates.Items()
	n := 0
	for i := len(items) - 1; i >= 0; i-- {
		if items[i] != state {
			break
		}
		n++
	}
	return n
}

// EdgeKey is the cooldown map key for an edge.
func EdgeKey(from, to StateID) string {
	return string(from) + "->" + string(to)
}

// #endregion conversation-context
