// Package session owns per-conversation contexts. Turns for one session are
// served strictly in arrival order; different sessions never contend beyond
// a short map lookup.
package session

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/affect-triage/internal/graph"
	"github.com/danielpatrickdp/affect-triage/internal/triage"
)

// #region config

// Config bounds the idle-session cache.
type Config struct {
	Capacity int           `yaml:"capacity"` // idle sessions kept
	IdleTTL  time.Duration `yaml:"idle_ttl"` // idle sessions expire after this
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{Capacity: 10000, IdleTTL: 30 * time.Minute}
}

// #endregion config

// #region session

// Session is one conversation. Graph is the snapshot the session was created
// with; a reloaded graph only affects sessions created afterwards. Ctx may
// only be touched while the session is held.
type Session struct {
	ID        string
	Graph     *graph.StateGraph
	Ctx       *triage.ConversationContext
	CreatedAt time.Time

	mu      sync.Mutex
	cond    *sync.Cond
	next    uint64 // next ticket to hand out
	serving uint64 // ticket currently allowed to run
	refs    int    // holders and waiters, guarded by Store.mu
}

func newSession(id string, g *graph.StateGraph) *Session {
	s := &Session{
		ID:        id,
		Graph:     g,
		Ctx:       triage.NewConversationContext(g.Entry()),
		CreatedAt: time.Now(),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// #endregion session

// #region store

// GraphSource returns the graph new sessions should start from.
type GraphSource func() *graph.StateGraph

// Store keys sessions by id. Sessions with a turn in flight live in the
// active map and cannot be evicted; idle ones sit in a TTL-bounded LRU.
type Store struct {
	mu     sync.Mutex
	active map[string]*Session
	idle   *expirable.LRU[string, *Session]
	graph  GraphSource
	logger *zap.Logger
}

// NewStore creates a Store.
func NewStore(config Config, source GraphSource, logger *zap.Logger) *Store {
	if config.Capacity <= 0 {
		config.Capacity = DefaultConfig().Capacity
	}
	return &Store{
		active: make(map[string]*Session),
		idle:   expirable.NewLRU[string, *Session](config.Capacity, nil, config.IdleTTL),
		graph:  source,
		logger: logger,
	}
}

// Acquire blocks until the caller's turn for session id comes up and
// returns the session with a release func. Callers are served in the order
// Acquire was entered. release must be called exactly once; extra calls are
// ignored.
func (s *Store) Acquire(id string) (*Session, func()) {
	s.mu.Lock()
	sess, ok := s.active[id]
	if !ok {
		if idle, found := s.idle.Peek(id); found {
			s.idle.Remove(id)
			sess = idle
		} else {
			g := s.graph()
			sess = newSession(id, g)
			s.logger.Debug("session created", zap.String("session_id", id), zap.String("graph_version", g.Version()))
		}
		s.active[id] = sess
	}
	sess.refs++
	sess.mu.Lock()
	ticket := sess.next
	sess.next++
	sess.mu.Unlock()
	s.mu.Unlock()

	sess.mu.Lock()
	for sess.serving != ticket {
		sess.cond.Wait()
	}
	sess.mu.Unlock()

	var once sync.Once
	return sess, func() { once.Do(func() { s.release(sess) }) }
}

func (s *Store) release(sess *Session) {
	sess.mu.Lock()
	sess.serving++
	sess.cond.Broadcast()
	sess.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	sess.refs--
	if sess.refs == 0 {
		delete(s.active, sess.ID)
		s.idle.Add(sess.ID, sess)
	}
}

// Len returns the number of known sessions, active and idle.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active) + s.idle.Len()
}

// State returns the current state of an idle session without queueing.
// Active sessions report false since their state is in flux.
func (s *Store) State(id string) (triage.StateID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.active[id]; busy {
		return "", false
	}
	sess, ok := s.idle.Peek(id)
	if !ok {
		return "", false
	}
	return sess.Ctx.CurrentState, true
}

// #endregion store
