package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultStream is the stream key used when none is configured.
const DefaultStream = "triage:decisions"

// RedisStreamSink appends records to a capped Redis stream so downstream
// consumers (dashboards, reviewers) can tail decisions.
type RedisStreamSink struct {
	client redis.UniversalClient
	stream string
	maxLen int64
}

// NewRedisStreamSink creates a sink writing to stream. maxLen <= 0 leaves the
// stream uncapped.
func NewRedisStreamSink(client redis.UniversalClient, stream string, maxLen int64) *RedisStreamSink {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisStreamSink{client: client, stream: stream, maxLen: maxLen}
}

func (s *RedisStreamSink) Name() string { return "redis" }

// Emit appends r as a single stream entry.
func (s *RedisStreamSink) Emit(ctx context.Context, r Record) error {
	trail, err := json.Marshal(r.Trail)
	if err != nil {
		return fmt.Errorf("marshal trail: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"decision_id":      r.DecisionID,
			"session_id":       r.SessionID,
			"turn":             r.Turn,
			"graph_version":    r.GraphVersion,
			"previous_state":   r.PreviousState,
			"next_state":       r.NextState,
			"risk_level":       r.RiskLevel,
			"threat_category":  r.ThreatCategory,
			"strategy_tag":     r.StrategyTag,
			"override_applied": r.OverrideApplied,
			"degraded":         r.Degraded,
			"trail":            string(trail),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}
