package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS decision_log (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	decision_id      TEXT NOT NULL UNIQUE,
	session_id       TEXT NOT NULL,
	turn             INTEGER NOT NULL,
	graph_version    TEXT NOT NULL,
	previous_state   TEXT NOT NULL,
	next_state       TEXT NOT NULL,
	risk_level       TEXT NOT NULL,
	threat_category  TEXT NOT NULL,
	strategy_tag     TEXT NOT NULL,
	override_applied INTEGER NOT NULL,
	degraded         INTEGER NOT NULL,
	trail_json       TEXT,
	created_at       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS decision_log_session ON decision_log(session_id, turn);
`

// #endregion schema

// #region store

// SQLiteStore persists audit records in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the decision log at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Name() string { return "sqlite" }

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// #endregion store

// #region emit

// Emit inserts one record.
func (s *SQLiteStore) Emit(ctx context.Context, r Record) error {
	trail, err := json.Marshal(r.Trail)
	if err != nil {
		return fmt.Errorf("marshal trail: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO decision_log (decision_id, session_id, turn, graph_version, previous_state, next_state,
		 risk_level, threat_category, strategy_tag, override_applied, degraded, trail_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.DecisionID, r.SessionID, r.Turn, r.GraphVersion, r.PreviousState, r.NextState,
		r.RiskLevel, r.ThreatCategory, r.StrategyTag, boolToInt(r.OverrideApplied), boolToInt(r.Degraded),
		string(trail), r.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

// #endregion emit

// #region query

// Query filters Recent. An empty SessionID matches every session.
type Query struct {
	SessionID string
	Limit     int
}

// Recent returns the newest records first.
func (s *SQLiteStore) Recent(ctx context.Context, q Query) ([]Record, error) {
	if q.Limit <= 0 {
		q.Limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT decision_id, session_id, turn, graph_version, previous_state, next_state,
		        risk_level, threat_category, strategy_tag, override_applied, degraded, trail_json, created_at
		 FROM decision_log
		 WHERE (? = '' OR session_id = ?)
		 ORDER BY id DESC
		 LIMIT ?`,
		q.SessionID, q.SessionID, q.Limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r                  Record
			override, degraded int
			trailJSON          sql.NullString
			createdAt          string
		)
		if err := rows.Scan(&r.DecisionID, &r.SessionID, &r.Turn, &r.GraphVersion, &r.PreviousState, &r.NextState,
			&r.RiskLevel, &r.ThreatCategory, &r.StrategyTag, &override, &degraded, &trailJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		r.OverrideApplied = override != 0
		r.Degraded = degraded != 0
		if trailJSON.Valid && trailJSON.String != "" {
			if err := json.Unmarshal([]byte(trailJSON.String), &r.Trail); err != nil {
				return nil, fmt.Errorf("unmarshal trail: %w", err)
			}
		}
		r.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// #endregion query

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
