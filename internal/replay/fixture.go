package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/danielpatrickdp/affect-triage/internal/triage"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture: one
// conversation, optionally starting from a state other than the graph entry.
type Fixture struct {
	Description string         `json:"description"`
	SessionID   string         `json:"session_id"`
	StartState  triage.StateID `json:"start_state,omitempty"`
	Turns       []FixtureTurn  `json:"turns"`
}

// FixtureTurn is one utterance and what the engine is expected to decide.
type FixtureTurn struct {
	Utterance string      `json:"utterance"`
	History   []string    `json:"history,omitempty"`
	Expect    Expectation `json:"expect"`
}

// Expectation lists the decision fields a turn is checked against. Empty
// fields are not checked.
type Expectation struct {
	NextState      triage.StateID `json:"next_state,omitempty"`
	RiskLevel      string         `json:"risk_level,omitempty"`
	MinRiskLevel   string         `json:"min_risk_level,omitempty"`
	ThreatCategory string         `json:"threat_category,omitempty"`
	StrategyTag    string         `json:"strategy_tag,omitempty"`
	Override       *bool          `json:"override,omitempty"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	if len(f.Turns) == 0 {
		return nil, fmt.Errorf("fixture %s: no turns", path)
	}
	if f.SessionID == "" {
		f.SessionID = filepath.Base(path)
	}
	return &f, nil
}

// LoadDir loads every *.json fixture in dir, sorted by file name.
func LoadDir(dir string) ([]*Fixture, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", dir, err)
	}
	sort.Strings(paths)
	out := make([]*Fixture, 0, len(paths))
	for _, p := range paths {
		f, err := LoadFixture(p)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// #endregion fixture-loader
