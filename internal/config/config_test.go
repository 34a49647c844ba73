package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/affect-triage/internal/graph"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func writeSpec(t *testing.T, path string, spec graph.Spec) {
	t.Helper()
	out, err := yaml.Marshal(spec)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, out, 0o644))
}

// #region test-load

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "triage.yaml")
	writeFile(t, path, `
http_addr: ":9090"
engine:
  turn_timeout: 150ms
  risk:
    high_at: 9
  session:
    idle_ttl: 1h
audit:
  redis_addr: "localhost:6379"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, 150*time.Millisecond, cfg.Engine.TurnTimeout)
	assert.Equal(t, 9, cfg.Engine.Risk.HighAt)
	assert.Equal(t, time.Hour, cfg.Engine.Session.IdleTTL)
	assert.Equal(t, "localhost:6379", cfg.Audit.RedisAddr)

	// untouched keys keep their defaults
	assert.Equal(t, 2, cfg.Engine.Risk.LowAt)
	assert.Equal(t, 5, cfg.Engine.HistoryLimit)
	assert.Equal(t, Default().GRPCAddr, cfg.GRPCAddr)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "triage.yaml")
	writeFile(t, path, "http_addr: \":9090\"\n")
	t.Setenv("TRIAGE_HTTP_ADDR", ":7070")
	t.Setenv("TRIAGE_AUDIT_DB", "/tmp/other.db")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.HTTPAddr)
	assert.Equal(t, "/tmp/other.db", cfg.Audit.SQLitePath)
}

func TestPathFromEnv(t *testing.T) {
	t.Setenv("TRIAGE_CONFIG", "/etc/triage.yaml")
	assert.Equal(t, "/etc/triage.yaml", PathFromEnv())
}

func TestLoadRejectsBadTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "triage.yaml")
	writeFile(t, path, "engine:\n  turn_timeout: -1s\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	writeFile(t, path, "TRIAGE_DOTENV_PROBE=loaded\n")
	t.Cleanup(func() { os.Unsetenv("TRIAGE_DOTENV_PROBE") })

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), path))
	assert.Equal(t, "loaded", os.Getenv("TRIAGE_DOTENV_PROBE"))
}

// #endregion test-load

// #region test-graph

func TestLoadGraphRoundTripsDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.yaml")
	writeSpec(t, path, graph.DefaultSpec())

	g, err := LoadGraph(path)
	require.NoError(t, err)
	want := graph.MustBuild(graph.DefaultSpec())
	assert.Equal(t, want.Version(), g.Version())
	assert.Equal(t, want.Entry(), g.Entry())
	assert.Len(t, g.Nodes(), len(want.Nodes()))
}

func TestLoadGraphReportsProblems(t *testing.T) {
	spec := graph.DefaultSpec()
	spec.Nodes = spec.Nodes[:1] // only onboarding
	path := filepath.Join(t.TempDir(), "graph.yaml")
	writeSpec(t, path, spec)

	_, err := LoadGraph(path)
	require.Error(t, err)
	var cfgErr *graph.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.NotEmpty(t, cfgErr.Problems)
}

func TestGraphOrDefault(t *testing.T) {
	g, err := GraphOrDefault("")
	require.NoError(t, err)
	assert.Equal(t, graph.MustBuild(graph.DefaultSpec()).Version(), g.Version())
}

// #endregion test-graph

// #region test-watcher

func TestGraphWatcherReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.yaml")
	writeSpec(t, path, graph.DefaultSpec())

	reloaded := make(chan *graph.StateGraph, 4)
	rejected := make(chan error, 4)
	w, err := NewGraphWatcher(path, 50*time.Millisecond,
		func(g *graph.StateGraph) { reloaded <- g },
		func(err error) { rejected <- err },
		zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	spec := graph.DefaultSpec()
	spec.Strategies[graph.CheckIn] = graph.StrategySpec{Default: "open_exploration_v2"}
	writeSpec(t, path, spec)

	select {
	case g := <-reloaded:
		tag, _ := g.Strategy(graph.CheckIn, 0)
		assert.Equal(t, "open_exploration_v2", tag)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after valid write")
	}

	writeFile(t, path, "nodes: []\n")
	select {
	case err := <-rejected:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("invalid graph was not rejected")
	}
}

func TestGraphWatcherRequiresPath(t *testing.T) {
	_, err := NewGraphWatcher("", 0, func(*graph.StateGraph) {}, nil, zaptest.NewLogger(t))
	assert.Error(t, err)
}

// #endregion test-watcher
