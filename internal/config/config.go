// Package config loads service configuration and the state graph artifact,
// and watches the graph file for hot reloads.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/danielpatrickdp/affect-triage/internal/audit"
	"github.com/danielpatrickdp/affect-triage/internal/engine"
	"github.com/danielpatrickdp/affect-triage/internal/graph"
	"github.com/danielpatrickdp/affect-triage/internal/logging"
)

// #region types

// Config is the full service configuration.
type Config struct {
	Engine    engine.Config  `yaml:"engine"`
	Log       logging.Config `yaml:"log"`
	Audit     AuditConfig    `yaml:"audit"`
	GraphPath string         `yaml:"graph_path"` // empty serves graph.DefaultSpec()
	HTTPAddr  string         `yaml:"http_addr"`
	GRPCAddr  string         `yaml:"grpc_addr"`
	Reload    ReloadConfig   `yaml:"reload"`
}

// AuditConfig selects audit sinks. Empty paths and addresses disable a sink.
type AuditConfig struct {
	SQLitePath  string `yaml:"sqlite_path"`
	RedisAddr   string `yaml:"redis_addr"`
	RedisStream string `yaml:"redis_stream"`
	RedisMaxLen int64  `yaml:"redis_max_len"`
	Log         bool   `yaml:"log"`
}

// ReloadConfig controls graph hot reload.
type ReloadConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// #endregion types

// #region defaults

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Engine: engine.DefaultConfig(),
		Log:    logging.DefaultConfig(),
		Audit: AuditConfig{
			SQLitePath:  "triage_audit.db",
			RedisStream: audit.DefaultStream,
			RedisMaxLen: 100000,
		},
		HTTPAddr: ":8080",
		GRPCAddr: ":50061",
		Reload:   ReloadConfig{Enabled: true, Debounce: 500 * time.Millisecond},
	}
}

// #endregion defaults

// #region load

// Load overlays the YAML file at path (if any) and then environment
// variables on top of Default.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		k := koanf.New(".")
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config %q: %w", path, err)
		}
		if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
			return Config{}, fmt.Errorf("parse config %q: %w", path, err)
		}
	}
	applyEnv(&cfg)
	if cfg.Engine.TurnTimeout <= 0 {
		return Config{}, fmt.Errorf("config: engine.turn_timeout must be positive, got %s", cfg.Engine.TurnTimeout)
	}
	return cfg, nil
}

// LoadDotEnv reads .env files into the environment. Missing files are not
// an error.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.GraphPath = envOr("TRIAGE_GRAPH", cfg.GraphPath)
	cfg.HTTPAddr = envOr("TRIAGE_HTTP_ADDR", cfg.HTTPAddr)
	cfg.GRPCAddr = envOr("TRIAGE_GRPC_ADDR", cfg.GRPCAddr)
	cfg.Audit.SQLitePath = envOr("TRIAGE_AUDIT_DB", cfg.Audit.SQLitePath)
	cfg.Audit.RedisAddr = envOr("TRIAGE_REDIS_ADDR", cfg.Audit.RedisAddr)
	cfg.Log.Level = envOr("TRIAGE_LOG_LEVEL", cfg.Log.Level)
}

// PathFromEnv returns the config file named by TRIAGE_CONFIG, if any.
func PathFromEnv() string {
	return envOr("TRIAGE_CONFIG", "")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion load

// #region load-graph

// LoadGraph reads and compiles a graph file. Validation problems come back
// as a *graph.ConfigError.
func LoadGraph(path string) (*graph.StateGraph, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load graph %q: %w", path, err)
	}
	var spec graph.Spec
	if err := k.UnmarshalWithConf("", &spec, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("parse graph %q: %w", path, err)
	}
	g, err := graph.Build(spec)
	if err != nil {
		return nil, fmt.Errorf("graph %q: %w", path, err)
	}
	return g, nil
}

// GraphOrDefault loads path, or builds the default graph when path is empty.
func GraphOrDefault(path string) (*graph.StateGraph, error) {
	if path == "" {
		return graph.Build(graph.DefaultSpec())
	}
	return LoadGraph(path)
}

// #endregion load-graph
