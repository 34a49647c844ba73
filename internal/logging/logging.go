// Package logging builds the process-wide zap logger. Components take a
// named child ("engine", "session", "audit", ...) instead of tagging lines.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// #region config

// Config selects the log level and encoding.
type Config struct {
	Level       string `yaml:"level"`       // debug, info, warn, error
	Development bool   `yaml:"development"` // console encoding, caller and stack traces
}

// DefaultConfig returns production logging at info level.
func DefaultConfig() Config {
	return Config{Level: "info"}
}

// #endregion config

// #region new

// New builds a logger from config.
func New(config Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(config.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	if config.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

// #endregion new
