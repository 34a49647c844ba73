// Package commands implements the triage CLI.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/affect-triage/internal/config"
	"github.com/danielpatrickdp/affect-triage/internal/logging"
)

const Version = "0.1.0"

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "triage",
	Short: "Emotional-state and risk-triage engine",
	Long: `triage classifies each conversational turn into an emotional state,
scores self-harm risk and threat credibility, and decides the next state
of a configurable conversation graph. Crisis overrides always win.`,
	Version:      Version,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the YAML service config (env TRIAGE_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(sendCmd)
}

// loadConfig reads .env, then the config file, then applies CLI overrides.
func loadConfig() (config.Config, error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		return config.Config{}, err
	}
	path := configPath
	if path == "" {
		path = config.PathFromEnv()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return logger, nil
}
