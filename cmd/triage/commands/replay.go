package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/affect-triage/internal/config"
	"github.com/danielpatrickdp/affect-triage/internal/engine"
	"github.com/danielpatrickdp/affect-triage/internal/replay"
)

var replayDir string

var replayCmd = &cobra.Command{
	Use:   "replay [fixture.json...]",
	Short: "Replay fixture conversations and compare decisions",
	Long: `Run recorded conversations through a fresh engine and print, per turn,
the expected and replayed outcome. Exits non-zero when any turn diverges.`,
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().StringVar(&replayDir, "dir", "", "Replay every *.json fixture in this directory")
}

func runReplay(cmd *cobra.Command, args []string) error {
	if replayDir == "" && len(args) == 0 {
		return fmt.Errorf("replay: give fixture files or --dir")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	var fixtures []*replay.Fixture
	if replayDir != "" {
		if fixtures, err = replay.LoadDir(replayDir); err != nil {
			return err
		}
	}
	for _, p := range args {
		f, err := replay.LoadFixture(p)
		if err != nil {
			return err
		}
		fixtures = append(fixtures, f)
	}

	g, err := config.GraphOrDefault(cfg.GraphPath)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	diverged := 0
	for _, f := range fixtures {
		eng := engine.New(cfg.Engine, g, engine.WithLogger(logger))
		results, err := replay.Replay(cmd.Context(), eng, f)
		if err != nil {
			return fmt.Errorf("%s: %w", f.SessionID, err)
		}
		s := printComparison(out, f, results)
		diverged += s.Diverged
	}
	if diverged > 0 {
		return fmt.Errorf("%d turn(s) diverged", diverged)
	}
	return nil
}

// #region output

func printComparison(w io.Writer, f *replay.Fixture, results []replay.Result) replay.Summary {
	fmt.Fprintf(w, "== %s: %s\n", f.SessionID, f.Description)
	fmt.Fprintf(w, "%-5s| %-20s| %-9s| %-20s| %s\n", "Turn", "Next", "Risk", "Threat", "Match")
	fmt.Fprintf(w, "%-5s+%-21s+%-10s+%-21s+%s\n", "-----", "---------------------", "----------", "---------------------", "------")
	for _, r := range results {
		match := "OK"
		if !r.Matched() {
			match = "DIFF"
		}
		d := r.Decision
		fmt.Fprintf(w, "%-5d| %-20s| %-9s| %-20s| %s\n", r.Turn, d.NextState, d.RiskLevel, d.ThreatCategory, match)
		for _, m := range r.Mismatches {
			fmt.Fprintf(w, "     |   %s\n", m)
		}
	}
	s := replay.Summarize(results)
	fmt.Fprintf(w, "\nSummary: %d total, %d match, %d diverge, %d override, final %s\n\n",
		s.TotalTurns, s.Matched, s.Diverged, s.Overrides, s.FinalState)
	return s
}

// #endregion output
