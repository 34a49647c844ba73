package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/affect-triage/internal/config"
	"github.com/danielpatrickdp/affect-triage/internal/graph"
)

var validateCmd = &cobra.Command{
	Use:   "validate <graph.yaml>",
	Short: "Check a state graph file without serving it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := config.LoadGraph(args[0])
		var cfgErr *graph.ConfigError
		if errors.As(err, &cfgErr) {
			for _, p := range cfgErr.Problems {
				fmt.Fprintf(cmd.ErrOrStderr(), "  - %s\n", p)
			}
			return fmt.Errorf("%s: %d problem(s)", args[0], len(cfgErr.Problems))
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok, version %s, %d states\n", args[0], g.Version(), len(g.Nodes()))
		return nil
	},
}
