package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/affect-triage/internal/api"
	"github.com/danielpatrickdp/affect-triage/internal/config"
)

var graphJSON bool

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Work with state graph artifacts",
}

var graphExportCmd = &cobra.Command{
	Use:   "export [graph.yaml]",
	Short: "Print a graph as YAML, starting point for a custom graph",
	Long: `Print the given graph file, or the built-in default graph when no file is
given, as YAML that the serve command accepts back.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		g, err := config.GraphOrDefault(path)
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(g.Spec())
	},
}

var graphSummaryCmd = &cobra.Command{
	Use:   "summary [graph.yaml]",
	Short: "Print a graph's states and edges",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		g, err := config.GraphOrDefault(path)
		if err != nil {
			return err
		}
		s := api.Summarize(g)
		out := cmd.OutOrStdout()
		if graphJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(s)
		}
		fmt.Fprintf(out, "version %s, entry %s, crisis %s\n", s.Version, s.Entry, s.Crisis)
		for _, e := range s.Edges {
			fmt.Fprintf(out, "  %s -> %s [%s]\n", e.From, e.To, e.Guard)
		}
		return nil
	},
}

func init() {
	graphSummaryCmd.Flags().BoolVar(&graphJSON, "json", false, "Output as JSON")
	graphCmd.AddCommand(graphExportCmd)
	graphCmd.AddCommand(graphSummaryCmd)
}
