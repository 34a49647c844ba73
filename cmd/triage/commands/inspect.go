package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/affect-triage/internal/audit"
)

var (
	inspectDB      string
	inspectSession string
	inspectLast    int
	inspectJSON    bool
	inspectTrail   bool
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show recent decisions from the SQLite audit log",
	RunE:  runInspect,
}

func init() {
	inspectCmd.Flags().StringVar(&inspectDB, "db", "", "Path to the audit database (defaults to audit.sqlite_path)")
	inspectCmd.Flags().StringVar(&inspectSession, "session", "", "Only show this session")
	inspectCmd.Flags().IntVar(&inspectLast, "last", 20, "Show N most recent decisions")
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "Output as JSON instead of a table")
	inspectCmd.Flags().BoolVar(&inspectTrail, "trail", false, "Print each decision's audit trail")
}

func runInspect(cmd *cobra.Command, _ []string) error {
	path := inspectDB
	if path == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path = cfg.Audit.SQLitePath
	}
	if path == "" {
		return fmt.Errorf("inspect: no audit database configured")
	}

	store, err := audit.OpenSQLite(path)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.Recent(cmd.Context(), audit.Query{SessionID: inspectSession, Limit: inspectLast})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if inspectJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}
	printRecords(out, records, inspectTrail)
	return nil
}

// #region table

func printRecords(w io.Writer, records []audit.Record, trail bool) {
	if len(records) == 0 {
		fmt.Fprintln(w, "no decisions recorded")
		return
	}
	fmt.Fprintf(w, "%-20s %-16s %4s  %-20s %-20s %-9s %-20s %s\n",
		"Time", "Session", "Turn", "From", "To", "Risk", "Strategy", "Flags")
	for _, r := range records {
		var flags []string
		if r.OverrideApplied {
			flags = append(flags, "override")
		}
		if r.Degraded {
			flags = append(flags, "degraded")
		}
		fmt.Fprintf(w, "%-20s %-16s %4d  %-20s %-20s %-9s %-20s %s\n",
			r.CreatedAt.Format("2006-01-02 15:04:05"), truncate(r.SessionID, 16), r.Turn,
			r.PreviousState, r.NextState, r.RiskLevel, truncate(r.StrategyTag, 20), strings.Join(flags, ","))
		if trail {
			for _, line := range r.Trail {
				fmt.Fprintf(w, "    %s\n", line)
			}
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "~"
}

// #endregion table
