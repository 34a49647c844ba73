package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/affect-triage/internal/engine"
	"github.com/danielpatrickdp/affect-triage/internal/rpc"
)

var (
	sendAddr    string
	sendSession string
	sendTimeout time.Duration
	sendJSON    bool
)

var sendCmd = &cobra.Command{
	Use:   "send [utterance]",
	Short: "Send turns to a running engine over gRPC",
	Long: `Send one utterance, or read utterances line by line from stdin when none
is given, to a running engine and print each decision. All lines share one
session.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSend,
}

func init() {
	sendCmd.Flags().StringVar(&sendAddr, "addr", "localhost:50061", "Engine gRPC address")
	sendCmd.Flags().StringVar(&sendSession, "session", "", "Session id (random when empty)")
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", 5*time.Second, "Per-turn RPC deadline")
	sendCmd.Flags().BoolVar(&sendJSON, "json", false, "Print full decisions as JSON")
}

func runSend(cmd *cobra.Command, args []string) error {
	client, err := rpc.NewClient(sendAddr)
	if err != nil {
		return err
	}
	defer client.Close()

	session := sendSession
	if session == "" {
		session = uuid.NewString()
	}

	send := func(text string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), sendTimeout)
		defer cancel()
		d, err := client.Decide(ctx, engine.Turn{SessionID: session, Utterance: text})
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if sendJSON {
			return json.NewEncoder(out).Encode(d)
		}
		flag := ""
		if d.OverrideApplied {
			flag = " OVERRIDE"
		}
		fmt.Fprintf(out, "[%d] %s -> %s  risk=%s threat=%s strategy=%s%s\n",
			d.Turn, d.PreviousState, d.NextState, d.RiskLevel, d.ThreatCategory, d.StrategyTag, flag)
		return nil
	}

	if len(args) == 1 {
		return send(args[0])
	}
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if err := send(text); err != nil {
			return err
		}
	}
	return scanner.Err()
}
