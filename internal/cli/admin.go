package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newShutdownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shutdown",
		Short: "Request a graceful daemon shutdown (running agents drain first)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := client.Post("/api/v1/shutdown", nil); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Shutdown requested.")
			return nil
		},
	}
}

func newKillCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kill",
		Short: "SIGTERM every running agent process",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Post("/api/v1/kill", nil)
			if err != nil {
				return fmt.Errorf("kill: %w", err)
			}

			var data map[string]any
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}
			n, _ := data["signalled"].(float64)
			fmt.Fprintf(cmd.OutOrStdout(), "Signalled %d agent(s).\n", int(n))
			return nil
		},
	}
}
