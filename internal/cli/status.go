package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [job_id]",
		Short: "Show scheduler status, or the status of one job",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				resp, err := client.Get("/api/v1/jobs/" + args[0])
				if err != nil {
					return fmt.Errorf("get job: %w", err)
				}
				var data map[string]any
				if err := json.Unmarshal(resp.Data, &data); err != nil {
					return fmt.Errorf("parse response: %w", err)
				}
				fmt.Fprintf(out, "Job:   %s\n", args[0])
				fmt.Fprintf(out, "  Type:    %v\n", data["type"])
				fmt.Fprintf(out, "  State:   %v\n", data["state"])
				fmt.Fprintf(out, "  Created: %v\n", data["created_at"])
				return nil
			}

			resp, err := client.Get("/api/v1/status")
			if err != nil {
				return fmt.Errorf("get status: %w", err)
			}
			var data map[string]any
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			fmt.Fprintf(out, "Scheduler:\n")
			fmt.Fprintf(out, "  Uptime:       %v\n", data["uptime"])
			fmt.Fprintf(out, "  Agents:       %v\n", data["agents"])
			fmt.Fprintf(out, "  Active jobs:  %v\n", data["active_jobs"])
			fmt.Fprintf(out, "  Pending jobs: %v\n", data["pending_jobs"])
			fmt.Fprintf(out, "  Hosts:        %v\n", data["hosts"])
			if closing, _ := data["closing"].(bool); closing {
				fmt.Fprintln(out, "  Closing:      yes")
			}
			if lockout, _ := data["lockout"].(bool); lockout {
				fmt.Fprintln(out, "  Lockout:      yes (exclusive job running)")
			}
			if held, ok := data["held_job_id"].(string); ok && held != "" {
				fmt.Fprintf(out, "  Held job:     %s\n", held)
			}
			return nil
		},
	}
}
