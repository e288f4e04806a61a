package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newHostsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hosts",
		Short: "List execution hosts and their load",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get("/api/v1/hosts")
			if err != nil {
				return fmt.Errorf("list hosts: %w", err)
			}

			var data []map[string]any
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(data) == 0 {
				fmt.Fprintln(out, "No hosts configured.")
				return nil
			}

			fmt.Fprintf(out, "%-20s  %-30s  %-8s  %s\n", "NAME", "ADDRESS", "RUNNING", "MAX")
			for _, h := range data {
				name, _ := h["name"].(string)
				address, _ := h["address"].(string)
				running, _ := h["running"].(float64)
				max, _ := h["max"].(float64)
				fmt.Fprintf(out, "%-20s  %-30s  %-8d  %d\n", name, address, int(running), int(max))
			}
			return nil
		},
	}
}

func newAgentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List running agent processes",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get("/api/v1/agents")
			if err != nil {
				return fmt.Errorf("list agents: %w", err)
			}

			var data []map[string]any
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(data) == 0 {
				fmt.Fprintln(out, "No agents running.")
				return nil
			}

			fmt.Fprintf(out, "%-8s  %-16s  %-40s  %s\n", "PID", "HOST", "JOB", "TYPE")
			for _, a := range data {
				pid, _ := a["pid"].(float64)
				hostName, _ := a["host"].(string)
				jobID, _ := a["job_id"].(string)
				jobType, _ := a["job_type"].(string)
				fmt.Fprintf(out, "%-8d  %-16s  %-40s  %s\n", int(pid), hostName, jobID, jobType)
			}
			return nil
		},
	}
}
