package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newJobsCmd() *cobra.Command {
	var flagState string

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/jobs/"
			if flagState != "" {
				path += "?state=" + flagState
			}
			resp, err := client.Get(path)
			if err != nil {
				return fmt.Errorf("list jobs: %w", err)
			}

			var data []map[string]any
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(data) == 0 {
				fmt.Fprintln(out, "No jobs found.")
				return nil
			}

			fmt.Fprintf(out, "%-40s  %-12s  %-16s  %s\n", "ID", "STATE", "TYPE", "CREATED")
			fmt.Fprintf(out, "%-40s  %-12s  %-16s  %s\n", "----", "-----", "----", "-------")
			for _, j := range data {
				id, _ := j["id"].(string)
				state, _ := j["state"].(string)
				jobType, _ := j["type"].(string)
				createdAt, _ := j["created_at"].(string)
				fmt.Fprintf(out, "%-40s  %-12s  %-16s  %s\n", id, state, jobType, createdAt)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&flagState, "state", "", "Filter by state (PENDING, ASSIGNED, FINISHED, FAILED)")
	return cmd
}
