package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newSubmitCmd() *cobra.Command {
	var flagType string

	cmd := &cobra.Command{
		Use:   "submit --type <agent_type>",
		Short: "Submit a new analysis job",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Post("/api/v1/jobs/", map[string]any{
				"type": flagType,
			})
			if err != nil {
				return fmt.Errorf("submit job: %w", err)
			}

			var data map[string]any
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			id, _ := data["id"].(string)
			state, _ := data["state"].(string)
			fmt.Fprintf(cmd.OutOrStdout(), "Submitted %s (%s)\n", id, state)
			return nil
		},
	}

	cmd.Flags().StringVar(&flagType, "type", "", "Agent type to run (required)")
	cmd.MarkFlagRequired("type")
	return cmd
}
