// Package cli implements the docsched command line client for the
// scheduler's REST API.
package cli

import (
	"log/slog"
	"os"

	"github.com/me/docsched/internal/logging"
	"github.com/spf13/cobra"
)

var (
	flagServer    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
	client *Client
)

// defaultServer returns the default server URL, checking DOCSCHED_SERVER env var first.
func defaultServer() string {
	if s := os.Getenv("DOCSCHED_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8088"
}

// NewRootCmd creates the root cobra command for the docsched CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "docsched",
		Short: "docsched — document analysis scheduler client",
		Long:  "docsched submits, monitors, and manages analysis jobs on a docschedd daemon.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.NewLogger(logging.ParseLevel(flagLogLevel), flagLogFormat)
			client = NewClient(flagServer, logger)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagServer, "server", defaultServer(), "Scheduler URL (or DOCSCHED_SERVER env)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newSubmitCmd(),
		newStatusCmd(),
		newJobsCmd(),
		newHostsCmd(),
		newAgentsCmd(),
		newShutdownCmd(),
		newKillCmd(),
	)

	return root
}
