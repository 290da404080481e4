package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "Realtime event relay",
	Long: `relay routes typed websocket events between connected users.

Clients connect to /ws?userId=<id>&serverId=<id> and exchange JSON frames of
the form {"event": "<name>", "data": <payload>}. Nothing is persisted.

Available commands:
  serve     Run the relay
  events    List the events the relay routes
  origin    Inspect the origin policy
  version   Print the version

Use "relay [command] --help" for more information about a specific command.`,
	SilenceUsage: true,
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
