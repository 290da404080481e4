package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nfrund/relay/internal/router"
)

var eventsOutputFormat string

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List the inbound events the relay routes",
	Long: `List every inbound event name in the relay's dispatch table.

Output formats:
  text - one event per line (default)
  json - a JSON array`,
	RunE: func(cmd *cobra.Command, args []string) error {
		names := router.Events()
		out := cmd.OutOrStdout()

		switch eventsOutputFormat {
		case "json":
			enc := json.NewEncoder(out)
			return enc.Encode(names)
		case "text":
			for _, name := range names {
				fmt.Fprintln(out, name)
			}
			return nil
		default:
			return fmt.Errorf("invalid format %q, valid formats: text, json", eventsOutputFormat)
		}
	},
}

func init() {
	eventsCmd.Flags().StringVarP(&eventsOutputFormat, "format", "f", "text", "output format (text, json)")
	rootCmd.AddCommand(eventsCmd)
}
