package cmd

import (
	"github.com/spf13/cobra"

	"github.com/nfrund/relay/internal/config"
	"github.com/nfrund/relay/internal/logging"
	"github.com/nfrund/relay/internal/server"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay server",
	Long: `Run the relay until SIGINT or SIGTERM.

Configuration is read from the environment, after loading .env if present.
See PORT, ALLOWED_ORIGINS, ALLOWED_ORIGIN_PATTERNS, ALLOWED_ORIGINS_FILE,
ALLOW_EMPTY_ORIGIN, SEND_BUFFER, WRITE_TIMEOUT, LOG_FORMAT, LOG_LEVEL and
TRACING_*.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			return err
		}
		if servePort != "" {
			cfg.Port = servePort
		}

		logger := logging.New(cfg.LogFormat, cfg.LogLevel)
		s, err := server.New(cfg, server.WithLogger(logger), server.WithVersion(version))
		if err != nil {
			return err
		}
		return s.Run(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "listen port, overrides PORT")
	rootCmd.AddCommand(serveCmd)
}
