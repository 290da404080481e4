package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/nfrund/relay/internal/admission"
	"github.com/nfrund/relay/internal/config"
)

// ErrOriginDenied makes `origin check` exit non-zero.
var ErrOriginDenied = errors.New("origin denied")

// originFs is swapped for a MemMapFs in tests.
var originFs = afero.NewOsFs()

var originCmd = &cobra.Command{
	Use:   "origin",
	Short: "Inspect the origin admission policy",
}

var originCheckCmd = &cobra.Command{
	Use:   "check <origin>",
	Short: "Report whether an origin would be admitted",
	Long: `Evaluate an origin against the configured policy: ALLOWED_ORIGINS,
ALLOWED_ORIGIN_PATTERNS, ALLOWED_ORIGINS_FILE and ALLOW_EMPTY_ORIGIN.
Pass "" to check a request without an Origin header.

Examples:
  relay origin check https://server-hub-optimised-ten.vercel.app
  ALLOWED_ORIGIN_PATTERNS='https://*.vercel.app' relay origin check https://pr-1.vercel.app`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Parse()
		if err != nil {
			return err
		}
		policy, err := admission.NewPolicy(cfg.AllowedOrigins, cfg.AllowedOriginPatterns, cfg.AllowEmptyOrigin)
		if err != nil {
			return err
		}
		if cfg.AllowedOriginsFile != "" {
			src := admission.NewFileSource(originFs, cfg.AllowedOriginsFile, policy,
				cfg.AllowedOrigins, cfg.AllowedOriginPatterns, nil)
			if err := src.Reload(); err != nil {
				return err
			}
		}

		origin := args[0]
		if policy.Allowed(origin) {
			fmt.Fprintf(cmd.OutOrStdout(), "%q allowed\n", origin)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%q denied\n", origin)
		return ErrOriginDenied
	},
}

func init() {
	originCmd.AddCommand(originCheckCmd)
	rootCmd.AddCommand(originCmd)
}
