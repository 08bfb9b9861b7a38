package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/workdone-progress/internal/config"
	"github.com/JakeFAU/workdone-progress/internal/server"
)

// newServeCmd creates the 'serve' subcommand, which speaks JSON-RPC on the
// process's stdin and stdout until the client exits.
func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve a client over stdio",
		Long: `Reads JSON-RPC requests from stdin and writes responses and progress
notifications to stdout. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			app, err := buildApp(cmd.Context(), cfg, server.Options{
				In:      opts.stdin,
				Out:     opts.stdout,
				Version: version,
			})
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			if err := app.Run(cmd.Context()); err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			return nil
		},
	}
}
