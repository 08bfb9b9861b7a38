package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/workdone-progress/internal/config"
	"github.com/JakeFAU/workdone-progress/internal/server"
)

// version is stamped at build time with -ldflags "-X".
var version = "dev"

// Runner is the part of the application the serve command drives.
type Runner interface {
	Run(ctx context.Context) error
}

// buildApp is the application factory. It's a variable so tests can replace
// it.
var buildApp = func(ctx context.Context, cfg config.Config, opts server.Options) (Runner, error) {
	return server.Build(ctx, cfg, opts)
}

type rootOptions struct {
	cfgFile string
	stdin   io.Reader
	stdout  io.Writer
}

// newRootCmd creates and configures the root command.
func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	opts := &rootOptions{stdin: in, stdout: out}
	cmd := &cobra.Command{
		Use:   "progressd",
		Short: "Work-done progress reporting server.",
		Long: `progressd runs background tasks and reports their progress to an editor
over JSON-RPC: throttled $/progress notifications after the
window/workDoneProgress/create handshake, plus the legacy
language/progressReport and language/status channels.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (YAML, TOML or JSON)")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd(os.Stdin, os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "progressd: %v\n", err)
		os.Exit(1)
	}
}
