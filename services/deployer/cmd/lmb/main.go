package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	a := newApp()
	err := newRootCommand(a).ExecuteContext(ctx)
	a.close()
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "lmb",
		Short:         "Package, deploy and alias remote functions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.dir, "dir", ".", "Project directory containing package.json")
	flags.StringVar(&a.configPath, "config", "", "Global settings file (default ~/.lmb.json)")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.StringVar(&a.logFormat, "log-format", "", "Log format (console or json)")

	cmd.AddCommand(newConfigCommand(a))
	cmd.AddCommand(newInitCommand(a))
	cmd.AddCommand(newDeployCommand(a))
	cmd.AddCommand(newInvokeCommand(a))
	cmd.AddCommand(newTestCommand(a))
	cmd.AddCommand(newAliasCommand(a))
	cmd.AddCommand(newInfoCommand(a))
	cmd.AddCommand(newVersionCommand())
	return cmd
}
