// Package cmd defines and implements the CLI commands for the
// branchscan executable.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jvanderlaan/branchscan/internal/config"
	"github.com/jvanderlaan/branchscan/internal/logging"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "branchscan",
		Short: "Enriches KvK registry numbers with branch-relationship checks.",
		Long: `branchscan walks an ordered list of KvK registry numbers, fetches the
public registry page for each, classifies it for branch relationships,
and checkpoints every outcome so an interrupted crawl resumes exactly
where it left off.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is built-in defaults + BRANCHSCAN_* env)")

	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newPositivesCmd())

	return cmd
}

// ExecuteContext is the main entry point. The context carries the
// process signal handling so Ctrl-C lands in the run loop.
func ExecuteContext(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

// bootstrap loads configuration and builds the process logger shared
// by all commands.
func bootstrap() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("build logger: %w", err)
	}
	return cfg, logger, nil
}
