// Package cli holds the commands of the publication ops binary.
package cli

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"publication/api/internal/app"
	"publication/api/internal/config"
	"publication/api/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	LogLevel string
}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "publication",
		Short: "Operate the publication workflow",
		Long: `Operate the draft to published workflow of a wiki: apply database
migrations, load workflow configurations and rebuild the search index.

Configuration is read from the environment and an optional .env file.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override LOG_LEVEL")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewBootstrapCommand(opts))
	cmd.AddCommand(NewReindexCommand(opts))
	cmd.AddCommand(NewHealthCommand(opts))
	return cmd
}

// open loads the configuration and builds the application for one command.
func open(ctx context.Context, opts *RootOptions, cmd *cobra.Command) (*app.App, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	level := cfg.LogLevel
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	log, err := logging.Console(cmd.ErrOrStderr(), level)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	log.Debug().Str("config", cfg.String()).Msg("loaded configuration")

	a, err := app.Build(ctx, cfg, log, app.Options{})
	if err != nil {
		return nil, log, fmt.Errorf("build application: %w", err)
	}
	return a, log, nil
}
