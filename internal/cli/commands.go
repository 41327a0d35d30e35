package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := open(cmd.Context(), rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func NewBootstrapCommand(rootOpts *RootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Load workflow configurations from a YAML file",
		Long: `Write every workflow of the YAML file into its configuration document.

Configurations that already hold the same values are left untouched.
Defaults to PUBLICATION_WORKFLOWS_FILE when --file is not given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := open(cmd.Context(), rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			path := file
			if path == "" {
				path = a.Config.WorkflowsFile
			}
			refs, err := a.Bootstrap(cmd.Context(), path)
			if err != nil {
				return err
			}
			for _, ref := range refs {
				fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", ref)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d workflow configuration(s) saved\n", len(refs))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "workflow YAML file")
	return cmd
}

func NewReindexCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Push every visible published page into the search index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := open(cmd.Context(), rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.Reindex(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d page(s) indexed\n", n)
			return nil
		},
	}
}

func NewHealthCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the configured backends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := open(cmd.Context(), rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			status := a.Health(cmd.Context())
			names := make([]string, 0, len(status))
			for name := range status {
				names = append(names, name)
			}
			sort.Strings(names)
			failed := 0
			for _, name := range names {
				state := "ok"
				if !status[name] {
					state = "unreachable"
					failed++
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", name, state)
			}
			if failed > 0 {
				return fmt.Errorf("%d backend(s) unreachable", failed)
			}
			return nil
		},
	}
}
