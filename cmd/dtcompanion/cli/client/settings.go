package client

import (
	"context"
	"fmt"

	"github.com/ianscrivener/draw-things-companion/internal/companion"
	"github.com/ianscrivener/draw-things-companion/pkg/db/models"
	"github.com/spf13/cobra"
)

func NewPathsCommand() *cobra.Command {
	var stash string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "paths",
		Short: "Show or change the host and stash directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, false, func(ctx context.Context, app *companion.App) error {
				if stash != "" {
					if err := app.SetStashDir(ctx, stash); err != nil {
						return err
					}
				}

				paths, err := app.GetPaths(ctx)
				if err != nil {
					return err
				}

				var spaces []companion.DiskSpace
				for _, loc := range []models.Location{models.LocationHost, models.LocationStash} {
					space, err := app.DiskSpace(ctx, loc)
					if err != nil {
						continue
					}
					spaces = append(spaces, space)
				}

				if asJSON {
					return printJSON(cmd.OutOrStdout(), map[string]any{
						"paths":      paths,
						"disk_space": spaces,
					})
				}

				fmt.Fprintf(cmd.OutOrStdout(), "Host:  %s\n", paths.HostDir)
				fmt.Fprintf(cmd.OutOrStdout(), "Stash: %s\n", paths.StashDir)
				for _, s := range spaces {
					fmt.Fprintf(cmd.OutOrStdout(), "Free on %s: %s\n", s.Location, s.Human)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&stash, "stash", "", "Create and record a new stash directory")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")

	return cmd
}

func NewGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Read a persisted setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, false, func(ctx context.Context, app *companion.App) error {
				value, ok, err := app.GetConfig(ctx, args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("'%s' is not set", args[0])
				}
				fmt.Fprintln(cmd.OutOrStdout(), value)
				return nil
			})
		},
	}
}

func NewSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Write a persisted setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, false, func(ctx context.Context, app *companion.App) error {
				return app.SetConfig(ctx, args[0], args[1])
			})
		},
	}
}
