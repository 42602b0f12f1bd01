package client

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/ianscrivener/draw-things-companion/internal/companion"
	"github.com/ianscrivener/draw-things-companion/pkg/db/models"
	"github.com/spf13/cobra"
)

func NewModelsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "models",
		Aliases: []string{"m"},
		Short:   "Manage catalogued models",
		Long:    "List, scan, copy and edit the models recorded in the catalog.",
	}

	cmd.AddCommand(NewModelsListCommand())
	cmd.AddCommand(NewModelsShowCommand())
	cmd.AddCommand(NewModelsScanCommand())
	cmd.AddCommand(NewModelsCopyCommand())
	cmd.AddCommand(NewModelsRemoveCommand())
	cmd.AddCommand(NewModelsReorderCommand())
	cmd.AddCommand(NewModelsVisibleCommand())
	cmd.AddCommand(NewModelsRenameCommand())
	cmd.AddCommand(NewModelsStrengthCommand())
	cmd.AddCommand(NewModelsKindCommand())
	cmd.AddCommand(NewModelsDepsCommand())

	return cmd
}

func parseKindFlag(value string) (*models.Kind, error) {
	if value == "" {
		return nil, nil
	}
	kind, err := models.ParseKind(value)
	if err != nil {
		return nil, err
	}
	return &kind, nil
}

func NewModelsListCommand() *cobra.Command {
	var humanReadable bool
	var hostOnly bool
	var kindName string
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List catalogued models",
		Long:    "List catalog entries ordered by their host display order, then by filename.",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKindFlag(kindName)
			if err != nil {
				return err
			}

			return withApp(cmd, false, func(ctx context.Context, app *companion.App) error {
				views, err := app.ListModels(ctx, kind)
				if err != nil {
					return err
				}

				if hostOnly {
					filtered := views[:0]
					for _, v := range views {
						if v.IsOnHost {
							filtered = append(filtered, v)
						}
					}
					views = filtered
				}

				if asJSON {
					return printJSON(cmd.OutOrStdout(), views)
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ORDER\tFILENAME\tNAME\tKIND\tSIZE\tHOST\tSTASH")
				for _, v := range views {
					size := deref(v.FileSize, "-")
					if humanReadable && v.FileSize != nil {
						size = humanize.Bytes(uint64(*v.FileSize))
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\t%t\n",
						deref(v.HostDisplayOrder, "-"), v.Filename, deref(v.DisplayName, ""),
						v.Kind, size, v.ExistsHost, v.ExistsStash)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().BoolVarP(&humanReadable, "human", "H", false, "Enable human-readable sizes")
	cmd.Flags().BoolVar(&hostOnly, "host", false, "Only list models visible on the host")
	cmd.Flags().StringVarP(&kindName, "kind", "k", "", "Only list models of this kind")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")

	return cmd
}

func NewModelsShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <filename>",
		Short: "Show a single catalog entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, false, func(ctx context.Context, app *companion.App) error {
				view, err := app.GetModel(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), view)
			})
		},
	}
}

func NewModelsScanCommand() *cobra.Command {
	var kindName string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the host and stash directories",
		Long:  "Scan the host and stash model directories and record every model file found.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKindFlag(kindName)
			if err != nil {
				return err
			}

			return withApp(cmd, true, func(ctx context.Context, app *companion.App) error {
				result, err := app.Scan(ctx, kind)
				if err != nil {
					return err
				}

				if asJSON {
					return printJSON(cmd.OutOrStdout(), result)
				}

				fmt.Fprintf(cmd.OutOrStdout(), "Scanned %d files, imported %d\n", result.Scanned, result.Imported)
				for _, e := range result.Errors {
					fmt.Fprintf(cmd.OutOrStdout(), "  error: %s\n", e)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&kindName, "kind", "k", "", "Only scan models of this kind")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")

	return cmd
}

func NewModelsCopyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cp <filename>",
		Short: "Copy a host model into the stash",
		Long:  "Copy a catalogued host model into the stash. Fails if the stash already holds the file or lacks space.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, false, func(ctx context.Context, app *companion.App) error {
				result, err := app.CopyToStash(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Copied %s to %s (%s)\n",
					args[0], result.Destination, humanize.Bytes(uint64(result.Bytes)))
				return nil
			})
		},
	}
}

func NewModelsRemoveCommand() *cobra.Command {
	var deleteFiles bool
	var confirm bool

	cmd := &cobra.Command{
		Use:   "rm <filename>",
		Short: "Remove a catalog entry",
		Long:  "Removes the catalog entry. With --files the host and stash copies are deleted too (needs confirmation).",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if deleteFiles && !confirm {
				return fmt.Errorf("deleting files requires --yes")
			}

			return withApp(cmd, false, func(ctx context.Context, app *companion.App) error {
				if err := app.Delete(ctx, args[0], deleteFiles); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&deleteFiles, "files", false, "Also delete the model files")
	cmd.Flags().BoolVarP(&confirm, "yes", "y", false, "Confirm file deletion")

	return cmd
}

func NewModelsReorderCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reorder <filename>...",
		Short: "Set the host display order",
		Long:  "Assigns display orders 0, 1, 2, ... to the given files in argument order. Either all orders apply or none.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orders := make([]models.DisplayOrder, 0, len(args))
			for i, filename := range args {
				orders = append(orders, models.DisplayOrder{Filename: filename, Order: i})
			}

			return withApp(cmd, false, func(ctx context.Context, app *companion.App) error {
				return app.Reorder(ctx, orders)
			})
		},
	}
}

func NewModelsVisibleCommand() *cobra.Command {
	var order int

	cmd := &cobra.Command{
		Use:   "visible <filename> <true|false>",
		Short: "Mark a model as visible on the host",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			visible, err := strconv.ParseBool(args[1])
			if err != nil {
				return fmt.Errorf("invalid visibility '%s': %w", args[1], err)
			}

			var orderPtr *int
			if cmd.Flags().Changed("order") {
				orderPtr = &order
			}

			return withApp(cmd, false, func(ctx context.Context, app *companion.App) error {
				return app.SetHostVisibility(ctx, args[0], visible, orderPtr)
			})
		},
	}

	cmd.Flags().IntVar(&order, "order", 0, "Display order on the host")

	return cmd
}

func NewModelsRenameCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <filename> <display name>",
		Short: "Set the display name of a model",
		Long: `Set the display name of a model. Passing "" clears the name; the next scan
then restores the name from the Draw Things manifest, if the file is listed there.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.Join(args[1:], " ")
			return withApp(cmd, false, func(ctx context.Context, app *companion.App) error {
				return app.Rename(ctx, args[0], name)
			})
		},
	}
}

func NewModelsStrengthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "strength <filename> <value|none>",
		Short: "Set the strength of a lora",
		Long:  "Set the strength of a lora, e.g. 0.8. The value is stored as a ×10 integer; 'none' clears it.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var strength *int
			if args[1] != "none" {
				value, err := strconv.ParseFloat(args[1], 64)
				if err != nil {
					return fmt.Errorf("invalid strength '%s': %w", args[1], err)
				}
				scaled := int(math.Round(value * 10))
				strength = &scaled
			}

			return withApp(cmd, false, func(ctx context.Context, app *companion.App) error {
				return app.SetStrength(ctx, args[0], strength)
			})
		},
	}
}

func NewModelsKindCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "kind <filename> <kind>",
		Short: "Pin the kind of a model",
		Long:  "Pin the kind of a model. Pinned kinds are never changed by later scans.\n\nKinds: " + kindList(),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := models.ParseKind(args[1])
			if err != nil {
				return err
			}

			return withApp(cmd, false, func(ctx context.Context, app *companion.App) error {
				return app.SetKind(ctx, args[0], kind)
			})
		},
	}
}

func NewModelsDepsCommand() *cobra.Command {
	var remove string

	cmd := &cobra.Command{
		Use:   "deps <filename>",
		Short: "List or remove encoder dependencies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, false, func(ctx context.Context, app *companion.App) error {
				if remove != "" {
					return app.RemoveRelationship(ctx, args[0], remove)
				}

				edges, err := app.Relationships(ctx, args[0])
				if err != nil {
					return err
				}
				for _, e := range edges {
					fmt.Fprintln(cmd.OutOrStdout(), e.ChildFilename)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&remove, "remove", "", "Remove the dependency on this file")

	return cmd
}

func kindList() string {
	names := make([]string, 0, len(models.Kinds()))
	for _, k := range models.Kinds() {
		names = append(names, string(k))
	}
	return strings.Join(names, ", ")
}
