package client

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/ianscrivener/draw-things-companion/internal/companion"
	"github.com/spf13/cobra"
)

func NewInitCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "init <host dir> <stash dir>",
		Short: "Record both directories and run the first sync",
		Long: `Record the host and stash directories and run a full sync.

The sync mirrors manifests and model files into the stash, scans both
locations and resolves encoder dependencies. Its status is persisted and can
be read later with 'status'.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, true, func(ctx context.Context, app *companion.App) error {
				task, err := app.Initialize(ctx, args[0], args[1])
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "Sync %s started\n", task.ID)
				report, err := task.Wait(ctx)
				if asJSON {
					if perr := printJSON(cmd.OutOrStdout(), report); perr != nil {
						return perr
					}
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "Status:     %s\n", report.Status)
				fmt.Fprintf(cmd.OutOrStdout(), "Manifests:  %d copied\n", report.ManifestsCopied)
				fmt.Fprintf(cmd.OutOrStdout(), "Files:      %d copied (%s), %d skipped, %d failed\n",
					report.FilesCopied, humanize.Bytes(uint64(report.BytesCopied)), report.FilesSkipped, report.FilesFailed)
				fmt.Fprintf(cmd.OutOrStdout(), "Imported:   %d host, %d stash\n", report.Host.Imported, report.Stash.Imported)
				fmt.Fprintf(cmd.OutOrStdout(), "Relations:  %d added, %d skipped\n", report.Relations.Inserted, report.Relations.Skipped)
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")

	return cmd
}

func NewStatusCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of the last sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, false, func(ctx context.Context, app *companion.App) error {
				status, err := app.InitializationStatus(ctx)
				if err != nil {
					return err
				}

				if asJSON {
					return printJSON(cmd.OutOrStdout(), status)
				}

				fmt.Fprintf(cmd.OutOrStdout(), "Status:       %s\n", status.Status)
				fmt.Fprintf(cmd.OutOrStdout(), "Stash exists: %t\n", status.StashExists)
				if status.LastSyncID != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "Last sync:    %s\n", status.LastSyncID)
				}
				if status.Error != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "Error:        %s\n", status.Error)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")

	return cmd
}

func NewLogsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logs",
		Short: "Print the log events recorded by this process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, false, func(ctx context.Context, app *companion.App) error {
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				for _, e := range app.GetLogs() {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Timestamp.Format("2006-01-02 15:04:05"), e.Level, e.Service, e.Message)
				}
				return w.Flush()
			})
		},
	}
}
