package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ianscrivener/draw-things-companion/internal/agent"
	"github.com/ianscrivener/draw-things-companion/internal/companion"
	"github.com/spf13/cobra"

	config "github.com/ianscrivener/draw-things-companion/internal/config/server"
)

// withApp opens the catalog for the duration of fn. With registry set the remote
// filename lists are fetched first.
func withApp(cmd *cobra.Command, registry bool, fn func(ctx context.Context, app *companion.App) error) error {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		return fmt.Errorf("failed to load server configuration: %w", err)
	}

	ctx := cmd.Context()
	ca := agent.NewAgent(cfg)

	app, err := ca.Open(ctx)
	if err != nil {
		return err
	}
	defer ca.Close(ctx)

	if registry {
		ca.LoadRegistry(ctx)
	}
	return fn(ctx, app)
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func deref[T any](v *T, fallback string) string {
	if v == nil {
		return fallback
	}
	return fmt.Sprint(*v)
}
