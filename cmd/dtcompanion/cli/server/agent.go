package server

import (
	"context"
	"fmt"

	"github.com/ianscrivener/draw-things-companion/internal/agent"
	"github.com/spf13/cobra"

	config "github.com/ianscrivener/draw-things-companion/internal/config/server"
)

func NewAgentCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Start the companion agent",
		Long: `Start the companion agent.

The agent migrates the catalog, loads the remote model registry and, when both
the host and stash directories are known, runs a full sync before waiting for
an interrupt.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadServerConfig()
			if err != nil {
				return fmt.Errorf("failed to load server configuration: %w", err)
			}

			agent := agent.NewAgent(cfg)
			if err := agent.Serve(context.Background()); err != nil {
				return err
			}

			return nil
		},
	}

	return cmd
}
