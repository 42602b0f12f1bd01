package main

import (
	"fmt"
	"os"

	"github.com/ianscrivener/draw-things-companion/cmd/dtcompanion/cli"
	"github.com/ianscrivener/draw-things-companion/cmd/dtcompanion/cli/client"
	"github.com/ianscrivener/draw-things-companion/cmd/dtcompanion/cli/server"
)

var (
	version = "0.0.1-dev"
	commit  = "main"
)

func main() {
	info := cli.VersionInfo{
		Version: version,
		Commit:  commit,
	}
	root := cli.NewRootCommand(info)

	root.AddCommand(cli.NewVersionCommand(info))

	root.AddCommand(server.NewAgentCommand())
	root.AddCommand(server.NewConfigCommand())

	root.AddCommand(client.NewModelsCommand())
	root.AddCommand(client.NewInitCommand())
	root.AddCommand(client.NewStatusCommand())
	root.AddCommand(client.NewPathsCommand())
	root.AddCommand(client.NewLogsCommand())
	root.AddCommand(client.NewGetCommand())
	root.AddCommand(client.NewSetCommand())

	if err := root.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
