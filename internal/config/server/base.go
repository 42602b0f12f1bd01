package server

import (
	"fmt"

	"github.com/spf13/viper"
)

type BaseServerConfig struct {
	ShutdownTimeout string `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	Log      LogServerConfig      `mapstructure:"log"      yaml:"log"`
	Metadata MetadataServerConfig `mapstructure:"metadata" yaml:"metadata"`
	Paths    PathsServerConfig    `mapstructure:"paths"    yaml:"paths"`
	Scan     ScanServerConfig     `mapstructure:"scan"     yaml:"scan"`
	Transfer TransferServerConfig `mapstructure:"transfer" yaml:"transfer"`
	Registry RegistryServerConfig `mapstructure:"registry" yaml:"registry"`
	Agent    AgentServerConfig    `mapstructure:"agent"    yaml:"agent"`
}

type AgentServerConfig struct {
	AutoSync bool `mapstructure:"auto_sync" yaml:"auto_sync"`
}

func LoadServerConfig() (*BaseServerConfig, error) {
	cfg := &BaseServerConfig{}

	setDefaults()

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	cfg.Paths.HostDir = ExpandPath(cfg.Paths.HostDir)
	cfg.Paths.StashDir = ExpandPath(cfg.Paths.StashDir)
	cfg.Metadata.SQLite.Path = ExpandPath(cfg.Metadata.SQLite.Path)

	return cfg, nil
}
