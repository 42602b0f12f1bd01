package server

import "github.com/spf13/viper"

func GetServerDefault() BaseServerConfig {
	return BaseServerConfig{
		ShutdownTimeout: "10s",

		Log: LogServerConfig{
			Level:      "INFO",
			TimeFormat: "2006-01-02 15:04:05",
			File:       "",
			NoColor:    false,
			JSON:       false,
			NoTerminal: false,
			Retention:  1000,
			Rotation: LogServerRotationConfig{
				MaxSize:    128,
				MaxBackups: 5,
				MaxAge:     16,
				Compress:   false,
			},
		},

		Metadata: MetadataServerConfig{
			Type: "sqlite",
			SQLite: MetadataSQLiteConfig{
				Path:        "~/.dtcompanion/drawthings_companion.sqlite",
				BusyTimeout: "5s",
			},
		},

		Paths: PathsServerConfig{
			HostDir:      "~/Library/Containers/com.liuliu.draw-things/Data/Documents",
			StashDir:     "",
			ModelsSubdir: "Models",
		},

		Scan: ScanServerConfig{
			Extensions: []string{"ckpt", "safetensors", "pt", "pth"},
		},

		Transfer: TransferServerConfig{
			SafetyMargin:    1.1,
			VerifyChecksums: false,
		},

		Registry: RegistryServerConfig{
			Timeout:   "30s",
			CacheTTL:  "1h",
			CacheSize: 16,
		},

		Agent: AgentServerConfig{
			AutoSync: true,
		},
	}
}

func setDefaults() {
	defaults := GetServerDefault()

	viper.SetDefault("shutdown_timeout", defaults.ShutdownTimeout)

	viper.SetDefault("log.level", defaults.Log.Level)
	viper.SetDefault("log.time_format", defaults.Log.TimeFormat)
	viper.SetDefault("log.file", defaults.Log.File)
	viper.SetDefault("log.no_color", defaults.Log.NoColor)
	viper.SetDefault("log.json", defaults.Log.JSON)
	viper.SetDefault("log.no_terminal", defaults.Log.NoTerminal)
	viper.SetDefault("log.retention", defaults.Log.Retention)
	viper.SetDefault("log.rotation.max_size", defaults.Log.Rotation.MaxSize)
	viper.SetDefault("log.rotation.max_backups", defaults.Log.Rotation.MaxBackups)
	viper.SetDefault("log.rotation.max_age", defaults.Log.Rotation.MaxAge)
	viper.SetDefault("log.rotation.compress", defaults.Log.Rotation.Compress)

	viper.SetDefault("metadata.type", defaults.Metadata.Type)
	viper.SetDefault("metadata.sqlite.path", defaults.Metadata.SQLite.Path)
	viper.SetDefault("metadata.sqlite.busy_timeout", defaults.Metadata.SQLite.BusyTimeout)

	viper.SetDefault("paths.host_dir", defaults.Paths.HostDir)
	viper.SetDefault("paths.stash_dir", defaults.Paths.StashDir)
	viper.SetDefault("paths.models_subdir", defaults.Paths.ModelsSubdir)

	viper.SetDefault("scan.extensions", defaults.Scan.Extensions)

	viper.SetDefault("transfer.safety_margin", defaults.Transfer.SafetyMargin)
	viper.SetDefault("transfer.verify_checksums", defaults.Transfer.VerifyChecksums)

	viper.SetDefault("registry.models", defaults.Registry.Models)
	viper.SetDefault("registry.loras", defaults.Registry.Loras)
	viper.SetDefault("registry.controlnets", defaults.Registry.ControlNets)
	viper.SetDefault("registry.embeddings", defaults.Registry.Embeddings)
	viper.SetDefault("registry.timeout", defaults.Registry.Timeout)
	viper.SetDefault("registry.cache_ttl", defaults.Registry.CacheTTL)
	viper.SetDefault("registry.cache_size", defaults.Registry.CacheSize)

	viper.SetDefault("agent.auto_sync", defaults.Agent.AutoSync)
}
