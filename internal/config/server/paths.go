package server

import (
	"os"
	"path/filepath"
	"strings"
)

// PathsServerConfig holds the host and stash locations
type PathsServerConfig struct {
	HostDir      string `mapstructure:"host_dir"      yaml:"host_dir"`
	StashDir     string `mapstructure:"stash_dir"     yaml:"stash_dir"`
	ModelsSubdir string `mapstructure:"models_subdir" yaml:"models_subdir"`
}

// ScanServerConfig holds the extension whitelist
type ScanServerConfig struct {
	Extensions []string `mapstructure:"extensions" yaml:"extensions"`
}

// TransferServerConfig holds admission control and verification settings
type TransferServerConfig struct {
	SafetyMargin    float64 `mapstructure:"safety_margin"    yaml:"safety_margin"`
	VerifyChecksums bool    `mapstructure:"verify_checksums" yaml:"verify_checksums"`
}

// RegistryServerConfig holds the remote filename lists used for classification
type RegistryServerConfig struct {
	Models      string `mapstructure:"models"      yaml:"models"`
	Loras       string `mapstructure:"loras"       yaml:"loras"`
	ControlNets string `mapstructure:"controlnets" yaml:"controlnets"`
	Embeddings  string `mapstructure:"embeddings"  yaml:"embeddings"`
	Timeout     string `mapstructure:"timeout"     yaml:"timeout"`
	CacheTTL    string `mapstructure:"cache_ttl"   yaml:"cache_ttl"`
	CacheSize   int    `mapstructure:"cache_size"  yaml:"cache_size"`
}

// ExpandPath replaces a leading ~ with the home directory
func ExpandPath(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
